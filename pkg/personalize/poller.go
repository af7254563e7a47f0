package personalize

import (
	"context"
	"errors"
	"fmt"

	"github.com/recforge/recforge/pkg/models"
)

// ErrUnknownStage indicates a poll for a stage the poller does not model.
var ErrUnknownStage = errors.New("unknown stage")

// ProvisionPoller reads the readiness of the current stage's resource. It
// is strictly read-only: one describe call per poll, reduced to a status
// label. A stage whose step recorded an empty identifier was deliberately
// skipped and reports ready immediately.
type ProvisionPoller struct {
	client Client
}

func NewProvisionPoller(client Client) *ProvisionPoller {
	return &ProvisionPoller{client: client}
}

func (p *ProvisionPoller) Poll(ctx context.Context, execCtx *models.ExecutionContext) (models.ResourceStatus, error) {
	switch execCtx.Stage {
	case models.StageDatasetGroup:
		return p.client.DescribeDatasetGroup(ctx, execCtx.Resource(KeyDatasetGroup))
	case models.StageDataset:
		return p.client.DescribeDataset(ctx, execCtx.Resource(KeyDataset))
	case models.StageDatasetImport:
		return p.client.DescribeDatasetImportJob(ctx, execCtx.Resource(KeyDatasetImport))
	case models.StageItemDataset:
		return p.describeOptionalDataset(ctx, execCtx.Resource(KeyItemDataset))
	case models.StageItemDatasetImport:
		return p.describeOptionalImport(ctx, execCtx.Resource(KeyItemDatasetImport))
	case models.StageUserDataset:
		return p.describeOptionalDataset(ctx, execCtx.Resource(KeyUserDataset))
	case models.StageUserDatasetImport:
		return p.describeOptionalImport(ctx, execCtx.Resource(KeyUserDatasetImport))
	case models.StageSolution:
		return p.client.DescribeSolutionVersion(ctx, execCtx.Resource(KeySolutionVersion))
	case models.StageCampaign:
		// Empty identifier means deploy was skipped; nothing to wait for.
		arn := execCtx.Resource(KeyCampaign)
		if arn == "" {
			return models.StatusActive, nil
		}

		return p.client.DescribeCampaign(ctx, arn)
	case models.StageRecommender:
		return p.client.DescribeRecommender(ctx, execCtx.Resource(KeyRecommender))
	case models.StageBatchInference:
		return p.client.DescribeBatchInferenceJob(ctx, execCtx.Resource(KeyBatchInference))
	case models.StageBatchSegment:
		return p.client.DescribeBatchSegmentJob(ctx, execCtx.Resource(KeyBatchSegment))
	}

	return "", fmt.Errorf("%w: %s", ErrUnknownStage, execCtx.Stage)
}

func (p *ProvisionPoller) describeOptionalDataset(ctx context.Context, arn string) (models.ResourceStatus, error) {
	if arn == "" {
		return models.StatusActive, nil
	}

	return p.client.DescribeDataset(ctx, arn)
}

func (p *ProvisionPoller) describeOptionalImport(ctx context.Context, arn string) (models.ResourceStatus, error) {
	if arn == "" {
		return models.StatusActive, nil
	}

	return p.client.DescribeDatasetImportJob(ctx, arn)
}

// CleanupPoller confirms deletions by re-listing: a resource kind is gone
// when the external service no longer returns any entries for it. The fetch
// stage has nothing external to wait on and reports FETCHED right away;
// schema and group deletions are synchronous on the remote side and report
// DELETED unconditionally.
type CleanupPoller struct {
	client Client
}

func NewCleanupPoller(client Client) *CleanupPoller {
	return &CleanupPoller{client: client}
}

func (p *CleanupPoller) Poll(ctx context.Context, execCtx *models.ExecutionContext) (models.ResourceStatus, error) {
	groupARN := execCtx.Resource(KeyDatasetGroup)

	switch execCtx.Stage {
	case models.StageFetchArn:
		return models.StatusFetched, nil
	case models.StageCampaign:
		for _, solutionARN := range execCtx.Resources[KeySolution] {
			campaigns, err := p.client.ListCampaigns(ctx, solutionARN)
			if err != nil {
				return "", fmt.Errorf("failed to list campaigns: %w", err)
			}

			if len(campaigns) > 0 {
				return models.StatusDeleting, nil
			}
		}

		return models.StatusDeleted, nil
	case models.StageSolution:
		solutions, err := p.client.ListSolutions(ctx, groupARN)
		if err != nil {
			return "", fmt.Errorf("failed to list solutions: %w", err)
		}

		return drained(len(solutions)), nil
	case models.StageEventTracker:
		trackers, err := p.client.ListEventTrackers(ctx, groupARN)
		if err != nil {
			return "", fmt.Errorf("failed to list event trackers: %w", err)
		}

		return drained(len(trackers)), nil
	case models.StageDataset:
		datasets, err := p.client.ListDatasets(ctx, groupARN)
		if err != nil {
			return "", fmt.Errorf("failed to list datasets: %w", err)
		}

		return drained(len(datasets)), nil
	case models.StageSchema, models.StageDatasetGroup:
		return models.StatusDeleted, nil
	}

	return "", fmt.Errorf("%w: %s", ErrUnknownStage, execCtx.Stage)
}

func drained(remaining int) models.ResourceStatus {
	if remaining > 0 {
		return models.StatusDeleting
	}

	return models.StatusDeleted
}
