package personalize

import (
	"context"
	"fmt"

	"github.com/recforge/recforge/pkg/models"
	"github.com/recforge/recforge/pkg/pipeline"
)

// CleanupSteps builds the teardown work-step set. The fetch stage resolves
// every identifier owned by the named dataset group up front; each later
// stage issues delete calls for one resource kind, in reverse-creation
// order so dependents are gone before their dependencies.
func CleanupSteps(client Client) pipeline.StepSet {
	c := &cleanupSteps{client: client}

	return pipeline.StepSet{
		models.StageFetchArn:     c.fetchARNs,
		models.StageCampaign:     c.deleteCampaigns,
		models.StageSolution:     c.deleteSolutions,
		models.StageEventTracker: c.deleteEventTrackers,
		models.StageDataset:      c.deleteDatasets,
		models.StageSchema:       c.deleteSchemas,
		models.StageDatasetGroup: c.deleteDatasetGroup,
	}
}

type cleanupSteps struct {
	client Client
}

func (c *cleanupSteps) fetchARNs(ctx context.Context, execCtx *models.ExecutionContext) error {
	name := execCtx.RequestString("name")
	if name == "" {
		return fmt.Errorf("%w: name", ErrMissingField)
	}

	groupARN, err := c.client.FindDatasetGroupByName(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to find dataset group %q: %w", name, err)
	}

	execCtx.AddResource(KeyDatasetGroup, groupARN)

	datasets, err := c.client.ListDatasets(ctx, groupARN)
	if err != nil {
		return fmt.Errorf("failed to list datasets: %w", err)
	}

	for _, dataset := range datasets {
		execCtx.AddResource(KeyDataset, dataset.ARN)
		execCtx.AddResource(KeySchema, dataset.SchemaARN)
	}

	trackers, err := c.client.ListEventTrackers(ctx, groupARN)
	if err != nil {
		return fmt.Errorf("failed to list event trackers: %w", err)
	}

	execCtx.AddResource(KeyEventTracker, trackers...)

	solutions, err := c.client.ListSolutions(ctx, groupARN)
	if err != nil {
		return fmt.Errorf("failed to list solutions: %w", err)
	}

	execCtx.AddResource(KeySolution, solutions...)

	for _, solutionARN := range solutions {
		campaigns, err := c.client.ListCampaigns(ctx, solutionARN)
		if err != nil {
			return fmt.Errorf("failed to list campaigns: %w", err)
		}

		execCtx.AddResource(KeyCampaign, campaigns...)
	}

	return nil
}

func (c *cleanupSteps) deleteCampaigns(ctx context.Context, execCtx *models.ExecutionContext) error {
	for _, arn := range execCtx.Resources[KeyCampaign] {
		err := c.client.DeleteCampaign(ctx, arn)
		if err != nil {
			return fmt.Errorf("failed to delete campaign %s: %w", arn, err)
		}
	}

	return nil
}

func (c *cleanupSteps) deleteSolutions(ctx context.Context, execCtx *models.ExecutionContext) error {
	for _, arn := range execCtx.Resources[KeySolution] {
		err := c.client.DeleteSolution(ctx, arn)
		if err != nil {
			return fmt.Errorf("failed to delete solution %s: %w", arn, err)
		}
	}

	return nil
}

func (c *cleanupSteps) deleteEventTrackers(ctx context.Context, execCtx *models.ExecutionContext) error {
	for _, arn := range execCtx.Resources[KeyEventTracker] {
		err := c.client.DeleteEventTracker(ctx, arn)
		if err != nil {
			return fmt.Errorf("failed to delete event tracker %s: %w", arn, err)
		}
	}

	return nil
}

func (c *cleanupSteps) deleteDatasets(ctx context.Context, execCtx *models.ExecutionContext) error {
	for _, arn := range execCtx.Resources[KeyDataset] {
		err := c.client.DeleteDataset(ctx, arn)
		if err != nil {
			return fmt.Errorf("failed to delete dataset %s: %w", arn, err)
		}
	}

	return nil
}

// deleteSchemas ignores individual delete errors: schemas may be shared
// with other groups and the external service rejects deleting those.
func (c *cleanupSteps) deleteSchemas(ctx context.Context, execCtx *models.ExecutionContext) error {
	for _, arn := range execCtx.Resources[KeySchema] {
		_ = c.client.DeleteSchema(ctx, arn)
	}

	return nil
}

func (c *cleanupSteps) deleteDatasetGroup(ctx context.Context, execCtx *models.ExecutionContext) error {
	arn := execCtx.Resource(KeyDatasetGroup)
	if arn == "" {
		return nil
	}

	err := c.client.DeleteDatasetGroup(ctx, arn)
	if err != nil {
		return fmt.Errorf("failed to delete dataset group %s: %w", arn, err)
	}

	return nil
}
