package personalize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/recforge/recforge/pkg/models"
	"github.com/recforge/recforge/pkg/pipeline"
)

const (
	recipeARNPrefix = "arn:aws:personalize:::recipe/"
	s3Prefix        = "s3://"

	defaultBatchResults      = 25
	defaultMinProvisionedTPS = 1
)

var (
	// ErrMissingField indicates a required request field was absent.
	ErrMissingField = errors.New("missing request field")

	// ErrInvalidRecipe indicates a recipe identifier outside the expected namespace.
	ErrInvalidRecipe = errors.New("invalid recipe arn")

	// ErrInvalidPath indicates a batch job path outside object storage.
	ErrInvalidPath = errors.New("invalid storage path")
)

// Steps builds the provisioning work-step set. Every step performs exactly
// one create call, appends the resulting identifier under its own resource
// kind, and leaves readiness to the poller.
func Steps(client Client, cfg Config) pipeline.StepSet {
	s := &steps{client: client, cfg: cfg}

	return pipeline.StepSet{
		models.StageDatasetGroup:      s.createDatasetGroup,
		models.StageDataset:           s.createDataset,
		models.StageDatasetImport:     s.createDatasetImport,
		models.StageItemDataset:       s.createItemDataset,
		models.StageItemDatasetImport: s.createItemDatasetImport,
		models.StageUserDataset:       s.createUserDataset,
		models.StageUserDatasetImport: s.createUserDatasetImport,
		models.StageSolution:          s.createSolution,
		models.StageCampaign:          s.createCampaign,
		models.StageRecommender:       s.createRecommender,
		models.StageBatchInference:    s.createBatchInference,
		models.StageBatchSegment:      s.createBatchSegment,
	}
}

type steps struct {
	client Client
	cfg    Config
}

func (s *steps) createDatasetGroup(ctx context.Context, execCtx *models.ExecutionContext) error {
	name := execCtx.RequestString("name")
	if name == "" {
		return fmt.Errorf("%w: name", ErrMissingField)
	}

	arn, err := s.client.CreateDatasetGroup(ctx, name, execCtx.RequestString("domain"))
	if err != nil {
		return fmt.Errorf("failed to create dataset group: %w", err)
	}

	execCtx.AddResource(KeyDatasetGroup, arn)

	return nil
}

// groupARN resolves the dataset group the execution works against: created
// earlier in this run, or named in the request for pipelines that start
// mid-chain against an existing group.
func (s *steps) groupARN(execCtx *models.ExecutionContext) (string, error) {
	if arn := execCtx.Resource(KeyDatasetGroup); arn != "" {
		return arn, nil
	}

	if arn := execCtx.RequestString(KeyDatasetGroup); arn != "" {
		return arn, nil
	}

	return "", fmt.Errorf("%w: %s", ErrMissingField, KeyDatasetGroup)
}

func (s *steps) createDataset(ctx context.Context, execCtx *models.ExecutionContext) error {
	groupARN, err := s.groupARN(execCtx)
	if err != nil {
		return err
	}

	arn, err := s.client.CreateDataset(ctx, DatasetParams{
		GroupARN:    groupARN,
		Name:        execCtx.RequestString("name"),
		SchemaARN:   execCtx.RequestString("schema_arn"),
		DatasetType: "Interactions",
	})
	if err != nil {
		return fmt.Errorf("failed to create dataset: %w", err)
	}

	execCtx.AddResource(KeyDataset, arn)

	return nil
}

func (s *steps) createDatasetImport(ctx context.Context, execCtx *models.ExecutionContext) error {
	// Pipelines without a separate dataset stage create the dataset here,
	// immediately before its import job.
	datasetARN := execCtx.Resource(KeyDataset)
	if datasetARN == "" {
		err := s.createDataset(ctx, execCtx)
		if err != nil {
			return err
		}

		datasetARN = execCtx.Resource(KeyDataset)
	}

	bucket := execCtx.RequestString("bucket")
	if bucket == "" {
		return fmt.Errorf("%w: bucket", ErrMissingField)
	}

	arn, err := s.client.CreateDatasetImportJob(ctx, ImportParams{
		DatasetARN: datasetARN,
		Name:       execCtx.RequestString("name"),
		Bucket:     bucket,
		RoleARN:    s.cfg.RoleARN,
	})
	if err != nil {
		return fmt.Errorf("failed to create dataset import job: %w", err)
	}

	execCtx.AddResource(KeyDatasetImport, arn)

	return nil
}

// createItemDataset provisions the optional item metadata dataset. When the
// request carries no item bucket the step records an empty identifier, which
// the poller reads as immediately ready.
func (s *steps) createItemDataset(ctx context.Context, execCtx *models.ExecutionContext) error {
	if execCtx.RequestString("item_bucket") == "" {
		execCtx.AddResource(KeyItemDataset, "")

		return nil
	}

	groupARN, err := s.groupARN(execCtx)
	if err != nil {
		return err
	}

	arn, err := s.client.CreateDataset(ctx, DatasetParams{
		GroupARN:    groupARN,
		Name:        execCtx.RequestString("name") + "-items",
		SchemaARN:   execCtx.RequestString("item_schema_arn"),
		DatasetType: "Items",
	})
	if err != nil {
		return fmt.Errorf("failed to create item dataset: %w", err)
	}

	execCtx.AddResource(KeyItemDataset, arn)

	return nil
}

func (s *steps) createItemDatasetImport(ctx context.Context, execCtx *models.ExecutionContext) error {
	bucket := execCtx.RequestString("item_bucket")
	if bucket == "" {
		execCtx.AddResource(KeyItemDatasetImport, "")

		return nil
	}

	datasetARN := execCtx.Resource(KeyItemDataset)
	if datasetARN == "" {
		err := s.createItemDataset(ctx, execCtx)
		if err != nil {
			return err
		}

		datasetARN = execCtx.Resource(KeyItemDataset)
	}

	arn, err := s.client.CreateDatasetImportJob(ctx, ImportParams{
		DatasetARN: datasetARN,
		Name:       execCtx.RequestString("name") + "-items",
		Bucket:     bucket,
		RoleARN:    s.cfg.RoleARN,
	})
	if err != nil {
		return fmt.Errorf("failed to create item dataset import job: %w", err)
	}

	execCtx.AddResource(KeyItemDatasetImport, arn)

	return nil
}

func (s *steps) createUserDataset(ctx context.Context, execCtx *models.ExecutionContext) error {
	if execCtx.RequestString("user_bucket") == "" {
		execCtx.AddResource(KeyUserDataset, "")

		return nil
	}

	groupARN, err := s.groupARN(execCtx)
	if err != nil {
		return err
	}

	arn, err := s.client.CreateDataset(ctx, DatasetParams{
		GroupARN:    groupARN,
		Name:        execCtx.RequestString("name") + "-users",
		SchemaARN:   execCtx.RequestString("user_schema_arn"),
		DatasetType: "Users",
	})
	if err != nil {
		return fmt.Errorf("failed to create user dataset: %w", err)
	}

	execCtx.AddResource(KeyUserDataset, arn)

	return nil
}

func (s *steps) createUserDatasetImport(ctx context.Context, execCtx *models.ExecutionContext) error {
	bucket := execCtx.RequestString("user_bucket")
	if bucket == "" {
		execCtx.AddResource(KeyUserDatasetImport, "")

		return nil
	}

	datasetARN := execCtx.Resource(KeyUserDataset)
	if datasetARN == "" {
		err := s.createUserDataset(ctx, execCtx)
		if err != nil {
			return err
		}

		datasetARN = execCtx.Resource(KeyUserDataset)
	}

	arn, err := s.client.CreateDatasetImportJob(ctx, ImportParams{
		DatasetARN: datasetARN,
		Name:       execCtx.RequestString("name") + "-users",
		Bucket:     bucket,
		RoleARN:    s.cfg.RoleARN,
	})
	if err != nil {
		return fmt.Errorf("failed to create user dataset import job: %w", err)
	}

	execCtx.AddResource(KeyUserDatasetImport, arn)

	return nil
}

func (s *steps) createSolution(ctx context.Context, execCtx *models.ExecutionContext) error {
	recipeARN := execCtx.RequestString("recipe_arn")
	if !strings.HasPrefix(recipeARN, recipeARNPrefix) {
		return fmt.Errorf("%w: %q", ErrInvalidRecipe, recipeARN)
	}

	groupARN, err := s.groupARN(execCtx)
	if err != nil {
		return err
	}

	config, _ := execCtx.Request["solution_config"].(map[string]any)

	solutionARN, err := s.client.CreateSolution(ctx, SolutionParams{
		GroupARN:   groupARN,
		Name:       execCtx.RequestString("name"),
		RecipeARN:  recipeARN,
		EventType:  execCtx.RequestString("event_type"),
		PerformHPO: execCtx.RequestBool("perform_hpo"),
		Config:     config,
	})
	if err != nil {
		return fmt.Errorf("failed to create solution: %w", err)
	}

	execCtx.AddResource(KeySolution, solutionARN)

	versionARN, err := s.client.CreateSolutionVersion(ctx, solutionARN)
	if err != nil {
		return fmt.Errorf("failed to create solution version: %w", err)
	}

	execCtx.AddResource(KeySolutionVersion, versionARN)

	return nil
}

// createCampaign deploys the trained solution version. A request without
// deploy=true records an empty identifier instead of creating anything, so
// training-only runs still finish through the same stage graph.
func (s *steps) createCampaign(ctx context.Context, execCtx *models.ExecutionContext) error {
	if !execCtx.RequestBool("deploy") {
		execCtx.AddResource(KeyCampaign, "")

		return nil
	}

	versionARN := execCtx.Resource(KeySolutionVersion)
	if versionARN == "" {
		return fmt.Errorf("%w: %s", ErrMissingField, KeySolutionVersion)
	}

	name := execCtx.RequestString("name")
	if suffix := execCtx.RequestString("suffix"); suffix != "" {
		name = name + "-" + suffix
	}

	config, _ := execCtx.Request["campaign_config"].(map[string]any)

	arn, err := s.client.CreateCampaign(ctx, CampaignParams{
		Name:               name,
		SolutionVersionARN: versionARN,
		MinProvisionedTPS:  defaultMinProvisionedTPS,
		Config:             config,
	})
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	execCtx.AddResource(KeyCampaign, arn)

	return nil
}

func (s *steps) createRecommender(ctx context.Context, execCtx *models.ExecutionContext) error {
	groupARN, err := s.groupARN(execCtx)
	if err != nil {
		return err
	}

	recipeARN := execCtx.RequestString("recipe_arn")
	if !strings.HasPrefix(recipeARN, recipeARNPrefix) {
		return fmt.Errorf("%w: %q", ErrInvalidRecipe, recipeARN)
	}

	config, _ := execCtx.Request["recommender_config"].(map[string]any)

	arn, err := s.client.CreateRecommender(ctx, RecommenderParams{
		GroupARN:  groupARN,
		Name:      execCtx.RequestString("name"),
		RecipeARN: recipeARN,
		Config:    config,
	})
	if err != nil {
		return fmt.Errorf("failed to create recommender: %w", err)
	}

	execCtx.AddResource(KeyRecommender, arn)

	return nil
}

func (s *steps) batchParams(execCtx *models.ExecutionContext) (BatchJobParams, error) {
	input := execCtx.RequestString("input_path")
	output := execCtx.RequestString("output_path")

	if !strings.HasPrefix(input, s3Prefix) || !strings.HasPrefix(output, s3Prefix) {
		return BatchJobParams{}, fmt.Errorf("%w: input %q output %q", ErrInvalidPath, input, output)
	}

	versionARN := execCtx.RequestString(KeySolutionVersion)
	if versionARN == "" {
		versionARN = execCtx.Resource(KeySolutionVersion)
	}

	if versionARN == "" {
		return BatchJobParams{}, fmt.Errorf("%w: %s", ErrMissingField, KeySolutionVersion)
	}

	numResults := defaultBatchResults
	if v, ok := execCtx.Request["num_results"].(float64); ok && v > 0 {
		numResults = int(v)
	}

	return BatchJobParams{
		Name:               execCtx.RequestString("name"),
		SolutionVersionARN: versionARN,
		InputPath:          input,
		OutputPath:         output,
		RoleARN:            s.cfg.RoleARN,
		NumResults:         numResults,
	}, nil
}

func (s *steps) createBatchInference(ctx context.Context, execCtx *models.ExecutionContext) error {
	params, err := s.batchParams(execCtx)
	if err != nil {
		return err
	}

	arn, err := s.client.CreateBatchInferenceJob(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to create batch inference job: %w", err)
	}

	execCtx.AddResource(KeyBatchInference, arn)

	return nil
}

func (s *steps) createBatchSegment(ctx context.Context, execCtx *models.ExecutionContext) error {
	params, err := s.batchParams(execCtx)
	if err != nil {
		return err
	}

	arn, err := s.client.CreateBatchSegmentJob(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to create batch segment job: %w", err)
	}

	execCtx.AddResource(KeyBatchSegment, arn)

	return nil
}
