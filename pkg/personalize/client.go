// Package personalize binds the generic pipeline engine to an external
// recommendation-service provisioning API. The Client interface is the
// boundary: every method is one opaque resource-creation, status, listing,
// or deletion call against the external system.
package personalize

import (
	"context"

	"github.com/recforge/recforge/pkg/models"
)

// Resource kinds accumulated on the execution context. Each work step adds
// entries under its own kind and never touches another step's.
const (
	KeyDatasetGroup      = "dataset_group_arn"
	KeyDataset           = "dataset_arn"
	KeyDatasetImport     = "dataset_import_job_arn"
	KeyItemDataset       = "item_dataset_arn"
	KeyItemDatasetImport = "item_dataset_import_job_arn"
	KeyUserDataset       = "user_dataset_arn"
	KeyUserDatasetImport = "user_dataset_import_job_arn"
	KeySolution          = "solution_arn"
	KeySolutionVersion   = "solution_version_arn"
	KeyCampaign          = "campaign_arn"
	KeyRecommender       = "recommender_arn"
	KeyBatchInference    = "batch_inference_job_arn"
	KeyBatchSegment      = "batch_segment_job_arn"
	KeyEventTracker      = "event_tracker_arn"
	KeySchema            = "schema_arn"
)

// Dataset describes one dataset inside a dataset group.
type Dataset struct {
	ARN       string
	SchemaARN string
}

// DatasetParams configures a create-dataset call.
type DatasetParams struct {
	GroupARN    string
	Name        string
	SchemaARN   string
	DatasetType string
}

// ImportParams configures a create-dataset-import-job call.
type ImportParams struct {
	DatasetARN string
	Name       string
	Bucket     string
	RoleARN    string
}

// SolutionParams configures a create-solution call.
type SolutionParams struct {
	GroupARN   string
	Name       string
	RecipeARN  string
	EventType  string
	PerformHPO bool
	Config     map[string]any
}

// CampaignParams configures a create-campaign call.
type CampaignParams struct {
	Name               string
	SolutionVersionARN string
	MinProvisionedTPS  int
	Config             map[string]any
}

// RecommenderParams configures a create-recommender call.
type RecommenderParams struct {
	GroupARN  string
	Name      string
	RecipeARN string
	Config    map[string]any
}

// BatchJobParams configures a batch inference or batch segment job.
type BatchJobParams struct {
	Name               string
	SolutionVersionARN string
	InputPath          string
	OutputPath         string
	RoleARN            string
	NumResults         int
	Config             map[string]any
}

// Client is the external provisioning boundary. Create calls are
// asynchronous on the remote side: they return a resource identifier
// immediately and the resource becomes ACTIVE (or fails) later. Describe
// and List calls are read-only and safe to repeat. Idempotency of the
// mutating calls is the external system's responsibility.
type Client interface {
	CreateDatasetGroup(ctx context.Context, name, domain string) (string, error)
	DescribeDatasetGroup(ctx context.Context, arn string) (models.ResourceStatus, error)

	CreateDataset(ctx context.Context, params DatasetParams) (string, error)
	DescribeDataset(ctx context.Context, arn string) (models.ResourceStatus, error)

	CreateDatasetImportJob(ctx context.Context, params ImportParams) (string, error)
	DescribeDatasetImportJob(ctx context.Context, arn string) (models.ResourceStatus, error)

	CreateSolution(ctx context.Context, params SolutionParams) (string, error)
	CreateSolutionVersion(ctx context.Context, solutionARN string) (string, error)
	DescribeSolutionVersion(ctx context.Context, arn string) (models.ResourceStatus, error)

	CreateCampaign(ctx context.Context, params CampaignParams) (string, error)
	DescribeCampaign(ctx context.Context, arn string) (models.ResourceStatus, error)

	CreateRecommender(ctx context.Context, params RecommenderParams) (string, error)
	DescribeRecommender(ctx context.Context, arn string) (models.ResourceStatus, error)

	CreateBatchInferenceJob(ctx context.Context, params BatchJobParams) (string, error)
	DescribeBatchInferenceJob(ctx context.Context, arn string) (models.ResourceStatus, error)

	CreateBatchSegmentJob(ctx context.Context, params BatchJobParams) (string, error)
	DescribeBatchSegmentJob(ctx context.Context, arn string) (models.ResourceStatus, error)

	FindDatasetGroupByName(ctx context.Context, name string) (string, error)
	ListDatasets(ctx context.Context, groupARN string) ([]Dataset, error)
	ListEventTrackers(ctx context.Context, groupARN string) ([]string, error)
	ListSolutions(ctx context.Context, groupARN string) ([]string, error)
	ListCampaigns(ctx context.Context, solutionARN string) ([]string, error)

	DeleteCampaign(ctx context.Context, arn string) error
	DeleteSolution(ctx context.Context, arn string) error
	DeleteEventTracker(ctx context.Context, arn string) error
	DeleteDataset(ctx context.Context, arn string) error
	DeleteSchema(ctx context.Context, arn string) error
	DeleteDatasetGroup(ctx context.Context, arn string) error
}

// Config carries the ambient identifiers the work steps need besides the
// caller request, injected at construction instead of read from the
// environment.
type Config struct {
	// RoleARN is passed to import and batch jobs so the external service
	// can read the caller's storage buckets.
	RoleARN string
}
