// Package models defines the core domain models for pipeline orchestration.
package models

// Stage labels the pipeline step that most recently completed. Each work
// step stamps its own label on the execution context when it exits.
type Stage string

const (
	StageDatasetGroup      Stage = "DATASET_GROUP"
	StageDataset           Stage = "DATASET"
	StageDatasetImport     Stage = "DATASET_IMPORT"
	StageItemDataset       Stage = "ITEM_DATASET"
	StageItemDatasetImport Stage = "ITEM_DATASET_IMPORT"
	StageUserDataset       Stage = "USER_DATASET"
	StageUserDatasetImport Stage = "USER_DATASET_IMPORT"
	StageSolution          Stage = "SOLUTION"
	StageCampaign          Stage = "CAMPAIGN"
	StageRecommender       Stage = "RECOMMENDER"
	StageBatchInference    Stage = "BATCH_INFERENCE"
	StageBatchSegment      Stage = "BATCH_SEGMENT"

	// Cleanup-only stages.
	StageFetchArn     Stage = "FETCH_ARN"
	StageEventTracker Stage = "EVENT_TRACKER"
	StageSchema       Stage = "SCHEMA"
)

// ResourceStatus is the last-known state of the resource created in the
// current stage, as reported by the external provisioning service.
type ResourceStatus string

const (
	StatusActive       ResourceStatus = "ACTIVE"
	StatusCreateFailed ResourceStatus = "CREATE FAILED"
	StatusDeleted      ResourceStatus = "DELETED"
	StatusDeleting     ResourceStatus = "DELETING"
	StatusFetched      ResourceStatus = "FETCHED"

	// StatusInvalid is stamped by work steps right after a create call,
	// before the first poll has observed the real resource state.
	StatusInvalid ResourceStatus = "Invalid"
)
