package pipeline

import (
	"time"

	"github.com/recforge/recforge/pkg/models"
)

// Pipeline identifiers, one per trigger endpoint.
const (
	SimilarItems        = "similar-items"
	Sims                = "sims"
	UserPersonalization = "user-personalization"
	MetadataDataset     = "metadata-dataset"
	InteractionDataset  = "interaction-dataset"
	Ranking             = "ranking"
	BatchInference      = "batch-inference"
	BatchSegment        = "batch-segment"
	TrainRecipe         = "train-recipe"
	TrainUsecase        = "train-usecase"
	Usecase             = "usecase"
	Cleanup             = "cleanup"
)

const (
	provisionPollInterval = 60 * time.Second
	cleanupPollInterval   = 30 * time.Second
	provisionBudget       = 24 * time.Hour
	cleanupBudget         = 10 * time.Hour
)

const (
	recipeSims                = "arn:aws:personalize:::recipe/aws-sims"
	recipeSimilarItems        = "arn:aws:personalize:::recipe/aws-similar-items"
	recipeUserPersonalization = "arn:aws:personalize:::recipe/aws-user-personalization"
	recipeRanking             = "arn:aws:personalize:::recipe/aws-personalized-ranking"
)

// Catalog returns every pipeline definition keyed by ID. The definitions
// are data only: all pipelines share the same engine and differ solely in
// their stage list, transition table, and timing envelope.
func Catalog() map[string]*Definition {
	defs := []*Definition{
		provision(SimilarItems,
			map[string]any{"recipe_arn": recipeSimilarItems},
			models.StageDatasetGroup,
			models.StageDataset,
			models.StageDatasetImport,
			models.StageSolution,
			models.StageCampaign,
		),
		provision(Sims,
			map[string]any{"recipe_arn": recipeSims},
			models.StageDatasetGroup,
			models.StageDatasetImport,
			models.StageSolution,
			models.StageCampaign,
		),
		provision(UserPersonalization,
			map[string]any{"recipe_arn": recipeUserPersonalization},
			models.StageDatasetGroup,
			models.StageDatasetImport,
			models.StageItemDatasetImport,
			models.StageUserDatasetImport,
			models.StageSolution,
			models.StageCampaign,
		),
		provision(MetadataDataset,
			map[string]any{"recipe_arn": recipeUserPersonalization},
			models.StageItemDatasetImport,
			models.StageUserDatasetImport,
			models.StageSolution,
			models.StageCampaign,
		),
		provision(InteractionDataset,
			nil,
			models.StageDataset,
			models.StageDatasetImport,
			models.StageSolution,
			models.StageCampaign,
		),
		provision(Ranking,
			map[string]any{"recipe_arn": recipeRanking},
			models.StageDatasetGroup,
			models.StageDatasetImport,
			models.StageSolution,
			models.StageCampaign,
		),
		provision(BatchInference, nil, models.StageBatchInference),
		provision(BatchSegment, nil, models.StageBatchSegment),
		provision(TrainRecipe, nil, models.StageSolution, models.StageCampaign),
		provision(TrainUsecase, nil, models.StageRecommender),
		provision(Usecase,
			nil,
			models.StageDatasetGroup,
			models.StageDataset,
			models.StageDatasetImport,
			models.StageItemDataset,
			models.StageItemDatasetImport,
			models.StageUserDataset,
			models.StageUserDatasetImport,
			models.StageRecommender,
		),
		cleanup(),
	}

	catalog := make(map[string]*Definition, len(defs))
	for _, def := range defs {
		catalog[def.ID] = def
	}

	return catalog
}

// provision builds a create-resource pipeline: each stage advances on
// ACTIVE, the last stage publishes success, and CREATE FAILED from any
// stage publishes failure.
func provision(id string, defaults map[string]any, stages ...models.Stage) *Definition {
	return &Definition{
		ID:            id,
		Family:        FamilyProvision,
		Stages:        stages,
		Rules:         chain(stages, models.StatusActive),
		FailureStatus: models.StatusCreateFailed,
		PollInterval:  provisionPollInterval,
		Budget:        provisionBudget,
		Defaults:      defaults,
	}
}

// cleanup walks the resource dependency chain in reverse-creation order:
// each deletion requires its dependents already gone, so every stage
// advances only once the poller confirms DELETED. There is no global
// failure status; besides step errors, only the wall-clock budget fails a
// cleanup run.
func cleanup() *Definition {
	stages := []models.Stage{
		models.StageFetchArn,
		models.StageCampaign,
		models.StageSolution,
		models.StageEventTracker,
		models.StageDataset,
		models.StageSchema,
		models.StageDatasetGroup,
	}

	rules := []Rule{{
		Stage:  models.StageFetchArn,
		Status: models.StatusFetched,
		Action: Action{Type: ActionAdvance, Next: models.StageCampaign},
	}}
	rules = append(rules, chain(stages[1:], models.StatusDeleted)...)

	return &Definition{
		ID:           Cleanup,
		Family:       FamilyCleanup,
		Stages:       stages,
		Rules:        rules,
		PollInterval: cleanupPollInterval,
		Budget:       cleanupBudget,
	}
}
