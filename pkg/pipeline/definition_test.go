package pipeline

import (
	"testing"

	"github.com/recforge/recforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoute_MatchesRuleOnStageAndStatus(t *testing.T) {
	def := &Definition{
		Rules: []Rule{
			{
				Stage:  models.StageDatasetGroup,
				Status: models.StatusActive,
				Action: Action{Type: ActionAdvance, Next: models.StageDataset},
			},
		},
	}

	action := def.Route(models.StageDatasetGroup, models.StatusActive)
	assert.Equal(t, ActionAdvance, action.Type)
	assert.Equal(t, models.StageDataset, action.Next)
}

func TestRoute_FirstMatchingRuleWins(t *testing.T) {
	def := &Definition{
		Rules: []Rule{
			{
				Stage:  models.StageSolution,
				Status: models.StatusActive,
				Action: Action{Type: ActionAdvance, Next: models.StageCampaign},
			},
			{
				Stage:  models.StageSolution,
				Status: models.StatusActive,
				Action: Action{Type: ActionFail},
			},
		},
	}

	action := def.Route(models.StageSolution, models.StatusActive)
	assert.Equal(t, ActionAdvance, action.Type)
}

func TestRoute_GlobalFailureGuardAppliesFromAnyStage(t *testing.T) {
	def := &Definition{
		Rules: []Rule{
			{
				Stage:  models.StageDatasetGroup,
				Status: models.StatusActive,
				Action: Action{Type: ActionAdvance, Next: models.StageSolution},
			},
		},
		FailureStatus: models.StatusCreateFailed,
	}

	for _, stage := range []models.Stage{models.StageDatasetGroup, models.StageSolution, models.StageCampaign} {
		action := def.Route(stage, models.StatusCreateFailed)
		assert.Equal(t, ActionFail, action.Type, "stage %s", stage)
	}
}

func TestRoute_ExplicitRuleShadowsFailureGuard(t *testing.T) {
	def := &Definition{
		Rules: []Rule{
			{
				Stage:  models.StageDatasetGroup,
				Status: models.StatusCreateFailed,
				Action: Action{Type: ActionWait},
			},
		},
		FailureStatus: models.StatusCreateFailed,
	}

	action := def.Route(models.StageDatasetGroup, models.StatusCreateFailed)
	assert.Equal(t, ActionWait, action.Type)
}

func TestRoute_UnmodeledPairDefaultsToWait(t *testing.T) {
	def := &Definition{
		Rules: []Rule{
			{
				Stage:  models.StageDatasetGroup,
				Status: models.StatusActive,
				Action: Action{Type: ActionSucceed},
			},
		},
		FailureStatus: models.StatusCreateFailed,
	}

	assert.Equal(t, ActionWait, def.Route(models.StageDatasetGroup, "CREATE PENDING").Type)
	assert.Equal(t, ActionWait, def.Route(models.StageDatasetGroup, "SOME FUTURE STATUS").Type)
	assert.Equal(t, ActionWait, def.Route("UNKNOWN_STAGE", models.StatusActive).Type)
}

func TestRoute_NoFailureGuardWhenUnset(t *testing.T) {
	def := &Definition{}

	assert.Equal(t, ActionWait, def.Route(models.StageDataset, models.StatusCreateFailed).Type)
}

func TestRoute_IsPure(t *testing.T) {
	def := Catalog()[SimilarItems]

	first := def.Route(models.StageDatasetGroup, models.StatusActive)
	for range 10 {
		assert.Equal(t, first, def.Route(models.StageDatasetGroup, models.StatusActive))
	}
}

func TestChain_LastStageSucceeds(t *testing.T) {
	stages := []models.Stage{models.StageSolution, models.StageCampaign}
	rules := chain(stages, models.StatusActive)

	require.Len(t, rules, 2)
	assert.Equal(t, ActionAdvance, rules[0].Action.Type)
	assert.Equal(t, models.StageCampaign, rules[0].Action.Next)
	assert.Equal(t, ActionSucceed, rules[1].Action.Type)
}

func TestCatalog_ContainsAllPipelines(t *testing.T) {
	catalog := Catalog()

	ids := []string{
		SimilarItems, Sims, UserPersonalization, MetadataDataset,
		InteractionDataset, Ranking, BatchInference, BatchSegment,
		TrainRecipe, TrainUsecase, Usecase, Cleanup,
	}

	require.Len(t, catalog, len(ids))

	for _, id := range ids {
		def, ok := catalog[id]
		require.True(t, ok, "missing pipeline %s", id)
		assert.Equal(t, id, def.ID)
		assert.NotEmpty(t, def.Stages)
		assert.Positive(t, def.PollInterval)
		assert.Positive(t, def.Budget)
	}
}

func TestCatalog_SimilarItemsStageOrder(t *testing.T) {
	def := Catalog()[SimilarItems]

	assert.Equal(t, []models.Stage{
		models.StageDatasetGroup,
		models.StageDataset,
		models.StageDatasetImport,
		models.StageSolution,
		models.StageCampaign,
	}, def.Stages)
	assert.Equal(t, models.StageDatasetGroup, def.Start())
	assert.Equal(t, models.StatusCreateFailed, def.FailureStatus)
	assert.Equal(t, FamilyProvision, def.Family)
}

func TestCatalog_ProvisionChainWalk(t *testing.T) {
	def := Catalog()[UserPersonalization]

	stage := def.Start()
	visited := []models.Stage{stage}

	for {
		action := def.Route(stage, models.StatusActive)
		if action.Type != ActionAdvance {
			require.Equal(t, ActionSucceed, action.Type)

			break
		}

		stage = action.Next
		visited = append(visited, stage)
	}

	assert.Equal(t, def.Stages, visited)
}

func TestCatalog_RecipeDefaults(t *testing.T) {
	catalog := Catalog()

	assert.Equal(t, recipeSimilarItems, catalog[SimilarItems].Defaults["recipe_arn"])
	assert.Equal(t, recipeSims, catalog[Sims].Defaults["recipe_arn"])
	assert.Equal(t, recipeUserPersonalization, catalog[UserPersonalization].Defaults["recipe_arn"])
	assert.Equal(t, recipeRanking, catalog[Ranking].Defaults["recipe_arn"])
}

func TestCatalog_Cleanup(t *testing.T) {
	def := Catalog()[Cleanup]

	assert.Equal(t, FamilyCleanup, def.Family)
	assert.Equal(t, models.StageFetchArn, def.Start())
	assert.Empty(t, def.FailureStatus)
	assert.Equal(t, cleanupPollInterval, def.PollInterval)
	assert.Equal(t, cleanupBudget, def.Budget)

	// FETCH_ARN advances on FETCHED, not DELETED.
	action := def.Route(models.StageFetchArn, models.StatusFetched)
	require.Equal(t, ActionAdvance, action.Type)
	assert.Equal(t, models.StageCampaign, action.Next)

	// CREATE FAILED means nothing during cleanup.
	assert.Equal(t, ActionWait, def.Route(models.StageCampaign, models.StatusCreateFailed).Type)

	// The delete chain walks on DELETED and ends at the dataset group.
	action = def.Route(models.StageCampaign, models.StatusDeleted)
	require.Equal(t, ActionAdvance, action.Type)
	assert.Equal(t, models.StageSolution, action.Next)

	assert.Equal(t, ActionSucceed, def.Route(models.StageDatasetGroup, models.StatusDeleted).Type)
}
