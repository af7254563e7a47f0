package personalize_test

import (
	"context"
	"testing"

	"github.com/recforge/recforge/pkg/models"
	"github.com/recforge/recforge/pkg/personalize"
	"github.com/recforge/recforge/pkg/personalize/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvisionPoller_ReportsPendingThenActive(t *testing.T) {
	client := fake.NewClient()
	client.PollsUntilActive = 2

	arn, err := client.CreateDatasetGroup(context.Background(), "shop", "")
	require.NoError(t, err)

	execCtx := newExecution(nil)
	execCtx.Stage = models.StageDatasetGroup
	execCtx.AddResource(personalize.KeyDatasetGroup, arn)

	poller := personalize.NewProvisionPoller(client)

	status, err := poller.Poll(context.Background(), execCtx)
	require.NoError(t, err)
	assert.NotEqual(t, models.StatusActive, status)

	// Becomes ACTIVE after enough polls.
	for range 3 {
		status, err = poller.Poll(context.Background(), execCtx)
		require.NoError(t, err)
	}

	assert.Equal(t, models.StatusActive, status)
}

func TestProvisionPoller_FailedResource(t *testing.T) {
	client := fake.NewClient()

	arn, err := client.CreateDatasetGroup(context.Background(), "shop", "")
	require.NoError(t, err)

	client.FailResource(arn)

	execCtx := newExecution(nil)
	execCtx.Stage = models.StageDatasetGroup
	execCtx.AddResource(personalize.KeyDatasetGroup, arn)

	status, err := personalize.NewProvisionPoller(client).Poll(context.Background(), execCtx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCreateFailed, status)
}

// A skipped campaign has an empty identifier and must poll as ready, or the
// execution would wait forever on a resource that was never created.
func TestProvisionPoller_SkippedCampaignIsActive(t *testing.T) {
	execCtx := newExecution(nil)
	execCtx.Stage = models.StageCampaign
	execCtx.AddResource(personalize.KeyCampaign, "")

	status, err := personalize.NewProvisionPoller(fake.NewClient()).Poll(context.Background(), execCtx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, status)
}

func TestProvisionPoller_SkippedOptionalDatasetsAreActive(t *testing.T) {
	poller := personalize.NewProvisionPoller(fake.NewClient())

	for _, tc := range []struct {
		stage models.Stage
		key   string
	}{
		{models.StageItemDataset, personalize.KeyItemDataset},
		{models.StageItemDatasetImport, personalize.KeyItemDatasetImport},
		{models.StageUserDataset, personalize.KeyUserDataset},
		{models.StageUserDatasetImport, personalize.KeyUserDatasetImport},
	} {
		execCtx := newExecution(nil)
		execCtx.Stage = tc.stage
		execCtx.AddResource(tc.key, "")

		status, err := poller.Poll(context.Background(), execCtx)
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, status, "stage %s", tc.stage)
	}
}

func TestProvisionPoller_UnknownStage(t *testing.T) {
	execCtx := newExecution(nil)
	execCtx.Stage = "NOT_A_STAGE"

	_, err := personalize.NewProvisionPoller(fake.NewClient()).Poll(context.Background(), execCtx)
	require.ErrorIs(t, err, personalize.ErrUnknownStage)
}

func TestCleanupPoller_FetchStageIsImmediatelyFetched(t *testing.T) {
	execCtx := newExecution(nil)
	execCtx.Stage = models.StageFetchArn

	status, err := personalize.NewCleanupPoller(fake.NewClient()).Poll(context.Background(), execCtx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFetched, status)
}

func TestCleanupPoller_DatasetsDrainToDeleted(t *testing.T) {
	ctx := context.Background()
	client := fake.NewClient()
	client.PollsUntilDeleted = 1

	groupARN, err := client.CreateDatasetGroup(ctx, "shop", "")
	require.NoError(t, err)

	datasetARN, err := client.CreateDataset(ctx, personalize.DatasetParams{
		GroupARN:  groupARN,
		Name:      "shop",
		SchemaARN: "arn:fake:schema/1",
	})
	require.NoError(t, err)

	execCtx := newExecution(nil)
	execCtx.Stage = models.StageDataset
	execCtx.AddResource(personalize.KeyDatasetGroup, groupARN)
	execCtx.AddResource(personalize.KeyDataset, datasetARN)

	poller := personalize.NewCleanupPoller(client)

	// Not deleted yet.
	status, err := poller.Poll(ctx, execCtx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeleting, status)

	require.NoError(t, client.DeleteDataset(ctx, datasetARN))

	// Drains after enough list polls.
	for range 3 {
		status, err = poller.Poll(ctx, execCtx)
		require.NoError(t, err)
	}

	assert.Equal(t, models.StatusDeleted, status)
}

func TestCleanupPoller_SchemaAndGroupAlwaysDeleted(t *testing.T) {
	poller := personalize.NewCleanupPoller(fake.NewClient())

	for _, stage := range []models.Stage{models.StageSchema, models.StageDatasetGroup} {
		execCtx := newExecution(nil)
		execCtx.Stage = stage

		status, err := poller.Poll(context.Background(), execCtx)
		require.NoError(t, err)
		assert.Equal(t, models.StatusDeleted, status)
	}
}

func TestCleanupSteps_FetchCollectsEverything(t *testing.T) {
	ctx := context.Background()
	client := fake.NewClient()

	groupARN, err := client.CreateDatasetGroup(ctx, "shop", "")
	require.NoError(t, err)

	_, err = client.CreateDataset(ctx, personalize.DatasetParams{
		GroupARN:  groupARN,
		Name:      "shop",
		SchemaARN: "arn:fake:schema/1",
	})
	require.NoError(t, err)

	solutionARN, err := client.CreateSolution(ctx, personalize.SolutionParams{
		GroupARN: groupARN,
		Name:     "shop",
	})
	require.NoError(t, err)

	versionARN, err := client.CreateSolutionVersion(ctx, solutionARN)
	require.NoError(t, err)

	_, err = client.CreateCampaign(ctx, personalize.CampaignParams{
		Name:               "shop",
		SolutionVersionARN: versionARN,
	})
	require.NoError(t, err)

	steps := personalize.CleanupSteps(client)

	execCtx := newExecution(map[string]any{"name": "shop"})

	require.NoError(t, steps[models.StageFetchArn](ctx, execCtx))

	assert.Equal(t, groupARN, execCtx.Resource(personalize.KeyDatasetGroup))
	assert.Len(t, execCtx.Resources[personalize.KeyDataset], 1)
	assert.Equal(t, []string{"arn:fake:schema/1"}, execCtx.Resources[personalize.KeySchema])
	assert.Len(t, execCtx.Resources[personalize.KeySolution], 1)
	assert.Len(t, execCtx.Resources[personalize.KeyCampaign], 1)
}

func TestCleanupSteps_FetchFailsForUnknownGroup(t *testing.T) {
	steps := personalize.CleanupSteps(fake.NewClient())

	err := steps[models.StageFetchArn](context.Background(), newExecution(map[string]any{"name": "ghost"}))
	require.Error(t, err)
}

func TestCleanupSteps_DeleteChainToleratesEmptyKinds(t *testing.T) {
	steps := personalize.CleanupSteps(fake.NewClient())
	ctx := context.Background()

	// Nothing fetched: every delete step must still pass so the chain
	// finishes for groups that never had the resource kind.
	execCtx := newExecution(map[string]any{"name": "shop"})

	for _, stage := range []models.Stage{
		models.StageCampaign,
		models.StageSolution,
		models.StageEventTracker,
		models.StageDataset,
		models.StageSchema,
		models.StageDatasetGroup,
	} {
		require.NoError(t, steps[stage](ctx, execCtx), "stage %s", stage)
	}
}
