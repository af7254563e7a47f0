package file

import (
	"context"
	"testing"
	"time"

	"github.com/recforge/recforge/pkg/models"
	"github.com/recforge/recforge/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionRepository_SaveAndGetByID(t *testing.T) {
	tempDir := t.TempDir()
	persist := NewPersistence(tempDir)
	ctx := context.Background()

	wakeAt := time.Now().UTC().Add(time.Minute)
	execCtx := &models.ExecutionContext{
		ID:         "exec-123",
		PipelineID: "similar-items",
		Stage:      models.StageDatasetGroup,
		Status:     models.StatusActive,
		Resources: map[string][]string{
			"dataset_group_arn": {"arn:fake:dataset-group/1"},
		},
		Request: map[string]any{
			"name":   "shop",
			"deploy": true,
		},
		State:     models.ExecutionStateWaiting,
		WakeAt:    &wakeAt,
		StartedAt: time.Now().UTC(),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	repo := persist.Executions()
	require.NoError(t, repo.Save(ctx, execCtx))

	retrieved, err := repo.GetByID(ctx, "exec-123")
	require.NoError(t, err)

	assert.Equal(t, "exec-123", retrieved.ID)
	assert.Equal(t, "similar-items", retrieved.PipelineID)
	assert.Equal(t, models.StageDatasetGroup, retrieved.Stage)
	assert.Equal(t, models.StatusActive, retrieved.Status)
	assert.Equal(t, []string{"arn:fake:dataset-group/1"}, retrieved.Resources["dataset_group_arn"])
	assert.Equal(t, "shop", retrieved.Request["name"])
	assert.Equal(t, models.ExecutionStateWaiting, retrieved.State)
	require.NotNil(t, retrieved.WakeAt)
	assert.WithinDuration(t, wakeAt, *retrieved.WakeAt, time.Second)
}

func TestExecutionRepository_SaveOverwrites(t *testing.T) {
	persist := NewPersistence(t.TempDir())
	ctx := context.Background()
	repo := persist.Executions()

	execCtx := &models.ExecutionContext{
		ID:         "exec-update",
		PipelineID: "sims",
		State:      models.ExecutionStateRunning,
	}
	require.NoError(t, repo.Save(ctx, execCtx))

	execCtx.State = models.ExecutionStateCompleted
	execCtx.Stage = models.StageCampaign
	require.NoError(t, repo.Save(ctx, execCtx))

	retrieved, err := repo.GetByID(ctx, "exec-update")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStateCompleted, retrieved.State)
	assert.Equal(t, models.StageCampaign, retrieved.Stage)
}

func TestExecutionRepository_GetByIDNotFound(t *testing.T) {
	persist := NewPersistence(t.TempDir())

	_, err := persist.Executions().GetByID(context.Background(), "exec-missing")
	require.Error(t, err)
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestExecutionRepository_RejectsPathTraversal(t *testing.T) {
	persist := NewPersistence(t.TempDir())
	repo := persist.Executions()

	for _, id := range []string{"", "../escape", "a/b", `a\b`} {
		_, err := repo.GetByID(context.Background(), id)
		require.ErrorIs(t, err, persistence.ErrInvalidExecutionID, "id %q", id)
	}
}

func TestExecutionRepository_ClaimIsExclusive(t *testing.T) {
	persist := NewPersistence(t.TempDir())
	ctx := context.Background()
	repo := persist.Executions()

	updatedAt := time.Now().UTC()
	execCtx := &models.ExecutionContext{
		ID:         "exec-claim",
		PipelineID: "sims",
		State:      models.ExecutionStateWaiting,
		UpdatedAt:  updatedAt,
	}
	require.NoError(t, repo.Save(ctx, execCtx))

	claimed, err := repo.Claim(ctx, "exec-claim", updatedAt)
	require.NoError(t, err)
	assert.True(t, claimed)

	// The claim bumped updated_at, so a second claimant holding the same
	// snapshot loses.
	claimed, err = repo.Claim(ctx, "exec-claim", updatedAt)
	require.NoError(t, err)
	assert.False(t, claimed)

	// Reloading picks up the fresh updated_at and can claim again.
	reloaded, err := repo.GetByID(ctx, "exec-claim")
	require.NoError(t, err)

	claimed, err = repo.Claim(ctx, "exec-claim", reloaded.UpdatedAt)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestExecutionRepository_ListByPipeline(t *testing.T) {
	persist := NewPersistence(t.TempDir())
	ctx := context.Background()
	repo := persist.Executions()

	for _, e := range []*models.ExecutionContext{
		{ID: "exec-1", PipelineID: "sims", State: models.ExecutionStateRunning},
		{ID: "exec-2", PipelineID: "sims", State: models.ExecutionStateCompleted},
		{ID: "exec-3", PipelineID: "ranking", State: models.ExecutionStateRunning},
	} {
		require.NoError(t, repo.Save(ctx, e))
	}

	executions, err := repo.ListByPipeline(ctx, "sims")
	require.NoError(t, err)
	assert.Len(t, executions, 2)

	executions, err = repo.ListByPipeline(ctx, "cleanup")
	require.NoError(t, err)
	assert.Empty(t, executions)
}

func TestExecutionRepository_ListByState(t *testing.T) {
	persist := NewPersistence(t.TempDir())
	ctx := context.Background()
	repo := persist.Executions()

	for _, e := range []*models.ExecutionContext{
		{ID: "exec-1", PipelineID: "sims", State: models.ExecutionStateWaiting},
		{ID: "exec-2", PipelineID: "sims", State: models.ExecutionStateFailed},
	} {
		require.NoError(t, repo.Save(ctx, e))
	}

	executions, err := repo.ListByState(ctx, models.ExecutionStateFailed)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, "exec-2", executions[0].ID)
}

func TestExecutionRepository_ListDue(t *testing.T) {
	persist := NewPersistence(t.TempDir())
	ctx := context.Background()
	repo := persist.Executions()

	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	earlier := now.Add(-2 * time.Minute)
	future := now.Add(time.Hour)

	for _, e := range []*models.ExecutionContext{
		{ID: "exec-due", PipelineID: "sims", State: models.ExecutionStateWaiting, WakeAt: &past},
		{ID: "exec-earlier", PipelineID: "sims", State: models.ExecutionStateWaiting, WakeAt: &earlier},
		{ID: "exec-future", PipelineID: "sims", State: models.ExecutionStateWaiting, WakeAt: &future},
		{ID: "exec-done", PipelineID: "sims", State: models.ExecutionStateCompleted, WakeAt: &past},
	} {
		require.NoError(t, repo.Save(ctx, e))
	}

	due, err := repo.ListDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)

	// Oldest checkpoint first.
	assert.Equal(t, "exec-earlier", due[0].ID)
	assert.Equal(t, "exec-due", due[1].ID)

	// Limit caps the batch.
	due, err = repo.ListDue(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "exec-earlier", due[0].ID)
}

func TestPersistence_HealthCheck(t *testing.T) {
	persist := NewPersistence(t.TempDir())
	require.NoError(t, persist.HealthCheck(context.Background()))

	missing := NewPersistence("/nonexistent/recforge-test")
	require.Error(t, missing.HealthCheck(context.Background()))
}
