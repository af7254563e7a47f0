package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/recforge/recforge/pkg/models"
	"github.com/recforge/recforge/pkg/persistence"
	"github.com/recforge/recforge/pkg/persistence/postgresql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"executions", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("recforge_test"),
			postgres.WithUsername("recforge"),
			postgres.WithPassword("recforge"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	persist, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = persist.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return persist, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'executions')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "executions table should exist")

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'schema_migrations')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "schema_migrations table should exist")

	var version int

	err = db.QueryRowContext(ctx, "SELECT version FROM schema_migrations WHERE version = 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestExecutionRepository_SaveAndGetByID(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.Executions()

	wakeAt := time.Now().UTC().Truncate(time.Millisecond).Add(time.Minute)
	execCtx := &models.ExecutionContext{
		ID:         "exec-pg-1",
		PipelineID: "similar-items",
		Stage:      models.StageSolution,
		Status:     models.StatusActive,
		Resources: map[string][]string{
			"dataset_group_arn": {"arn:fake:dataset-group/1"},
			"solution_arn":      {"arn:fake:solution/1"},
		},
		Request:   map[string]any{"name": "shop", "deploy": true},
		State:     models.ExecutionStateWaiting,
		WakeAt:    &wakeAt,
		StartedAt: time.Now().UTC().Truncate(time.Millisecond),
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	require.NoError(t, repo.Save(ctx, execCtx))

	retrieved, err := repo.GetByID(ctx, "exec-pg-1")
	require.NoError(t, err)

	assert.Equal(t, "exec-pg-1", retrieved.ID)
	assert.Equal(t, "similar-items", retrieved.PipelineID)
	assert.Equal(t, models.StageSolution, retrieved.Stage)
	assert.Equal(t, models.StatusActive, retrieved.Status)
	assert.Equal(t, []string{"arn:fake:solution/1"}, retrieved.Resources["solution_arn"])
	assert.Equal(t, "shop", retrieved.Request["name"])
	assert.Equal(t, models.ExecutionStateWaiting, retrieved.State)
	require.NotNil(t, retrieved.WakeAt)
	assert.WithinDuration(t, wakeAt, *retrieved.WakeAt, time.Second)
}

func TestExecutionRepository_SaveUpserts(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.Executions()

	execCtx := &models.ExecutionContext{
		ID:         "exec-pg-2",
		PipelineID: "sims",
		State:      models.ExecutionStateRunning,
		StartedAt:  time.Now().UTC(),
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	require.NoError(t, repo.Save(ctx, execCtx))

	completedAt := time.Now().UTC()
	execCtx.State = models.ExecutionStateFailed
	execCtx.Error = &models.ExecutionError{
		Cause:   "resource_failed",
		Stage:   models.StageSolution,
		Message: "solution entered CREATE FAILED",
	}
	execCtx.CompletedAt = &completedAt
	require.NoError(t, repo.Save(ctx, execCtx))

	retrieved, err := repo.GetByID(ctx, "exec-pg-2")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStateFailed, retrieved.State)
	require.NotNil(t, retrieved.Error)
	assert.Equal(t, "resource_failed", retrieved.Error.Cause)
	require.NotNil(t, retrieved.CompletedAt)
}

func TestExecutionRepository_ClaimIsExclusive(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.Executions()

	now := time.Now().UTC()
	execCtx := &models.ExecutionContext{
		ID:         "exec-pg-claim",
		PipelineID: "sims",
		State:      models.ExecutionStateWaiting,
		StartedAt:  now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, repo.Save(ctx, execCtx))

	stored, err := repo.GetByID(ctx, "exec-pg-claim")
	require.NoError(t, err)

	claimed, err := repo.Claim(ctx, "exec-pg-claim", stored.UpdatedAt)
	require.NoError(t, err)
	assert.True(t, claimed)

	// The claim bumped updated_at; the same snapshot cannot claim twice.
	claimed, err = repo.Claim(ctx, "exec-pg-claim", stored.UpdatedAt)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestExecutionRepository_GetByIDNotFound(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	_, err := p.Executions().GetByID(ctx, "exec-missing")
	require.Error(t, err)
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestExecutionRepository_ListByPipelineAndState(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.Executions()

	now := time.Now().UTC()
	for _, e := range []*models.ExecutionContext{
		{ID: "exec-a", PipelineID: "sims", State: models.ExecutionStateRunning, StartedAt: now, CreatedAt: now, UpdatedAt: now},
		{ID: "exec-b", PipelineID: "sims", State: models.ExecutionStateCompleted, StartedAt: now, CreatedAt: now, UpdatedAt: now},
		{ID: "exec-c", PipelineID: "ranking", State: models.ExecutionStateRunning, StartedAt: now, CreatedAt: now, UpdatedAt: now},
	} {
		require.NoError(t, repo.Save(ctx, e))
	}

	byPipeline, err := repo.ListByPipeline(ctx, "sims")
	require.NoError(t, err)
	assert.Len(t, byPipeline, 2)

	byState, err := repo.ListByState(ctx, models.ExecutionStateCompleted)
	require.NoError(t, err)
	require.Len(t, byState, 1)
	assert.Equal(t, "exec-b", byState[0].ID)
}

func TestExecutionRepository_ListDue(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.Executions()

	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	earlier := now.Add(-2 * time.Minute)
	future := now.Add(time.Hour)

	for _, e := range []*models.ExecutionContext{
		{ID: "exec-due", PipelineID: "sims", State: models.ExecutionStateWaiting, WakeAt: &past, StartedAt: now, CreatedAt: now, UpdatedAt: now},
		{ID: "exec-earlier", PipelineID: "sims", State: models.ExecutionStateWaiting, WakeAt: &earlier, StartedAt: now, CreatedAt: now, UpdatedAt: now},
		{ID: "exec-future", PipelineID: "sims", State: models.ExecutionStateWaiting, WakeAt: &future, StartedAt: now, CreatedAt: now, UpdatedAt: now},
		{ID: "exec-done", PipelineID: "sims", State: models.ExecutionStateCompleted, WakeAt: &past, StartedAt: now, CreatedAt: now, UpdatedAt: now},
	} {
		require.NoError(t, repo.Save(ctx, e))
	}

	due, err := repo.ListDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "exec-earlier", due[0].ID)
	assert.Equal(t, "exec-due", due[1].ID)

	due, err = repo.ListDue(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "exec-earlier", due[0].ID)
}
