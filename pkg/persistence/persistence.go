// Package persistence provides data storage abstraction layer for pipeline executions.
package persistence

import (
	"context"
	"time"

	"github.com/recforge/recforge/pkg/models"
)

// ExecutionRepository stores execution contexts. Save is an upsert keyed on
// the execution ID; ListDue returns waiting executions whose wake-at
// checkpoint has passed, ordered oldest first.
//
// Claim hands one resume cycle's ownership to the caller: it succeeds only
// while the stored row still carries the updated_at value the caller loaded,
// so concurrent claimants race and exactly one proceeds. Every resume must
// claim before doing work; a lost claim means another process owns the cycle.
type ExecutionRepository interface {
	Save(ctx context.Context, execCtx *models.ExecutionContext) error
	GetByID(ctx context.Context, executionID string) (*models.ExecutionContext, error)
	Claim(ctx context.Context, executionID string, updatedAt time.Time) (bool, error)
	ListByPipeline(ctx context.Context, pipelineID string) ([]*models.ExecutionContext, error)
	ListByState(ctx context.Context, state models.ExecutionState) ([]*models.ExecutionContext, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ExecutionContext, error)
}

type Persistence interface {
	Executions() ExecutionRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
