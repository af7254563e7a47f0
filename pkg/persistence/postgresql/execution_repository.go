package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/recforge/recforge/pkg/models"
	"github.com/recforge/recforge/pkg/persistence"
)

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id, pipeline_id, stage, status, resources, request,
	state, error, wake_at, started_at, completed_at, cancelled_by,
	created_at, updated_at
`

// Save upserts an execution context into the database.
func (er *ExecutionRepository) Save(ctx context.Context, execCtx *models.ExecutionContext) error {
	resourcesJSON, err := json.Marshal(execCtx.Resources)
	if err != nil {
		return fmt.Errorf("failed to marshal resources: %w", err)
	}

	requestJSON, err := json.Marshal(execCtx.Request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var errorJSON []byte
	if execCtx.Error != nil {
		errorJSON, err = json.Marshal(execCtx.Error)
		if err != nil {
			return fmt.Errorf("failed to marshal execution error: %w", err)
		}
	}

	query := `
		INSERT INTO executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			stage = EXCLUDED.stage,
			status = EXCLUDED.status,
			resources = EXCLUDED.resources,
			state = EXCLUDED.state,
			error = EXCLUDED.error,
			wake_at = EXCLUDED.wake_at,
			completed_at = EXCLUDED.completed_at,
			cancelled_by = EXCLUDED.cancelled_by,
			updated_at = EXCLUDED.updated_at
	`

	_, err = er.db.ExecContext(ctx, query,
		execCtx.ID,
		execCtx.PipelineID,
		execCtx.Stage,
		execCtx.Status,
		resourcesJSON,
		requestJSON,
		execCtx.State,
		errorJSON,
		execCtx.WakeAt,
		execCtx.StartedAt,
		execCtx.CompletedAt,
		execCtx.CancelledBy,
		execCtx.CreatedAt,
		execCtx.UpdatedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("Save", execCtx.ID, err)
	}

	return nil
}

// GetByID retrieves an execution context by its ID from the database.
func (er *ExecutionRepository) GetByID(ctx context.Context, executionID string) (*models.ExecutionContext, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	row := er.db.QueryRowContext(ctx, query, executionID)

	execCtx, err := er.scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", executionID, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execCtx, nil
}

// Claim grants one resume cycle's ownership by bumping updated_at, but only
// while the stored row still carries the updated_at the caller loaded. The
// conditional update is atomic, so concurrent runner instances racing on the
// same wakeup resolve to exactly one winner.
func (er *ExecutionRepository) Claim(ctx context.Context, executionID string, updatedAt time.Time) (bool, error) {
	result, err := er.db.ExecContext(ctx,
		`UPDATE executions SET updated_at = $3 WHERE id = $1 AND updated_at = $2`,
		executionID, updatedAt, time.Now().UTC(),
	)
	if err != nil {
		return false, persistence.NewExecutionError("Claim", executionID, err)
	}

	claimed, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}

	return claimed > 0, nil
}

// ListByPipeline retrieves all executions for a specific pipeline.
func (er *ExecutionRepository) ListByPipeline(ctx context.Context, pipelineID string) ([]*models.ExecutionContext, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE pipeline_id = $1
		ORDER BY created_at DESC
	`

	return er.query(ctx, query, pipelineID)
}

// ListByState retrieves all executions in a specific lifecycle state.
func (er *ExecutionRepository) ListByState(ctx context.Context, state models.ExecutionState) ([]*models.ExecutionContext, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE state = $1
		ORDER BY created_at DESC
	`

	return er.query(ctx, query, state)
}

// ListDue retrieves waiting executions whose wake-at checkpoint has passed,
// oldest checkpoint first.
func (er *ExecutionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ExecutionContext, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE state = $1 AND wake_at IS NOT NULL AND wake_at <= $2
		ORDER BY wake_at ASC
		LIMIT $3
	`

	return er.query(ctx, query, models.ExecutionStateWaiting, now, limit)
}

func (er *ExecutionRepository) query(ctx context.Context, query string, args ...any) ([]*models.ExecutionContext, error) {
	rows, err := er.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			er.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var executions []*models.ExecutionContext

	for rows.Next() {
		execCtx, err := er.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execCtx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// scanExecution scans an execution context from a database row.
func (er *ExecutionRepository) scanExecution(scanner interface {
	Scan(dest ...any) error
}) (*models.ExecutionContext, error) {
	var (
		execCtx                               models.ExecutionContext
		resourcesJSON, requestJSON, errorJSON []byte
		stage, status, cancelledBy            sql.NullString
	)

	err := scanner.Scan(
		&execCtx.ID,
		&execCtx.PipelineID,
		&stage,
		&status,
		&resourcesJSON,
		&requestJSON,
		&execCtx.State,
		&errorJSON,
		&execCtx.WakeAt,
		&execCtx.StartedAt,
		&execCtx.CompletedAt,
		&cancelledBy,
		&execCtx.CreatedAt,
		&execCtx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	execCtx.Stage = models.Stage(stage.String)
	execCtx.Status = models.ResourceStatus(status.String)
	execCtx.CancelledBy = cancelledBy.String

	execCtx.Resources = make(map[string][]string)
	execCtx.Request = make(map[string]any)

	if resourcesJSON != nil {
		err := json.Unmarshal(resourcesJSON, &execCtx.Resources)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal resources: %w", err)
		}
	}

	if requestJSON != nil {
		err := json.Unmarshal(requestJSON, &execCtx.Request)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal request: %w", err)
		}
	}

	if errorJSON != nil {
		execCtx.Error = &models.ExecutionError{}

		err := json.Unmarshal(errorJSON, execCtx.Error)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution error: %w", err)
		}
	}

	return &execCtx, nil
}
