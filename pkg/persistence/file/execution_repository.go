package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/recforge/recforge/pkg/models"
	"github.com/recforge/recforge/pkg/persistence"
)

// ExecutionRepository handles execution-related file operations.
type ExecutionRepository struct {
	root string // File system root for storing executions

	// claimMu serializes Claim's read-compare-write. The file store is a
	// single-process store, so in-process exclusion is sufficient.
	claimMu sync.Mutex
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

// validateExecutionID validates that the execution ID is safe for file operations.
func (er *ExecutionRepository) validateExecutionID(executionID string) error {
	if executionID == "" {
		return persistence.ErrInvalidExecutionID
	}

	// Check for path traversal attempts
	if strings.Contains(executionID, "..") || strings.Contains(executionID, "/") || strings.Contains(executionID, "\\") {
		return persistence.ErrInvalidExecutionID
	}

	return nil
}

// Save writes an execution context to the file system, overwriting any
// previous version.
func (er *ExecutionRepository) Save(ctx context.Context, execCtx *models.ExecutionContext) error {
	if err := er.validateExecutionID(execCtx.ID); err != nil {
		return persistence.NewExecutionError("Save", execCtx.ID, err)
	}

	contextToSave := *execCtx
	if contextToSave.Resources == nil {
		contextToSave.Resources = make(map[string][]string)
	}

	if contextToSave.Request == nil {
		contextToSave.Request = make(map[string]any)
	}

	executionsDir := filepath.Join(er.root, "executions")

	err := os.MkdirAll(executionsDir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create executions directory: %w", err)
	}

	filePath := filepath.Join(executionsDir, execCtx.ID+".json")

	data, err := json.Marshal(contextToSave)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", execCtx.ID, err)
	}

	err = os.WriteFile(filePath, data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write execution %s: %w", execCtx.ID, err)
	}

	return nil
}

// GetByID retrieves an execution context by its ID from the file system.
func (er *ExecutionRepository) GetByID(ctx context.Context, executionID string) (*models.ExecutionContext, error) {
	if err := er.validateExecutionID(executionID); err != nil {
		return nil, persistence.NewExecutionError("GetByID", executionID, err)
	}

	filePath := filepath.Join(er.root, "executions", executionID+".json")

	data, err := os.ReadFile(filePath) // #nosec G304 -- filePath is validated and constructed safely
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionError("GetByID", executionID, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to read execution %s: %w", executionID, err)
	}

	var execCtx models.ExecutionContext

	err = json.Unmarshal(data, &execCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", executionID, err)
	}

	return &execCtx, nil
}

// Claim grants one resume cycle's ownership by bumping updated_at, but only
// while the stored execution still carries the updated_at the caller loaded.
func (er *ExecutionRepository) Claim(ctx context.Context, executionID string, updatedAt time.Time) (bool, error) {
	er.claimMu.Lock()
	defer er.claimMu.Unlock()

	execCtx, err := er.GetByID(ctx, executionID)
	if err != nil {
		return false, err
	}

	if !execCtx.UpdatedAt.Equal(updatedAt) {
		return false, nil
	}

	execCtx.UpdatedAt = time.Now().UTC()

	return true, er.Save(ctx, execCtx)
}

// ListByPipeline retrieves all executions for a specific pipeline.
func (er *ExecutionRepository) ListByPipeline(ctx context.Context, pipelineID string) ([]*models.ExecutionContext, error) {
	return er.list(ctx, func(execCtx *models.ExecutionContext) bool {
		return execCtx.PipelineID == pipelineID
	})
}

// ListByState retrieves all executions in a specific lifecycle state.
func (er *ExecutionRepository) ListByState(ctx context.Context, state models.ExecutionState) ([]*models.ExecutionContext, error) {
	return er.list(ctx, func(execCtx *models.ExecutionContext) bool {
		return execCtx.State == state
	})
}

// ListDue retrieves waiting executions whose wake-at checkpoint has passed,
// oldest checkpoint first, capped at limit.
func (er *ExecutionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ExecutionContext, error) {
	due, err := er.list(ctx, func(execCtx *models.ExecutionContext) bool {
		return execCtx.State == models.ExecutionStateWaiting &&
			execCtx.WakeAt != nil && !execCtx.WakeAt.After(now)
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].WakeAt.Before(*due[j].WakeAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

func (er *ExecutionRepository) list(ctx context.Context, keep func(*models.ExecutionContext) bool) ([]*models.ExecutionContext, error) {
	executionsDir := filepath.Join(er.root, "executions")

	if _, err := os.Stat(executionsDir); os.IsNotExist(err) {
		return []*models.ExecutionContext{}, nil
	}

	entries, err := os.ReadDir(executionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read executions directory: %w", err)
	}

	executions := make([]*models.ExecutionContext, 0)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		executionID := strings.TrimSuffix(entry.Name(), ".json")

		execCtx, err := er.GetByID(ctx, executionID)
		if err != nil {
			// Skip invalid files
			continue
		}

		if keep(execCtx) {
			executions = append(executions, execCtx)
		}
	}

	return executions, nil
}
