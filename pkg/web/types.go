package web

import (
	"time"

	"github.com/recforge/recforge/pkg/models"
)

// TriggerResponse acknowledges an accepted pipeline trigger.
type TriggerResponse struct {
	ExecutionID string `json:"execution_id"`
	PipelineID  string `json:"pipeline_id"`
	State       string `json:"state"`
}

// CancelRequest names the operator requesting a cancellation.
type CancelRequest struct {
	CancelledBy string `json:"cancelled_by" validate:"required,min=1,max=255"`
}

// ExecutionResponse is the inspection view of one execution.
type ExecutionResponse struct {
	ID          string                 `json:"id"`
	PipelineID  string                 `json:"pipeline_id"`
	Stage       string                 `json:"stage,omitempty"`
	Status      string                 `json:"status,omitempty"`
	State       string                 `json:"state"`
	Resources   map[string][]string    `json:"resources,omitempty"`
	Error       *models.ExecutionError `json:"error,omitempty"`
	WakeAt      *time.Time             `json:"wake_at,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

func toExecutionResponse(execCtx *models.ExecutionContext) ExecutionResponse {
	return ExecutionResponse{
		ID:          execCtx.ID,
		PipelineID:  execCtx.PipelineID,
		Stage:       string(execCtx.Stage),
		Status:      string(execCtx.Status),
		State:       string(execCtx.State),
		Resources:   execCtx.Resources,
		Error:       execCtx.Error,
		WakeAt:      execCtx.WakeAt,
		StartedAt:   execCtx.StartedAt,
		CompletedAt: execCtx.CompletedAt,
	}
}
