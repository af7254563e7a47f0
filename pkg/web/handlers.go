// Package web provides HTTP handlers and REST API endpoints for pipeline
// triggering and execution inspection.
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/recforge/recforge/pkg/models"
	"github.com/recforge/recforge/pkg/persistence"
	"github.com/recforge/recforge/pkg/pipeline"
)

type APIHandlers struct {
	engine      *pipeline.Engine
	persistence persistence.Persistence
	validator   *validator.Validate
	requests    *RequestValidator
}

func NewAPIHandlers(
	engine *pipeline.Engine,
	persist persistence.Persistence,
	validate *validator.Validate,
	requests *RequestValidator,
) *APIHandlers {
	return &APIHandlers{
		engine:      engine,
		persistence: persist,
		validator:   validate,
		requests:    requests,
	}
}

// TriggerPipeline starts one execution of the pipeline named in the path.
// The body is validated against the pipeline's request model and captured
// verbatim as the execution's immutable request.
func (h *APIHandlers) TriggerPipeline(c fiber.Ctx) error {
	pipelineID := c.Params("pipeline")

	body := c.Body()
	if len(body) == 0 {
		body = []byte("{}")
	}

	if err := h.requests.Validate(pipelineID, body); err != nil {
		if errors.Is(err, pipeline.ErrPipelineNotFound) {
			return notFound(c, err.Error())
		}

		return badRequest(c, err.Error())
	}

	var request map[string]any
	if err := json.Unmarshal(body, &request); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	execCtx, err := h.engine.Start(c.Context(), pipelineID, request)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(TriggerResponse{
		ExecutionID: execCtx.ID,
		PipelineID:  execCtx.PipelineID,
		State:       string(execCtx.State),
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execCtx, err := h.persistence.Executions().GetByID(c.Context(), id)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return notFound(c, "Execution not found")
		}

		return internalError(c, err)
	}

	return c.JSON(toExecutionResponse(execCtx))
}

// ListExecutions returns executions filtered by pipeline_id or state. One
// filter is required; unfiltered listing is not exposed.
func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	pipelineID := c.Query("pipeline_id")
	state := c.Query("state")

	var (
		executions []*models.ExecutionContext
		err        error
	)

	switch {
	case pipelineID != "":
		executions, err = h.persistence.Executions().ListByPipeline(c.Context(), pipelineID)
	case state != "":
		executions, err = h.persistence.Executions().ListByState(c.Context(), models.ExecutionState(state))
	default:
		return badRequest(c, "Either pipeline_id or state query parameter is required")
	}

	if err != nil {
		return internalError(c, err)
	}

	responses := make([]ExecutionResponse, 0, len(executions))
	for _, execCtx := range executions {
		responses = append(responses, toExecutionResponse(execCtx))
	}

	return c.JSON(fiber.Map{
		"executions":  responses,
		"total_count": len(responses),
	})
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	var req CancelRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.engine.Cancel(c.Context(), id, req.CancelledBy)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{
		"execution_id": id,
		"state":        string(models.ExecutionStateCancelling),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.persistence.HealthCheck(c.Context())

	status := "healthy"
	message := "recforge API is healthy"
	httpStatus := http.StatusOK

	if err != nil {
		status = "unhealthy"
		message = "recforge API is unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": status,
		},
		"timestamp": time.Now().UTC(),
	})
}
