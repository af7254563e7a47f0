package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/recforge/recforge/pkg/eventbus"
	"github.com/recforge/recforge/pkg/events"
	"github.com/recforge/recforge/pkg/metrics"
	"github.com/recforge/recforge/pkg/models"
	"github.com/recforge/recforge/pkg/otelhelper"
	"github.com/recforge/recforge/pkg/persistence"
	"github.com/recforge/recforge/pkg/wakeup"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrPipelineNotFound indicates no definition exists for the requested pipeline ID.
	ErrPipelineNotFound = errors.New("pipeline not found")

	// ErrNoFamily indicates a definition references a family with no registered steps.
	ErrNoFamily = errors.New("no step family registered")

	// ErrNoStep indicates a stage has no work step in its family.
	ErrNoStep = errors.New("no work step for stage")

	// ErrExecutionTerminal indicates an operation that requires a live execution
	// was attempted on a completed, failed, or cancelled one.
	ErrExecutionTerminal = errors.New("execution already terminal")
)

// Step performs the side effect that enters a stage, typically an
// asynchronous create or delete call against the external service. It
// records resulting resource identifiers on the execution context.
type Step func(ctx context.Context, execCtx *models.ExecutionContext) error

// StepSet maps each stage label to its work step.
type StepSet map[models.Stage]Step

// Poller checks the external readiness of the current stage's resource and
// reduces it to one status label. Pollers are read-only.
type Poller interface {
	Poll(ctx context.Context, execCtx *models.ExecutionContext) (models.ResourceStatus, error)
}

// Family bundles the work steps and the poller shared by a group of
// pipeline definitions.
type Family struct {
	Steps  StepSet
	Poller Poller
}

// Engine drives pipeline executions: it starts them, resumes them when
// their wake-at checkpoint passes, and publishes exactly one terminal
// outcome per execution. All execution state lives in the repository;
// the engine itself is stateless and safe for concurrent use.
type Engine struct {
	catalog  map[string]*Definition
	families map[string]Family
	repo     persistence.ExecutionRepository
	bus      eventbus.EventBus
	queue    wakeup.Queue
	tracer   trace.Tracer
	logger   *slog.Logger

	// now is the clock; replaced in tests to exercise the budget guard.
	now func() time.Time
}

// Config wires the engine's collaborators.
type Config struct {
	Catalog  map[string]*Definition
	Families map[string]Family
	Repo     persistence.ExecutionRepository
	Bus      eventbus.EventBus
	Queue    wakeup.Queue
	Tracer   trace.Tracer
	Logger   *slog.Logger
}

func NewEngine(cfg Config) *Engine {
	return &Engine{
		catalog:  cfg.Catalog,
		families: cfg.Families,
		repo:     cfg.Repo,
		bus:      cfg.Bus,
		queue:    cfg.Queue,
		tracer:   cfg.Tracer,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// Start creates a new execution of the pipeline and schedules its first
// resume. The caller request is captured immutably; pipeline defaults fill
// in keys the caller did not supply. The first work step runs on the first
// resume, not here, so triggering stays fast and crash-safe.
func (e *Engine) Start(ctx context.Context, pipelineID string, request map[string]any) (*models.ExecutionContext, error) {
	def, ok := e.catalog[pipelineID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPipelineNotFound, pipelineID)
	}

	merged := make(map[string]any, len(request)+len(def.Defaults))
	for k, v := range def.Defaults {
		merged[k] = v
	}

	for k, v := range request {
		merged[k] = v
	}

	now := e.now().UTC()
	wakeAt := now

	execCtx := &models.ExecutionContext{
		ID:         "exec-" + uuid.New().String(),
		PipelineID: pipelineID,
		Request:    merged,
		Resources:  make(map[string][]string),
		State:      models.ExecutionStateWaiting,
		WakeAt:     &wakeAt,
		StartedAt:  now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.start",
		attribute.String(otelhelper.PipelineIDKey, pipelineID),
		attribute.String(otelhelper.ExecutionIDKey, execCtx.ID),
	)
	defer span.End()

	err := e.repo.Save(ctx, execCtx)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to persist execution: %w", err)
	}

	err = e.queue.Schedule(ctx, execCtx.ID, wakeAt)
	if err != nil {
		// The repository sweep will still pick the execution up.
		e.logger.WarnContext(ctx, "failed to schedule wakeup",
			"execution_id", execCtx.ID, "error", err)
	}

	started := events.ExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStartedEvent, pipelineID),
		ExecutionID: execCtx.ID,
		Request:     merged,
	}

	err = e.bus.Publish(ctx, events.LifecycleTopic, execCtx.ID, started)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to publish started event",
			"execution_id", execCtx.ID, "error", err)
	}

	metrics.ExecutionsStarted.WithLabelValues(pipelineID).Inc()

	e.logger.InfoContext(ctx, "execution started",
		"execution_id", execCtx.ID, "pipeline_id", pipelineID)

	return execCtx, nil
}

// Resume advances one suspended execution by a single iteration: run the
// pending work step or poll the current stage, route the result, and either
// re-suspend or publish the terminal outcome. Resuming a terminal execution
// is a no-op, which makes duplicate wakeups harmless.
func (e *Engine) Resume(ctx context.Context, executionID string) error {
	execCtx, err := e.repo.GetByID(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to load execution: %w", err)
	}

	if execCtx.State.IsTerminal() {
		return nil
	}

	def, ok := e.catalog[execCtx.PipelineID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPipelineNotFound, execCtx.PipelineID)
	}

	family, ok := e.families[def.Family]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoFamily, def.Family)
	}

	// The wakeup queue and the repository sweep both fire across runner
	// instances, so the same execution can come due on several processes at
	// once. The claim is a compare-and-set on updated_at; only the winner
	// runs this cycle, which keeps work steps from running twice.
	claimed, err := e.repo.Claim(ctx, executionID, execCtx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to claim execution: %w", err)
	}

	if !claimed {
		return nil
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.resume",
		attribute.String(otelhelper.PipelineIDKey, execCtx.PipelineID),
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.StageKey, string(execCtx.Stage)),
	)
	defer span.End()

	if execCtx.State == models.ExecutionStateCancelling {
		return e.publishFailure(ctx, execCtx, models.FailureCauseCancelled,
			fmt.Errorf("cancelled by %s", execCtx.CancelledBy))
	}

	if e.now().Sub(execCtx.StartedAt) > def.Budget {
		return e.publishFailure(ctx, execCtx, models.FailureCauseBudgetExceeded,
			fmt.Errorf("budget of %s exhausted", def.Budget))
	}

	// A blank stage means the execution has not entered its first stage yet.
	if execCtx.Stage == "" {
		return e.enterStage(ctx, def, family, execCtx, def.Start())
	}

	status, err := family.Poller.Poll(ctx, execCtx)

	metrics.PollsTotal.WithLabelValues(execCtx.PipelineID, string(execCtx.Stage)).Inc()

	if err != nil {
		// A poll that cannot be evaluated must still resolve the execution:
		// leaving it suspended forever would break the one-outcome guarantee.
		otelhelper.SetError(span, err)

		return e.publishFailure(ctx, execCtx, models.FailureCausePollError, err)
	}

	execCtx.Status = status
	span.SetAttributes(attribute.String(otelhelper.StatusKey, string(status)))

	action := def.Route(execCtx.Stage, status)

	e.logger.DebugContext(ctx, "routed poll result",
		"execution_id", execCtx.ID,
		"stage", execCtx.Stage,
		"status", status,
		"action", action.Type,
	)

	switch action.Type {
	case ActionAdvance:
		return e.enterStage(ctx, def, family, execCtx, action.Next)
	case ActionSucceed:
		return e.publishSuccess(ctx, execCtx)
	case ActionFail:
		return e.publishFailure(ctx, execCtx, models.FailureCauseResourceFailed,
			fmt.Errorf("stage %s reported status %q", execCtx.Stage, status))
	case ActionWait:
	}

	return e.suspend(ctx, def, execCtx)
}

// Cancel requests a best-effort stop. The execution is marked and resolved
// on its next resume; the in-flight external work is not interrupted.
func (e *Engine) Cancel(ctx context.Context, executionID, cancelledBy string) error {
	execCtx, err := e.repo.GetByID(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to load execution: %w", err)
	}

	if execCtx.State.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrExecutionTerminal, executionID)
	}

	now := e.now().UTC()
	execCtx.State = models.ExecutionStateCancelling
	execCtx.CancelledBy = cancelledBy
	execCtx.WakeAt = &now
	execCtx.UpdatedAt = now

	err = e.repo.Save(ctx, execCtx)
	if err != nil {
		return fmt.Errorf("failed to persist cancellation: %w", err)
	}

	err = e.queue.Schedule(ctx, execCtx.ID, now)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to schedule wakeup",
			"execution_id", execCtx.ID, "error", err)
	}

	e.logger.InfoContext(ctx, "execution cancelling",
		"execution_id", executionID, "cancelled_by", cancelledBy)

	return nil
}

// enterStage runs the work step for the given stage and suspends the
// execution until the first poll. A step error fails the execution hard;
// steps are not retried because the external create may have gone through.
func (e *Engine) enterStage(ctx context.Context, def *Definition, family Family, execCtx *models.ExecutionContext, stage models.Stage) error {
	step, ok := family.Steps[stage]
	if !ok {
		return e.publishFailure(ctx, execCtx, models.FailureCauseStepError,
			fmt.Errorf("%w: %s", ErrNoStep, stage))
	}

	execCtx.Stage = stage
	execCtx.Status = models.StatusInvalid
	execCtx.State = models.ExecutionStateRunning

	e.logger.InfoContext(ctx, "entering stage",
		"execution_id", execCtx.ID, "stage", stage)

	err := step(ctx, execCtx)
	if err != nil {
		return e.publishFailure(ctx, execCtx, models.FailureCauseStepError, err)
	}

	return e.suspend(ctx, def, execCtx)
}

// suspend checkpoints the execution and schedules the next resume one poll
// interval out. Suspension is durable: nothing sleeps in process.
func (e *Engine) suspend(ctx context.Context, def *Definition, execCtx *models.ExecutionContext) error {
	now := e.now().UTC()
	wakeAt := now.Add(def.PollInterval)

	execCtx.State = models.ExecutionStateWaiting
	execCtx.WakeAt = &wakeAt
	execCtx.UpdatedAt = now

	err := e.repo.Save(ctx, execCtx)
	if err != nil {
		return fmt.Errorf("failed to persist execution: %w", err)
	}

	err = e.queue.Schedule(ctx, execCtx.ID, wakeAt)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to schedule wakeup",
			"execution_id", execCtx.ID, "error", err)
	}

	return nil
}

func (e *Engine) publishSuccess(ctx context.Context, execCtx *models.ExecutionContext) error {
	now := e.now().UTC()

	execCtx.State = models.ExecutionStateCompleted
	execCtx.WakeAt = nil
	execCtx.CompletedAt = &now
	execCtx.UpdatedAt = now

	duration := now.Sub(execCtx.StartedAt)

	succeeded := events.ExecutionSucceeded{
		BaseEvent:   events.NewBaseEvent(events.ExecutionSucceededEvent, execCtx.PipelineID),
		ExecutionID: execCtx.ID,
		Context:     execCtx,
		Duration:    duration,
	}

	// The outcome goes out before the terminal state is persisted. When the
	// broker is down the stored execution stays live and the next wakeup
	// retries, so an outcome can be duplicated but never lost.
	err := e.bus.Publish(ctx, events.DoneTopic, execCtx.ID, succeeded)
	if err != nil {
		return fmt.Errorf("failed to publish success outcome: %w", err)
	}

	err = e.repo.Save(ctx, execCtx)
	if err != nil {
		return fmt.Errorf("failed to persist execution: %w", err)
	}

	metrics.ExecutionsSucceeded.WithLabelValues(execCtx.PipelineID).Inc()
	metrics.ExecutionDuration.WithLabelValues(execCtx.PipelineID).Observe(duration.Seconds())

	e.logger.InfoContext(ctx, "execution succeeded",
		"execution_id", execCtx.ID,
		"pipeline_id", execCtx.PipelineID,
		"duration", duration,
	)

	return nil
}

func (e *Engine) publishFailure(ctx context.Context, execCtx *models.ExecutionContext, cause string, failure error) error {
	now := e.now().UTC()

	execCtx.State = models.ExecutionStateFailed
	if cause == models.FailureCauseCancelled {
		execCtx.State = models.ExecutionStateCancelled
	}

	execCtx.Error = &models.ExecutionError{
		Stage:   execCtx.Stage,
		Cause:   cause,
		Message: failure.Error(),
	}
	execCtx.WakeAt = nil
	execCtx.CompletedAt = &now
	execCtx.UpdatedAt = now

	duration := now.Sub(execCtx.StartedAt)

	failed := events.ExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, execCtx.PipelineID),
		ExecutionID: execCtx.ID,
		Context:     execCtx,
		Cause:       cause,
		Error:       failure.Error(),
		Duration:    duration,
	}

	// Outcome first, terminal state second, same as publishSuccess.
	err := e.bus.Publish(ctx, events.FailTopic, execCtx.ID, failed)
	if err != nil {
		return fmt.Errorf("failed to publish failure outcome: %w", err)
	}

	err = e.repo.Save(ctx, execCtx)
	if err != nil {
		return fmt.Errorf("failed to persist execution: %w", err)
	}

	metrics.ExecutionsFailed.WithLabelValues(execCtx.PipelineID, cause).Inc()
	metrics.ExecutionDuration.WithLabelValues(execCtx.PipelineID).Observe(duration.Seconds())

	e.logger.WarnContext(ctx, "execution failed",
		"execution_id", execCtx.ID,
		"pipeline_id", execCtx.PipelineID,
		"stage", execCtx.Stage,
		"cause", cause,
		"error", failure,
	)

	return nil
}
