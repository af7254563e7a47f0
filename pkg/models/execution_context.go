package models

import "time"

// ExecutionState is the lifecycle state of one pipeline execution.
type ExecutionState string

const (
	ExecutionStateRunning    ExecutionState = "running"
	ExecutionStateWaiting    ExecutionState = "waiting"
	ExecutionStateCompleted  ExecutionState = "completed"
	ExecutionStateFailed     ExecutionState = "failed"
	ExecutionStateCancelling ExecutionState = "cancelling"
	ExecutionStateCancelled  ExecutionState = "cancelled"
)

// IsTerminal reports whether no further work will happen for the execution.
func (s ExecutionState) IsTerminal() bool {
	return s == ExecutionStateCompleted || s == ExecutionStateFailed || s == ExecutionStateCancelled
}

// Failure cause codes carried on the failure outcome so operators can tell
// a timed-out execution from one the external service reported as failed.
const (
	FailureCauseStepError      = "step_error"
	FailureCausePollError      = "poll_error"
	FailureCauseResourceFailed = "resource_failed"
	FailureCauseBudgetExceeded = "budget_exceeded"
	FailureCauseCancelled      = "cancelled"
)

// ExecutionError is the structured cause attached to failed executions.
type ExecutionError struct {
	Stage   Stage  `json:"stage"`
	Cause   string `json:"cause"`
	Message string `json:"message"`
}

// ExecutionContext is the payload threaded through an entire pipeline run.
// It is exclusively owned by its execution and never shared across runs.
type ExecutionContext struct {
	ID         string         `json:"id"`
	PipelineID string         `json:"pipeline_id"`
	Stage      Stage          `json:"stage,omitempty"`
	Status     ResourceStatus `json:"status,omitempty"`

	// Resources accumulates resource-kind -> identifiers across the run.
	// Append-only: a work step adds its own entries and never removes
	// another step's.
	Resources map[string][]string `json:"resources,omitempty"`

	// Request holds the immutable caller-supplied parameters.
	Request map[string]any `json:"request,omitempty"`

	State ExecutionState  `json:"state"`
	Error *ExecutionError `json:"error,omitempty"`

	WakeAt      *time.Time `json:"wake_at,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledBy string     `json:"cancelled_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// AddResource appends identifiers under the given resource kind.
func (ec *ExecutionContext) AddResource(kind string, ids ...string) {
	if ec.Resources == nil {
		ec.Resources = make(map[string][]string)
	}

	ec.Resources[kind] = append(ec.Resources[kind], ids...)
}

// Resource returns the first identifier recorded under kind, or "".
func (ec *ExecutionContext) Resource(kind string) string {
	ids := ec.Resources[kind]
	if len(ids) == 0 {
		return ""
	}

	return ids[0]
}

// HasResource reports whether any identifier was recorded under kind.
// An entry may legitimately hold an empty identifier when the step was
// configured to skip the underlying create call.
func (ec *ExecutionContext) HasResource(kind string) bool {
	_, ok := ec.Resources[kind]

	return ok
}

// RequestString returns a string field from the caller request, or "".
func (ec *ExecutionContext) RequestString(key string) string {
	v, _ := ec.Request[key].(string)

	return v
}

// RequestBool returns a bool field from the caller request.
func (ec *ExecutionContext) RequestBool(key string) bool {
	v, _ := ec.Request[key].(bool)

	return v
}
