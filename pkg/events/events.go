// Package events defines the lifecycle and terminal outcome events
// published for pipeline executions.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/recforge/recforge/pkg/models"
)

type EventType string

// Topics. Terminal outcomes go to dedicated done/fail topics so downstream
// notifiers can subscribe to exactly the channel they render.
const (
	LifecycleTopic = "recforge.pipeline.events"
	DoneTopic      = "recforge.pipeline.done"
	FailTopic      = "recforge.pipeline.fail"
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionSucceededEvent EventType = "execution.succeeded"
	ExecutionFailedEvent    EventType = "execution.failed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	PipelineID string         `json:"pipeline_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	Request     map[string]any `json:"request,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

// ExecutionSucceeded carries the full final execution context so consumers
// can report exactly what was provisioned and under which identifiers.
type ExecutionSucceeded struct {
	BaseEvent

	ExecutionID string                   `json:"execution_id"`
	Context     *models.ExecutionContext `json:"context"`
	Duration    time.Duration            `json:"duration"`
}

func (e ExecutionSucceeded) GetType() EventType {
	return ExecutionSucceededEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string                   `json:"execution_id"`
	Context     *models.ExecutionContext `json:"context"`
	Cause       string                   `json:"cause"`
	Error       string                   `json:"error"`
	Duration    time.Duration            `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

func NewBaseEvent(eventType EventType, pipelineID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		PipelineID: pipelineID,
		Metadata:   make(map[string]any),
	}
}
