// Package wakeup schedules suspended executions for resumption. The queue
// is an accelerator in front of the execution repository: the repository
// remains the source of truth for due executions, so losing queue entries
// delays wakeups but never drops them. Duplicate pops across runner
// instances are likewise harmless; the engine claims each execution
// before resuming it.
package wakeup

import (
	"context"
	"time"
)

// Queue holds execution IDs keyed by their wake-at time.
type Queue interface {
	// Schedule records that the execution should be resumed at the given time.
	// Scheduling the same execution again overwrites the previous time.
	Schedule(ctx context.Context, executionID string, wakeAt time.Time) error

	// Due pops up to limit execution IDs whose wake-at time has passed.
	// Popped IDs are removed; a resume that fails to complete is recovered
	// from the repository sweep, not the queue.
	Due(ctx context.Context, now time.Time, limit int) ([]string, error)

	Close() error
}
