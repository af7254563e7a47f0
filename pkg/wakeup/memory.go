package wakeup

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryQueue is an in-process queue for tests and single-node development.
type MemoryQueue struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{entries: make(map[string]time.Time)}
}

func (q *MemoryQueue) Schedule(_ context.Context, executionID string, wakeAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries[executionID] = wakeAt

	return nil
}

func (q *MemoryQueue) Due(_ context.Context, now time.Time, limit int) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	type entry struct {
		id     string
		wakeAt time.Time
	}

	due := make([]entry, 0)

	for id, wakeAt := range q.entries {
		if !wakeAt.After(now) {
			due = append(due, entry{id: id, wakeAt: wakeAt})
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].wakeAt.Before(due[j].wakeAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	ids := make([]string, len(due))
	for i, e := range due {
		ids[i] = e.id

		delete(q.entries, e.id)
	}

	return ids, nil
}

func (q *MemoryQueue) Close() error {
	return nil
}
