package cmd

import (
	"context"
	"fmt"

	"github.com/recforge/recforge/pkg/wakeup"
)

// NewWakeupQueue returns the redis-backed queue when a URL is configured,
// or the in-process queue for single-node setups. The repository sweep
// covers either way; the queue only accelerates wakeups.
func NewWakeupQueue(ctx context.Context, redisURL string) wakeup.Queue {
	if redisURL == "" {
		return wakeup.NewMemoryQueue()
	}

	queue, err := wakeup.NewRedisQueue(ctx, redisURL)
	if err != nil {
		panic(fmt.Errorf("failed to create redis wakeup queue: %w", err))
	}

	return queue
}
