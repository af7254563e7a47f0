// Package main provides the recforge runner, the worker that resumes
// suspended executions when their wake-at checkpoint passes.
package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/recforge/recforge/pkg/persistence"
	"github.com/recforge/recforge/pkg/pipeline"
	"github.com/recforge/recforge/pkg/wakeup"
	"github.com/robfig/cron/v3"
)

const (
	sweepSpec      = "@every 5s"
	sweepBatchSize = 100
)

// Runner periodically sweeps for due executions and resumes each one on a
// bounded worker pool. The wakeup queue gives prompt wakeups; the
// repository scan backstops it, so an execution whose queue entry was lost
// is picked up at most one sweep late.
type Runner struct {
	engine  *pipeline.Engine
	repo    persistence.ExecutionRepository
	queue   wakeup.Queue
	logger  *slog.Logger
	cron    *cron.Cron
	workers chan struct{}

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup
}

func NewRunner(
	engine *pipeline.Engine,
	repo persistence.ExecutionRepository,
	queue wakeup.Queue,
	logger *slog.Logger,
	concurrency int,
) *Runner {
	return &Runner{
		engine:   engine,
		repo:     repo,
		queue:    queue,
		logger:   logger,
		cron:     cron.New(),
		workers:  make(chan struct{}, concurrency),
		inFlight: make(map[string]struct{}),
	}
}

// Start begins the sweep schedule. It returns immediately; sweeps run on
// the cron's goroutine and resumes on the worker pool.
func (r *Runner) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc(sweepSpec, func() {
		r.sweep(ctx)
	})
	if err != nil {
		return err
	}

	r.cron.Start()

	r.logger.InfoContext(ctx, "runner started", "sweep", sweepSpec)

	return nil
}

// Stop halts the sweep schedule and waits for in-flight resumes to finish.
func (r *Runner) Stop() {
	stopCtx := r.cron.Stop()
	<-stopCtx.Done()

	r.wg.Wait()
}

func (r *Runner) sweep(ctx context.Context) {
	now := time.Now().UTC()

	ids, err := r.queue.Due(ctx, now, sweepBatchSize)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to pop wakeup queue", "error", err)
	}

	// The repository is authoritative; it recovers executions whose queue
	// entries were lost or consumed by a crashed worker.
	due, err := r.repo.ListDue(ctx, now, sweepBatchSize)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to list due executions", "error", err)
	}

	for _, execCtx := range due {
		ids = append(ids, execCtx.ID)
	}

	for _, id := range ids {
		r.dispatch(ctx, id)
	}
}

// dispatch resumes one execution unless it is already being resumed by
// this process. Duplicate wakeups across processes are resolved by the
// engine's claim on the execution, not here.
func (r *Runner) dispatch(ctx context.Context, executionID string) {
	r.mu.Lock()
	if _, busy := r.inFlight[executionID]; busy {
		r.mu.Unlock()

		return
	}

	r.inFlight[executionID] = struct{}{}
	r.mu.Unlock()

	r.wg.Add(1)
	r.workers <- struct{}{}

	go func() {
		defer func() {
			<-r.workers

			r.mu.Lock()
			delete(r.inFlight, executionID)
			r.mu.Unlock()

			r.wg.Done()
		}()

		err := r.engine.Resume(ctx, executionID)
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to resume execution",
				"execution_id", executionID, "error", err)
		}
	}()
}
