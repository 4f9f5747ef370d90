package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
	"github.com/clickstudio/connect-core/internal/core/ports/driving"
	"github.com/clickstudio/connect-core/internal/core/services"
)

// idleBackoff throttles the loop when a queue returns immediately with no task.
const idleBackoff = 200 * time.Millisecond

// Worker processes publish and refresh tasks from the task queue.
type Worker struct {
	taskQueue driven.TaskQueue
	publisher driving.PublishService
	health    driving.HealthService
	scheduler *services.Scheduler
	logger    *slog.Logger

	concurrency    int
	dequeueTimeout int // seconds

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	TaskQueue driven.TaskQueue
	Publisher driving.PublishService
	Health    driving.HealthService

	// Scheduler is started and stopped with the worker. Optional.
	Scheduler *services.Scheduler

	Logger         *slog.Logger
	Concurrency    int // Number of concurrent task processors
	DequeueTimeout int // Seconds to wait for a task before checking again
}

// NewWorker creates a new task worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5
	}

	return &Worker{
		taskQueue:      cfg.TaskQueue,
		publisher:      cfg.Publisher,
		health:         cfg.Health,
		scheduler:      cfg.Scheduler,
		logger:         logger,
		concurrency:    concurrency,
		dequeueTimeout: dequeueTimeout,
	}
}

// Start launches the processing goroutines and returns.
// They run until Stop is called or ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"dequeue_timeout", w.dequeueTimeout,
	)

	if w.scheduler != nil {
		if err := w.scheduler.Start(ctx); err != nil {
			w.logger.Error("failed to start scheduler", "error", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processLoop(ctx, workerID)
		}(i)
	}

	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop gracefully stops the worker, letting in-flight tasks finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	if w.scheduler != nil {
		w.scheduler.Stop()
	}

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	w.mu.RLock()
	done := w.doneCh
	w.mu.RUnlock()
	if done != nil {
		<-done
	}
}

func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Debug("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		task, err := w.taskQueue.DequeueWithTimeout(ctx, w.dequeueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("failed to dequeue task", "error", err)
			w.pause(ctx, time.Second)
			continue
		}
		if task == nil {
			w.pause(ctx, idleBackoff)
			continue
		}

		w.processTask(ctx, task, logger)
	}
}

func (w *Worker) pause(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// processTask runs one task and acks or nacks it.
func (w *Worker) processTask(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	logger = logger.With("task_id", task.ID, "task_type", task.Type, "user_id", task.UserID)
	logger.Info("processing task", "attempt", task.Attempts)

	start := time.Now()
	var err error

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		switch task.Type {
		case domain.TaskTypePublish:
			err = w.handlePublish(ctx, task, logger)
		case domain.TaskTypeRefreshSweep:
			err = w.handleRefreshSweep(ctx, task, logger)
		default:
			err = fmt.Errorf("unknown task type: %s", task.Type)
		}
	}()

	duration := time.Since(start)
	if err != nil {
		logger.Error("task failed", "duration", duration, "error", err)
		if nackErr := w.taskQueue.Nack(ctx, task.ID, err.Error()); nackErr != nil {
			logger.Error("failed to nack task", "nack_error", nackErr)
		}
		return
	}

	logger.Info("task completed", "duration", duration)
	if ackErr := w.taskQueue.Ack(ctx, task); ackErr != nil {
		logger.Error("failed to ack task", "ack_error", ackErr)
	}
}

// handlePublish publishes to every platform of the task and records the
// per-platform outcomes. Partial failure still completes the task: the
// outcomes are the result.
func (w *Worker) handlePublish(ctx context.Context, task *domain.Task, logger *slog.Logger) error {
	platforms, err := task.Platforms()
	if err != nil {
		return err
	}
	req, err := task.PublishRequest()
	if err != nil {
		return err
	}

	task.Results = w.publisher.PublishAll(ctx, task.UserID, platforms, req)

	failed := 0
	for _, o := range task.Results {
		if !o.Success {
			failed++
		}
	}
	if failed > 0 {
		logger.Warn("publish partially failed", "platforms", len(platforms), "failed", failed)
	}
	return nil
}

// handleRefreshSweep refreshes the user's expiring tokens.
func (w *Worker) handleRefreshSweep(ctx context.Context, task *domain.Task, logger *slog.Logger) error {
	report := w.health.RefreshExpired(ctx, task.UserID)
	for _, f := range report.Failed {
		logger.Warn("token refresh failed", "platform", f.Platform, "error", f.Error)
	}
	logger.Info("refresh sweep done",
		"refreshed", len(report.Refreshed),
		"failed", len(report.Failed),
		"skipped", len(report.Skipped),
	)
	return nil
}

// Health reports worker and queue health.
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	health := Health{Running: running}
	if err := w.taskQueue.Ping(ctx); err != nil {
		health.Error = err.Error()
	} else {
		health.QueueHealth = true
	}
	return health
}
