package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
)

const schedulerLockName = "scheduler"

// Scheduler runs periodic maintenance on worker nodes: it sweeps expired
// OAuth states and queues a refresh sweep for every user whose tokens are
// about to expire.
//
// For multi-worker deployments, configure a DistributedLock so only one
// instance runs each cycle.
type Scheduler struct {
	states      driven.OAuthStateStore
	credentials driven.CredentialStore
	taskQueue   driven.TaskQueue
	lock        driven.DistributedLock
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	interval time.Duration

	lockTTL      time.Duration
	lockRequired bool
	horizon      time.Duration
	batchSize    int
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	States       driven.OAuthStateStore // Optional: skip the state sweep when nil
	Credentials  driven.CredentialStore
	TaskQueue    driven.TaskQueue
	Lock         driven.DistributedLock // Optional: distributed lock for multi-instance coordination
	Logger       *slog.Logger
	PollInterval time.Duration // How often a cycle runs (default: 1m)
	LockTTL      time.Duration // TTL for the distributed lock (default: 2m)
	LockRequired bool          // Skip the cycle when the lock backend errors (default: true with a lock)

	// RefreshHorizon selects tokens expiring within it (default: 15m).
	RefreshHorizon time.Duration

	// BatchSize caps the connections read per cycle (default: 500).
	BatchSize int

	Now func() time.Time
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.PollInterval
	if interval == 0 {
		interval = time.Minute
	}

	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = 2 * interval
	}

	// A configured lock is required unless the caller opts out explicitly.
	lockRequired := cfg.LockRequired
	if cfg.Lock != nil && !cfg.LockRequired {
		lockRequired = true
	}

	horizon := cfg.RefreshHorizon
	if horizon == 0 {
		horizon = 15 * time.Minute
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 500
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Scheduler{
		states:       cfg.States,
		credentials:  cfg.Credentials,
		taskQueue:    cfg.TaskQueue,
		lock:         cfg.Lock,
		logger:       logger,
		now:          now,
		interval:     interval,
		lockTTL:      lockTTL,
		lockRequired: lockRequired,
		horizon:      horizon,
		batchSize:    batch,
	}
}

// Start begins the scheduler loop.
// It runs until Stop is called or context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("scheduler starting", "poll_interval", s.interval, "refresh_horizon", s.horizon)

	go s.run(ctx)

	return nil
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler context cancelled")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one scheduling cycle under the distributed lock.
// It returns the number of refresh sweep tasks enqueued.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, schedulerLockName, s.lockTTL)
		if err != nil {
			s.logger.Warn("failed to acquire scheduler lock", "error", err)
			if s.lockRequired {
				return 0
			}
		} else if !acquired {
			s.logger.Debug("scheduler lock held by another instance, skipping cycle")
			return 0
		} else {
			defer func() {
				if err := s.lock.Release(ctx, schedulerLockName); err != nil {
					s.logger.Warn("failed to release scheduler lock", "error", err)
				}
			}()
		}
	}

	s.sweepStates(ctx)
	return s.enqueueRefreshSweeps(ctx)
}

func (s *Scheduler) sweepStates(ctx context.Context) {
	if s.states == nil {
		return
	}
	if err := s.states.Cleanup(ctx); err != nil {
		s.logger.Warn("failed to sweep expired oauth states", "error", err)
	}
}

// enqueueRefreshSweeps queues one task per user regardless of how many of
// the user's platforms are expiring.
func (s *Scheduler) enqueueRefreshSweeps(ctx context.Context) int {
	if s.credentials == nil || s.taskQueue == nil {
		return 0
	}

	refs, err := s.credentials.ListExpiring(ctx, s.now().Add(s.horizon), s.batchSize)
	if err != nil {
		s.logger.Error("failed to list expiring connections", "error", err)
		return 0
	}

	seen := make(map[string]struct{}, len(refs))
	enqueued := 0
	for _, ref := range refs {
		if _, ok := seen[ref.UserID]; ok {
			continue
		}
		seen[ref.UserID] = struct{}{}

		task := domain.NewRefreshSweepTask(ref.UserID)
		if err := s.taskQueue.Enqueue(ctx, task); err != nil {
			s.logger.Error("failed to enqueue refresh sweep",
				"user_id", ref.UserID,
				"error", err,
			)
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		s.logger.Info("refresh sweeps enqueued", "users", enqueued, "connections", len(refs))
	}
	return enqueued
}
