package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clickstudio/connect-core/internal/adapters/driven/memory"
	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
	"github.com/clickstudio/connect-core/internal/core/ports/driven/mocks"
)

type schedulerFixture struct {
	clock  *testClock
	states *memory.StateStore
	creds  *memory.CredentialStore
	queue  *mocks.MockTaskQueue
	lock   *mocks.MockDistributedLock
}

func newSchedulerFixture() *schedulerFixture {
	clock := newTestClock()
	return &schedulerFixture{
		clock:  clock,
		states: memory.NewStateStore().WithClock(clock.Now),
		creds:  memory.NewCredentialStore(),
		queue:  mocks.NewMockTaskQueue(),
		lock:   mocks.NewMockDistributedLock(),
	}
}

func (f *schedulerFixture) scheduler(mutate func(*SchedulerConfig)) *Scheduler {
	cfg := SchedulerConfig{
		States:       f.states,
		Credentials:  f.creds,
		TaskQueue:    f.queue,
		Lock:         f.lock,
		PollInterval: time.Hour,
		Now:          f.clock.Now,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewScheduler(cfg)
}

func (f *schedulerFixture) save(t *testing.T, userID string, p domain.Platform, expiresIn time.Duration) {
	t.Helper()
	exp := f.clock.Now().Add(expiresIn)
	require.NoError(t, f.creds.Save(context.Background(), userID, p, &domain.PlatformConnection{
		Connected:    true,
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresAt:    &exp,
	}))
}

func TestNewScheduler_Defaults(t *testing.T) {
	s := NewScheduler(SchedulerConfig{})
	assert.Equal(t, time.Minute, s.interval)
	assert.Equal(t, 2*time.Minute, s.lockTTL)
	assert.Equal(t, 15*time.Minute, s.horizon)
	assert.Equal(t, 500, s.batchSize)
	assert.False(t, s.lockRequired)

	s = NewScheduler(SchedulerConfig{Lock: mocks.NewMockDistributedLock()})
	assert.True(t, s.lockRequired, "a configured lock is required by default")
}

func TestScheduler_RunOnce_EnqueuesOneSweepPerUser(t *testing.T) {
	f := newSchedulerFixture()
	f.save(t, "user-1", domain.PlatformTwitter, 5*time.Minute)
	f.save(t, "user-1", domain.PlatformTikTok, 10*time.Minute)
	f.save(t, "user-2", domain.PlatformYouTube, -time.Minute)
	f.save(t, "user-3", domain.PlatformLinkedIn, 2*time.Hour)

	n := f.scheduler(nil).RunOnce(context.Background())
	assert.Equal(t, 2, n)

	tasks := f.queue.Tasks()
	require.Len(t, tasks, 2)
	users := []string{tasks[0].UserID, tasks[1].UserID}
	assert.ElementsMatch(t, []string{"user-1", "user-2"}, users)
	for _, task := range tasks {
		assert.Equal(t, domain.TaskTypeRefreshSweep, task.Type)
	}

	assert.Equal(t, []string{schedulerLockName}, f.lock.Acquired())
	assert.Equal(t, []string{schedulerLockName}, f.lock.Released())
}

func TestScheduler_RunOnce_SweepsExpiredStates(t *testing.T) {
	f := newSchedulerFixture()
	ctx := context.Background()
	now := f.clock.Now()
	require.NoError(t, f.states.Save(ctx, &driven.OAuthState{Token: "old", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, f.states.Save(ctx, &driven.OAuthState{Token: "live", ExpiresAt: now.Add(time.Minute)}))

	f.scheduler(nil).RunOnce(ctx)

	count, err := f.states.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestScheduler_RunOnce_SkipsWhenLockHeld(t *testing.T) {
	f := newSchedulerFixture()
	f.save(t, "user-1", domain.PlatformTwitter, time.Minute)
	f.lock.SetLockHeld(schedulerLockName, time.Minute)

	n := f.scheduler(nil).RunOnce(context.Background())
	assert.Zero(t, n)
	assert.Empty(t, f.queue.Tasks())
}

func TestScheduler_RunOnce_LockErrors(t *testing.T) {
	f := newSchedulerFixture()
	f.save(t, "user-1", domain.PlatformTwitter, time.Minute)
	f.lock.AcquireFn = func(name string, ttl time.Duration) (bool, error) {
		return false, errors.New("redis: connection refused")
	}

	assert.Zero(t, f.scheduler(nil).RunOnce(context.Background()), "lock is required")

	s := f.scheduler(nil)
	s.lockRequired = false
	assert.Equal(t, 1, s.RunOnce(context.Background()), "single-instance mode falls through")
}

func TestScheduler_RunOnce_EnqueueFailureContinues(t *testing.T) {
	f := newSchedulerFixture()
	f.save(t, "user-1", domain.PlatformTwitter, time.Minute)
	f.save(t, "user-2", domain.PlatformTwitter, 2*time.Minute)
	f.queue.EnqueueFn = func(task *domain.Task) error {
		if task.UserID == "user-1" {
			return errors.New("queue full")
		}
		return nil
	}

	n := f.scheduler(nil).RunOnce(context.Background())
	assert.Equal(t, 1, n)
	require.Len(t, f.queue.Tasks(), 1)
	assert.Equal(t, "user-2", f.queue.Tasks()[0].UserID)
}

func TestScheduler_BatchSize(t *testing.T) {
	f := newSchedulerFixture()
	f.save(t, "user-1", domain.PlatformTwitter, time.Minute)
	f.save(t, "user-2", domain.PlatformTwitter, 2*time.Minute)
	f.save(t, "user-3", domain.PlatformTwitter, 3*time.Minute)

	n := f.scheduler(func(c *SchedulerConfig) { c.BatchSize = 2 }).RunOnce(context.Background())
	assert.Equal(t, 2, n)
	assert.Equal(t, "user-1", f.queue.Tasks()[0].UserID, "soonest expiry first")
}

func TestScheduler_StartStop(t *testing.T) {
	f := newSchedulerFixture()
	f.save(t, "user-1", domain.PlatformTwitter, time.Minute)
	s := f.scheduler(nil)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()), "second start is a no-op")

	require.Eventually(t, func() bool { return len(f.queue.Tasks()) == 1 }, time.Second, 10*time.Millisecond,
		"runs a cycle immediately on start")

	s.Stop()
	s.Stop()
	assert.False(t, s.running)
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	f := newSchedulerFixture()
	s := f.scheduler(nil)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, s.Start(ctx))
	cancel()

	select {
	case <-s.doneCh:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not exit after context cancel")
	}
}
