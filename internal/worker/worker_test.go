package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clickstudio/connect-core/internal/adapters/driven/memory"
	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven/mocks"
	"github.com/clickstudio/connect-core/internal/core/services"
)

type fixture struct {
	queue    *mocks.MockTaskQueue
	twitter  *mocks.MockConnector
	linkedin *mocks.MockConnector
	store    *memory.CredentialStore
	worker   *Worker
}

func newFixture() *fixture {
	f := &fixture{
		queue:    mocks.NewMockTaskQueue(),
		twitter:  mocks.NewMockConnector(domain.PlatformTwitter),
		linkedin: mocks.NewMockConnector(domain.PlatformLinkedIn),
		store:    memory.NewCredentialStore(),
	}
	registry := mocks.NewMockRegistry(f.twitter, f.linkedin)
	f.worker = NewWorker(WorkerConfig{
		TaskQueue: f.queue,
		Publisher: services.NewPublisher(services.PublisherConfig{Registry: registry, Queue: f.queue}),
		Health:    services.NewHealthCoordinator(services.HealthCoordinatorConfig{Registry: registry, Store: f.store}),
	})
	return f
}

func (f *fixture) runNext(t *testing.T) *domain.Task {
	t.Helper()
	task, err := f.queue.DequeueWithTimeout(context.Background(), 0)
	require.NoError(t, err)
	require.NotNil(t, task)
	f.worker.processTask(context.Background(), task, f.worker.logger)
	return task
}

func TestNewWorker_Defaults(t *testing.T) {
	w := NewWorker(WorkerConfig{TaskQueue: mocks.NewMockTaskQueue()})
	assert.Equal(t, 1, w.concurrency)
	assert.Equal(t, 5, w.dequeueTimeout)
	assert.NotNil(t, w.logger)
}

func TestProcessTask_PublishRecordsOutcomes(t *testing.T) {
	f := newFixture()
	f.linkedin.PublishFn = func(ctx context.Context, userID string, req *domain.PublishRequest) (*domain.PublishResult, error) {
		return nil, &domain.ReconnectError{Platform: domain.PlatformLinkedIn}
	}

	task, err := domain.NewPublishTask("user-1",
		[]domain.Platform{domain.PlatformTwitter, domain.PlatformLinkedIn},
		&domain.PublishRequest{Text: "ship it"})
	require.NoError(t, err)
	require.NoError(t, f.queue.Enqueue(context.Background(), task))

	done := f.runNext(t)

	assert.Equal(t, []string{task.ID}, f.queue.Acked(), "partial failure still completes the task")
	require.Len(t, done.Results, 2)
	assert.True(t, done.Results[0].Success)
	assert.Equal(t, "post-twitter", done.Results[0].Result.ID)
	assert.False(t, done.Results[1].Success)
	assert.Contains(t, done.Results[1].Error, "reconnect")
}

func TestProcessTask_BadPayloadIsNacked(t *testing.T) {
	f := newFixture()
	task := domain.NewTask(domain.TaskTypePublish, "user-1", map[string]string{"platforms": "twitter"})
	require.NoError(t, f.queue.Enqueue(context.Background(), task))

	f.runNext(t)

	reason, ok := f.queue.NackReason(task.ID)
	require.True(t, ok)
	assert.Contains(t, reason, "request not found")
	assert.Empty(t, f.queue.Acked())
}

func TestProcessTask_UnknownType(t *testing.T) {
	f := newFixture()
	task := domain.NewTask("sync_everything", "user-1", nil)
	require.NoError(t, f.queue.Enqueue(context.Background(), task))

	f.runNext(t)

	reason, ok := f.queue.NackReason(task.ID)
	require.True(t, ok)
	assert.Contains(t, reason, "unknown task type")
}

func TestProcessTask_PanicIsNacked(t *testing.T) {
	f := newFixture()
	f.worker.publisher = panicPublisher{}
	task, _ := domain.NewPublishTask("user-1", []domain.Platform{domain.PlatformTwitter}, &domain.PublishRequest{Text: "x"})
	require.NoError(t, f.queue.Enqueue(context.Background(), task))

	f.runNext(t)

	reason, ok := f.queue.NackReason(task.ID)
	require.True(t, ok)
	assert.Contains(t, reason, "panicked")
}

func TestProcessTask_RefreshSweep(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	expired := time.Now().Add(-time.Minute)
	require.NoError(t, f.store.Save(ctx, "user-1", domain.PlatformTwitter, &domain.PlatformConnection{
		Connected: true, AccessToken: "old", RefreshToken: "r", ExpiresAt: &expired,
	}))
	f.twitter.RefreshAccessTokenFn = func(ctx context.Context, userID string) (string, error) {
		return "", errors.New("vendor down")
	}

	task := domain.NewRefreshSweepTask("user-1")
	require.NoError(t, f.queue.Enqueue(ctx, task))
	f.runNext(t)

	assert.Equal(t, 1, f.twitter.Calls("RefreshAccessToken"))
	assert.Equal(t, []string{task.ID}, f.queue.Acked())
}

func TestWorker_StartStop(t *testing.T) {
	f := newFixture()
	f.worker.concurrency = 2
	ctx := context.Background()

	task, _ := domain.NewPublishTask("user-1", []domain.Platform{domain.PlatformTwitter}, &domain.PublishRequest{Text: "hello"})
	require.NoError(t, f.queue.Enqueue(ctx, task))

	require.NoError(t, f.worker.Start(ctx))
	require.NoError(t, f.worker.Start(ctx), "second start is a no-op")
	assert.True(t, f.worker.Health(ctx).Running)

	require.Eventually(t, func() bool { return len(f.queue.Acked()) == 1 }, 2*time.Second, 10*time.Millisecond)

	f.worker.Stop()
	f.worker.Stop()
	health := f.worker.Health(ctx)
	assert.False(t, health.Running)
	assert.True(t, health.QueueHealth)
}

func TestWorker_ContextCancel(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.worker.Start(ctx))

	cancel()
	done := make(chan struct{})
	go func() {
		f.worker.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after context cancel")
	}
}

type panicPublisher struct{ *services.Publisher }

func (panicPublisher) PublishAll(ctx context.Context, userID string, platforms []domain.Platform, req *domain.PublishRequest) []domain.PlatformPublishOutcome {
	panic("boom")
}
