package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pgstore "github.com/clickstudio/connect-core/internal/adapters/driven/postgres"
	"github.com/clickstudio/connect-core/internal/core/domain"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	url := os.Getenv("CONNECT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CONNECT_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := pgstore.Connect(ctx, pgstore.DefaultConfig(url))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.InitSchema(ctx))
	_, err = db.ExecContext(ctx, `TRUNCATE tasks`)
	require.NoError(t, err)
	return NewQueue(db.DB)
}

func TestQueue_EnqueueDequeueAck(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	task, err := domain.NewPublishTask("user-1", []domain.Platform{domain.PlatformTwitter}, &domain.PublishRequest{Text: "hi"})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, task))

	got, err := q.DequeueWithTimeout(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, domain.TaskStatusProcessing, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, task.Payload, got.Payload)

	again, err := q.DequeueWithTimeout(ctx, 0)
	require.NoError(t, err)
	assert.Nil(t, again)

	got.Results = []domain.PlatformPublishOutcome{{Platform: domain.PlatformTwitter, Success: true}}
	require.NoError(t, q.Ack(ctx, got))

	stored, err := q.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, stored.Status)
	require.Len(t, stored.Results, 1)
	assert.True(t, stored.Results[0].Success)
}

func TestQueue_ScheduledTaskNotDue(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	task := domain.NewRefreshSweepTask("user-1")
	task.ScheduledFor = time.Now().Add(time.Hour)
	require.NoError(t, q.Enqueue(ctx, task))

	got, err := q.DequeueWithTimeout(ctx, 0)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQueue_NackRetriesThenFails(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	task := domain.NewRefreshSweepTask("user-1")
	task.MaxAttempts = 2
	require.NoError(t, q.Enqueue(ctx, task))

	got, err := q.DequeueWithTimeout(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, q.Nack(ctx, got.ID, "store unavailable"))

	stored, err := q.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, stored.Status)
	assert.True(t, stored.ScheduledFor.After(time.Now()))

	_, err = q.db.ExecContext(ctx, `UPDATE tasks SET scheduled_for = NOW() WHERE id = $1`, task.ID)
	require.NoError(t, err)
	got, err = q.DequeueWithTimeout(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Attempts)
	require.NoError(t, q.Nack(ctx, got.ID, "still down"))

	stored, err = q.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	assert.Equal(t, "still down", stored.Error)
	assert.NotNil(t, stored.CompletedAt)
}

func TestQueue_Missing(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	task, err := q.GetTask(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, task)
	assert.ErrorIs(t, q.Nack(ctx, "missing", "x"), domain.ErrNotFound)
}
