package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
)

// Ensure Queue implements TaskQueue
var _ driven.TaskQueue = (*Queue)(nil)

const (
	// pollInterval is how often an empty queue is re-checked while waiting.
	pollInterval = time.Second

	// staleAfter is how long a task may stay processing before another
	// worker takes it over.
	staleAfter = 5 * time.Minute

	retryBackoff = 30 * time.Second
)

const taskColumns = `id, type, user_id, payload, status, attempts, max_attempts, error,
	results, created_at, updated_at, started_at, completed_at, scheduled_for`

// Queue implements TaskQueue using PostgreSQL with SKIP LOCKED.
// This is the fallback queue when Redis is not available.
type Queue struct {
	db *sql.DB
}

// NewQueue creates a new PostgreSQL-backed task queue.
// The tasks table is created by the schema in the postgres adapter.
func NewQueue(db *sql.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue adds a task to the queue
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return errors.New("task is required")
	}
	payload, results, err := encodeTask(task)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		task.ID,
		string(task.Type),
		task.UserID,
		payload,
		string(task.Status),
		task.Attempts,
		task.MaxAttempts,
		task.Error,
		results,
		task.CreatedAt,
		task.UpdatedAt,
		nullTime(task.StartedAt),
		nullTime(task.CompletedAt),
		task.ScheduledFor,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// DequeueWithTimeout claims the next due task, polling for up to timeout
// seconds. Tasks stuck in processing longer than staleAfter are claimed too.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	deadline := time.Now().Add(time.Duration(timeout) * time.Second)
	for {
		task, err := q.claim(ctx)
		if err != nil || task != nil {
			return task, err
		}
		if timeout <= 0 || !time.Now().Before(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(pollInterval):
		}
	}
}

func (q *Queue) claim(ctx context.Context) (*domain.Task, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET status = $1, started_at = NOW(), updated_at = NOW(), attempts = attempts + 1
		WHERE id = (
			SELECT id FROM tasks
			WHERE (status = $2 AND scheduled_for <= NOW())
			   OR (status = $1 AND started_at < NOW() - $3::interval)
			ORDER BY scheduled_for, created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns,
		string(domain.TaskStatusProcessing),
		string(domain.TaskStatusPending),
		fmt.Sprintf("%d seconds", int(staleAfter.Seconds())),
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return task, nil
}

// Ack marks the task completed and stores its results.
func (q *Queue) Ack(ctx context.Context, task *domain.Task) error {
	task.MarkCompleted()
	_, results, err := encodeTask(task)
	if err != nil {
		return err
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = $1, completed_at = $2, updated_at = $2, error = '', results = $3
		WHERE id = $4
	`, string(task.Status), *task.CompletedAt, results, task.ID)
	if err != nil {
		return fmt.Errorf("ack task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ack task %s: %w", task.ID, domain.ErrNotFound)
	}
	return nil
}

// Nack requeues the task with a linear backoff while attempts remain and
// marks it failed otherwise.
func (q *Queue) Nack(ctx context.Context, taskID string, reason string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("nack task %s: %w", taskID, domain.ErrNotFound)
	}

	task.MarkFailed(reason)
	if task.CanRetry() {
		task.ResetForRetry()
		task.Error = reason
		task.ScheduledFor = time.Now().Add(time.Duration(task.Attempts) * retryBackoff)
	}
	_, err = q.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = $1, error = $2, updated_at = $3, started_at = $4, completed_at = $5, scheduled_for = $6
		WHERE id = $7
	`,
		string(task.Status),
		task.Error,
		task.UpdatedAt,
		nullTime(task.StartedAt),
		nullTime(task.CompletedAt),
		task.ScheduledFor,
		taskID,
	)
	if err != nil {
		return fmt.Errorf("nack task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID, or nil if it does not exist.
func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, taskID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return task, nil
}

// Ping checks database connectivity
func (q *Queue) Ping(ctx context.Context) error {
	return q.db.PingContext(ctx)
}

// Close is a no-op for the Postgres queue (db connection managed externally)
func (q *Queue) Close() error {
	return nil
}

func encodeTask(task *domain.Task) (payload, results []byte, err error) {
	payload, err = json.Marshal(task.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payload: %w", err)
	}
	if task.Results != nil {
		results, err = json.Marshal(task.Results)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal results: %w", err)
		}
	}
	return payload, results, nil
}

func scanTask(row *sql.Row) (*domain.Task, error) {
	var (
		task                   domain.Task
		taskType, status       string
		payload, results       []byte
		startedAt, completedAt sql.NullTime
	)
	err := row.Scan(
		&task.ID,
		&taskType,
		&task.UserID,
		&payload,
		&status,
		&task.Attempts,
		&task.MaxAttempts,
		&task.Error,
		&results,
		&task.CreatedAt,
		&task.UpdatedAt,
		&startedAt,
		&completedAt,
		&task.ScheduledFor,
	)
	if err != nil {
		return nil, err
	}
	task.Type = domain.TaskType(taskType)
	task.Status = domain.TaskStatus(status)

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &task.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &task.Results); err != nil {
			return nil, fmt.Errorf("unmarshal results: %w", err)
		}
	}
	if startedAt.Valid {
		task.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	return &task, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
