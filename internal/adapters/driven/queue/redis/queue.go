package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
)

const (
	taskStream     = "connect:tasks"
	taskGroup      = "connect:workers"
	scheduledTasks = "connect:scheduled"
	taskKeyPrefix  = "connect:task:"

	consumerPrefix = "worker-"

	// How long a delivered message may stay unacknowledged before another
	// worker claims it.
	claimTimeout = 5 * time.Minute

	// Task records outlive processing so job status can be polled.
	taskTTL = 7 * 24 * time.Hour

	retryBackoff = 30 * time.Second
)

// Verify interface compliance
var _ driven.TaskQueue = (*Queue)(nil)

// Queue implements TaskQueue with a Redis stream and consumer group.
// Delayed tasks wait in a sorted set scored by due time and are moved onto
// the stream when a worker polls.
type Queue struct {
	client       redis.UniversalClient
	consumerName string
	now          func() time.Time
}

// NewQueue creates a Redis-backed task queue. consumerName should be unique
// per worker instance.
func NewQueue(ctx context.Context, client redis.UniversalClient, consumerName string) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if consumerName == "" {
		consumerName = consumerPrefix + strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	err := client.XGroupCreateMkStream(ctx, taskStream, taskGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return &Queue{client: client, consumerName: consumerName, now: time.Now}, nil
}

// Enqueue stores the task record and either streams it or parks it until
// ScheduledFor.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return errors.New("task is required")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, taskKeyPrefix+task.ID, data, taskTTL)
	if task.ScheduledFor.After(q.now()) {
		pipe.ZAdd(ctx, scheduledTasks, redis.Z{Score: float64(task.ScheduledFor.Unix()), Member: task.ID})
	} else {
		pipe.XAdd(ctx, streamArgs(task))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

func streamArgs(task *domain.Task) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: taskStream,
		Values: map[string]any{
			"task_id": task.ID,
			"type":    string(task.Type),
			"user_id": task.UserID,
		},
	}
}

// DequeueWithTimeout returns the next task, blocking up to timeout seconds.
// Abandoned deliveries are reclaimed before new messages are read.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	// Best effort: a failed promotion is retried on the next poll.
	_ = q.promoteScheduled(ctx)

	if task, err := q.claimAbandoned(ctx); err == nil && task != nil {
		return task, nil
	}

	block := time.Duration(timeout) * time.Second
	if timeout <= 0 {
		block = -1
	}
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    taskGroup,
		Consumer: q.consumerName,
		Streams:  []string{taskStream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("read task stream: %w", err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}
	return q.deliver(ctx, streams[0].Messages[0])
}

// deliver loads the task behind a stream message and marks it processing.
// Messages without a task record are dropped.
func (q *Queue) deliver(ctx context.Context, msg redis.XMessage) (*domain.Task, error) {
	taskID, _ := msg.Values["task_id"].(string)
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		q.client.XAck(ctx, taskStream, taskGroup, msg.ID)
		q.client.XDel(ctx, taskStream, msg.ID)
		return nil, nil
	}

	task.MarkProcessing()
	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.Set(ctx, taskKeyPrefix+task.ID, data, taskTTL)
	pipe.Set(ctx, taskKeyPrefix+task.ID+":msg", msg.ID, taskTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("mark task processing: %w", err)
	}
	return task, nil
}

// Ack stores the final task state, results included, and removes the message.
func (q *Queue) Ack(ctx context.Context, task *domain.Task) error {
	msgID, err := q.client.Get(ctx, taskKeyPrefix+task.ID+":msg").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("get message id: %w", err)
	}

	task.MarkCompleted()
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	pipe := q.client.TxPipeline()
	if msgID != "" {
		pipe.XAck(ctx, taskStream, taskGroup, msgID)
		pipe.XDel(ctx, taskStream, msgID)
	}
	pipe.Set(ctx, taskKeyPrefix+task.ID, data, taskTTL)
	pipe.Del(ctx, taskKeyPrefix+task.ID+":msg")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack task: %w", err)
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
	msgID, _ := q.client.Get(ctx, taskKeyPrefix+taskID+":msg").Result()

	task.MarkFailed(reason)
	retry := task.CanRetry()
	if retry {
		task.ResetForRetry()
		task.Error = reason
		task.ScheduledFor = q.now().Add(time.Duration(task.Attempts) * retryBackoff)
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	pipe := q.client.TxPipeline()
	if msgID != "" {
		pipe.XAck(ctx, taskStream, taskGroup, msgID)
		pipe.XDel(ctx, taskStream, msgID)
	}
	pipe.Set(ctx, taskKeyPrefix+taskID, data, taskTTL)
	if retry {
		pipe.ZAdd(ctx, scheduledTasks, redis.Z{Score: float64(task.ScheduledFor.Unix()), Member: task.ID})
	}
	pipe.Del(ctx, taskKeyPrefix+taskID+":msg")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("nack task: %w", err)
	}
	return nil
}

// GetTask returns the stored task record, or nil if it does not exist.
func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	data, err := q.client.Get(ctx, taskKeyPrefix+taskID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &task, nil
}

// Ping checks if the queue backend is healthy.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close is a no-op; the Redis client is shared.
func (q *Queue) Close() error {
	return nil
}

func (q *Queue) promoteScheduled(ctx context.Context) error {
	due, err := q.client.ZRangeByScore(ctx, scheduledTasks, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().Unix(), 10),
	}).Result()
	if err != nil || len(due) == 0 {
		return err
	}

	for _, id := range due {
		// ZREM decides which poller promotes the task.
		removed, err := q.client.ZRem(ctx, scheduledTasks, id).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		task, err := q.GetTask(ctx, id)
		if err != nil || task == nil {
			continue
		}
		if err := q.client.XAdd(ctx, streamArgs(task)).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) claimAbandoned(ctx context.Context) (*domain.Task, error) {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   taskStream,
		Group:    taskGroup,
		Consumer: q.consumerName,
		MinIdle:  claimTimeout,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return q.deliver(ctx, msgs[0])
}
