package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
	"github.com/clickstudio/connect-core/internal/core/ports/driving"
	"github.com/clickstudio/connect-core/internal/metrics"
)

// PublisherConfig holds configuration for the publisher.
type PublisherConfig struct {
	Registry driven.ConnectorRegistry

	// Queue is required by Enqueue and GetJob only.
	Queue driven.TaskQueue

	Logger *slog.Logger
}

// Ensure Publisher implements the interface.
var _ driving.PublishService = (*Publisher)(nil)

// Publisher fans a post out to several platforms, inline or as a queued task.
type Publisher struct {
	registry driven.ConnectorRegistry
	queue    driven.TaskQueue
	logger   *slog.Logger
}

// NewPublisher creates a new publisher.
func NewPublisher(cfg PublisherConfig) *Publisher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		registry: cfg.Registry,
		queue:    cfg.Queue,
		logger:   logger,
	}
}

// PublishAll publishes to every platform concurrently. Outcomes are returned
// in request order; one platform failing never affects another.
func (p *Publisher) PublishAll(ctx context.Context, userID string, platforms []domain.Platform, req *domain.PublishRequest) []domain.PlatformPublishOutcome {
	outcomes := make([]domain.PlatformPublishOutcome, len(platforms))

	var g errgroup.Group
	for i, platform := range platforms {
		g.Go(func() error {
			outcomes[i] = p.publishOne(ctx, userID, platform, req)
			return nil
		})
	}
	_ = g.Wait()

	succeeded := 0
	for _, o := range outcomes {
		if o.Success {
			succeeded++
		}
	}
	p.logger.Info("multi-platform publish finished",
		"user_id", userID,
		"platforms", len(platforms),
		"succeeded", succeeded,
	)
	return outcomes
}

func (p *Publisher) publishOne(ctx context.Context, userID string, platform domain.Platform, req *domain.PublishRequest) (out domain.PlatformPublishOutcome) {
	out.Platform = platform
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publish panicked: %v", r)
			p.logger.Error("publish panicked", "platform", platform, "user_id", userID, "panic", r)
		}
		metrics.Publishes.WithLabelValues(string(platform), metrics.Result(err)).Inc()
		if err != nil {
			out.Success = false
			out.Result = nil
			out.Error = err.Error()
		}
	}()

	c, err := p.registry.Get(platform)
	if err != nil {
		return out
	}
	res, err := c.Publish(ctx, userID, req)
	if err != nil {
		p.logger.Warn("publish failed", "platform", platform, "user_id", userID, "error", err)
		return out
	}
	out.Success = true
	out.Result = res
	return out
}

// Enqueue validates the request and queues it as a publish task.
func (p *Publisher) Enqueue(ctx context.Context, req driving.EnqueuePublishRequest) (*domain.Task, error) {
	if p.queue == nil {
		return nil, fmt.Errorf("%w: task queue not configured", domain.ErrNotConfigured)
	}
	for _, platform := range req.Platforms {
		if _, err := p.registry.Get(platform); err != nil {
			return nil, err
		}
	}

	task, err := domain.NewPublishTask(req.UserID, req.Platforms, &req.Request)
	if err != nil {
		return nil, err
	}
	if req.ScheduledFor != nil && req.ScheduledFor.After(time.Now()) {
		task.ScheduledFor = *req.ScheduledFor
	}

	if err := p.queue.Enqueue(ctx, task); err != nil {
		return nil, fmt.Errorf("enqueue publish task: %w", err)
	}
	p.logger.Info("publish task enqueued",
		"task_id", task.ID,
		"user_id", req.UserID,
		"platforms", len(req.Platforms),
		"scheduled_for", task.ScheduledFor,
	)
	return task, nil
}

// GetJob returns a publish task. Tasks owned by other users are reported
// as not found.
func (p *Publisher) GetJob(ctx context.Context, userID, taskID string) (*domain.Task, error) {
	if p.queue == nil {
		return nil, fmt.Errorf("%w: task queue not configured", domain.ErrNotConfigured)
	}
	task, err := p.queue.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if task == nil || task.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return task, nil
}
