package driving

import (
	"context"
	"time"

	"github.com/clickstudio/connect-core/internal/core/domain"
)

// PublishService fans a post out to several platforms.
type PublishService interface {
	// PublishAll publishes to each platform independently and reports per-platform outcomes.
	PublishAll(ctx context.Context, userID string, platforms []domain.Platform, req *domain.PublishRequest) []domain.PlatformPublishOutcome

	// Enqueue schedules a multi-platform publish as a background task.
	Enqueue(ctx context.Context, req EnqueuePublishRequest) (*domain.Task, error)

	// GetJob returns a publish task owned by the user.
	GetJob(ctx context.Context, userID, taskID string) (*domain.Task, error)
}

// EnqueuePublishRequest describes a background multi-platform post.
// @Description Multi-platform publish job
type EnqueuePublishRequest struct {
	UserID       string                `json:"-"`
	Platforms    []domain.Platform     `json:"platforms" example:"twitter,linkedin"`
	Request      domain.PublishRequest `json:"request"`
	ScheduledFor *time.Time            `json:"scheduled_for,omitempty"`
}
