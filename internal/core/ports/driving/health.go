package driving

import (
	"context"

	"github.com/clickstudio/connect-core/internal/core/domain"
)

// HealthService validates and repairs a user's connections across platforms.
type HealthService interface {
	// CheckConnection classifies one platform using a live profile call.
	CheckConnection(ctx context.Context, userID string, platform domain.Platform) domain.ConnectionHealth

	// CheckAll checks every platform independently and aggregates a summary.
	CheckAll(ctx context.Context, userID string) *domain.HealthSummary

	// RefreshExpired refreshes every expired platform that has a refresh token.
	RefreshExpired(ctx context.Context, userID string) *domain.RefreshReport
}
