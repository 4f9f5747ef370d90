package driven

import (
	"context"
	"time"

	"github.com/clickstudio/connect-core/internal/core/domain"
)

// CredentialStore persists one document per user holding a platform → connection map.
// Each connector reads and writes only its own platform's entry.
type CredentialStore interface {
	// Get returns the connection for (user, platform) or domain.ErrNotFound.
	Get(ctx context.Context, userID string, platform domain.Platform) (*domain.PlatformConnection, error)

	// Save creates or overwrites the platform entry of the user document.
	Save(ctx context.Context, userID string, platform domain.Platform, conn *domain.PlatformConnection) error

	// UpdateTokens renews the token fields in place.
	// Returns domain.ErrNotFound if the entry does not exist.
	UpdateTokens(ctx context.Context, userID string, platform domain.Platform, update domain.TokenUpdate) error

	// Delete removes the platform entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, userID string, platform domain.Platform) error

	// List returns every platform entry of the user document.
	List(ctx context.Context, userID string) (map[domain.Platform]*domain.PlatformConnection, error)

	// ListExpiring returns connected entries whose access token expires before the given time
	// and that carry a refresh token.
	ListExpiring(ctx context.Context, before time.Time, limit int) ([]domain.ConnectionRef, error)
}
