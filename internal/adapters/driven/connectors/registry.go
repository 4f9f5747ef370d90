package connectors

import (
	"fmt"
	"slices"
	"sync"

	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.ConnectorRegistry = (*Registry)(nil)

// Registry maps platforms to their connectors.
type Registry struct {
	mu         sync.RWMutex
	connectors map[domain.Platform]driven.PlatformConnector
}

// NewRegistry creates a registry holding the given connectors.
func NewRegistry(connectors ...driven.PlatformConnector) *Registry {
	r := &Registry{
		connectors: make(map[domain.Platform]driven.PlatformConnector),
	}
	for _, c := range connectors {
		r.Register(c)
	}
	return r
}

// Register adds or replaces the connector for its platform.
func (r *Registry) Register(c driven.PlatformConnector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.Platform()] = c
}

// Get returns the connector for the platform.
func (r *Registry) Get(platform domain.Platform) (driven.PlatformConnector, error) {
	r.mu.RLock()
	c, ok := r.connectors[platform]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedPlatform, platform)
	}
	return c, nil
}

// List returns all registered connectors in platform order.
func (r *Registry) List() []driven.PlatformConnector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]driven.PlatformConnector, 0, len(r.connectors))
	for _, p := range domain.AllPlatforms() {
		if c, ok := r.connectors[p]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Configured returns the platforms whose client credentials are present.
func (r *Registry) Configured() []domain.Platform {
	var out []domain.Platform
	for _, c := range r.List() {
		if c.IsConfigured() {
			out = append(out, c.Platform())
		}
	}
	return out
}

// IsConfigured reports whether the platform is registered and configured.
func (r *Registry) IsConfigured(platform domain.Platform) bool {
	return slices.Contains(r.Configured(), platform)
}
