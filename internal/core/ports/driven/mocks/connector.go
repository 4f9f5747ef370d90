package mocks

import (
	"context"
	"sync"

	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
)

var (
	_ driven.PlatformConnector = (*MockConnector)(nil)
	_ driven.ConnectorRegistry = (*MockRegistry)(nil)
)

// MockConnector is a mock implementation of PlatformConnector for testing.
// Unset hooks succeed with zero values.
type MockConnector struct {
	PlatformName domain.Platform
	Configured   bool

	GetAuthorizationURLFn  func(ctx context.Context, userID, callbackURL string) (*driven.AuthorizationURL, error)
	ExchangeCodeForTokenFn func(ctx context.Context, userID, code, state string) (*driven.TokenSet, error)
	GetClientFn            func(ctx context.Context, userID string) (string, error)
	RefreshAccessTokenFn   func(ctx context.Context, userID string) (string, error)
	FetchProfileFn         func(ctx context.Context, userID string) (*driven.Profile, error)
	PublishFn              func(ctx context.Context, userID string, req *domain.PublishRequest) (*domain.PublishResult, error)
	DisconnectFn           func(ctx context.Context, userID string) error

	mu    sync.Mutex
	calls map[string]int
}

// NewMockConnector creates a configured mock for the platform.
func NewMockConnector(platform domain.Platform) *MockConnector {
	return &MockConnector{PlatformName: platform, Configured: true}
}

func (m *MockConnector) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
}

// Calls returns how many times op was invoked.
func (m *MockConnector) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MockConnector) Platform() domain.Platform { return m.PlatformName }

func (m *MockConnector) IsConfigured() bool { return m.Configured }

func (m *MockConnector) GetAuthorizationURL(ctx context.Context, userID, callbackURL string) (*driven.AuthorizationURL, error) {
	m.record("GetAuthorizationURL")
	if m.GetAuthorizationURLFn != nil {
		return m.GetAuthorizationURLFn(ctx, userID, callbackURL)
	}
	return &driven.AuthorizationURL{URL: "https://auth.example.com/" + string(m.PlatformName), State: "state"}, nil
}

func (m *MockConnector) ExchangeCodeForToken(ctx context.Context, userID, code, state string) (*driven.TokenSet, error) {
	m.record("ExchangeCodeForToken")
	if m.ExchangeCodeForTokenFn != nil {
		return m.ExchangeCodeForTokenFn(ctx, userID, code, state)
	}
	return &driven.TokenSet{AccessToken: "token"}, nil
}

func (m *MockConnector) GetClient(ctx context.Context, userID string) (string, error) {
	m.record("GetClient")
	if m.GetClientFn != nil {
		return m.GetClientFn(ctx, userID)
	}
	return "token", nil
}

func (m *MockConnector) RefreshAccessToken(ctx context.Context, userID string) (string, error) {
	m.record("RefreshAccessToken")
	if m.RefreshAccessTokenFn != nil {
		return m.RefreshAccessTokenFn(ctx, userID)
	}
	return "refreshed", nil
}

func (m *MockConnector) FetchProfile(ctx context.Context, userID string) (*driven.Profile, error) {
	m.record("FetchProfile")
	if m.FetchProfileFn != nil {
		return m.FetchProfileFn(ctx, userID)
	}
	return &driven.Profile{ID: "id"}, nil
}

func (m *MockConnector) Publish(ctx context.Context, userID string, req *domain.PublishRequest) (*domain.PublishResult, error) {
	m.record("Publish")
	if m.PublishFn != nil {
		return m.PublishFn(ctx, userID, req)
	}
	return &domain.PublishResult{Platform: m.PlatformName, ID: "post-" + string(m.PlatformName), Text: req.Text}, nil
}

func (m *MockConnector) Disconnect(ctx context.Context, userID string) error {
	m.record("Disconnect")
	if m.DisconnectFn != nil {
		return m.DisconnectFn(ctx, userID)
	}
	return nil
}

// MockRegistry resolves mock connectors in the order they were given.
type MockRegistry struct {
	connectors []*MockConnector
}

// NewMockRegistry creates a registry over the given connectors.
func NewMockRegistry(connectors ...*MockConnector) *MockRegistry {
	return &MockRegistry{connectors: connectors}
}

func (r *MockRegistry) Get(platform domain.Platform) (driven.PlatformConnector, error) {
	for _, c := range r.connectors {
		if c.PlatformName == platform {
			return c, nil
		}
	}
	return nil, domain.ErrUnsupportedPlatform
}

func (r *MockRegistry) List() []driven.PlatformConnector {
	out := make([]driven.PlatformConnector, len(r.connectors))
	for i, c := range r.connectors {
		out[i] = c
	}
	return out
}
