package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggo/swag"

	"github.com/clickstudio/connect-core/internal/core/ports/driven"
	"github.com/clickstudio/connect-core/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Version string

	// FrontendURL receives the vendor callback redirect.
	FrontendURL string

	// AllowedOrigins enables CORS for these origins. Defaults to FrontendURL.
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:        "0.0.0.0",
		Port:        8080,
		Version:     "dev",
		FrontendURL: "http://localhost:3000",
	}
}

// Deps are the services and infrastructure the server talks to.
type Deps struct {
	OAuth    driving.OAuthService
	Health   driving.HealthService
	Publish  driving.PublishService
	Verifier driven.TokenVerifier

	// Readiness probes by name, e.g. "postgres", "redis". Nil entries are skipped.
	Probes map[string]Pinger

	Logger *slog.Logger
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	router      *http.ServeMux
	handler     http.Handler
	version     string
	frontendURL string

	oauth   driving.OAuthService
	health  driving.HealthService
	publish driving.PublishService

	probes map[string]Pinger
	logger *slog.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 && cfg.FrontendURL != "" {
		origins = []string{cfg.FrontendURL}
	}

	s := &Server{
		router:      http.NewServeMux(),
		version:     cfg.Version,
		frontendURL: cfg.FrontendURL,
		oauth:       deps.OAuth,
		health:      deps.Health,
		publish:     deps.Publish,
		probes:      deps.Probes,
		logger:      logger,
	}
	s.setupRoutes(NewAuthMiddleware(deps.Verifier))

	s.handler = NewRecoveryMiddleware(logger).Handler(
		NewLoggingMiddleware(logger).Handler(
			NewCORSMiddleware(origins).Handler(s.router)))

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Publishing waits on vendor calls and media fetches.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(auth *AuthMiddleware) {
	authed := func(h http.HandlerFunc) http.Handler { return auth.Authenticate(h) }

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)
	s.router.Handle("GET /metrics", promhttp.Handler())
	s.router.HandleFunc("GET /swagger/doc.json", s.handleSwaggerDoc)

	// Aggregate connection health. Registered before the {platform}
	// patterns; ServeMux prefers the literal segment either way.
	s.router.Handle("GET /oauth/health", authed(s.handleConnectionHealth))
	s.router.Handle("POST /oauth/health/refresh", authed(s.handleRefreshExpired))

	// The vendor redirects the browser here without our bearer token.
	s.router.HandleFunc("GET /oauth/{platform}/callback", s.handleOAuthCallback)

	s.router.Handle("GET /oauth/{platform}/authorize", authed(s.handleOAuthAuthorize))
	s.router.Handle("POST /oauth/{platform}/complete", authed(s.handleOAuthComplete))
	s.router.Handle("GET /oauth/{platform}/status", authed(s.handleOAuthStatus))
	s.router.Handle("POST /oauth/{platform}/post", authed(s.handlePost))
	s.router.Handle("POST /oauth/{platform}/upload", authed(s.handleUpload))
	s.router.Handle("POST /oauth/{platform}/refresh", authed(s.handleOAuthRefresh))
	s.router.Handle("DELETE /oauth/{platform}/disconnect", authed(s.handleOAuthDisconnect))

	// Background multi-platform publishing
	s.router.Handle("POST /api/v1/publish", authed(s.handleEnqueuePublish))
	s.router.Handle("GET /api/v1/publish/{id}", authed(s.handleGetPublishJob))
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleSwaggerDoc serves the registered OpenAPI document.
func (s *Server) handleSwaggerDoc(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		writeError(w, http.StatusNotFound, "api documentation not registered")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(doc))
}
