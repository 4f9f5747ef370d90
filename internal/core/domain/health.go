package domain

import "time"

// ConnectionStatus classifies the usability of a stored connection.
type ConnectionStatus string

const (
	StatusNotConnected ConnectionStatus = "not_connected"
	StatusHealthy      ConnectionStatus = "healthy"
	StatusTokenExpired ConnectionStatus = "token_expired"
	StatusError        ConnectionStatus = "error"
)

// OverallHealth is the verdict across all platforms of a user.
type OverallHealth string

const (
	OverallHealthy  OverallHealth = "healthy"
	OverallDegraded OverallHealth = "degraded"
)

// ConnectionHealth is the result of checking one platform.
type ConnectionHealth struct {
	Platform   Platform         `json:"platform"`
	Connected  bool             `json:"connected"`
	Configured bool             `json:"configured"`
	Status     ConnectionStatus `json:"status"`
	Username   string           `json:"username,omitempty"`
	ExpiresAt  *time.Time       `json:"expiresAt,omitempty"`
	CanRefresh bool             `json:"canRefresh"`
	Error      string           `json:"error,omitempty"`
	CheckedAt  time.Time        `json:"checkedAt"`
	LatencyMS  int64            `json:"latencyMs,omitempty"`
}

// HealthSummary aggregates the checks of every platform.
type HealthSummary struct {
	UserID         string             `json:"userId"`
	Overall        OverallHealth      `json:"overall"`
	ConnectedCount int                `json:"connectedCount"`
	HealthyCount   int                `json:"healthyCount"`
	Platforms      []ConnectionHealth `json:"platforms"`
	CheckedAt      time.Time          `json:"checkedAt"`
}

// Summarize computes counts and the overall verdict.
// Overall is healthy iff at least one platform is connected and all connected ones are healthy.
func Summarize(userID string, checks []ConnectionHealth, now time.Time) *HealthSummary {
	s := &HealthSummary{UserID: userID, Platforms: checks, CheckedAt: now}
	for _, c := range checks {
		if c.Connected {
			s.ConnectedCount++
		}
		if c.Status == StatusHealthy {
			s.HealthyCount++
		}
	}
	s.Overall = OverallDegraded
	if s.ConnectedCount > 0 && s.HealthyCount == s.ConnectedCount {
		s.Overall = OverallHealthy
	}
	return s
}

// RefreshFailure records a platform whose refresh failed.
type RefreshFailure struct {
	Platform Platform `json:"platform"`
	Error    string   `json:"error"`
}

// RefreshReport is the per-platform result of a refresh batch.
type RefreshReport struct {
	UserID    string           `json:"userId"`
	Refreshed []Platform       `json:"refreshed"`
	Failed    []RefreshFailure `json:"failed"`
	Skipped   []Platform       `json:"skipped,omitempty"`
}
