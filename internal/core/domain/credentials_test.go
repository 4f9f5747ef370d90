package domain

import (
	"testing"
	"time"
)

func TestPlatformConnection_NeedsRefresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	buffer := 5 * time.Minute

	tests := []struct {
		name     string
		expires  *time.Time
		expected bool
	}{
		{"no expiry", nil, false},
		{"far from expiry", ptrTime(now.Add(time.Hour)), false},
		{"one second before boundary", ptrTime(now.Add(buffer + time.Second)), false},
		{"exactly at boundary", ptrTime(now.Add(buffer)), true},
		{"inside buffer", ptrTime(now.Add(time.Minute)), true},
		{"already expired", ptrTime(now.Add(-time.Minute)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &PlatformConnection{ExpiresAt: tt.expires}
			if got := c.NeedsRefresh(now, buffer); got != tt.expected {
				t.Errorf("NeedsRefresh() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestPlatformConnection_IsExpiredAndStale(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	c := &PlatformConnection{Connected: true, AccessToken: "a", ExpiresAt: &past}
	if !c.IsExpired(now) {
		t.Error("expected expired")
	}
	if !c.IsStale(now) {
		t.Error("expected stale without refresh token")
	}

	c.RefreshToken = "r"
	if c.IsStale(now) {
		t.Error("expected not stale with refresh token")
	}

	c.ExpiresAt = &future
	if c.IsExpired(now) {
		t.Error("expected not expired")
	}

	c.ExpiresAt = nil
	if c.IsExpired(now) {
		t.Error("nil expiry should be treated as non-expiring")
	}
}

func TestPlatformConnection_Validate(t *testing.T) {
	c := &PlatformConnection{Connected: true}
	if err := c.Validate(); err == nil {
		t.Error("expected error for connected record without token")
	}
	c.AccessToken = "token"
	if err := c.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (&PlatformConnection{}).Validate(); err != nil {
		t.Errorf("disconnected record should validate: %v", err)
	}
}

func TestPlatformConnection_ApplyTokensKeepsRefreshToken(t *testing.T) {
	now := time.Now()
	c := &PlatformConnection{AccessToken: "old", RefreshToken: "keep-me"}
	exp := now.Add(time.Hour)

	c.ApplyTokens(TokenUpdate{AccessToken: "new", ExpiresAt: &exp, RefreshedAt: now})

	if c.AccessToken != "new" {
		t.Errorf("expected new access token, got %s", c.AccessToken)
	}
	if c.RefreshToken != "keep-me" {
		t.Errorf("expected refresh token kept, got %s", c.RefreshToken)
	}
	if c.LastRefreshedAt == nil || !c.LastRefreshedAt.Equal(now) {
		t.Error("expected LastRefreshedAt to be set")
	}

	c.ApplyTokens(TokenUpdate{AccessToken: "newer", RefreshToken: "rotated", RefreshedAt: now})
	if c.RefreshToken != "rotated" {
		t.Errorf("expected rotated refresh token, got %s", c.RefreshToken)
	}
}

func TestPlatformConnection_PageAndAccount(t *testing.T) {
	c := &PlatformConnection{
		Pages:    []FacebookPage{{ID: "p1", AccessToken: "pt1"}, {ID: "p2", AccessToken: "pt2"}},
		Accounts: []InstagramAccount{{ID: "ig1", PageID: "p1"}, {ID: "ig2", PageID: "p2"}},
	}

	if p, ok := c.Page("p2"); !ok || p.AccessToken != "pt2" {
		t.Errorf("expected page p2, got %+v", p)
	}
	if _, ok := c.Page("missing"); ok {
		t.Error("expected missing page")
	}
	if a, ok := c.Account(""); !ok || a.ID != "ig1" {
		t.Errorf("expected first account, got %+v", a)
	}
	if a, ok := c.Account("ig2"); !ok || a.PageID != "p2" {
		t.Errorf("expected ig2, got %+v", a)
	}
	if _, ok := (&PlatformConnection{}).Account(""); ok {
		t.Error("expected no account")
	}
}

func TestPlatformConnection_ToSummaryHidesTokens(t *testing.T) {
	c := &PlatformConnection{
		Connected:        true,
		AccessToken:      "secret",
		PlatformUsername: "alice",
		Pages:            []FacebookPage{{ID: "p1", Name: "Shop", AccessToken: "page-secret"}},
		ConnectedAt:      time.Now(),
	}

	s := c.ToSummary(PlatformFacebook, true)
	if !s.Connected || !s.Configured {
		t.Errorf("unexpected flags: %+v", s)
	}
	if s.Username != "alice" {
		t.Errorf("expected username alice, got %s", s.Username)
	}
	if len(s.Pages) != 1 || s.Pages[0].Name != "Shop" {
		t.Errorf("expected one page summary, got %+v", s.Pages)
	}

	var nilConn *PlatformConnection
	if nilConn.ToSummary(PlatformTwitter, false).Connected {
		t.Error("nil connection should be disconnected")
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
