package domain

import "time"

// AuthContext contains authenticated user info for request context
type AuthContext struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

// TokenClaims represents the JWT token payload
type TokenClaims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// IsExpired reports whether the token is past its expiry. A zero expiry never expires.
func (c *TokenClaims) IsExpired(now time.Time) bool {
	return c.ExpiresAt != 0 && now.Unix() >= c.ExpiresAt
}

// AuthContext returns the request identity carried by the claims.
func (c *TokenClaims) AuthContext() *AuthContext {
	return &AuthContext{UserID: c.UserID, Email: c.Email}
}
