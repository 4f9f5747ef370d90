package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
)

// Ensure Verifier implements TokenVerifier
var _ driven.TokenVerifier = (*Verifier)(nil)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// jwtClaims carries the user id in the standard sub claim. Tokens issued
// by older backends put it in user_id instead.
type jwtClaims struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier signs and validates HS256 bearer tokens.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a verifier for the shared JWT secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// GenerateToken creates a signed JWT from domain claims
func (v *Verifier) GenerateToken(claims *domain.TokenClaims) (string, error) {
	if claims == nil || claims.UserID == "" {
		return "", fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	jc := jwtClaims{
		Email: claims.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  claims.UserID,
			IssuedAt: jwt.NewNumericDate(time.Unix(claims.IssuedAt, 0)),
		},
	}
	if claims.ExpiresAt > 0 {
		jc.ExpiresAt = jwt.NewNumericDate(time.Unix(claims.ExpiresAt, 0))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jc).SignedString(v.secret)
}

// ParseToken validates a JWT and extracts domain claims
func (v *Verifier) ParseToken(tokenString string) (*domain.TokenClaims, error) {
	var jc jwtClaims
	token, err := jwt.ParseWithClaims(tokenString, &jc, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	userID := jc.Subject
	if userID == "" {
		userID = jc.UserID
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	out := &domain.TokenClaims{UserID: userID, Email: jc.Email}
	if jc.IssuedAt != nil {
		out.IssuedAt = jc.IssuedAt.Unix()
	}
	if jc.ExpiresAt != nil {
		out.ExpiresAt = jc.ExpiresAt.Unix()
	}
	return out, nil
}
