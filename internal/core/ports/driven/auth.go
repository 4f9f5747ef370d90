package driven

import "github.com/clickstudio/connect-core/internal/core/domain"

// TokenVerifier issues and validates API bearer tokens.
type TokenVerifier interface {
	GenerateToken(claims *domain.TokenClaims) (string, error)
	ParseToken(token string) (*domain.TokenClaims, error)
}
