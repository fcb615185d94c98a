// Package auth resolves a connect-time token to a user. Token issuance
// lives elsewhere; this package only verifies.
package auth

//go:generate mockgen -source=verifier.go -destination=mock_verifier.go -package=auth

import (
	"context"

	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
)

// Verifier returns domain.ErrNotAuthenticated for missing, expired or forged tokens.
type Verifier interface {
	Verify(ctx context.Context, token string) (domain.User, error)
}
