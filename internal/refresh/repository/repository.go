package repository

import (
	"context"
	"time"

	"sso-identity-provider/internal/refresh/domain"
)

// Repository defines persistence for refresh credentials, keyed by token hash.
type Repository interface {
	Create(ctx context.Context, t *domain.RefreshToken) error
	// GetByHash returns the credential regardless of state, or nil if not found.
	GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error)
	// Rotate revokes oldHash (only if still unrevoked and unexpired at now), points it at next,
	// and inserts next, atomically. It returns false when oldHash was not rotatable.
	Rotate(ctx context.Context, oldHash string, next *domain.RefreshToken, now time.Time) (bool, error)
	// Revoke revokes one credential. It returns false when it was missing or already revoked.
	Revoke(ctx context.Context, hash string, at time.Time) (bool, error)
	// RevokeAllByUser revokes every unrevoked credential of userID and returns the count.
	RevokeAllByUser(ctx context.Context, userID string, at time.Time) (int64, error)
}
