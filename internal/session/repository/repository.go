package repository

import (
	"context"
	"errors"
	"time"

	"sso-identity-provider/internal/security"
	"sso-identity-provider/internal/session/domain"
)

// ErrDuplicate is returned by Create when (user_id, token_id) already exists.
var ErrDuplicate = errors.New("session already recorded")

// Repository defines persistence for session ledger records.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// GetActive returns the unrevoked, unexpired session matching user, token id and kind, or nil.
	GetActive(ctx context.Context, userID, tokenID string, kind security.Kind, now time.Time) (*domain.Session, error)
	// Revoke revokes the user's sessions that are active at at; tokenID == "" targets all of them. Returns the number revoked.
	Revoke(ctx context.Context, userID, tokenID string, at time.Time) (int64, error)
	// ListActive returns unrevoked, unexpired sessions, most recently issued first.
	ListActive(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error)
}
