package repository

import (
	"context"
	"time"

	"sso-identity-provider/internal/exchange/domain"
)

// Repository defines persistence for exchange codes.
type Repository interface {
	Create(ctx context.Context, c *domain.Code) error
	// Consume marks the code used if it belongs to systemID, is unused and is unexpired at now,
	// and returns it. It returns nil when no row qualified.
	Consume(ctx context.Context, id, systemID string, now time.Time) (*domain.Code, error)
}
