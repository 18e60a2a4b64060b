package repository

import (
	"context"

	"sso-identity-provider/internal/role/domain"
)

// Repository resolves a user's current roles and the module grants behind them.
type Repository interface {
	ListByUser(ctx context.Context, userID string) ([]*domain.Role, error)
	ModuleGrants(ctx context.Context, roleIDs []string, systemID string) ([]domain.ModuleGrant, error)
}
