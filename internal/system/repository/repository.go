package repository

import (
	"context"

	"sso-identity-provider/internal/system/domain"
)

// Repository defines lookups against the system registry. Missing systems are returned as nil, nil.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.System, error)
	GetByCode(ctx context.Context, code string) (*domain.System, error)
	GetByName(ctx context.Context, name string) (*domain.System, error)
}
