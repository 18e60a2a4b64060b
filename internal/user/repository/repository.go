package repository

import (
	"context"

	"sso-identity-provider/internal/user/domain"
)

// Repository defines lookups against the central user store.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByDocument(ctx context.Context, documentNumber string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
}
