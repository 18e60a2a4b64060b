package repository

import (
	"context"

	"sso-identity-provider/internal/audit/domain"
)

// Repository defines persistence for audit logs. The log is append-only.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
}
