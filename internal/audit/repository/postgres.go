package repository

import (
	"context"
	"database/sql"

	"sso-identity-provider/internal/audit/domain"
	"sso-identity-provider/internal/db"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the audit log. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	var detail interface{}
	if len(a.Detail) > 0 {
		detail = []byte(a.Detail)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, event_type, user_id, ip, detail, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.EventType, db.NullString(a.UserID), a.IP, detail, a.CreatedAt)
	return err
}
