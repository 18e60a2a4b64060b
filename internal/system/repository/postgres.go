package repository

import (
	"context"
	"database/sql"
	"errors"

	"sso-identity-provider/internal/system/domain"
)

const systemColumns = `id, code, name, display_name, url, secret, enabled, created_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a system registry backed by the systems table.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the system for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.System, error) {
	return r.getOne(ctx, `SELECT `+systemColumns+` FROM systems WHERE id = $1`, id)
}

// GetByCode returns the system with the given code, or nil if not found.
func (r *PostgresRepository) GetByCode(ctx context.Context, code string) (*domain.System, error) {
	return r.getOne(ctx, `SELECT `+systemColumns+` FROM systems WHERE code = $1`, code)
}

// GetByName returns the system with the given name, or nil if not found.
func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*domain.System, error) {
	return r.getOne(ctx, `SELECT `+systemColumns+` FROM systems WHERE name = $1`, name)
}

func (r *PostgresRepository) getOne(ctx context.Context, query, arg string) (*domain.System, error) {
	var s domain.System
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&s.ID, &s.Code, &s.Name, &s.DisplayName, &s.URL, &s.Secret, &s.Enabled, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
