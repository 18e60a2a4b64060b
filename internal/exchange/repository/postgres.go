package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sso-identity-provider/internal/db"
	"sso-identity-provider/internal/exchange/domain"
)

const codeColumns = `id, system_id, user_id, session_id, created_at, expires_at, used_at, device, ip_address`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an exchange code repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, c *domain.Code) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO exchange_codes (`+codeColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.SystemID, c.UserID, c.SessionID, c.CreatedAt, c.ExpiresAt, db.NullTime(c.UsedAt), c.Device, db.NullString(c.IPAddress))
	return err
}

// Consume is a single conditional UPDATE, so two concurrent redemptions cannot both see a row.
func (r *PostgresRepository) Consume(ctx context.Context, id, systemID string, now time.Time) (*domain.Code, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE exchange_codes SET used_at = $3
		 WHERE id = $1 AND system_id = $2 AND used_at IS NULL AND expires_at > $3
		 RETURNING `+codeColumns,
		id, systemID, now)
	var c domain.Code
	var usedAt sql.NullTime
	var ip sql.NullString
	err := row.Scan(&c.ID, &c.SystemID, &c.UserID, &c.SessionID, &c.CreatedAt, &c.ExpiresAt, &usedAt, &c.Device, &ip)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.UsedAt = db.TimePtr(usedAt)
	c.IPAddress = ip.String
	return &c, nil
}
