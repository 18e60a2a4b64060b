package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sso-identity-provider/internal/db"
	"sso-identity-provider/internal/refresh/domain"
)

const refreshColumns = `id, token_hash, user_id, system_id, session_id, created_at, expires_at, revoked, revoked_at, replaced_by, device, ip_address`

const insertRefresh = `INSERT INTO refresh_tokens (` + refreshColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a refresh token repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	return insert(ctx, r.db, t)
}

// GetByHash returns the refresh token for hash, or nil if not found.
func (r *PostgresRepository) GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+refreshColumns+` FROM refresh_tokens WHERE token_hash = $1`, hash)
	var t domain.RefreshToken
	var systemID, sessionID, replacedBy, ip sql.NullString
	var revokedAt sql.NullTime
	err := row.Scan(&t.ID, &t.TokenHash, &t.UserID, &systemID, &sessionID, &t.CreatedAt, &t.ExpiresAt,
		&t.Revoked, &revokedAt, &replacedBy, &t.Device, &ip)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.SystemID = systemID.String
	t.SessionID = sessionID.String
	t.ReplacedBy = replacedBy.String
	t.IPAddress = ip.String
	t.RevokedAt = db.TimePtr(revokedAt)
	return &t, nil
}

// Rotate runs the conditional revoke and the successor insert in one transaction.
func (r *PostgresRepository) Rotate(ctx context.Context, oldHash string, next *domain.RefreshToken, now time.Time) (bool, error) {
	rotated := false
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2, replaced_by = $3
			 WHERE token_hash = $1 AND revoked = FALSE AND expires_at > $2`,
			oldHash, now, next.TokenHash)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if err := insert(ctx, tx, next); err != nil {
			return err
		}
		rotated = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return rotated, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, hash string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE token_hash = $1 AND revoked = FALSE`,
		hash, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *PostgresRepository) RevokeAllByUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`,
		userID, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func insert(ctx context.Context, e execer, t *domain.RefreshToken) error {
	_, err := e.ExecContext(ctx, insertRefresh,
		t.ID, t.TokenHash, t.UserID, db.NullString(t.SystemID), db.NullString(t.SessionID), t.CreatedAt, t.ExpiresAt,
		t.Revoked, db.NullTime(t.RevokedAt), db.NullString(t.ReplacedBy), t.Device, db.NullString(t.IPAddress))
	return err
}
