package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sso-identity-provider/internal/db"
	"sso-identity-provider/internal/security"
	"sso-identity-provider/internal/session/domain"
)

const sessionColumns = `id, user_id, token_id, kind, audience, scope, issued_at, expires_at, revoked, revoked_at, device, ip_address`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the session. The session must have ID and TokenID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.UserID, s.TokenID, string(s.Kind), s.Audience, s.Scope, s.IssuedAt, s.ExpiresAt,
		s.Revoked, db.NullTime(s.RevokedAt), s.Device, db.NullString(s.IPAddress),
	)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: user %s token %s", ErrDuplicate, s.UserID, s.TokenID)
	}
	return err
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	return scanOne(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
}

// GetActive returns the matching active session or nil.
func (r *PostgresRepository) GetActive(ctx context.Context, userID, tokenID string, kind security.Kind, now time.Time) (*domain.Session, error) {
	return scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = $1 AND token_id = $2 AND kind = $3 AND revoked = FALSE AND expires_at > $4`,
		userID, tokenID, string(kind), now))
}

// Revoke marks one (tokenID set) or all sessions of userID still active at at as revoked.
func (r *PostgresRepository) Revoke(ctx context.Context, userID, tokenID string, at time.Time) (int64, error) {
	var res sql.Result
	var err error
	if tokenID == "" {
		res, err = r.db.ExecContext(ctx,
			`UPDATE sessions SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2`,
			userID, at)
	} else {
		res, err = r.db.ExecContext(ctx,
			`UPDATE sessions SET revoked = TRUE, revoked_at = $3 WHERE user_id = $1 AND token_id = $2 AND revoked = FALSE AND expires_at > $3`,
			userID, tokenID, at)
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListActive returns unrevoked, unexpired sessions of userID, newest first.
func (r *PostgresRepository) ListActive(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2
		 ORDER BY issued_at DESC`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scan(row scanner) (*domain.Session, error) {
	var s domain.Session
	var kind string
	var revokedAt sql.NullTime
	var ip sql.NullString
	if err := row.Scan(&s.ID, &s.UserID, &s.TokenID, &kind, &s.Audience, &s.Scope, &s.IssuedAt, &s.ExpiresAt,
		&s.Revoked, &revokedAt, &s.Device, &ip); err != nil {
		return nil, err
	}
	s.Kind = security.Kind(kind)
	s.RevokedAt = db.TimePtr(revokedAt)
	s.IPAddress = ip.String
	return &s, nil
}

func scanOne(row *sql.Row) (*domain.Session, error) {
	s, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}
