package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sso-identity-provider/internal/audit/domain"
)

func TestPostgresRepository_Create(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs("a1", "logout", "u1", "10.0.0.1", []byte(`{"sessions_revoked":2}`), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewPostgresRepository(conn).Create(context.Background(), &domain.AuditLog{
		ID: "a1", EventType: "logout", UserID: "u1", IP: "10.0.0.1",
		Detail: json.RawMessage(`{"sessions_revoked":2}`), CreatedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Create_NoDetailNoUser(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs("a2", "login", nil, "unknown", nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewPostgresRepository(conn).Create(context.Background(), &domain.AuditLog{ID: "a2", EventType: "login", IP: "unknown", CreatedAt: now})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
