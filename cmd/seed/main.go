// seed inserts development sample data for local testing: one user, one system with two
// permission modules, and a role granting both. Idempotent: skips inserts if the dev user
// (dev@example.com) already exists.
package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	"sso-identity-provider/internal/config"
	"sso-identity-provider/internal/db"
	"sso-identity-provider/internal/security"
	userdomain "sso-identity-provider/internal/user/domain"
	userrepo "sso-identity-provider/internal/user/repository"
)

const (
	devUserEmail   = "dev@example.com"
	devPassword    = "password123"
	devUserID      = "dev-user-001"
	devDocument    = "00000001"
	devSystemID    = "dev-system-001"
	devSystemCode  = "DEV"
	devSystemName  = "dev-console"
	devSecret      = "dev-system-secret"
	devRoleID      = "dev-role-001"
	devModuleRead  = "dev-module-001"
	devModuleAdmin = "dev-module-002"
	devBcryptCost  = 10
)

func main() {
	dsn, err := config.LoadDatabaseURL()
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()
	conn, err := db.Open(ctx, dsn, db.PoolConfig{})
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository(conn)
	existing, err := users.GetByEmail(ctx, devUserEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Println("Seed already applied (dev@example.com exists). Skipping.")
		return
	}

	passwordHash, err := security.NewHasher(devBcryptCost).Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()
	err = db.WithTx(ctx, conn, func(tx *sql.Tx) error {
		stmts := []struct {
			query string
			args  []any
		}{
			{`INSERT INTO systems (id, code, name, display_name, url, secret, enabled, created_at) VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)`,
				[]any{devSystemID, devSystemCode, devSystemName, "Dev Console", "http://localhost:3000", devSecret, now}},
			{`INSERT INTO roles (id, system_id, name) VALUES ($1, $2, $3)`,
				[]any{devRoleID, devSystemID, "dev-admin"}},
			{`INSERT INTO modules (id, system_id, name, bit_position) VALUES ($1, $2, $3, $4)`,
				[]any{devModuleRead, devSystemID, "reports", 0}},
			{`INSERT INTO modules (id, system_id, name, bit_position) VALUES ($1, $2, $3, $4)`,
				[]any{devModuleAdmin, devSystemID, "settings", 1}},
			{`INSERT INTO role_modules (role_id, module_id, level) VALUES ($1, $2, $3)`,
				[]any{devRoleID, devModuleRead, 7}},
			{`INSERT INTO role_modules (role_id, module_id, level) VALUES ($1, $2, $3)`,
				[]any{devRoleID, devModuleAdmin, 1}},
		}
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s.query, s.args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("seed system: %v", err)
	}

	if err := users.Create(ctx, &userdomain.User{
		ID:             devUserID,
		Email:          devUserEmail,
		Username:       "dev",
		FullName:       "Dev User",
		DocumentType:   "DNI",
		DocumentNumber: devDocument,
		PasswordHash:   passwordHash,
		Status:         userdomain.UserStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}); err != nil {
		log.Fatalf("create dev user: %v", err)
	}
	if _, err := conn.ExecContext(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, devUserID, devRoleID); err != nil {
		log.Fatalf("assign dev role: %v", err)
	}

	log.Printf("Seed applied: user %s / %s (document %s), system %s (secret %s)",
		devUserEmail, devPassword, devDocument, devSystemCode, devSecret)
}
