package repository

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"sso-identity-provider/internal/role/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a role repository that reads user_roles, roles and role_modules.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListByUser returns the roles currently assigned to userID, ordered by name.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Role, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.id, COALESCE(r.system_id, ''), r.name
		 FROM user_roles ur JOIN roles r ON r.id = ur.role_id
		 WHERE ur.user_id = $1
		 ORDER BY r.name, r.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Role
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.SystemID, &role.Name); err != nil {
			return nil, err
		}
		out = append(out, &role)
	}
	return out, rows.Err()
}

// ModuleGrants returns the module levels held by roleIDs on systemID's modules.
func (r *PostgresRepository) ModuleGrants(ctx context.Context, roleIDs []string, systemID string) ([]domain.ModuleGrant, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	args := make([]interface{}, 0, len(roleIDs)+1)
	args = append(args, systemID)
	placeholders := make([]string, len(roleIDs))
	for i, id := range roleIDs {
		args = append(args, id)
		placeholders[i] = "$" + strconv.Itoa(i+2)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT rm.role_id, m.id, m.bit_position, rm.level
		 FROM role_modules rm JOIN modules m ON m.id = rm.module_id
		 WHERE m.system_id = $1 AND rm.role_id IN (`+strings.Join(placeholders, ", ")+`)
		 ORDER BY m.bit_position`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ModuleGrant
	for rows.Next() {
		var g domain.ModuleGrant
		if err := rows.Scan(&g.RoleID, &g.ModuleID, &g.BitPosition, &g.Level); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
