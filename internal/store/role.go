package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magadiflo/usersvc/types"
)

// RoleRepository handles persistence for roles.
type RoleRepository struct {
	db *sql.DB
}

func NewRoleRepository(db *sql.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) List(ctx context.Context) ([]types.Role, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM roles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make([]types.Role, 0)
	for rows.Next() {
		var role types.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *RoleRepository) GetByName(ctx context.Context, name string) (types.Role, error) {
	var role types.Role
	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM roles WHERE name = $1`, name).Scan(&role.ID, &role.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Role{}, fmt.Errorf("role %q: %w", name, ErrNotFound)
		}
		return types.Role{}, err
	}
	return role, nil
}

func (r *RoleRepository) Create(ctx context.Context, role types.Role) (types.Role, error) {
	const query = `
		INSERT INTO roles (name)
		VALUES ($1)
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, role.Name).Scan(&role.ID); err != nil {
		if isUniqueViolation(err) {
			return types.Role{}, fmt.Errorf("role %q: %w", role.Name, ErrConflict)
		}
		return types.Role{}, err
	}
	return role, nil
}
