package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magadiflo/usersvc/types"
)

const selectUsersWithRoles = `
		SELECT u.id, u.name, u.username, u.password_hash, r.id, r.name
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		LEFT JOIN roles r ON r.id = ur.role_id`

// UserRepository handles persistence for users and their role assignments.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	rows, err := r.db.QueryContext(ctx, selectUsersWithRoles+`
		ORDER BY u.id, r.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanUsers(rows)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	rows, err := r.db.QueryContext(ctx, selectUsersWithRoles+`
		WHERE u.username = $1
		ORDER BY r.id`, username)
	if err != nil {
		return types.User{}, err
	}
	defer rows.Close()

	users, err := scanUsers(rows)
	if err != nil {
		return types.User{}, err
	}
	if len(users) == 0 {
		return types.User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	return users[0], nil
}

// Create inserts the user without roles. Role assignment goes through AddRole.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	const query = `
		INSERT INTO users (name, username, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Name,
		user.Username,
		user.PasswordHash,
	).Scan(&user.ID); err != nil {
		if isUniqueViolation(err) {
			return types.User{}, fmt.Errorf("user %q: %w", user.Username, ErrConflict)
		}
		return types.User{}, err
	}
	user.Roles = []types.Role{}
	return user, nil
}

// AddRole grants roleName to username in a single transaction. The user row
// is locked so concurrent assignments to the same user serialize.
// Assigning a role the user already holds is a no-op.
func (r *UserRepository) AddRole(ctx context.Context, username, roleName string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var userID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE username = $1 FOR UPDATE`, username).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("user %q: %w", username, ErrNotFound)
		}
		return err
	}

	var roleID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM roles WHERE name = $1`, roleName).Scan(&roleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("role %q: %w", roleName, ErrNotFound)
		}
		return err
	}

	const insert = `
		INSERT INTO user_roles (user_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`
	if _, err := tx.ExecContext(ctx, insert, userID, roleID); err != nil {
		return err
	}

	return tx.Commit()
}

// scanUsers folds the user/role join rows into users, keeping row order.
func scanUsers(rows *sql.Rows) ([]types.User, error) {
	users := make([]types.User, 0)
	index := make(map[int64]int)
	for rows.Next() {
		var user types.User
		var roleID sql.NullInt64
		var roleName sql.NullString
		if err := rows.Scan(
			&user.ID,
			&user.Name,
			&user.Username,
			&user.PasswordHash,
			&roleID,
			&roleName,
		); err != nil {
			return nil, err
		}

		i, seen := index[user.ID]
		if !seen {
			user.Roles = []types.Role{}
			users = append(users, user)
			i = len(users) - 1
			index[user.ID] = i
		}
		if roleID.Valid {
			users[i].Roles = append(users[i].Roles, types.Role{ID: roleID.Int64, Name: roleName.String})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}
