package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/magadiflo/usersvc/types"
)

// Memory is a process-local credential store for development and tests.
// Users and Roles share one lock, so AddRole is atomic like the SQL version.
type Memory struct {
	mu         sync.RWMutex
	users      map[string]*types.User
	roles      map[string]types.Role
	nextUserID int64
	nextRoleID int64
}

func NewMemory() *Memory {
	return &Memory{
		users: make(map[string]*types.User),
		roles: make(map[string]types.Role),
	}
}

// Users returns a UserRepository view over the store.
func (m *Memory) Users() *MemoryUserRepository {
	return &MemoryUserRepository{m: m}
}

// Roles returns a RoleRepository view over the store.
func (m *Memory) Roles() *MemoryRoleRepository {
	return &MemoryRoleRepository{m: m}
}

type MemoryUserRepository struct {
	m *Memory
}

func (r *MemoryUserRepository) List(ctx context.Context) ([]types.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	users := make([]types.User, 0, len(r.m.users))
	for _, user := range r.m.users {
		users = append(users, copyUser(user))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *MemoryUserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	user, ok := r.m.users[username]
	if !ok {
		return types.User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	return copyUser(user), nil
}

func (r *MemoryUserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, exists := r.m.users[user.Username]; exists {
		return types.User{}, fmt.Errorf("user %q: %w", user.Username, ErrConflict)
	}
	r.m.nextUserID++
	user.ID = r.m.nextUserID
	user.Roles = []types.Role{}
	stored := user
	r.m.users[user.Username] = &stored
	return copyUser(&stored), nil
}

func (r *MemoryUserRepository) AddRole(ctx context.Context, username, roleName string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	user, ok := r.m.users[username]
	if !ok {
		return fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	role, ok := r.m.roles[roleName]
	if !ok {
		return fmt.Errorf("role %q: %w", roleName, ErrNotFound)
	}
	if user.HasRole(role.Name) {
		return nil
	}
	user.Roles = append(user.Roles, role)
	sort.Slice(user.Roles, func(i, j int) bool { return user.Roles[i].ID < user.Roles[j].ID })
	return nil
}

type MemoryRoleRepository struct {
	m *Memory
}

func (r *MemoryRoleRepository) List(ctx context.Context) ([]types.Role, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	roles := make([]types.Role, 0, len(r.m.roles))
	for _, role := range r.m.roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	return roles, nil
}

func (r *MemoryRoleRepository) GetByName(ctx context.Context, name string) (types.Role, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	role, ok := r.m.roles[name]
	if !ok {
		return types.Role{}, fmt.Errorf("role %q: %w", name, ErrNotFound)
	}
	return role, nil
}

func (r *MemoryRoleRepository) Create(ctx context.Context, role types.Role) (types.Role, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, exists := r.m.roles[role.Name]; exists {
		return types.Role{}, fmt.Errorf("role %q: %w", role.Name, ErrConflict)
	}
	r.m.nextRoleID++
	role.ID = r.m.nextRoleID
	r.m.roles[role.Name] = role
	return role, nil
}

func copyUser(user *types.User) types.User {
	out := *user
	out.Roles = append([]types.Role{}, user.Roles...)
	return out
}
