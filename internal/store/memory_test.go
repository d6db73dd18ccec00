package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/magadiflo/usersvc/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySaveThenLookup(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	users := mem.Users()

	created, err := users.Create(ctx, types.User{Name: "Alice", Username: "alice", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)

	found, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", found.Username)
	assert.Empty(t, found.Roles)

	_, err = users.Create(ctx, types.User{Name: "Alice 2", Username: "alice", PasswordHash: "hash"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = users.GetByUsername(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryAddRole(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	users, roles := mem.Users(), mem.Roles()

	_, err := users.Create(ctx, types.User{Name: "Alice", Username: "alice"})
	require.NoError(t, err)
	_, err = roles.Create(ctx, types.Role{Name: "ROLE_USER"})
	require.NoError(t, err)
	_, err = roles.Create(ctx, types.Role{Name: "ROLE_ADMIN"})
	require.NoError(t, err)

	require.NoError(t, users.AddRole(ctx, "alice", "ROLE_ADMIN"))
	require.NoError(t, users.AddRole(ctx, "alice", "ROLE_USER"))
	require.NoError(t, users.AddRole(ctx, "alice", "ROLE_ADMIN"))

	user, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_USER", "ROLE_ADMIN"}, user.RoleNames())

	assert.ErrorIs(t, users.AddRole(ctx, "ghost", "ROLE_USER"), ErrNotFound)
	assert.ErrorIs(t, users.AddRole(ctx, "alice", "ROLE_GHOST"), ErrNotFound)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	users := mem.Users()
	_, err := mem.Roles().Create(ctx, types.Role{Name: "ROLE_USER"})
	require.NoError(t, err)
	_, err = users.Create(ctx, types.User{Name: "Alice", Username: "alice"})
	require.NoError(t, err)

	user, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	user.Roles = append(user.Roles, types.Role{ID: 99, Name: "ROLE_FAKE"})

	again, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, again.Roles)
}

func TestMemoryConcurrentAssignments(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	users, roles := mem.Users(), mem.Roles()

	_, err := users.Create(ctx, types.User{Name: "Alice", Username: "alice"})
	require.NoError(t, err)
	const n = 20
	for i := 0; i < n; i++ {
		_, err := roles.Create(ctx, types.Role{Name: fmt.Sprintf("ROLE_%d", i)})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, users.AddRole(ctx, "alice", fmt.Sprintf("ROLE_%d", i)))
		}(i)
	}
	wg.Wait()

	user, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, user.Roles, n)
}
