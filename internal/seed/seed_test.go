package seed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/magadiflo/usersvc/internal/services"
	"github.com/magadiflo/usersvc/internal/storage"
	"github.com/magadiflo/usersvc/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain:" + password, nil }

type bucket struct {
	objects map[string][]byte
}

func (b *bucket) EnsureBucket(context.Context) error { return nil }

func (b *bucket) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.objects[key] = data
	return nil
}

func (b *bucket) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, storage.ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *bucket) Bucket() string { return "seeds" }
func (b *bucket) Close() error   { return nil }

func newAccounts() *services.UserService {
	mem := store.NewMemory()
	return services.NewUserService(mem.Users(), mem.Roles(), plainHasher{}, nil)
}

const devManifest = `
roles: [ROLE_USER, ROLE_ADMIN]
users:
  - name: Alice
    username: alice
    password: pw
    roles: [ROLE_ADMIN]
  - name: Bob
    username: bob
    password: pw
`

func TestDefaultManifest(t *testing.T) {
	m := Default()
	assert.Equal(t, []string{"ROLE_USER", "ROLE_MANAGER", "ROLE_ADMIN", "ROLE_SUPER_ADMIN"}, m.Roles)
	assert.Empty(t, m.Users)
}

func TestDevelopmentManifestParses(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "development", "seed.yaml"))
	require.NoError(t, err)
	m, err := Parse(data)
	require.NoError(t, err)
	assert.Len(t, m.Users, 6)
}

func TestParseRejectsInvalidManifests(t *testing.T) {
	tests := []struct {
		name, doc, want string
	}{
		{name: "unknown field", doc: "roles: [ROLE_USER]\ngroups: []\n", want: "decode manifest"},
		{name: "blank role", doc: "roles: [\"\"]\n", want: "roles[0]: name is required"},
		{name: "missing password", doc: "users:\n  - name: A\n    username: a\n", want: "users[0]: name, username and password are required"},
		{name: "undeclared role", doc: "users:\n  - {name: A, username: a, password: p, roles: [ROLE_X]}\n", want: `role "ROLE_X" is not declared`},
		{name: "password too long", doc: "users:\n  - {name: A, username: a, password: " + strings.Repeat("x", 73) + "}\n", want: "users[0]: password must be at most 72 bytes"},
		{name: "duplicate user", doc: "users:\n  - {name: A, username: a, password: p}\n  - {name: B, username: a, password: p}\n", want: `duplicate username "a"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	accounts := newAccounts()
	m, err := Parse([]byte(devManifest))
	require.NoError(t, err)

	res, err := Apply(ctx, accounts, m, nil)
	require.NoError(t, err)
	assert.Equal(t, Result{RolesCreated: 2, UsersCreated: 2, Assignments: 1}, res)

	res, err = Apply(ctx, accounts, m, nil)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)

	alice, err := accounts.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_ADMIN"}, alice.RoleNames())
	assert.Equal(t, "plain:pw", alice.PasswordHash)
}

func TestApplyKeepsExistingUsers(t *testing.T) {
	ctx := context.Background()
	accounts := newAccounts()
	_, err := accounts.SaveUser(ctx, "Alice", "alice", "original")
	require.NoError(t, err)

	m, err := Parse([]byte(devManifest))
	require.NoError(t, err)
	res, err := Apply(ctx, accounts, m, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.UsersCreated)

	alice, err := accounts.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "plain:original", alice.PasswordHash)
	assert.True(t, alice.HasRole("ROLE_ADMIN"))
}

func TestLoadSources(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	file := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(file, []byte(devManifest), 0o600))

	m, err := Load(ctx, Source{File: file}, nil)
	require.NoError(t, err)
	assert.Len(t, m.Users, 2)

	m, err = Load(ctx, Source{}, nil)
	require.NoError(t, err)
	assert.Len(t, m.Roles, 4)

	_, err = Load(ctx, Source{ObjectKey: "seeds/dev.yaml"}, nil)
	assert.EqualError(t, err, "object storage is not configured")

	objects := storage.NewStorage(&bucket{objects: map[string][]byte{}})
	require.NoError(t, Push(ctx, objects, "seeds/dev.yaml", []byte(devManifest)))
	m, err = Load(ctx, Source{ObjectKey: "seeds/dev.yaml"}, objects)
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_USER", "ROLE_ADMIN"}, m.Roles)

	_, err = Load(ctx, Source{ObjectKey: "seeds/missing.yaml"}, objects)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)

	assert.Error(t, Push(ctx, objects, "seeds/bad.yaml", []byte("groups: []\n")))
	assert.EqualError(t, Push(ctx, objects, " ", []byte(devManifest)), "object key is required")
}
