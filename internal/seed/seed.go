// Package seed loads YAML manifests of roles and users and applies them to
// the credential store.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/magadiflo/usersvc/internal/services"
	"github.com/magadiflo/usersvc/internal/storage"
	"github.com/magadiflo/usersvc/internal/store"
	"github.com/magadiflo/usersvc/types"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	maxManifestBytes    = 1 << 20
	manifestContentType = "application/yaml"
)

//go:embed default.yaml
var defaultManifest []byte

// Manifest lists roles to create and users to create with their roles.
type Manifest struct {
	Roles []string `yaml:"roles"`
	Users []User   `yaml:"users"`
}

type User struct {
	Name     string   `yaml:"name"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	Roles    []string `yaml:"roles"`
}

// Validate checks that every entry is complete and that users only reference
// roles the manifest declares.
func (m Manifest) Validate() error {
	var errs []error
	declared := make(map[string]bool, len(m.Roles))
	for i, role := range m.Roles {
		role = strings.TrimSpace(role)
		if role == "" {
			errs = append(errs, fmt.Errorf("roles[%d]: name is required", i))
			continue
		}
		declared[role] = true
	}

	seen := make(map[string]bool, len(m.Users))
	for i, u := range m.Users {
		username := strings.TrimSpace(u.Username)
		if username == "" || strings.TrimSpace(u.Name) == "" || u.Password == "" {
			errs = append(errs, fmt.Errorf("users[%d]: name, username and password are required", i))
		}
		if len(u.Password) > services.MaxPasswordBytes {
			errs = append(errs, fmt.Errorf("users[%d]: password must be at most %d bytes", i, services.MaxPasswordBytes))
		}
		if seen[username] {
			errs = append(errs, fmt.Errorf("users[%d]: duplicate username %q", i, username))
		}
		seen[username] = true
		for _, role := range u.Roles {
			if !declared[strings.TrimSpace(role)] {
				errs = append(errs, fmt.Errorf("users[%d]: role %q is not declared", i, role))
			}
		}
	}
	return errors.Join(errs...)
}

// Parse decodes and validates a YAML manifest. Unknown fields are rejected.
func Parse(data []byte) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Default returns the embedded manifest with the built-in roles.
func Default() Manifest {
	m, err := Parse(defaultManifest)
	if err != nil {
		panic(fmt.Sprintf("embedded seed manifest: %v", err))
	}
	return m
}

// Source selects where a manifest comes from. File wins over ObjectKey; with
// neither set the embedded default is used.
type Source struct {
	File      string
	ObjectKey string
}

// Load reads the manifest named by src. objects may be nil unless
// src.ObjectKey is the chosen source.
func Load(ctx context.Context, src Source, objects *storage.Storage) (Manifest, error) {
	switch {
	case src.File != "":
		data, err := os.ReadFile(src.File)
		if err != nil {
			return Manifest{}, fmt.Errorf("read manifest: %w", err)
		}
		return Parse(data)
	case src.ObjectKey != "":
		if objects == nil {
			return Manifest{}, errors.New("object storage is not configured")
		}
		data, err := objects.ReadAll(ctx, src.ObjectKey, maxManifestBytes)
		if err != nil {
			return Manifest{}, fmt.Errorf("download manifest: %w", err)
		}
		return Parse(data)
	default:
		return Default(), nil
	}
}

// Push validates the manifest in data and uploads it under key.
func Push(ctx context.Context, objects *storage.Storage, key string, data []byte) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("object key is required")
	}
	if _, err := Parse(data); err != nil {
		return err
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	return objects.PutBytes(ctx, key, data, manifestContentType)
}

// Accounts is the subset of the user service the seeder drives.
type Accounts interface {
	GetUser(ctx context.Context, username string) (types.User, error)
	SaveUser(ctx context.Context, name, username, password string) (types.User, error)
	GetRole(ctx context.Context, name string) (types.Role, error)
	SaveRole(ctx context.Context, name string) (types.Role, error)
	AddRoleToUser(ctx context.Context, username, roleName string) error
}

// Result counts what Apply created.
type Result struct {
	RolesCreated int
	UsersCreated int
	Assignments  int
}

// Apply creates missing roles and users and grants the listed roles. Existing
// entries are left alone, so applying the same manifest twice is a no-op.
func Apply(ctx context.Context, accounts Accounts, m Manifest, lg *zap.SugaredLogger) (Result, error) {
	if lg == nil {
		lg = zap.NewNop().Sugar()
	}
	var res Result

	for _, name := range m.Roles {
		created, err := ensure(
			func() error { _, err := accounts.GetRole(ctx, name); return err },
			func() error { _, err := accounts.SaveRole(ctx, name); return err },
		)
		if err != nil {
			return res, fmt.Errorf("seed role %q: %w", name, err)
		}
		if created {
			res.RolesCreated++
		}
	}

	for _, u := range m.Users {
		existing, err := accounts.GetUser(ctx, u.Username)
		switch {
		case err == nil:
		case errors.Is(err, store.ErrNotFound):
			existing, err = accounts.SaveUser(ctx, u.Name, u.Username, u.Password)
			if err != nil && !errors.Is(err, store.ErrConflict) {
				return res, fmt.Errorf("seed user %q: %w", u.Username, err)
			}
			if err == nil {
				res.UsersCreated++
			}
		default:
			return res, fmt.Errorf("seed user %q: %w", u.Username, err)
		}

		for _, role := range u.Roles {
			if existing.HasRole(role) {
				continue
			}
			if err := accounts.AddRoleToUser(ctx, u.Username, role); err != nil {
				return res, fmt.Errorf("seed role %q for %q: %w", role, u.Username, err)
			}
			res.Assignments++
		}
	}

	lg.Infow("seed applied",
		"roles_created", res.RolesCreated,
		"users_created", res.UsersCreated,
		"assignments", res.Assignments,
	)
	return res, nil
}

// ensure runs create when lookup reports ErrNotFound. A concurrent create
// that wins the race is not an error.
func ensure(lookup, create func() error) (bool, error) {
	err := lookup()
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	if err := create(); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
