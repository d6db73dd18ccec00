package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/magadiflo/usersvc/types"
	"go.uber.org/zap"
)

// ErrInvalidInput is returned when a required field is empty.
var ErrInvalidInput = errors.New("invalid input")

const publishTimeout = 5 * time.Second

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// UserRepository defines persistence operations for users.
type UserRepository interface {
	List(ctx context.Context) ([]types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	AddRole(ctx context.Context, username, roleName string) error
}

// RoleRepository defines persistence operations for roles.
type RoleRepository interface {
	List(ctx context.Context) ([]types.Role, error)
	GetByName(ctx context.Context, name string) (types.Role, error)
	Create(ctx context.Context, role types.Role) (types.Role, error)
}

// PasswordHasher turns a clear-text password into a storable hash.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// Publisher delivers account events to a broker channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// UserService encapsulates user and role use-cases.
type UserService struct {
	users   UserRepository
	roles   RoleRepository
	hasher  PasswordHasher
	lg      *zap.SugaredLogger
	events  Publisher
	channel string
	now     func() time.Time
}

func NewUserService(users UserRepository, roles RoleRepository, hasher PasswordHasher, lg *zap.SugaredLogger) *UserService {
	if lg == nil {
		lg = zap.NewNop().Sugar()
	}
	return &UserService{
		users:  users,
		roles:  roles,
		hasher: hasher,
		lg:     lg,
		now:    time.Now,
	}
}

// PublishTo enables account events on the given channel. A nil publisher
// disables them.
func (s *UserService) PublishTo(pub Publisher, channel string) {
	s.events = pub
	s.channel = channel
}

func (s *UserService) GetUsers(ctx context.Context) ([]types.User, error) {
	s.lg.Debugw("fetching all users")
	return s.users.List(ctx)
}

func (s *UserService) GetUser(ctx context.Context, username string) (types.User, error) {
	s.lg.Debugw("fetching user", "username", username)
	return s.users.GetByUsername(ctx, strings.TrimSpace(username))
}

// SaveUser hashes the password and stores a new user with no roles.
func (s *UserService) SaveUser(ctx context.Context, name, username, password string) (types.User, error) {
	name = strings.TrimSpace(name)
	username = strings.TrimSpace(username)
	if name == "" || username == "" || password == "" {
		return types.User{}, fmt.Errorf("name, username and password are required: %w", ErrInvalidInput)
	}
	if len(password) > MaxPasswordBytes {
		return types.User{}, fmt.Errorf("password must be at most %d bytes: %w", MaxPasswordBytes, ErrInvalidInput)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	s.lg.Infow("saving new user", "username", username)
	user, err := s.users.Create(ctx, types.User{
		Name:         name,
		Username:     username,
		PasswordHash: hash,
	})
	if err != nil {
		return types.User{}, err
	}

	s.publish(ctx, types.AccountEvent{Type: types.EventUserCreated, Username: user.Username})
	return user, nil
}

func (s *UserService) GetRoles(ctx context.Context) ([]types.Role, error) {
	return s.roles.List(ctx)
}

func (s *UserService) GetRole(ctx context.Context, name string) (types.Role, error) {
	return s.roles.GetByName(ctx, strings.TrimSpace(name))
}

func (s *UserService) SaveRole(ctx context.Context, name string) (types.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Role{}, fmt.Errorf("role name is required: %w", ErrInvalidInput)
	}

	s.lg.Infow("saving new role", "role", name)
	role, err := s.roles.Create(ctx, types.Role{Name: name})
	if err != nil {
		return types.Role{}, err
	}

	s.publish(ctx, types.AccountEvent{Type: types.EventRoleCreated, RoleName: role.Name})
	return role, nil
}

// AddRoleToUser grants an existing role to an existing user. Unknown users
// or roles surface as store.ErrNotFound.
func (s *UserService) AddRoleToUser(ctx context.Context, username, roleName string) error {
	username = strings.TrimSpace(username)
	roleName = strings.TrimSpace(roleName)
	if username == "" || roleName == "" {
		return fmt.Errorf("username and roleName are required: %w", ErrInvalidInput)
	}

	s.lg.Infow("adding role to user", "role", roleName, "username", username)
	if err := s.users.AddRole(ctx, username, roleName); err != nil {
		return err
	}

	s.publish(ctx, types.AccountEvent{Type: types.EventRoleAssigned, Username: username, RoleName: roleName})
	return nil
}

// publish is best effort: broker failures are logged, never returned.
func (s *UserService) publish(ctx context.Context, event types.AccountEvent) {
	if s.events == nil {
		return
	}

	event.ID = uuid.NewString()
	event.OccurredAt = s.now().UTC()
	data, err := json.Marshal(event)
	if err != nil {
		s.lg.Warnw("encode account event", "type", event.Type, "error", err)
		return
	}

	attrs := map[string]string{"event_type": event.Type}
	if event.Username != "" {
		attrs["username"] = event.Username
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if _, err := s.events.Publish(pubCtx, s.channel, data, attrs); err != nil {
		s.lg.Warnw("publish account event", "type", event.Type, "channel", s.channel, "error", err)
	}
}
