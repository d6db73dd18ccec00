package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/magadiflo/usersvc/internal/store"
	"github.com/magadiflo/usersvc/types"
	"go.uber.org/zap"
)

var (
	// ErrAuthenticationFailed covers both unknown users and wrong passwords.
	ErrAuthenticationFailed = errors.New("bad credentials")
	// ErrMissingToken is returned when no bearer token was presented.
	ErrMissingToken = errors.New("refresh token is missing")
	// ErrMissingRoles is returned when a token without a roles claim is used
	// as an access token.
	ErrMissingRoles = errors.New("token carries no roles claim")
)

const (
	DefaultAccessTTL  = 10 * time.Minute
	DefaultRefreshTTL = 30 * time.Minute
)

// UserFinder loads a user with its current roles.
type UserFinder interface {
	GetUser(ctx context.Context, username string) (types.User, error)
}

// PasswordVerifier checks a clear-text password against a stored hash.
type PasswordVerifier interface {
	Verify(hash, password string) error
}

// TokenPair is the body returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Authenticator runs the login and refresh steps.
type Authenticator struct {
	users      UserFinder
	passwords  PasswordVerifier
	codec      *TokenCodec
	accessTTL  time.Duration
	refreshTTL time.Duration
	lg         *zap.SugaredLogger
}

func NewAuthenticator(users UserFinder, passwords PasswordVerifier, codec *TokenCodec, accessTTL, refreshTTL time.Duration, lg *zap.SugaredLogger) *Authenticator {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	if lg == nil {
		lg = zap.NewNop().Sugar()
	}
	return &Authenticator{
		users:      users,
		passwords:  passwords,
		codec:      codec,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		lg:         lg,
	}
}

// Login checks the credentials and mints an access token carrying the
// user's roles plus a refresh token without them.
func (a *Authenticator) Login(ctx context.Context, username, password, issuer string) (TokenPair, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return TokenPair{}, ErrAuthenticationFailed
	}

	user, err := a.users.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.lg.Infow("login rejected", "username", username)
			return TokenPair{}, ErrAuthenticationFailed
		}
		return TokenPair{}, fmt.Errorf("load user: %w", err)
	}
	if err := a.passwords.Verify(user.PasswordHash, password); err != nil {
		a.lg.Infow("login rejected", "username", username)
		return TokenPair{}, ErrAuthenticationFailed
	}

	access, err := a.codec.Issue(user.Username, issuer, a.accessTTL, user.RoleNames())
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := a.codec.Issue(user.Username, issuer, a.refreshTTL, nil)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}

	a.lg.Infow("user logged in", "username", user.Username)
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh verifies a refresh token and mints a new access token from the
// user's current roles. The refresh token itself is returned unchanged.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken, issuer string) (TokenPair, error) {
	claims, err := a.codec.Verify(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}

	user, err := a.users.GetUser(ctx, claims.Subject)
	if err != nil {
		return TokenPair{}, fmt.Errorf("refresh token subject: %w", err)
	}

	access, err := a.codec.Issue(user.Username, issuer, a.accessTTL, user.RoleNames())
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refreshToken}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// RequestURL rebuilds the URL the client called, without the query string.
// It is the default token issuer; JWT_ISSUER replaces it with a fixed value.
// X-Forwarded-Proto is client-controlled, so it is read only when
// trustForwardedProto is set.
func RequestURL(r *http.Request, trustForwardedProto bool) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if trustForwardedProto {
		if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto != "" {
			scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
		}
	}
	return scheme + "://" + r.Host + r.URL.Path
}
