package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchPath(t *testing.T) {
	tests := []struct {
		pattern, path string
		want          bool
	}{
		{"/api/login/**", "/api/login", true},
		{"/api/login/**", "/api/login/", true},
		{"/api/login/**", "/api/login/sso", true},
		{"/api/login/**", "/api/loginx", false},
		{"/healthz", "/healthz", true},
		{"/healthz", "/healthz/deep", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchPath(tt.pattern, tt.path), "%s vs %s", tt.pattern, tt.path)
	}
}

func TestDefaultPolicyDecide(t *testing.T) {
	p := DefaultPolicy()
	user := Identity{Username: "u", Authorities: []string{"ROLE_USER"}}
	admin := Identity{Username: "a", Authorities: []string{"ROLE_ADMIN"}}

	tests := []struct {
		name          string
		method, path  string
		id            Identity
		authenticated bool
		want          error
	}{
		{name: "login is public", method: http.MethodPost, path: "/api/login"},
		{name: "refresh is public", method: http.MethodGet, path: "/api/token/refresh"},
		{name: "health is public", method: http.MethodGet, path: "/healthz"},
		{name: "users anonymous", method: http.MethodGet, path: "/api/users", want: ErrUnauthenticated},
		{name: "users without ROLE_USER", method: http.MethodGet, path: "/api/users", id: admin, authenticated: true, want: ErrAccessDenied},
		{name: "users with ROLE_USER", method: http.MethodGet, path: "/api/users", id: user, authenticated: true},
		{name: "user save without ROLE_ADMIN", method: http.MethodPost, path: "/api/user/save", id: user, authenticated: true, want: ErrAccessDenied},
		{name: "user save with ROLE_ADMIN", method: http.MethodPost, path: "/api/user/save", id: admin, authenticated: true},
		{name: "role save authenticated", method: http.MethodPost, path: "/api/role/save", id: user, authenticated: true},
		{name: "role save with no roles", method: http.MethodPost, path: "/api/role/save", id: Identity{Username: "n"}, authenticated: true},
		{name: "role save anonymous", method: http.MethodPost, path: "/api/role/save", want: ErrUnauthenticated},
		{name: "users via other method", method: http.MethodPost, path: "/api/users", id: admin, authenticated: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Decide(tt.method, tt.path, tt.id, tt.authenticated)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPublicPaths(t *testing.T) {
	assert.Equal(t, []string{"/api/login/**", "/api/token/refresh/**", "/healthz"}, DefaultPolicy().PublicPaths())
}

func TestEnforceWithAuthorize(t *testing.T) {
	codec := newTestCodec(t, time.Now())
	policy := DefaultPolicy()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := Authorize(codec, nil, policy.PublicPaths()...)(Enforce(policy, nil)(ok))

	withUser, err := codec.Issue("alice", "", time.Minute, []string{"ROLE_USER"})
	require.NoError(t, err)
	withoutUser, err := codec.Issue("alice", "", time.Minute, []string{"ROLE_ADMIN"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/users", withUser).Code)

	w := serve(h, http.MethodGet, "/api/users", withoutUser)
	assert.Equal(t, http.StatusForbidden, w.Code)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "access denied", body.ErrorMessage)
	assert.Equal(t, "access denied", w.Header().Get("error"))

	w = serve(h, http.MethodGet, "/api/users", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, ErrUnauthenticated.Error(), w.Header().Get("error"))

	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/api/login", "").Code)
}

func TestEnforceCustomPolicy(t *testing.T) {
	p := NewPolicy(Rule{Method: http.MethodDelete, Pattern: "/api/**", Authority: "ROLE_SUPER_ADMIN"})
	req := httptest.NewRequest(http.MethodDelete, "/api/user/alice", nil)
	req = req.WithContext(WithIdentity(req.Context(), Identity{Username: "root", Authorities: []string{"ROLE_SUPER_ADMIN"}}))
	w := httptest.NewRecorder()

	Enforce(p, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
