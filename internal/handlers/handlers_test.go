package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/magadiflo/usersvc/internal/auth"
	"github.com/magadiflo/usersvc/internal/services"
	"github.com/magadiflo/usersvc/internal/store"
	"github.com/magadiflo/usersvc/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "handlers-test-secret"

type testAPI struct {
	handler http.Handler
	svc     *services.UserService
	codec   *auth.TokenCodec
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	mem := store.NewMemory()
	hasher := auth.BcryptHasher{Cost: bcrypt.MinCost}
	svc := services.NewUserService(mem.Users(), mem.Roles(), hasher, nil)
	codec, err := auth.NewTokenCodec(testSecret)
	require.NoError(t, err)
	authn := auth.NewAuthenticator(svc, hasher, codec, 0, 0, nil)
	policy := auth.DefaultPolicy()

	r := chi.NewRouter()
	r.Use(auth.Authorize(codec, nil, policy.PublicPaths()...), auth.Enforce(policy, nil))
	r.Get("/healthz", Healthz)
	r.Route("/api", func(r chi.Router) {
		AuthRouter(r, authn, IssuerConfig{}, nil)
		UserRouter(r, svc)
	})
	return &testAPI{handler: r, svc: svc, codec: codec}
}

func (a *testAPI) seedUser(t *testing.T, username string, roles ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := a.svc.SaveUser(ctx, strings.ToUpper(username), username, "pw")
	require.NoError(t, err)
	for _, role := range roles {
		if _, err := a.svc.GetRole(ctx, role); err != nil {
			_, err = a.svc.SaveRole(ctx, role)
			require.NoError(t, err)
		}
		require.NoError(t, a.svc.AddRoleToUser(ctx, username, role))
	}
}

func (a *testAPI) token(t *testing.T, username string, roles ...string) string {
	t.Helper()
	if roles == nil {
		roles = []string{}
	}
	tok, err := a.codec.Issue(username, "", time.Minute, roles)
	require.NoError(t, err)
	return tok
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, path, &buf)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, r)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func TestLoginForm(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "alice", "ROLE_ADMIN")

	form := url.Values{"username": {"alice"}, "password": {"pw"}}
	r := httptest.NewRequest(http.MethodPost, "http://svc.local/api/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	api.handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	pair := decodeBody[auth.TokenPair](t, w)
	claims, err := api.codec.Verify(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "http://svc.local/api/login", claims.Issuer)
	assert.Equal(t, []string{"ROLE_ADMIN"}, claims.Roles)
	assert.NotEmpty(t, pair.RefreshToken)
}

func TestLoginMultipartAndJSON(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "alice")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("username", "alice"))
	require.NoError(t, mw.WriteField("password", "pw"))
	require.NoError(t, mw.Close())
	r := httptest.NewRequest(http.MethodPost, "/api/login", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	api.handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(http.MethodPost, "/api/login", "", LoginRequest{Username: "alice", Password: "pw"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginBadCredentials(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "alice")

	for _, req := range []LoginRequest{
		{Username: "alice", Password: "wrong"},
		{Username: "nobody", Password: "pw"},
	} {
		w := api.do(http.MethodPost, "/api/login", "", req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "bad credentials", decodeBody[ErrorResponse](t, w).ErrorMessage)
	}
}

func TestRefresh(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "alice", "ROLE_USER")

	w := api.do(http.MethodPost, "/api/login", "", LoginRequest{Username: "alice", Password: "pw"})
	require.Equal(t, http.StatusOK, w.Code)
	pair := decodeBody[auth.TokenPair](t, w)

	w = api.do(http.MethodGet, "/api/token/refresh", pair.RefreshToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	refreshed := decodeBody[auth.TokenPair](t, w)
	assert.Equal(t, pair.RefreshToken, refreshed.RefreshToken)
	claims, err := api.codec.Verify(refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_USER"}, claims.Roles)

	w = api.do(http.MethodGet, "/api/token/refresh", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "refresh token is missing", decodeBody[ErrorResponse](t, w).ErrorMessage)

	w = api.do(http.MethodGet, "/api/token/refresh", "garbage", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, auth.ErrMalformed.Error(), w.Header().Get("error"))
	assert.Equal(t, auth.ErrMalformed.Error(), decodeBody[ErrorResponse](t, w).ErrorMessage)

	ghost, err := api.codec.Issue("ghost", "", time.Minute, nil)
	require.NoError(t, err)
	w = api.do(http.MethodGet, "/api/token/refresh", ghost, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRefreshTokenCannotAccessResources(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "alice", "ROLE_USER")

	w := api.do(http.MethodPost, "/api/login", "", LoginRequest{Username: "alice", Password: "pw"})
	pair := decodeBody[auth.TokenPair](t, w)

	w = api.do(http.MethodGet, "/api/users", pair.RefreshToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, auth.ErrMissingRoles.Error(), w.Header().Get("error"))
}

func TestListUsersRequiresRoleUser(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "alice", "ROLE_USER")

	w := api.do(http.MethodGet, "/api/users", api.token(t, "alice", "ROLE_USER"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	users := decodeBody[[]types.User](t, w)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)
	assert.NotContains(t, w.Body.String(), "password")

	w = api.do(http.MethodGet, "/api/users", api.token(t, "alice", "ROLE_ADMIN"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(http.MethodGet, "/api/users", "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSaveUser(t *testing.T) {
	api := newTestAPI(t)
	admin := api.token(t, "root", "ROLE_ADMIN")

	w := api.do(http.MethodPost, "/api/user/save", admin, SaveUserRequest{Name: "Bob", Username: "bob", Password: "pw"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/api/user/bob", w.Header().Get("Location"))
	user := decodeBody[types.User](t, w)
	assert.Equal(t, "bob", user.Username)
	assert.Empty(t, user.Roles)

	w = api.do(http.MethodPost, "/api/user/save", admin, SaveUserRequest{Name: "Bob", Username: "bob", Password: "pw"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(http.MethodPost, "/api/user/save", admin, SaveUserRequest{Name: "Bob", Username: "", Password: "pw"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodPost, "/api/user/save", admin, SaveUserRequest{Name: "Dave", Username: "dave", Password: strings.Repeat("x", 73)})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, w).ErrorMessage, "password must be at most 72 bytes")

	w = api.do(http.MethodPost, "/api/user/save", api.token(t, "root", "ROLE_USER"), SaveUserRequest{Name: "C", Username: "c", Password: "pw"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(http.MethodGet, "/api/user/bob", api.token(t, "root"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Bob", decodeBody[types.User](t, w).Name)

	w = api.do(http.MethodGet, "/api/user/ghost", api.token(t, "root"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRolesAndAssignment(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "alice")
	tok := api.token(t, "alice")

	w := api.do(http.MethodPost, "/api/role/save", tok, SaveRoleRequest{Name: "ROLE_MANAGER"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/api/role/ROLE_MANAGER", w.Header().Get("Location"))

	w = api.do(http.MethodPost, "/api/role/save", "", SaveRoleRequest{Name: "ROLE_X"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(http.MethodPost, "/api/role/addtouser", tok, RoleToUserRequest{Username: "alice", RoleName: "ROLE_MANAGER"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	w = api.do(http.MethodPost, "/api/role/addtouser", tok, RoleToUserRequest{Username: "alice", RoleName: "ROLE_GHOST"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(http.MethodGet, "/api/roles", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]types.Role](t, w), 1)

	w = api.do(http.MethodGet, "/api/role/ROLE_MANAGER", tok, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	user, err := api.svc.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_MANAGER"}, user.RoleNames())
}

func TestHealthzIsPublic(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
