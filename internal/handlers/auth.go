package handlers

import (
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/magadiflo/usersvc/internal/auth"
	"github.com/magadiflo/usersvc/internal/store"
	"go.uber.org/zap"
)

const maxMultipartMemory = 1 << 20

// AuthHandler serves the login and token refresh endpoints.
type AuthHandler struct {
	authn  *auth.Authenticator
	issuer IssuerConfig
	lg     *zap.SugaredLogger
}

// IssuerConfig picks the "iss" claim. An empty Issuer means tokens are issued
// with the URL of the request that produced them.
type IssuerConfig struct {
	Issuer              string
	TrustForwardedProto bool
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(authn *auth.Authenticator, issuer IssuerConfig, lg *zap.SugaredLogger) *AuthHandler {
	if lg == nil {
		lg = zap.NewNop().Sugar()
	}
	return &AuthHandler{authn: authn, issuer: issuer, lg: lg}
}

// AuthRouter registers login and refresh on a router mounted at /api.
func AuthRouter(r chi.Router, authn *auth.Authenticator, issuer IssuerConfig, lg *zap.SugaredLogger) {
	handler := NewAuthHandler(authn, issuer, lg)

	r.Post("/login", handler.Login)
	r.Get("/token/refresh", handler.Refresh)
}

// Login accepts form fields or a JSON body with username and password and
// returns an access/refresh token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, err := parseLogin(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pair, err := h.authn.Login(r.Context(), req.Username, req.Password, h.issuerFor(r))
	if err != nil {
		if errors.Is(err, auth.ErrAuthenticationFailed) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.lg.Errorw("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// Refresh exchanges a bearer refresh token for a new access token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, err := auth.BearerToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	pair, err := h.authn.Refresh(r.Context(), token, h.issuerFor(r))
	if err != nil {
		if auth.IsTokenError(err) || errors.Is(err, store.ErrNotFound) {
			auth.Deny(w, http.StatusForbidden, err.Error())
			return
		}
		h.lg.Errorw("token refresh failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (h *AuthHandler) issuerFor(r *http.Request) string {
	if h.issuer.Issuer != "" {
		return h.issuer.Issuer
	}
	return auth.RequestURL(r, h.issuer.TrustForwardedProto)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func parseLogin(w http.ResponseWriter, r *http.Request) (LoginRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req LoginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return LoginRequest{}, err
		}
		return req, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if strings.HasPrefix(mediaType, "multipart/") {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return LoginRequest{}, errors.New("invalid multipart form")
		}
	} else if err := r.ParseForm(); err != nil {
		return LoginRequest{}, errors.New("invalid form")
	}
	return LoginRequest{
		Username: r.FormValue("username"),
		Password: r.FormValue("password"),
	}, nil
}
