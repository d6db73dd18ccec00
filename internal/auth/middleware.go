package auth

import (
	"net/http"

	"go.uber.org/zap"
)

const (
	LoginPath   = "/api/login"
	RefreshPath = "/api/token/refresh"
)

// Authorize verifies the bearer access token, when one is present, and
// attaches the caller identity to the request context. Requests without a
// bearer token continue anonymously; Enforce decides whether that is allowed.
// Paths matching publicPaths are never inspected.
func Authorize(codec *TokenCodec, lg *zap.SugaredLogger, publicPaths ...string) func(http.Handler) http.Handler {
	if lg == nil {
		lg = zap.NewNop().Sugar()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, pattern := range publicPaths {
				if matchPath(pattern, r.URL.Path) {
					next.ServeHTTP(w, r)
					return
				}
			}

			raw, err := BearerToken(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := codec.Verify(raw)
			if err == nil && !claims.HasRoles {
				err = ErrMissingRoles
			}
			if err != nil {
				lg.Infow("rejected bearer token", "path", r.URL.Path, "error", err)
				Deny(w, http.StatusForbidden, err.Error())
				return
			}

			ctx := WithIdentity(r.Context(), Identity{
				Username:    claims.Subject,
				Authorities: claims.Roles,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
