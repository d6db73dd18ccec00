package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrAccessDenied    = errors.New("access denied")
	ErrUnauthenticated = errors.New("full authentication is required to access this resource")
)

// Rule is one row of the access table. An empty Method matches any method.
// Pattern is an exact path or a prefix ending in "/**", which also matches
// the prefix itself.
type Rule struct {
	Method    string
	Pattern   string
	Public    bool
	Authority string
}

func (r Rule) matches(method, path string) bool {
	if r.Method != "" && !strings.EqualFold(r.Method, method) {
		return false
	}
	return matchPath(r.Pattern, path)
}

// Policy evaluates rules in order; the first match wins. Requests matching no
// rule only need an authenticated caller.
type Policy struct {
	rules []Rule
}

func NewPolicy(rules ...Rule) *Policy {
	return &Policy{rules: append([]Rule(nil), rules...)}
}

// DefaultPolicy is the access table of the service.
func DefaultPolicy() *Policy {
	return NewPolicy(
		Rule{Pattern: LoginPath + "/**", Public: true},
		Rule{Pattern: RefreshPath + "/**", Public: true},
		Rule{Pattern: "/healthz", Public: true},
		Rule{Method: http.MethodGet, Pattern: "/api/users/**", Authority: "ROLE_USER"},
		Rule{Method: http.MethodPost, Pattern: "/api/user/save/**", Authority: "ROLE_ADMIN"},
	)
}

// PublicPaths lists the patterns of rules open to any method.
func (p *Policy) PublicPaths() []string {
	var paths []string
	for _, rule := range p.rules {
		if rule.Public && rule.Method == "" {
			paths = append(paths, rule.Pattern)
		}
	}
	return paths
}

// Decide returns nil when the caller may proceed, ErrUnauthenticated for an
// anonymous caller on a protected path and ErrAccessDenied for a caller
// lacking the required authority.
func (p *Policy) Decide(method, path string, id Identity, authenticated bool) error {
	for _, rule := range p.rules {
		if !rule.matches(method, path) {
			continue
		}
		if rule.Public {
			return nil
		}
		if !authenticated {
			return ErrUnauthenticated
		}
		if rule.Authority != "" && !id.HasAuthority(rule.Authority) {
			return ErrAccessDenied
		}
		return nil
	}
	if !authenticated {
		return ErrUnauthenticated
	}
	return nil
}

// Enforce rejects requests the policy does not allow with 403.
func Enforce(policy *Policy, lg *zap.SugaredLogger) func(http.Handler) http.Handler {
	if lg == nil {
		lg = zap.NewNop().Sugar()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if err := policy.Decide(r.Method, r.URL.Path, id, ok); err != nil {
				lg.Infow("request denied", "method", r.Method, "path", r.URL.Path, "username", id.Username, "error", err)
				Deny(w, http.StatusForbidden, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func matchPath(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	return path == pattern
}
