package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token verification failures. Verify returns exactly one of these.
var (
	ErrInvalidSignature = errors.New("token signature is invalid")
	ErrExpired          = errors.New("token has expired")
	ErrMalformed        = errors.New("token is malformed")
)

const rolesClaim = "roles"

// Claims is the verified content of a token. HasRoles distinguishes an
// access token with no roles from a refresh token, which has no roles claim.
type Claims struct {
	Subject   string
	Issuer    string
	ExpiresAt time.Time
	Roles     []string
	HasRoles  bool
}

// TokenCodec issues and verifies HS256 tokens with a shared secret.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

func NewTokenCodec(secret string) (*TokenCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	return &TokenCodec{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs a token for subject that expires after ttl. The roles claim is
// written only when roles is non-nil, so an empty slice still yields "roles": [].
func (c *TokenCodec) Issue(subject, issuer string, ttl time.Duration, roles []string) (string, error) {
	now := c.now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(ttl)),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	if roles != nil {
		claims[rolesClaim] = roles
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify checks the signature and expiry of raw. The issuer is returned but
// not checked.
func (c *TokenCodec) Verify(raw string) (Claims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return Claims{}, classify(err)
	}

	mapc, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return Claims{}, ErrMalformed
	}

	sub, err := mapc.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return Claims{}, ErrMalformed
	}
	iss, err := mapc.GetIssuer()
	if err != nil {
		return Claims{}, ErrMalformed
	}
	exp, err := mapc.GetExpirationTime()
	if err != nil || exp == nil {
		return Claims{}, ErrMalformed
	}

	claims := Claims{Subject: sub, Issuer: iss, ExpiresAt: exp.Time}
	if rawRoles, present := mapc[rolesClaim]; present {
		arr, ok := rawRoles.([]any)
		if !ok {
			return Claims{}, ErrMalformed
		}
		claims.Roles = make([]string, 0, len(arr))
		for _, v := range arr {
			s, ok := v.(string)
			if !ok {
				return Claims{}, ErrMalformed
			}
			claims.Roles = append(claims.Roles, s)
		}
		claims.HasRoles = true
	}
	return claims, nil
}

// IsTokenError reports whether err came from token verification.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrMissingRoles)
}

// Signature problems are reported before expiry, so an expired token
// signed with another key is ErrInvalidSignature.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrMalformed
	}
}
