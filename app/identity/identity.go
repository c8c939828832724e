// Package identity turns bearer tokens into principals. It verifies tokens
// issued elsewhere; Issue exists for tooling and tests.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"inkwell/app/models"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims carries the caller's role next to the standard claims. The
// subject is the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

// Parse validates an HS256 token and returns its principal.
func (v *Verifier) Parse(token string) (models.Principal, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Principal{}, ErrTokenExpired
		}
		return models.Principal{}, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return models.Principal{}, ErrTokenInvalid
	}

	role := models.Role(claims.Role)
	if !role.Valid() {
		role = models.RoleReader
	}
	return models.Principal{ID: claims.Subject, Role: role}, nil
}

// Issue signs a token for subject with the given role.
func (v *Verifier) Issue(subject string, role models.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(v.secret)
}

type contextKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal in ctx, or the anonymous reader.
func FromContext(ctx context.Context) models.Principal {
	p, _ := ctx.Value(contextKey{}).(models.Principal)
	return p
}
