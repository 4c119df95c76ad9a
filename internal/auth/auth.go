// Package auth issues and validates the gateway's session tokens.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-quiz/internal/backend"
	"github.com/mind-engage/mindengage-quiz/internal/httpx"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

const issuer = "mindengage-quiz-gateway"

var ErrRevoked = errors.New("token revoked")

type Claims struct {
	Username     string `json:"username"`
	Role         string `json:"role"`
	BackendToken string `json:"bt,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller, injected into the request context.
type Principal struct {
	UserID       string
	Username     string
	Role         string
	TokenID      string
	ExpiresAt    time.Time
	BackendToken string
}

type AuthService struct {
	hmac []byte
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time // jti -> expiry
}

type Option func(*AuthService)

func WithClock(now func() time.Time) Option {
	return func(a *AuthService) { a.now = now }
}

func NewAuthService(secret string, ttl time.Duration, opts ...Option) *AuthService {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	a := &AuthService{hmac: []byte(secret), ttl: ttl, now: time.Now, revoked: map[string]time.Time{}}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Issue signs a token for u. backendToken is carried along so online-mode
// calls can act as the user.
func (a *AuthService) Issue(u backend.User, backendToken string) (string, time.Time, error) {
	now := a.now()
	exp := now.Add(a.ttl)
	claims := &Claims{
		Username:     u.Username,
		Role:         string(u.Role),
		BackendToken: backendToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.hmac)
	return tok, exp, err
}

func (a *AuthService) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, err
	}
	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if a.isRevoked(c.ID) {
		return nil, ErrRevoked
	}
	return c, nil
}

// Revoke denies the token id until its expiry. Expired entries are swept on
// each call.
func (a *AuthService) Revoke(p Principal) {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, exp := range a.revoked {
		if !now.Before(exp) {
			delete(a.revoked, id)
		}
	}
	if p.TokenID != "" && now.Before(p.ExpiresAt) {
		a.revoked[p.TokenID] = p.ExpiresAt
	}
}

func (a *AuthService) isRevoked(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.revoked[id]
	return ok
}

// Middleware requires a valid bearer and injects the Principal, the rbac role
// and the backend token into the request context.
func Middleware(a *AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer")
				return
			}
			c, err := a.Parse(strings.TrimPrefix(h, "Bearer "))
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "bad token")
				return
			}
			p := Principal{
				UserID:       c.Subject,
				Username:     c.Username,
				Role:         c.Role,
				TokenID:      c.ID,
				BackendToken: c.BackendToken,
			}
			if c.ExpiresAt != nil {
				p.ExpiresAt = c.ExpiresAt.Time
			}
			ctx := WithPrincipal(r.Context(), p)
			ctx = rbac.WithRole(ctx, p.Role)
			if p.BackendToken != "" {
				ctx = backend.WithToken(ctx, p.BackendToken)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}
