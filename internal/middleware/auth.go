package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/raspadita/backend/internal/models"
	"github.com/spf13/viper"
)

// Principal is the resolved identity attached to a request: the account id
// and role the core consumes. How the credential was issued is the auth
// service's business.
type Principal struct {
	ID   string
	Role models.Role
}

type ctxKey int

const principalKey ctxKey = iota

// PrincipalFrom returns the authenticated principal, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// WithPrincipal attaches a principal to the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// Auth resolves bearer tokens into principals. Constructed once at startup
// and passed in explicitly so tests can substitute the Redis denylist.
type Auth struct {
	redis *redis.Client
}

func NewAuth(redisClient *redis.Client) *Auth {
	return &Auth{redis: redisClient}
}

// Require rejects requests without a valid, non-denylisted bearer token.
func (a *Auth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.resolve(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// Optional attaches a principal when a valid token is present and lets the
// request through anonymously otherwise. Read-only dashboards use this so a
// missing session degrades instead of failing the page.
func (a *Auth) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if principal, err := a.resolve(r); err == nil {
			r = r.WithContext(WithPrincipal(r.Context(), principal))
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Auth) resolve(r *http.Request) (Principal, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return Principal{}, fmt.Errorf("authorization header required")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return Principal{}, fmt.Errorf("invalid authorization header format")
	}
	tokenString := parts[1]

	if a.redis != nil {
		key := fmt.Sprintf("denylist:%s", tokenString)
		if exists, err := a.redis.Exists(r.Context(), key).Result(); err == nil && exists > 0 {
			return Principal{}, fmt.Errorf("token revoked")
		}
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(viper.GetString("jwt.secret_key")), nil
	})
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, fmt.Errorf("invalid token claims")
	}

	id, _ := claims["user_id"].(string)
	roleClaim, _ := claims["role"].(string)
	role := models.Role(roleClaim)
	if id == "" || !role.Valid() {
		return Principal{}, fmt.Errorf("invalid token claims")
	}

	return Principal{ID: id, Role: role}, nil
}
