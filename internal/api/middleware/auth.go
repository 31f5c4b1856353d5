package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/ayo6706/wallet-ledger/internal/api/problem"
	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	userContextKey        contextKey = "user_id"
	roleContextKey        contextKey = "user_role"
	permissionsContextKey contextKey = "permissions"
	apiKeyContextKey      contextKey = "api_key_id"
	traceContextKey       contextKey = "trace_id"
)

// APIKeyHeader carries a raw service key as an alternative to a bearer token.
const APIKeyHeader = "x-api-key"

var jwtSecret []byte
var jwtIssuer string
var jwtAudience string

type authClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// APIKeyValidator resolves a raw API key to its stored record.
type APIKeyValidator interface {
	Validate(ctx context.Context, raw string) (*models.APIKey, error)
}

func SetJWTSecret(secret string) {
	if secret == "" {
		return
	}
	jwtSecret = []byte(secret)
}

func SetJWTValidation(issuer, audience string) {
	jwtIssuer = strings.TrimSpace(issuer)
	jwtAudience = strings.TrimSpace(audience)
}

func JWTSecret() []byte {
	clone := make([]byte, len(jwtSecret))
	copy(clone, jwtSecret)
	return clone
}

// AuthMiddleware accepts a bearer JWT, or an x-api-key when keys is non-nil.
// JWT callers hold every permission; key callers hold the key's permissions.
func AuthMiddleware(keys APIKeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw := r.Header.Get(APIKeyHeader); raw != "" && keys != nil {
				key, err := keys.Validate(r.Context(), raw)
				if err != nil {
					if errors.Is(err, models.ErrStorage) {
						problem.Write(w, r, http.StatusServiceUnavailable, problem.Type("service-unavailable"), "", "service temporarily unavailable")
						return
					}
					problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/invalid-api-key"), "", "Invalid, expired or revoked API key")
					return
				}
				ctx := context.WithValue(r.Context(), userContextKey, key.UserID.String())
				ctx = context.WithValue(ctx, roleContextKey, domain.RoleUser)
				ctx = context.WithValue(ctx, permissionsContextKey, slices.Clone(key.Permissions))
				ctx = context.WithValue(ctx, apiKeyContextKey, key.ID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				detail := "Authorization header required"
				if keys != nil {
					detail = "Authorization header or x-api-key required"
				}
				problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/authorization-header-required"), "", detail)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/invalid-token-format"), "", "Invalid token format")
				return
			}
			if len(jwtSecret) == 0 {
				problem.Write(w, r, http.StatusInternalServerError, problem.Type("auth/misconfigured"), "", "auth is not configured")
				return
			}

			claims := &authClaims{}
			opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
			if jwtIssuer != "" {
				opts = append(opts, jwt.WithIssuer(jwtIssuer))
			}
			if jwtAudience != "" {
				opts = append(opts, jwt.WithAudience(jwtAudience))
			}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
					return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
				}
				return jwtSecret, nil
			}, opts...)
			if err != nil || !token.Valid {
				problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/invalid-token"), "", "Invalid token")
				return
			}
			if claims.UserID == "" {
				problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/invalid-token-claims"), "", "Invalid token claims")
				return
			}
			if claims.Subject != "" && claims.Subject != claims.UserID {
				problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/invalid-token-claims"), "", "Invalid token claims")
				return
			}
			ctx := context.WithValue(r.Context(), userContextKey, claims.UserID)
			ctx = context.WithValue(ctx, roleContextKey, claims.Role)
			ctx = context.WithValue(ctx, permissionsContextKey, slices.Clone(domain.Permissions))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission rejects callers whose credential lacks permission.
func RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !slices.Contains(PermissionsFromContext(r.Context()), permission) {
				problem.Write(w, r, http.StatusForbidden, problem.Type("auth/insufficient-permissions"), "",
					fmt.Sprintf("API key lacks the %q permission", permission))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext returns the authenticated user ID.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(userContextKey).(string); ok {
		return v
	}
	return ""
}

// UserRoleFromContext returns the role of the authenticated user.
func UserRoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(roleContextKey).(string); ok {
		return v
	}
	return ""
}

func PermissionsFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	v, _ := ctx.Value(permissionsContextKey).([]string)
	return v
}

// APIKeyIDFromContext is empty for JWT callers.
func APIKeyIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(apiKeyContextKey).(string)
	return v
}

// TraceIDFromContext returns the trace id for the request.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(traceContextKey).(string); ok {
		return v
	}
	return ""
}
