package httputil

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/malipo/malipo-backend/pkg/actor"
	"github.com/malipo/malipo-backend/pkg/config"
	"github.com/malipo/malipo-backend/pkg/errors"
	"github.com/malipo/malipo-backend/pkg/logger"
	"github.com/malipo/malipo-backend/pkg/permissions"
	"github.com/malipo/malipo-backend/pkg/tenant"
)

type contextKey string

const RequestIDKey contextKey = "request_id"

// RequestID propagates the caller's X-Request-ID or assigns one, and
// echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// Logger emits one line per request with status, size and timing.
func Logger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info().
				Str("request_id", GetRequestID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Msg("HTTP request")
		})
	}
}

// Recoverer converts panics into 500 responses and keeps the process up.
func Recoverer(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}

					log.Error().
						Interface("panic", rec).
						Str("request_id", GetRequestID(r.Context())).
						Str("path", r.URL.Path).
						Msg("panic recovered")

					ErrorLocalized(w, r, errors.Internal("unexpected server error"))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// Auth validates the bearer token and loads the caller into the request
// context as an actor, along with the tenant.
//
// Tenant claims are mandatory. A token without tenant_id predates
// multi-tenancy or was minted wrong, and every query downstream scopes
// by tenant, so the request is rejected here rather than deeper in.
func Auth(cfg config.JWTConfig, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				ErrorLocalized(w, r, errors.Unauthorized("missing authorization header"))
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				ErrorLocalized(w, r, errors.Unauthorized("invalid authorization header format"))
				return
			}

			var opts []jwt.ParserOption
			if cfg.Issuer != "" {
				opts = append(opts, jwt.WithIssuer(cfg.Issuer))
			}

			token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(cfg.Secret), nil
			}, opts...)
			if err != nil {
				log.Debug().Err(err).Msg("token validation failed")
				if strings.Contains(err.Error(), "expired") {
					ErrorLocalized(w, r, errors.TokenExpired())
				} else {
					ErrorLocalized(w, r, errors.TokenInvalid())
				}
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !token.Valid {
				ErrorLocalized(w, r, errors.TokenInvalid())
				return
			}

			userID, _ := claims["sub"].(string)
			email, _ := claims["email"].(string)
			role, _ := claims["role"].(string)
			tenantID, _ := claims["tenant_id"].(string)
			tenantSlug, _ := claims["tenant_slug"].(string)

			if userID == "" || tenantID == "" {
				ErrorLocalized(w, r, errors.Forbidden("missing tenant context in token"))
				return
			}

			// A tenant header that contradicts the token is either a
			// stale client or an impersonation attempt.
			if headerTenant := r.Header.Get("X-Tenant-ID"); headerTenant != "" && headerTenant != tenantID {
				ErrorLocalized(w, r, errors.Forbidden("tenant header does not match token"))
				return
			}

			var perms []string
			if raw, ok := claims["permissions"].([]interface{}); ok {
				perms = make([]string, 0, len(raw))
				for _, p := range raw {
					if s, ok := p.(string); ok {
						perms = append(perms, s)
					}
				}
			}

			ctx := tenant.WithTenantContext(r.Context(), tenantID, tenantSlug)
			ctx = actor.WithActor(ctx, &actor.Actor{
				ID:          userID,
				Email:       email,
				Role:        role,
				TenantID:    tenantID,
				Permissions: perms,
			})

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission rejects requests whose actor lacks the permission.
// Must run after Auth, which loads the actor.
func RequirePermission(required string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			act := actor.FromContext(r.Context())
			if act == nil {
				ErrorLocalized(w, r, errors.Unauthorized("authentication required"))
				return
			}

			if !permissions.HasPermission(act.Permissions, required) {
				ErrorLocalized(w, r, errors.Forbidden("missing permission "+required))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
