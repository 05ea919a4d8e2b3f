package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	"github.com/tendant/music-catalog/pkg/catalog"
)

// Claim names read from bearer tokens
const (
	ClaimSubject = "sub"
	ClaimEmail   = "email"
	ClaimRoles   = "roles"
)

// NewJWTAuth returns an HS256 verifier for secret
func NewJWTAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil)
}

// Authenticate verifies the bearer token, if any, and stores the resulting
// catalog.Caller in the request context. It never rejects a request; the
// service's Authorizer decides admission.
func Authenticate(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	verify := jwtauth.Verifier(ja)
	return func(next http.Handler) http.Handler {
		return verify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, claims, err := jwtauth.FromContext(r.Context())
			if err != nil {
				if err != jwtauth.ErrNoTokenFound {
					slog.Info("Ignoring invalid bearer token", "path", r.URL.Path, "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			if token == nil {
				next.ServeHTTP(w, r)
				return
			}

			caller := callerFromClaims(claims)
			next.ServeHTTP(w, r.WithContext(catalog.WithCaller(r.Context(), caller)))
		}))
	}
}

func callerFromClaims(claims map[string]interface{}) catalog.Caller {
	caller := catalog.Caller{}
	if sub, ok := claims[ClaimSubject].(string); ok {
		caller.Subject = sub
	}
	if email, ok := claims[ClaimEmail].(string); ok {
		caller.Email = email
	}

	switch roles := claims[ClaimRoles].(type) {
	case string:
		caller.Roles = strings.FieldsFunc(roles, func(r rune) bool { return r == ',' || r == ' ' })
	case []string:
		caller.Roles = roles
	case []interface{}:
		for _, role := range roles {
			if s, ok := role.(string); ok {
				caller.Roles = append(caller.Roles, s)
			}
		}
	}
	return caller
}

// RequestCollector records served HTTP requests
type RequestCollector interface {
	RecordRequest(method, route string, statusCode int, duration time.Duration)
}

// MetricsMiddleware tracks request metrics labelled by chi route pattern
func MetricsMiddleware(collector RequestCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			collector.RecordRequest(r.Method, route, status, time.Since(start))
		})
	}
}
