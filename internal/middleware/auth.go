// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/capitalize-ai/chat-console/internal/model"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// SessionKey is the context key for the authorized session.
	SessionKey ContextKey = "session"
)

// Authorizer resolves a bearer token to a live session.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (*model.Session, error)
}

// Auth creates session authentication middleware.
func Auth(authz Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
				writeJSONError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			sess, err := authz.Authorize(r.Context(), parts[1])
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}

			recordSession(r.Context(), sess)
			ctx := context.WithValue(r.Context(), SessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSession gets the authorized session from context.
func GetSession(ctx context.Context) *model.Session {
	if v, ok := ctx.Value(SessionKey).(*model.Session); ok {
		return v
	}
	return nil
}

// GetUserID gets the signed-in user ID from context.
func GetUserID(ctx context.Context) string {
	if s := GetSession(ctx); s != nil {
		return s.LoggedInUserID
	}
	return ""
}

// RequireCapability rejects sessions whose role lacks a capability.
func RequireCapability(allowed func(model.UserRole) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := GetSession(r.Context())
			if sess == nil || !allowed(sess.Role) {
				writeJSONError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
