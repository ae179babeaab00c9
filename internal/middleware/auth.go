package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/herald/herald-go/internal/model"
	"github.com/herald/herald-go/internal/service"
)

type contextKey string

const userKey contextKey = "user"

// Authenticator resolves a session token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (model.UserResponse, error)
}

// Authenticate returns middleware that validates a Bearer token from the
// Authorization header and stores the resolved user in the request context.
func Authenticate(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			token, found := BearerToken(authHeader)
			if !found {
				writeJSONError(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			user, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, service.ErrTokenExpired):
					writeJSONError(w, http.StatusUnauthorized, "token expired")
				case errors.Is(err, service.ErrTokenInvalid), errors.Is(err, service.ErrUnauthorized):
					writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
				default:
					slog.Error("authenticate request", "path", r.URL.Path, "error", err)
					writeJSONError(w, http.StatusInternalServerError, "internal server error")
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func BearerToken(header string) (string, bool) {
	token, found := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !found || token == "" {
		return "", false
	}
	return token, true
}

// UserFromContext extracts the authenticated user from the request context.
func UserFromContext(ctx context.Context) (model.UserResponse, bool) {
	user, ok := ctx.Value(userKey).(model.UserResponse)
	return user, ok
}

// WithUser returns a copy of ctx carrying user, as Authenticate does.
func WithUser(ctx context.Context, user model.UserResponse) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.Envelope{Status: false, Message: msg})
}
