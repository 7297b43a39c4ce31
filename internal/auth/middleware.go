package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/redmonkez12/otp-accounts/internal/httputil"
	"github.com/redmonkez12/otp-accounts/internal/logging"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const UserIDContextKey ContextKey = "user_id"

type tokenVerifier interface {
	VerifyToken(token string) (uuid.UUID, error)
}

// Middleware guards routes that need an authenticated user.
type Middleware struct {
	verifier tokenVerifier
}

func NewMiddleware(verifier tokenVerifier) *Middleware {
	return &Middleware{verifier: verifier}
}

// RequireAuth accepts only "Authorization: Bearer <token>". Every failure,
// whatever the cause, gets the same plain-text 401.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || scheme != "Bearer" || token == "" {
			unauthorized(w)
			return
		}

		userID, err := m.verifier.VerifyToken(token)
		if err != nil {
			logging.GetLoggerFromContext(r.Context()).Debug("token rejected", "error", err.Error())
			unauthorized(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func unauthorized(w http.ResponseWriter) {
	httputil.RespondText(w, ErrUnauthorized.Message, http.StatusUnauthorized)
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDContextKey).(uuid.UUID)
	return userID, ok
}

// WithUserID stores an authenticated user id in ctx.
func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDContextKey, id)
}
