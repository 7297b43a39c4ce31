package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TokenService defines the interface for token creation and validation.
// Implementations include JWTService (HS256) and PasetoService (PASETO v4.local).
type TokenService interface {
	CreateToken(userID uuid.UUID, duration time.Duration) (string, error)
	VerifyToken(tokenStr string) (*TokenClaims, error)
}

// Notifier delivers a freshly issued code to the account holder.
type Notifier interface {
	SendOTP(ctx context.Context, toEmail, code string, expiresAt time.Time) error
}

// RateLimiter throttles the public endpoints per client IP and per email.
type RateLimiter interface {
	// Allow records one request from ip for purpose and reports whether it
	// is within the limit.
	Allow(ctx context.Context, ip, purpose string) (bool, error)
	// AcquireCooldown reserves the email for the cooldown window. It returns
	// false when a previous reservation is still active.
	AcquireCooldown(ctx context.Context, email string) (bool, error)
}
