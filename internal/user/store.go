package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

// Store persists accounts. RedeemOTP must match and clear the code in one
// atomic step so a code can be redeemed at most once.
type Store interface {
	// Upsert inserts u or, when the email already exists, overwrites its
	// username, password hash and OTP state. The stored record is returned.
	Upsert(ctx context.Context, u *User) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// SetOTP replaces the pending code of the account with the given email.
	SetOTP(ctx context.Context, email, code string, expiresAt time.Time) error
	// RedeemOTP clears the code and returns the user when email and code
	// match and the code expires after now. Any miss is ErrNotFound.
	RedeemOTP(ctx context.Context, email, code string, now time.Time) (*User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*User, error)
	// ClearExpiredOTPs drops codes whose expiry is at or before now.
	ClearExpiredOTPs(ctx context.Context, now time.Time) (int64, error)
	Ping(ctx context.Context) error
}
