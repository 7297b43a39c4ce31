package user

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // Never expose password hash in JSON
	OTP          *string    `json:"-"`
	OTPExpiry    *time.Time `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// HasPendingOTP reports whether the user holds a code that is still redeemable at now.
func (u *User) HasPendingOTP(now time.Time) bool {
	return u.OTP != nil && u.OTPExpiry != nil && u.OTPExpiry.After(now)
}

// ProfileUpdate carries the optional fields of a profile change. Nil or empty
// values leave the stored field untouched.
type ProfileUpdate struct {
	Username *string
	Email    *string
}

func (p ProfileUpdate) normalize() ProfileUpdate {
	if p.Username != nil && *p.Username == "" {
		p.Username = nil
	}
	if p.Email != nil && *p.Email == "" {
		p.Email = nil
	}
	return p
}

func (p ProfileUpdate) IsEmpty() bool {
	n := p.normalize()
	return n.Username == nil && n.Email == nil
}
