package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the Postgres row for an account.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Username     string     `bun:"username,notnull"`
	Email        string     `bun:"email,notnull,unique"`
	PasswordHash string     `bun:"password_hash,notnull"`
	OTP          *string    `bun:"otp"`
	OTPExpiry    *time.Time `bun:"otp_expiry"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

// SQLiteUser is the gorm model backing the SQLite store.
type SQLiteUser struct {
	ID           string     `gorm:"primaryKey;type:text"`
	Username     string     `gorm:"not null"`
	Email        string     `gorm:"not null;uniqueIndex"`
	PasswordHash string     `gorm:"not null"`
	OTP          *string    `gorm:"column:otp"`
	OTPExpiry    *time.Time `gorm:"column:otp_expiry;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (SQLiteUser) TableName() string {
	return "users"
}
