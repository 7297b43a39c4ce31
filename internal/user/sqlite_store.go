package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/redmonkez12/otp-accounts/internal/database"
)

// SQLiteStore is the gorm-backed Store for single-node deployments.
// Timestamps are stored in UTC so that text comparisons order correctly.
type SQLiteStore struct {
	db *gorm.DB
}

func NewSQLiteStore(db *gorm.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Upsert(ctx context.Context, u *User) (*User, error) {
	now := time.Now().UTC()
	row := database.SQLiteUser{
		ID:           uuid.NewString(),
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		OTP:          u.OTP,
		OTPExpiry:    utcPtr(u.OTPExpiry),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var stored database.SQLiteUser
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "password_hash", "otp", "otp_expiry", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
		return tx.Where("email = ?", u.Email).First(&stored).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return mapSQLiteUser(&stored)
}

func (s *SQLiteStore) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var row database.SQLiteUser
	err := s.db.WithContext(ctx).Where("id = ?", id.String()).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return mapSQLiteUser(&row)
}

func (s *SQLiteStore) SetOTP(ctx context.Context, email, code string, expiresAt time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&database.SQLiteUser{}).
		Where("email = ?", email).
		Updates(map[string]any{
			"otp":        code,
			"otp_expiry": expiresAt.UTC(),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to set otp: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) RedeemOTP(ctx context.Context, email, code string, now time.Time) (*User, error) {
	var stored database.SQLiteUser
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&database.SQLiteUser{}).
			Where("email = ? AND otp = ? AND otp_expiry > ?", email, code, now.UTC()).
			Updates(map[string]any{
				"otp":        nil,
				"otp_expiry": nil,
				"updated_at": time.Now().UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("email = ?", email).First(&stored).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to redeem otp: %w", err)
	}

	return mapSQLiteUser(&stored)
}

func (s *SQLiteStore) UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*User, error) {
	upd = upd.normalize()

	changes := map[string]any{"updated_at": time.Now().UTC()}
	if upd.Username != nil {
		changes["username"] = *upd.Username
	}
	if upd.Email != nil {
		changes["email"] = *upd.Email
	}

	var stored database.SQLiteUser
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(changes) > 1 {
			result := tx.Model(&database.SQLiteUser{}).Where("id = ?", id.String()).Updates(changes)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return ErrNotFound
			}
		}
		return tx.Where("id = ?", id.String()).First(&stored).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
			return nil, ErrNotFound
		case errors.Is(err, gorm.ErrDuplicatedKey), strings.Contains(err.Error(), "UNIQUE constraint failed"):
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return mapSQLiteUser(&stored)
}

func (s *SQLiteStore) ClearExpiredOTPs(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&database.SQLiteUser{}).
		Where("otp_expiry IS NOT NULL AND otp_expiry <= ?", now.UTC()).
		Updates(map[string]any{"otp": nil, "otp_expiry": nil})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to clear expired otps: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func mapSQLiteUser(row *database.SQLiteUser) (*User, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid stored user id %q: %w", row.ID, err)
	}
	return &User{
		ID:           id,
		Username:     row.Username,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		OTP:          row.OTP,
		OTPExpiry:    row.OTPExpiry,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
