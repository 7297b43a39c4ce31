package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/otp-accounts/internal/database"
)

// Repository is the Postgres Store backed by bun.
type Repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Upsert(ctx context.Context, u *User) (*User, error) {
	now := time.Now().UTC()
	dbUser := &database.User{
		ID:           uuid.New(),
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		OTP:          u.OTP,
		OTPExpiry:    u.OTPExpiry,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := r.db.NewInsert().
		Model(dbUser).
		On("CONFLICT (email) DO UPDATE").
		Set("username = EXCLUDED.username").
		Set("password_hash = EXCLUDED.password_hash").
		Set("otp = EXCLUDED.otp").
		Set("otp_expiry = EXCLUDED.otp_expiry").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

func (r *Repository) SetOTP(ctx context.Context, email, code string, expiresAt time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("otp = ?", code).
		Set("otp_expiry = ?", expiresAt.UTC()).
		Set("updated_at = NOW()").
		Where("email = ?", email).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set otp: %w", err)
	}

	return requireAffected(result)
}

// RedeemOTP is a single conditional UPDATE ... RETURNING, so concurrent
// redemptions of the same code race on the row lock and only one matches.
func (r *Repository) RedeemOTP(ctx context.Context, email, code string, now time.Time) (*User, error) {
	dbUser := new(database.User)
	result, err := r.db.NewUpdate().
		Model(dbUser).
		Set("otp = NULL").
		Set("otp_expiry = NULL").
		Set("updated_at = NOW()").
		Where("email = ?", email).
		Where("otp = ?", code).
		Where("otp_expiry > ?", now.UTC()).
		Returning("*").
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to redeem otp: %w", err)
	}

	if err := requireAffected(result); err != nil {
		return nil, err
	}

	return mapDBUserToModel(dbUser), nil
}

func (r *Repository) UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*User, error) {
	upd = upd.normalize()
	if upd.Username == nil && upd.Email == nil {
		return r.GetByID(ctx, id)
	}

	dbUser := new(database.User)
	q := r.db.NewUpdate().
		Model(dbUser).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Returning("*")
	if upd.Username != nil {
		q = q.Set("username = ?", *upd.Username)
	}
	if upd.Email != nil {
		q = q.Set("email = ?", *upd.Email)
	}

	result, err := q.Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	if err := requireAffected(result); err != nil {
		return nil, err
	}

	return mapDBUserToModel(dbUser), nil
}

func (r *Repository) ClearExpiredOTPs(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("otp = NULL").
		Set("otp_expiry = NULL").
		Where("otp_expiry IS NOT NULL").
		Where("otp_expiry <= ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired otps: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "duplicate key value violates unique constraint")
}

// mapDBUserToModel converts database model to domain model
func mapDBUserToModel(dbu *database.User) *User {
	return &User{
		ID:           dbu.ID,
		Username:     dbu.Username,
		Email:        dbu.Email,
		PasswordHash: dbu.PasswordHash,
		OTP:          dbu.OTP,
		OTPExpiry:    dbu.OTPExpiry,
		CreatedAt:    dbu.CreatedAt,
		UpdatedAt:    dbu.UpdatedAt,
	}
}
