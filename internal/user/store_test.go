package user

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/otp-accounts/internal/database"
)

func storeBackends(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store {
			db, err := database.OpenSQLite(":memory:")
			require.NoError(t, err)
			return NewSQLiteStore(db)
		},
	}
}

func strPtr(s string) *string { return &s }

func pending(username, email, code string, expiresAt time.Time) *User {
	return &User{
		Username:     username,
		Email:        email,
		PasswordHash: "$2a$10$hash",
		OTP:          strPtr(code),
		OTPExpiry:    &expiresAt,
	}
}

func TestStore_UpsertKeepsIDAndOverwrites(t *testing.T) {
	for name, newStore := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			exp := time.Now().Add(10 * time.Minute)

			first, err := s.Upsert(ctx, pending("alice", "alice@x.com", "a1b2c3", exp))
			require.NoError(t, err)
			require.NotEqual(t, uuid.Nil, first.ID)

			second, err := s.Upsert(ctx, &User{
				Username:     "alice2",
				Email:        "alice@x.com",
				PasswordHash: "$2a$10$other",
				OTP:          strPtr("ffffff"),
				OTPExpiry:    &exp,
			})
			require.NoError(t, err)

			assert.Equal(t, first.ID, second.ID)
			assert.Equal(t, "alice2", second.Username)
			assert.Equal(t, "$2a$10$other", second.PasswordHash)
			require.NotNil(t, second.OTP)
			assert.Equal(t, "ffffff", *second.OTP)

			got, err := s.GetByID(ctx, first.ID)
			require.NoError(t, err)
			assert.Equal(t, "alice2", got.Username)
		})
	}
}

func TestStore_RedeemOTP(t *testing.T) {
	for name, newStore := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			now := time.Now()

			created, err := s.Upsert(ctx, pending("alice", "alice@x.com", "a1b2c3", now.Add(10*time.Minute)))
			require.NoError(t, err)

			_, err = s.RedeemOTP(ctx, "alice@x.com", "000000", now)
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = s.RedeemOTP(ctx, "bob@x.com", "a1b2c3", now)
			assert.ErrorIs(t, err, ErrNotFound)

			redeemed, err := s.RedeemOTP(ctx, "alice@x.com", "a1b2c3", now)
			require.NoError(t, err)
			assert.Equal(t, created.ID, redeemed.ID)
			assert.Nil(t, redeemed.OTP)
			assert.Nil(t, redeemed.OTPExpiry)

			_, err = s.RedeemOTP(ctx, "alice@x.com", "a1b2c3", now)
			assert.ErrorIs(t, err, ErrNotFound, "a code redeems at most once")
		})
	}
}

func TestStore_RedeemOTPExpired(t *testing.T) {
	for name, newStore := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			exp := time.Now().Add(time.Minute)

			_, err := s.Upsert(ctx, pending("alice", "alice@x.com", "a1b2c3", exp))
			require.NoError(t, err)

			// expiry must be strictly after the request time
			_, err = s.RedeemOTP(ctx, "alice@x.com", "a1b2c3", exp)
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = s.RedeemOTP(ctx, "alice@x.com", "a1b2c3", exp.Add(time.Second))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_RedeemOTPConcurrent(t *testing.T) {
	for name, newStore := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			now := time.Now()

			_, err := s.Upsert(ctx, pending("alice", "alice@x.com", "a1b2c3", now.Add(10*time.Minute)))
			require.NoError(t, err)

			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := s.RedeemOTP(ctx, "alice@x.com", "a1b2c3", now); err == nil {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), wins.Load())
		})
	}
}

func TestStore_SetOTP(t *testing.T) {
	for name, newStore := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			now := time.Now()

			assert.ErrorIs(t, s.SetOTP(ctx, "ghost@x.com", "abcdef", now.Add(time.Minute)), ErrNotFound)

			created, err := s.Upsert(ctx, &User{Username: "alice", Email: "alice@x.com", PasswordHash: "h"})
			require.NoError(t, err)
			assert.False(t, created.HasPendingOTP(now))

			require.NoError(t, s.SetOTP(ctx, "alice@x.com", "abcdef", now.Add(time.Minute)))

			got, err := s.GetByID(ctx, created.ID)
			require.NoError(t, err)
			assert.True(t, got.HasPendingOTP(now))

			_, err = s.RedeemOTP(ctx, "alice@x.com", "abcdef", now)
			require.NoError(t, err)
		})
	}
}

func TestStore_UpdateProfile(t *testing.T) {
	for name, newStore := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			alice, err := s.Upsert(ctx, &User{Username: "alice", Email: "alice@x.com", PasswordHash: "h"})
			require.NoError(t, err)
			_, err = s.Upsert(ctx, &User{Username: "bob", Email: "bob@x.com", PasswordHash: "h"})
			require.NoError(t, err)

			updated, err := s.UpdateProfile(ctx, alice.ID, ProfileUpdate{Username: strPtr("alicia")})
			require.NoError(t, err)
			assert.Equal(t, "alicia", updated.Username)
			assert.Equal(t, "alice@x.com", updated.Email)

			updated, err = s.UpdateProfile(ctx, alice.ID, ProfileUpdate{Username: strPtr(""), Email: strPtr("alicia@x.com")})
			require.NoError(t, err)
			assert.Equal(t, "alicia", updated.Username)
			assert.Equal(t, "alicia@x.com", updated.Email)

			_, err = s.UpdateProfile(ctx, alice.ID, ProfileUpdate{Email: strPtr("bob@x.com")})
			assert.ErrorIs(t, err, ErrDuplicateEmail)

			_, err = s.UpdateProfile(ctx, uuid.New(), ProfileUpdate{Username: strPtr("ghost")})
			assert.ErrorIs(t, err, ErrNotFound)

			unchanged, err := s.UpdateProfile(ctx, alice.ID, ProfileUpdate{})
			require.NoError(t, err)
			assert.Equal(t, "alicia@x.com", unchanged.Email)
		})
	}
}

func TestStore_ClearExpiredOTPs(t *testing.T) {
	for name, newStore := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			now := time.Now()

			stale, err := s.Upsert(ctx, pending("old", "old@x.com", "111111", now.Add(-time.Minute)))
			require.NoError(t, err)
			fresh, err := s.Upsert(ctx, pending("new", "new@x.com", "222222", now.Add(time.Minute)))
			require.NoError(t, err)

			n, err := s.ClearExpiredOTPs(ctx, now)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			got, err := s.GetByID(ctx, stale.ID)
			require.NoError(t, err)
			assert.Nil(t, got.OTP)
			assert.Nil(t, got.OTPExpiry)

			got, err = s.GetByID(ctx, fresh.ID)
			require.NoError(t, err)
			assert.NotNil(t, got.OTP)
			assert.NotNil(t, got.OTPExpiry)

			assert.NoError(t, s.Ping(ctx))
		})
	}
}

func TestStore_GetByIDMissing(t *testing.T) {
	for name, newStore := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := newStore(t).GetByID(context.Background(), uuid.New())
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}
