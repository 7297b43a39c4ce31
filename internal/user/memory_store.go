package user

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps accounts in process memory. Intended for development
// and tests; nothing survives a restart.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*User
	byEmail map[string]uuid.UUID
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[uuid.UUID]*User),
		byEmail: make(map[string]uuid.UUID),
		now:     time.Now,
	}
}

func (s *MemoryStore) Upsert(_ context.Context, u *User) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if id, ok := s.byEmail[u.Email]; ok {
		existing := s.byID[id]
		existing.Username = u.Username
		existing.PasswordHash = u.PasswordHash
		existing.OTP = copyString(u.OTP)
		existing.OTPExpiry = copyTime(u.OTPExpiry)
		existing.UpdatedAt = now
		return clone(existing), nil
	}

	created := &User{
		ID:           uuid.New(),
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		OTP:          copyString(u.OTP),
		OTPExpiry:    copyTime(u.OTPExpiry),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byID[created.ID] = created
	s.byEmail[created.Email] = created.ID
	return clone(created), nil
}

func (s *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(u), nil
}

func (s *MemoryStore) SetOTP(_ context.Context, email, code string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return ErrNotFound
	}
	u := s.byID[id]
	u.OTP = &code
	u.OTPExpiry = &expiresAt
	u.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) RedeemOTP(_ context.Context, email, code string, now time.Time) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	u := s.byID[id]
	if u.OTP == nil || *u.OTP != code || u.OTPExpiry == nil || !u.OTPExpiry.After(now) {
		return nil, ErrNotFound
	}

	u.OTP = nil
	u.OTPExpiry = nil
	u.UpdatedAt = s.now()
	return clone(u), nil
}

func (s *MemoryStore) UpdateProfile(_ context.Context, id uuid.UUID, upd ProfileUpdate) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}

	upd = upd.normalize()
	if upd.Email != nil && *upd.Email != u.Email {
		if _, taken := s.byEmail[*upd.Email]; taken {
			return nil, ErrDuplicateEmail
		}
		delete(s.byEmail, u.Email)
		u.Email = *upd.Email
		s.byEmail[u.Email] = u.ID
	}
	if upd.Username != nil {
		u.Username = *upd.Username
	}
	u.UpdatedAt = s.now()

	return clone(u), nil
}

func (s *MemoryStore) ClearExpiredOTPs(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cleared int64
	for _, u := range s.byID {
		if u.OTPExpiry != nil && !u.OTPExpiry.After(now) {
			u.OTP = nil
			u.OTPExpiry = nil
			cleared++
		}
	}
	return cleared, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func clone(u *User) *User {
	c := *u
	c.OTP = copyString(u.OTP)
	c.OTPExpiry = copyTime(u.OTPExpiry)
	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
