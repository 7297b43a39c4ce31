package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/redmonkez12/otp-accounts/internal/apperr"
	"github.com/redmonkez12/otp-accounts/internal/user"
)

var (
	ErrNotFound   = apperr.New(apperr.ErrNotFound, "user not found")
	ErrEmailInUse = apperr.New(apperr.ErrConflict, "email already in use")
)

// Service reads and edits the authenticated user's own record.
type Service struct {
	store user.Store
}

func NewService(store user.Store) *Service {
	return &Service{store: store}
}

func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return u, nil
}

// Update applies the non-empty fields of upd and returns the stored result.
// Email format is not checked here.
func (s *Service) Update(ctx context.Context, userID uuid.UUID, upd user.ProfileUpdate) (*user.User, error) {
	u, err := s.store.UpdateProfile(ctx, userID, upd)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, user.ErrDuplicateEmail):
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return u, nil
}
