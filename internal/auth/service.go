package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/otp-accounts/internal/apperr"
	"github.com/redmonkez12/otp-accounts/internal/logging"
	"github.com/redmonkez12/otp-accounts/internal/metrics"
	"github.com/redmonkez12/otp-accounts/internal/otp"
	"github.com/redmonkez12/otp-accounts/internal/user"
)

var (
	ErrUsernameRequired   = apperr.New(apperr.ErrValidation, "username is required")
	ErrEmailRequired      = apperr.New(apperr.ErrValidation, "email is required")
	ErrPasswordRequired   = apperr.New(apperr.ErrValidation, "password is required")
	ErrPasswordTooLong    = apperr.New(apperr.ErrValidation, "password must be at most 72 bytes")
	ErrInvalidEmailFormat = apperr.New(apperr.ErrValidation, "invalid email format")

	// ErrInvalidOTP covers every failed login so that callers cannot tell a
	// wrong code from an expired one or an unknown email.
	ErrInvalidOTP   = apperr.New(apperr.ErrUnauthorized, "Invalid or expired OTP")
	ErrUnauthorized = apperr.New(apperr.ErrUnauthorized, "Unauthorized")
)

// bcrypt ignores input past 72 bytes
const maxPasswordBytes = 72

type Service struct {
	store    user.Store
	issuer   *otp.Issuer
	tokens   TokenService
	notifier Notifier
	logger   *logging.Logger
	otpTTL   time.Duration
	tokenTTL time.Duration
}

func NewService(
	store user.Store,
	issuer *otp.Issuer,
	tokens TokenService,
	notifier Notifier,
	logger *logging.Logger,
	otpTTL time.Duration,
	tokenTTL time.Duration,
) *Service {
	return &Service{
		store:    store,
		issuer:   issuer,
		tokens:   tokens,
		notifier: notifier,
		logger:   logger,
		otpTTL:   otpTTL,
		tokenTTL: tokenTTL,
	}
}

// Signup stores the account with a fresh OTP and queues the code for delivery.
// Signing up again with the same email replaces the previous credentials and code.
func (s *Service) Signup(ctx context.Context, username, email, password string) (*user.User, error) {
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if email == "" {
		return nil, ErrEmailRequired
	}
	if len(email) > 254 {
		return nil, ErrInvalidEmailFormat
	}
	// display names and comments parse but are not deliverable addresses
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, ErrInvalidEmailFormat
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}
	if len(password) > maxPasswordBytes {
		return nil, ErrPasswordTooLong
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	code, expiresAt, err := s.issuer.Issue(s.otpTTL)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrDependencyUnavailable, "could not generate OTP", err)
	}

	stored, err := s.store.Upsert(ctx, &user.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		OTP:          &code,
		OTPExpiry:    &expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store user: %w", err)
	}

	metrics.IncOTPIssued("signup")
	s.notify(ctx, email, code, expiresAt)

	return stored, nil
}

// Login redeems the OTP for a bearer token. The code is consumed on success.
func (s *Service) Login(ctx context.Context, email, code string) (string, error) {
	if email == "" || code == "" {
		metrics.IncLogin("rejected")
		return "", ErrInvalidOTP
	}

	u, err := s.store.RedeemOTP(ctx, email, code, s.issuer.Now())
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			metrics.IncLogin("rejected")
			return "", ErrInvalidOTP
		}
		metrics.IncLogin("error")
		return "", fmt.Errorf("failed to redeem otp: %w", err)
	}

	token, err := s.tokens.CreateToken(u.ID, s.tokenTTL)
	if err != nil {
		metrics.IncLogin("error")
		return "", fmt.Errorf("failed to create token: %w", err)
	}

	metrics.IncLogin("success")
	return token, nil
}

// VerifyToken returns the user id carried by a valid, unexpired token.
func (s *Service) VerifyToken(token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, ErrUnauthorized
	}
	claims, err := s.tokens.VerifyToken(token)
	if err != nil {
		return uuid.Nil, apperr.Wrap(apperr.ErrUnauthorized, ErrUnauthorized.Message, err)
	}
	return claims.UserID, nil
}

// RequestOTP issues a new code for an existing account.
// Always returns nil to prevent email enumeration attacks
func (s *Service) RequestOTP(ctx context.Context, email string) error {
	if email == "" {
		return nil
	}

	code, expiresAt, err := s.issuer.Issue(s.otpTTL)
	if err != nil {
		s.logger.Warn("failed to generate otp", "error", err)
		return nil
	}

	if err := s.store.SetOTP(ctx, email, code, expiresAt); err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			s.logger.Warn("failed to store reissued otp", "error", err)
		}
		return nil
	}

	metrics.IncOTPIssued("reissue")
	s.notify(ctx, email, code, expiresAt)
	return nil
}

// notify hands the code to the notifier without tying it to the request
// lifetime. Delivery failures are logged, never returned.
func (s *Service) notify(ctx context.Context, email, code string, expiresAt time.Time) {
	if err := s.notifier.SendOTP(context.WithoutCancel(ctx), email, code, expiresAt); err != nil {
		s.logger.Warn("failed to queue otp email", "email", email, "error", err)
	}
}
