package auth

import (
	"errors"
	"net"
	"net/http"

	"github.com/redmonkez12/otp-accounts/internal/apperr"
	"github.com/redmonkez12/otp-accounts/internal/httputil"
	"github.com/redmonkez12/otp-accounts/internal/logging"
)

const (
	signupMessage     = "User registered. Check your email for OTP."
	otpRequestMessage = "If the email is registered, a new OTP has been sent."
)

// Handler contains HTTP handlers for the account endpoints
type Handler struct {
	service     *Service
	rateLimiter RateLimiter
}

func NewHandler(service *Service, rateLimiter RateLimiter) *Handler {
	return &Handler{service: service, rateLimiter: rateLimiter}
}

// SignupRequest represents the signup request body
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// LoginResponse carries the bearer token issued on a successful login
type LoginResponse struct {
	Token string `json:"token"`
}

// OTPRequest represents the OTP re-issue request body
type OTPRequest struct {
	Email string `json:"email"`
}

// Signup handles user registration
// @Summary      Register a user
// @Description  Create or replace an account and email it a one-time code valid for a limited time.
// @Tags         auth
// @Accept       json
// @Produce      plain
// @Param        request body SignupRequest true "Account details"
// @Success      201 {string} string "User registered. Check your email for OTP."
// @Failure      400 {object} httputil.ErrorResponse "Invalid request or validation error"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Failure      503 {object} httputil.ErrorResponse "OTP could not be generated"
// @Router       /signup [post]
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, "signup") {
		return
	}

	var req SignupRequest
	if !httputil.DecodeJSON(w, r, &req) {
		logger.Warn("invalid signup request body")
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	newUser, err := h.service.Signup(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			logger.Warn("signup failed: validation error", "error", err.Error())
		} else {
			logger.Error("signup failed", "error", err.Error())
		}
		httputil.RespondAppError(w, err)
		return
	}

	logger.Info("user signed up", "user_id", newUser.ID)
	httputil.RespondText(w, signupMessage, http.StatusCreated)
}

// Login handles OTP login
// @Summary      Log in with an OTP
// @Description  Redeem the emailed one-time code for a bearer token. A code works once.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Email and one-time code"
// @Success      200 {object} LoginResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request body"
// @Failure      401 {string} string "Invalid or expired OTP"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Router       /login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, "login") {
		return
	}

	var req LoginRequest
	if !httputil.DecodeJSON(w, r, &req) {
		logger.Warn("invalid login request body")
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	token, err := h.service.Login(r.Context(), req.Email, req.OTP)
	if err != nil {
		if errors.Is(err, ErrInvalidOTP) {
			logger.Warn("login failed: invalid or expired otp")
			httputil.RespondText(w, ErrInvalidOTP.Message, http.StatusUnauthorized)
			return
		}
		logger.Error("login failed", "error", err.Error())
		httputil.RespondAppError(w, err)
		return
	}

	logger.Info("user logged in")
	httputil.RespondJSON(w, LoginResponse{Token: token}, http.StatusOK)
}

// RequestOTP handles OTP re-issue
// @Summary      Request a new OTP
// @Description  Email a fresh one-time code to a registered address. Always accepted to prevent email enumeration.
// @Tags         auth
// @Accept       json
// @Produce      plain
// @Param        request body OTPRequest true "Email address"
// @Success      202 {string} string "If the email is registered, a new OTP has been sent."
// @Failure      400 {object} httputil.ErrorResponse "Invalid request body"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Router       /otp [post]
func (h *Handler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, "otp") {
		return
	}

	var req OTPRequest
	if !httputil.DecodeJSON(w, r, &req) {
		logger.Warn("invalid otp request body")
		return
	}

	// An active cooldown is answered like a success so it reveals nothing.
	acquired, err := h.rateLimiter.AcquireCooldown(r.Context(), req.Email)
	switch {
	case err != nil:
		logger.Error("failed to check email cooldown", "error", err.Error())
		_ = h.service.RequestOTP(r.Context(), req.Email)
	case !acquired:
		logger.Warn("email on cooldown", "email", req.Email)
	default:
		_ = h.service.RequestOTP(r.Context(), req.Email)
	}

	httputil.RespondText(w, otpRequestMessage, http.StatusAccepted)
}

// allow applies the per-IP limit for purpose. Limiter failures let the
// request through.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, purpose string) bool {
	logger := logging.GetLoggerFromContext(r.Context())
	ip := clientIP(r)

	ok, err := h.rateLimiter.Allow(r.Context(), ip, purpose)
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
		return true
	}
	if !ok {
		logger.Warn("IP rate limit exceeded", "ip", ip, "purpose", purpose)
		httputil.RespondErrorWithCode(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return false
	}
	return true
}

// clientIP strips the port from RemoteAddr, which chi's RealIP middleware
// has already resolved from proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
