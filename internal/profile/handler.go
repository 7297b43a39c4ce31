package profile

import (
	"errors"
	"net/http"

	"github.com/redmonkez12/otp-accounts/internal/apperr"
	"github.com/redmonkez12/otp-accounts/internal/auth"
	"github.com/redmonkez12/otp-accounts/internal/httputil"
	"github.com/redmonkez12/otp-accounts/internal/logging"
	"github.com/redmonkez12/otp-accounts/internal/user"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// UpdateRequest represents the profile update body. Omitted or empty fields are left unchanged.
type UpdateRequest struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
}

// Get returns the caller's profile
// @Summary      Get profile
// @Description  Return the authenticated user's account. Password hash and OTP are never included.
// @Tags         profile
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} user.User
// @Failure      401 {string} string "Unauthorized"
// @Failure      404 {object} httputil.ErrorResponse "User no longer exists"
// @Router       /profile [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondText(w, auth.ErrUnauthorized.Message, http.StatusUnauthorized)
		return
	}

	u, err := h.service.Get(r.Context(), userID)
	if err != nil {
		logFailure(logger, "get profile failed", err)
		httputil.RespondAppError(w, err)
		return
	}

	httputil.RespondJSON(w, u, http.StatusOK)
}

// Update edits the caller's profile
// @Summary      Update profile
// @Description  Change the username and/or email of the authenticated user and return the updated account.
// @Tags         profile
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body UpdateRequest true "Fields to change"
// @Success      200 {object} user.User
// @Failure      400 {object} httputil.ErrorResponse "Invalid request body"
// @Failure      401 {string} string "Unauthorized"
// @Failure      404 {object} httputil.ErrorResponse "User no longer exists"
// @Failure      409 {object} httputil.ErrorResponse "Email already in use"
// @Router       /profile [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondText(w, auth.ErrUnauthorized.Message, http.StatusUnauthorized)
		return
	}

	var req UpdateRequest
	if !httputil.DecodeJSON(w, r, &req) {
		logger.Warn("invalid profile update body")
		return
	}

	u, err := h.service.Update(r.Context(), userID, user.ProfileUpdate{
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		logFailure(logger, "update profile failed", err)
		httputil.RespondAppError(w, err)
		return
	}

	logger.Info("profile updated", "user_id", u.ID)
	httputil.RespondJSON(w, u, http.StatusOK)
}

func logFailure(logger *logging.Logger, msg string, err error) {
	if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrConflict) {
		logger.Warn(msg, "error", err.Error())
		return
	}
	logger.Error(msg, "error", err.Error())
}
