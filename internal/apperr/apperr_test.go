package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", New(ErrValidation, "email is required"), http.StatusBadRequest},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"not found wrapped", fmt.Errorf("get profile: %w", ErrNotFound), http.StatusNotFound},
		{"conflict", Wrap(ErrConflict, "email already in use", errors.New("unique violation")), http.StatusConflict},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"dependency", Wrap(ErrDependencyUnavailable, "entropy", errors.New("read failed")), http.StatusServiceUnavailable},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}

func TestError_UnwrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrDependencyUnavailable, "store unavailable", cause)

	assert.ErrorIs(t, err, ErrDependencyUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "store unavailable: connection refused", err.Error())
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "email is required", Message(New(ErrValidation, "email is required"), "bad request"))
	assert.Equal(t, "bad request", Message(errors.New("plain"), "bad request"))
	assert.Equal(t, "bad request", Message(fmt.Errorf("wrapped: %w", ErrValidation), "bad request"))
}
