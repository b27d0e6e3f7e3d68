package goerror

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	cause := errors.New("provider down")

	tests := []struct {
		name    string
		err     error
		msg     string
		code    Code
		status  int
		wantErr string
	}{
		{"server", NewServer(cause), "Internal server error", CodeInternal, http.StatusInternalServerError, "provider down"},
		{"delivery", NewDelivery(cause), "Failed to send verification code", CodeDeliveryFailed, http.StatusInternalServerError, "provider down"},
		{"invalid code", NewBusiness("Invalid OTP", CodeInvalidCode), "Invalid OTP", CodeInvalidCode, http.StatusBadRequest, "Invalid OTP"},
		{"expired code", NewBusiness("OTP has expired", CodeExpiredCode), "OTP has expired", CodeExpiredCode, http.StatusBadRequest, "OTP has expired"},
		{"unauthorized", NewBusiness("Authentication required", CodeUnauthorized), "Authentication required", CodeUnauthorized, http.StatusUnauthorized, "Authentication required"},
		{"validation", NewValidation("Invalid phone number", cause), "Invalid phone number", CodeInvalidInput, http.StatusBadRequest, "provider down"},
		{"format default", NewInvalidFormat(), "Invalid request body", CodeInvalidFormat, http.StatusBadRequest, "Invalid request body"},
		{"format custom", NewInvalidFormat("bad json"), "bad json", CodeInvalidFormat, http.StatusBadRequest, "bad json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gerr *Error
			require.ErrorAs(t, tt.err, &gerr)
			assert.Equal(t, tt.msg, gerr.Msg())
			assert.Equal(t, tt.code, gerr.Code())
			assert.Equal(t, tt.status, gerr.StatusCode())
			assert.Equal(t, tt.wantErr, gerr.Error())
			assert.Zero(t, gerr.RetryAfter())
		})
	}
}

func TestNewTooManyRequest(t *testing.T) {
	err := NewTooManyRequest("slow down", 42*time.Second)

	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusTooManyRequests, gerr.StatusCode())
	assert.Equal(t, 42*time.Second, gerr.RetryAfter())
}

func TestUnwrap(t *testing.T) {
	err := NewServer(ErrConflict)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestCode_String(t *testing.T) {
	assert.Equal(t, "ERROR_CODE_DELIVERY_FAILED", CodeDeliveryFailed.String())
	assert.Equal(t, "ERROR_CODE_INTERNAL", Code(99).String())
	assert.Equal(t, http.StatusInternalServerError, Code(99).StatusCode())
	assert.Equal(t, "ERROR_CODE_EXPIRED_CODE", (&Error{code: CodeExpiredCode}).Error())
}
