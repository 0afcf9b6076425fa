package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSendErrorResponse(t *testing.T) {
	t.Run("plain error", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var resp ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Invalid request", resp.Error)
		assert.Empty(t, resp.Details)
	})

	t.Run("validation details", func(t *testing.T) {
		vh := NewValidationHelper()
		err := vh.ValidateStruct(&RegisterRequest{Username: "al", Password: "pw"})
		assert.Error(t, err)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)

		var resp ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp.Details, "Username")
		assert.Contains(t, resp.Details, "Email")
		assert.Contains(t, resp.Details, "Password")
	})
}

func TestSendServiceError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"invalid credentials", ErrInvalidCredentials, http.StatusUnauthorized, "Invalid credentials"},
		{"incorrect password", ErrIncorrectPassword, http.StatusUnauthorized, "Incorrect password"},
		{"account not found", ErrAccountNotFound, http.StatusNotFound, "Account not found"},
		{"insufficient funds", ErrInsufficientFunds, http.StatusBadRequest, "Insufficient funds"},
		{"duplicate user", ErrDuplicateUser, http.StatusConflict, "Username or email already exists"},
		{"unexpected error", assert.AnError, http.StatusInternalServerError, "An internal error occurred"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			SendServiceError(w, tc.err)

			assert.Equal(t, tc.wantStatus, w.Code)
			var resp ErrorResponse
			assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantError, resp.Error)
		})
	}
}
