package services

import (
	"errors"
	"log"
	"net/http"
)

// Business-rule failures. Every handler maps these to HTTP codes in one
// place (SendServiceError); nothing propagates as an unhandled fault.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrIncorrectPassword  = errors.New("incorrect password")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrDuplicateUser      = errors.New("username or email already exists")
)

// SendServiceError maps a service error to its HTTP status and writes the
// structured error response. Unrecognized errors become a 500 with a
// generic message so internal details never leak to the client.
func SendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
	case errors.Is(err, ErrIncorrectPassword):
		SendErrorResponse(w, "Incorrect password", http.StatusUnauthorized, nil)
	case errors.Is(err, ErrAccountNotFound):
		SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
	case errors.Is(err, ErrInsufficientFunds):
		SendErrorResponse(w, "Insufficient funds", http.StatusBadRequest, nil)
	case errors.Is(err, ErrDuplicateUser):
		SendErrorResponse(w, "Username or email already exists", http.StatusConflict, nil)
	default:
		log.Printf("[ERROR] Unexpected service error: %v", err)
		SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
	}
}
