package errs

import (
	"net/http"
	"testing"
)

func TestNewErrorKnownCode(t *testing.T) {
	err := NewError(ErrChatroomNotFound)

	if err.Code != ErrChatroomNotFound {
		t.Errorf("Code = %d, want %d", err.Code, ErrChatroomNotFound)
	}
	if err.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", err.Status, http.StatusNotFound)
	}
	if err.Message == "" {
		t.Error("Message is empty")
	}
}

func TestNewErrorDefaultsStatusToOK(t *testing.T) {
	// Business errors without an explicit HTTP status ride on a 200 response
	// and are distinguished by their code field.
	err := NewError(ErrInvalidCredentials)

	if err.Status != http.StatusOK {
		t.Errorf("Status = %d, want %d", err.Status, http.StatusOK)
	}
}

func TestNewErrorUnknownCodeFallsBack(t *testing.T) {
	err := NewError(999999)

	if err.Code != ErrUnknown {
		t.Errorf("Code = %d, want %d for unknown input code", err.Code, ErrUnknown)
	}
	if err.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", err.Status, http.StatusInternalServerError)
	}
}

func TestCustomErrorImplementsError(t *testing.T) {
	var err error = NewError(ErrUnauthorized)

	if err.Error() == "" {
		t.Error("Error() returned empty string")
	}
}
