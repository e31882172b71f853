package auth

import (
	"errors"
	"fmt"
)

// Authentication failures. Handlers map these to 401/404; anything else is an
// internal error.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidSession      = errors.New("invalid session")
	ErrInvalidDevice       = errors.New("invalid device")
	ErrFingerprintMismatch = errors.New("fingerprint mismatch")
	ErrNotFound            = errors.New("not found")
)

// IsAuthError reports whether err is one of the authentication failures above.
func IsAuthError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidSession),
		errors.Is(err, ErrInvalidDevice),
		errors.Is(err, ErrFingerprintMismatch),
		errors.Is(err, ErrNotFound):
		return true
	}
	return false
}

func wrap(op string, err error) error {
	if err == nil || IsAuthError(err) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
