package session

import "errors"

var (
	// ErrNotFound is returned when no session row matches.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidInput is returned when a required field is missing.
	ErrInvalidInput = errors.New("session: invalid input")

	// ErrConflict is returned when a token hash or lookup key is already stored.
	ErrConflict = errors.New("session: conflict")
)
