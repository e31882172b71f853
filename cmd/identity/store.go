package identity

import (
	"context"
	"time"
)

// User is the persisted credential record.
type User struct {
	ID                string
	Email             string
	PasswordHash      string
	IsActive          bool
	IsSuperuser       bool
	LastLoginAt       *time.Time
	PasswordUpdatedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EmailMatch selects how ByEmail compares addresses.
type EmailMatch int

const (
	// MatchExact compares the stored email byte for byte.
	MatchExact EmailMatch = iota
	// MatchFolded compares NormalizeEmail forms.
	MatchFolded
)

// CreateUserInput describes a provisioning request. PasswordHash is already
// encoded; this package never sees plaintext passwords.
type CreateUserInput struct {
	Email        string
	PasswordHash string
	IsSuperuser  bool
	Now          time.Time
}

// Store is the credential persistence boundary.
type Store interface {
	// Create inserts a new active user. A duplicate email yields ConflictError{Field: "email"}.
	Create(ctx context.Context, in CreateUserInput) (User, error)

	// ByEmail loads a user by email. Missing users yield NotFoundError.
	ByEmail(ctx context.Context, email string, match EmailMatch) (User, error)

	// ByID loads a user by id. Missing users yield NotFoundError.
	ByID(ctx context.Context, id string) (User, error)

	// List returns all users ordered by creation time.
	List(ctx context.Context) ([]User, error)

	// TouchLogin sets last_login_at.
	TouchLogin(ctx context.Context, id string, now time.Time) error

	// SetPassword replaces the hash and sets password_updated_at.
	SetPassword(ctx context.Context, id string, hash string, now time.Time) error

	// SetActive updates the active flag.
	SetActive(ctx context.Context, id string, active bool, now time.Time) error

	// Delete removes a user; owned sessions and devices cascade.
	Delete(ctx context.Context, id string) error
}
