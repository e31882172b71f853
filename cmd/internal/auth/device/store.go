package device

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no device row matches (or it belongs to another user).
	ErrNotFound = errors.New("device not found")

	// ErrInvalidInput is returned when a required field is missing.
	ErrInvalidInput = errors.New("device: invalid input")

	// ErrConflict is returned when a token hash is already stored.
	ErrConflict = errors.New("device: conflict")
)

// Row mirrors the trusted_devices table.
type Row struct {
	ID            string
	UserID        string
	DeviceID      string
	TokenHash     string
	Fingerprint   string
	Name          string
	Info          json.RawMessage
	LastIP        string
	LastUserAgent string
	FirstSeenAt   time.Time
	LastSeenAt    *time.Time
	ExpiresAt     time.Time
	RevokedAt     *time.Time
	CreatedAt     time.Time
}

// ValidAt reports whether the device may authenticate a refresh at now.
func (r Row) ValidAt(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}

// CreateInput carries the columns of a new device.
type CreateInput struct {
	UserID      string
	DeviceID    string
	TokenHash   string
	Fingerprint string
	Name        string
	Info        json.RawMessage
	IP          string
	UserAgent   string
	Now         time.Time
	ExpiresAt   time.Time
}

// Store abstracts persistence for trusted devices.
type Store interface {
	// Create inserts a new device row.
	Create(ctx context.Context, in CreateInput) (Row, error)

	// ActiveByDeviceID returns every device valid at now carrying deviceID.
	ActiveByDeviceID(ctx context.Context, deviceID string, now time.Time) ([]Row, error)

	// Touch records a successful refresh from ip/userAgent.
	Touch(ctx context.Context, id, ip, userAgent string, now time.Time) error

	// ListByUser returns every device of a user, revoked or not, newest first.
	ListByUser(ctx context.Context, userID string) ([]Row, error)

	// Revoke sets revoked_at on a device owned by userID unless already set.
	// A missing or foreign device yields ErrNotFound.
	Revoke(ctx context.Context, id, userID string, now time.Time) error

	// DeleteByUser removes all devices of a user and reports how many.
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

func checkCreate(in CreateInput) error {
	switch {
	case in.UserID == "", in.DeviceID == "", in.TokenHash == "":
		return ErrInvalidInput
	case in.Fingerprint == "":
		return ErrInvalidInput
	case in.ExpiresAt.IsZero():
		return ErrInvalidInput
	}
	if len(in.Info) > 0 && !json.Valid(in.Info) {
		return ErrInvalidInput
	}
	return nil
}
