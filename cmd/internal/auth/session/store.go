package session

import (
	"context"
	"time"
)

// Row mirrors the sessions table.
type Row struct {
	ID         string
	UserID     string
	TokenHash  string
	Lookup     string
	DeviceID   string
	UserAgent  string
	IP         string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	LastSeenAt *time.Time
	CreatedAt  time.Time
}

// ValidAt reports whether the session authenticates at now.
func (r Row) ValidAt(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}

// CreateInput carries the columns of a new session.
// Lookup and DeviceID are optional.
type CreateInput struct {
	UserID    string
	TokenHash string
	Lookup    string
	DeviceID  string
	UserAgent string
	IP        string
	Now       time.Time
	ExpiresAt time.Time
}

// Store abstracts persistence for sessions.
type Store interface {
	// Create inserts a new session row.
	Create(ctx context.Context, in CreateInput) (Row, error)

	// ListActive returns every session valid at now.
	ListActive(ctx context.Context, now time.Time) ([]Row, error)

	// ByLookup returns the session valid at now carrying lookup.
	ByLookup(ctx context.Context, lookup string, now time.Time) (Row, error)

	// ListByUser returns every session of a user, newest first.
	ListByUser(ctx context.Context, userID string) ([]Row, error)

	// Touch sets last_seen_at.
	Touch(ctx context.Context, id string, now time.Time) error

	// Revoke sets revoked_at unless it is already set.
	Revoke(ctx context.Context, id string, now time.Time) error

	// DeleteByUser removes all sessions of a user and reports how many.
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

func checkCreate(in CreateInput) error {
	switch {
	case in.UserID == "":
		return ErrInvalidInput
	case in.TokenHash == "":
		return ErrInvalidInput
	case in.ExpiresAt.IsZero():
		return ErrInvalidInput
	}
	return nil
}
