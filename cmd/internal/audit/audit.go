// Package audit records security events (logins, refreshes, revocations).
//
// Events are written best effort: a sink failure is logged by the caller and
// never fails the request that produced the event.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Event names.
const (
	LoginSuccess        = "auth.login.success"
	LoginFailed         = "auth.login.failed"
	RefreshSuccess      = "auth.refresh.success"
	RefreshFailed       = "auth.refresh.failed"
	FingerprintMismatch = "auth.refresh.fingerprint_mismatch"
	Logout              = "auth.logout"
	DeviceRevoked       = "device.revoked"
)

// Event is one audit_log row.
type Event struct {
	Name      string
	UserID    string
	IP        string
	UserAgent string
	Payload   map[string]any
	At        time.Time
}

// Sink stores events.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// Nop discards events.
type Nop struct{}

// Record implements Sink.
func (Nop) Record(context.Context, Event) error { return nil }

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func normalize(ev Event) (Event, bool) {
	ev.Name = strings.TrimSpace(ev.Name)
	if ev.Name == "" {
		return ev, false
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	ev.UserAgent = strings.TrimSpace(ev.UserAgent)
	ev.IP = strings.TrimSpace(ev.IP)
	return ev, true
}
