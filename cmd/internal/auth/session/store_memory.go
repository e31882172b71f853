package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]Row
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Row)}
}

// Checkpoint captures the current rows; the returned func restores them.
func (s *MemoryStore) Checkpoint() (restore func()) {
	s.mu.RLock()
	saved := make(map[string]Row, len(s.rows))
	for k, v := range s.rows {
		saved[k] = v
	}
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		s.rows = saved
		s.mu.Unlock()
	}
}

// Create inserts a new session row.
func (s *MemoryStore) Create(ctx context.Context, in CreateInput) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	if err := checkCreate(in); err != nil {
		return Row{}, err
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rows {
		if r.TokenHash == in.TokenHash || (in.Lookup != "" && r.Lookup == in.Lookup) {
			return Row{}, ErrConflict
		}
	}

	r := Row{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		TokenHash: in.TokenHash,
		Lookup:    in.Lookup,
		DeviceID:  in.DeviceID,
		UserAgent: in.UserAgent,
		IP:        cleanIP(in.IP),
		ExpiresAt: in.ExpiresAt,
		CreatedAt: now,
	}
	s.rows[r.ID] = r
	return r, nil
}

// ListActive returns every session valid at now.
func (s *MemoryStore) ListActive(ctx context.Context, now time.Time) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Row
	for _, r := range s.rows {
		if r.ValidAt(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

// ByLookup returns the valid session carrying lookup.
func (s *MemoryStore) ByLookup(ctx context.Context, lookup string, now time.Time) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	if lookup == "" {
		return Row{}, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.rows {
		if r.Lookup == lookup && r.ValidAt(now) {
			return r, nil
		}
	}
	return Row{}, ErrNotFound
}

// ListByUser returns every session of a user, newest first.
func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []Row
	for _, r := range s.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Touch updates last_seen_at for a session.
func (s *MemoryStore) Touch(ctx context.Context, id string, now time.Time) error {
	return s.update(ctx, id, func(r *Row) {
		t := now
		r.LastSeenAt = &t
	})
}

// Revoke revokes a single session (idempotent).
func (s *MemoryStore) Revoke(ctx context.Context, id string, now time.Time) error {
	return s.update(ctx, id, func(r *Row) {
		if r.RevokedAt == nil {
			t := now
			r.RevokedAt = &t
		}
	})
}

// DeleteByUser removes all sessions of a user.
func (s *MemoryStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.rows {
		if r.UserID == userID {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) update(ctx context.Context, id string, fn func(*Row)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	fn(&r)
	s.rows[id] = r
	return nil
}
