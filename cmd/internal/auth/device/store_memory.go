package device

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]Row
	seq  int64
	ord  map[string]int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Row), ord: make(map[string]int64)}
}

// Checkpoint captures the current rows; the returned func restores them.
func (s *MemoryStore) Checkpoint() (restore func()) {
	s.mu.RLock()
	rows := make(map[string]Row, len(s.rows))
	for k, v := range s.rows {
		rows[k] = v
	}
	ord := make(map[string]int64, len(s.ord))
	for k, v := range s.ord {
		ord[k] = v
	}
	seq := s.seq
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		s.rows, s.ord, s.seq = rows, ord, seq
		s.mu.Unlock()
	}
}

// Create inserts a new trusted device.
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
		if r.TokenHash == in.TokenHash {
			return Row{}, ErrConflict
		}
	}

	r := newRow(in, now)
	s.seq++
	s.rows[r.ID] = r
	s.ord[r.ID] = s.seq
	return r, nil
}

// ActiveByDeviceID returns every valid device carrying deviceID.
func (s *MemoryStore) ActiveByDeviceID(ctx context.Context, deviceID string, now time.Time) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if deviceID == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Row
	for _, r := range s.rows {
		if r.DeviceID == deviceID && r.ValidAt(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Touch records a successful refresh.
func (s *MemoryStore) Touch(ctx context.Context, id, ip, userAgent string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	t := now
	r.LastSeenAt = &t
	if ip = strings.TrimSpace(ip); ip != "" {
		r.LastIP = ip
	}
	if userAgent != "" {
		r.LastUserAgent = userAgent
	}
	s.rows[id] = r
	return nil
}

// ListByUser returns every device of a user, newest first.
func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Row
	for _, r := range s.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return s.ord[out[i].ID] > s.ord[out[j].ID]
	})
	return out, nil
}

// Revoke revokes a device owned by userID.
func (s *MemoryStore) Revoke(ctx context.Context, id, userID string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok || r.UserID != userID {
		return ErrNotFound
	}
	if r.RevokedAt == nil {
		t := now
		r.RevokedAt = &t
		s.rows[id] = r
	}
	return nil
}

// DeleteByUser removes all devices of a user.
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
			delete(s.ord, id)
			n++
		}
	}
	return n, nil
}
