package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used when no database is configured and in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]User)}
}

// Checkpoint captures the current contents; calling the returned func restores them.
func (s *MemoryStore) Checkpoint() (restore func()) {
	s.mu.RLock()
	saved := make(map[string]User, len(s.users))
	for k, v := range s.users {
		saved[k] = v
	}
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		s.users = saved
		s.mu.Unlock()
	}
}

// Create inserts a new active user.
func (s *MemoryStore) Create(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.Create"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	email := strings.TrimSpace(in.Email)
	if email == "" {
		return User{}, invalid(op, "email is required")
	}
	if in.PasswordHash == "" {
		return User{}, invalid(op, "password hash is required")
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	norm := NormalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email || NormalizeEmail(u.Email) == norm {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
	}

	u := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: in.PasswordHash,
		IsActive:     true,
		IsSuperuser:  in.IsSuperuser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[u.ID] = u
	return u, nil
}

// ByEmail loads a user by exact or folded email.
func (s *MemoryStore) ByEmail(ctx context.Context, email string, match EmailMatch) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		switch match {
		case MatchFolded:
			if NormalizeEmail(u.Email) == NormalizeEmail(email) {
				return u, nil
			}
		default:
			if u.Email == email {
				return u, nil
			}
		}
	}
	return User{}, NotFoundError{Op: "identity.ByEmail", Resource: "user"}
}

// ByID loads a user by id.
func (s *MemoryStore) ByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, NotFoundError{Op: "identity.ByID", Resource: "user"}
	}
	return u, nil
}

// List returns all users, oldest first.
func (s *MemoryStore) List(ctx context.Context) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Email < out[j].Email
	})
	return out, nil
}

// TouchLogin sets last_login_at.
func (s *MemoryStore) TouchLogin(ctx context.Context, id string, now time.Time) error {
	return s.update(ctx, "identity.TouchLogin", id, func(u *User) {
		t := now
		u.LastLoginAt = &t
		u.UpdatedAt = now
	})
}

// SetPassword replaces the password hash.
func (s *MemoryStore) SetPassword(ctx context.Context, id string, hash string, now time.Time) error {
	if hash == "" {
		return invalid("identity.SetPassword", "password hash is required")
	}
	return s.update(ctx, "identity.SetPassword", id, func(u *User) {
		t := now
		u.PasswordHash = hash
		u.PasswordUpdatedAt = &t
		u.UpdatedAt = now
	})
}

// SetActive updates the active flag.
func (s *MemoryStore) SetActive(ctx context.Context, id string, active bool, now time.Time) error {
	return s.update(ctx, "identity.SetActive", id, func(u *User) {
		u.IsActive = active
		u.UpdatedAt = now
	})
}

// Delete removes the user. Callers remove owned sessions and devices.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return NotFoundError{Op: "identity.Delete", Resource: "user"}
	}
	delete(s.users, id)
	return nil
}

func (s *MemoryStore) update(ctx context.Context, op, id string, fn func(*User)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return invalid(op, "missing id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	fn(&u)
	s.users[id] = u
	return nil
}
