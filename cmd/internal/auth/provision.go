package auth

import (
	"context"
	"fmt"
	"strings"

	"kpauth/cmd/identity"
)

// DeleteResult reports what DeleteUser removed alongside the user.
type DeleteResult struct {
	UserID   string
	Sessions int64
	Devices  int64
}

// CreateUser provisions an active account. The password must pass the policy.
func (s *Service) CreateUser(ctx context.Context, email, pw string, superuser bool) (identity.User, error) {
	const op = "auth.CreateUser"

	email = strings.TrimSpace(email)
	if !looksLikeEmail(email) {
		return identity.User{}, fmt.Errorf("%s: %w: malformed email", op, identity.ErrInvalidInput)
	}
	hash, err := s.hashPassword(ctx, pw)
	if err != nil {
		return identity.User{}, fmt.Errorf("%s: %w", op, err)
	}

	var u identity.User
	err = s.uow.InTx(ctx, func(r Repos) error {
		var err error
		u, err = r.Users.Create(ctx, identity.CreateUserInput{
			Email:        email,
			PasswordHash: hash,
			IsSuperuser:  superuser,
			Now:          s.now(),
		})
		return err
	})
	if err != nil {
		return identity.User{}, err
	}
	return u, nil
}

// ListUsers returns every account, oldest first.
func (s *Service) ListUsers(ctx context.Context) ([]identity.User, error) {
	users, err := s.uow.Repos().Users.List(ctx)
	if err != nil {
		return nil, wrap("auth.ListUsers", err)
	}
	return users, nil
}

// DeleteUser removes an account with its sessions and devices.
func (s *Service) DeleteUser(ctx context.Context, email string) (DeleteResult, error) {
	var res DeleteResult
	err := s.uow.InTx(ctx, func(r Repos) error {
		u, err := r.Users.ByEmail(ctx, email, s.emailMatch())
		if err != nil {
			return err
		}
		res.UserID = u.ID
		if res.Sessions, err = r.Sessions.DeleteByUser(ctx, u.ID); err != nil {
			return err
		}
		if res.Devices, err = r.Devices.DeleteByUser(ctx, u.ID); err != nil {
			return err
		}
		return r.Users.Delete(ctx, u.ID)
	})
	if err != nil {
		return DeleteResult{}, err
	}
	return res, nil
}

// UpdatePassword replaces an account's password.
func (s *Service) UpdatePassword(ctx context.Context, email, pw string) error {
	const op = "auth.UpdatePassword"

	hash, err := s.hashPassword(ctx, pw)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return s.uow.InTx(ctx, func(r Repos) error {
		u, err := r.Users.ByEmail(ctx, email, s.emailMatch())
		if err != nil {
			return err
		}
		return r.Users.SetPassword(ctx, u.ID, hash, s.now())
	})
}

// ToggleActive flips is_active and returns the new value.
func (s *Service) ToggleActive(ctx context.Context, email string) (bool, error) {
	var active bool
	err := s.uow.InTx(ctx, func(r Repos) error {
		u, err := r.Users.ByEmail(ctx, email, s.emailMatch())
		if err != nil {
			return err
		}
		active = !u.IsActive
		return r.Users.SetActive(ctx, u.ID, active, s.now())
	})
	return active, err
}

func (s *Service) hashPassword(ctx context.Context, pw string) (string, error) {
	if err := s.pw.CheckPolicy(pw); err != nil {
		return "", err
	}
	var hash string
	err := s.pool.Do(ctx, func() error {
		var err error
		hash, err = s.pw.Hash(pw)
		return err
	})
	return hash, err
}

func looksLikeEmail(s string) bool {
	at := strings.LastIndexByte(s, '@')
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t\r\n")
}
