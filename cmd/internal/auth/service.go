package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"kpauth/cmd/identity"
	"kpauth/cmd/internal/auth/device"
	"kpauth/cmd/internal/auth/session"
	"kpauth/cmd/internal/workpool"
	"kpauth/cmd/security/password"
	"kpauth/cmd/security/token"

	"golang.org/x/sync/errgroup"
)

// Passwords hashes and verifies user passwords. password.Config implements it.
type Passwords interface {
	Hash(pw string) (string, error)
	Verify(encoded, pw string) (bool, error)
	CheckPolicy(pw string) error
}

// Service implements the authentication protocol over a UnitOfWork.
type Service struct {
	cfg    Config
	uow    UnitOfWork
	pool   *workpool.Pool
	tokens *token.Hasher
	pw     Passwords

	// dummyHash is verified against when the email is unknown.
	dummyHash string
}

// NewService validates cfg and wires the collaborators.
func NewService(cfg Config, uow UnitOfWork, pool *workpool.Pool, tokens *token.Hasher, pw Passwords) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case uow == nil:
		return nil, errors.New("auth: nil unit of work")
	case pool == nil:
		return nil, errors.New("auth: nil worker pool")
	case tokens == nil:
		return nil, errors.New("auth: nil token hasher")
	case pw == nil:
		return nil, errors.New("auth: nil password hasher")
	}
	dummy, err := dummyPasswordHash(pw)
	if err != nil {
		return nil, err
	}
	return &Service{cfg: cfg.withDefaults(), uow: uow, pool: pool, tokens: tokens, pw: pw, dummyHash: dummy}, nil
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

func (s *Service) now() time.Time { return s.cfg.Now().UTC() }

func (s *Service) emailMatch() identity.EmailMatch {
	if s.cfg.FoldEmailCase {
		return identity.MatchFolded
	}
	return identity.MatchExact
}

// LoginInput is the request of Login. Fingerprint is required only when
// RememberDevice is set; without it no device is created.
type LoginInput struct {
	Email          string
	Password       string
	RememberDevice bool
	Fingerprint    string
	DeviceName     string
	DeviceInfo     json.RawMessage
	IP             string
	UserAgent      string
}

// IssuedDevice carries a newly trusted device. DeviceToken is returned only here.
type IssuedDevice struct {
	ID          string
	DeviceID    string
	DeviceToken string
	ExpiresAt   time.Time
}

// LoginResult carries the raw session token. It is not retrievable again.
type LoginResult struct {
	UserID           string
	Email            string
	IsSuperuser      bool
	SessionID        string
	SessionToken     string
	SessionExpiresAt time.Time
	Device           *IssuedDevice
}

// RefreshInput is the request of RefreshSession. An empty Fingerprint skips
// the fingerprint check.
type RefreshInput struct {
	DeviceID    string
	DeviceToken string
	Fingerprint string
	IP          string
	UserAgent   string
}

// RefreshResult carries the freshly minted session.
type RefreshResult struct {
	UserID           string
	Email            string
	IsSuperuser      bool
	SessionID        string
	SessionToken     string
	SessionExpiresAt time.Time
}

// CurrentUser identifies the owner of a resolved session.
type CurrentUser struct {
	UserID    string
	SessionID string
	DeviceID  string
}

type minted struct {
	raw    string
	hash   string
	lookup string
}

// Login authenticates credentials and issues a session, plus a trusted device
// when RememberDevice and Fingerprint are both set.
func (s *Service) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	const op = "auth.Login"

	u, err := s.authenticate(ctx, in.Email, in.Password)
	if err != nil {
		return LoginResult{}, wrap(op, err)
	}

	fingerprint := clip(in.Fingerprint, maxFingerprintLen)
	withDevice := in.RememberDevice && fingerprint != ""

	var sess, dev minted
	var deviceID string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sess, err = s.mintSession(gctx)
		return err
	})
	if withDevice {
		g.Go(func() error {
			var err error
			if deviceID, err = token.GenerateDeviceID(); err != nil {
				return err
			}
			dev, err = s.mintToken(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return LoginResult{}, wrap(op, err)
	}

	now := s.now()
	res := LoginResult{
		UserID:       u.ID,
		Email:        u.Email,
		IsSuperuser:  u.IsSuperuser,
		SessionToken: sess.raw,
	}

	err = s.uow.InTx(ctx, func(r Repos) error {
		linked := ""
		if withDevice {
			row, err := r.Devices.Create(ctx, device.CreateInput{
				UserID:      u.ID,
				DeviceID:    deviceID,
				TokenHash:   dev.hash,
				Fingerprint: fingerprint,
				Name:        clip(in.DeviceName, maxDeviceNameLen),
				Info:        in.DeviceInfo,
				IP:          in.IP,
				UserAgent:   in.UserAgent,
				Now:         now,
				ExpiresAt:   now.Add(s.cfg.DeviceTTL),
			})
			if err != nil {
				return err
			}
			linked = row.DeviceID
			res.Device = &IssuedDevice{
				ID:          row.ID,
				DeviceID:    row.DeviceID,
				DeviceToken: dev.raw,
				ExpiresAt:   row.ExpiresAt,
			}
		}

		row, err := r.Sessions.Create(ctx, session.CreateInput{
			UserID:    u.ID,
			TokenHash: sess.hash,
			Lookup:    sess.lookup,
			DeviceID:  linked,
			UserAgent: in.UserAgent,
			IP:        in.IP,
			Now:       now,
			ExpiresAt: now.Add(s.cfg.SessionTTL),
		})
		if err != nil {
			return err
		}
		res.SessionID = row.ID
		res.SessionExpiresAt = row.ExpiresAt

		return r.Users.TouchLogin(ctx, u.ID, now)
	})
	if err != nil {
		return LoginResult{}, wrap(op, err)
	}
	return res, nil
}

// GetCurrentUser resolves a raw session token and bumps the session's
// last_seen_at. Calling it repeatedly is safe.
func (s *Service) GetCurrentUser(ctx context.Context, rawSession string) (CurrentUser, error) {
	const op = "auth.GetCurrentUser"

	now := s.now()
	row, err := s.resolveSession(ctx, s.uow.Repos().Sessions, rawSession, now)
	if err != nil {
		return CurrentUser{}, wrap(op, err)
	}

	err = s.uow.InTx(ctx, func(r Repos) error {
		return r.Sessions.Touch(ctx, row.ID, now)
	})
	if errors.Is(err, session.ErrNotFound) {
		return CurrentUser{}, ErrInvalidSession
	}
	if err != nil {
		return CurrentUser{}, wrap(op, err)
	}
	return CurrentUser{UserID: row.UserID, SessionID: row.ID, DeviceID: row.DeviceID}, nil
}

// RefreshSession mints a new session from a trusted device. The device token
// is not rotated and earlier sessions stay valid.
func (s *Service) RefreshSession(ctx context.Context, in RefreshInput) (RefreshResult, error) {
	const op = "auth.RefreshSession"

	deviceID := strings.TrimSpace(in.DeviceID)
	raw := strings.TrimSpace(in.DeviceToken)
	if deviceID == "" || raw == "" || len(raw) > maxTokenLen || len(deviceID) > maxTokenLen {
		return RefreshResult{}, ErrInvalidDevice
	}

	now := s.now()
	rows, err := s.uow.Repos().Devices.ActiveByDeviceID(ctx, deviceID, now)
	if err != nil {
		return RefreshResult{}, wrap(op, err)
	}
	i, err := s.pool.Search(ctx, len(rows), func(i int) bool {
		return s.tokens.Verify(raw, rows[i].TokenHash)
	})
	if err != nil {
		return RefreshResult{}, wrap(op, err)
	}
	if i < 0 {
		return RefreshResult{}, ErrInvalidDevice
	}
	dev := rows[i]

	if fp := clip(in.Fingerprint, maxFingerprintLen); fp != "" && fp != dev.Fingerprint {
		return RefreshResult{}, ErrFingerprintMismatch
	}

	sess, err := s.mintSession(ctx)
	if err != nil {
		return RefreshResult{}, wrap(op, err)
	}

	res := RefreshResult{UserID: dev.UserID, SessionToken: sess.raw}
	err = s.uow.InTx(ctx, func(r Repos) error {
		u, err := r.Users.ByID(ctx, dev.UserID)
		if identity.IsNotFound(err) {
			return ErrInvalidDevice
		}
		if err != nil {
			return err
		}
		if !u.IsActive {
			return ErrInvalidDevice
		}
		res.Email = u.Email
		res.IsSuperuser = u.IsSuperuser
		if err := r.Devices.Touch(ctx, dev.ID, in.IP, in.UserAgent, now); err != nil {
			return err
		}
		row, err := r.Sessions.Create(ctx, session.CreateInput{
			UserID:    dev.UserID,
			TokenHash: sess.hash,
			Lookup:    sess.lookup,
			DeviceID:  dev.DeviceID,
			UserAgent: in.UserAgent,
			IP:        in.IP,
			Now:       now,
			ExpiresAt: now.Add(s.cfg.SessionTTL),
		})
		if err != nil {
			return err
		}
		res.SessionID = row.ID
		res.SessionExpiresAt = row.ExpiresAt
		return nil
	})
	if errors.Is(err, device.ErrNotFound) {
		// Revoked or deleted between lookup and touch.
		return RefreshResult{}, ErrInvalidDevice
	}
	if err != nil {
		return RefreshResult{}, wrap(op, err)
	}
	return res, nil
}

// Logout revokes the session behind rawSession. An empty or unknown token is
// a no-op; trusted devices are untouched.
func (s *Service) Logout(ctx context.Context, rawSession string) error {
	const op = "auth.Logout"

	if strings.TrimSpace(rawSession) == "" {
		return nil
	}

	now := s.now()
	row, err := s.resolveSession(ctx, s.uow.Repos().Sessions, rawSession, now)
	if errors.Is(err, ErrInvalidSession) {
		return nil
	}
	if err != nil {
		return wrap(op, err)
	}

	err = s.uow.InTx(ctx, func(r Repos) error {
		return r.Sessions.Revoke(ctx, row.ID, now)
	})
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	return wrap(op, err)
}

// ListDevices returns every device of userID, revoked or not, newest first.
func (s *Service) ListDevices(ctx context.Context, userID string) ([]device.Row, error) {
	rows, err := s.uow.Repos().Devices.ListByUser(ctx, userID)
	if err != nil {
		return nil, wrap("auth.ListDevices", err)
	}
	return rows, nil
}

// RevokeDevice revokes a device owned by userID. Missing and foreign devices
// both yield ErrNotFound.
func (s *Service) RevokeDevice(ctx context.Context, userID, id string) error {
	now := s.now()
	err := s.uow.InTx(ctx, func(r Repos) error {
		return r.Devices.Revoke(ctx, id, userID, now)
	})
	if errors.Is(err, device.ErrNotFound) {
		return ErrNotFound
	}
	return wrap("auth.RevokeDevice", err)
}

// User loads the account behind a resolved session.
func (s *Service) User(ctx context.Context, userID string) (identity.User, error) {
	u, err := s.uow.Repos().Users.ByID(ctx, userID)
	if identity.IsNotFound(err) {
		return identity.User{}, ErrInvalidSession
	}
	if err != nil {
		return identity.User{}, wrap("auth.User", err)
	}
	return u, nil
}

// authenticate checks credentials with the same cost on every failure path.
func (s *Service) authenticate(ctx context.Context, email, pw string) (identity.User, error) {
	u, lookupErr := s.uow.Repos().Users.ByEmail(ctx, email, s.emailMatch())
	if lookupErr != nil && !identity.IsNotFound(lookupErr) {
		return identity.User{}, lookupErr
	}

	encoded := u.PasswordHash
	if lookupErr != nil {
		encoded = s.dummyHash
	}

	var ok bool
	err := s.pool.Do(ctx, func() error {
		// A malformed stored hash fails like a wrong password.
		ok, _ = s.pw.Verify(encoded, pw)
		return nil
	})
	if err != nil {
		return identity.User{}, err
	}

	if lookupErr != nil || !ok || !u.IsActive {
		return identity.User{}, ErrInvalidCredentials
	}
	return u, nil
}

func dummyPasswordHash(pw Passwords) (string, error) {
	raw, err := token.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("auth: dummy password: %w", err)
	}
	h, err := pw.Hash(raw)
	if err != nil {
		return "", fmt.Errorf("auth: dummy password hash: %w", err)
	}
	return h, nil
}

func (s *Service) resolveSession(ctx context.Context, st session.Store, raw string, now time.Time) (session.Row, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxTokenLen {
		return session.Row{}, ErrInvalidSession
	}

	if len(s.cfg.LookupKey) > 0 {
		row, err := st.ByLookup(ctx, token.LookupKey(raw, s.cfg.LookupKey), now)
		if errors.Is(err, session.ErrNotFound) {
			return session.Row{}, ErrInvalidSession
		}
		if err != nil {
			return session.Row{}, err
		}
		var ok bool
		if err := s.pool.Do(ctx, func() error {
			ok = s.tokens.Verify(raw, row.TokenHash)
			return nil
		}); err != nil {
			return session.Row{}, err
		}
		if !ok {
			return session.Row{}, ErrInvalidSession
		}
		return row, nil
	}

	rows, err := st.ListActive(ctx, now)
	if err != nil {
		return session.Row{}, err
	}
	i, err := s.pool.Search(ctx, len(rows), func(i int) bool {
		return s.tokens.Verify(raw, rows[i].TokenHash)
	})
	if err != nil {
		return session.Row{}, err
	}
	if i < 0 {
		return session.Row{}, ErrInvalidSession
	}
	return rows[i], nil
}

func (s *Service) mintSession(ctx context.Context) (minted, error) {
	m, err := s.mintToken(ctx)
	if err != nil {
		return minted{}, err
	}
	m.lookup = token.LookupKey(m.raw, s.cfg.LookupKey)
	return m, nil
}

func (s *Service) mintToken(ctx context.Context) (minted, error) {
	raw, err := token.GenerateToken()
	if err != nil {
		return minted{}, err
	}
	var hash string
	err = s.pool.Do(ctx, func() error {
		var err error
		hash, err = s.tokens.Hash(raw)
		return err
	})
	if err != nil {
		return minted{}, err
	}
	return minted{raw: raw, hash: hash}, nil
}

var _ Passwords = password.Config{}

// clip trims s and cuts it to at most n runes, the column width.
func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
