package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"kpauth/cmd/identity"
	"kpauth/cmd/internal/workpool"
	"kpauth/cmd/security/password"
	"kpauth/cmd/security/token"

	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	svc   *Service
	unit  *MemoryUnit
	clock *fakeClock
	pw    password.Config
}

func fastPasswords() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	cfg := DefaultConfig()
	cfg.Now = clock.Now
	if mutate != nil {
		mutate(&cfg)
	}

	unit := NewMemoryUnit()
	pw := fastPasswords()
	svc, err := NewService(cfg, unit, workpool.New(4), token.NewHasher(bcrypt.MinCost), pw)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &harness{svc: svc, unit: unit, clock: clock, pw: pw}
}

// seed stores a user directly, bypassing the provisioning policy.
func (h *harness) seed(t *testing.T, email, pw string, active bool) identity.User {
	t.Helper()
	ctx := context.Background()

	hash, err := h.pw.Hash(pw)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u, err := h.unit.Repos().Users.Create(ctx, identity.CreateUserInput{Email: email, PasswordHash: hash, Now: h.clock.Now()})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if !active {
		if err := h.unit.Repos().Users.SetActive(ctx, u.ID, false, h.clock.Now()); err != nil {
			t.Fatalf("deactivate: %v", err)
		}
		u.IsActive = false
	}
	return u
}

func TestLogin_SessionResolvesToUser(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	u := h.seed(t, "a@x.com", "pw123", true)

	res, err := h.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "pw123", IP: "192.0.2.1", UserAgent: "ua"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.SessionToken == "" || res.Device != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if want := h.clock.Now().Add(DefaultSessionTTL); !res.SessionExpiresAt.Equal(want) {
		t.Fatalf("expires_at=%v want=%v", res.SessionExpiresAt, want)
	}

	cur, err := h.svc.GetCurrentUser(ctx, res.SessionToken)
	if err != nil {
		t.Fatalf("GetCurrentUser: %v", err)
	}
	if cur.UserID != u.ID || cur.SessionID != res.SessionID {
		t.Fatalf("GetCurrentUser got=%+v want user=%s session=%s", cur, u.ID, res.SessionID)
	}

	// Re-resolving in the same request is allowed.
	if _, err := h.svc.GetCurrentUser(ctx, res.SessionToken); err != nil {
		t.Fatalf("second GetCurrentUser: %v", err)
	}

	got, _ := h.unit.Repos().Users.ByID(ctx, u.ID)
	if got.LastLoginAt == nil || !got.LastLoginAt.Equal(h.clock.Now()) {
		t.Fatalf("last_login_at=%v", got.LastLoginAt)
	}

	rows, _ := h.unit.Repos().Sessions.ListByUser(ctx, u.ID)
	if len(rows) != 1 || rows[0].TokenHash == res.SessionToken || rows[0].LastSeenAt == nil {
		t.Fatalf("stored session=%+v", rows)
	}
}

func TestLogin_FailuresShareOneError(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	h.seed(t, "a@x.com", "pw123", true)
	h.seed(t, "off@x.com", "pw123", false)

	cases := []struct {
		name, email, pw string
	}{
		{"wrong password", "a@x.com", "nope"},
		{"unknown email", "ghost@x.com", "pw123"},
		{"inactive user", "off@x.com", "pw123"},
		{"case differs", "A@x.com", "pw123"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		_, err := h.svc.Login(ctx, LoginInput{Email: tc.email, Password: tc.pw, RememberDevice: true, Fingerprint: "fp"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: err=%v want ErrInvalidCredentials", tc.name, err)
		}
	}

	active, _ := h.unit.Repos().Sessions.ListActive(ctx, h.clock.Now())
	if len(active) != 0 {
		t.Fatalf("failed logins created %d sessions", len(active))
	}
}

func TestLogin_FoldEmailCase(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(c *Config) { c.FoldEmailCase = true })
	h.seed(t, "a@x.com", "pw123", true)

	if _, err := h.svc.Login(context.Background(), LoginInput{Email: " A@X.com", Password: "pw123"}); err != nil {
		t.Fatalf("Login with folded email: %v", err)
	}
}

func TestGetCurrentUser_ExpiredSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	h.seed(t, "a@x.com", "pw123", true)

	res, err := h.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "pw123"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	h.clock.Advance(DefaultSessionTTL + time.Second)
	if _, err := h.svc.GetCurrentUser(ctx, res.SessionToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expired session err=%v want ErrInvalidSession", err)
	}
}

func TestGetCurrentUser_RejectsGarbage(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	for _, raw := range []string{"", "   ", "not-a-token", string(make([]byte, 500))} {
		if _, err := h.svc.GetCurrentUser(context.Background(), raw); !errors.Is(err, ErrInvalidSession) {
			t.Fatalf("GetCurrentUser(%q) err=%v", raw, err)
		}
	}
}

func TestLogout(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	h.seed(t, "a@x.com", "pw123", true)

	res, err := h.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "pw123", RememberDevice: true, Fingerprint: "fp-1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := h.svc.Logout(ctx, res.SessionToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := h.svc.GetCurrentUser(ctx, res.SessionToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("after logout err=%v want ErrInvalidSession", err)
	}

	for _, raw := range []string{res.SessionToken, "", "unknown"} {
		if err := h.svc.Logout(ctx, raw); err != nil {
			t.Fatalf("Logout(%q) must be a no-op, got %v", raw, err)
		}
	}

	// The device can still mint a session after logout.
	if _, err := h.svc.RefreshSession(ctx, RefreshInput{
		DeviceID:    res.Device.DeviceID,
		DeviceToken: res.Device.DeviceToken,
		Fingerprint: "fp-1",
	}); err != nil {
		t.Fatalf("RefreshSession after logout: %v", err)
	}
}

func TestRefreshSession_TrustedDeviceFlow(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	u := h.seed(t, "a@x.com", "pw123", true)

	s1, err := h.svc.Login(ctx, LoginInput{
		Email:          "a@x.com",
		Password:       "pw123",
		RememberDevice: true,
		Fingerprint:    "fp-1",
		DeviceName:     "Laptop",
		IP:             "192.0.2.1",
		UserAgent:      "ua/1",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if s1.Device == nil || s1.Device.DeviceID == "" || s1.Device.DeviceToken == "" {
		t.Fatalf("expected an issued device, got %+v", s1.Device)
	}
	if want := h.clock.Now().Add(DefaultDeviceTTL); !s1.Device.ExpiresAt.Equal(want) {
		t.Fatalf("device expires_at=%v want=%v", s1.Device.ExpiresAt, want)
	}
	cur1, err := h.svc.GetCurrentUser(ctx, s1.SessionToken)
	if err != nil {
		t.Fatalf("GetCurrentUser(S1): %v", err)
	}
	if cur1.DeviceID != s1.Device.DeviceID {
		t.Fatalf("session not linked to device: %+v", cur1)
	}

	h.clock.Advance(time.Minute)
	s2, err := h.svc.RefreshSession(ctx, RefreshInput{
		DeviceID:    s1.Device.DeviceID,
		DeviceToken: s1.Device.DeviceToken,
		Fingerprint: "fp-1",
		IP:          "198.51.100.2",
		UserAgent:   "ua/2",
	})
	if err != nil {
		t.Fatalf("RefreshSession: %v", err)
	}
	if s2.SessionToken == "" || s2.SessionToken == s1.SessionToken || s2.SessionID == s1.SessionID {
		t.Fatalf("refresh must mint a new session: %+v", s2)
	}
	cur2, err := h.svc.GetCurrentUser(ctx, s2.SessionToken)
	if err != nil {
		t.Fatalf("GetCurrentUser(S2): %v", err)
	}
	if cur2.UserID != cur1.UserID || cur2.UserID != u.ID || cur2.DeviceID != s1.Device.DeviceID {
		t.Fatalf("S2 resolved to %+v, S1 to %+v", cur2, cur1)
	}
	if _, err := h.svc.GetCurrentUser(ctx, s1.SessionToken); err != nil {
		t.Fatalf("refresh must not revoke S1: %v", err)
	}

	devs, _ := h.svc.ListDevices(ctx, u.ID)
	if len(devs) != 1 {
		t.Fatalf("devices=%d want 1", len(devs))
	}
	touched := devs[0]
	if touched.LastIP != "198.51.100.2" || touched.LastUserAgent != "ua/2" || !touched.LastSeenAt.Equal(h.clock.Now()) {
		t.Fatalf("device not touched: %+v", touched)
	}

	// Mismatched fingerprint fails and leaves the device row alone.
	h.clock.Advance(time.Minute)
	_, err = h.svc.RefreshSession(ctx, RefreshInput{
		DeviceID:    s1.Device.DeviceID,
		DeviceToken: s1.Device.DeviceToken,
		Fingerprint: "fp-other",
		IP:          "203.0.113.9",
	})
	if !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("err=%v want ErrFingerprintMismatch", err)
	}
	devs, _ = h.svc.ListDevices(ctx, u.ID)
	if devs[0].RevokedAt != nil || devs[0].LastIP != "198.51.100.2" || !devs[0].LastSeenAt.Equal(*touched.LastSeenAt) {
		t.Fatalf("mismatch mutated device: %+v", devs[0])
	}

	// No fingerprint on the request skips the check.
	if _, err := h.svc.RefreshSession(ctx, RefreshInput{DeviceID: s1.Device.DeviceID, DeviceToken: s1.Device.DeviceToken}); err != nil {
		t.Fatalf("RefreshSession without fingerprint: %v", err)
	}
}

func TestRefreshSession_InvalidDevice(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	u := h.seed(t, "a@x.com", "pw123", true)

	res, err := h.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "pw123", RememberDevice: true, Fingerprint: "fp-1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	d := res.Device

	cases := []RefreshInput{
		{DeviceID: d.DeviceID, DeviceToken: "wrong", Fingerprint: "fp-1"},
		{DeviceID: "unknown", DeviceToken: d.DeviceToken, Fingerprint: "fp-1"},
		{DeviceID: "", DeviceToken: d.DeviceToken},
		{DeviceID: d.DeviceID, DeviceToken: ""},
	}
	for i, in := range cases {
		if _, err := h.svc.RefreshSession(ctx, in); !errors.Is(err, ErrInvalidDevice) {
			t.Fatalf("case %d: err=%v want ErrInvalidDevice", i, err)
		}
	}

	if err := h.svc.RevokeDevice(ctx, u.ID, d.ID); err != nil {
		t.Fatalf("RevokeDevice: %v", err)
	}
	_, err = h.svc.RefreshSession(ctx, RefreshInput{DeviceID: d.DeviceID, DeviceToken: d.DeviceToken, Fingerprint: "fp-1"})
	if !errors.Is(err, ErrInvalidDevice) {
		t.Fatalf("revoked device err=%v want ErrInvalidDevice", err)
	}
}

func TestRefreshSession_InactiveOrDeletedUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cases := []struct {
		name    string
		disable func(h *harness, userID string) error
	}{
		{name: "inactive", disable: func(h *harness, userID string) error {
			return h.unit.Repos().Users.SetActive(ctx, userID, false, h.clock.Now())
		}},
		{name: "deleted", disable: func(h *harness, userID string) error {
			return h.unit.Repos().Users.Delete(ctx, userID)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, nil)
			u := h.seed(t, "a@x.com", "pw123", true)

			res, err := h.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "pw123", RememberDevice: true, Fingerprint: "fp-1"})
			if err != nil || res.Device == nil {
				t.Fatalf("Login: %v %+v", err, res.Device)
			}
			if err := tc.disable(h, u.ID); err != nil {
				t.Fatalf("disable: %v", err)
			}

			_, err = h.svc.RefreshSession(ctx, RefreshInput{
				DeviceID:    res.Device.DeviceID,
				DeviceToken: res.Device.DeviceToken,
				Fingerprint: "fp-1",
			})
			if !errors.Is(err, ErrInvalidDevice) {
				t.Fatalf("err=%v want ErrInvalidDevice", err)
			}
			rows, err := h.unit.Repos().Sessions.ListByUser(ctx, u.ID)
			if err != nil {
				t.Fatalf("ListByUser: %v", err)
			}
			if len(rows) > 1 {
				t.Fatalf("refresh minted a session for a disabled user: %d rows", len(rows))
			}
		})
	}
}

func TestRefreshSession_ReturnsUserProfile(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	u := h.seed(t, "a@x.com", "pw123", true)

	res, err := h.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "pw123", RememberDevice: true, Fingerprint: "fp-1"})
	if err != nil || res.Device == nil {
		t.Fatalf("Login: %v %+v", err, res.Device)
	}
	out, err := h.svc.RefreshSession(ctx, RefreshInput{DeviceID: res.Device.DeviceID, DeviceToken: res.Device.DeviceToken})
	if err != nil {
		t.Fatalf("RefreshSession: %v", err)
	}
	if out.UserID != u.ID || out.Email != "a@x.com" || out.IsSuperuser {
		t.Fatalf("unexpected profile: %+v", out)
	}
}

func TestRefreshSession_ExpiredDevice(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	h.seed(t, "a@x.com", "pw123", true)

	res, err := h.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "pw123", RememberDevice: true, Fingerprint: "fp-1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	h.clock.Advance(DefaultDeviceTTL)
	_, err = h.svc.RefreshSession(ctx, RefreshInput{DeviceID: res.Device.DeviceID, DeviceToken: res.Device.DeviceToken})
	if !errors.Is(err, ErrInvalidDevice) {
		t.Fatalf("expired device err=%v want ErrInvalidDevice", err)
	}
}

func TestLogin_RememberWithoutFingerprintSkipsDevice(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	u := h.seed(t, "a@x.com", "pw123", true)

	res, err := h.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "pw123", RememberDevice: true, Fingerprint: "  "})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Device != nil {
		t.Fatalf("device created without fingerprint: %+v", res.Device)
	}
	devs, _ := h.svc.ListDevices(ctx, u.ID)
	if len(devs) != 0 {
		t.Fatalf("devices=%d want 0", len(devs))
	}
}

func TestLogin_LongFingerprintStillRefreshes(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	u := h.seed(t, "a@x.com", "pw123", true)

	fp := strings.Repeat("é", maxFingerprintLen+40)
	res, err := h.svc.Login(ctx, LoginInput{
		Email:          "a@x.com",
		Password:       "pw123",
		RememberDevice: true,
		Fingerprint:    fp,
		DeviceName:     strings.Repeat("n", maxDeviceNameLen+1),
	})
	if err != nil || res.Device == nil {
		t.Fatalf("Login: res=%+v err=%v", res, err)
	}

	devs, err := h.svc.ListDevices(ctx, u.ID)
	if err != nil || len(devs) != 1 {
		t.Fatalf("ListDevices: %v devs=%d", err, len(devs))
	}
	if n := utf8.RuneCountInString(devs[0].Fingerprint); n != maxFingerprintLen {
		t.Fatalf("stored fingerprint runes=%d want=%d", n, maxFingerprintLen)
	}
	if n := len(devs[0].Name); n != maxDeviceNameLen {
		t.Fatalf("stored name len=%d want=%d", n, maxDeviceNameLen)
	}

	if _, err := h.svc.RefreshSession(ctx, RefreshInput{
		DeviceID:    res.Device.DeviceID,
		DeviceToken: res.Device.DeviceToken,
		Fingerprint: fp,
	}); err != nil {
		t.Fatalf("RefreshSession with the untruncated fingerprint: %v", err)
	}
}

func TestLogin_ConcurrentSessionsAreIndependent(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	u := h.seed(t, "a@x.com", "pw123", true)

	a, err := h.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "pw123"})
	if err != nil {
		t.Fatalf("Login a: %v", err)
	}
	b, err := h.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "pw123"})
	if err != nil {
		t.Fatalf("Login b: %v", err)
	}
	if a.SessionToken == b.SessionToken {
		t.Fatalf("tokens must differ")
	}

	rows, _ := h.unit.Repos().Sessions.ListByUser(ctx, u.ID)
	if len(rows) != 2 || rows[0].TokenHash == rows[1].TokenHash {
		t.Fatalf("expected two sessions with distinct hashes: %+v", rows)
	}

	if err := h.svc.Logout(ctx, a.SessionToken); err != nil {
		t.Fatalf("Logout a: %v", err)
	}
	if _, err := h.svc.GetCurrentUser(ctx, b.SessionToken); err != nil {
		t.Fatalf("b must survive a's logout: %v", err)
	}
}

func TestDevices_ListAndRevokeOwnership(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	alice := h.seed(t, "a@x.com", "pw123", true)
	bob := h.seed(t, "b@x.com", "pw123", true)

	first, err := h.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "pw123", RememberDevice: true, Fingerprint: "fp-1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	h.clock.Advance(time.Second)
	second, err := h.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "pw123", RememberDevice: true, Fingerprint: "fp-2"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := h.svc.RevokeDevice(ctx, bob.ID, first.Device.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign revoke err=%v want ErrNotFound", err)
	}
	if err := h.svc.RevokeDevice(ctx, alice.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing revoke err=%v want ErrNotFound", err)
	}
	if err := h.svc.RevokeDevice(ctx, alice.ID, first.Device.ID); err != nil {
		t.Fatalf("RevokeDevice: %v", err)
	}
	if err := h.svc.RevokeDevice(ctx, alice.ID, first.Device.ID); err != nil {
		t.Fatalf("repeat RevokeDevice: %v", err)
	}

	devs, err := h.svc.ListDevices(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(devs) != 2 || devs[0].ID != second.Device.ID || devs[1].RevokedAt == nil {
		t.Fatalf("ListDevices got=%+v", devs)
	}
	if other, _ := h.svc.ListDevices(ctx, bob.ID); len(other) != 0 {
		t.Fatalf("bob sees %d devices", len(other))
	}
}

func TestLookupKey_ResolvesSessions(t *testing.T) {
	t.Parallel()
	key := []byte("0123456789abcdef0123456789abcdef")
	h := newHarness(t, func(c *Config) { c.LookupKey = key })
	ctx := context.Background()
	u := h.seed(t, "a@x.com", "pw123", true)

	res, err := h.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "pw123"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	rows, _ := h.unit.Repos().Sessions.ListByUser(ctx, u.ID)
	if len(rows) != 1 || rows[0].Lookup != token.LookupKey(res.SessionToken, key) {
		t.Fatalf("lookup key not stored: %+v", rows)
	}

	cur, err := h.svc.GetCurrentUser(ctx, res.SessionToken)
	if err != nil || cur.UserID != u.ID {
		t.Fatalf("GetCurrentUser got=%+v err=%v", cur, err)
	}
	if err := h.svc.Logout(ctx, res.SessionToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := h.svc.GetCurrentUser(ctx, res.SessionToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("after logout err=%v", err)
	}
}

func TestNewService_RejectsBadConfig(t *testing.T) {
	t.Parallel()

	pool := workpool.New(1)
	hasher := token.NewHasher(bcrypt.MinCost)
	pw := fastPasswords()

	if _, err := NewService(Config{LookupKey: []byte("short")}, NewMemoryUnit(), pool, hasher, pw); err == nil {
		t.Fatalf("expected short lookup key to fail")
	}
	if _, err := NewService(Config{SessionTTL: time.Hour, DeviceTTL: time.Minute}, NewMemoryUnit(), pool, hasher, pw); err == nil {
		t.Fatalf("expected device ttl < session ttl to fail")
	}
	if _, err := NewService(Config{}, nil, pool, hasher, pw); err == nil {
		t.Fatalf("expected nil unit of work to fail")
	}
}

type failingPasswords struct{ password.Config }

func (failingPasswords) Hash(string) (string, error) { return "", errors.New("argon2: out of memory") }

func TestNewService_FailsWhenDummyHashFails(t *testing.T) {
	t.Parallel()

	_, err := NewService(DefaultConfig(), NewMemoryUnit(), workpool.New(1), token.NewHasher(bcrypt.MinCost), failingPasswords{fastPasswords()})
	if err == nil || !strings.Contains(err.Error(), "dummy password hash") {
		t.Fatalf("err=%v want dummy hash failure", err)
	}
}

func TestNewService_DummyHashIsReady(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	if h.svc.dummyHash == "" {
		t.Fatalf("dummy hash must be computed at construction")
	}
	if ok, err := h.pw.Verify(h.svc.dummyHash, "anything"); err != nil || ok {
		t.Fatalf("dummy hash must be a valid non-matching hash: ok=%v err=%v", ok, err)
	}
}

func TestIsAuthError(t *testing.T) {
	t.Parallel()

	if !IsAuthError(wrap("op", ErrInvalidDevice)) {
		t.Fatalf("sentinels must pass through wrap")
	}
	if IsAuthError(wrap("op", errors.New("db down"))) {
		t.Fatalf("internal errors are not auth errors")
	}
	if wrap("op", nil) != nil {
		t.Fatalf("wrap(nil) must be nil")
	}
}

func TestMemoryUnit_RollsBackOnError(t *testing.T) {
	t.Parallel()
	unit := NewMemoryUnit()
	ctx := context.Background()
	boom := errors.New("boom")

	err := unit.InTx(ctx, func(r Repos) error {
		if _, err := r.Users.Create(ctx, identity.CreateUserInput{Email: "tmp@x.com", PasswordHash: "h"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx err=%v want boom", err)
	}
	if users, _ := unit.Repos().Users.List(ctx); len(users) != 0 {
		t.Fatalf("rollback left %d users", len(users))
	}
}
