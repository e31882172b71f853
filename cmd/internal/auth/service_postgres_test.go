package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"kpauth/cmd/internal/db/dbtest"
	"kpauth/cmd/internal/workpool"
	"kpauth/cmd/security/token"

	"golang.org/x/crypto/bcrypt"
)

// Integration tests run when KPAUTH_TEST_DATABASE_URL is set.

func newPostgresService(t *testing.T) *Service {
	t.Helper()

	sch := dbtest.New(t)
	unit, err := NewPostgresUnit(sch.Pool, sch.Name)
	if err != nil {
		t.Fatalf("NewPostgresUnit: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

	svc, err := NewService(cfg, unit, workpool.New(4), token.NewHasher(bcrypt.MinCost), fastPasswords())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestPostgres_LoginRefreshLogout(t *testing.T) {
	t.Parallel()
	svc := newPostgresService(t)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, "pg@x.com", "integration-pass-1", false)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	login, err := svc.Login(ctx, LoginInput{
		Email:          "pg@x.com",
		Password:       "integration-pass-1",
		RememberDevice: true,
		Fingerprint:    "fp-pg",
		DeviceName:     "ci",
		DeviceInfo:     []byte(`{"ci":true}`),
		IP:             "192.0.2.44",
		UserAgent:      "kpauth-test/1.0",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.Device == nil {
		t.Fatalf("expected device")
	}

	cur, err := svc.GetCurrentUser(ctx, login.SessionToken)
	if err != nil || cur.UserID != u.ID {
		t.Fatalf("GetCurrentUser got=%+v err=%v", cur, err)
	}

	ref, err := svc.RefreshSession(ctx, RefreshInput{
		DeviceID:    login.Device.DeviceID,
		DeviceToken: login.Device.DeviceToken,
		Fingerprint: "fp-pg",
		IP:          "192.0.2.45",
	})
	if err != nil {
		t.Fatalf("RefreshSession: %v", err)
	}
	if ref.SessionToken == login.SessionToken {
		t.Fatalf("refresh reused the session token")
	}

	_, err = svc.RefreshSession(ctx, RefreshInput{
		DeviceID:    login.Device.DeviceID,
		DeviceToken: login.Device.DeviceToken,
		Fingerprint: "fp-other",
	})
	if !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("err=%v want ErrFingerprintMismatch", err)
	}

	if err := svc.Logout(ctx, ref.SessionToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.GetCurrentUser(ctx, ref.SessionToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("after logout err=%v", err)
	}

	if err := svc.RevokeDevice(ctx, u.ID, login.Device.ID); err != nil {
		t.Fatalf("RevokeDevice: %v", err)
	}
	_, err = svc.RefreshSession(ctx, RefreshInput{DeviceID: login.Device.DeviceID, DeviceToken: login.Device.DeviceToken})
	if !errors.Is(err, ErrInvalidDevice) {
		t.Fatalf("revoked device err=%v", err)
	}

	del, err := svc.DeleteUser(ctx, "pg@x.com")
	if err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if del.Sessions != 2 || del.Devices != 1 {
		t.Fatalf("DeleteUser=%+v", del)
	}
}

func TestPostgres_FailedLoginLeavesNoRows(t *testing.T) {
	t.Parallel()
	svc := newPostgresService(t)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, "nr@x.com", "integration-pass-2", false)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	_, err = svc.Login(ctx, LoginInput{Email: "nr@x.com", Password: "wrong", RememberDevice: true, Fingerprint: "fp"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err=%v", err)
	}

	devs, err := svc.ListDevices(ctx, u.ID)
	if err != nil || len(devs) != 0 {
		t.Fatalf("devices=%d err=%v", len(devs), err)
	}
	sessions, err := svc.uow.Repos().Sessions.ListByUser(ctx, u.ID)
	if err != nil || len(sessions) != 0 {
		t.Fatalf("sessions=%d err=%v", len(sessions), err)
	}
}
