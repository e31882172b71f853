package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestCheckSchema(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in string
		ok bool
	}{
		{in: "public", ok: true},
		{in: "kpauth_it_01", ok: true},
		{in: "_x", ok: true},
		{in: "", ok: false},
		{in: "1abc", ok: false},
		{in: "bad-name", ok: false},
		{in: "x; DROP TABLE users", ok: false},
		{in: strings.Repeat("a", 64), ok: false},
	}
	for _, tc := range cases {
		err := CheckSchema(tc.in)
		if (err == nil) != tc.ok {
			t.Fatalf("CheckSchema(%q)=%v want ok=%v", tc.in, err, tc.ok)
		}
	}
}

func TestIdent(t *testing.T) {
	t.Parallel()

	if got := Ident("public", "users"); got != `"public"."users"` {
		t.Fatalf("Ident()=%s", got)
	}
}

func TestUniqueViolation(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "UQ_Users_Email"})
	c, ok := UniqueViolation(err)
	if !ok || c != "uq_users_email" {
		t.Fatalf("UniqueViolation()=%q,%v", c, ok)
	}

	if _, ok := UniqueViolation(&pgconn.PgError{Code: "23503"}); ok {
		t.Fatalf("FK violation classified as unique")
	}
	if _, ok := UniqueViolation(errors.New("plain")); ok {
		t.Fatalf("plain error classified as unique")
	}
	if !IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("expected FK violation")
	}
}

func TestNullIfEmpty(t *testing.T) {
	t.Parallel()

	if NullIfEmpty("  ") != nil {
		t.Fatalf("blank must map to nil")
	}
	if NullIfEmpty(" ua ") != "ua" {
		t.Fatalf("value must be trimmed")
	}
}

func TestMigrationFS_PairsUpAndDown(t *testing.T) {
	t.Parallel()

	ups, err := fs.Glob(MigrationFS, "migrations/*.up.sql")
	if err != nil || len(ups) == 0 {
		t.Fatalf("no up migrations: %v", err)
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(MigrationFS, down); err != nil {
			t.Fatalf("missing %s: %v", down, err)
		}
	}
}

func TestMigrate_RejectsBadInput(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if err := Migrate(ctx, "", "public", "up"); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
	if err := Migrate(ctx, "postgres://localhost/x", "public", "sideways"); err == nil {
		t.Fatalf("expected error for bad direction")
	}
	if err := Migrate(ctx, "postgres://localhost/x", "bad-name", "up"); err == nil {
		t.Fatalf("expected error for bad schema")
	}
	if err := Migrate(ctx, "host=localhost dbname=x", "public", "up"); err == nil {
		t.Fatalf("expected error for keyword dsn")
	}
}

func TestWithSearchPath(t *testing.T) {
	t.Parallel()

	got, err := withSearchPath("postgres://u:p@localhost:5432/kp?sslmode=disable", "auth")
	if err != nil {
		t.Fatalf("withSearchPath: %v", err)
	}
	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse %q: %v", got, err)
	}
	if sp := u.Query().Get("search_path"); sp != `"auth"` {
		t.Fatalf("search_path=%q", sp)
	}
	if u.Query().Get("sslmode") != "disable" || u.Host != "localhost:5432" || u.Path != "/kp" {
		t.Fatalf("dsn mangled: %q", got)
	}
	if SearchPath("Mixed") != `"Mixed"` {
		t.Fatalf("SearchPath must quote like Ident")
	}
}
