// Package dbtest provisions throwaway Postgres schemas for integration tests.
//
// Tests are opt-in: without KPAUTH_TEST_DATABASE_URL every helper skips.
package dbtest

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"strings"
	"testing"
	"time"

	"kpauth/cmd/internal/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnvURL names the variable holding the test database DSN.
const EnvURL = "KPAUTH_TEST_DATABASE_URL"

// Schema is a migrated, isolated schema with a pool pinned to it.
type Schema struct {
	Name string
	Pool *pgxpool.Pool
}

// New creates a fresh schema, migrates it with db.Migrate and returns a pool
// pinned to it. The schema is dropped on cleanup.
func New(t *testing.T) Schema {
	t.Helper()

	raw, name := Fresh(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx, raw, name, "up"); err != nil {
		t.Fatalf("migrate %s: %v", name, err)
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{URL: raw, MaxConns: 8, Schema: name})
	if err != nil {
		t.Fatalf("open schema pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return Schema{Name: name, Pool: pool}
}

// Fresh reserves an unused schema name on the test database without creating
// it, and registers cleanup that drops it. It returns the DSN and the name.
func Fresh(t *testing.T) (dsn, schema string) {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv(EnvURL))
	if raw == "" {
		t.Skipf("integration test skipped: %s is not set", EnvURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	admin, err := pgxpool.New(ctx, raw)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	err = db.Ping(ctx, admin, 3*time.Second)
	admin.Close()
	if err != nil {
		t.Skipf("integration test skipped: Postgres unreachable: %v", err)
	}

	name := "kpauth_it_" + randomSuffix(t)
	t.Cleanup(func() {
		cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer ccancel()
		drop, err := pgxpool.New(cctx, raw)
		if err != nil {
			return
		}
		defer drop.Close()
		_, _ = drop.Exec(cctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{name}.Sanitize()+` CASCADE`)
	})
	return raw, name
}

func randomSuffix(t *testing.T) string {
	t.Helper()
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("random: %v", err)
	}
	return hex.EncodeToString(b)
}
