package db

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // postgres:// driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
)

// ErrNoChange is returned when there is nothing to apply in the requested direction.
var ErrNoChange = migrate.ErrNoChange

// Migrate applies the embedded migrations inside schema of the database at dsn.
// direction is "up" or "down". The schema is created before an up migration.
// ErrNoChange is returned when already at the target version.
func Migrate(ctx context.Context, dsn, schema, direction string) error {
	if dsn == "" {
		return errors.New("db: DATABASE_URL is not set")
	}
	if direction != "up" && direction != "down" {
		return fmt.Errorf("db: direction must be up or down, got %q", direction)
	}
	if err := CheckSchema(schema); err != nil {
		return err
	}
	target, err := withSearchPath(dsn, schema)
	if err != nil {
		return err
	}

	if direction == "up" && schema != DefaultSchema {
		if err := ensureSchema(ctx, dsn, schema); err != nil {
			return err
		}
	}

	src, err := iofs.New(MigrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("db: migrate source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, target)
	if err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if direction == "up" {
		err = m.Up()
	} else {
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("db: migrate %s: %w", direction, err)
	}
	return err
}

// withSearchPath pins the migration connection, and with it the
// schema_migrations table, to schema.
func withSearchPath(dsn, schema string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		return "", errors.New("db: migrations need a postgres:// DATABASE_URL")
	}
	q := u.Query()
	q.Set("search_path", SearchPath(schema))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func ensureSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("db: connect: %w", err)
	}
	defer func() { _ = conn.Close(context.Background()) }()

	if _, err := conn.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{schema}.Sanitize()); err != nil {
		return fmt.Errorf("db: create schema %s: %w", schema, err)
	}
	return nil
}
