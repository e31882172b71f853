package db

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultSchema is used when no schema is configured.
const DefaultSchema = "public"

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// CheckSchema validates that schema is a plain PostgreSQL identifier.
func CheckSchema(schema string) error {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return errors.New("db: empty schema")
	}
	if len(schema) > 63 || !identRe.MatchString(schema) {
		return fmt.Errorf("db: invalid schema identifier %q", schema)
	}
	return nil
}

// Ident returns a quoted schema-qualified table name.
func Ident(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

// SearchPath is the search_path value that resolves unqualified names to schema.
func SearchPath(schema string) string {
	return pgx.Identifier{schema}.Sanitize()
}

// UniqueViolation reports the constraint name of a unique_violation (23505).
func UniqueViolation(err error) (constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(pgErr.ConstraintName)), true
}

// IsForeignKeyViolation reports whether err is a foreign_key_violation (23503).
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503"
}

// NullIfEmpty maps "" to SQL NULL.
func NullIfEmpty(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}
