package session

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"kpauth/cmd/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PostgresStore implements Store using PostgreSQL (sessions table).
type PostgresStore struct {
	q      db.DBTX
	schema string
}

// NewPostgresStore creates a Postgres-backed session store. An empty schema
// means db.DefaultSchema.
func NewPostgresStore(q db.DBTX, schema string) (*PostgresStore, error) {
	if q == nil {
		return nil, errors.New("session: nil db")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = db.DefaultSchema
	}
	if err := db.CheckSchema(schema); err != nil {
		return nil, err
	}
	return &PostgresStore{q: q, schema: schema}, nil
}

// WithDB returns a copy of the store bound to q.
func (s *PostgresStore) WithDB(q db.DBTX) *PostgresStore {
	cp := *s
	cp.q = q
	return &cp
}

func (s *PostgresStore) table() string { return db.Ident(s.schema, "sessions") }

const sessionColumns = `
	id::text, user_id::text, session_token_hash,
	COALESCE(session_lookup, ''), COALESCE(device_id, ''),
	COALESCE(user_agent, ''), COALESCE(host(ip_address), ''),
	expires_at, revoked_at, last_seen_at, created_at`

func scanRow(row pgx.Row) (Row, error) {
	var r Row
	err := row.Scan(
		&r.ID,
		&r.UserID,
		&r.TokenHash,
		&r.Lookup,
		&r.DeviceID,
		&r.UserAgent,
		&r.IP,
		&r.ExpiresAt,
		&r.RevokedAt,
		&r.LastSeenAt,
		&r.CreatedAt,
	)
	return r, err
}

func collect(rows pgx.Rows) ([]Row, error) {
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Create inserts a new session row.
func (s *PostgresStore) Create(ctx context.Context, in CreateInput) (Row, error) {
	if err := checkCreate(in); err != nil {
		return Row{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	r := Row{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		TokenHash: in.TokenHash,
		Lookup:    in.Lookup,
		DeviceID:  in.DeviceID,
		UserAgent: in.UserAgent,
		IP:        cleanIP(in.IP),
		ExpiresAt: in.ExpiresAt,
		CreatedAt: now,
	}

	_, err := s.q.Exec(ctx, `
		INSERT INTO `+s.table()+` (
			id, user_id, session_token_hash, session_lookup, device_id,
			user_agent, ip_address, expires_at, revoked_at, last_seen_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7::inet, $8, NULL, NULL,
			$9, $9
		)
	`, r.ID, r.UserID, r.TokenHash, db.NullIfEmpty(r.Lookup), db.NullIfEmpty(r.DeviceID),
		db.NullIfEmpty(r.UserAgent), db.NullIfEmpty(r.IP), r.ExpiresAt, now)
	if err != nil {
		if _, ok := db.UniqueViolation(err); ok {
			return Row{}, ErrConflict
		}
		return Row{}, err
	}
	return r, nil
}

// ListActive returns every session valid at now.
func (s *PostgresStore) ListActive(ctx context.Context, now time.Time) ([]Row, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM `+s.table()+`
		WHERE revoked_at IS NULL AND expires_at > $1
	`, now)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ByLookup returns the valid session carrying lookup.
func (s *PostgresStore) ByLookup(ctx context.Context, lookup string, now time.Time) (Row, error) {
	if lookup == "" {
		return Row{}, ErrNotFound
	}
	r, err := scanRow(s.q.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM `+s.table()+`
		WHERE session_lookup = $1 AND revoked_at IS NULL AND expires_at > $2
	`, lookup, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrNotFound
	}
	return r, err
}

// ListByUser returns every session of a user, newest first.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]Row, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, nil
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM `+s.table()+`
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Touch updates last_seen_at for a session.
func (s *PostgresStore) Touch(ctx context.Context, id string, now time.Time) error {
	return s.updateOne(ctx, `
		UPDATE `+s.table()+`
		SET last_seen_at = $2, updated_at = $2
		WHERE id = $1
	`, id, now)
}

// Revoke revokes a single session (idempotent).
func (s *PostgresStore) Revoke(ctx context.Context, id string, now time.Time) error {
	return s.updateOne(ctx, `
		UPDATE `+s.table()+`
		SET revoked_at = COALESCE(revoked_at, $2), updated_at = $2
		WHERE id = $1
	`, id, now)
}

// DeleteByUser removes all sessions of a user.
func (s *PostgresStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return 0, nil
	}
	tag, err := s.q.Exec(ctx, `DELETE FROM `+s.table()+` WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) updateOne(ctx context.Context, sql string, id string, args ...any) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tag, err := s.q.Exec(ctx, sql, append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// cleanIP drops anything that is not a literal IP so the inet cast cannot fail.
func cleanIP(raw string) string {
	ip := net.ParseIP(strings.TrimSpace(raw))
	if ip == nil {
		return ""
	}
	return ip.String()
}
