package device

import (
	"context"
	"errors"
	"strings"
	"time"

	"kpauth/cmd/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PostgresStore implements Store using PostgreSQL (trusted_devices table).
type PostgresStore struct {
	q      db.DBTX
	schema string
}

// NewPostgresStore creates a Postgres-backed device store. An empty schema
// means db.DefaultSchema.
func NewPostgresStore(q db.DBTX, schema string) (*PostgresStore, error) {
	if q == nil {
		return nil, errors.New("device: nil db")
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

func (s *PostgresStore) table() string { return db.Ident(s.schema, "trusted_devices") }

const deviceColumns = `
	id::text, user_id::text, device_id, device_token_hash, fingerprint,
	COALESCE(device_name, ''), device_info,
	COALESCE(last_ip, ''), COALESCE(last_user_agent, ''),
	first_seen_at, last_seen_at, expires_at, revoked_at, created_at`

func scanRow(row pgx.Row) (Row, error) {
	var (
		r    Row
		info []byte
	)
	err := row.Scan(
		&r.ID,
		&r.UserID,
		&r.DeviceID,
		&r.TokenHash,
		&r.Fingerprint,
		&r.Name,
		&info,
		&r.LastIP,
		&r.LastUserAgent,
		&r.FirstSeenAt,
		&r.LastSeenAt,
		&r.ExpiresAt,
		&r.RevokedAt,
		&r.CreatedAt,
	)
	if len(info) > 0 {
		r.Info = info
	}
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

// Create inserts a new trusted device.
func (s *PostgresStore) Create(ctx context.Context, in CreateInput) (Row, error) {
	if err := checkCreate(in); err != nil {
		return Row{}, err
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	r := newRow(in, now)

	var info any
	if len(r.Info) > 0 {
		info = string(r.Info)
	}

	_, err := s.q.Exec(ctx, `
		INSERT INTO `+s.table()+` (
			id, user_id, device_id, device_token_hash, fingerprint,
			device_name, device_info, last_ip, last_user_agent,
			first_seen_at, last_seen_at, expires_at, revoked_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7::jsonb, $8, $9,
			$10, $10, $11, NULL,
			$10, $10
		)
	`, r.ID, r.UserID, r.DeviceID, r.TokenHash, r.Fingerprint,
		db.NullIfEmpty(r.Name), info, db.NullIfEmpty(r.LastIP), db.NullIfEmpty(r.LastUserAgent),
		now, r.ExpiresAt)
	if err != nil {
		if _, ok := db.UniqueViolation(err); ok {
			return Row{}, ErrConflict
		}
		return Row{}, err
	}
	return r, nil
}

// ActiveByDeviceID returns every valid device carrying deviceID.
func (s *PostgresStore) ActiveByDeviceID(ctx context.Context, deviceID string, now time.Time) ([]Row, error) {
	if deviceID == "" {
		return nil, nil
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+deviceColumns+`
		FROM `+s.table()+`
		WHERE device_id = $1 AND revoked_at IS NULL AND expires_at > $2
	`, deviceID, now)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Touch records a successful refresh.
func (s *PostgresStore) Touch(ctx context.Context, id, ip, userAgent string, now time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE `+s.table()+`
		SET last_seen_at = $2,
		    last_ip = COALESCE($3, last_ip),
		    last_user_agent = COALESCE($4, last_user_agent),
		    updated_at = $2
		WHERE id = $1
	`, id, now, db.NullIfEmpty(ip), db.NullIfEmpty(userAgent))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByUser returns every device of a user, newest first.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]Row, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, nil
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+deviceColumns+`
		FROM `+s.table()+`
		WHERE user_id = $1
		ORDER BY created_at DESC, id
	`, userID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Revoke revokes a device owned by userID (idempotent for owned devices).
func (s *PostgresStore) Revoke(ctx context.Context, id, userID string, now time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	if _, err := uuid.Parse(userID); err != nil {
		return ErrNotFound
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE `+s.table()+`
		SET revoked_at = COALESCE(revoked_at, $3), updated_at = $3
		WHERE id = $1 AND user_id = $2
	`, id, userID, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByUser removes all devices of a user.
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

func newRow(in CreateInput, now time.Time) Row {
	seen := now
	return Row{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		DeviceID:      in.DeviceID,
		TokenHash:     in.TokenHash,
		Fingerprint:   in.Fingerprint,
		Name:          strings.TrimSpace(in.Name),
		Info:          in.Info,
		LastIP:        strings.TrimSpace(in.IP),
		LastUserAgent: in.UserAgent,
		FirstSeenAt:   now,
		LastSeenAt:    &seen,
		ExpiresAt:     in.ExpiresAt,
		CreatedAt:     now,
	}
}
