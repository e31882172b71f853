package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"kpauth/cmd/internal/db"

	"github.com/google/uuid"
)

// PostgresSink inserts events into audit_log.
type PostgresSink struct {
	q      db.DBTX
	schema string
}

// NewPostgresSink returns a sink over q. An empty schema means db.DefaultSchema.
func NewPostgresSink(q db.DBTX, schema string) (*PostgresSink, error) {
	if q == nil {
		return nil, errors.New("audit: nil db")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = db.DefaultSchema
	}
	if err := db.CheckSchema(schema); err != nil {
		return nil, err
	}
	return &PostgresSink{q: q, schema: schema}, nil
}

// Record implements Sink.
func (s *PostgresSink) Record(ctx context.Context, ev Event) error {
	ev, ok := normalize(ev)
	if !ok {
		return nil
	}

	var userID any
	if _, err := uuid.Parse(ev.UserID); err == nil {
		userID = ev.UserID
	}

	var payload *string
	if len(ev.Payload) > 0 {
		b, err := json.Marshal(ev.Payload)
		if err != nil {
			return err
		}
		p := string(b)
		payload = &p
	}

	_, err := s.q.Exec(ctx, `
		INSERT INTO `+db.Ident(s.schema, "audit_log")+` (
			user_id, event, ip_address, user_agent, payload, created_at
		) VALUES ($1, $2, $3, $4, $5::jsonb, $6)
	`, userID, ev.Name, db.NullIfEmpty(ev.IP), db.NullIfEmpty(ev.UserAgent), payload, ev.At)
	if db.IsForeignKeyViolation(err) {
		// The user was deleted concurrently; keep the event without it.
		_, err = s.q.Exec(ctx, `
			INSERT INTO `+db.Ident(s.schema, "audit_log")+` (
				user_id, event, ip_address, user_agent, payload, created_at
			) VALUES (NULL, $1, $2, $3, $4::jsonb, $5)
		`, ev.Name, db.NullIfEmpty(ev.IP), db.NullIfEmpty(ev.UserAgent), payload, ev.At)
	}
	return err
}
