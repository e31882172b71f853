package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"kpauth/cmd/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PostgresStore implements Store over PostgreSQL.
//
// The connection (pool or transaction) is owned by the caller; this store never
// closes or commits it. Table names are schema-qualified and quoted.
type PostgresStore struct {
	q      db.DBTX
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the schema holding the users table (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		if err := db.CheckSchema(schema); err != nil {
			return err
		}
		s.schema = strings.TrimSpace(schema)
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore over q.
func NewPostgresStore(q db.DBTX, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{q: q, schema: db.DefaultSchema}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.q == nil {
		return nil, errors.New("identity: nil db")
	}
	return st, nil
}

// WithDB returns a copy of the store bound to q (typically a pgx.Tx).
func (s *PostgresStore) WithDB(q db.DBTX) *PostgresStore {
	cp := *s
	cp.q = q
	return &cp
}

const userColumns = `
	id::text, email, hashed_password, is_active, is_superuser,
	last_login_at, password_updated_at, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.IsActive,
		&u.IsSuperuser,
		&u.LastLoginAt,
		&u.PasswordUpdatedAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

// Create inserts a new active user.
func (s *PostgresStore) Create(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.Create"

	email := strings.TrimSpace(in.Email)
	if email == "" {
		return User{}, invalid(op, "email is required")
	}
	if in.PasswordHash == "" {
		return User{}, invalid(op, "password hash is required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	u := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: in.PasswordHash,
		IsActive:     true,
		IsSuperuser:  in.IsSuperuser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.q.Exec(ctx,
		`INSERT INTO `+db.Ident(s.schema, "users")+` (
		     id, email, email_norm, hashed_password, is_active, is_superuser, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, true, $5, $6, $6)`,
		u.ID, u.Email, NormalizeEmail(u.Email), u.PasswordHash, u.IsSuperuser, now,
	)
	if err != nil {
		if _, ok := db.UniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
		return User{}, err
	}
	return u, nil
}

// ByEmail loads a user by exact or folded email.
func (s *PostgresStore) ByEmail(ctx context.Context, email string, match EmailMatch) (User, error) {
	const op = "identity.ByEmail"

	col, arg := "email", email
	if match == MatchFolded {
		col, arg = "email_norm", NormalizeEmail(email)
	}
	if arg == "" {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}

	u, err := scanUser(s.q.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+db.Ident(s.schema, "users")+` WHERE `+col+` = $1`,
		arg,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return u, err
}

// ByID loads a user by id.
func (s *PostgresStore) ByID(ctx context.Context, id string) (User, error) {
	const op = "identity.ByID"

	if _, err := uuid.Parse(id); err != nil {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}

	u, err := scanUser(s.q.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+db.Ident(s.schema, "users")+` WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return u, err
}

// List returns all users, oldest first.
func (s *PostgresStore) List(ctx context.Context) ([]User, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+userColumns+` FROM `+db.Ident(s.schema, "users")+` ORDER BY created_at, email`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// TouchLogin sets last_login_at.
func (s *PostgresStore) TouchLogin(ctx context.Context, id string, now time.Time) error {
	return s.updateOne(ctx, "identity.TouchLogin",
		`UPDATE `+db.Ident(s.schema, "users")+` SET last_login_at = $2, updated_at = $2 WHERE id = $1`,
		id, now,
	)
}

// SetPassword replaces the password hash.
func (s *PostgresStore) SetPassword(ctx context.Context, id string, hash string, now time.Time) error {
	if hash == "" {
		return invalid("identity.SetPassword", "password hash is required")
	}
	return s.updateOne(ctx, "identity.SetPassword",
		`UPDATE `+db.Ident(s.schema, "users")+`
		 SET hashed_password = $2, password_updated_at = $3, updated_at = $3
		 WHERE id = $1`,
		id, hash, now,
	)
}

// SetActive updates is_active.
func (s *PostgresStore) SetActive(ctx context.Context, id string, active bool, now time.Time) error {
	return s.updateOne(ctx, "identity.SetActive",
		`UPDATE `+db.Ident(s.schema, "users")+` SET is_active = $2, updated_at = $3 WHERE id = $1`,
		id, active, now,
	)
}

// Delete removes the user row; FKs cascade to sessions and trusted_devices.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	return s.updateOne(ctx, "identity.Delete",
		`DELETE FROM `+db.Ident(s.schema, "users")+` WHERE id = $1`,
		id,
	)
}

func (s *PostgresStore) updateOne(ctx context.Context, op, sql string, args ...any) error {
	if id, _ := args[0].(string); id == "" {
		return invalid(op, "missing id")
	}
	tag, err := s.q.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}
