package auth

import (
	"context"
	"sync"

	"kpauth/cmd/identity"
	"kpauth/cmd/internal/auth/device"
	"kpauth/cmd/internal/auth/session"
	"kpauth/cmd/internal/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repos groups the stores an operation works with.
type Repos struct {
	Users    identity.Store
	Sessions session.Store
	Devices  device.Store
}

// UnitOfWork hands out stores and runs transactional units.
//
// Repos returns stores bound to the shared connection for reads outside a
// transaction. InTx commits only when fn returns nil.
type UnitOfWork interface {
	Repos() Repos
	InTx(ctx context.Context, fn func(r Repos) error) error
}

// PostgresUnit runs units as pgx transactions.
type PostgresUnit struct {
	pool     *pgxpool.Pool
	users    *identity.PostgresStore
	sessions *session.PostgresStore
	devices  *device.PostgresStore
}

// NewPostgresUnit builds the Postgres stores over pool in schema.
func NewPostgresUnit(pool *pgxpool.Pool, schema string) (*PostgresUnit, error) {
	if schema == "" {
		schema = db.DefaultSchema
	}
	users, err := identity.NewPostgresStore(pool, identity.WithSchema(schema))
	if err != nil {
		return nil, err
	}
	sessions, err := session.NewPostgresStore(pool, schema)
	if err != nil {
		return nil, err
	}
	devices, err := device.NewPostgresStore(pool, schema)
	if err != nil {
		return nil, err
	}
	return &PostgresUnit{pool: pool, users: users, sessions: sessions, devices: devices}, nil
}

// Repos returns pool-bound stores.
func (u *PostgresUnit) Repos() Repos {
	return Repos{Users: u.users, Sessions: u.sessions, Devices: u.devices}
}

// InTx runs fn inside one transaction.
func (u *PostgresUnit) InTx(ctx context.Context, fn func(r Repos) error) error {
	return db.InTx(ctx, u.pool, func(tx pgx.Tx) error {
		return fn(Repos{
			Users:    u.users.WithDB(tx),
			Sessions: u.sessions.WithDB(tx),
			Devices:  u.devices.WithDB(tx),
		})
	})
}

// MemoryUnit serializes units under one lock and rolls back by restoring a
// snapshot of every store.
type MemoryUnit struct {
	mu       sync.Mutex
	users    *identity.MemoryStore
	sessions *session.MemoryStore
	devices  *device.MemoryStore
}

// NewMemoryUnit returns an empty in-memory backend.
func NewMemoryUnit() *MemoryUnit {
	return &MemoryUnit{
		users:    identity.NewMemoryStore(),
		sessions: session.NewMemoryStore(),
		devices:  device.NewMemoryStore(),
	}
}

// Repos returns the shared stores.
func (u *MemoryUnit) Repos() Repos {
	return Repos{Users: u.users, Sessions: u.sessions, Devices: u.devices}
}

// InTx runs fn under the unit lock; on error every store is restored.
func (u *MemoryUnit) InTx(ctx context.Context, fn func(r Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	restoreUsers := u.users.Checkpoint()
	restoreSessions := u.sessions.Checkpoint()
	restoreDevices := u.devices.Checkpoint()

	if err := fn(u.Repos()); err != nil {
		restoreUsers()
		restoreSessions()
		restoreDevices()
		return err
	}
	return nil
}
