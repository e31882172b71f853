package app

import (
	"context"
	"errors"
	"fmt"

	"kpauth/cmd/internal/audit"
	"kpauth/cmd/internal/auth"
	"kpauth/cmd/internal/db"
	"kpauth/cmd/internal/workpool"
	"kpauth/cmd/security/token"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Backend is the storage the auth service runs on. Pool is nil in
// in-memory mode.
type Backend struct {
	Unit auth.UnitOfWork
	Pool *pgxpool.Pool
}

// Close releases the pool, if any.
func (b *Backend) Close() {
	if b != nil && b.Pool != nil {
		b.Pool.Close()
	}
}

// AuditSink returns the Postgres audit sink, or nil in memory mode.
func (b *Backend) AuditSink(schema string) (audit.Sink, error) {
	if b.Pool == nil {
		return nil, nil
	}
	sink, err := audit.NewPostgresSink(b.Pool, schema)
	if err != nil {
		return nil, err
	}
	return sink, nil
}

// OpenBackend connects to Postgres when DATABASE_URL is set, applying
// migrations first under AUTO_MIGRATE. Otherwise it returns in-memory stores,
// which lose all state on exit.
func OpenBackend(ctx context.Context, cfg Config, log Logger) (*Backend, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("db.disabled.inmemory_store")
		return &Backend{Unit: auth.NewMemoryUnit()}, nil
	}

	if cfg.AutoMigrate {
		switch err := db.Migrate(ctx, cfg.DatabaseURL, cfg.DBSchema, "up"); {
		case errors.Is(err, db.ErrNoChange):
			log.Info("db.migrate.no_change")
		case err != nil:
			return nil, err
		default:
			log.Info("db.migrate.applied", "schema", cfg.DBSchema)
		}
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		Schema:   cfg.DBSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}

	unit, err := auth.NewPostgresUnit(pool, cfg.DBSchema)
	if err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)
	return &Backend{Unit: unit, Pool: pool}, nil
}

// NewAuthService wires the auth service over b from cfg.
func NewAuthService(cfg Config, b *Backend) (*auth.Service, error) {
	return auth.NewService(
		cfg.AuthConfig(),
		b.Unit,
		workpool.New(cfg.HashWorkers),
		token.NewHasher(cfg.BcryptCost),
		cfg.PasswordConfig(),
	)
}
