// Package app wires the kpauth server runtime: config, logging, storage,
// audit sinks, metrics and HTTP routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"kpauth/cmd/internal/audit"
	authapi "kpauth/cmd/internal/auth/api"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// App is the server runtime. It owns the HTTP server, the storage backend
// and the Redis client.
type App struct {
	cfg Config
	log Logger

	backend  *Backend
	redis    *redis.Client
	registry *prometheus.Registry

	auth *authapi.Handler
}

// New constructs a fully wired App. On error every resource opened so far is released.
func New(ctx context.Context, cfg Config, log Logger) (_ *App, err error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, nil)
	}

	a := &App{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.backend, err = OpenBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	svc, err := NewAuthService(cfg, a.backend)
	if err != nil {
		return nil, err
	}

	sinks, err := a.auditSinks(ctx)
	if err != nil {
		return nil, err
	}

	a.auth, err = authapi.NewHandler(log, svc, cfg.APIConfig(),
		authapi.WithAuditSink(sinks),
		authapi.WithMetrics(authapi.NewMetrics(a.registry)),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) auditSinks(ctx context.Context) (audit.Sink, error) {
	var sinks audit.Multi

	pg, err := a.backend.AuditSink(a.cfg.DBSchema)
	if err != nil {
		return nil, err
	}
	if pg != nil {
		sinks = append(sinks, pg)
	}

	if a.cfg.RedisURL != "" {
		client, err := audit.Connect(a.cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.redis = client

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("redis: ping: %w", err)
		}
		sinks = append(sinks, audit.NewRedisSink(client, a.cfg.AuditStream, a.cfg.AuditStreamMax))
		a.log.Info("audit.redis.enabled")
	}

	if len(sinks) == 0 {
		return audit.Nop{}, nil
	}
	return sinks, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.routes() }

// Run serves HTTP until ctx is cancelled or the server fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"base_url", runtimeBaseURL(a.cfg.HTTPAddr),
		"environment", a.cfg.Environment,
		"db_enabled", a.backend.Pool != nil,
		"redis_enabled", a.redis != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

func (a *App) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("redis.close.fail", "err", err)
		}
		a.redis = nil
	}
	a.backend.Close()
	a.backend = nil
}

// runtimeBaseURL turns a listen address into a URL a local client can reach.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
