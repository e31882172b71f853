package app

import (
	"context"
	"net/http"
	"time"

	"kpauth/cmd/internal/db"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (a *App) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		WithRequestID,
		func(next http.Handler) http.Handler { return WithRequestLogging(next, a.log) },
		func(next http.Handler) http.Handler { return WithRecover(next, a.log) },
		WithSecurityHeaders,
		func(next http.Handler) http.Handler { return WithCORS(next, a.cfg, a.log) },
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/readyz", a.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	a.auth.Register(r)
	return r
}

// handleReady reports 503 while a configured dependency is unreachable.
func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.backend.Pool != nil {
		if err := db.Ping(r.Context(), a.backend.Pool, 2*time.Second); err != nil {
			a.log.Info("readyz.db.not_ready", "err", err)
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
	}
	if a.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := a.redis.Ping(ctx).Err()
		cancel()
		if err != nil {
			a.log.Info("readyz.redis.not_ready", "err", err)
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready\n"))
}
