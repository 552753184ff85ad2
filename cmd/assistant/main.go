package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"page-assist/internal/app"
	"page-assist/internal/httputil"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx)
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			deps.Log.Error("failed to close dependencies", "err", err)
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", deps.Config.Port),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		deps.Log.Info("assistant listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Run expired-entry sweeper
	g.Go(func() error {
		runSweeper(ctx, deps, deps.Config.SweepInterval)
		return nil
	})

	if err := g.Wait(); err != nil {
		deps.Log.Error("assistant stopped", "err", err)
	}
}

func newRouter(deps app.Deps) http.Handler {
	r := httputil.NewRouter(deps.Log)

	r.Post("/api/ask", askHandler(deps))
	r.Post("/api/providers/validate", validateHandler(deps))
	r.Route("/api/cache", func(r chi.Router) {
		r.Get("/key", keyHandler(deps))
		r.Get("/stats", statsHandler(deps))
		r.Post("/sweep", sweepHandler(deps))
		r.Delete("/{key}", deleteHandler(deps))
	})
	r.Get("/healthz", httputil.HealthHandler(deps.Log))
	return r
}

func runSweeper(ctx context.Context, deps app.Deps, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := deps.Cache.Sweep(ctx)
			if err != nil {
				deps.Log.Warn("cache sweep incomplete", "err", err)
			}
			deps.Log.Info("cache sweep finished", "removed", removed)
		}
	}
}
