// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/tvguide/internal/api"
	"github.com/ManuGH/tvguide/internal/catchup"
	"github.com/ManuGH/tvguide/internal/config"
	xglog "github.com/ManuGH/tvguide/internal/log"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the guide service and its HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	cfg, loader, err := loadConfig()
	if err != nil {
		return err
	}
	loadLogging(cfg)
	logger := xglog.WithComponent("tvguide")
	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.API.ListenAddr).
		Msg("starting tvguide")

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()
	if _, err := a.open(cfg); err != nil {
		return err
	}

	holder := config.NewConfigHolder(cfg, loader)
	changes := make(chan config.Change, 1)
	holder.RegisterListener(changes)
	if loader.Path() != "" {
		if err := holder.StartWatcher(ctx); err != nil {
			logger.Warn().Err(err).Str("event", "config.watch_failed").Msg("config hot reload disabled")
		}
	}
	defer holder.Stop()

	srv := &http.Server{
		Addr: cfg.API.ListenAddr,
		Handler: api.New(api.Deps{
			Session:          a.current,
			Resolver:         catchup.NewResolver(),
			RefreshPerMinute: cfg.API.RefreshRateLimit,
			Version:          version,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("event", "http.listen").Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		recheck(gctx, a, holder.Get().EPG.RecheckInterval, changes)
		return nil
	})

	err = g.Wait()
	logger.Info().Str("event", "shutdown").Msg("tvguide stopped")
	return err
}

// recheck drives the staleness timer and applies config changes until ctx ends.
func recheck(ctx context.Context, a *app, interval time.Duration, changes <-chan config.Change) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if sess := a.current(); sess != nil {
				sess.Check(now)
			}
		case change := <-changes:
			a.apply(ctx, change)
			if next := change.New.EPG.RecheckInterval; next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}
