// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/ManuGH/tvguide/internal/config"
	"github.com/ManuGH/tvguide/internal/epgcache"
	"github.com/ManuGH/tvguide/internal/jobs"
	xglog "github.com/ManuGH/tvguide/internal/log"
	"github.com/ManuGH/tvguide/internal/playlist"
	"github.com/ManuGH/tvguide/internal/worker"
)

// app owns the active session and swaps it when the channel list changes.
type app struct {
	session atomic.Pointer[jobs.Session]
	store   *epgcache.Store
	runner  jobs.Runner
}

func newApp(cfg config.AppConfig) (*app, error) {
	runner, err := newRunner(cfg)
	if err != nil {
		return nil, err
	}
	return &app{
		store:  epgcache.New(cfg.DataDir),
		runner: runner,
	}, nil
}

func newRunner(cfg config.AppConfig) (jobs.Runner, error) {
	if cfg.EPG.InProcess {
		return worker.LocalRunner{}, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return &worker.ProcessRunner{Path: exe, Args: []string{"worker"}}, nil
}

func loadLogging(cfg config.AppConfig) {
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	xglog.Reconfigure(xglog.Config{
		Level:   level,
		File:    cfg.LogFile,
		Version: version,
	})
}

// open builds a session for cfg, makes it current and starts it. The previous
// session is closed first so only one session writes the cache.
func (a *app) open(cfg config.AppConfig) (*jobs.Session, error) {
	var channels []playlist.Channel
	if cfg.Playlist.ChannelsFile != "" {
		loaded, err := playlist.LoadChannels(cfg.Playlist.ChannelsFile)
		if err != nil {
			return nil, err
		}
		channels = loaded
	}
	sess := jobs.NewSession(jobs.Options{
		Channels:         channels,
		PlaylistIdentity: cfg.Playlist.Identity,
		Settings:         jobs.SettingsFromConfig(cfg),
		Runner:           a.runner,
		Store:            a.store,
	})
	if old := a.session.Swap(sess); old != nil {
		old.Close()
	}
	if err := sess.Start(); err != nil {
		a.session.CompareAndSwap(sess, nil)
		sess.Close()
		return nil, err
	}
	return sess, nil
}

func (a *app) current() *jobs.Session { return a.session.Load() }

// apply reacts to a reloaded configuration.
func (a *app) apply(ctx context.Context, change config.Change) {
	logger := xglog.WithComponent("tvguide")
	if change.Summary.RestartRequired {
		logger.Warn().
			Str("event", "config.restart_required").
			Strs("fields", change.Summary.ChangedFields).
			Msg("some changes take effect after a restart")
	}
	if change.Old.LogLevel != change.New.LogLevel {
		loadLogging(change.New)
	}

	if change.Old.Playlist != change.New.Playlist {
		if _, err := a.open(change.New); err != nil {
			logger.Error().Err(err).Str("event", "session.reopen_failed").Msg("keeping previous session")
			return
		}
		logger.Info().Str("event", "session.reopened").Msg("channel list reloaded")
		return
	}

	sess := a.current()
	if sess == nil {
		return
	}
	invalidated, err := sess.ApplySettings(ctx, jobs.SettingsFromConfig(change.New))
	if err != nil {
		logger.Warn().Err(err).Str("event", "session.apply_failed").Msg("settings applied without refresh")
		return
	}
	if invalidated {
		logger.Info().Str("event", "session.invalidated").Msg("guide invalidated by config change")
	}
}

func (a *app) close() {
	if sess := a.session.Swap(nil); sess != nil {
		sess.Close()
	}
}

func loadConfig() (config.AppConfig, *config.Loader, error) {
	loader := config.NewLoader(configPath, version)
	cfg, err := loader.Load()
	if err != nil {
		return config.AppConfig{}, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, loader, nil
}
