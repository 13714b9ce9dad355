// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the service configuration from defaults, a strict YAML
// file and TVGUIDE_* environment variables, and reloads it on file changes.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// AppConfig is the effective configuration.
type AppConfig struct {
	Version  string
	DataDir  string
	LogLevel string
	// LogFile, when set, receives a rotated copy of the log stream.
	LogFile  string
	EPG      EPGConfig
	Catchup  CatchupConfig
	Playlist PlaylistConfig
	API      APIConfig
}

// EPGConfig controls guide acquisition and caching.
type EPGConfig struct {
	// Source is the XMLTV URL or file path.
	Source string
	// OffsetHours shifts every programme time; may be fractional.
	OffsetHours float64
	// DoNotUpdate suppresses automatic acquisition when the cache is usable.
	DoNotUpdate bool
	// NoCache disables reading and writing the on-disk cache.
	NoCache bool
	// WorkerTimeout bounds a single acquisition.
	WorkerTimeout time.Duration
	// RecheckInterval is how often freshness is re-evaluated.
	RecheckInterval time.Duration
	// AutoRefreshInterval is the minimum gap between automatic acquisitions.
	// Zero disables automatic refresh of stale guides.
	AutoRefreshInterval time.Duration
	// InProcess runs acquisition inside the server instead of a child process.
	InProcess bool
	UserAgent string
	// Timezone is the IANA zone the retention window is computed in; empty
	// means the local zone.
	Timezone string
	// MaxBytes caps a downloaded payload; zero means the fetcher default.
	MaxBytes int64
}

// CatchupConfig controls archive playback.
type CatchupConfig struct {
	Enabled bool
}

// PlaylistConfig locates the channel export produced by the playlist loader.
type PlaylistConfig struct {
	ChannelsFile string
	// Identity overrides the fingerprint computed from the channel list.
	Identity string
}

// APIConfig controls the HTTP surface.
type APIConfig struct {
	ListenAddr string
	// RefreshRateLimit is the number of forced refreshes allowed per minute.
	RefreshRateLimit int
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:  "data",
		LogLevel: "info",
		EPG: EPGConfig{
			WorkerTimeout:       5 * time.Minute,
			RecheckInterval:     time.Minute,
			AutoRefreshInterval: 30 * time.Minute,
			UserAgent:           "tvguide",
		},
		Catchup: CatchupConfig{Enabled: true},
		API: APIConfig{
			ListenAddr:       ":8085",
			RefreshRateLimit: 6,
		},
	}
}

// Validate checks value ranges. It reports every problem at once.
func Validate(cfg AppConfig) error {
	var errs []error
	if strings.TrimSpace(cfg.DataDir) == "" {
		errs = append(errs, errors.New("dataDir must not be empty"))
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("logLevel %q: %w", cfg.LogLevel, err))
	}
	if cfg.EPG.OffsetHours < -24 || cfg.EPG.OffsetHours > 24 {
		errs = append(errs, fmt.Errorf("epg.offset %v out of range [-24, 24]", cfg.EPG.OffsetHours))
	}
	if cfg.EPG.WorkerTimeout <= 0 {
		errs = append(errs, errors.New("epg.workerTimeout must be positive"))
	}
	if cfg.EPG.RecheckInterval <= 0 {
		errs = append(errs, errors.New("epg.recheckInterval must be positive"))
	}
	if tz := cfg.EPG.Timezone; tz != "" && tz != "Local" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("epg.timezone %q: %w", tz, err))
		}
	}
	if cfg.EPG.MaxBytes < 0 {
		errs = append(errs, errors.New("epg.maxBytes must not be negative"))
	}
	if cfg.EPG.AutoRefreshInterval < 0 {
		errs = append(errs, errors.New("epg.autoRefreshInterval must not be negative"))
	}
	if strings.TrimSpace(cfg.API.ListenAddr) == "" {
		errs = append(errs, errors.New("api.listenAddr must not be empty"))
	}
	if cfg.API.RefreshRateLimit < 0 {
		errs = append(errs, errors.New("api.refreshRateLimit must not be negative"))
	}
	return errors.Join(errs...)
}
