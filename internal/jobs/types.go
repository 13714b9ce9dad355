// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package jobs owns the guide acquisition session: cache load, isolated
// worker runs, generation publishing and the polled status surface.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/tvguide/internal/config"
	"github.com/ManuGH/tvguide/internal/epg"
	"github.com/ManuGH/tvguide/internal/epgcache"
	"github.com/ManuGH/tvguide/internal/playlist"
	"github.com/ManuGH/tvguide/internal/worker"
)

// State is a node of the acquisition state machine.
type State string

const (
	StateIdle         State = "idle"
	StateLoadingCache State = "loading_cache"
	StateFresh        State = "fresh"
	StateStale        State = "stale"
	StateAcquiring    State = "acquiring"
	StateReady        State = "ready"
	StateFailed       State = "failed"
)

// User-facing status strings.
const (
	StatusLoadingCache = "Loading TV guide cache..."
	StatusUpdating     = "Updating TV guide..."
	StatusLoaded       = "TV guide loaded"
	StatusOutdated     = "TV guide is outdated"
	StatusDisabled     = "TV guide updates disabled"
	StatusNoSource     = "No TV guide source configured"
	StatusError        = "TV guide update error"
)

var (
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("jobs: session closed")
	// ErrBusy is returned when a forced refresh loses the race to another acquisition.
	ErrBusy = errors.New("jobs: acquisition already in progress")
	// ErrNoSource is returned when a refresh is requested without a guide source.
	ErrNoSource = errors.New("jobs: no guide source configured")
)

// Runner executes one acquisition. worker.ProcessRunner and worker.LocalRunner
// implement it.
type Runner interface {
	Run(ctx context.Context, req worker.Request, progress func(string)) (*epg.Guide, error)
}

// Settings are the consumed configuration values of a session.
type Settings struct {
	Source              string
	OffsetHours         float64
	DoNotUpdate         bool
	NoCache             bool
	CatchupEnabled      bool
	WorkerTimeout       time.Duration
	AutoRefreshInterval time.Duration
	// Timezone is an IANA zone for the retention window; empty means local time.
	Timezone  string
	UserAgent string
	// MaxBytes caps the downloaded payload; zero means the fetcher default.
	MaxBytes int64
}

// SettingsFromConfig extracts session settings from the service config.
func SettingsFromConfig(cfg config.AppConfig) Settings {
	return Settings{
		Source:              cfg.EPG.Source,
		OffsetHours:         cfg.EPG.OffsetHours,
		DoNotUpdate:         cfg.EPG.DoNotUpdate,
		NoCache:             cfg.EPG.NoCache,
		CatchupEnabled:      cfg.Catchup.Enabled,
		WorkerTimeout:       cfg.EPG.WorkerTimeout,
		AutoRefreshInterval: cfg.EPG.AutoRefreshInterval,
		Timezone:            cfg.EPG.Timezone,
		UserAgent:           cfg.EPG.UserAgent,
		MaxBytes:            cfg.EPG.MaxBytes,
	}
}

// autoAcquire reports whether the session may acquire without being asked.
func (s Settings) autoAcquire() bool {
	return s.Source != "" && !s.DoNotUpdate
}

// invalidates reports whether switching from s to next makes the current
// generation and its cache record obsolete.
func (s Settings) invalidates(next Settings) bool {
	return s.Source != next.Source ||
		s.OffsetHours != next.OffsetHours ||
		s.CatchupEnabled != next.CatchupEnabled ||
		s.Timezone != next.Timezone
}

// Options configures a new Session.
type Options struct {
	Channels []playlist.Channel
	// PlaylistIdentity overrides playlist.Identity(Channels).
	PlaylistIdentity string
	Settings         Settings
	Runner           Runner
	// Store may be nil to run without a disk cache.
	Store *epgcache.Store
	Clock func() time.Time
}

// Snapshot is a consistent view of the session for status displays.
type Snapshot struct {
	SessionID   string    `json:"session_id"`
	State       State     `json:"state"`
	Status      string    `json:"status"`
	Progress    string    `json:"progress,omitempty"`
	Failed      bool      `json:"failed"`
	Fresh       bool      `json:"fresh"`
	Acquiring   bool      `json:"acquiring"`
	GeneratedAt time.Time `json:"generated_at,omitzero"`
	Stats       epg.Stats `json:"stats"`
}
