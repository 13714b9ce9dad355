// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// FileConfig is the on-disk YAML shape. Pointer fields distinguish "unset"
// from zero values so file settings only override what they name.
type FileConfig struct {
	Version  string        `yaml:"version,omitempty"`
	DataDir  *string       `yaml:"dataDir,omitempty"`
	LogLevel *string       `yaml:"logLevel,omitempty"`
	LogFile  *string       `yaml:"logFile,omitempty"`
	EPG      *EPGFile      `yaml:"epg,omitempty"`
	Catchup  *CatchupFile  `yaml:"catchup,omitempty"`
	Playlist *PlaylistFile `yaml:"playlist,omitempty"`
	API      *APIFile      `yaml:"api,omitempty"`
}

// EPGFile mirrors EPGConfig.
type EPGFile struct {
	Source              *string        `yaml:"source,omitempty"`
	OffsetHours         *float64       `yaml:"offset,omitempty"`
	DoNotUpdate         *bool          `yaml:"doNotUpdate,omitempty"`
	NoCache             *bool          `yaml:"noCache,omitempty"`
	WorkerTimeout       *time.Duration `yaml:"workerTimeout,omitempty"`
	RecheckInterval     *time.Duration `yaml:"recheckInterval,omitempty"`
	AutoRefreshInterval *time.Duration `yaml:"autoRefreshInterval,omitempty"`
	InProcess           *bool          `yaml:"inProcess,omitempty"`
	UserAgent           *string        `yaml:"userAgent,omitempty"`
	Timezone            *string        `yaml:"timezone,omitempty"`
	MaxBytes            *int64         `yaml:"maxBytes,omitempty"`
}

// CatchupFile mirrors CatchupConfig.
type CatchupFile struct {
	Enabled *bool `yaml:"enabled,omitempty"`
}

// PlaylistFile mirrors PlaylistConfig.
type PlaylistFile struct {
	ChannelsFile *string `yaml:"channelsFile,omitempty"`
	Identity     *string `yaml:"identity,omitempty"`
}

// APIFile mirrors APIConfig.
type APIFile struct {
	ListenAddr       *string `yaml:"listenAddr,omitempty"`
	RefreshRateLimit *int    `yaml:"refreshRateLimit,omitempty"`
}

func (f *FileConfig) apply(cfg *AppConfig) {
	if f.Version != "" {
		cfg.Version = f.Version
	}
	set(&cfg.DataDir, f.DataDir)
	set(&cfg.LogLevel, f.LogLevel)
	set(&cfg.LogFile, f.LogFile)

	if e := f.EPG; e != nil {
		set(&cfg.EPG.Source, e.Source)
		set(&cfg.EPG.OffsetHours, e.OffsetHours)
		set(&cfg.EPG.DoNotUpdate, e.DoNotUpdate)
		set(&cfg.EPG.NoCache, e.NoCache)
		set(&cfg.EPG.WorkerTimeout, e.WorkerTimeout)
		set(&cfg.EPG.RecheckInterval, e.RecheckInterval)
		set(&cfg.EPG.AutoRefreshInterval, e.AutoRefreshInterval)
		set(&cfg.EPG.InProcess, e.InProcess)
		set(&cfg.EPG.UserAgent, e.UserAgent)
		set(&cfg.EPG.Timezone, e.Timezone)
		set(&cfg.EPG.MaxBytes, e.MaxBytes)
	}
	if c := f.Catchup; c != nil {
		set(&cfg.Catchup.Enabled, c.Enabled)
	}
	if p := f.Playlist; p != nil {
		set(&cfg.Playlist.ChannelsFile, p.ChannelsFile)
		set(&cfg.Playlist.Identity, p.Identity)
	}
	if a := f.API; a != nil {
		set(&cfg.API.ListenAddr, a.ListenAddr)
		set(&cfg.API.RefreshRateLimit, a.RefreshRateLimit)
	}
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
