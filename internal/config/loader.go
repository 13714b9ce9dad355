// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment keys consumed by the loader.
const (
	EnvDataDir          = "TVGUIDE_DATA_DIR"
	EnvLogLevel         = "TVGUIDE_LOG_LEVEL"
	EnvLogFile          = "TVGUIDE_LOG_FILE"
	EnvEPGSource        = "TVGUIDE_EPG_SOURCE"
	EnvEPGOffset        = "TVGUIDE_EPG_OFFSET"
	EnvEPGDoNotUpdate   = "TVGUIDE_EPG_DO_NOT_UPDATE"
	EnvEPGNoCache       = "TVGUIDE_EPG_NO_CACHE"
	EnvEPGWorkerTimeout = "TVGUIDE_EPG_WORKER_TIMEOUT"
	EnvEPGRecheck       = "TVGUIDE_EPG_RECHECK_INTERVAL"
	EnvEPGAutoRefresh   = "TVGUIDE_EPG_AUTO_REFRESH_INTERVAL"
	EnvEPGInProcess     = "TVGUIDE_EPG_IN_PROCESS"
	EnvEPGUserAgent     = "TVGUIDE_EPG_USER_AGENT"
	EnvEPGTimezone      = "TVGUIDE_EPG_TIMEZONE"
	EnvEPGMaxBytes      = "TVGUIDE_EPG_MAX_BYTES"
	EnvCatchupEnabled   = "TVGUIDE_CATCHUP_ENABLED"
	EnvPlaylistChannels = "TVGUIDE_PLAYLIST_CHANNELS_FILE"
	EnvPlaylistIdentity = "TVGUIDE_PLAYLIST_IDENTITY"
	EnvListenAddr       = "TVGUIDE_LISTEN_ADDR"
	EnvRefreshRateLimit = "TVGUIDE_REFRESH_RATE_LIMIT"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, empty for environment-only setups.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order is Parse File (Strict) -> Apply Env -> Validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	cfg.Version = l.version

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file %s: %w", l.configPath, err)
		}
		fileCfg.apply(&cfg)
	}

	l.mergeEnv(&cfg)

	cfg.DataDir = os.ExpandEnv(cfg.DataDir)
	cfg.LogFile = os.ExpandEnv(cfg.LogFile)
	cfg.Playlist.ChannelsFile = os.ExpandEnv(cfg.Playlist.ChannelsFile)
	if cfg.DataDir != "" {
		if abs, err := filepath.Abs(cfg.DataDir); err == nil {
			cfg.DataDir = abs
		}
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.DataDir = l.envString(EnvDataDir, cfg.DataDir)
	cfg.LogLevel = l.envString(EnvLogLevel, cfg.LogLevel)
	cfg.LogFile = l.envString(EnvLogFile, cfg.LogFile)

	cfg.EPG.Source = l.envString(EnvEPGSource, cfg.EPG.Source)
	cfg.EPG.OffsetHours = l.envFloat(EnvEPGOffset, cfg.EPG.OffsetHours)
	cfg.EPG.DoNotUpdate = l.envBool(EnvEPGDoNotUpdate, cfg.EPG.DoNotUpdate)
	cfg.EPG.NoCache = l.envBool(EnvEPGNoCache, cfg.EPG.NoCache)
	cfg.EPG.WorkerTimeout = l.envDuration(EnvEPGWorkerTimeout, cfg.EPG.WorkerTimeout)
	cfg.EPG.RecheckInterval = l.envDuration(EnvEPGRecheck, cfg.EPG.RecheckInterval)
	cfg.EPG.AutoRefreshInterval = l.envDuration(EnvEPGAutoRefresh, cfg.EPG.AutoRefreshInterval)
	cfg.EPG.InProcess = l.envBool(EnvEPGInProcess, cfg.EPG.InProcess)
	cfg.EPG.UserAgent = l.envString(EnvEPGUserAgent, cfg.EPG.UserAgent)
	cfg.EPG.Timezone = l.envString(EnvEPGTimezone, cfg.EPG.Timezone)
	cfg.EPG.MaxBytes = int64(l.envInt(EnvEPGMaxBytes, int(cfg.EPG.MaxBytes)))

	cfg.Catchup.Enabled = l.envBool(EnvCatchupEnabled, cfg.Catchup.Enabled)

	cfg.Playlist.ChannelsFile = l.envString(EnvPlaylistChannels, cfg.Playlist.ChannelsFile)
	cfg.Playlist.Identity = l.envString(EnvPlaylistIdentity, cfg.Playlist.Identity)

	cfg.API.ListenAddr = l.envString(EnvListenAddr, cfg.API.ListenAddr)
	cfg.API.RefreshRateLimit = l.envInt(EnvRefreshRateLimit, cfg.API.RefreshRateLimit)
}

func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile decodes one strict YAML document. Unknown keys wrap
// ErrUnknownConfigField.
func ParseFile(data []byte) (*FileConfig, error) {
	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}
