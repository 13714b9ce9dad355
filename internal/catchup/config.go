// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package catchup builds provider specific archive (timeshift) URLs from a
// live stream URL, a per-channel catchup configuration and a time window.
package catchup

import (
	"strings"
)

// Mode names a catchup URL dialect.
type Mode string

const (
	ModeDefault      Mode = "default"
	ModeAppend       Mode = "append"
	ModeShift        Mode = "shift"
	ModeFlussonic    Mode = "flussonic"
	ModeFlussonicHLS Mode = "flussonic-hls"
	ModeFlussonicTS  Mode = "flussonic-ts"
	ModeFS           Mode = "fs"
	ModeXC           Mode = "xc"
)

// DefaultDays is the archive depth assumed when a channel does not declare one.
const DefaultDays = 7

// Native reports whether the dialect derives the archive URL from the stream
// URL itself and therefore needs no source template.
func (m Mode) Native() bool {
	switch m {
	case ModeFlussonic, ModeFlussonicHLS, ModeFlussonicTS, ModeFS, ModeXC:
		return true
	}
	return false
}

func (m Mode) flussonic() bool {
	switch m {
	case ModeFlussonic, ModeFlussonicHLS, ModeFlussonicTS, ModeFS:
		return true
	}
	return false
}

// Config is the per-channel catchup configuration as found in playlists
// (catchup, catchup-source and catchup-days attributes).
type Config struct {
	Mode   Mode   `json:"catchup,omitempty" yaml:"catchup,omitempty"`
	Source string `json:"catchup-source,omitempty" yaml:"catchup-source,omitempty"`
	Days   int    `json:"catchup-days,omitempty" yaml:"catchup-days,omitempty"`
}

// Normalize fills defaults and resolves the effective dialect. It is applied
// once when a playlist is loaded, not per request.
//
//   - no source template and a non-native mode → shift
//   - a source template that is not an absolute http(s) URL → append
func Normalize(c Config) Config {
	c.Mode = Mode(strings.ToLower(strings.TrimSpace(string(c.Mode))))
	switch c.Mode {
	case "":
		c.Mode = ModeDefault
	case "xtream":
		c.Mode = ModeXC
	}
	if c.Days <= 0 {
		c.Days = DefaultDays
	}
	if c.Source == "" && !c.Mode.Native() {
		c.Mode = ModeShift
	}
	if c.Source != "" && !isAbsoluteHTTP(c.Source) {
		c.Mode = ModeAppend
	}
	return c
}

func isAbsoluteHTTP(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// RetentionDays returns how many past days of guide data to keep: the deepest
// archive any channel offers when catchup is enabled, a single day otherwise.
func RetentionDays(configs []Config, enabled bool) int {
	if !enabled {
		return 1
	}
	days := 0
	for _, c := range configs {
		if c.Days > days {
			days = c.Days
		}
	}
	if days == 0 {
		days = DefaultDays
	}
	return days
}
