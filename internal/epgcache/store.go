// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package epgcache persists the last decoded guide so a restart can skip the
// download when the data still covers the current time.
package epgcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/ManuGH/tvguide/internal/epg"
	xglog "github.com/ManuGH/tvguide/internal/log"
	"github.com/ManuGH/tvguide/internal/metrics"
)

// FileName is the blob name inside the data directory.
const FileName = "epg.cache"

// FormatVersion is bumped whenever Record changes incompatibly.
const FormatVersion = 2

var (
	// ErrMiss is returned when no usable cache exists (absent, corrupt or outdated).
	ErrMiss = errors.New("epgcache: miss")
	// ErrIdentityMismatch is returned when the cache was produced for a
	// different playlist, source or offset.
	ErrIdentityMismatch = errors.New("epgcache: identity mismatch")
)

// Identity describes the inputs a cached guide was derived from.
type Identity struct {
	Playlist      string  `json:"playlist"`
	Source        string  `json:"source"`
	OffsetHours   float64 `json:"offset_hours"`
	RetentionDays int     `json:"retention_days"`
}

// Key returns a stable digest of the identity.
func (id Identity) Key() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%d",
		id.Playlist, id.Source, strconv.FormatFloat(id.OffsetHours, 'g', -1, 64), id.RetentionDays)
	return hex.EncodeToString(h.Sum(nil))
}

// Record is the persisted form of one guide generation.
type Record struct {
	FormatVersion    int               `json:"format_version"`
	IdentityKey      string            `json:"identity_key"`
	PlaylistIdentity string            `json:"playlist_identity"`
	SourceIdentity   string            `json:"epg_source_identity"`
	Sets             epg.Index         `json:"tvguide_sets"`
	Aliases          epg.AliasTable    `json:"prog_ids"`
	Icons            map[string]string `json:"epg_icons"`
	Fresh            bool              `json:"is_program_actual"`
	GeneratedAt      time.Time         `json:"generated_at"`
}

// NewRecord captures g for id. fresh is the freshness verdict at now.
func NewRecord(id Identity, g *epg.Guide, fresh bool, now time.Time) *Record {
	if g == nil {
		g = epg.NewGuide()
	}
	return &Record{
		FormatVersion:    FormatVersion,
		IdentityKey:      id.Key(),
		PlaylistIdentity: id.Playlist,
		SourceIdentity:   id.Source,
		Sets:             g.Index,
		Aliases:          g.Aliases,
		Icons:            g.Icons,
		Fresh:            fresh,
		GeneratedAt:      now.UTC(),
	}
}

// Guide rebuilds the guide held by the record.
func (r *Record) Guide() *epg.Guide {
	g := epg.NewGuide()
	if r == nil {
		return g
	}
	if r.Sets != nil {
		g.Index = r.Sets
	}
	if r.Aliases != nil {
		g.Aliases = r.Aliases
	}
	if r.Icons != nil {
		g.Icons = r.Icons
	}
	return g
}

// Store is a single gzip-framed JSON blob on disk.
type Store struct {
	Path string
}

// New returns the store located in dataDir.
func New(dataDir string) *Store {
	return &Store{Path: filepath.Join(dataDir, FileName)}
}

// Load reads the blob and checks it was produced for id.
// Both ErrMiss and ErrIdentityMismatch mean the caller must acquire anew.
func (s *Store) Load(id Identity) (*Record, error) {
	logger := xglog.WithComponent("epgcache")

	rec, err := s.read()
	if err != nil {
		metrics.RecordCache("miss")
		if !errors.Is(err, fs.ErrNotExist) {
			metrics.RecordCache("corrupt")
			logger.Warn().Err(err).
				Str("event", "cache.corrupt").
				Str(xglog.FieldPath, s.Path).
				Msg("guide cache unreadable")
		}
		return nil, fmt.Errorf("%w: %w", ErrMiss, err)
	}
	if rec.FormatVersion != FormatVersion {
		metrics.RecordCache("miss")
		return nil, fmt.Errorf("%w: format version %d, want %d", ErrMiss, rec.FormatVersion, FormatVersion)
	}
	if rec.IdentityKey != id.Key() {
		metrics.RecordCache("mismatch")
		logger.Info().
			Str("event", "cache.mismatch").
			Str(xglog.FieldPath, s.Path).
			Msg("guide cache belongs to other settings")
		return nil, ErrIdentityMismatch
	}

	metrics.RecordCache("hit")
	logger.Debug().
		Str("event", "cache.hit").
		Str(xglog.FieldPath, s.Path).
		Time("generated_at", rec.GeneratedAt).
		Msg("guide cache loaded")
	return rec, nil
}

func (s *Store) read() (*Record, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer func() { _ = zr.Close() }()

	var rec Record
	if err := json.NewDecoder(zr).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

// Save replaces the blob atomically.
func (s *Store) Save(id Identity, rec *Record) error {
	if rec == nil {
		return errors.New("epgcache: nil record")
	}
	rec.FormatVersion = FormatVersion
	rec.IdentityKey = id.Key()
	rec.PlaylistIdentity = id.Playlist
	rec.SourceIdentity = id.Source

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o750); err != nil {
		metrics.RecordCache("save_error")
		return fmt.Errorf("create cache dir: %w", err)
	}

	err := writeAtomic(s.Path, func(w io.Writer) error {
		zw := gzip.NewWriter(w)
		if err := json.NewEncoder(zw).Encode(rec); err != nil {
			_ = zw.Close()
			return fmt.Errorf("encode record: %w", err)
		}
		return zw.Close()
	})
	if err != nil {
		metrics.RecordCache("save_error")
		return err
	}
	metrics.RecordCache("saved")
	logger := xglog.WithComponent("epgcache")
	logger.Debug().
		Str("event", "cache.saved").
		Str(xglog.FieldPath, s.Path).
		Msg("guide cache written")
	return nil
}

// Delete removes the blob. A missing blob is not an error.
func (s *Store) Delete() error {
	err := os.Remove(s.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete cache: %w", err)
	}
	if err == nil {
		metrics.RecordCache("deleted")
	}
	return nil
}
