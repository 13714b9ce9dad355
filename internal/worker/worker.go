// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package worker runs guide acquisition (download + decode) either in an
// isolated child process or in-process.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/tvguide/internal/epg"
	"github.com/ManuGH/tvguide/internal/source"
)

// EventProgress marks stderr log lines carrying a user-facing progress message.
const EventProgress = "worker.progress"

// EventFailed marks the final error line of a failing worker.
const EventFailed = "worker.failed"

var (
	// ErrWorkerCrash is returned when the worker exits non-zero or produces
	// unusable output.
	ErrWorkerCrash = errors.New("worker: crashed")
	// ErrWorkerTimeout is returned when the worker exceeds its deadline.
	ErrWorkerTimeout = errors.New("worker: timed out")
)

// Request is the acquisition job handed to a worker.
type Request struct {
	Source        string    `json:"source"`
	OffsetHours   float64   `json:"offset_hours"`
	RetentionDays int       `json:"retention_days"`
	Now           time.Time `json:"now"`
	// Timezone is an IANA zone name; empty or "Local" means the process zone.
	Timezone  string `json:"timezone,omitempty"`
	MaxBytes  int64  `json:"max_bytes,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

func (r Request) location() (*time.Location, error) {
	if r.Timezone == "" || r.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(r.Timezone)
}

// Acquire downloads and decodes the guide described by req. progress receives
// short user-facing status messages and may be nil.
func Acquire(ctx context.Context, req Request, progress func(string)) (*epg.Guide, error) {
	if progress == nil {
		progress = func(string) {}
	}
	loc, err := req.location()
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	progress("Downloading TV guide...")
	fetcher := &source.Fetcher{MaxBytes: req.MaxBytes, UserAgent: req.UserAgent}
	raw, err := fetcher.Fetch(ctx, req.Source)
	if err != nil {
		return nil, fmt.Errorf("download guide: %w", err)
	}

	progress("Processing TV guide...")
	g, err := epg.Decode(raw, epg.DecodeOptions{
		OffsetHours:   req.OffsetHours,
		RetentionDays: req.RetentionDays,
		Now:           req.Now,
		Location:      loc,
	})
	if err != nil {
		return nil, fmt.Errorf("decode guide: %w", err)
	}
	return g, nil
}

// Serve is the child side of ProcessRunner: it reads one JSON Request from
// stdin, acquires the guide and writes it as JSON to stdout. Progress and
// errors are logged through logger, which the parent reads from stderr.
func Serve(ctx context.Context, stdin io.Reader, stdout io.Writer, logger zerolog.Logger) error {
	var req Request
	if err := json.NewDecoder(stdin).Decode(&req); err != nil {
		logger.Error().Err(err).Str("event", EventFailed).Msg("invalid worker request")
		return fmt.Errorf("decode request: %w", err)
	}

	g, err := Acquire(ctx, req, func(msg string) {
		logger.Info().Str("event", EventProgress).Msg(msg)
	})
	if err != nil {
		logger.Error().Err(err).Str("event", EventFailed).Msg("guide acquisition failed")
		return err
	}

	stats := g.Stats()
	logger.Info().
		Str("event", "worker.done").
		Int("channels", stats.Channels).
		Int("programmes", stats.Programmes).
		Msg("guide decoded")

	if err := json.NewEncoder(stdout).Encode(g); err != nil {
		logger.Error().Err(err).Str("event", EventFailed).Msg("write guide")
		return fmt.Errorf("encode guide: %w", err)
	}
	return nil
}

// LocalRunner acquires in the calling process. It cannot be killed; a
// cancelled context only aborts the download.
type LocalRunner struct{}

// Run implements the session runner contract.
func (LocalRunner) Run(ctx context.Context, req Request, progress func(string)) (*epg.Guide, error) {
	g, err := Acquire(ctx, req, progress)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %w", ErrWorkerTimeout, err)
	}
	return g, err
}
