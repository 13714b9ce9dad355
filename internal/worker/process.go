// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/tvguide/internal/epg"
	xglog "github.com/ManuGH/tvguide/internal/log"
	"github.com/ManuGH/tvguide/internal/procgroup"
)

// DefaultGrace is the SIGTERM → SIGKILL grace period.
const DefaultGrace = 2 * time.Second

// ProcessRunner runs each acquisition in a fresh child process placed in its
// own process group, so cancellation can kill it together with anything it
// spawned.
type ProcessRunner struct {
	// Path is the worker executable; empty means the running binary.
	Path string
	// Args are passed to the executable, e.g. []string{"worker"}.
	Args []string
	// Env is appended to the inherited environment.
	Env []string
	// Grace is the SIGTERM → SIGKILL delay; zero means DefaultGrace.
	Grace time.Duration
}

// Run spawns the worker, hands it req and returns the decoded guide.
// progress is called with every progress message the worker logs.
// When ctx ends the process group is terminated and always reaped.
func (r *ProcessRunner) Run(ctx context.Context, req Request, progress func(string)) (*epg.Guide, error) {
	if progress == nil {
		progress = func(string) {}
	}
	logger := xglog.WithComponentFromContext(ctx, "worker")

	path := r.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate worker executable: %w", err)
		}
		path = exe
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode worker request: %w", err)
	}

	cmd := exec.Command(path, r.Args...)
	cmd.Env = append(os.Environ(), r.Env...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stderr pipe: %w", err)
	}
	procgroup.Set(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	pid := cmd.Process.Pid
	logger.Info().
		Str("event", "worker.start").
		Int(xglog.FieldPID, pid).
		Msg("guide worker started")

	var lastError string
	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		lastError = relayStderr(stderr, progress, logger)
	}()

	// Wait must not run before stderr is drained.
	waitCh := make(chan error, 1)
	go func() {
		<-scanDone
		waitCh <- cmd.Wait()
	}()

	select {
	case err := <-waitCh:
		if err != nil {
			logger.Warn().Err(err).
				Str("event", "worker.crash").
				Int(xglog.FieldPID, pid).
				Str("reason", lastError).
				Msg("guide worker exited with error")
			if lastError != "" {
				return nil, fmt.Errorf("%w: %s (%v)", ErrWorkerCrash, lastError, err)
			}
			return nil, fmt.Errorf("%w: %v", ErrWorkerCrash, err)
		}
	case <-ctx.Done():
		logger.Info().
			Str("event", "worker.cancel").
			Int(xglog.FieldPID, pid).
			Msg("terminating guide worker")
		_ = procgroup.Terminate(cmd, waitCh, r.grace())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrWorkerTimeout
		}
		return nil, ctx.Err()
	}

	g := epg.NewGuide()
	if err := json.Unmarshal(stdout.Bytes(), g); err != nil {
		return nil, fmt.Errorf("%w: malformed output: %v", ErrWorkerCrash, err)
	}
	if g.Index == nil {
		g.Index = make(epg.Index)
	}
	if g.Aliases == nil {
		g.Aliases = make(epg.AliasTable)
	}
	if g.Icons == nil {
		g.Icons = make(map[string]string)
	}
	logger.Debug().
		Str("event", "worker.done").
		Int(xglog.FieldPID, pid).
		Int("bytes", stdout.Len()).
		Msg("guide worker finished")
	return g, nil
}

func (r *ProcessRunner) grace() time.Duration {
	if r.Grace <= 0 {
		return DefaultGrace
	}
	return r.Grace
}

// workerLine is the subset of a zerolog JSON line the parent inspects.
type workerLine struct {
	Level   string `json:"level"`
	Event   string `json:"event"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// relayStderr consumes the worker's log stream until EOF. Progress lines go to
// progress, everything else is relayed at debug level. It returns the message
// of the last error line.
func relayStderr(r io.Reader, progress func(string), logger zerolog.Logger) string {
	var lastError string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		var wl workerLine
		if err := json.Unmarshal(line, &wl); err != nil {
			logger.Debug().Str("event", "worker.output").Str("line", string(line)).Msg("worker output")
			continue
		}
		switch {
		case wl.Event == EventProgress:
			progress(wl.Message)
		case wl.Level == zerolog.LevelErrorValue || wl.Level == zerolog.LevelFatalValue:
			lastError = wl.Message
			if wl.Error != "" {
				lastError += ": " + wl.Error
			}
		default:
			logger.Debug().Str("event", "worker.log").Str("worker_event", wl.Event).Msg(wl.Message)
		}
	}
	// Drain so the child never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
	return lastError
}
