// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tvguide/internal/config"
	"github.com/ManuGH/tvguide/internal/epg"
	"github.com/ManuGH/tvguide/internal/epgcache"
	"github.com/ManuGH/tvguide/internal/jobs"
	"github.com/ManuGH/tvguide/internal/worker"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	catchupOpts = struct {
		url       string
		mode      string
		source    string
		days      int
		start     string
		end       string
		catchupID string
		now       bool
	}{}
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCatchupCommand(t *testing.T) {
	out, err := runCLI(t, "catchup",
		"--url", "http://stream/ard",
		"--start", "01.06.2024 20:00:00",
		"--end", "01.06.2024 21:00:00",
	)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "http://stream/ard?utc="), out)
	assert.Contains(t, out, "&lutc=")
}

func TestCatchupCommandRequiresURL(t *testing.T) {
	_, err := runCLI(t, "catchup", "--start", "01.06.2024 20:00:00")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--url")
}

func TestCatchupCommandRequiresWindow(t *testing.T) {
	_, err := runCLI(t, "catchup", "--url", "http://stream/ard")
	require.Error(t, err)
}

func testConfig(t *testing.T) config.AppConfig {
	t.Helper()
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	cfg.EPG.InProcess = true
	return cfg
}

func writeChannels(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "channels.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestAppOpenWithoutSource(t *testing.T) {
	cfg := testConfig(t)
	cfg.Playlist.ChannelsFile = writeChannels(t, cfg.DataDir, "channels:\n  - name: Das Erste\n    url: http://stream/ard\n")

	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.close()

	sess, err := a.open(cfg)
	require.NoError(t, err)
	assert.Same(t, sess, a.current())
	assert.Equal(t, jobs.StateReady, sess.State())
	assert.Equal(t, jobs.StatusNoSource, sess.Status())
	assert.Len(t, sess.Channels(), 1)
}

func TestAppReopensOnPlaylistChange(t *testing.T) {
	cfg := testConfig(t)
	cfg.Playlist.ChannelsFile = writeChannels(t, cfg.DataDir, "- name: Das Erste\n  url: http://stream/ard\n")

	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.close()
	first, err := a.open(cfg)
	require.NoError(t, err)

	next := cfg
	next.Playlist.Identity = "pinned"
	a.apply(context.Background(), config.Change{Old: cfg, New: next, Summary: config.Diff(cfg, next)})

	assert.NotSame(t, first, a.current())
	assert.Equal(t, jobs.StateIdle, first.State())
}

func TestAppKeepsSessionOnBadPlaylist(t *testing.T) {
	cfg := testConfig(t)
	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.close()
	first, err := a.open(cfg)
	require.NoError(t, err)

	next := cfg
	next.Playlist.ChannelsFile = filepath.Join(cfg.DataDir, "missing.yaml")
	a.apply(context.Background(), config.Change{Old: cfg, New: next, Summary: config.Diff(cfg, next)})

	assert.Same(t, first, a.current())
}

func TestAppAppliesSettingsInPlace(t *testing.T) {
	cfg := testConfig(t)
	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.close()
	first, err := a.open(cfg)
	require.NoError(t, err)

	next := cfg
	next.Catchup.Enabled = false
	a.apply(context.Background(), config.Change{Old: cfg, New: next, Summary: config.Diff(cfg, next)})

	assert.Same(t, first, a.current())
	assert.False(t, a.current().Settings().CatchupEnabled)
	assert.Equal(t, 1, a.current().RetentionDays())
}

// sequenceRunner blocks its first call until cancelled and records whether a
// later call began while the first was still running.
type sequenceRunner struct {
	started chan struct{}

	mu            sync.Mutex
	calls         int
	firstReturned bool
	overlapped    bool
}

func (r *sequenceRunner) Run(ctx context.Context, _ worker.Request, _ func(string)) (*epg.Guide, error) {
	r.mu.Lock()
	r.calls++
	n := r.calls
	if n > 1 && !r.firstReturned {
		r.overlapped = true
	}
	r.mu.Unlock()
	r.started <- struct{}{}

	if n == 1 {
		<-ctx.Done()
		r.mu.Lock()
		r.firstReturned = true
		r.mu.Unlock()
	}
	return epg.NewGuide(), nil
}

func TestAppClosesOldSessionBeforeStartingNext(t *testing.T) {
	cfg := testConfig(t)
	cfg.EPG.Source = "http://example.invalid/guide.xml"
	r := &sequenceRunner{started: make(chan struct{}, 4)}
	a := &app{store: epgcache.New(cfg.DataDir), runner: r}
	defer a.close()

	_, err := a.open(cfg)
	require.NoError(t, err)
	waitRun(t, r.started)

	next := cfg
	next.Playlist.Identity = "pinned"
	_, err = a.open(next)
	require.NoError(t, err)
	waitRun(t, r.started)

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, 2, r.calls)
	assert.False(t, r.overlapped, "new session acquired while the old one was still running")
}

func waitRun(t *testing.T, started <-chan struct{}) {
	t.Helper()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("runner was not started")
	}
}
