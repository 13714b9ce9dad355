// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tvguide/internal/epg"
)

const helperEnv = "TVGUIDE_WORKER_HELPER"

// TestMain lets the test binary act as the worker executable.
func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case "":
		os.Exit(m.Run())
	case "serve":
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		if err := Serve(context.Background(), os.Stdin, os.Stdout, logger); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	case "hang":
		fmt.Fprintln(os.Stderr, `{"level":"info","event":"worker.progress","message":"Downloading TV guide..."}`)
		time.Sleep(time.Minute)
		os.Exit(0)
	case "stubborn":
		signal.Ignore(syscall.SIGTERM)
		fmt.Fprintln(os.Stderr, `{"level":"info","event":"worker.progress","message":"stuck"}`)
		time.Sleep(time.Minute)
		os.Exit(0)
	case "garbage":
		fmt.Fprintln(os.Stdout, "this is not json")
		os.Exit(0)
	default:
		os.Exit(3)
	}
}

func helperRunner(mode string) *ProcessRunner {
	return &ProcessRunner{
		Path:  os.Args[0],
		Args:  []string{"-test.run=^$"},
		Env:   []string{helperEnv + "=" + mode},
		Grace: 200 * time.Millisecond,
	}
}

const sampleXMLTV = `<?xml version="1.0" encoding="UTF-8"?>
<tv>
  <channel id="ard.de"><display-name>Das Erste</display-name></channel>
  <programme start="20240601110000 +0000" stop="20240601130000 +0000" channel="ard.de">
    <title>Mittagsmagazin</title>
  </programme>
</tv>`

func writeGuide(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guide.xml")
	require.NoError(t, os.WriteFile(path, []byte(sampleXMLTV), 0o600))
	return path
}

func testRequest(src string) Request {
	return Request{
		Source:        src,
		RetentionDays: 1,
		Now:           time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Timezone:      "UTC",
	}
}

func TestServeWritesGuide(t *testing.T) {
	payload, err := json.Marshal(testRequest(writeGuide(t)))
	require.NoError(t, err)

	var stdout, logs bytes.Buffer
	logger := zerolog.New(&logs)
	require.NoError(t, Serve(context.Background(), bytes.NewReader(payload), &stdout, logger))

	g := epg.NewGuide()
	require.NoError(t, json.Unmarshal(stdout.Bytes(), g))
	require.Len(t, g.Index["das erste"], 1)
	assert.Equal(t, "Mittagsmagazin", g.Index["das erste"][0].Title)

	assert.Contains(t, logs.String(), `"event":"worker.progress"`)
	assert.Contains(t, logs.String(), "Processing TV guide...")
}

func TestServeRejectsBadRequest(t *testing.T) {
	var stdout, logs bytes.Buffer
	err := Serve(context.Background(), strings.NewReader("{"), &stdout, zerolog.New(&logs))
	require.Error(t, err)
	assert.Contains(t, logs.String(), EventFailed)
	assert.Zero(t, stdout.Len())
}

func TestLocalRunner(t *testing.T) {
	var msgs []string
	g, err := LocalRunner{}.Run(context.Background(), testRequest(writeGuide(t)), func(m string) { msgs = append(msgs, m) })
	require.NoError(t, err)
	assert.True(t, g.Index.Has("das erste"))
	assert.Equal(t, []string{"Downloading TV guide...", "Processing TV guide..."}, msgs)
}

func TestLocalRunnerBadTimezone(t *testing.T) {
	req := testRequest(writeGuide(t))
	req.Timezone = "Not/AZone"
	_, err := LocalRunner{}.Run(context.Background(), req, nil)
	require.Error(t, err)
}

func TestRelayStderr(t *testing.T) {
	input := strings.Join([]string{
		`{"level":"info","event":"worker.progress","message":"one"}`,
		`plain text`,
		`{"level":"debug","event":"other","message":"ignored"}`,
		`{"level":"error","event":"worker.failed","message":"download guide","error":"boom"}`,
		`{"level":"info","event":"worker.progress","message":"two"}`,
	}, "\n")

	var got []string
	last := relayStderr(strings.NewReader(input), func(m string) { got = append(got, m) }, zerolog.Nop())
	assert.Equal(t, []string{"one", "two"}, got)
	assert.Equal(t, "download guide: boom", last)
}
