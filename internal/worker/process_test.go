// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestProcessRunnerSuccess(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var progress []string
	g, err := helperRunner("serve").Run(context.Background(), testRequest(writeGuide(t)), func(m string) {
		progress = append(progress, m)
	})
	require.NoError(t, err)
	require.Len(t, g.Index["das erste"], 1)
	assert.Equal(t, []string{"Downloading TV guide...", "Processing TV guide..."}, progress)
}

func TestProcessRunnerReportsFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	req := testRequest(filepath.Join(t.TempDir(), "missing.xml"))
	_, err := helperRunner("serve").Run(context.Background(), req, nil)
	require.ErrorIs(t, err, ErrWorkerCrash)
	assert.Contains(t, err.Error(), "guide acquisition failed")
}

func TestProcessRunnerCrash(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	_, err := helperRunner("crash").Run(context.Background(), testRequest(""), nil)
	assert.ErrorIs(t, err, ErrWorkerCrash)
}

func TestProcessRunnerMalformedOutput(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	_, err := helperRunner("garbage").Run(context.Background(), testRequest(""), nil)
	require.ErrorIs(t, err, ErrWorkerCrash)
	assert.Contains(t, err.Error(), "malformed output")
}

func TestProcessRunnerTimeout(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	progress := make(chan string, 4)
	start := time.Now()
	_, err := helperRunner("hang").Run(ctx, testRequest(""), func(m string) { progress <- m })
	require.ErrorIs(t, err, ErrWorkerTimeout)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, "Downloading TV guide...", <-progress)
}

func TestProcessRunnerCancelEscalates(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	once := false
	_, err := helperRunner("stubborn").Run(ctx, testRequest(""), func(string) {
		if !once {
			once = true
			close(started)
		}
	})
	require.ErrorIs(t, err, context.Canceled)
}
