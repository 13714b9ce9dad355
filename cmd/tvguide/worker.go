// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ManuGH/tvguide/internal/worker"
)

// workerCmd is the child side of an out-of-process acquisition. The parent
// writes the request to stdin and reads progress from stderr.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Acquire one guide (internal)",
	Hidden: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		return worker.Serve(ctx, os.Stdin, os.Stdout, logger)
	},
}
