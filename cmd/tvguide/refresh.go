// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Acquire the guide once, update the cache and print the result",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		loadLogging(cfg)

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()
		sess, err := a.open(cfg)
		if err != nil {
			return err
		}
		if err := sess.ForceRefresh(ctx); err != nil {
			return err
		}
		if err := sess.Wait(ctx); err != nil {
			return err
		}

		snap := sess.Snapshot()
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return err
		}
		if snap.Failed {
			return errors.New("guide acquisition failed")
		}
		return nil
	},
}
