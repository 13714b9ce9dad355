// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuGH/tvguide/internal/catchup"
)

var catchupOpts struct {
	url       string
	mode      string
	source    string
	days      int
	start     string
	end       string
	catchupID string
	now       bool
}

var catchupCmd = &cobra.Command{
	Use:   "catchup",
	Short: "Resolve the archive URL for a stream and time window",
	Example: `  tvguide catchup --url http://host/ch/index.m3u8 --mode flussonic \
    --start "1.6.2024 20:00:00" --end "1.6.2024 21:00:00"`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		o := catchupOpts
		if o.url == "" {
			return errors.New("--url is required")
		}
		res := catchup.NewResolver()
		if o.now {
			fmt.Fprintln(cmd.OutOrStdout(), res.NowURL(o.url))
			return nil
		}
		if o.start == "" || o.end == "" {
			return errors.New("--start and --end are required")
		}
		cfg := catchup.Normalize(catchup.Config{
			Mode:   catchup.Mode(o.mode),
			Source: o.source,
			Days:   o.days,
		})
		fmt.Fprintln(cmd.OutOrStdout(), res.Resolve(o.url, cfg, o.start, o.end, o.catchupID))
		return nil
	},
}

func init() {
	f := catchupCmd.Flags()
	f.StringVar(&catchupOpts.url, "url", "", "live stream URL")
	f.StringVar(&catchupOpts.mode, "mode", "", "catchup mode (default, append, shift, flussonic, fs, xc, ...)")
	f.StringVar(&catchupOpts.source, "source", "", "catchup-source template")
	f.IntVar(&catchupOpts.days, "days", 0, "catchup-days of the channel")
	f.StringVar(&catchupOpts.start, "start", "", "programme start ("+catchup.TimeLayout+", local time)")
	f.StringVar(&catchupOpts.end, "end", "", "programme end ("+catchup.TimeLayout+", local time)")
	f.StringVar(&catchupOpts.catchupID, "catchup-id", "", "programme catchup id")
	f.BoolVar(&catchupOpts.now, "now", false, "substitute the current time into the stream URL instead")
}
