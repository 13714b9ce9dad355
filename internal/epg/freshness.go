// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import "time"

// IsFresh reports whether at least one channel has a programme airing at now.
// Channels without any coverage do not make the guide stale.
func IsFresh(idx Index, now time.Time) bool {
	ts := now.Unix()
	for _, list := range idx {
		for _, p := range list {
			if p.Start <= ts && ts < p.Stop {
				return true
			}
		}
	}
	return false
}
