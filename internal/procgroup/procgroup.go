// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup starts worker processes in their own process group and
// tears the whole group down on cancellation.
package procgroup

import (
	"errors"
	"os"
	"syscall"
)

// isGone reports whether err means the target process no longer exists.
func isGone(err error) bool {
	return errors.Is(err, syscall.ESRCH) || errors.Is(err, os.ErrProcessDone)
}
