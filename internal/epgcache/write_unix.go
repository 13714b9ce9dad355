// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !windows

package epgcache

import (
	"fmt"
	"io"

	"github.com/google/renameio/v2"

	xglog "github.com/ManuGH/tvguide/internal/log"
)

// writeAtomic writes path through a pending file that is fsynced and renamed
// into place on success.
func writeAtomic(path string, write func(io.Writer) error) error {
	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending cache file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logger := xglog.WithComponent("epgcache")
			logger.Debug().Err(err).Msg("cleanup pending cache file")
		}
	}()

	if err := write(pendingFile); err != nil {
		return err
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace cache file: %w", err)
	}
	return nil
}
