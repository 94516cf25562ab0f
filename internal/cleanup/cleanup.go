package cleanup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/italolelis/playlist_archiver/internal/logctx"
)

// DeleteExpiredArtifacts removes entries of dir (work folders kept after a
// packaging failure, archives whose delivery was interrupted) last modified
// more than keep ago. It returns how many entries were removed.
func DeleteExpiredArtifacts(ctx context.Context, dir string, keep time.Duration) (int, error) {
	logger := logctx.LoggerFromContext(ctx)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}

		return 0, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	cutoff := time.Now().Add(-keep)
	removed := 0

	var errs []error

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		path := filepath.Join(dir, e.Name())

		info, err := e.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue // already deleted
			}

			errs = append(errs, err)

			continue
		}

		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.RemoveAll(path); err != nil {
			logger.Error("failed to delete expired artifact", "path", path, "err", err)
			errs = append(errs, err)

			continue
		}

		removed++

		logger.Info("deleted expired artifact", "path", path, "age", time.Since(info.ModTime()).Round(time.Second).String())
	}

	return removed, errors.Join(errs...)
}

// Run sweeps every dir on each tick until ctx is done.
func Run(ctx context.Context, interval, keep time.Duration, dirs ...string) {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cleanup goroutine shutting down")

			return
		case <-ticker.C:
			for _, dir := range dirs {
				if _, err := DeleteExpiredArtifacts(ctx, dir, keep); err != nil {
					logger.Error("failed to delete expired artifacts", "dir", dir, "err", err)
				}
			}
		}
	}
}
