package archiver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/playlist_archiver/internal/logctx"
	"github.com/italolelis/playlist_archiver/internal/playlist"
	"github.com/italolelis/playlist_archiver/internal/telemetry"
	"github.com/italolelis/playlist_archiver/internal/workdir"
)

// Compressor packs the content of src (not src itself) into the archive at dst.
type Compressor interface {
	Compress(ctx context.Context, src, dst string) error
	// Ext is the archive file extension, including the dot.
	Ext() string
}

// Archive is a packaged job result waiting to be delivered.
type Archive struct {
	UniqueName  string
	DisplayName string
	Path        string

	removeOnce sync.Once
	removeErr  error
}

// Size returns the archive size on disk.
func (a *Archive) Size() (int64, error) {
	fi, err := os.Stat(a.Path)
	if err != nil {
		return 0, err
	}

	return fi.Size(), nil
}

// Remove deletes the archive file. Only the first call touches the disk.
func (a *Archive) Remove() error {
	a.removeOnce.Do(func() {
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			a.removeErr = fmt.Errorf("failed to remove archive %s: %w", a.Path, err)
		}
	})

	return a.removeErr
}

type Archiver struct {
	dir        string
	compressor Compressor
	fallback   Compressor
	telemetry  *telemetry.Telemetry
}

// NewArchiver writes archives into dir using compressor. Empty folders are
// packaged with the in-process zip writer when the compressor produces zip
// files, since the zip tool refuses empty input.
func NewArchiver(dir string, compressor Compressor, tel *telemetry.Telemetry) *Archiver {
	a := &Archiver{
		dir:        dir,
		compressor: compressor,
		telemetry:  tel,
	}

	if compressor.Ext() == ZipExt {
		a.fallback = NewZipCompressor()
	}

	return a
}

// Archive packages folder. On success the folder is removed; on failure the
// partial archive is removed and the folder is kept.
func (a *Archiver) Archive(ctx context.Context, folder *workdir.Folder) (*Archive, error) {
	logger := logctx.LoggerFromContext(ctx).With("folder", folder.UniqueName)

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return nil, &playlist.PackagingError{Source: folder.UniqueName, Err: err}
	}

	ext := a.compressor.Ext()
	archive := &Archive{
		UniqueName:  folder.UniqueName + ext,
		DisplayName: folder.DisplayName + ext,
		Path:        filepath.Join(a.dir, folder.UniqueName+ext),
	}

	compressor := a.compressor

	entries, err := folder.Entries()
	if err != nil {
		return nil, &playlist.PackagingError{Source: folder.UniqueName, Err: err}
	}

	if len(entries) == 0 && a.fallback != nil {
		logger.Debug("folder is empty, using in-process zip writer")

		compressor = a.fallback
	}

	err = a.telemetry.InstrumentArchive(ctx, ext[1:], func(ctx context.Context) error {
		return compressor.Compress(ctx, folder.Path, archive.Path)
	})
	if err != nil {
		if rmErr := os.Remove(archive.Path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logger.Warn("failed to remove partial archive", "archive", archive.Path, "err", rmErr)
		}

		return nil, &playlist.PackagingError{Source: folder.UniqueName, Err: err}
	}

	if err := folder.Remove(); err != nil {
		logger.Warn("failed to remove work folder after packaging", "err", err)
	}

	size, _ := archive.Size()
	logger.Info("archive created", "archive", archive.UniqueName, "size", humanize.Bytes(uint64(size)), "files", len(entries))

	return archive, nil
}
