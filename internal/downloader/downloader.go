package downloader

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/playlist_archiver/internal/downloader/progress"
	"github.com/italolelis/playlist_archiver/internal/logctx"
	"github.com/italolelis/playlist_archiver/internal/playlist"
	"github.com/italolelis/playlist_archiver/internal/tagging"
	"github.com/italolelis/playlist_archiver/internal/telemetry"
	"github.com/italolelis/playlist_archiver/internal/workdir"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize = 10

	progressInterval = int64(5 * 1024 * 1024)
)

// Tagger writes metadata into a downloaded track.
type Tagger interface {
	Tag(path string, tag tagging.TrackTag) error
}

// Options tune a Downloader. Zero values fall back to defaults.
type Options struct {
	BatchSize int
	// TrackTimeout bounds a single track download. Zero disables it.
	TrackTimeout time.Duration
	// Tagger is optional.
	Tagger Tagger
}

type Downloader struct {
	streams      playlist.StreamClient
	telemetry    *telemetry.Telemetry
	batchSize    int
	trackTimeout time.Duration
	tagger       Tagger
}

func NewDownloader(streams playlist.StreamClient, tel *telemetry.Telemetry, opts Options) *Downloader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	return &Downloader{
		streams:      streams,
		telemetry:    tel,
		batchSize:    opts.BatchSize,
		trackTimeout: opts.TrackTimeout,
		tagger:       opts.Tagger,
	}
}

// Download writes every playable track of pl into folder. Tracks are fetched
// in sequential batches; within a batch they run concurrently and one track
// failing never cancels the others. Per-track failures are recorded in the
// report. The only returned error is failing to create the folder.
func (d *Downloader) Download(ctx context.Context, pl *playlist.Playlist, folder *workdir.Folder) (*Report, error) {
	logger := logctx.LoggerFromContext(ctx).With("playlist_id", pl.ID)

	if err := folder.Create(); err != nil {
		return nil, err
	}

	jobs := PlanJobs(pl.Tracks, folder.Path)
	batches := lo.Chunk(jobs, d.batchSize)

	logger.Info("downloading playlist",
		"tracks", len(jobs),
		"skipped", len(pl.Tracks)-len(jobs),
		"batches", len(batches),
		"folder", folder.UniqueName,
	)

	for i, batch := range batches {
		logger.Debug("starting batch", "batch", i+1, "size", len(batch))

		d.runBatch(ctx, pl, batch, len(jobs))
	}

	report := &Report{Jobs: jobs}

	for _, j := range jobs {
		switch j.Outcome {
		case Written:
			report.Written++
		case Failed:
			report.Failed++
		}
	}

	logger.Info("playlist download finished", "written", report.Written, "failed", report.Failed)

	return report, nil
}

// runBatch waits for every job in the batch to settle.
func (d *Downloader) runBatch(ctx context.Context, pl *playlist.Playlist, batch []*Job, total int) {
	var g errgroup.Group

	for _, job := range batch {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					job.Outcome = Failed
					job.Err = &playlist.TrackDownloadError{
						TrackID: job.Track.ID,
						Ordinal: job.Ordinal,
						Err:     fmt.Errorf("panic: %v", r),
					}

					logctx.LoggerFromContext(ctx).Error("track download panicked", "track_id", job.Track.ID, "ordinal", job.Ordinal, "panic", r)
				}
			}()

			d.runJob(ctx, pl, job, total)

			return nil
		})
	}

	_ = g.Wait()
}

func (d *Downloader) runJob(ctx context.Context, pl *playlist.Playlist, job *Job, total int) {
	logger := logctx.LoggerFromContext(ctx).With("track_id", job.Track.ID, "ordinal", job.Ordinal)
	ctx = logctx.WithLogger(ctx, logger)

	if d.trackTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, d.trackTimeout)
		defer cancel()
	}

	err := d.telemetry.InstrumentTrack(ctx, func(ctx context.Context) (int64, error) {
		n, err := d.fetchTrack(ctx, job)
		job.Bytes = n

		return n, err
	})
	if err != nil {
		job.Outcome = Failed
		job.Err = &playlist.TrackDownloadError{TrackID: job.Track.ID, Ordinal: job.Ordinal, Err: err}

		logger.Warn("track download failed", "err", err)

		return
	}

	job.Outcome = Written

	logger.Info("track written", "file", job.Path, "size", humanize.Bytes(uint64(job.Bytes)))

	if d.tagger != nil {
		tag := tagging.TrackTag{
			Title:   job.Track.Title,
			Album:   pl.Title,
			Number:  job.Ordinal,
			Total:   total,
			Comment: job.Track.ID,
		}

		if err := d.tagger.Tag(job.Path, tag); err != nil {
			logger.Warn("failed to tag track", "err", err)
		}
	}
}

// fetchTrack streams the track into job.Path. The partial file is removed on failure.
func (d *Downloader) fetchTrack(ctx context.Context, job *Job) (int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	body, size, err := d.streams.OpenAudioStream(ctx, job.Track.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer body.Close()

	out, err := os.Create(job.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to create track file: %w", err)
	}

	pr := progress.NewReader(body, size, progressInterval, func(read, total int64) {
		if total > 0 {
			logger.Debug("download progress",
				"downloaded", humanize.Bytes(uint64(read)),
				"total", humanize.Bytes(uint64(total)),
				"percent", humanize.FtoaWithDigits(float64(read)*100/float64(total), 2))
		} else {
			logger.Debug("download progress", "downloaded", humanize.Bytes(uint64(read)))
		}
	})

	n, copyErr := io.Copy(out, readerWithContext(ctx, pr))
	closeErr := out.Close()

	if copyErr == nil && closeErr != nil {
		copyErr = fmt.Errorf("failed to close track file: %w", closeErr)
	}

	if copyErr != nil {
		if rmErr := os.Remove(job.Path); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn("failed to remove partial track file", "file", job.Path, "err", rmErr)
		}

		return n, fmt.Errorf("failed to write track: %w", copyErr)
	}

	return n, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

// readerWithContext stops a copy once ctx is done, even when the body ignores it.
func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	return c.r.Read(p)
}
