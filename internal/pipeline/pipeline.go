package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/italolelis/playlist_archiver/internal/archiver"
	"github.com/italolelis/playlist_archiver/internal/downloader"
	"github.com/italolelis/playlist_archiver/internal/logctx"
	"github.com/italolelis/playlist_archiver/internal/playlist"
	"github.com/italolelis/playlist_archiver/internal/telemetry"
	"github.com/italolelis/playlist_archiver/internal/workdir"
)

const (
	DefaultMaxFailedRatio = 0.5

	eventBuffer = 16
)

type Resolver interface {
	Resolve(ctx context.Context, reference string) (*playlist.Playlist, error)
}

type Downloader interface {
	Download(ctx context.Context, pl *playlist.Playlist, folder *workdir.Folder) (*downloader.Report, error)
}

type Archiver interface {
	Archive(ctx context.Context, folder *workdir.Folder) (*archiver.Archive, error)
}

// JobEvent describes a finished or failed job.
type JobEvent struct {
	JobID         string
	Reference     string
	PlaylistID    string
	PlaylistTitle string
	Archive       string
	Written       int
	Failed        int
	Duration      time.Duration
	Err           error
}

// Pipeline runs one playlist job at a time per call: resolve, download,
// check the yield, package.
type Pipeline struct {
	resolver       Resolver
	workspace      *workdir.Workspace
	downloader     Downloader
	archiver       Archiver
	maxFailedRatio float64
	telemetry      *telemetry.Telemetry

	OnJobFinished chan *JobEvent
	OnJobFailed   chan *JobEvent

	eventsMu sync.RWMutex
	closed   bool
}

func New(
	resolver Resolver,
	workspace *workdir.Workspace,
	dl Downloader,
	arch Archiver,
	maxFailedRatio float64,
	tel *telemetry.Telemetry,
) *Pipeline {
	return &Pipeline{
		resolver:       resolver,
		workspace:      workspace,
		downloader:     dl,
		archiver:       arch,
		maxFailedRatio: maxFailedRatio,
		telemetry:      tel,
		OnJobFinished:  make(chan *JobEvent, eventBuffer),
		OnJobFailed:    make(chan *JobEvent, eventBuffer),
	}
}

// Close closes the event channels. Jobs still running afterwards finish
// normally and their events are dropped. Closing twice is a no-op.
func (p *Pipeline) Close() {
	p.eventsMu.Lock()
	defer p.eventsMu.Unlock()

	if p.closed {
		return
	}

	p.closed = true

	close(p.OnJobFinished)
	close(p.OnJobFailed)
}

// Run turns a playlist reference into an archive ready for delivery.
func (p *Pipeline) Run(ctx context.Context, reference string) (*archiver.Archive, error) {
	jobID := uuid.NewString()
	logger := logctx.LoggerFromContext(ctx).With("job_id", jobID)
	ctx = logctx.WithLogger(ctx, logger)

	event := &JobEvent{JobID: jobID, Reference: reference}
	start := time.Now()

	var archive *archiver.Archive

	err := p.telemetry.InstrumentJob(ctx, func(ctx context.Context) error {
		var err error

		archive, err = p.run(ctx, event)

		return err
	})

	event.Duration = time.Since(start)

	if err != nil {
		event.Err = err
		logger.Error("playlist job failed", "reference", reference, "err", err)
		p.emit(ctx, p.OnJobFailed, event)

		return nil, err
	}

	event.Archive = archive.DisplayName
	logger.Info("playlist job finished", "archive", archive.UniqueName, "duration", event.Duration.String())
	p.emit(ctx, p.OnJobFinished, event)

	return archive, nil
}

func (p *Pipeline) run(ctx context.Context, event *JobEvent) (*archiver.Archive, error) {
	logger := logctx.LoggerFromContext(ctx)

	pl, err := p.resolver.Resolve(ctx, event.Reference)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve playlist: %w", err)
	}

	event.PlaylistID = pl.ID
	event.PlaylistTitle = pl.Title

	ctx = logctx.WithLogger(ctx, logger.With("playlist_id", pl.ID))

	folder := p.workspace.NewFolder(pl.Title)

	report, err := p.downloader.Download(ctx, pl, folder)
	if err != nil {
		return nil, fmt.Errorf("failed to download playlist: %w", err)
	}

	event.Written = report.Written
	event.Failed = report.Failed

	if report.Total() > 0 && report.FailedRatio() > p.maxFailedRatio {
		if rmErr := folder.Remove(); rmErr != nil {
			logger.Warn("failed to remove work folder", "err", rmErr)
		}

		return nil, &playlist.InsufficientYieldError{
			Failed:   report.Failed,
			Total:    report.Total(),
			MaxRatio: p.maxFailedRatio,
		}
	}

	archive, err := p.archiver.Archive(ctx, folder)
	if err != nil {
		return nil, fmt.Errorf("failed to package playlist: %w", err)
	}

	return archive, nil
}

// emit never blocks a request on a slow or absent listener.
func (p *Pipeline) emit(ctx context.Context, ch chan *JobEvent, event *JobEvent) {
	p.eventsMu.RLock()
	defer p.eventsMu.RUnlock()

	if p.closed {
		logctx.LoggerFromContext(ctx).Debug("job event dropped, pipeline closed", "job_id", event.JobID)

		return
	}

	select {
	case ch <- event:
	default:
		logctx.LoggerFromContext(ctx).Debug("job event dropped, listener is behind", "job_id", event.JobID)
	}
}
