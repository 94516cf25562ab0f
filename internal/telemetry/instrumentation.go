package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Span attributes here feed metric series, so they must stay bounded:
// operation names, identities, statuses and formats are fine. Playlist ids,
// track titles and file paths belong in logs.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

func statusOf(err error) string {
	if err != nil {
		return "error"
	}

	return "success"
}

// InstrumentOperation wraps fn in a span named after the operation.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)
	if err != nil {
		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", statusOf(err)),
		attribute.Float64("duration_seconds", time.Since(start).Seconds()),
	)

	return err
}

// InstrumentDBOperation instruments database operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)

	t.RecordDBOperation(ctx, operation, statusOf(err), time.Since(start))

	return err
}

// InstrumentProviderOperation instruments calls to the media provider.
func (t *Telemetry) InstrumentProviderOperation(ctx context.Context, identity, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	err := t.InstrumentOperation(ctx, "provider_"+operation, "provider", func(ctx context.Context) error {
		ctx, span := t.Tracer().Start(ctx, "provider_"+operation)
		defer span.End()

		span.SetAttributes(
			attribute.String("provider.identity", identity),
			attribute.String("provider.operation", operation),
		)

		return fn(ctx)
	})

	t.RecordProviderOperation(ctx, identity, operation, statusOf(err))

	return err
}

// InstrumentJob tracks a full resolve, download and package run.
func (t *Telemetry) InstrumentJob(ctx context.Context, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()

	t.addActiveJobs(ctx, 1)
	defer t.addActiveJobs(ctx, -1)

	err := t.InstrumentOperation(ctx, "playlist_job", "pipeline", fn)

	t.RecordJob(ctx, statusOf(err), time.Since(start))

	return err
}

// InstrumentTrack tracks one track download. fn reports the bytes written.
func (t *Telemetry) InstrumentTrack(ctx context.Context, fn func(ctx context.Context) (int64, error)) error {
	if t == nil {
		_, err := fn(ctx)

		return err
	}

	start := time.Now()

	t.addActiveTracks(ctx, 1)
	defer t.addActiveTracks(ctx, -1)

	var written int64

	err := t.InstrumentOperation(ctx, "track_download", "downloader", func(ctx context.Context) error {
		var err error

		written, err = fn(ctx)

		return err
	})

	t.RecordTrack(ctx, statusOf(err), written, time.Since(start))

	return err
}

// InstrumentArchive tracks one packaging run.
func (t *Telemetry) InstrumentArchive(ctx context.Context, format string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "archive_"+format, "archiver", fn)

	t.RecordArchive(ctx, format, statusOf(err), time.Since(start))

	return err
}
