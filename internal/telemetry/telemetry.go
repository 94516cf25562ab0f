package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds all telemetry instruments and providers.
type Telemetry struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	meter          metric.Meter
	exporter       *prometheus.Exporter

	// RED Metrics (Rate, Errors, Duration)
	httpRequestsTotal    metric.Int64Counter
	httpRequestDuration  metric.Float64Histogram
	httpRequestsInFlight metric.Int64UpDownCounter

	// USE Metrics
	memoryUsage    metric.Int64Gauge
	goroutineCount metric.Int64Gauge

	// Business Metrics
	jobsTotal          metric.Int64Counter
	jobsActive         metric.Int64UpDownCounter
	jobDuration        metric.Float64Histogram
	tracksTotal        metric.Int64Counter
	tracksActive       metric.Int64UpDownCounter
	trackDuration      metric.Float64Histogram
	trackBytes         metric.Int64Counter
	archivesTotal      metric.Int64Counter
	archiveDuration    metric.Float64Histogram
	deliveriesTotal    metric.Int64Counter
	deliveredBytes     metric.Int64Counter
	providerOpsTotal   metric.Int64Counter
	providerErrors     metric.Int64Counter
	sessionTransitions metric.Int64Counter
	dbOperationsTotal  metric.Int64Counter
	dbOperationLatency metric.Float64Histogram

	// System health
	systemErrors metric.Int64Counter
	systemUptime metric.Float64Gauge
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// OTLPEndpoint, when set, pushes metrics to an OTLP gRPC collector next to the Prometheus scrape endpoint.
	OTLPEndpoint string
	// ExportInterval is the OTLP push period.
	ExportInterval time.Duration
}

// New creates a new telemetry instance. A disabled configuration yields an
// instance whose recorders are no-ops.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	}

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}

		interval := cfg.ExportInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}

		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(otlpExporter, sdkmetric.WithInterval(interval)),
		))
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithResource(res))

	otel.SetMeterProvider(meterProvider)
	otel.SetTracerProvider(tracerProvider)

	if err := otelruntime.Start(otelruntime.WithMeterProvider(meterProvider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime instrumentation: %w", err)
	}

	t := &Telemetry{
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(cfg.ServiceName),
		meter:          meterProvider.Meter(cfg.ServiceName),
		exporter:       exporter,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	go t.collectSystemMetrics(ctx)

	return t, nil
}

// Tracer returns the OpenTelemetry tracer, or a no-op tracer when telemetry is disabled.
func (t *Telemetry) Tracer() trace.Tracer {
	if t == nil || t.tracer == nil {
		return otel.Tracer("noop")
	}

	return t.tracer
}

// Meter returns the OpenTelemetry meter.
func (t *Telemetry) Meter() metric.Meter {
	return t.meter
}

// RecordHTTPRequest records HTTP request metrics.
func (t *Telemetry) RecordHTTPRequest(ctx context.Context, method, route, status string, duration time.Duration) {
	if t == nil || t.httpRequestsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", status),
	)

	t.httpRequestsTotal.Add(ctx, 1, attrs)
	t.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// IncrementHTTPInFlight increments in-flight HTTP requests.
func (t *Telemetry) IncrementHTTPInFlight(ctx context.Context) {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(ctx, 1)
	}
}

// DecrementHTTPInFlight decrements in-flight HTTP requests.
func (t *Telemetry) DecrementHTTPInFlight(ctx context.Context) {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(ctx, -1)
	}
}

// RecordJob records the outcome of a whole playlist job.
func (t *Telemetry) RecordJob(ctx context.Context, status string, duration time.Duration) {
	if t == nil || t.jobsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("status", status))

	t.jobsTotal.Add(ctx, 1, attrs)
	t.jobDuration.Record(ctx, duration.Seconds(), attrs)
}

func (t *Telemetry) addActiveJobs(ctx context.Context, delta int64) {
	if t != nil && t.jobsActive != nil {
		t.jobsActive.Add(ctx, delta)
	}
}

// RecordTrack records a single track download.
func (t *Telemetry) RecordTrack(ctx context.Context, status string, bytes int64, duration time.Duration) {
	if t == nil || t.tracksTotal == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("status", status))

	t.tracksTotal.Add(ctx, 1, attrs)
	t.trackDuration.Record(ctx, duration.Seconds(), attrs)

	if bytes > 0 {
		t.trackBytes.Add(ctx, bytes)
	}
}

func (t *Telemetry) addActiveTracks(ctx context.Context, delta int64) {
	if t != nil && t.tracksActive != nil {
		t.tracksActive.Add(ctx, delta)
	}
}

// RecordArchive records a packaging run.
func (t *Telemetry) RecordArchive(ctx context.Context, format, status string, duration time.Duration) {
	if t == nil || t.archivesTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("format", format),
		attribute.String("status", status),
	)

	t.archivesTotal.Add(ctx, 1, attrs)
	t.archiveDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordDelivery records an archive streamed to a client.
func (t *Telemetry) RecordDelivery(ctx context.Context, status string, bytes int64) {
	if t == nil || t.deliveriesTotal == nil {
		return
	}

	t.deliveriesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))

	if bytes > 0 {
		t.deliveredBytes.Add(ctx, bytes)
	}
}

// RecordProviderOperation records metadata provider calls.
func (t *Telemetry) RecordProviderOperation(ctx context.Context, identity, operation, status string) {
	if t == nil || t.providerOpsTotal == nil {
		return
	}

	t.providerOpsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("identity", identity),
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)

	if status == "error" {
		t.providerErrors.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("identity", identity),
				attribute.String("operation", operation),
			),
		)
	}
}

// RecordSessionTransition records a session gate state change.
func (t *Telemetry) RecordSessionTransition(ctx context.Context, from, to string) {
	if t == nil || t.sessionTransitions == nil {
		return
	}

	t.sessionTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordDBOperation records database operation metrics.
func (t *Telemetry) RecordDBOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if t == nil || t.dbOperationsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)

	t.dbOperationsTotal.Add(ctx, 1, attrs)
	t.dbOperationLatency.Record(ctx, duration.Seconds(), attrs)
}

// RecordSystemError records system error metrics.
func (t *Telemetry) RecordSystemError(ctx context.Context, component, errorType string) {
	if t == nil || t.systemErrors == nil {
		return
	}

	t.systemErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("component", component),
			attribute.String("error_type", errorType),
		),
	)
}

// Handler returns the HTTP handler for metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t == nil || t.exporter == nil {
		return http.NotFoundHandler()
	}

	return promhttp.Handler()
}

// Shutdown flushes and stops the meter and tracer providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	var errs []error

	if t.meterProvider != nil {
		errs = append(errs, t.meterProvider.Shutdown(ctx))
	}

	if t.tracerProvider != nil {
		errs = append(errs, t.tracerProvider.Shutdown(ctx))
	}

	return errors.Join(errs...)
}

type instrumentSpec struct {
	name, description, unit string
}

func (t *Telemetry) counter(dst *metric.Int64Counter, s instrumentSpec) error {
	c, err := t.meter.Int64Counter(s.name, metric.WithDescription(s.description), metric.WithUnit(s.unit))
	if err != nil {
		return fmt.Errorf("failed to create %s counter: %w", s.name, err)
	}

	*dst = c

	return nil
}

func (t *Telemetry) upDown(dst *metric.Int64UpDownCounter, s instrumentSpec) error {
	c, err := t.meter.Int64UpDownCounter(s.name, metric.WithDescription(s.description), metric.WithUnit(s.unit))
	if err != nil {
		return fmt.Errorf("failed to create %s counter: %w", s.name, err)
	}

	*dst = c

	return nil
}

func (t *Telemetry) histogram(dst *metric.Float64Histogram, s instrumentSpec) error {
	h, err := t.meter.Float64Histogram(s.name, metric.WithDescription(s.description), metric.WithUnit(s.unit))
	if err != nil {
		return fmt.Errorf("failed to create %s histogram: %w", s.name, err)
	}

	*dst = h

	return nil
}

// initializeMetrics creates all metric instruments.
func (t *Telemetry) initializeMetrics() error {
	counters := []struct {
		dst  *metric.Int64Counter
		spec instrumentSpec
	}{
		{&t.httpRequestsTotal, instrumentSpec{"http_requests_total", "Total number of HTTP requests", "1"}},
		{&t.jobsTotal, instrumentSpec{"playlist_jobs_total", "Total number of playlist jobs", "1"}},
		{&t.tracksTotal, instrumentSpec{"tracks_total", "Total number of track downloads", "1"}},
		{&t.trackBytes, instrumentSpec{"track_bytes_total", "Bytes written to track files", "By"}},
		{&t.archivesTotal, instrumentSpec{"archives_total", "Total number of packaging runs", "1"}},
		{&t.deliveriesTotal, instrumentSpec{"deliveries_total", "Total number of archive deliveries", "1"}},
		{&t.deliveredBytes, instrumentSpec{"delivered_bytes_total", "Bytes streamed to clients", "By"}},
		{&t.providerOpsTotal, instrumentSpec{"provider_operations_total", "Total number of provider operations", "1"}},
		{&t.providerErrors, instrumentSpec{"provider_errors_total", "Total number of provider errors", "1"}},
		{&t.sessionTransitions, instrumentSpec{"session_transitions_total", "Session gate state changes", "1"}},
		{&t.dbOperationsTotal, instrumentSpec{"db_operations_total", "Total number of database operations", "1"}},
		{&t.systemErrors, instrumentSpec{"system_errors_total", "Total number of system errors", "1"}},
	}

	for _, c := range counters {
		if err := t.counter(c.dst, c.spec); err != nil {
			return err
		}
	}

	upDowns := []struct {
		dst  *metric.Int64UpDownCounter
		spec instrumentSpec
	}{
		{&t.httpRequestsInFlight, instrumentSpec{"http_requests_in_flight", "Number of HTTP requests currently being processed", "1"}},
		{&t.jobsActive, instrumentSpec{"playlist_jobs_active", "Number of running playlist jobs", "1"}},
		{&t.tracksActive, instrumentSpec{"tracks_active", "Number of tracks currently downloading", "1"}},
	}

	for _, u := range upDowns {
		if err := t.upDown(u.dst, u.spec); err != nil {
			return err
		}
	}

	histograms := []struct {
		dst  *metric.Float64Histogram
		spec instrumentSpec
	}{
		{&t.httpRequestDuration, instrumentSpec{"http_request_duration_seconds", "HTTP request duration in seconds", "s"}},
		{&t.jobDuration, instrumentSpec{"playlist_job_duration_seconds", "Playlist job duration in seconds", "s"}},
		{&t.trackDuration, instrumentSpec{"track_duration_seconds", "Track download duration in seconds", "s"}},
		{&t.archiveDuration, instrumentSpec{"archive_duration_seconds", "Packaging duration in seconds", "s"}},
		{&t.dbOperationLatency, instrumentSpec{"db_operation_duration_seconds", "Database operation duration in seconds", "s"}},
	}

	for _, h := range histograms {
		if err := t.histogram(h.dst, h.spec); err != nil {
			return err
		}
	}

	return t.initializeSystemMetrics()
}

func (t *Telemetry) initializeSystemMetrics() error {
	var err error

	t.memoryUsage, err = t.meter.Int64Gauge(
		"memory_usage_bytes",
		metric.WithDescription("Memory usage in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create memory_usage gauge: %w", err)
	}

	t.goroutineCount, err = t.meter.Int64Gauge(
		"goroutine_count",
		metric.WithDescription("Number of goroutines"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create goroutine_count gauge: %w", err)
	}

	t.systemUptime, err = t.meter.Float64Gauge(
		"system_uptime_seconds",
		metric.WithDescription("System uptime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_uptime gauge: %w", err)
	}

	return nil
}

// collectSystemMetrics collects system-level metrics periodically.
func (t *Telemetry) collectSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.updateSystemMetrics(ctx, startTime)
		}
	}
}

func (t *Telemetry) updateSystemMetrics(ctx context.Context, startTime time.Time) {
	var m runtime.MemStats

	runtime.ReadMemStats(&m)

	t.memoryUsage.Record(ctx, int64(m.Alloc))
	t.goroutineCount.Record(ctx, int64(runtime.NumGoroutine()))
	t.systemUptime.Record(ctx, time.Since(startTime).Seconds())
}
