package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/italolelis/playlist_archiver/internal/archiver"
	"github.com/italolelis/playlist_archiver/internal/cleanup"
	"github.com/italolelis/playlist_archiver/internal/config"
	"github.com/italolelis/playlist_archiver/internal/delivery"
	"github.com/italolelis/playlist_archiver/internal/downloader"
	"github.com/italolelis/playlist_archiver/internal/http/rest"
	"github.com/italolelis/playlist_archiver/internal/logctx"
	"github.com/italolelis/playlist_archiver/internal/notifier"
	"github.com/italolelis/playlist_archiver/internal/pipeline"
	"github.com/italolelis/playlist_archiver/internal/playlist"
	"github.com/italolelis/playlist_archiver/internal/provider/youtube"
	"github.com/italolelis/playlist_archiver/internal/session"
	"github.com/italolelis/playlist_archiver/internal/storage/sqlite"
	"github.com/italolelis/playlist_archiver/internal/tagging"
	"github.com/italolelis/playlist_archiver/internal/telemetry"
	"github.com/italolelis/playlist_archiver/internal/workdir"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "playlist-archiver"

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("playlist archiver starting...", "log_level", cfg.LogLevel, "version", version)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.TelemetryEnabled,
		ServiceName:    serviceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	credentials := sqlite.NewInstrumentedCredentialRepository(database, tel)

	// =========================================================================
	// Start Session and Provider
	tokens := session.NewTokenCache()
	provider := playlist.NewInstrumentedProvider(youtube.NewClient(tokens, cfg.ProviderTimeout), tel)

	gate := session.NewGate(session.Config{
		ClientID:     cfg.OAuth2ClientID,
		ClientSecret: cfg.OAuth2ClientSecret,
		BaseHost:     cfg.BaseHost,
		ProbeTrackID: cfg.ProbeTrackID,
	}, credentials, tokens, provider, tel)

	// =========================================================================
	// Start Pipeline
	p, err := buildPipeline(cfg, provider, tel)
	if err != nil {
		return err
	}
	defer p.Close()

	setupNotificationForPipeline(ctx, p, cfg)

	// =========================================================================
	// Start Cleanup
	go cleanup.Run(ctx, cfg.CleanupInterval, cfg.KeepFailedFor, cfg.DownloadDir, cfg.ArchiveDir)

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	handler := rest.NewPlaylistHandler(gate, p, delivery.NewCoordinator(tel), cfg.ClientHost)
	server := setupServer(ctx, handler, tel, cfg)

	go func() {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	logger.Info("waiting for playlist requests...",
		"download_dir", cfg.DownloadDir,
		"archive_dir", cfg.ArchiveDir,
		"compressor", cfg.Compressor,
		"batch_size", cfg.BatchSize,
		"session", gate.State().String(),
	)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return ctx.Err()
	}
}

func buildPipeline(cfg *config.Config, provider *playlist.InstrumentedProvider, tel *telemetry.Telemetry) (*pipeline.Pipeline, error) {
	opts := downloader.Options{
		BatchSize:    cfg.BatchSize,
		TrackTimeout: cfg.TrackTimeout,
	}
	if cfg.TagTracks {
		opts.Tagger = tagging.NewID3Tagger()
	}

	compressor, err := archiver.NewCompressor(cfg.Compressor, cfg.CompressorPath)
	if err != nil {
		return nil, fmt.Errorf("failed to build compressor: %w", err)
	}

	return pipeline.New(
		playlist.NewResolver(provider, cfg.ReservedPlaylistPrefixes),
		workdir.NewWorkspace(cfg.DownloadDir),
		downloader.NewDownloader(provider, tel, opts),
		archiver.NewArchiver(cfg.ArchiveDir, compressor, tel),
		cfg.MaxFailedRatio,
		tel,
	), nil
}

func setupNotificationForPipeline(ctx context.Context, p *pipeline.Pipeline, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	var notif notifier.Notifier
	if cfg.DiscordWebhookURL != "" {
		notif = notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)
	}

	notify := func(content string) {
		if notif == nil {
			return
		}

		if err := notif.Notify(ctx, content); err != nil {
			logger.Error("failed to send notification", "err", err)
		}
	}

	go func() {
		for event := range p.OnJobFailed {
			logger.Error("playlist job failed", "job_id", event.JobID, "reference", event.Reference, "err", event.Err)
			notify(fmt.Sprintf("❌ Playlist job failed for %s: %v", event.Reference, event.Err))
		}
	}()

	go func() {
		for event := range p.OnJobFinished {
			logger.Info("playlist job finished",
				"job_id", event.JobID,
				"playlist_id", event.PlaylistID,
				"written", event.Written,
				"failed", event.Failed,
				"duration", event.Duration.String(),
			)
			notify(fmt.Sprintf("✅ Playlist archived: %s (%d tracks, %d failed)", event.PlaylistTitle, event.Written, event.Failed))
		}
	}()
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, h *rest.PlaylistHandler, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", telemetry.RequestIDHeader},
		// Browsers hide Content-Disposition from scripts unless exposed.
		ExposedHeaders: []string{"Content-Disposition", telemetry.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Handle("/metrics", tel.Handler())
	r.Mount("/", h.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, serviceName),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
