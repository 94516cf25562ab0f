package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/italolelis/playlist_archiver/internal/playlist"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	BaseHost           string `envconfig:"BASE_HOST"`
	ClientHost         string `envconfig:"CLIENT_HOST" default:"/"`
	OAuth2ClientID     string `envconfig:"OAUTH2_CLIENT_ID"`
	OAuth2ClientSecret string `envconfig:"OAUTH2_CLIENT_SECRET"`
	ProbeTrackID       string `envconfig:"PROBE_TRACK_ID" default:"kJQP7kiw5Fk"`

	ReservedPlaylistPrefixes []string `envconfig:"RESERVED_PLAYLIST_PREFIXES" default:"RD"`

	DownloadDir    string        `envconfig:"DOWNLOAD_DIR" default:"downloads"`
	ArchiveDir     string        `envconfig:"ARCHIVE_DIR" default:"archives"`
	BatchSize      int           `envconfig:"BATCH_SIZE" default:"10"`
	TrackTimeout   time.Duration `envconfig:"TRACK_TIMEOUT" default:"0s"`
	MaxFailedRatio float64       `envconfig:"MAX_FAILED_RATIO" default:"0.5"`
	Compressor     string        `envconfig:"COMPRESSOR" default:"zip"`
	CompressorPath string        `envconfig:"COMPRESSOR_PATH"`
	TagTracks      bool          `envconfig:"TAG_TRACKS" default:"false"`

	ProviderTimeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"30s"`

	DBPath            string        `envconfig:"DB_PATH" default:"session.db"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL"`
	KeepFailedFor     time.Duration `envconfig:"KEEP_FAILED_FOR" default:"24h"`
	CleanupInterval   time.Duration `envconfig:"CLEANUP_INTERVAL" default:"10m"`

	TelemetryEnabled bool   `envconfig:"TELEMETRY_ENABLED" default:"true"`
	OTLPEndpoint     string `envconfig:"OTLP_ENDPOINT"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	// WriteTimeout is long: jobs download whole playlists before the first byte is written.
	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:8080"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30m"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads an optional .env file, then environment variables, and validates the result.
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}

	for _, f := range envFiles {
		// Variables already set in the environment win over the file.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error loading %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings no component can run with. Missing OAuth
// settings are not fatal here; the login flow reports them when used.
func (c *Config) Validate() error {
	switch {
	case c.BatchSize <= 0:
		return &playlist.ConfigurationError{Setting: "BATCH_SIZE", Reason: "must be positive"}
	case c.MaxFailedRatio < 0 || c.MaxFailedRatio > 1:
		return &playlist.ConfigurationError{Setting: "MAX_FAILED_RATIO", Reason: "must be between 0 and 1"}
	case c.TrackTimeout < 0:
		return &playlist.ConfigurationError{Setting: "TRACK_TIMEOUT", Reason: "must not be negative"}
	case c.DownloadDir == "":
		return &playlist.ConfigurationError{Setting: "DOWNLOAD_DIR", Reason: "must be set"}
	case c.ArchiveDir == "":
		return &playlist.ConfigurationError{Setting: "ARCHIVE_DIR", Reason: "must be set"}
	}

	switch c.Compressor {
	case "zip", "7z", "builtin":
	default:
		return &playlist.ConfigurationError{Setting: "COMPRESSOR", Reason: fmt.Sprintf("unknown compressor %q", c.Compressor)}
	}

	return nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
