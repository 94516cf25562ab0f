package playlist

import (
	"context"
	"io"

	"github.com/italolelis/playlist_archiver/internal/telemetry"
)

// InstrumentedProvider wraps a Provider with telemetry.
type InstrumentedProvider struct {
	provider  Provider
	telemetry *telemetry.Telemetry
}

// NewInstrumentedProvider creates a new instrumented provider.
func NewInstrumentedProvider(provider Provider, tel *telemetry.Telemetry) *InstrumentedProvider {
	return &InstrumentedProvider{
		provider:  provider,
		telemetry: tel,
	}
}

// ResolvePlaylist looks up playlist metadata with telemetry.
func (c *InstrumentedProvider) ResolvePlaylist(ctx context.Context, id string, identity Identity) (*PlaylistInfo, error) {
	var result *PlaylistInfo

	err := c.telemetry.InstrumentProviderOperation(ctx, identity.String(), "resolve_playlist", func(ctx context.Context) error {
		var err error

		result, err = c.provider.ResolvePlaylist(ctx, id, identity)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ResolveTrack looks up track metadata with telemetry.
func (c *InstrumentedProvider) ResolveTrack(ctx context.Context, id string, identity Identity) (*TrackInfo, error) {
	var result *TrackInfo

	err := c.telemetry.InstrumentProviderOperation(ctx, identity.String(), "resolve_track", func(ctx context.Context) error {
		var err error

		result, err = c.provider.ResolveTrack(ctx, id, identity)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// OpenAudioStream opens the audio stream with telemetry. Only opening is
// measured; reading the body is accounted for by the downloader.
func (c *InstrumentedProvider) OpenAudioStream(ctx context.Context, id string) (io.ReadCloser, int64, error) {
	var (
		body io.ReadCloser
		size int64
	)

	err := c.telemetry.InstrumentProviderOperation(ctx, Anonymous.String(), "open_stream", func(ctx context.Context) error {
		var err error

		body, size, err = c.provider.OpenAudioStream(ctx, id)

		return err
	})
	if err != nil {
		return nil, 0, err
	}

	return body, size, nil
}
