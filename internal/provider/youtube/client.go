// Package youtube adapts github.com/kkdai/youtube to the playlist provider contract.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/italolelis/playlist_archiver/internal/logctx"
	"github.com/italolelis/playlist_archiver/internal/playlist"
	yt "github.com/kkdai/youtube/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

const playlistURL = "https://www.youtube.com/playlist"

var errNoAudioFormat = errors.New("no audio-only format available")

var _ playlist.Provider = (*Client)(nil)

// Client talks to YouTube under two identities. The authenticated identity
// signs requests with tokens from the given source; the anonymous one does not.
type Client struct {
	authenticated *yt.Client
	anonymous     *yt.Client
}

// NewClient builds both underlying clients. timeout bounds metadata requests;
// zero means no timeout, which is what long audio streams need.
func NewClient(tokens oauth2.TokenSource, timeout time.Duration) *Client {
	base := otelhttp.NewTransport(http.DefaultTransport)

	return &Client{
		authenticated: &yt.Client{
			HTTPClient: &http.Client{
				Timeout:   timeout,
				Transport: &oauth2.Transport{Source: tokens, Base: base},
			},
		},
		anonymous: &yt.Client{
			HTTPClient: &http.Client{Timeout: timeout, Transport: base},
		},
	}
}

func (c *Client) client(identity playlist.Identity) *yt.Client {
	if identity == playlist.Authenticated {
		return c.authenticated
	}

	return c.anonymous
}

// ResolvePlaylist lists a playlist under the given identity.
func (c *Client) ResolvePlaylist(ctx context.Context, id string, identity playlist.Identity) (*playlist.PlaylistInfo, error) {
	pl, err := c.client(identity).GetPlaylistContext(ctx, PlaylistURL(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist %s: %w", id, err)
	}

	info := &playlist.PlaylistInfo{
		Title: pl.Title,
		Items: make([]playlist.TrackInfo, 0, len(pl.Videos)),
	}

	for _, v := range pl.Videos {
		if v == nil {
			continue
		}

		info.Items = append(info.Items, playlist.TrackInfo{ID: v.ID, Title: v.Title})
	}

	return info, nil
}

// ResolveTrack looks up a single video under the given identity.
func (c *Client) ResolveTrack(ctx context.Context, id string, identity playlist.Identity) (*playlist.TrackInfo, error) {
	v, err := c.client(identity).GetVideoContext(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get video %s: %w", id, err)
	}

	return &playlist.TrackInfo{ID: v.ID, Title: v.Title}, nil
}

// OpenAudioStream opens the highest bitrate audio-only stream. The anonymous
// identity is tried first; members-only and private videos need the session.
func (c *Client) OpenAudioStream(ctx context.Context, id string) (io.ReadCloser, int64, error) {
	body, size, err := c.openStream(ctx, c.anonymous, id)
	if err == nil {
		return body, size, nil
	}

	logctx.LoggerFromContext(ctx).Debug("anonymous stream failed, retrying with session", "track_id", id, "err", err)

	body, size, authErr := c.openStream(ctx, c.authenticated, id)
	if authErr != nil {
		return nil, 0, errors.Join(err, authErr)
	}

	return body, size, nil
}

func (c *Client) openStream(ctx context.Context, client *yt.Client, id string) (io.ReadCloser, int64, error) {
	video, err := client.GetVideoContext(ctx, id)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get video %s: %w", id, err)
	}

	format, err := BestAudioFormat(video.Formats)
	if err != nil {
		return nil, 0, fmt.Errorf("video %s: %w", id, err)
	}

	body, size, err := client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open stream for %s: %w", id, err)
	}

	return body, size, nil
}

// BestAudioFormat picks the audio-only format with the highest bitrate.
func BestAudioFormat(formats yt.FormatList) (*yt.Format, error) {
	var audio []*yt.Format

	for i := range formats {
		f := &formats[i]
		if strings.HasPrefix(f.MimeType, "audio/") {
			audio = append(audio, f)
		}
	}

	if len(audio) == 0 {
		return nil, errNoAudioFormat
	}

	sort.SliceStable(audio, func(i, j int) bool {
		if audio[i].Bitrate != audio[j].Bitrate {
			return audio[i].Bitrate > audio[j].Bitrate
		}

		return audio[i].AverageBitrate > audio[j].AverageBitrate
	})

	return audio[0], nil
}

// PlaylistURL is the canonical playlist page for id.
func PlaylistURL(id string) string {
	return playlistURL + "?" + url.Values{"list": {id}}.Encode()
}
