package youtube

import (
	"context"
	"testing"

	"github.com/italolelis/playlist_archiver/internal/playlist"
	yt "github.com/kkdai/youtube/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestBestAudioFormat(t *testing.T) {
	formats := yt.FormatList{
		{ItagNo: 18, MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, Bitrate: 500000, AudioChannels: 2},
		{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, Bitrate: 130000, AudioChannels: 2},
		{ItagNo: 251, MimeType: `audio/webm; codecs="opus"`, Bitrate: 160000, AudioChannels: 2},
		{ItagNo: 250, MimeType: `audio/webm; codecs="opus"`, Bitrate: 70000, AudioChannels: 2},
	}

	f, err := BestAudioFormat(formats)
	require.NoError(t, err)

	assert.Equal(t, 251, f.ItagNo)
}

func TestBestAudioFormat_TieBreaksOnAverage(t *testing.T) {
	formats := yt.FormatList{
		{ItagNo: 1, MimeType: "audio/mp4", Bitrate: 100, AverageBitrate: 90},
		{ItagNo: 2, MimeType: "audio/mp4", Bitrate: 100, AverageBitrate: 95},
	}

	f, err := BestAudioFormat(formats)
	require.NoError(t, err)

	assert.Equal(t, 2, f.ItagNo)
}

func TestBestAudioFormat_NoAudio(t *testing.T) {
	_, err := BestAudioFormat(yt.FormatList{{ItagNo: 22, MimeType: "video/mp4"}})

	assert.ErrorIs(t, err, errNoAudioFormat)
}

func TestPlaylistURL(t *testing.T) {
	assert.Equal(t, "https://www.youtube.com/playlist?list=PLabc_-1", PlaylistURL("PLabc_-1"))
}

func TestClient_IdentitySelection(t *testing.T) {
	c := NewClient(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "t"}), 0)

	assert.Same(t, c.authenticated, c.client(playlist.Authenticated))
	assert.Same(t, c.anonymous, c.client(playlist.Anonymous))

	_, ok := c.authenticated.HTTPClient.Transport.(*oauth2.Transport)
	assert.True(t, ok, "authenticated client must sign requests")
}

func TestClient_ContextCancelled(t *testing.T) {
	c := NewClient(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "t"}), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ResolveTrack(ctx, "kJQP7kiw5Fk", playlist.Anonymous)
	assert.Error(t, err)
}
