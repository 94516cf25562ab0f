package playlist

import (
	"context"
	"io"
	"strings"
)

// Identity selects the provider session a lookup runs under.
type Identity int

const (
	Authenticated Identity = iota
	Anonymous
)

func (i Identity) String() string {
	switch i {
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// PlaylistInfo is the provider view of a playlist.
type PlaylistInfo struct {
	Title string
	Items []TrackInfo
}

// TrackInfo is the provider view of a single track.
type TrackInfo struct {
	ID    string
	Title string
}

type MetadataClient interface {
	ResolvePlaylist(ctx context.Context, id string, identity Identity) (*PlaylistInfo, error)
	ResolveTrack(ctx context.Context, id string, identity Identity) (*TrackInfo, error)
}

type StreamClient interface {
	// OpenAudioStream opens the best audio-only stream for a track. The returned size is
	// the content length when the provider reports it, 0 otherwise.
	OpenAudioStream(ctx context.Context, id string) (io.ReadCloser, int64, error)
}

type Provider interface {
	MetadataClient
	StreamClient
}

type Track struct {
	ID    string
	Title string
}

// Playable reports whether the track carries a provider content id.
func (t Track) Playable() bool {
	return strings.TrimSpace(t.ID) != ""
}

type Playlist struct {
	ID     string
	Title  string
	Tracks []Track
}

// Len returns the number of tracks, including the ones without an id.
func (p *Playlist) Len() int {
	return len(p.Tracks)
}
