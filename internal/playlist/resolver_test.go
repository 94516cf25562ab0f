package playlist

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMetadataClient answers lookups from per-identity tables.
type fakeMetadataClient struct {
	mu        sync.Mutex
	playlists map[Identity]*PlaylistInfo
	tracks    map[Identity]*TrackInfo
	calls     []Identity
}

func (f *fakeMetadataClient) ResolvePlaylist(_ context.Context, _ string, identity Identity) (*PlaylistInfo, error) {
	f.mu.Lock()
	f.calls = append(f.calls, identity)
	f.mu.Unlock()

	if info, ok := f.playlists[identity]; ok {
		return info, nil
	}

	return nil, errors.New(identity.String() + " lookup failed")
}

func (f *fakeMetadataClient) ResolveTrack(_ context.Context, _ string, identity Identity) (*TrackInfo, error) {
	f.mu.Lock()
	f.calls = append(f.calls, identity)
	f.mu.Unlock()

	if info, ok := f.tracks[identity]; ok {
		return info, nil
	}

	return nil, errors.New(identity.String() + " lookup failed")
}

func TestResolver_DualLookupMerge(t *testing.T) {
	client := &fakeMetadataClient{
		playlists: map[Identity]*PlaylistInfo{
			Authenticated: {
				Title: "auth title",
				Items: []TrackInfo{
					{ID: "a", Title: "A"},
					{ID: "", Title: "private"},
					{ID: "b", Title: "B"},
					{ID: "a", Title: "A again"},
					{ID: "c", Title: "C"},
				},
			},
			Anonymous: {
				Title: "Public Title",
				Items: []TrackInfo{{ID: "a", Title: "A"}},
			},
		},
	}

	pl, err := NewResolver(client, nil).Resolve(context.Background(), "https://www.youtube.com/playlist?list=PL123")
	require.NoError(t, err)

	assert.Equal(t, "PL123", pl.ID)
	assert.Equal(t, "Public Title", pl.Title)
	assert.Equal(t, []Track{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}, {ID: "c", Title: "C"}}, pl.Tracks)
	assert.Len(t, client.calls, 2)
}

func TestResolver_AuthenticatedFailureFallsBackToAnonymous(t *testing.T) {
	client := &fakeMetadataClient{
		playlists: map[Identity]*PlaylistInfo{
			Anonymous: {Title: "Public", Items: []TrackInfo{{ID: "x", Title: "X"}}},
		},
	}

	pl, err := NewResolver(client, nil).Resolve(context.Background(), "PLpublic")
	require.NoError(t, err)

	assert.Equal(t, "Public", pl.Title)
	assert.Equal(t, []Track{{ID: "x", Title: "X"}}, pl.Tracks)
}

func TestResolver_AnonymousFailureKeepsAuthenticatedTitle(t *testing.T) {
	client := &fakeMetadataClient{
		playlists: map[Identity]*PlaylistInfo{
			Authenticated: {Title: "Private Mix", Items: []TrackInfo{{ID: "x", Title: "X"}}},
		},
	}

	pl, err := NewResolver(client, nil).Resolve(context.Background(), "PLprivate")
	require.NoError(t, err)

	assert.Equal(t, "Private Mix", pl.Title)
	assert.Len(t, pl.Tracks, 1)
}

func TestResolver_BothLookupsFail(t *testing.T) {
	client := &fakeMetadataClient{}

	_, err := NewResolver(client, nil).Resolve(context.Background(), "PLgone")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "playlist", nf.Kind)
	assert.Equal(t, "PLgone", nf.ID)
}

func TestResolver_ReservedPrefixNeverCallsProvider(t *testing.T) {
	client := &fakeMetadataClient{}

	_, err := NewResolver(client, []string{"RD"}).Resolve(context.Background(), "https://www.youtube.com/watch?v=abc&list=RDabc")

	var unsupported *UnsupportedPlaylistKindError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "RDabc", unsupported.PlaylistID)
	assert.Empty(t, client.calls)
}

func TestResolver_InvalidReference(t *testing.T) {
	client := &fakeMetadataClient{}

	_, err := NewResolver(client, nil).Resolve(context.Background(), "   ")

	var invalid *InvalidReferenceError
	require.ErrorAs(t, err, &invalid)
	assert.Empty(t, client.calls)
}

func TestResolver_SingleTrack(t *testing.T) {
	client := &fakeMetadataClient{
		tracks: map[Identity]*TrackInfo{
			Authenticated: {ID: "vid1", Title: "Members Only"},
		},
	}

	pl, err := NewResolver(client, nil).Resolve(context.Background(), "https://youtu.be/vid1")
	require.NoError(t, err)

	assert.Equal(t, "Members Only", pl.Title)
	assert.Equal(t, []Track{{ID: "vid1", Title: "Members Only"}}, pl.Tracks)
}

func TestResolver_SingleTrackNotFound(t *testing.T) {
	_, err := NewResolver(&fakeMetadataClient{}, nil).Resolve(context.Background(), "https://www.youtube.com/watch?v=nope")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "track", nf.Kind)
}

func TestResolver_BareTrackIDFallsBackToTrack(t *testing.T) {
	client := &fakeMetadataClient{
		tracks: map[Identity]*TrackInfo{
			Anonymous: {ID: "kJQP7kiw5Fk", Title: "Despacito"},
		},
	}

	pl, err := NewResolver(client, nil).Resolve(context.Background(), "kJQP7kiw5Fk")
	require.NoError(t, err)

	assert.Equal(t, "Despacito", pl.Title)
	assert.Equal(t, []Track{{ID: "kJQP7kiw5Fk", Title: "Despacito"}}, pl.Tracks)
	// two playlist lookups, then two track lookups
	assert.Len(t, client.calls, 4)
}

func TestResolver_PlaylistURLDoesNotFallBackToTrack(t *testing.T) {
	client := &fakeMetadataClient{
		tracks: map[Identity]*TrackInfo{
			Anonymous: {ID: "PLgone", Title: "should not be used"},
		},
	}

	_, err := NewResolver(client, nil).Resolve(context.Background(), "https://www.youtube.com/playlist?list=PLgone")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "playlist", nf.Kind)
	assert.Len(t, client.calls, 2)
}

func TestResolver_EmptyPlaylist(t *testing.T) {
	client := &fakeMetadataClient{
		playlists: map[Identity]*PlaylistInfo{
			Authenticated: {Title: "Empty"},
			Anonymous:     {Title: "Empty"},
		},
	}

	pl, err := NewResolver(client, nil).Resolve(context.Background(), "PLempty")
	require.NoError(t, err)

	assert.Equal(t, 0, pl.Len())
}
