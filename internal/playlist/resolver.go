package playlist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/italolelis/playlist_archiver/internal/logctx"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// DefaultReservedPrefixes are id prefixes of provider-generated lists (mixes, radio).
var DefaultReservedPrefixes = []string{"RD"}

// Resolver turns a reference into an ordered, deduplicated Playlist.
type Resolver struct {
	client           MetadataClient
	reservedPrefixes []string
}

func NewResolver(client MetadataClient, reservedPrefixes []string) *Resolver {
	if len(reservedPrefixes) == 0 {
		reservedPrefixes = DefaultReservedPrefixes
	}

	return &Resolver{
		client:           client,
		reservedPrefixes: reservedPrefixes,
	}
}

// Resolve parses the reference and looks it up under both identities.
func (r *Resolver) Resolve(ctx context.Context, reference string) (*Playlist, error) {
	ref, err := ParseReference(reference)
	if err != nil {
		return nil, err
	}

	if ref.IsSingleTrack() {
		return r.resolveTrack(ctx, ref.TrackID)
	}

	if err := r.checkKind(ref.PlaylistID); err != nil {
		return nil, err
	}

	pl, err := r.resolvePlaylist(ctx, ref.PlaylistID)

	var nf *NotFoundError
	if err != nil && ref.Bare && errors.As(err, &nf) {
		logctx.LoggerFromContext(ctx).Info("bare id is not a playlist, trying it as a track", "id", ref.PlaylistID)

		if track, trackErr := r.resolveTrack(ctx, ref.PlaylistID); trackErr == nil {
			return track, nil
		}

		return nil, err
	}

	return pl, err
}

func (r *Resolver) checkKind(playlistID string) error {
	for _, prefix := range r.reservedPrefixes {
		if prefix != "" && strings.HasPrefix(playlistID, prefix) {
			return &UnsupportedPlaylistKindError{PlaylistID: playlistID, Prefix: prefix}
		}
	}

	return nil
}

func (r *Resolver) resolvePlaylist(ctx context.Context, id string) (*Playlist, error) {
	logger := logctx.LoggerFromContext(ctx).With("playlist_id", id)

	var (
		authInfo, anonInfo *PlaylistInfo
		authErr, anonErr   error
		g                  errgroup.Group
	)

	// Both lookups always settle; one failing must not cancel the other.
	g.Go(func() error {
		authInfo, authErr = r.client.ResolvePlaylist(ctx, id, Authenticated)

		return nil
	})
	g.Go(func() error {
		anonInfo, anonErr = r.client.ResolvePlaylist(ctx, id, Anonymous)

		return nil
	})
	_ = g.Wait()

	if authErr != nil && anonErr != nil {
		logger.Warn("playlist lookup failed under both identities", "auth_err", authErr, "anon_err", anonErr)

		return nil, &NotFoundError{Kind: "playlist", ID: id, Err: errors.Join(authErr, anonErr)}
	}

	items := []TrackInfo(nil)
	title := ""

	if authErr == nil {
		items = authInfo.Items
		title = authInfo.Title
	} else {
		logger.Warn("authenticated playlist lookup failed, using anonymous listing", "err", authErr)

		items = anonInfo.Items
	}

	if anonErr == nil && anonInfo.Title != "" {
		title = anonInfo.Title
	} else if anonErr != nil {
		logger.Debug("anonymous playlist lookup failed, using authenticated title", "err", anonErr)
	}

	pl := &Playlist{
		ID:     id,
		Title:  title,
		Tracks: toTracks(items),
	}

	logger.Info("playlist resolved", "title", pl.Title, "track_count", len(pl.Tracks), "listed", len(items))

	return pl, nil
}

func (r *Resolver) resolveTrack(ctx context.Context, id string) (*Playlist, error) {
	logger := logctx.LoggerFromContext(ctx).With("track_id", id)

	var (
		authInfo, anonInfo *TrackInfo
		authErr, anonErr   error
		g                  errgroup.Group
	)

	g.Go(func() error {
		authInfo, authErr = r.client.ResolveTrack(ctx, id, Authenticated)

		return nil
	})
	g.Go(func() error {
		anonInfo, anonErr = r.client.ResolveTrack(ctx, id, Anonymous)

		return nil
	})
	_ = g.Wait()

	var title string

	switch {
	case anonErr == nil:
		title = anonInfo.Title
	case authErr == nil:
		title = authInfo.Title
	default:
		return nil, &NotFoundError{Kind: "track", ID: id, Err: errors.Join(authErr, anonErr)}
	}

	logger.Info("single track resolved", "title", title)

	return &Playlist{
		ID:     id,
		Title:  title,
		Tracks: []Track{{ID: id, Title: title}},
	}, nil
}

// toTracks maps provider items to tracks, dropping entries without an id and
// repeated ids. The first occurrence wins so provider order is preserved.
func toTracks(items []TrackInfo) []Track {
	tracks := lo.FilterMap(items, func(item TrackInfo, _ int) (Track, bool) {
		t := Track{ID: strings.TrimSpace(item.ID), Title: item.Title}

		return t, t.Playable()
	})

	return lo.UniqBy(tracks, func(t Track) string {
		return t.ID
	})
}

// String implements fmt.Stringer for log output.
func (p *Playlist) String() string {
	return fmt.Sprintf("%s (%s, %d tracks)", p.Title, p.ID, len(p.Tracks))
}
