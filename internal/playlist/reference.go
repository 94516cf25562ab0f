package playlist

import (
	"net/url"
	"regexp"
	"strings"
)

// Query parameter keys carrying ids in provider URLs.
const (
	PlaylistParam = "list"
	TrackParam    = "v"
)

const shortLinkHost = "youtu.be"

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Reference is a parsed playlist or track reference. When both ids are set the
// playlist takes precedence. A bare id is parsed as a playlist id with Bare
// set, since it may also name a single track.
type Reference struct {
	PlaylistID string
	TrackID    string
	Bare       bool
}

// IsSingleTrack reports whether the reference points to one track only.
func (r Reference) IsSingleTrack() bool {
	return r.PlaylistID == "" && r.TrackID != ""
}

// ParseReference extracts ids from a provider URL or a bare playlist id.
func ParseReference(raw string) (Reference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Reference{}, &InvalidReferenceError{Reference: raw, Reason: "reference is empty"}
	}

	if !looksLikeURL(raw) {
		if !idPattern.MatchString(raw) {
			return Reference{}, &InvalidReferenceError{Reference: raw, Reason: "id contains invalid characters"}
		}

		return Reference{PlaylistID: raw, Bare: true}, nil
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Reference{}, &InvalidReferenceError{Reference: raw, Reason: "malformed url", Err: err}
	}

	q := u.Query()
	ref := Reference{
		PlaylistID: strings.TrimSpace(q.Get(PlaylistParam)),
		TrackID:    strings.TrimSpace(q.Get(TrackParam)),
	}

	if ref.TrackID == "" && strings.EqualFold(u.Hostname(), shortLinkHost) {
		ref.TrackID = strings.Trim(u.Path, "/")
	}

	for _, id := range []string{ref.PlaylistID, ref.TrackID} {
		if id != "" && !idPattern.MatchString(id) {
			return Reference{}, &InvalidReferenceError{Reference: raw, Reason: "id contains invalid characters"}
		}
	}

	if ref.PlaylistID == "" && ref.TrackID == "" {
		return Reference{}, &InvalidReferenceError{
			Reference: raw,
			Reason:    "url has no playlist or track id, copy the url while the playlist is playing",
		}
	}

	return ref, nil
}

func looksLikeURL(s string) bool {
	return strings.Contains(s, "://") || strings.ContainsAny(s, "/?=.")
}
