package playlist

import "fmt"

// InvalidReferenceError is returned when a playlist or track reference is missing or malformed.
type InvalidReferenceError struct {
	Reference string // The reference as supplied by the caller
	Reason    string // Human-readable explanation of why it was rejected
	Err       error  // Underlying error, if any
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("invalid reference %q: %s", e.Reference, e.Reason)
}

func (e *InvalidReferenceError) Unwrap() error {
	return e.Err
}

// UnsupportedPlaylistKindError rejects provider-generated playlists (mixes, radio)
// that cannot be listed as regular playlists.
type UnsupportedPlaylistKindError struct {
	PlaylistID string
	Prefix     string // The reserved prefix the id matched
}

func (e *UnsupportedPlaylistKindError) Error() string {
	return fmt.Sprintf("playlist %s is provider generated (prefix %q) and cannot be downloaded", e.PlaylistID, e.Prefix)
}

// NotFoundError represents a provider lookup that failed under every identity.
type NotFoundError struct {
	Kind string // "playlist" or "track"
	ID   string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found or not accessible", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// TrackDownloadError records a single failed track. It never fails a job on its own.
type TrackDownloadError struct {
	TrackID string
	Ordinal int
	Err     error
}

func (e *TrackDownloadError) Error() string {
	return fmt.Sprintf("track %d (%s) failed: %v", e.Ordinal, e.TrackID, e.Err)
}

func (e *TrackDownloadError) Unwrap() error {
	return e.Err
}

// PackagingError represents a failure of the compression step.
type PackagingError struct {
	Source string // Work folder being packaged
	Err    error
}

func (e *PackagingError) Error() string {
	return fmt.Sprintf("failed to package %s: %v", e.Source, e.Err)
}

func (e *PackagingError) Unwrap() error {
	return e.Err
}

// DeliveryError represents a failed transfer of an archive to the caller.
// The archive is left on disk.
type DeliveryError struct {
	Archive string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("failed to deliver %s: %v", e.Archive, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// ConfigurationError represents missing or invalid settings needed to build a client.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Setting, e.Reason)
}

// InsufficientYieldError fails a job when too many of its tracks could not be downloaded.
type InsufficientYieldError struct {
	Failed   int
	Total    int
	MaxRatio float64
}

func (e *InsufficientYieldError) Error() string {
	return fmt.Sprintf("%d of %d tracks failed, above the allowed ratio %.2f", e.Failed, e.Total, e.MaxRatio)
}
