package downloader

import (
	"path/filepath"
	"strconv"

	"github.com/italolelis/playlist_archiver/internal/playlist"
	"github.com/italolelis/playlist_archiver/internal/workdir"
	"github.com/samber/lo"
)

const trackExt = ".mp3"

// Outcome is the terminal state of a Job.
type Outcome int

const (
	Pending Outcome = iota
	Written
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Written:
		return "written"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Job is one track download. Ordinal is 1-based and fixed at planning time,
// so file names do not depend on completion order.
type Job struct {
	Track   playlist.Track
	Ordinal int
	Path    string
	Outcome Outcome
	Err     error
	Bytes   int64
}

// FilterPlayable drops tracks without an id. Applying it twice is the same as applying it once.
func FilterPlayable(tracks []playlist.Track) []playlist.Track {
	return lo.Filter(tracks, func(t playlist.Track, _ int) bool {
		return t.Playable()
	})
}

// PlanJobs filters the tracks and assigns ordinals and target paths in dir.
func PlanJobs(tracks []playlist.Track, dir string) []*Job {
	playable := FilterPlayable(tracks)

	return lo.Map(playable, func(t playlist.Track, i int) *Job {
		ordinal := i + 1

		return &Job{
			Track:   t,
			Ordinal: ordinal,
			Path:    filepath.Join(dir, FileName(ordinal, t.Title)),
		}
	})
}

// FileName is the on-disk name of a track: "<ordinal> <sanitized title>.mp3".
// Long titles are shortened so the whole name fits in workdir.MaxNameBytes.
func FileName(ordinal int, title string) string {
	prefix := strconv.Itoa(ordinal) + " "

	return prefix + workdir.SanitizeNameMax(title, workdir.MaxNameBytes-len(prefix)-len(trackExt)) + trackExt
}

// Report summarizes a Download run. Jobs are in ordinal order.
type Report struct {
	Jobs    []*Job
	Written int
	Failed  int
}

// Total returns the number of planned jobs.
func (r *Report) Total() int {
	return len(r.Jobs)
}

// FailedRatio returns Failed/Total, 0 for an empty report.
func (r *Report) FailedRatio() float64 {
	if len(r.Jobs) == 0 {
		return 0
	}

	return float64(r.Failed) / float64(len(r.Jobs))
}

// Errors returns the per-track failures in ordinal order.
func (r *Report) Errors() []error {
	return lo.FilterMap(r.Jobs, func(j *Job, _ int) (error, bool) {
		return j.Err, j.Outcome == Failed && j.Err != nil
	})
}
