package pipeline

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/italolelis/playlist_archiver/internal/archiver"
	"github.com/italolelis/playlist_archiver/internal/delivery"
	"github.com/italolelis/playlist_archiver/internal/downloader"
	"github.com/italolelis/playlist_archiver/internal/playlist"
	"github.com/italolelis/playlist_archiver/internal/workdir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider serves one playlist and fails streams listed in broken.
type fakeProvider struct {
	title  string
	items  []playlist.TrackInfo
	broken map[string]bool
}

func (f *fakeProvider) ResolvePlaylist(context.Context, string, playlist.Identity) (*playlist.PlaylistInfo, error) {
	return &playlist.PlaylistInfo{Title: f.title, Items: f.items}, nil
}

func (f *fakeProvider) ResolveTrack(_ context.Context, id string, _ playlist.Identity) (*playlist.TrackInfo, error) {
	return &playlist.TrackInfo{ID: id, Title: "single " + id}, nil
}

func (f *fakeProvider) OpenAudioStream(_ context.Context, id string) (io.ReadCloser, int64, error) {
	if f.broken[id] {
		return nil, 0, errors.New("stream unavailable")
	}

	body := "audio:" + id

	return io.NopCloser(strings.NewReader(body)), int64(len(body)), nil
}

func items(n int) []playlist.TrackInfo {
	out := make([]playlist.TrackInfo, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, playlist.TrackInfo{ID: fmt.Sprintf("v%02d", i), Title: fmt.Sprintf("Track %d", i)})
	}

	return out
}

type env struct {
	pipeline   *Pipeline
	workRoot   string
	archiveDir string
}

func newEnv(t *testing.T, provider *fakeProvider) *env {
	t.Helper()

	workRoot := t.TempDir()
	archiveDir := t.TempDir()

	p := New(
		playlist.NewResolver(provider, nil),
		workdir.NewWorkspace(workRoot),
		downloader.NewDownloader(provider, nil, downloader.Options{BatchSize: 10}),
		archiver.NewArchiver(archiveDir, archiver.NewZipCompressor(), nil),
		DefaultMaxFailedRatio,
		nil,
	)
	t.Cleanup(p.Close)

	return &env{pipeline: p, workRoot: workRoot, archiveDir: archiveDir}
}

func dirEmpty(t *testing.T, dir string) bool {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	return len(entries) == 0
}

func TestRun_EndToEndTwelveTracks(t *testing.T) {
	e := newEnv(t, &fakeProvider{title: "Road: Trip", items: items(12)})

	archive, err := e.pipeline.Run(context.Background(), "https://www.youtube.com/playlist?list=PLroad")
	require.NoError(t, err)

	assert.Equal(t, "Road_ Trip.zip", archive.DisplayName)
	assert.True(t, dirEmpty(t, e.workRoot), "work folder must be gone after packaging")

	r, err := zip.OpenReader(archive.Path)
	require.NoError(t, err)

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	require.NoError(t, r.Close())

	sort.Strings(names)
	assert.Len(t, names, 12)
	assert.Contains(t, names, "1 Track 1.mp3")
	assert.Contains(t, names, "12 Track 12.mp3")

	rec := httptest.NewRecorder()
	require.NoError(t, delivery.NewCoordinator(nil).Deliver(context.Background(), rec, archive))

	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Road_ Trip.zip")
	assert.True(t, dirEmpty(t, e.archiveDir), "archive must be removed after delivery")

	select {
	case ev := <-e.pipeline.OnJobFinished:
		assert.Equal(t, "PLroad", ev.PlaylistID)
		assert.Equal(t, 12, ev.Written)
		assert.Equal(t, 0, ev.Failed)
	default:
		t.Fatal("expected a job finished event")
	}
}

func TestRun_PartialFailureWithinYield(t *testing.T) {
	e := newEnv(t, &fakeProvider{title: "Mix", items: items(4), broken: map[string]bool{"v02": true}})

	archive, err := e.pipeline.Run(context.Background(), "PLmix")
	require.NoError(t, err)

	r, err := zip.OpenReader(archive.Path)
	require.NoError(t, err)
	defer r.Close()

	assert.Len(t, r.File, 3)
}

func TestRun_InsufficientYield(t *testing.T) {
	broken := map[string]bool{"v01": true, "v02": true, "v03": true}
	e := newEnv(t, &fakeProvider{title: "Mostly Gone", items: items(4), broken: broken})

	_, err := e.pipeline.Run(context.Background(), "PLgone")

	var yieldErr *playlist.InsufficientYieldError
	require.ErrorAs(t, err, &yieldErr)
	assert.Equal(t, 3, yieldErr.Failed)
	assert.Equal(t, 4, yieldErr.Total)

	assert.True(t, dirEmpty(t, e.workRoot))
	assert.True(t, dirEmpty(t, e.archiveDir))

	ev := <-e.pipeline.OnJobFailed
	assert.Equal(t, "PLgone", ev.PlaylistID)
	assert.ErrorAs(t, ev.Err, &yieldErr)
}

func TestRun_EmptyPlaylistProducesEmptyArchive(t *testing.T) {
	e := newEnv(t, &fakeProvider{title: "Nothing Here"})

	archive, err := e.pipeline.Run(context.Background(), "PLempty")
	require.NoError(t, err)

	r, err := zip.OpenReader(archive.Path)
	require.NoError(t, err)
	defer r.Close()

	assert.Empty(t, r.File)
}

func TestRun_ResolveErrorsPropagate(t *testing.T) {
	e := newEnv(t, &fakeProvider{})

	_, err := e.pipeline.Run(context.Background(), "https://www.youtube.com/watch?v=x&list=RDx")

	var unsupported *playlist.UnsupportedPlaylistKindError
	assert.ErrorAs(t, err, &unsupported)
	assert.True(t, dirEmpty(t, e.workRoot))
}

func TestRun_EventsNeverBlock(t *testing.T) {
	e := newEnv(t, &fakeProvider{})

	for i := 0; i < eventBuffer+5; i++ {
		_, _ = e.pipeline.Run(context.Background(), "!!")
	}

	assert.Len(t, e.pipeline.OnJobFailed, eventBuffer)
}

func TestRun_AfterCloseDropsEvents(t *testing.T) {
	e := newEnv(t, &fakeProvider{title: "Late", items: items(2)})

	e.pipeline.Close()

	// a job still in flight during shutdown
	archive, err := e.pipeline.Run(context.Background(), "PLlate")
	require.NoError(t, err)
	assert.FileExists(t, archive.Path)

	_, err = e.pipeline.Run(context.Background(), "!!")
	require.Error(t, err)

	_, open := <-e.pipeline.OnJobFinished
	assert.False(t, open)
}
