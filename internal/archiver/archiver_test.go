package archiver

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/italolelis/playlist_archiver/internal/playlist"
	"github.com/italolelis/playlist_archiver/internal/workdir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess stands in for the zip and 7z binaries. It is not a real test.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]

			break
		}
	}

	if os.Getenv("HELPER_MODE") == "fail" {
		// leave a partial archive behind, like a tool dying mid-write
		_ = os.WriteFile(args[len(args)-2], []byte("partial"), 0o644)

		fmt.Fprintln(os.Stderr, "zip error: nothing to do")
		os.Exit(12)
	}

	entries, _ := os.ReadDir(".")

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	content := args[0] + " " + strings.Join(args[1:len(args)-2], " ") + "\n" + strings.Join(names, "\n")
	if err := os.WriteFile(args[len(args)-2], []byte(content), 0o644); err != nil {
		os.Exit(2)
	}

	os.Exit(0)
}

func helperCommand(mode string) func(ctx context.Context, name string, args ...string) *exec.Cmd {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "HELPER_MODE="+mode)

		return cmd
	}
}

func newFolder(t *testing.T, files ...string) *workdir.Folder {
	t.Helper()

	f := workdir.NewWorkspace(t.TempDir()).NewFolder("Road Trip")
	require.NoError(t, f.Create())

	for _, name := range files {
		require.NoError(t, os.WriteFile(filepath.Join(f.Path, name), []byte("audio "+name), 0o644))
	}

	return f
}

func zipNames(t *testing.T, path string) []string {
	t.Helper()

	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}

	sort.Strings(names)

	return names
}

func TestArchive_ExecZip(t *testing.T) {
	c, err := NewExecCompressor(FormatZip, "")
	require.NoError(t, err)

	c.commandContext = helperCommand("ok")

	folder := newFolder(t, "1 a.mp3", "2 b.mp3")
	a := NewArchiver(t.TempDir(), c, nil)

	archive, err := a.Archive(context.Background(), folder)
	require.NoError(t, err)

	assert.Equal(t, folder.UniqueName+".zip", archive.UniqueName)
	assert.Equal(t, "Road Trip.zip", archive.DisplayName)

	b, err := os.ReadFile(archive.Path)
	require.NoError(t, err)
	assert.Equal(t, "zip -r -q\n1 a.mp3\n2 b.mp3", string(b))

	_, err = os.Stat(folder.Path)
	assert.True(t, os.IsNotExist(err), "work folder must be removed after packaging")
}

func TestArchive_Exec7z(t *testing.T) {
	c, err := NewExecCompressor(FormatSevenZip, "/opt/bin/7zz")
	require.NoError(t, err)

	c.commandContext = helperCommand("ok")

	archive, err := NewArchiver(t.TempDir(), c, nil).Archive(context.Background(), newFolder(t, "1 a.mp3"))
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(archive.Path, ".7z"))

	b, err := os.ReadFile(archive.Path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "/opt/bin/7zz a -y -bd\n"))
}

func TestArchive_CompressorFailure(t *testing.T) {
	c, err := NewExecCompressor(FormatZip, "")
	require.NoError(t, err)

	c.commandContext = helperCommand("fail")

	dir := t.TempDir()
	folder := newFolder(t, "1 a.mp3")

	_, err = NewArchiver(dir, c, nil).Archive(context.Background(), folder)

	var pkgErr *playlist.PackagingError
	require.ErrorAs(t, err, &pkgErr)
	assert.Contains(t, err.Error(), "nothing to do")

	entries, rerr := os.ReadDir(dir)
	require.NoError(t, rerr)
	assert.Empty(t, entries, "partial archive must be removed")

	_, err = os.Stat(folder.Path)
	assert.NoError(t, err, "work folder is kept for inspection")
}

func TestArchive_EmptyFolderUsesBuiltinZip(t *testing.T) {
	c, err := NewExecCompressor(FormatZip, "")
	require.NoError(t, err)

	// the helper would fail, proving the fallback ran instead
	c.commandContext = helperCommand("fail")

	folder := newFolder(t)

	archive, err := NewArchiver(t.TempDir(), c, nil).Archive(context.Background(), folder)
	require.NoError(t, err)

	assert.Empty(t, zipNames(t, archive.Path))

	_, err = os.Stat(folder.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestArchive_Builtin(t *testing.T) {
	c, err := NewCompressor(FormatBuiltin, "")
	require.NoError(t, err)

	folder := newFolder(t, "1 a.mp3", "2 b.mp3")

	archive, err := NewArchiver(t.TempDir(), c, nil).Archive(context.Background(), folder)
	require.NoError(t, err)

	assert.Equal(t, []string{"1 a.mp3", "2 b.mp3"}, zipNames(t, archive.Path))
}

func TestNewCompressor_Unknown(t *testing.T) {
	_, err := NewCompressor("rar", "")
	assert.Error(t, err)
}

func TestArchive_RemoveOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.zip")
	require.NoError(t, os.WriteFile(path, []byte("z"), 0o644))

	a := &Archive{Path: path}

	require.NoError(t, a.Remove())
	require.NoError(t, a.Remove())

	// a file recreated at the same path is not touched by later calls
	require.NoError(t, os.WriteFile(path, []byte("z"), 0o644))
	require.NoError(t, a.Remove())

	_, err := os.Stat(path)
	assert.NoError(t, err)
}
