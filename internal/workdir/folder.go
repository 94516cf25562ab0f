package workdir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Separator joins the sanitized title and the uniqueness token in physical names.
const Separator = " --- "

const (
	uuidLen = 36
	// ArchiveExtReserve is left free in unique names for the archive extension.
	ArchiveExtReserve = 8

	uniqueTitleBytes = MaxNameBytes - len(Separator) - uuidLen - ArchiveExtReserve
)

// Workspace hands out per-job folders under a root directory.
type Workspace struct {
	root string
}

func NewWorkspace(root string) *Workspace {
	return &Workspace{root: root}
}

// Root returns the directory folders are created in.
func (w *Workspace) Root() string {
	return w.root
}

// Folder is a job's working directory. UniqueName is the on-disk name,
// DisplayName is what the user sees.
type Folder struct {
	UniqueName  string
	DisplayName string
	Path        string
}

// NewFolder names a folder for the given title. Nothing is created on disk;
// the downloader creates it when the job starts. The title part of the unique
// name is shortened so that the unique name plus an archive extension still
// fits in MaxNameBytes.
func (w *Workspace) NewFolder(title string) *Folder {
	display := SanitizeName(title)
	unique := SanitizeNameMax(title, uniqueTitleBytes) + Separator + uuid.NewString()

	return &Folder{
		UniqueName:  unique,
		DisplayName: display,
		Path:        filepath.Join(w.root, unique),
	}
}

// Create makes the folder and any missing parents.
func (f *Folder) Create() error {
	if err := os.MkdirAll(f.Path, 0o755); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", f.Path, err)
	}

	return nil
}

// Remove deletes the folder and its content. A missing folder is not an error.
func (f *Folder) Remove() error {
	if err := os.RemoveAll(f.Path); err != nil {
		return fmt.Errorf("failed to remove folder %s: %w", f.Path, err)
	}

	return nil
}

// Entries lists the files inside the folder.
func (f *Folder) Entries() ([]os.DirEntry, error) {
	entries, err := os.ReadDir(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read folder %s: %w", f.Path, err)
	}

	return entries, nil
}
