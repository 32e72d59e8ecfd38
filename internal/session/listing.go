package session

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// DirEntry is one row of a list_directory response.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"isDir"`
	Size  int64  `json:"size,omitempty"`
}

// Lister lists directories relative to a root. It reads through an afero
// filesystem so callers can substitute a memory fs in tests.
type Lister struct {
	fs   afero.Fs
	root string
}

// NewLister creates a Lister over the OS filesystem rooted at root.
func NewLister(root string) *Lister {
	return &Lister{fs: afero.NewOsFs(), root: root}
}

// NewListerFs creates a Lister over an arbitrary filesystem.
func NewListerFs(fs afero.Fs, root string) *Lister {
	return &Lister{fs: fs, root: root}
}

// List returns the entries of path, resolved against the root. Paths that
// escape the root are rejected.
func (l *Lister) List(path string) ([]DirEntry, error) {
	full := filepath.Join(l.root, filepath.Clean("/"+path))

	infos, err := afero.ReadDir(l.fs, full)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}

	entries := make([]DirEntry, 0, len(infos))
	for _, info := range infos {
		entry := DirEntry{Name: info.Name(), IsDir: info.IsDir()}
		if !info.IsDir() {
			entry.Size = info.Size()
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}
