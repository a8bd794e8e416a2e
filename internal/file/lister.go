package file

import (
	"fmt"
	"os"
)

// Lister produces directory listings under a fixed security policy.
type Lister struct {
	Secure bool // Hide directories and the parent entry
}

// NewLister creates a lister for the given secure-mode setting.
func NewLister(secure bool) *Lister {
	return &Lister{Secure: secure}
}

// List reads path and returns its listing. Hidden names are dropped first,
// then (in secure mode) every directory. Outside secure mode a parent entry
// is prepended unless path is the filesystem root. On failure the returned
// listing is empty.
func (l *Lister) List(path string) (Listing, error) {
	listing := Listing{Path: path}

	dirEntries, err := os.ReadDir(path)
	if err != nil {
		return listing, fmt.Errorf("failed to read directory %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(dirEntries)+1)
	if !l.Secure && !IsRoot(path) {
		entries = append(entries, Entry{Name: ParentEntry, IsDirectory: true})
	}

	for _, de := range dirEntries {
		name := de.Name()
		if IsHidden(name) {
			continue
		}
		isDir, err := Classify(path, name)
		if err != nil {
			return listing, err
		}
		if l.Secure && isDir {
			continue
		}
		entries = append(entries, Entry{Name: name, IsDirectory: isDir})
	}

	listing.Entries = entries
	return listing, nil
}
