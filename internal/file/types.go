package file

// ParentEntry is the synthetic listing entry that navigates to the parent directory.
const ParentEntry = ".."

// Entry is one numbered row of a directory listing.
type Entry struct {
	Name        string // Base name, or ParentEntry
	IsDirectory bool   // True for directories and symlinks to directories
}

// Listing is the ordered, filtered view of one directory. Numbering shown to
// the user is 1-based: Entries[n-1] is entry n.
type Listing struct {
	Path    string
	Entries []Entry
}

// Len returns the number of selectable entries.
func (l Listing) Len() int {
	return len(l.Entries)
}

// At returns the entry for a 1-based selection number.
func (l Listing) At(n int) (Entry, bool) {
	if n < 1 || n > len(l.Entries) {
		return Entry{}, false
	}
	return l.Entries[n-1], true
}
