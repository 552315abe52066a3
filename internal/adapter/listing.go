package adapter

import "sort"

// Listing is an in-memory view of a fetched package: relative file paths
// plus the bytes of the files the classifier may need to inspect. The
// adapter itself performs no I/O; whoever fetched the package builds one
// of these.
type Listing struct {
	files      map[string][]byte
	paths      []string
	singleFile bool
}

// NewListing builds a listing for a directory fetch. Paths are stored
// sorted so classification is deterministic.
func NewListing(files map[string][]byte) *Listing {
	l := &Listing{files: files}
	for p := range files {
		l.paths = append(l.paths, p)
	}
	sort.Strings(l.paths)
	return l
}

// NewFileListing builds a listing for a fetch whose target was a single
// file rather than a directory.
func NewFileListing(path string, content []byte) *Listing {
	l := NewListing(map[string][]byte{path: content})
	l.singleFile = true
	return l
}

// IsFile reports whether the fetch target was a single file.
func (l *Listing) IsFile() bool { return l.singleFile }

// Paths returns the sorted relative paths in the listing.
func (l *Listing) Paths() []string { return l.paths }

// Has reports whether path is present.
func (l *Listing) Has(path string) bool {
	_, ok := l.files[path]
	return ok
}

// Read returns the bytes for path, or false when the path is absent.
func (l *Listing) Read(path string) ([]byte, bool) {
	b, ok := l.files[path]
	return b, ok
}
