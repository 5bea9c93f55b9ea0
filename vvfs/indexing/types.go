package indexing

// PathID is the dense identity of a file. Identities are assigned once per
// canonical path, start at zero and grow contiguously, which keeps packed
// per-file arrays and roaring bitmaps compact.
type PathID = uint32

// PathIDMapper maps canonicalized paths to stable PathIDs.
type PathIDMapper interface {
	Lookup(path string) (PathID, bool)
	Path(id PathID) (string, bool)
	Size() int
}

var _ PathIDMapper = (*SimplePathIDMapper)(nil)
