// Package filetypes classifies files into types by name, structure and
// content, caches the decision per file and keeps the cache coherent as
// files change.
package filetypes

import (
	"io"
	"sync"

	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes/matcher"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/indexing"
)

// FileType is a classification result. Types are compared by identity, so
// two types with the same name are still different types.
type FileType struct {
	name        string
	description string
	binary      bool
}

// NewFileType returns a new type identity.
func NewFileType(name, description string, binary bool) *FileType {
	return &FileType{name: name, description: description, binary: binary}
}

func (t *FileType) Name() string        { return t.name }
func (t *FileType) Description() string { return t.description }

// IsBinary reports whether files of this type are not text.
func (t *FileType) IsBinary() bool { return t.binary }

func (t *FileType) String() string { return t.name }

var (
	// PlainText is the type of text content no detector claimed.
	PlainText = NewFileType("PLAIN_TEXT", "Text", false)
	// Unknown is the type of everything that could not be classified.
	Unknown = NewFileType("UNKNOWN", "Unknown", true)
)

// FileID is the dense identity of a file.
type FileID = indexing.PathID

// File is the part of a file handle the classifier consumes.
type File interface {
	Name() string
	Path() string
	Length() int64
	IsValid() bool
	IsDirectory() bool
	IsSpecial() bool
	// HasContentSource reports whether Open reads real content.
	HasContentSource() bool
	Open() (io.ReadCloser, error)
	// TypeSlot returns the per-file override slot. It must return the same
	// slot on every call for the same file.
	TypeSlot() *TypeSlot
}

// FileWithID is a file with a stable dense identity. Only these files use the
// packed flag cache, the durable store and re-detection.
type FileWithID interface {
	File
	ID() FileID
}

// AssignedTyped is implemented by synthetic files that carry their own type.
type AssignedTyped interface {
	AssignedType() *FileType
}

// TypeSlot holds a type detected from content for one file. Every change
// bumps a version stamp; publishing a detection result only succeeds when the
// stamp still equals the one captured before the content was read.
type TypeSlot struct {
	mu      sync.Mutex
	t       *FileType
	version uint64
}

// Load returns the stored type (nil if none) and the current version.
func (s *TypeSlot) Load() (*FileType, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t, s.version
}

// Store unconditionally replaces the stored type.
func (s *TypeSlot) Store(t *FileType) {
	s.mu.Lock()
	s.t = t
	s.version++
	s.mu.Unlock()
}

// Publish stores t if the version is still current and then runs commit, if
// non-nil, while holding the slot lock. It reports whether t was stored.
func (s *TypeSlot) Publish(version uint64, t *FileType, commit func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != version {
		return false
	}
	s.t = t
	s.version++
	if commit != nil {
		commit()
	}
	return true
}

// Reset clears the stored type, invalidating in-flight detections, and runs
// commit, if non-nil, while holding the slot lock.
func (s *TypeSlot) Reset(commit func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.t = nil
	s.version++
	if commit != nil {
		commit()
	}
}

// Content is the prefix of a file handed to detectors.
type Content struct {
	Bytes []byte
	// Text is the decoded prefix when IsText is set.
	Text   string
	IsText bool
}

// ContentDetector recognises a type from a file's leading bytes.
type ContentDetector interface {
	// Detect returns nil when the content is not recognised.
	Detect(file File, content Content) (*FileType, error)
	// DeclaredTypes lists the types Detect may return, or nil if unknown.
	DeclaredTypes() []*FileType
}

type detectorFunc struct {
	fn    func(File, Content) (*FileType, error)
	types []*FileType
}

func (d detectorFunc) Detect(f File, c Content) (*FileType, error) { return d.fn(f, c) }
func (d detectorFunc) DeclaredTypes() []*FileType                  { return d.types }

// DetectorFunc adapts fn to a ContentDetector declaring types.
func DetectorFunc(fn func(File, Content) (*FileType, error), types ...*FileType) ContentDetector {
	return detectorFunc{fn: fn, types: types}
}

// SpecialType recognises files by structure rather than by name or content.
type SpecialType struct {
	Type    *FileType
	Matches func(File) bool
}

// Descriptor is a type that is only constructed on first use.
type Descriptor struct {
	Name      string
	Matchers  []matcher.FileNameMatcher
	HashBangs []string
	Factory   func() (*FileType, error)
}

// ChangeKind is the kind of a file system change.
type ChangeKind int

const (
	ChangeCreate ChangeKind = iota
	ChangeWrite
	ChangeRemove
	ChangeRename
	ChangeAttrib
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreate:
		return "create"
	case ChangeWrite:
		return "write"
	case ChangeRemove:
		return "remove"
	case ChangeRename:
		return "rename"
	case ChangeAttrib:
		return "attrib"
	}
	return "unknown"
}

// ChangeEvent is one file system change.
type ChangeEvent struct {
	Kind ChangeKind
	File File
}

// TypeChange records a file whose type changed during re-detection.
type TypeChange struct {
	File   File
	Before *FileType
	After  *FileType
}

// Owner receives the results of re-detection.
type Owner interface {
	// TypesChanged is called once per re-detection chunk with every file
	// whose type changed.
	TypesChanged(changes []TypeChange)
	// ReparseFiles asks the owner to reprocess files.
	ReparseFiles(files []File)
}

// TypesEvent describes a rule change.
type TypesEvent struct {
	Added   *FileType
	Removed *FileType
}

// Listener is notified around every classification rule change.
type Listener interface {
	BeforeFileTypesChanged(e TypesEvent)
	FileTypesChanged(e TypesEvent)
}
