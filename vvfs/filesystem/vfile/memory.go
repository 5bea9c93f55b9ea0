package vfile

import (
	"bytes"
	"io"
	"path"

	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes"
)

// MemoryFile is an identity-less file such as an unsaved editor buffer. It
// never enters the flag cache, the durable store or re-detection; its
// detected type lives in its own slot.
type MemoryFile struct {
	name     string
	data     []byte
	assigned *filetypes.FileType
	slot     filetypes.TypeSlot
}

// NewMemoryFile returns a buffer named name. A nil data means the buffer has
// no content source. A non-nil assigned type wins over every other rule.
func NewMemoryFile(name string, data []byte, assigned *filetypes.FileType) *MemoryFile {
	return &MemoryFile{name: name, data: data, assigned: assigned}
}

var (
	_ filetypes.File          = (*MemoryFile)(nil)
	_ filetypes.AssignedTyped = (*MemoryFile)(nil)
)

func (m *MemoryFile) Name() string                      { return path.Base(m.name) }
func (m *MemoryFile) Path() string                      { return m.name }
func (m *MemoryFile) Length() int64                     { return int64(len(m.data)) }
func (m *MemoryFile) IsValid() bool                     { return true }
func (m *MemoryFile) IsDirectory() bool                 { return false }
func (m *MemoryFile) IsSpecial() bool                   { return false }
func (m *MemoryFile) HasContentSource() bool            { return m.data != nil }
func (m *MemoryFile) TypeSlot() *filetypes.TypeSlot     { return &m.slot }
func (m *MemoryFile) AssignedType() *filetypes.FileType { return m.assigned }

func (m *MemoryFile) Open() (io.ReadCloser, error) {
	if m.data == nil {
		return nil, filetypes.ErrNoContentSource
	}
	return io.NopCloser(bytes.NewReader(m.data)), nil
}
