package vfile

import (
	"io"
	"os"
	"path"

	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/indexing"
)

const specialModes = os.ModeNamedPipe | os.ModeSocket | os.ModeDevice | os.ModeCharDevice | os.ModeIrregular

// File is a path-backed handle. Attributes are read from the file system on
// every call so they reflect the current state of the path.
type File struct {
	fsys *FileSystem
	id   indexing.PathID
	path string
	slot filetypes.TypeSlot
}

var _ filetypes.FileWithID = (*File)(nil)

func (f *File) ID() filetypes.FileID          { return f.id }
func (f *File) Name() string                  { return path.Base(f.path) }
func (f *File) Path() string                  { return f.path }
func (f *File) HasContentSource() bool        { return true }
func (f *File) TypeSlot() *filetypes.TypeSlot { return &f.slot }
func (f *File) IsRoot() bool                  { return f.path == "/" || path.Dir(f.path) == f.path }

func (f *File) stat() (os.FileInfo, error) { return f.fsys.fs.Stat(f.path) }

func (f *File) Length() int64 {
	info, err := f.stat()
	if err != nil || info.IsDir() {
		return 0
	}
	return info.Size()
}

func (f *File) IsValid() bool {
	_, err := f.stat()
	return err == nil
}

func (f *File) IsDirectory() bool {
	info, err := f.stat()
	return err == nil && info.IsDir()
}

func (f *File) IsSpecial() bool {
	info, err := f.stat()
	return err == nil && info.Mode()&specialModes != 0
}

func (f *File) Open() (io.ReadCloser, error) {
	info, err := f.stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, ErrNotRegular
	}
	return f.fsys.fs.Open(f.path)
}

func (f *File) String() string { return f.path }
