// Package vfile provides file handles over an afero file system for the file
// type engine. Every path maps to one canonical handle with a stable dense
// identity.
package vfile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/indexing"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
)

var (
	ErrPathEmpty  = errors.New("path cannot be empty")
	ErrNotRegular = errors.New("not a regular file")
)

// FileSystem hands out canonical file handles and serialises content writes
// against retried reads.
type FileSystem struct {
	fs     afero.Fs
	mapper *indexing.SimplePathIDMapper
	files  sync.Map // canonical path -> *File

	// writers hold it exclusively; ReadBarrier holds it shared
	barrier sync.RWMutex
}

// New returns a file system over fs. A nil fs means the OS file system.
func New(fs afero.Fs) *FileSystem {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileSystem{fs: fs, mapper: indexing.NewSimplePathIDMapper()}
}

// NewPersistent is like New but restores identities from store and records
// the ones it hands out, so a path keeps its identity across processes.
func NewPersistent(fs afero.Fs, store indexing.IdentityStore) (*FileSystem, error) {
	mapper, err := indexing.LoadPathIDMapper(store)
	if err != nil {
		return nil, err
	}
	s := New(fs)
	s.mapper = mapper
	return s, nil
}

func (s *FileSystem) Fs() afero.Fs { return s.fs }

// File returns the canonical handle for path. The handle exists whether or
// not the path does; IsValid reports which.
func (s *FileSystem) File(path string) (*File, error) {
	if path == "" {
		return nil, ErrPathEmpty
	}
	cp := canonical(path)
	if f, ok := s.files.Load(cp); ok {
		return f.(*File), nil
	}
	f := &File{fsys: s, id: s.mapper.Assign(cp), path: cp}
	actual, _ := s.files.LoadOrStore(cp, f)
	return actual.(*File), nil
}

// Lookup returns the handle for an identity handed out earlier.
func (s *FileSystem) Lookup(id indexing.PathID) (*File, bool) {
	p, ok := s.mapper.Path(id)
	if !ok {
		return nil, false
	}
	f, err := s.File(p)
	return f, err == nil
}

// Len returns the number of identities handed out.
func (s *FileSystem) Len() int { return s.mapper.Size() }

// Scan assigns identities to every entry under root in lexical order and
// returns the handles of regular files.
func (s *FileSystem) Scan(root string) ([]*File, error) {
	paths, err := s.mapper.BuildFromDir(s.fs, root)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	var files []*File
	for _, p := range paths {
		f, err := s.File(p)
		if err != nil {
			return nil, err
		}
		if info, err := f.stat(); err == nil && info.Mode().IsRegular() {
			files = append(files, f)
		}
	}
	slog.Debug("Scanned directory", "root", root, "entries", len(paths), "files", len(files))
	return files, nil
}

// ForEach runs fn over files on a bounded pool and returns the first error.
func ForEach(ctx context.Context, files []*File, workers int, fn func(context.Context, *File) error) error {
	if workers <= 0 {
		workers = min(max(runtime.NumCPU()*2, 4), 32)
	}
	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx)
	for _, f := range files {
		p.Go(func(ctx context.Context) error {
			return fn(ctx, f)
		})
	}
	return p.Wait()
}

// WriteFile replaces the content of path. Retried reads wait for it.
func (s *FileSystem) WriteFile(path string, data []byte) (*File, error) {
	f, err := s.File(path)
	if err != nil {
		return nil, err
	}
	s.barrier.Lock()
	defer s.barrier.Unlock()
	if err := s.fs.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create parent of %s: %w", f.path, err)
	}
	if err := afero.WriteFile(s.fs, f.path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	return f, nil
}

// Remove deletes path. Its handle keeps its identity.
func (s *FileSystem) Remove(path string) error {
	s.barrier.Lock()
	defer s.barrier.Unlock()
	if err := s.fs.Remove(canonical(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// ReadBarrier runs read once no write is in progress.
func (s *FileSystem) ReadBarrier(read func() error) error {
	s.barrier.RLock()
	defer s.barrier.RUnlock()
	return read()
}

func canonical(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}
