package vfile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/db"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filesystem/watcher"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T, files map[string]string) *FileSystem {
	t.Helper()
	fs := afero.NewMemMapFs()
	for p, content := range files {
		require.NoError(t, afero.WriteFile(fs, p, []byte(content), 0o644))
	}
	return New(fs)
}

type owner struct {
	mu      sync.Mutex
	changes []filetypes.TypeChange
}

func (o *owner) TypesChanged(c []filetypes.TypeChange) {
	o.mu.Lock()
	o.changes = append(o.changes, c...)
	o.mu.Unlock()
}

func (o *owner) ReparseFiles([]filetypes.File) {}

func (o *owner) Changes() []filetypes.TypeChange {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]filetypes.TypeChange(nil), o.changes...)
}

func TestFileHandles(t *testing.T) {
	s := newTestFS(t, map[string]string{"/root/a.txt": "hello", "/root/sub/b.bin": "\x00"})

	a, err := s.File("/root/a.txt")
	require.NoError(t, err)
	again, err := s.File("/root//sub/../a.txt")
	require.NoError(t, err)
	assert.Same(t, a, again, "one handle per canonical path")
	assert.Same(t, a.TypeSlot(), again.TypeSlot())

	assert.Equal(t, "a.txt", a.Name())
	assert.Equal(t, "/root/a.txt", a.Path())
	assert.Equal(t, int64(5), a.Length())
	assert.True(t, a.IsValid())
	assert.False(t, a.IsDirectory())
	assert.False(t, a.IsSpecial())
	assert.False(t, a.IsRoot())

	dir, err := s.File("/root/sub")
	require.NoError(t, err)
	assert.True(t, dir.IsDirectory())
	assert.Equal(t, int64(0), dir.Length())
	_, err = dir.Open()
	assert.ErrorIs(t, err, ErrNotRegular)

	missing, err := s.File("/root/missing")
	require.NoError(t, err)
	assert.False(t, missing.IsValid())
	assert.NotEqual(t, a.ID(), missing.ID())

	byID, ok := s.Lookup(a.ID())
	require.True(t, ok)
	assert.Same(t, a, byID)

	_, err = s.File("")
	assert.ErrorIs(t, err, ErrPathEmpty)

	root, err := s.File("/")
	require.NoError(t, err)
	assert.True(t, root.IsRoot())
}

func TestScan(t *testing.T) {
	s := newTestFS(t, map[string]string{
		"/root/z.txt":     "z",
		"/root/a/b.txt":   "b",
		"/root/a/c/d.txt": "d",
	})

	files, err := s.Scan("/root")
	require.NoError(t, err)
	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path())
	}
	assert.Equal(t, []string{"/root/a/b.txt", "/root/a/c/d.txt", "/root/z.txt"}, paths)
	assert.True(t, files[0].ID() < files[2].ID(), "identities follow lexical order")
	assert.Equal(t, 6, s.Len())

	_, err = s.Scan("/nope")
	assert.Error(t, err)
}

func TestForEach(t *testing.T) {
	s := newTestFS(t, map[string]string{"/r/a": "a", "/r/b": "b", "/r/c": "c"})
	files, err := s.Scan("/r")
	require.NoError(t, err)

	var seen atomic.Int32
	require.NoError(t, ForEach(context.Background(), files, 2, func(_ context.Context, f *File) error {
		seen.Add(1)
		return nil
	}))
	assert.Equal(t, int32(3), seen.Load())

	boom := errors.New("boom")
	err = ForEach(context.Background(), files, 0, func(_ context.Context, f *File) error {
		if f.Name() == "b" {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestReadBarrierWaitsForWriters(t *testing.T) {
	s := newTestFS(t, nil)
	s.barrier.Lock()

	var ran atomic.Bool
	done := make(chan struct{})
	go func() {
		_ = s.ReadBarrier(func() error {
			ran.Store(true)
			return nil
		})
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, ran.Load())
	s.barrier.Unlock()
	<-done
	assert.True(t, ran.Load())
}

func TestWriteAndRemove(t *testing.T) {
	s := newTestFS(t, nil)
	f, err := s.WriteFile("/new/dir/file.txt", []byte("content"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), f.Length())

	require.NoError(t, s.Remove("/new/dir/file.txt"))
	assert.False(t, f.IsValid())
	require.NoError(t, s.Remove("/new/dir/file.txt"), "removing a missing file is not an error")
}

func TestChangeEvents(t *testing.T) {
	s := newTestFS(t, map[string]string{"/r/known.txt": "x", "/r/new.txt": "y"})
	known, err := s.File("/r/known.txt")
	require.NoError(t, err)

	got := s.ChangeEvents([]watcher.Event{
		{Type: watcher.EventCreate, Path: "/r/new.txt"},
		{Type: watcher.EventCreate, Path: "/r/known.txt"},
		{Type: watcher.EventChmod, Path: "/r/known.txt"},
		{Type: watcher.EventRename, Path: "/r/old.txt"},
		{Type: watcher.EventCreate, Path: "/r/dir", IsDir: true},
		{Type: watcher.EventWrite, Path: ""},
	})

	require.Len(t, got, 4)
	assert.Equal(t, filetypes.ChangeCreate, got[0].Kind)
	assert.Equal(t, filetypes.ChangeWrite, got[1].Kind)
	assert.Same(t, known, got[1].File)
	assert.Equal(t, filetypes.ChangeAttrib, got[2].Kind)
	assert.Equal(t, filetypes.ChangeRename, got[3].Kind)
}

func TestManagerIntegration(t *testing.T) {
	s := newTestFS(t, map[string]string{"/r/data": "plain text"})
	o := &owner{}
	m := filetypes.NewManager(filetypes.Options{Owner: o, ReadBarrier: s.ReadBarrier})
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))
	defer m.Shutdown(ctx)

	f, err := s.File("/r/data")
	require.NoError(t, err)
	assert.Same(t, filetypes.PlainText, m.FileTypeByFile(f))

	_, err = s.WriteFile("/r/data", []byte{0x00, 0x01, 0x02})
	require.NoError(t, err)
	require.NoError(t, s.Handler(m)(ctx, []watcher.Event{{Type: watcher.EventWrite, Path: "/r/data"}}))

	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, m.DrainRedetectQueue(drainCtx))

	assert.Same(t, filetypes.Unknown, m.FileTypeByFile(f))
	changes := o.Changes()
	require.Len(t, changes, 1)
	assert.Same(t, filetypes.PlainText, changes[0].Before)
	assert.Same(t, filetypes.Unknown, changes[0].After)
}

func TestPersistentIdentitiesSurviveNewFiles(t *testing.T) {
	store := db.NewMemoryAttributes()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/w/m", []byte("m"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/w/z", []byte("z"), 0o644))

	first, err := NewPersistent(fs, store)
	require.NoError(t, err)
	before := map[string]uint32{}
	files, err := first.Scan("/w")
	require.NoError(t, err)
	for _, f := range files {
		before[f.Path()] = f.ID()
	}

	require.NoError(t, afero.WriteFile(fs, "/w/a", []byte("a"), 0o644))
	second, err := NewPersistent(fs, store)
	require.NoError(t, err)
	files, err = second.Scan("/w")
	require.NoError(t, err)
	require.Len(t, files, 3)
	for _, f := range files {
		if id, ok := before[f.Path()]; ok {
			assert.Equal(t, id, f.ID(), "%s keeps its identity", f.Path())
		}
	}
	a, err := second.File("/w/a")
	require.NoError(t, err)
	assert.NotContains(t, before, a.Path())
	for _, id := range before {
		assert.NotEqual(t, id, a.ID())
	}
}

func TestPersistentDetectionAcrossRuns(t *testing.T) {
	store := db.NewMemoryAttributes()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/w/m", []byte("plain text"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/w/z", []byte{0x00, 0x01, 0x02}, 0o644))

	run := func() (map[string]*filetypes.FileType, filetypes.Stats) {
		s, err := NewPersistent(fs, store)
		require.NoError(t, err)
		m := filetypes.NewManager(filetypes.Options{
			Attributes:  store,
			Generations: store,
			ReadBarrier: s.ReadBarrier,
		})
		ctx := context.Background()
		require.NoError(t, m.Init(ctx))
		defer m.Shutdown(ctx)

		out := map[string]*filetypes.FileType{}
		files, err := s.Scan("/w")
		require.NoError(t, err)
		for _, f := range files {
			out[f.Path()] = m.FileTypeByFile(f)
		}
		return out, m.Stats()
	}

	types, stats := run()
	assert.Same(t, filetypes.PlainText, types["/w/m"])
	assert.Same(t, filetypes.Unknown, types["/w/z"])
	assert.Equal(t, int64(2), stats.AutoDetected)

	require.NoError(t, afero.WriteFile(fs, "/w/a", []byte{0x00, 0xff}, 0o644))
	types, stats = run()
	assert.Same(t, filetypes.PlainText, types["/w/m"], "a new file does not shift stored results")
	assert.Same(t, filetypes.Unknown, types["/w/z"])
	assert.Same(t, filetypes.Unknown, types["/w/a"])
	assert.Equal(t, int64(1), stats.AutoDetected, "only the new file is read")
}

func TestMemoryFile(t *testing.T) {
	m := filetypes.NewManager(filetypes.Options{})
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))
	defer m.Shutdown(ctx)

	custom := filetypes.NewFileType("CUSTOM", "Custom", false)
	assert.Same(t, custom, m.FileTypeByFile(NewMemoryFile("scratch", []byte("text"), custom)))
	assert.Same(t, filetypes.PlainText, m.FileTypeByFile(NewMemoryFile("/tmp/buffer", []byte("text"), nil)))
	assert.Same(t, filetypes.Unknown, m.FileTypeByFile(NewMemoryFile("virtual", nil, nil)))

	buf := NewMemoryFile("/tmp/buffer", nil, nil)
	assert.Equal(t, "buffer", buf.Name())
	_, err := buf.Open()
	assert.ErrorIs(t, err, filetypes.ErrNoContentSource)
}
