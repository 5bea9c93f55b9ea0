package filetypes

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errLocked = errors.New("file is locked")

type testFile struct {
	id   FileID
	name string

	mu        sync.Mutex
	data      []byte
	failOpens int
	emptyOnce bool

	dir, special, invalid, noSource bool

	reads atomic.Int32
	slot  TypeSlot
}

func newTestFile(id FileID, name, content string) *testFile {
	return &testFile{id: id, name: name, data: []byte(content)}
}

func (f *testFile) ID() FileID             { return f.id }
func (f *testFile) Name() string           { return f.name }
func (f *testFile) Path() string           { return "/test/" + f.name }
func (f *testFile) IsValid() bool          { return !f.invalid }
func (f *testFile) IsDirectory() bool      { return f.dir }
func (f *testFile) IsSpecial() bool        { return f.special }
func (f *testFile) HasContentSource() bool { return !f.noSource }
func (f *testFile) TypeSlot() *TypeSlot    { return &f.slot }

func (f *testFile) Length() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.data))
}

func (f *testFile) Open() (io.ReadCloser, error) {
	f.reads.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOpens != 0 {
		if f.failOpens > 0 {
			f.failOpens--
		}
		return nil, errLocked
	}
	if f.emptyOnce {
		f.emptyOnce = false
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), f.data...))), nil
}

func (f *testFile) setContent(content string) {
	f.mu.Lock()
	f.data = []byte(content)
	f.mu.Unlock()
}

// failNext fails the next n opens; a negative n fails every open.
func (f *testFile) failNext(n int) {
	f.mu.Lock()
	f.failOpens = n
	f.mu.Unlock()
}

// identityless hides the identity of a file, like an editor buffer.
type identityless struct{ f *testFile }

func (w identityless) Name() string                 { return w.f.Name() }
func (w identityless) Path() string                 { return w.f.Path() }
func (w identityless) Length() int64                { return w.f.Length() }
func (w identityless) IsValid() bool                { return w.f.IsValid() }
func (w identityless) IsDirectory() bool            { return w.f.IsDirectory() }
func (w identityless) IsSpecial() bool              { return w.f.IsSpecial() }
func (w identityless) HasContentSource() bool       { return w.f.HasContentSource() }
func (w identityless) Open() (io.ReadCloser, error) { return w.f.Open() }
func (w identityless) TypeSlot() *TypeSlot          { return w.f.TypeSlot() }

type assignedFile struct {
	identityless
	assigned *FileType
}

func (f assignedFile) AssignedType() *FileType { return f.assigned }

type recordingOwner struct {
	mu       sync.Mutex
	changes  []TypeChange
	reparsed [][]File
}

func (o *recordingOwner) TypesChanged(changes []TypeChange) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changes = append(o.changes, changes...)
}

func (o *recordingOwner) ReparseFiles(files []File) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reparsed = append(o.reparsed, files)
}

func (o *recordingOwner) Changes() []TypeChange {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]TypeChange(nil), o.changes...)
}

type fakeTimer struct {
	d       time.Duration
	fn      func()
	stopped atomic.Bool
}

func (t *fakeTimer) Stop() bool { return !t.stopped.Swap(true) }

func (t *fakeTimer) Fire() {
	if !t.stopped.Load() {
		t.fn()
	}
}

// fakeClock records scheduled callbacks instead of running them.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Timers() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeTimer(nil), c.timers...)
}

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	m := NewManager(opts)
	require.NoError(t, m.Init(context.Background()))
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func drain(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.DrainRedetectQueue(ctx))
}

// prefixDetector returns t for content starting with prefix.
func prefixDetector(prefix string, t *FileType, calls *atomic.Int32) ContentDetector {
	return DetectorFunc(func(_ File, c Content) (*FileType, error) {
		if calls != nil {
			calls.Add(1)
		}
		if bytes.HasPrefix(c.Bytes, []byte(prefix)) {
			return t, nil
		}
		return nil, nil
	}, t)
}
