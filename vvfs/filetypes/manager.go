package filetypes

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes/assoc"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes/ignore"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes/matcher"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/indexing"
	"github.com/sourcegraph/conc/panics"
)

// AutoDetectAttribute is the durable attribute holding detection flags.
const AutoDetectAttribute = "filetypes.autodetect"

const (
	stateNew int32 = iota
	stateRunning
	stateShutdown
)

type listenerEntry struct {
	id int
	l  Listener
}

// Manager is the classification engine. All lookups are safe for concurrent
// use; rule changes are serialised by a single lock shared with lazy type
// construction.
type Manager struct {
	opts Options
	mu   sync.Locker

	// guarded by mu
	patterns     *assoc.Table[*FileType]
	pending      *assoc.Table[*Descriptor]
	pendingTypes map[string]*Descriptor
	types        map[string]*FileType
	special      []SpecialType

	listenersMu sync.RWMutex
	listeners   []listenerEntry
	nextID      int

	detMu     sync.Mutex
	detectors []ContentDetector
	byType    map[*FileType][]ContentDetector
	untyped   []ContentDetector

	ignored     *ignore.PatternSet
	ignoreCache *ignore.FileCache

	flags      *indexing.PackedBitsArray
	attr       *DurableAttribute
	generation atomic.Int64

	redetector *Redetector
	stats      stats
	state      atomic.Int32
}

// NewManager returns a manager holding only the PlainText and Unknown types.
func NewManager(opts Options) *Manager {
	opts = opts.withDefaults()
	m := &Manager{
		opts:         opts,
		mu:           opts.Locker,
		patterns:     assoc.New(Unknown),
		pending:      assoc.New[*Descriptor](nil),
		pendingTypes: make(map[string]*Descriptor),
		types: map[string]*FileType{
			PlainText.Name(): PlainText,
			Unknown.Name():   Unknown,
		},
		ignored: ignore.NewPatternSet(),
		flags:   indexing.NewPackedBitsArray(4),
		attr:    NewDurableAttribute(opts.Attributes, AutoDetectAttribute, 0),
	}
	m.ignored.SetIgnoreMasks(opts.IgnoredFiles)
	m.ignoreCache = ignore.NewFileCache(m.ignored)
	m.redetector = newRedetector(m.reDetect, opts.Owner, opts)
	return m
}

// Init loads the persisted generation counter. Failing to load it is not
// fatal: the manager starts from generation zero.
func (m *Manager) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.state.CompareAndSwap(stateNew, stateRunning) {
		if m.state.Load() == stateShutdown {
			return ErrShutdown
		}
		return nil
	}

	if m.opts.Generations != nil {
		gen, err := m.opts.Generations.LoadGeneration()
		if err != nil {
			slog.Warn("Failed to load file type generation, starting from zero", "error", err)
			gen = 0
		}
		m.generation.Store(gen)
		m.attr.SetVersion(gen)
	}
	slog.Debug("File type manager initialized", "generation", m.generation.Load())
	return nil
}

// Shutdown stops re-detection and waits for the running chunk.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.state.Swap(stateShutdown) == stateShutdown {
		return nil
	}

	done := make(chan struct{})
	go func() {
		m.redetector.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for re-detection to stop: %w", ctx.Err())
	}

	s := m.Stats()
	slog.Info("File type manager stopped",
		"autoDetected", s.AutoDetected,
		"autoDetectElapsed", s.AutoDetectElapsed,
		"redetected", s.Redetect.Processed,
		"redetectChanged", s.Redetect.Changed,
		"redetectCrashed", s.Redetect.Crashed)
	return nil
}

// Generation returns the current generation counter.
func (m *Manager) Generation() int64 { return m.generation.Load() }

// AddListener registers l and returns a function removing it.
func (m *Manager) AddListener(l Listener) func() {
	m.listenersMu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners = append(m.listeners, listenerEntry{id: id, l: l})
	m.listenersMu.Unlock()

	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		for i, e := range m.listeners {
			if e.id == id {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

func (m *Manager) listenerSnapshot() []Listener {
	m.listenersMu.RLock()
	defer m.listenersMu.RUnlock()
	out := make([]Listener, len(m.listeners))
	for i, e := range m.listeners {
		out[i] = e.l
	}
	return out
}

func (m *Manager) fireBefore(e TypesEvent) {
	for _, l := range m.listenerSnapshot() {
		l.BeforeFileTypesChanged(e)
	}
}

// fireAfter moves to a new generation before notifying listeners.
func (m *Manager) fireAfter(e TypesEvent) {
	m.advanceGeneration()
	for _, l := range m.listenerSnapshot() {
		l.FileTypesChanged(e)
	}
}

// advanceGeneration drops every cached decision and moves the durable store
// to a new generation.
func (m *Manager) advanceGeneration() {
	m.flags.Clear()
	m.ignoreCache.Clear()

	gen := m.generation.Add(1)
	m.attr.SetVersion(gen)
	if m.opts.Generations != nil {
		if err := m.opts.Generations.SaveGeneration(gen); err != nil {
			slog.Error("Failed to persist file type generation", "generation", gen, "error", err)
		}
	}
	slog.Debug("File types changed", "generation", gen)
}

// mutate runs fn under the table lock, bracketed by change notifications.
func (m *Manager) mutate(e TypesEvent, fn func()) {
	m.fireBefore(e)
	m.mu.Lock()
	fn()
	m.mu.Unlock()
	m.fireAfter(e)
}

// RegisterFileType adds t with its name matchers.
func (m *Manager) RegisterFileType(t *FileType, matchers ...matcher.FileNameMatcher) {
	m.mutate(TypesEvent{Added: t}, func() {
		m.types[t.Name()] = t
		for _, fm := range matchers {
			m.patterns.AddAssociation(fm, t)
		}
	})
}

// UnregisterFileType removes t and every association to it.
func (m *Manager) UnregisterFileType(t *FileType) {
	m.mutate(TypesEvent{Removed: t}, func() {
		if m.types[t.Name()] == t {
			delete(m.types, t.Name())
		}
		m.patterns.RemoveAllAssociations(t)
	})
}

// RegisterDescriptor adds a type that is constructed on first use.
func (m *Manager) RegisterDescriptor(d Descriptor) error {
	if d.Name == "" || d.Factory == nil {
		return fmt.Errorf("descriptor needs a name and a factory")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.types[d.Name]; ok {
		return fmt.Errorf("file type %q already registered", d.Name)
	}
	if _, ok := m.pendingTypes[d.Name]; ok {
		return fmt.Errorf("file type %q already registered", d.Name)
	}
	dp := &d
	m.pendingTypes[d.Name] = dp
	for _, fm := range d.Matchers {
		m.pending.AddAssociation(fm, dp)
	}
	for _, hb := range d.HashBangs {
		m.pending.AddHashBang(hb, dp)
	}
	return nil
}

// materializeLocked constructs a pending type once. The descriptor leaves
// the pending table whether or not construction succeeds.
func (m *Manager) materializeLocked(d *Descriptor) *FileType {
	if m.pendingTypes[d.Name] != d {
		m.pending.RemoveAllAssociations(d)
		return m.types[d.Name]
	}
	delete(m.pendingTypes, d.Name)
	m.pending.RemoveAllAssociations(d)

	var (
		pc  panics.Catcher
		t   *FileType
		err error
	)
	pc.Try(func() { t, err = d.Factory() })
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}
	if err == nil && t == nil {
		err = ErrUnknownFileType
	}
	if err != nil {
		slog.Error("Failed to construct file type", "name", d.Name, "error", err)
		return nil
	}

	m.types[d.Name] = t
	m.types[t.Name()] = t
	for _, fm := range d.Matchers {
		m.patterns.AddAssociation(fm, t)
	}
	for _, hb := range d.HashBangs {
		m.patterns.AddHashBang(hb, t)
	}
	slog.Debug("Materialized file type", "name", t.Name())
	return t
}

// Materialize returns the type registered under name, constructing it if
// it is still pending.
func (m *Manager) Materialize(name string) (*FileType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.materializeNamedLocked(name)
}

func (m *Manager) materializeNamedLocked(name string) (*FileType, error) {
	if d, ok := m.pendingTypes[name]; ok {
		if t := m.materializeLocked(d); t != nil {
			return t, nil
		}
		return nil, fmt.Errorf("%w: %s failed to construct", ErrUnknownFileType, name)
	}
	if t, ok := m.types[name]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFileType, name)
}

// StdFileType returns the type registered under name, or PlainText.
func (m *Manager) StdFileType(name string) *FileType {
	t, err := m.Materialize(name)
	if err != nil {
		return PlainText
	}
	return t
}

// RegisteredFileTypes returns every type sorted by name, constructing all
// pending ones.
func (m *Manager) RegisteredFileTypes() []*FileType {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := make([]*Descriptor, 0, len(m.pendingTypes))
	for _, d := range m.pendingTypes {
		pending = append(pending, d)
	}
	for _, d := range pending {
		m.materializeLocked(d)
	}

	seen := make(map[*FileType]bool, len(m.types))
	out := make([]*FileType, 0, len(m.types))
	for _, t := range m.types {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// FileTypeByFileName resolves a name. Pending descriptors matching the name
// are constructed first so the most specific rule wins across both tables.
// Unmatched names yield Unknown.
func (m *Manager) FileTypeByFileName(name string) *FileType {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		d, ok := m.pending.Lookup(name)
		if !ok {
			break
		}
		m.materializeLocked(d)
	}
	return m.patterns.FindAssociated(name)
}

// FileTypeByExtension resolves a bare extension.
func (m *Manager) FileTypeByExtension(ext string) *FileType {
	m.mu.Lock()
	defer m.mu.Unlock()
	for d := m.pending.FindByExtension(ext); d != nil; d = m.pending.FindByExtension(ext) {
		m.materializeLocked(d)
	}
	return m.patterns.FindByExtension(ext)
}

// FileTypeByHashBang resolves a script interpreter name.
func (m *Manager) FileTypeByHashBang(interpreter string) *FileType {
	m.mu.Lock()
	defer m.mu.Unlock()
	for d := m.pending.FindByHashBang(interpreter); d != nil; d = m.pending.FindByHashBang(interpreter) {
		m.materializeLocked(d)
	}
	return m.patterns.FindByHashBang(interpreter)
}

func (m *Manager) Associate(t *FileType, fm matcher.FileNameMatcher) {
	m.mutate(TypesEvent{}, func() { m.patterns.AddAssociation(fm, t) })
}

func (m *Manager) RemoveAssociation(t *FileType, fm matcher.FileNameMatcher) {
	m.mutate(TypesEvent{}, func() { m.patterns.RemoveAssociation(fm, t) })
}

func (m *Manager) AddHashBang(t *FileType, interpreter string) {
	m.mutate(TypesEvent{}, func() { m.patterns.AddHashBang(interpreter, t) })
}

func (m *Manager) RemoveHashBang(t *FileType, interpreter string) {
	m.mutate(TypesEvent{}, func() { m.patterns.RemoveHashBang(interpreter, t) })
}

// PatternsTable returns an independent copy of the effective table.
func (m *Manager) PatternsTable() *assoc.Table[*FileType] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.patterns.Copy()
}

// SetPatternsTable replaces the effective table with a copy of table.
// Readers see either the old or the new table, never a mix.
func (m *Manager) SetPatternsTable(table *assoc.Table[*FileType]) {
	next := table.Copy()
	m.mutate(TypesEvent{}, func() { m.patterns = next })
}

func (m *Manager) Associations(t *FileType) []matcher.FileNameMatcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.patterns.Associations(t)
}

func (m *Manager) AssociatedExtensions(t *FileType) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.patterns.AssociatedExtensions(t)
}

func (m *Manager) HashBangs(t *FileType) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.patterns.HashBangs(t)
}

// RegisterSpecialType adds a structural type, checked before name lookup.
func (m *Manager) RegisterSpecialType(s SpecialType) {
	m.mutate(TypesEvent{Added: s.Type}, func() {
		m.special = append(m.special, s)
		m.types[s.Type.Name()] = s.Type
	})
}

func (m *Manager) specialTypes() []SpecialType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.special
}

// RegisterDetector appends a content detector. Detectors run in
// registration order.
func (m *Manager) RegisterDetector(d ContentDetector) {
	m.detMu.Lock()
	m.detectors = append(m.detectors, d)
	m.byType = nil
	m.untyped = nil
	m.detMu.Unlock()
}

func (m *Manager) detectorSnapshot() []ContentDetector {
	m.detMu.Lock()
	defer m.detMu.Unlock()
	return m.detectors
}

// detectorsFor returns the detectors declaring t followed by the untyped
// ones. The index is built on first use after a registration.
func (m *Manager) detectorsFor(t *FileType) []ContentDetector {
	m.detMu.Lock()
	defer m.detMu.Unlock()
	if m.byType == nil {
		m.byType = make(map[*FileType][]ContentDetector)
		for _, d := range m.detectors {
			declared := d.DeclaredTypes()
			if declared == nil {
				m.untyped = append(m.untyped, d)
				continue
			}
			for _, dt := range declared {
				m.byType[dt] = append(m.byType[dt], d)
			}
		}
	}
	out := make([]ContentDetector, 0, len(m.byType[t])+len(m.untyped))
	out = append(out, m.byType[t]...)
	return append(out, m.untyped...)
}

// SetIgnoredFilesList replaces the ignore masks.
func (m *Manager) SetIgnoredFilesList(list string) {
	m.fireBefore(TypesEvent{})
	m.ignoreCache.Clear()
	m.ignored.SetIgnoreMasks(list)
	m.fireAfter(TypesEvent{})
}

// IgnoredFilesList returns the masks as a ";"-terminated list.
func (m *Manager) IgnoredFilesList() string { return m.ignored.String() }

func (m *Manager) IsIgnoredFilesListEqualToCurrent(list string) bool {
	return m.ignored.Equal(list)
}

// IsFileIgnored reports whether a name matches an ignore mask.
func (m *Manager) IsFileIgnored(name string) bool { return m.ignored.IsIgnored(name) }

// IsIgnoredFile is IsFileIgnored for a handle, consulting the path rules
// and memoising the answer per file.
func (m *Manager) IsIgnoredFile(f File) bool { return m.ignoreCache.IsFileIgnored(f) }
