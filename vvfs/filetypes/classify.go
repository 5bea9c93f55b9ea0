package filetypes

import (
	"context"
	"log/slog"
	"time"
)

// Detection record bits, packed four per file.
const (
	flagText   uint64 = 1 << 0
	flagBinary uint64 = 1 << 1
	flagRun    uint64 = 1 << 2
	flagLoaded uint64 = 1 << 3
)

// LookupOption adjusts a single FileTypeByFile call.
type LookupOption func(*lookup)

type lookup struct {
	content []byte
	scope   *FreezeScope
}

// WithContent classifies using b as the file's leading bytes instead of
// reading the file.
func WithContent(b []byte) LookupOption {
	return func(l *lookup) { l.content = b }
}

// WithScope makes the lookup honour a frozen type.
func WithScope(s *FreezeScope) LookupOption {
	return func(l *lookup) { l.scope = s }
}

// FileTypeByFile classifies f. Resolution order: frozen scope, assigned
// type, special types, name, cached or fresh content detection. It never
// fails; the worst outcome is Unknown.
func (m *Manager) FileTypeByFile(f File, opts ...LookupOption) *FileType {
	var l lookup
	for _, opt := range opts {
		opt(&l)
	}
	if t, ok := l.scope.typeOf(f); ok {
		return t
	}
	if t := m.byFile(f); t != nil {
		return t
	}
	return m.getOrDetect(f, l.content)
}

// byFile resolves f without looking at content. Nil means content
// detection is needed.
func (m *Manager) byFile(f File) *FileType {
	if a, ok := f.(AssignedTyped); ok {
		if t := a.AssignedType(); t != nil {
			return t
		}
	}
	for _, s := range m.specialTypes() {
		if s.Matches(f) {
			return s.Type
		}
	}
	if t := m.FileTypeByFileName(f.Name()); t != Unknown {
		return t
	}
	return nil
}

func (m *Manager) getOrDetect(f File, content []byte) *FileType {
	if !isDetectable(f) {
		return Unknown
	}
	if fid, ok := f.(FileWithID); ok {
		flags := m.loadFlags(fid)
		if flags&flagRun != 0 {
			if t := textOrBinary(flags); t != nil {
				return t
			}
		}
	}
	if t, _ := f.TypeSlot().Load(); t != nil {
		return t
	}

	t, err := m.detectAndCache(f, content)
	if err != nil {
		slog.Debug("Content detection failed", "path", f.Path(), "error", err)
		return Unknown
	}
	return t
}

// loadFlags returns the detection record of f, reconciling it with the
// durable store on first access.
func (m *Manager) loadFlags(f FileWithID) uint64 {
	id := f.ID()
	flags := m.flags.Get(id)
	if flags&flagLoaded != 0 {
		return flags
	}
	stored := m.readStoredFlags(f) | flagLoaded
	return m.flags.Update(id, func(old uint64) uint64 {
		if old&flagLoaded != 0 {
			return old
		}
		return stored
	})
}

// readStoredFlags returns the text, binary and run bits from the durable
// store. The run bit is set iff a value was stored.
func (m *Manager) readStoredFlags(f File) uint64 {
	b, ok := m.attr.Load(f)
	if !ok {
		return 0
	}
	return (uint64(b) & (flagText | flagBinary)) | flagRun
}

func textOrBinary(flags uint64) *FileType {
	switch {
	case flags&flagText != 0:
		return PlainText
	case flags&flagBinary != 0:
		return Unknown
	}
	return nil
}

// detectAndCache runs every detector over f's content and caches the
// result. Only read errors are returned.
func (m *Manager) detectAndCache(f File, content []byte) (*FileType, error) {
	start := time.Now()
	_, version := f.TypeSlot().Load()

	b := content
	if b == nil {
		var err error
		if b, err = m.readContent(f); err != nil {
			return nil, err
		}
	}
	t := m.detect(f, b, m.detectorSnapshot())
	m.cacheDetected(f, t, version)

	m.stats.recordAutoDetect(time.Since(start))
	return t, nil
}

// cacheDetected publishes a content detection result. Text and binary go to
// the flag cache and the durable store; named types go to the file's slot.
// Nothing is written when the slot changed since version was captured.
func (m *Manager) cacheDetected(f File, t *FileType, version uint64) {
	var flags uint64
	switch t {
	case PlainText:
		flags = flagText
	case Unknown:
		flags = flagBinary
	}

	fid, hasID := f.(FileWithID)
	commit := func() {
		m.attr.Store(f, byte(flags))
		if hasID {
			m.flags.Set(fid.ID(), flags|flagRun|flagLoaded)
		}
	}

	slotValue := t
	if hasID && flags != 0 {
		slotValue = nil
	}
	if !f.TypeSlot().Publish(version, slotValue, commit) {
		slog.Debug("Discarding stale detection result", "path", f.Path(), "type", t.Name())
	}
}

// wasAutoDetectedBefore reports whether f's type came from content and it
// was not detected as binary.
func (m *Manager) wasAutoDetectedBefore(f File) bool {
	if t, _ := f.TypeSlot().Load(); t != nil {
		return true
	}
	if fid, ok := f.(FileWithID); ok {
		return m.flags.Get(fid.ID())&(flagRun|flagBinary) == flagRun
	}
	return false
}

// IsFileOfType reports whether f has type t, running only the detectors
// that can produce t.
func (m *Manager) IsFileOfType(f File, t *FileType) bool {
	if t == PlainText || t == Unknown {
		return m.FileTypeByFile(f) == t
	}
	if a, ok := f.(AssignedTyped); ok {
		if at := a.AssignedType(); at != nil {
			return at == t
		}
	}
	for _, s := range m.specialTypes() {
		if s.Type == t && s.Matches(f) {
			return true
		}
	}

	byName := m.FileTypeByFileName(f.Name())
	if byName == t {
		return true
	}
	if byName != Unknown || !isDetectable(f) {
		return false
	}

	slot := f.TypeSlot()
	st, version := slot.Load()
	if st != nil {
		return st == t
	}
	detectors := m.detectorsFor(t)
	if len(detectors) == 0 {
		return false
	}

	b, err := m.readContent(f)
	if err != nil {
		slog.Debug("Content read failed", "path", f.Path(), "error", err)
		return false
	}
	detected := m.detect(f, b, detectors)
	if detected != Unknown && detected != PlainText {
		m.cacheDetected(f, detected, version)
	}
	return detected == t
}

// OnFileChanges takes a batch of file system changes and queues files
// whose content-detected type may now be stale. Creations are skipped.
func (m *Manager) OnFileChanges(events []ChangeEvent) {
	var candidates []FileWithID
	for _, ev := range events {
		if ev.Kind == ChangeCreate || ev.File == nil {
			continue
		}
		f, ok := ev.File.(FileWithID)
		if !ok {
			continue
		}
		if m.wasAutoDetectedBefore(f) && isDetectable(f) {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return
	}
	if m.redetector.Enqueue(candidates) {
		slog.Debug("Queued files for re-detection", "files", len(candidates))
	}
}

// reDetect classifies a chunk from scratch. A file whose name now resolves
// to a type loses its content-detected state instead of being re-read.
func (m *Manager) reDetect(files []FileWithID) (changes []TypeChange, crashed []FileWithID) {
	for _, f := range files {
		if !m.wasAutoDetectedBefore(f) || !isDetectable(f) {
			continue
		}
		id := f.ID()
		slot := f.TypeSlot()

		before := textOrBinary(m.flags.Get(id))
		if before == nil {
			if st, _ := slot.Load(); st != nil {
				before = st
			} else {
				before = PlainText
			}
		}

		after := m.byFile(f)
		if after == nil {
			t, err := m.detectAndCache(f, nil)
			if err != nil {
				slog.Debug("Re-detection failed", "path", f.Path(), "error", err)
				crashed = append(crashed, f)
				continue
			}
			after = t
		} else {
			slot.Reset(func() { m.flags.Set(id, 0) })
		}

		if before != after {
			slog.Debug("File type changed", "path", f.Path(), "before", before.Name(), "after", after.Name())
			changes = append(changes, TypeChange{File: f, Before: before, After: after})
		}
	}
	return changes, crashed
}

// DumpRedetectQueue returns the files waiting for re-detection.
func (m *Manager) DumpRedetectQueue() []File {
	queued := m.redetector.Dump()
	out := make([]File, len(queued))
	for i, f := range queued {
		out[i] = f
	}
	return out
}

// DrainRedetectQueue waits until the re-detection worker is idle.
func (m *Manager) DrainRedetectQueue(ctx context.Context) error {
	return m.redetector.Wait(ctx)
}
