package filetypes

import "sync/atomic"

// FreezeScope pins the type of one file for the duration of an operation.
// Lookups passed the scope with WithScope return the pinned type for that
// file until Release is called.
type FreezeScope struct {
	file     File
	t        *FileType
	released atomic.Bool
}

// Freeze pins f to its current type.
func (m *Manager) Freeze(f File) *FreezeScope {
	return &FreezeScope{file: f, t: m.FileTypeByFile(f)}
}

// Type returns the pinned type.
func (s *FreezeScope) Type() *FileType { return s.t }

// Release ends the scope. It is safe to call more than once.
func (s *FreezeScope) Release() { s.released.Store(true) }

func (s *FreezeScope) typeOf(f File) (*FileType, bool) {
	if s == nil || s.released.Load() || !sameFile(s.file, f) {
		return nil, false
	}
	return s.t, true
}

func sameFile(a, b File) bool {
	ai, aok := a.(FileWithID)
	bi, bok := b.(FileWithID)
	if aok && bok {
		return ai.ID() == bi.ID()
	}
	if aok != bok {
		return false
	}
	return a.TypeSlot() == b.TypeSlot()
}
