package filetypes

import (
	"log/slog"
	"sync/atomic"
)

// AttributeStorage persists per-file attribute values. ReadAttribute returns
// nil, nil when nothing was written.
type AttributeStorage interface {
	ReadAttribute(name string, version int64, id uint32) ([]byte, error)
	WriteAttribute(name string, version int64, id uint32, value []byte) error
}

// GenerationStore persists the generation counter.
type GenerationStore interface {
	LoadGeneration() (int64, error)
	SaveGeneration(generation int64) error
}

// RulesStore persists the fingerprint of the rules replayed by LoadState.
type RulesStore interface {
	LoadRulesFingerprint() (string, error)
	SaveRulesFingerprint(fingerprint string) error
}

// DurableAttribute is a one-byte-per-file attribute namespaced by a version.
// Changing the version makes every byte written under an older version
// unreachable. Storage errors read as "never written" and are never returned.
type DurableAttribute struct {
	name    string
	version atomic.Int64
	store   AttributeStorage
}

// NewDurableAttribute returns an attribute backed by store. A nil store
// never remembers anything.
func NewDurableAttribute(store AttributeStorage, name string, version int64) *DurableAttribute {
	a := &DurableAttribute{name: name, store: store}
	a.version.Store(version)
	return a
}

func (a *DurableAttribute) Version() int64 { return a.version.Load() }

// SetVersion switches the namespace.
func (a *DurableAttribute) SetVersion(version int64) { a.version.Store(version) }

// Load returns the byte stored for f under the current version.
func (a *DurableAttribute) Load(f File) (byte, bool) {
	fid, ok := f.(FileWithID)
	if !ok || a.store == nil {
		return 0, false
	}
	value, err := a.store.ReadAttribute(a.name, a.version.Load(), fid.ID())
	if err != nil {
		slog.Debug("Failed to read file attribute", "attribute", a.name, "path", f.Path(), "error", err)
		return 0, false
	}
	if len(value) == 0 {
		return 0, false
	}
	return value[0], true
}

// Store writes b for f under the current version.
func (a *DurableAttribute) Store(f File, b byte) {
	fid, ok := f.(FileWithID)
	if !ok || a.store == nil {
		return
	}
	if err := a.store.WriteAttribute(a.name, a.version.Load(), fid.ID(), []byte{b}); err != nil {
		slog.Error("Failed to write file attribute", "attribute", a.name, "path", f.Path(), "error", err)
	}
}
