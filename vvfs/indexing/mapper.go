package indexing

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// IdentityStore persists path identities so they survive the process.
type IdentityStore interface {
	LoadIdentities() (map[string]PathID, error)
	SaveIdentity(path string, id PathID) error
}

// SimplePathIDMapper is a compact map-based mapper from canonicalized path -> PathID.
// Identities are handed out on first sight and never reused, so a path keeps
// its identity for the lifetime of the mapper even after the file is deleted.
// With a store, that lifetime extends across processes.
type SimplePathIDMapper struct {
	mu       sync.RWMutex
	pathToID map[string]PathID
	idToPath []string
	store    IdentityStore
}

func NewSimplePathIDMapper() *SimplePathIDMapper {
	return &SimplePathIDMapper{pathToID: make(map[string]PathID)}
}

// LoadPathIDMapper restores the identities kept in store. Identities assigned
// later are written back to it.
func LoadPathIDMapper(store IdentityStore) (*SimplePathIDMapper, error) {
	saved, err := store.LoadIdentities()
	if err != nil {
		return nil, fmt.Errorf("failed to load path identities: %w", err)
	}
	m := NewSimplePathIDMapper()
	m.store = store
	for p, id := range saved {
		cp := canonicalize(p)
		m.pathToID[cp] = id
		if int(id) >= len(m.idToPath) {
			m.idToPath = append(m.idToPath, make([]string, int(id)+1-len(m.idToPath))...)
		}
		m.idToPath[id] = cp
	}
	return m, nil
}

func (m *SimplePathIDMapper) Lookup(path string) (PathID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.pathToID[canonicalize(path)]
	return id, ok
}

func (m *SimplePathIDMapper) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pathToID)
}

// Assign returns the identity of path, allocating the next free one if needed.
// A failed write to the store is logged; the identity stays valid for this
// process and the store drops whatever it held for it on the next save.
func (m *SimplePathIDMapper) Assign(path string) PathID {
	cp := canonicalize(path)

	m.mu.RLock()
	id, ok := m.pathToID[cp]
	m.mu.RUnlock()
	if ok {
		return id
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.pathToID[cp]; ok {
		return id
	}
	id = PathID(len(m.idToPath))
	m.pathToID[cp] = id
	m.idToPath = append(m.idToPath, cp)
	if m.store != nil {
		if err := m.store.SaveIdentity(cp, id); err != nil {
			slog.Error("Failed to persist path identity", "path", cp, "id", id, "error", err)
		}
	}
	return id
}

// Path returns the canonical path registered for id.
func (m *SimplePathIDMapper) Path(id PathID) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(id) >= len(m.idToPath) || m.idToPath[id] == "" {
		return "", false
	}
	return m.idToPath[id], true
}

// BuildFromDir assigns PathIDs to every entry under root in lexical path
// order, so a fresh mapper produces deterministic identities. Paths already
// known keep their identity. Returns the canonical paths visited.
func (m *SimplePathIDMapper) BuildFromDir(fs afero.Fs, root string) ([]string, error) {
	canonicalRoot := canonicalize(root)
	var paths []string
	err := afero.Walk(fs, canonicalRoot, func(p string, _ os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		paths = append(paths, canonicalize(p))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	for _, p := range paths {
		m.Assign(p)
	}
	return paths, nil
}

func canonicalize(p string) string {
	// Convert backslashes to forward slashes and clean components.
	p = strings.ReplaceAll(p, "\\", "/")
	// filepath.Clean preserves platform separators; convert after cleaning.
	p = filepath.ToSlash(filepath.Clean(p))
	// Drop trailing slash except for root
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}
