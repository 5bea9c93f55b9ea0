package filetypes

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"

	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes/matcher"
)

// StateLoader applies startup rules to a manager whose tables are locked.
// It is only valid inside the LoadState callback.
type StateLoader struct {
	m       *Manager
	digest  hash.Hash
	applied int
}

// LoadState replays rules kept outside the manager, such as configured
// associations, without notifying listeners.
//
// Every rule applied through the loader feeds a fingerprint. The generation
// only advances when the fingerprint differs from the one stored in
// Options.Rules, so restarting with the same rules keeps stored detection
// results valid. A failing fn leaves the rules applied so far in place and
// always advances the generation.
func (m *Manager) LoadState(fn func(*StateLoader) error) error {
	l := &StateLoader{m: m, digest: sha256.New()}

	m.mu.Lock()
	err := fn(l)
	m.mu.Unlock()

	fingerprint := ""
	if l.applied > 0 {
		fingerprint = hex.EncodeToString(l.digest.Sum(nil))
	}
	if err != nil {
		m.advanceGeneration()
		return err
	}

	if m.opts.Rules == nil {
		if l.applied > 0 {
			m.advanceGeneration()
		}
		return nil
	}
	stored, lerr := m.opts.Rules.LoadRulesFingerprint()
	if lerr != nil {
		slog.Warn("Failed to load rules fingerprint, starting a new generation", "error", lerr)
	} else if stored == fingerprint {
		slog.Debug("Startup rules unchanged", "generation", m.generation.Load(), "rules", l.applied)
		return nil
	}
	m.advanceGeneration()
	if serr := m.opts.Rules.SaveRulesFingerprint(fingerprint); serr != nil {
		slog.Error("Failed to persist rules fingerprint", "error", serr)
	}
	return nil
}

func (l *StateLoader) record(op string, args ...any) {
	l.applied++
	fmt.Fprintln(l.digest, append([]any{op}, args...)...)
}

// Materialize is Manager.Materialize for the locked tables.
func (l *StateLoader) Materialize(name string) (*FileType, error) {
	return l.m.materializeNamedLocked(name)
}

func (l *StateLoader) RegisterFileType(t *FileType, matchers ...matcher.FileNameMatcher) {
	l.record("type", t.Name(), t.Description(), t.IsBinary())
	l.m.types[t.Name()] = t
	for _, fm := range matchers {
		l.Associate(t, fm)
	}
}

// IsAssociatedWith reports whether fm already maps to t.
func (l *StateLoader) IsAssociatedWith(t *FileType, fm matcher.FileNameMatcher) bool {
	return l.m.patterns.IsAssociatedWith(t, fm)
}

func (l *StateLoader) Associate(t *FileType, fm matcher.FileNameMatcher) {
	l.record("assoc", t.Name(), fm.PresentableString())
	l.m.patterns.AddAssociation(fm, t)
}

func (l *StateLoader) AddHashBang(t *FileType, interpreter string) {
	l.record("hashbang", t.Name(), interpreter)
	l.m.patterns.AddHashBang(interpreter, t)
}

// LoadIgnoreRules installs a gitignore-style rules file for paths under any
// of roots. Ignore answers are never persisted, so the rules stay out of the
// fingerprint.
func (l *StateLoader) LoadIgnoreRules(rulesFile string, roots ...string) error {
	return l.m.ignoreCache.LoadRules(rulesFile, roots...)
}
