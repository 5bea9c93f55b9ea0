// Package ignore decides which file names are hidden from classification and
// indexing.
package ignore

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes/assoc"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes/matcher"
)

// DefaultIgnoredMasks is the built-in mask list. It must stay sorted.
const DefaultIgnoredMasks = "*.hprof;*.pyc;*.pyo;*.rbc;*.yarb;*~;.DS_Store;.git;.hg;.svn;CVS;__pycache__;_svn;vssver.scc;vssver2.scc;"

// ErrUnsortedMasks is returned when a mask list that must be sorted is not.
var ErrUnsortedMasks = errors.New("ignore mask list is not sorted")

func init() {
	if err := CheckSorted(DefaultIgnoredMasks); err != nil {
		panic(err)
	}
}

// CheckSorted verifies that a ";"-separated list is strictly ascending.
func CheckSorted(list string) error {
	prev := ""
	for i, mask := range splitMasks(list) {
		if i > 0 && prev >= mask {
			return fmt.Errorf("%w: %q >= %q", ErrUnsortedMasks, prev, mask)
		}
		prev = mask
	}
	return nil
}

func splitMasks(list string) []string {
	var out []string
	for _, mask := range strings.Split(list, ";") {
		if mask = strings.TrimSpace(mask); mask != "" {
			out = append(out, mask)
		}
	}
	return out
}

// PatternSet is the ordered list of ignore masks, indexed for lookup through
// an association table of booleans.
type PatternSet struct {
	mu    sync.RWMutex
	masks []string
	table *assoc.Table[bool]
}

// NewPatternSet returns an empty set.
func NewPatternSet() *PatternSet {
	return &PatternSet{table: assoc.New(false)}
}

// NewDefaultPatternSet returns a set holding DefaultIgnoredMasks.
func NewDefaultPatternSet() (*PatternSet, error) {
	if err := CheckSorted(DefaultIgnoredMasks); err != nil {
		return nil, err
	}
	s := NewPatternSet()
	s.SetIgnoreMasks(DefaultIgnoredMasks)
	return s, nil
}

// SetIgnoreMasks replaces the masks with a ";"-separated list. Masks that
// cannot be parsed are logged and skipped.
func (s *PatternSet) SetIgnoreMasks(list string) {
	table := assoc.New(false)
	var masks []string
	seen := make(map[string]bool)
	for _, mask := range splitMasks(list) {
		if seen[mask] {
			continue
		}
		m, err := matcher.Parse(mask)
		if err != nil {
			slog.Warn("Skipping invalid ignore mask", "mask", mask, "error", err)
			continue
		}
		seen[mask] = true
		masks = append(masks, mask)
		table.AddAssociation(m, true)
	}

	s.mu.Lock()
	s.masks = masks
	s.table = table
	s.mu.Unlock()
}

// AddIgnoreMask appends one mask.
func (s *PatternSet) AddIgnoreMask(mask string) error {
	m, err := matcher.Parse(mask)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.masks {
		if existing == mask {
			return nil
		}
	}
	s.masks = append(s.masks, mask)
	s.table.AddAssociation(m, true)
	return nil
}

// IgnoreMasks returns the masks in insertion order.
func (s *PatternSet) IgnoreMasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.masks...)
}

// String renders the masks as a ";"-terminated list.
func (s *PatternSet) String() string {
	masks := s.IgnoreMasks()
	if len(masks) == 0 {
		return ""
	}
	return strings.Join(masks, ";") + ";"
}

// Equal reports whether list holds the same set of masks.
func (s *PatternSet) Equal(list string) bool {
	other := make(map[string]bool)
	for _, mask := range splitMasks(list) {
		other[mask] = true
	}
	masks := s.IgnoreMasks()
	if len(other) != len(masks) {
		return false
	}
	for _, mask := range masks {
		if !other[mask] {
			return false
		}
	}
	return true
}

// IsIgnored reports whether name matches any mask.
func (s *PatternSet) IsIgnored(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.FindAssociated(name)
}
