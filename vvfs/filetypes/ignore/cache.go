package ignore

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	roaring "github.com/RoaringBitmap/roaring"
	gitignore "github.com/sabhiram/go-gitignore"
)

// Entry is the part of a file handle the cache needs.
type Entry interface {
	Name() string
}

type identified interface {
	ID() uint32
}

type rooted interface {
	IsRoot() bool
}

type pathed interface {
	Path() string
}

// FileCache answers "is this file ignored" for handles, memoising the result
// for handles that carry a dense identity. It must be cleared whenever the
// underlying masks or rules change.
type FileCache struct {
	patterns *PatternSet

	mu      sync.RWMutex
	checked *roaring.Bitmap
	ignored *roaring.Bitmap
	// bumped by Clear and LoadRules; answers computed under an older stamp
	// are not memoised
	stamp uint64

	rules *gitignore.GitIgnore
	roots []string
}

// NewFileCache returns a cache over patterns.
func NewFileCache(patterns *PatternSet) *FileCache {
	return &FileCache{
		patterns: patterns,
		checked:  roaring.New(),
		ignored:  roaring.New(),
	}
}

// LoadRules compiles a gitignore-style rules file whose patterns apply
// relative to each of roots. Paths outside every root are only checked
// against the name masks.
func (c *FileCache) LoadRules(rulesFile string, roots ...string) error {
	rules, err := gitignore.CompileIgnoreFile(rulesFile)
	if err != nil {
		return fmt.Errorf("failed to compile ignore rules %s: %w", rulesFile, err)
	}
	cleaned := make([]string, len(roots))
	for i, r := range roots {
		cleaned[i] = filepath.Clean(r)
	}

	c.mu.Lock()
	c.rules = rules
	c.roots = cleaned
	c.resetLocked()
	c.mu.Unlock()
	return nil
}

// IsFileIgnored reports whether e is ignored. Roots are never ignored.
func (c *FileCache) IsFileIgnored(e Entry) bool {
	if r, ok := e.(rooted); ok && r.IsRoot() {
		return false
	}

	idf, ok := e.(identified)
	if !ok {
		return c.compute(e)
	}
	id := idf.ID()

	c.mu.RLock()
	if c.checked.Contains(id) {
		ignored := c.ignored.Contains(id)
		c.mu.RUnlock()
		return ignored
	}
	stamp := c.stamp
	c.mu.RUnlock()

	ignored := c.compute(e)

	c.mu.Lock()
	if c.stamp == stamp {
		c.checked.Add(id)
		if ignored {
			c.ignored.Add(id)
		} else {
			c.ignored.Remove(id)
		}
	}
	c.mu.Unlock()
	return ignored
}

func (c *FileCache) compute(e Entry) bool {
	if c.patterns.IsIgnored(e.Name()) {
		return true
	}

	c.mu.RLock()
	rules, roots := c.rules, c.roots
	c.mu.RUnlock()
	if rules == nil {
		return false
	}
	p, ok := e.(pathed)
	if !ok {
		return false
	}
	path := filepath.Clean(p.Path())
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if rules.MatchesPath(filepath.ToSlash(rel)) {
			return true
		}
	}
	return false
}

// Clear forgets every memoised answer.
func (c *FileCache) Clear() {
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
}

func (c *FileCache) resetLocked() {
	c.checked.Clear()
	c.ignored.Clear()
	c.stamp++
}

// Size returns the number of memoised handles.
func (c *FileCache) Size() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.checked.GetCardinality()
}
