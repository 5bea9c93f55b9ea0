// Package assoc holds the association table mapping file name rules to values.
package assoc

import (
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes/matcher"

	"github.com/armon/go-radix"
)

// Mapping is one effective (matcher, value) pair.
type Mapping[T comparable] struct {
	Matcher matcher.FileNameMatcher
	Value   T
}

// entry keeps every value ever associated with a matcher. The last element
// is the effective one; removing it lets the previous association resurface.
type entry[T comparable] struct {
	matcher matcher.FileNameMatcher
	values  []T
}

func (e *entry[T]) top() T { return e.values[len(e.values)-1] }

func (e *entry[T]) contains(v T) bool {
	for _, x := range e.values {
		if x == v {
			return true
		}
	}
	return false
}

func (e *entry[T]) remove(v T) bool {
	for i := len(e.values) - 1; i >= 0; i-- {
		if e.values[i] == v {
			e.values = append(e.values[:i], e.values[i+1:]...)
			return true
		}
	}
	return false
}

func (e *entry[T]) clone() *entry[T] {
	return &entry[T]{matcher: e.matcher, values: append([]T(nil), e.values...)}
}

// Table is an ordered multimap from file name matchers to values.
//
// Lookup order for a name: exact name, exact name ignoring case, wildcard and
// custom matchers (most recently associated first), then the longest
// registered extension suffix. A miss yields the table's fallback value.
//
// Table is not safe for concurrent mutation; owners guard it with their own
// lock or publish copies.
type Table[T comparable] struct {
	fallback   T
	exact      map[string]*entry[T]
	anyCase    map[string]*entry[T]
	extensions *radix.Tree // reversed ".ext" -> *entry[T]
	matchers   []*entry[T] // most recent first
	hashBangs  map[string]*entry[T]
}

// New returns an empty table answering fallback for unmatched names.
func New[T comparable](fallback T) *Table[T] {
	return &Table[T]{
		fallback:   fallback,
		exact:      make(map[string]*entry[T]),
		anyCase:    make(map[string]*entry[T]),
		extensions: radix.New(),
		hashBangs:  make(map[string]*entry[T]),
	}
}

// Fallback returns the value reported for unmatched names.
func (t *Table[T]) Fallback() T { return t.fallback }

func extensionKey(ext string) string {
	return reverse("." + strings.ToLower(ext))
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// slot returns the entry for m, creating it when create is set.
func (t *Table[T]) slot(m matcher.FileNameMatcher, create bool) *entry[T] {
	switch mm := m.(type) {
	case matcher.ExactName:
		table := t.exact
		key := mm.Name()
		if mm.IgnoreCase() {
			table = t.anyCase
			key = strings.ToLower(key)
		}
		e, ok := table[key]
		if !ok && create {
			e = &entry[T]{matcher: m}
			table[key] = e
		}
		return e
	case matcher.Extension:
		key := extensionKey(mm.Extension())
		if v, ok := t.extensions.Get(key); ok {
			return v.(*entry[T])
		}
		if !create {
			return nil
		}
		e := &entry[T]{matcher: m}
		t.extensions.Insert(key, e)
		return e
	default:
		for _, e := range t.matchers {
			if e.matcher.Key() == m.Key() {
				return e
			}
		}
		if !create {
			return nil
		}
		e := &entry[T]{matcher: m}
		t.matchers = append([]*entry[T]{e}, t.matchers...)
		return e
	}
}

// AddAssociation associates v with m. Re-adding an existing pair makes it the
// effective association again.
func (t *Table[T]) AddAssociation(m matcher.FileNameMatcher, v T) {
	e := t.slot(m, true)
	e.remove(v)
	e.values = append(e.values, v)
	t.promote(e)
}

// promote moves a generic matcher entry to the front so it wins over older ones.
func (t *Table[T]) promote(e *entry[T]) {
	for i, x := range t.matchers {
		if x == e {
			copy(t.matchers[1:i+1], t.matchers[:i])
			t.matchers[0] = e
			return
		}
	}
}

// RemoveAssociation removes the exact (m, v) pair. It reports whether the pair existed.
func (t *Table[T]) RemoveAssociation(m matcher.FileNameMatcher, v T) bool {
	e := t.slot(m, false)
	if e == nil || !e.remove(v) {
		return false
	}
	if len(e.values) == 0 {
		t.drop(e)
	}
	return true
}

func (t *Table[T]) drop(e *entry[T]) {
	switch mm := e.matcher.(type) {
	case matcher.ExactName:
		if mm.IgnoreCase() {
			delete(t.anyCase, strings.ToLower(mm.Name()))
		} else {
			delete(t.exact, mm.Name())
		}
	case matcher.Extension:
		t.extensions.Delete(extensionKey(mm.Extension()))
	default:
		for i, x := range t.matchers {
			if x == e {
				t.matchers = append(t.matchers[:i], t.matchers[i+1:]...)
				break
			}
		}
	}
}

// RemoveAllAssociations removes v from every matcher and hashbang.
func (t *Table[T]) RemoveAllAssociations(v T) {
	for _, e := range t.entries() {
		if e.remove(v) && len(e.values) == 0 {
			t.drop(e)
		}
	}
	for key, e := range t.hashBangs {
		if e.remove(v) && len(e.values) == 0 {
			delete(t.hashBangs, key)
		}
	}
}

// IsAssociatedWith reports whether the pair (m, v) is present.
func (t *Table[T]) IsAssociatedWith(v T, m matcher.FileNameMatcher) bool {
	e := t.slot(m, false)
	return e != nil && e.contains(v)
}

// FindAssociated returns the value for name, or the fallback.
func (t *Table[T]) FindAssociated(name string) T {
	if v, ok := t.Lookup(name); ok {
		return v
	}
	return t.fallback
}

// Lookup is FindAssociated with an explicit hit flag.
func (t *Table[T]) Lookup(name string) (T, bool) {
	if e, ok := t.exact[name]; ok {
		return e.top(), true
	}
	if len(t.anyCase) > 0 {
		if e, ok := t.anyCase[strings.ToLower(name)]; ok {
			return e.top(), true
		}
	}
	for _, e := range t.matchers {
		if e.matcher.Matches(name) {
			return e.top(), true
		}
	}
	if t.extensions.Len() > 0 && strings.IndexByte(name, '.') >= 0 {
		// Keys are reversed ".ext", so the longest prefix of the reversed name
		// is the most specific extension and always ends on a dot boundary.
		if _, v, ok := t.extensions.LongestPrefix(reverse(strings.ToLower(name))); ok {
			return v.(*entry[T]).top(), true
		}
	}
	var zero T
	return zero, false
}

// FindByExtension looks up a bare extension ("go", "tar.gz") without the
// name-based rules.
func (t *Table[T]) FindByExtension(ext string) T {
	if ext == "" {
		return t.fallback
	}
	if v, ok := t.extensions.Get(extensionKey(ext)); ok {
		return v.(*entry[T]).top()
	}
	return t.fallback
}

// AddHashBang associates an interpreter name ("python3") with v.
func (t *Table[T]) AddHashBang(interpreter string, v T) {
	e, ok := t.hashBangs[interpreter]
	if !ok {
		e = &entry[T]{}
		t.hashBangs[interpreter] = e
	}
	e.remove(v)
	e.values = append(e.values, v)
}

// RemoveHashBang removes the (interpreter, v) pair.
func (t *Table[T]) RemoveHashBang(interpreter string, v T) bool {
	e, ok := t.hashBangs[interpreter]
	if !ok || !e.remove(v) {
		return false
	}
	if len(e.values) == 0 {
		delete(t.hashBangs, interpreter)
	}
	return true
}

// FindByHashBang returns the value for an interpreter name, or the fallback.
func (t *Table[T]) FindByHashBang(interpreter string) T {
	if e, ok := t.hashBangs[interpreter]; ok {
		return e.top()
	}
	return t.fallback
}

// HashBangs returns the interpreters whose effective value is v, sorted.
func (t *Table[T]) HashBangs(v T) []string {
	var out []string
	for key, e := range t.hashBangs {
		if e.top() == v {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// entries returns every matcher entry in lookup order.
func (t *Table[T]) entries() []*entry[T] {
	out := make([]*entry[T], 0, len(t.exact)+len(t.anyCase)+len(t.matchers)+t.extensions.Len())
	for _, key := range sortedKeys(t.exact) {
		out = append(out, t.exact[key])
	}
	for _, key := range sortedKeys(t.anyCase) {
		out = append(out, t.anyCase[key])
	}
	out = append(out, t.matchers...)
	t.extensions.Walk(func(_ string, v interface{}) bool {
		out = append(out, v.(*entry[T]))
		return false
	})
	return out
}

func sortedKeys[T comparable](m map[string]*entry[T]) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Associations returns the matchers whose effective value is v.
func (t *Table[T]) Associations(v T) []matcher.FileNameMatcher {
	var out []matcher.FileNameMatcher
	for _, e := range t.entries() {
		if e.top() == v {
			out = append(out, e.matcher)
		}
	}
	return out
}

// AssociatedExtensions returns the extensions whose effective value is v.
func (t *Table[T]) AssociatedExtensions(v T) []string {
	var out []string
	for _, m := range t.Associations(v) {
		if ext, ok := m.(matcher.Extension); ok {
			out = append(out, ext.Extension())
		}
	}
	sort.Strings(out)
	return out
}

// HasAssociationsFor reports whether v is reachable through any rule.
func (t *Table[T]) HasAssociationsFor(v T) bool {
	for _, e := range t.entries() {
		if e.contains(v) {
			return true
		}
	}
	for _, e := range t.hashBangs {
		if e.contains(v) {
			return true
		}
	}
	return false
}

// Mappings returns every effective pair in lookup order.
func (t *Table[T]) Mappings() []Mapping[T] {
	entries := t.entries()
	out := make([]Mapping[T], 0, len(entries))
	for _, e := range entries {
		out = append(out, Mapping[T]{Matcher: e.matcher, Value: e.top()})
	}
	return out
}

// Len returns the number of matchers with at least one association.
func (t *Table[T]) Len() int {
	return len(t.exact) + len(t.anyCase) + len(t.matchers) + t.extensions.Len()
}

// Copy returns an independent snapshot of the table.
func (t *Table[T]) Copy() *Table[T] {
	c := New(t.fallback)
	for k, e := range t.exact {
		c.exact[k] = e.clone()
	}
	for k, e := range t.anyCase {
		c.anyCase[k] = e.clone()
	}
	for k, e := range t.hashBangs {
		c.hashBangs[k] = e.clone()
	}
	c.matchers = make([]*entry[T], len(t.matchers))
	for i, e := range t.matchers {
		c.matchers[i] = e.clone()
	}
	t.extensions.Walk(func(k string, v interface{}) bool {
		c.extensions.Insert(k, v.(*entry[T]).clone())
		return false
	})
	return c
}
