package indexing

import (
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	segmentShift = 10
	segmentWords = 1 << segmentShift // 64-bit words per segment
)

type segment [segmentWords]atomic.Uint64

type segmentTable struct {
	segments []atomic.Pointer[segment]
}

// PackedBitsArray stores a small fixed-width record per PathID, packed into
// 64-bit words. Storage grows in fixed-size segments as larger identities are
// written, so a new maximum id never copies existing records.
//
// Get and Set are lock-free; Set on one id is a compare-and-swap of the word
// holding it, so concurrent writers never tear a record and writers of
// different ids never block each other. Segment allocation and Clear take a
// short mutex.
type PackedBitsArray struct {
	bits           uint
	recordsPerWord uint32
	mask           uint64

	table  atomic.Pointer[segmentTable]
	growMu sync.Mutex
}

// NewPackedBitsArray returns an array of records bitsPerRecord wide. The
// width must divide 64.
func NewPackedBitsArray(bitsPerRecord int) *PackedBitsArray {
	if bitsPerRecord <= 0 || bitsPerRecord > 64 || 64%bitsPerRecord != 0 {
		panic(fmt.Sprintf("indexing: record width %d must divide 64", bitsPerRecord))
	}
	a := &PackedBitsArray{
		bits:           uint(bitsPerRecord),
		recordsPerWord: uint32(64 / bitsPerRecord),
		mask:           uint64(1)<<uint(bitsPerRecord) - 1,
	}
	if bitsPerRecord == 64 {
		a.mask = ^uint64(0)
	}
	a.table.Store(&segmentTable{})
	return a
}

func (a *PackedBitsArray) locate(id PathID) (seg, off int, shift uint) {
	word := id / a.recordsPerWord
	shift = uint(id%a.recordsPerWord) * a.bits
	return int(word >> segmentShift), int(word & (segmentWords - 1)), shift
}

// Get returns the record for id; records never written read as zero.
func (a *PackedBitsArray) Get(id PathID) uint64 {
	seg, off, shift := a.locate(id)
	t := a.table.Load()
	if seg >= len(t.segments) {
		return 0
	}
	s := t.segments[seg].Load()
	if s == nil {
		return 0
	}
	return (s[off].Load() >> shift) & a.mask
}

// Set replaces the record for id with value (truncated to the record width).
func (a *PackedBitsArray) Set(id PathID, value uint64) {
	seg, off, shift := a.locate(id)
	word := &a.ensure(seg)[off]
	value = (value & a.mask) << shift
	keep := ^(a.mask << shift)
	for {
		old := word.Load()
		if word.CompareAndSwap(old, (old&keep)|value) {
			return
		}
	}
}

// Update applies fn to the current record of id atomically and returns the new value.
func (a *PackedBitsArray) Update(id PathID, fn func(old uint64) uint64) uint64 {
	seg, off, shift := a.locate(id)
	word := &a.ensure(seg)[off]
	keep := ^(a.mask << shift)
	for {
		old := word.Load()
		next := fn((old>>shift)&a.mask) & a.mask
		if word.CompareAndSwap(old, (old&keep)|(next<<shift)) {
			return next
		}
	}
}

func (a *PackedBitsArray) ensure(seg int) *segment {
	if t := a.table.Load(); seg < len(t.segments) {
		if s := t.segments[seg].Load(); s != nil {
			return s
		}
	}

	a.growMu.Lock()
	defer a.growMu.Unlock()

	t := a.table.Load()
	if seg >= len(t.segments) {
		n := max(seg+1, 2*len(t.segments))
		grown := &segmentTable{segments: make([]atomic.Pointer[segment], n)}
		for i := range t.segments {
			grown.segments[i].Store(t.segments[i].Load())
		}
		a.table.Store(grown)
		t = grown
	}
	s := t.segments[seg].Load()
	if s == nil {
		s = new(segment)
		t.segments[seg].Store(s)
	}
	return s
}

// Clear drops every record by swapping in an empty container. Readers that
// already hold the old container keep a consistent, stale view.
func (a *PackedBitsArray) Clear() {
	a.growMu.Lock()
	a.table.Store(&segmentTable{})
	a.growMu.Unlock()
}

// Segments returns the number of allocated segments.
func (a *PackedBitsArray) Segments() int {
	t := a.table.Load()
	n := 0
	for i := range t.segments {
		if t.segments[i].Load() != nil {
			n++
		}
	}
	return n
}

// Capacity returns how many records the allocated segments can hold.
func (a *PackedBitsArray) Capacity() int {
	return a.Segments() * segmentWords * int(a.recordsPerWord)
}
