package indexing

import (
	roaring "github.com/RoaringBitmap/roaring"
)

// IdentitySet is a compressed set of PathIDs. It is not safe for concurrent
// use; owners serialise access with their own lock.
type IdentitySet struct {
	bm *roaring.Bitmap
}

func NewIdentitySet() *IdentitySet {
	return &IdentitySet{bm: roaring.New()}
}

// Add inserts id and reports whether it was absent.
func (s *IdentitySet) Add(id PathID) bool {
	return s.bm.CheckedAdd(id)
}

// Remove deletes id and reports whether it was present.
func (s *IdentitySet) Remove(id PathID) bool {
	return s.bm.CheckedRemove(id)
}

func (s *IdentitySet) Contains(id PathID) bool {
	return s.bm.Contains(id)
}

func (s *IdentitySet) Len() int {
	return int(s.bm.GetCardinality())
}

func (s *IdentitySet) Clear() {
	s.bm.Clear()
}

// ToArray returns the members in ascending order.
func (s *IdentitySet) ToArray() []PathID {
	return s.bm.ToArray()
}

// Clone returns an independent copy.
func (s *IdentitySet) Clone() *IdentitySet {
	c := roaring.New()
	c.Or(s.bm) // copy
	return &IdentitySet{bm: c}
}
