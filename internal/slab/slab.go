// Package slab stores values in a generation-checked arena. A Handle stays
// valid until the slot it names is released; after that every lookup through
// the stale handle fails, even when the slot has been reused.
package slab

// Handle names one slot of a Slab. The zero Handle is never valid.
type Handle struct {
	Index uint32
	Gen   uint32
}

// IsNil reports whether h is the zero handle.
func (h Handle) IsNil() bool {
	return h.Gen == 0
}

type entry[T any] struct {
	value T
	gen   uint32
	live  bool
}

// Slab is a growable arena of T. It is not safe for concurrent use.
type Slab[T any] struct {
	entries []entry[T]
	free    []uint32
	live    int
}

func New[T any](capacity int) *Slab[T] {
	return &Slab[T]{
		entries: make([]entry[T], 0, capacity),
	}
}

// Insert stores v and returns its handle. Free slots are reused before the
// arena grows.
func (s *Slab[T]) Insert(v T) Handle {
	var index uint32
	if n := len(s.free); n > 0 {
		index = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		s.entries = append(s.entries, entry[T]{})
		index = uint32(len(s.entries) - 1)
	}
	e := &s.entries[index]
	e.gen++
	if e.gen == 0 {
		e.gen = 1
	}
	e.value = v
	e.live = true
	s.live++
	return Handle{Index: index, Gen: e.gen}
}

// Get returns the value for h, or false when h is stale or nil.
func (s *Slab[T]) Get(h Handle) (T, bool) {
	var zero T
	if !s.valid(h) {
		return zero, false
	}
	return s.entries[h.Index].value, true
}

// Ptr returns a pointer into the arena. The pointer is invalidated by the
// next Insert.
func (s *Slab[T]) Ptr(h Handle) *T {
	if !s.valid(h) {
		return nil
	}
	return &s.entries[h.Index].value
}

// Remove retires h and returns the value it named. The slot's generation is
// bumped on the next Insert so old handles never resolve again.
func (s *Slab[T]) Remove(h Handle) (T, bool) {
	var zero T
	if !s.valid(h) {
		return zero, false
	}
	e := &s.entries[h.Index]
	v := e.value
	e.value = zero
	e.live = false
	s.free = append(s.free, h.Index)
	s.live--
	return v, true
}

func (s *Slab[T]) Contains(h Handle) bool {
	return s.valid(h)
}

// Len is the number of live entries.
func (s *Slab[T]) Len() int {
	return s.live
}

// Each calls fn for every live entry in index order.
func (s *Slab[T]) Each(fn func(h Handle, v T)) {
	for i := range s.entries {
		e := &s.entries[i]
		if e.live {
			fn(Handle{Index: uint32(i), Gen: e.gen}, e.value)
		}
	}
}

func (s *Slab[T]) valid(h Handle) bool {
	if h.Gen == 0 || int(h.Index) >= len(s.entries) {
		return false
	}
	e := &s.entries[h.Index]
	return e.live && e.gen == h.Gen
}
