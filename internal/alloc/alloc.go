// Package alloc sub-allocates GPU memory. Large blocks are requested from
// the backend once per memory class and carved first-fit; requests bigger
// than half a block get a dedicated block of their own.
package alloc

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// Source allocates a native memory block of size bytes in the given class.
type Source func(class uint32, size uint64) (any, error)

// Release frees a native memory block previously returned by a Source.
type Release func(mem any)

type span struct {
	offset uint64
	size   uint64
}

func (s span) end() uint64 { return s.offset + s.size }

// Block is one native allocation owned by the Allocator.
type Block struct {
	Memory    any
	Class     uint32
	Size      uint64
	dedicated bool
	free      []span
	used      uint64
	live      int
}

// Allocation is a range inside a Block. Offset is aligned as requested.
type Allocation struct {
	Block  *Block
	Offset uint64
	Size   uint64

	reserved span
}

func (a Allocation) String() string {
	return fmt.Sprintf("[%d %d]", a.Offset, a.Size)
}

// IsNil reports whether a came from a zero-size request or is unset.
func (a Allocation) IsNil() bool {
	return a.Block == nil
}

type Stats struct {
	Blocks    int
	Dedicated int
	Reserved  uint64
	Used      uint64
	Live      int
}

// Allocator is safe for concurrent use.
type Allocator struct {
	mu        sync.Mutex
	blockSize uint64
	source    Source
	release   Release
	pools     map[uint32][]*Block
}

func New(blockSize uint64, source Source, release Release) *Allocator {
	if blockSize == 0 {
		blockSize = 64 << 20
	}
	return &Allocator{
		blockSize: blockSize,
		source:    source,
		release:   release,
		pools:     make(map[uint32][]*Block),
	}
}

func makeAlignUp(a uint64, align uint64) uint64 {
	if align <= 1 {
		return a
	}
	m := a % align
	if m == 0 {
		return a
	}
	return a - m + align
}

// Allocate reserves size bytes aligned to align in the given class.
func (a *Allocator) Allocate(class uint32, size, align uint64) (Allocation, error) {
	if size == 0 {
		return Allocation{}, errors.New("alloc: zero-size allocation")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if size > a.blockSize/2 {
		return a.allocateDedicated(class, size)
	}

	for _, b := range a.pools[class] {
		if al, ok := b.carve(size, align); ok {
			return al, nil
		}
	}

	mem, err := a.source(class, a.blockSize)
	if err != nil {
		return Allocation{}, errors.Wrapf(err, "alloc: new block class=%d size=%d", class, a.blockSize)
	}
	b := &Block{
		Memory: mem,
		Class:  class,
		Size:   a.blockSize,
		free:   []span{{0, a.blockSize}},
	}
	a.pools[class] = append(a.pools[class], b)
	al, ok := b.carve(size, align)
	if !ok {
		return Allocation{}, errors.AssertionFailedf("alloc: fresh block cannot hold %d bytes", size)
	}
	return al, nil
}

func (a *Allocator) allocateDedicated(class uint32, size uint64) (Allocation, error) {
	mem, err := a.source(class, size)
	if err != nil {
		return Allocation{}, errors.Wrapf(err, "alloc: dedicated block class=%d size=%d", class, size)
	}
	b := &Block{
		Memory:    mem,
		Class:     class,
		Size:      size,
		dedicated: true,
		used:      size,
		live:      1,
	}
	a.pools[class] = append(a.pools[class], b)
	return Allocation{Block: b, Offset: 0, Size: size, reserved: span{0, size}}, nil
}

// Free returns al to its block. Adjacent free ranges are merged. Empty
// blocks are released back to the Source, except the last shared block of a
// class.
func (a *Allocator) Free(al Allocation) {
	if al.Block == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	b := al.Block
	b.live--
	b.used -= al.reserved.size
	if !b.dedicated {
		b.insertFree(al.reserved)
	}
	if b.live > 0 {
		return
	}
	if !b.dedicated && a.sharedBlocks(b.Class) == 1 {
		return
	}
	a.dropBlock(b)
}

func (a *Allocator) sharedBlocks(class uint32) int {
	n := 0
	for _, b := range a.pools[class] {
		if !b.dedicated {
			n++
		}
	}
	return n
}

func (a *Allocator) dropBlock(b *Block) {
	blocks := a.pools[b.Class]
	for i, o := range blocks {
		if o == b {
			a.pools[b.Class] = append(blocks[:i], blocks[i+1:]...)
			break
		}
	}
	if a.release != nil {
		a.release(b.Memory)
	}
}

func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	var s Stats
	for _, blocks := range a.pools {
		for _, b := range blocks {
			s.Blocks++
			if b.dedicated {
				s.Dedicated++
			}
			s.Reserved += b.Size
			s.Used += b.used
			s.Live += b.live
		}
	}
	return s
}

// Destroy releases every block regardless of live allocations.
func (a *Allocator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for class, blocks := range a.pools {
		for _, b := range blocks {
			if a.release != nil {
				a.release(b.Memory)
			}
		}
		delete(a.pools, class)
	}
}

func (b *Block) carve(size, align uint64) (Allocation, bool) {
	for i, s := range b.free {
		start := makeAlignUp(s.offset, align)
		if start+size > s.end() {
			continue
		}
		reserved := span{s.offset, start + size - s.offset}
		rest := span{start + size, s.end() - (start + size)}
		if rest.size == 0 {
			b.free = append(b.free[:i], b.free[i+1:]...)
		} else {
			b.free[i] = rest
		}
		b.used += reserved.size
		b.live++
		return Allocation{Block: b, Offset: start, Size: size, reserved: reserved}, true
	}
	return Allocation{}, false
}

func (b *Block) insertFree(s span) {
	i := sort.Search(len(b.free), func(i int) bool { return b.free[i].offset >= s.offset })
	b.free = append(b.free, span{})
	copy(b.free[i+1:], b.free[i:])
	b.free[i] = s

	// merge with next, then with previous
	if i+1 < len(b.free) && b.free[i].end() == b.free[i+1].offset {
		b.free[i].size += b.free[i+1].size
		b.free = append(b.free[:i+1], b.free[i+2:]...)
	}
	if i > 0 && b.free[i-1].end() == b.free[i].offset {
		b.free[i-1].size += b.free[i].size
		b.free = append(b.free[:i], b.free[i+1:]...)
	}
}

// FreeBytes is the total unreserved space in b.
func (b *Block) FreeBytes() uint64 {
	var n uint64
	for _, s := range b.free {
		n += s.size
	}
	return n
}
