package alloc

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	next     int
	live     map[int]uint64
	failNext bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{live: make(map[int]uint64)}
}

func (f *fakeSource) alloc(class uint32, size uint64) (any, error) {
	if f.failNext {
		f.failNext = false
		return nil, errors.New("out of device memory")
	}
	f.next++
	f.live[f.next] = size
	return f.next, nil
}

func (f *fakeSource) free(mem any) {
	delete(f.live, mem.(int))
}

func TestAlign(t *testing.T) {
	assert.Equal(t, uint64(12), makeAlignUp(12, 3))
	assert.Equal(t, uint64(12), makeAlignUp(10, 3))
	assert.Equal(t, uint64(7), makeAlignUp(7, 1))
	assert.Equal(t, uint64(256), makeAlignUp(1, 256))
}

func TestAllocator(t *testing.T) {
	src := newFakeSource()
	a := New(1024, src.alloc, src.free)

	first, err := a.Allocate(0, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), first.Offset)

	second, err := a.Allocate(0, 100, 256)
	require.NoError(t, err)
	assert.Equal(t, uint64(256), second.Offset)
	assert.Same(t, first.Block, second.Block)

	// the pad in front of an aligned allocation belongs to it
	third, err := a.Allocate(0, 64, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(356), third.Offset)

	assert.Equal(t, 1, len(src.live))
	st := a.Stats()
	assert.Equal(t, 1, st.Blocks)
	assert.Equal(t, 3, st.Live)
}

func TestFreeCoalesces(t *testing.T) {
	src := newFakeSource()
	a := New(1024, src.alloc, src.free)

	var allocs []Allocation
	for i := 0; i < 4; i++ {
		al, err := a.Allocate(0, 128, 1)
		require.NoError(t, err)
		allocs = append(allocs, al)
	}
	a.Free(allocs[1])
	a.Free(allocs[2])

	// a 256 byte hole now exists between the first and last allocation
	al, err := a.Allocate(0, 256, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(128), al.Offset)

	a.Free(al)
	a.Free(allocs[0])
	a.Free(allocs[3])
	b := allocs[0].Block
	assert.Equal(t, uint64(1024), b.FreeBytes())
	assert.Len(t, b.free, 1)
	// the last shared block stays resident
	assert.Equal(t, 1, len(src.live))
}

func TestNewBlockAndRelease(t *testing.T) {
	src := newFakeSource()
	a := New(1024, src.alloc, src.free)

	x, err := a.Allocate(0, 400, 1)
	require.NoError(t, err)
	y, err := a.Allocate(0, 400, 1)
	require.NoError(t, err)
	z, err := a.Allocate(0, 400, 1)
	require.NoError(t, err)
	assert.NotSame(t, x.Block, z.Block)
	assert.Equal(t, 2, len(src.live))

	a.Free(z)
	assert.Equal(t, 1, len(src.live))
	a.Free(x)
	a.Free(y)
	assert.Equal(t, 1, len(src.live))
}

func TestDedicated(t *testing.T) {
	src := newFakeSource()
	a := New(1024, src.alloc, src.free)

	big, err := a.Allocate(3, 4096, 16)
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), big.Block.Size)
	assert.Equal(t, 1, a.Stats().Dedicated)

	a.Free(big)
	assert.Empty(t, src.live)
	assert.Equal(t, 0, a.Stats().Blocks)
}

func TestClassesAreSeparate(t *testing.T) {
	src := newFakeSource()
	a := New(1024, src.alloc, src.free)
	x, err := a.Allocate(0, 16, 1)
	require.NoError(t, err)
	y, err := a.Allocate(1, 16, 1)
	require.NoError(t, err)
	assert.NotSame(t, x.Block, y.Block)
}

func TestSourceFailure(t *testing.T) {
	src := newFakeSource()
	src.failNext = true
	a := New(1024, src.alloc, src.free)
	_, err := a.Allocate(0, 16, 1)
	assert.Error(t, err)

	_, err = a.Allocate(0, 0, 1)
	assert.Error(t, err)
}

func TestDestroy(t *testing.T) {
	src := newFakeSource()
	a := New(1024, src.alloc, src.free)
	_, err := a.Allocate(0, 16, 1)
	require.NoError(t, err)
	_, err = a.Allocate(0, 2048, 1)
	require.NoError(t, err)
	a.Destroy()
	assert.Empty(t, src.live)
}
