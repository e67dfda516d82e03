package slab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertGet(t *testing.T) {
	s := New[string](4)
	a := s.Insert("a")
	b := s.Insert("b")

	v, ok := s.Get(a)
	require.True(t, ok)
	assert.Equal(t, "a", v)
	v, ok = s.Get(b)
	require.True(t, ok)
	assert.Equal(t, "b", v)
	assert.Equal(t, 2, s.Len())
}

func TestStaleHandle(t *testing.T) {
	s := New[int](0)
	h := s.Insert(7)
	got, ok := s.Remove(h)
	require.True(t, ok)
	assert.Equal(t, 7, got)

	_, ok = s.Get(h)
	assert.False(t, ok)

	// slot is reused with a new generation
	h2 := s.Insert(9)
	assert.Equal(t, h.Index, h2.Index)
	assert.NotEqual(t, h.Gen, h2.Gen)
	_, ok = s.Get(h)
	assert.False(t, ok)
	_, ok = s.Remove(h)
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestNilHandle(t *testing.T) {
	s := New[int](0)
	assert.True(t, Handle{}.IsNil())
	assert.False(t, s.Contains(Handle{}))
	assert.Nil(t, s.Ptr(Handle{Index: 3, Gen: 1}))
}

func TestEach(t *testing.T) {
	s := New[int](0)
	var hs []Handle
	for i := 0; i < 5; i++ {
		hs = append(hs, s.Insert(i))
	}
	s.Remove(hs[1])
	s.Remove(hs[3])

	var seen []int
	s.Each(func(h Handle, v int) {
		seen = append(seen, v)
	})
	assert.Equal(t, []int{0, 2, 4}, seen)
}
