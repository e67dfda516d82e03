package dieselrhi

import (
	"sync"
	"testing"

	"github.com/andewx/dieselrhi/driver"
	"github.com/andewx/dieselrhi/driver/headless"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, debug bool) (*LayoutCache, *headless.Backend) {
	t.Helper()
	b := headless.New(headless.WithLogger(quietLogger()))
	dev, err := b.Open(0, driver.QueueFamilies{0, 1, 2}, false)
	require.NoError(t, err)
	c := NewLayoutCache(dev, debug)
	t.Cleanup(func() {
		c.Destroy()
		dev.Destroy()
	})
	return c, b
}

var (
	vsRefl = Reflection{
		Bindings: []ReflectedBinding{
			{Set: 0, Binding: 0, Kind: driver.DescUniformBuffer, Count: 1, Stages: driver.StageVertex},
		},
		PushConstants: []driver.PushConstantRange{{Stages: driver.StageVertex, Offset: 0, Size: 64}},
	}
	fsRefl = Reflection{
		Bindings: []ReflectedBinding{
			{Set: 1, Binding: 0, Kind: driver.DescCombinedImageSampler, Count: 1, Stages: driver.StageFragment},
			{Set: 0, Binding: 0, Kind: driver.DescUniformBuffer, Count: 1, Stages: driver.StageFragment},
		},
	}
)

func TestMergeReflection(t *testing.T) {
	m, err := MergeReflection(vsRefl, fsRefl)
	require.NoError(t, err)
	assert.Equal(t, []ReflectedBinding{
		{Set: 0, Binding: 0, Kind: driver.DescUniformBuffer, Count: 1, Stages: driver.StageAllGraphics},
		{Set: 1, Binding: 0, Kind: driver.DescCombinedImageSampler, Count: 1, Stages: driver.StageFragment},
	}, m.Bindings)
	assert.Equal(t, 2, m.setCount())

	rev, err := MergeReflection(fsRefl, vsRefl)
	require.NoError(t, err)
	assert.Equal(t, m.Key(), rev.Key())
}

func TestMergeReflectionConflicts(t *testing.T) {
	bad := Reflection{Bindings: []ReflectedBinding{
		{Set: 0, Binding: 0, Kind: driver.DescStorageBuffer, Count: 1, Stages: driver.StageFragment},
	}}
	_, err := MergeReflection(vsRefl, bad)
	assert.ErrorIs(t, err, driver.ErrInvalid)

	overlap := Reflection{PushConstants: []driver.PushConstantRange{
		{Stages: driver.StageVertex, Offset: 64, Size: 16},
	}}
	_, err = MergeReflection(vsRefl, overlap)
	assert.ErrorIs(t, err, driver.ErrInvalid)

	_, err = MergeReflection(Reflection{Bindings: []ReflectedBinding{{Set: maxSets}}})
	assert.ErrorIs(t, err, driver.ErrInvalid)
}

func TestKeyDistinguishesFields(t *testing.T) {
	base, err := MergeReflection(vsRefl)
	require.NoError(t, err)
	keys := map[LayoutKey]string{base.Key(): "base"}
	mutations := map[string]func(r *Reflection){
		"set":     func(r *Reflection) { r.Bindings[0].Set = 1 },
		"binding": func(r *Reflection) { r.Bindings[0].Binding = 1 },
		"kind":    func(r *Reflection) { r.Bindings[0].Kind = driver.DescStorageBuffer },
		"count":   func(r *Reflection) { r.Bindings[0].Count = 2 },
		"stages":  func(r *Reflection) { r.Bindings[0].Stages = driver.StageAllGraphics },
		"push":    func(r *Reflection) { r.PushConstants[0].Size = 128 },
		"no push": func(r *Reflection) { r.PushConstants = nil },
	}
	for name, mutate := range mutations {
		r := base.withStage(0)
		mutate(&r)
		k := r.Key()
		prev, dup := keys[k]
		assert.False(t, dup, "%s collides with %s", name, prev)
		keys[k] = name
	}
}

func TestLayoutCacheDeterminism(t *testing.T) {
	c, _ := newTestCache(t, true)
	a, err := c.Get(Reflection{
		Bindings:      append(append([]ReflectedBinding(nil), fsRefl.Bindings...), vsRefl.Bindings...),
		PushConstants: vsRefl.PushConstants,
	})
	require.NoError(t, err)

	merged, err := MergeReflection(vsRefl, fsRefl)
	require.NoError(t, err)
	b, err := c.Get(merged)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, uint64(1), c.Hits())

	other, err := c.Get(vsRefl)
	require.NoError(t, err)
	assert.NotSame(t, a, other)
	assert.NotEqual(t, a.Key(), other.Key())
	assert.Equal(t, 2, c.Len())
}

func TestLayoutCacheSharesSetLayouts(t *testing.T) {
	c, b := newTestCache(t, false)
	set0 := ReflectedBinding{Set: 0, Binding: 0, Kind: driver.DescUniformBuffer, Count: 1, Stages: driver.StageVertex}
	l1, err := c.Get(Reflection{Bindings: []ReflectedBinding{
		set0,
		{Set: 1, Binding: 0, Kind: driver.DescSampledImage, Count: 1, Stages: driver.StageFragment},
	}})
	require.NoError(t, err)
	l2, err := c.Get(Reflection{Bindings: []ReflectedBinding{
		set0,
		{Set: 1, Binding: 0, Kind: driver.DescStorageBuffer, Count: 1, Stages: driver.StageFragment},
	}})
	require.NoError(t, err)
	assert.NotSame(t, l1, l2)
	assert.Equal(t, 3, c.SetLayouts())
	assert.Equal(t, 3, b.Stats().Live[headless.KindSetLayout])
	assert.Equal(t, 2, b.Stats().Live[headless.KindPipelineLayout])

	c.Destroy()
	assert.Zero(t, b.Stats().Live[headless.KindSetLayout])
	assert.Zero(t, b.Stats().Live[headless.KindPipelineLayout])
	assert.Empty(t, b.Violations())
}

func TestLayoutCacheEmptySets(t *testing.T) {
	c, _ := newTestCache(t, false)
	l, err := c.Get(Reflection{Bindings: []ReflectedBinding{
		{Set: 2, Binding: 3, Kind: driver.DescStorageImage, Count: 1, Stages: driver.StageCompute},
	}})
	require.NoError(t, err)
	assert.Equal(t, 3, l.SetCount())
	assert.Empty(t, l.Bindings(0))
	assert.Len(t, l.Bindings(2), 1)
	// empty sets 0 and 1 share a layout
	assert.Same(t, l.sets[0], l.sets[1])
}

func TestLayoutCacheConcurrent(t *testing.T) {
	c, _ := newTestCache(t, true)
	first, err := c.Get(vsRefl)
	require.NoError(t, err)

	var wg sync.WaitGroup
	got := make([]*PipelineLayout, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], _ = c.Get(vsRefl)
		}(i)
	}
	wg.Wait()
	for _, l := range got {
		assert.Same(t, first, l)
	}
	assert.Equal(t, uint64(16), c.Hits())
}

func TestPipelineLayoutCopiesOut(t *testing.T) {
	c, _ := newTestCache(t, false)
	l, err := c.Get(vsRefl)
	require.NoError(t, err)
	pc := l.PushConstants()
	pc[0].Size = 1
	bs := l.Bindings(0)
	bs[0].Count = 9
	assert.Equal(t, uint32(64), l.PushConstants()[0].Size)
	assert.Equal(t, uint32(1), l.Bindings(0)[0].Count)
}
