package dieselrhi

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/andewx/dieselrhi/driver"
	"github.com/cockroachdb/errors"
)

// PipelineLayout is a published, immutable pipeline layout. Pipelines with
// the same merged reflection share one *PipelineLayout.
type PipelineLayout struct {
	key    LayoutKey
	refl   Reflection
	sets   []driver.DescriptorSetLayout
	native driver.PipelineLayout
}

func (l *PipelineLayout) Key() LayoutKey { return l.key }

// SetCount is the number of descriptor set slots, including empty ones
// below the highest set used.
func (l *PipelineLayout) SetCount() int { return len(l.sets) }

// Bindings returns a copy of the bindings of set.
func (l *PipelineLayout) Bindings(set uint32) []ReflectedBinding {
	var out []ReflectedBinding
	for _, b := range l.refl.Bindings {
		if b.Set == set {
			out = append(out, b)
		}
	}
	return out
}

func (l *PipelineLayout) PushConstants() []driver.PushConstantRange {
	return slices.Clone(l.refl.PushConstants)
}

// LayoutCache maps merged reflections to pipeline layouts for the lifetime
// of a device. Descriptor set layouts are shared between pipeline layouts
// with identical sets. It is safe for concurrent use.
type LayoutCache struct {
	dev   driver.Device
	debug bool

	mu      sync.RWMutex
	layouts map[LayoutKey]*PipelineLayout
	sets    map[LayoutKey]driver.DescriptorSetLayout

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewLayoutCache creates an empty cache. With debug set, every hit compares
// the full reflection against the cached one.
func NewLayoutCache(dev driver.Device, debug bool) *LayoutCache {
	return &LayoutCache{
		dev:     dev,
		debug:   debug,
		layouts: make(map[LayoutKey]*PipelineLayout),
		sets:    make(map[LayoutKey]driver.DescriptorSetLayout),
	}
}

// Get returns the layout for refl, creating and publishing it on a miss.
func (c *LayoutCache) Get(refl Reflection) (*PipelineLayout, error) {
	r, err := MergeReflection(refl)
	if err != nil {
		return nil, err
	}
	key := r.Key()

	c.mu.RLock()
	l, ok := c.layouts[key]
	c.mu.RUnlock()
	if ok {
		c.check(l, r)
		c.hits.Add(1)
		return l, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.layouts[key]; ok {
		c.check(l, r)
		c.hits.Add(1)
		return l, nil
	}
	l, err = c.build(key, r)
	if err != nil {
		return nil, err
	}
	c.layouts[key] = l
	c.misses.Add(1)
	return l, nil
}

func (c *LayoutCache) check(l *PipelineLayout, r Reflection) {
	if c.debug && !l.refl.equal(r) {
		panic(errors.AssertionFailedf("layout cache: key %x maps to a different reflection", l.key[:8]))
	}
}

// build must be called with mu held.
func (c *LayoutCache) build(key LayoutKey, r Reflection) (*PipelineLayout, error) {
	l := &PipelineLayout{key: key, refl: r}
	for set := 0; set < r.setCount(); set++ {
		bindings := r.setBindings(uint32(set))
		sk := setKey(bindings)
		sl, ok := c.sets[sk]
		if !ok {
			var err error
			sl, err = c.dev.NewDescriptorSetLayout(bindings)
			if err != nil {
				return nil, errors.Wrapf(err, "layout cache: set %d", set)
			}
			c.sets[sk] = sl
		}
		l.sets = append(l.sets, sl)
	}
	native, err := c.dev.NewPipelineLayout(l.sets, r.PushConstants)
	if err != nil {
		return nil, errors.Wrap(err, "layout cache: pipeline layout")
	}
	l.native = native
	return l, nil
}

// Len is the number of published pipeline layouts.
func (c *LayoutCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.layouts)
}

// SetLayouts is the number of distinct descriptor set layouts.
func (c *LayoutCache) SetLayouts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sets)
}

func (c *LayoutCache) Hits() uint64   { return c.hits.Load() }
func (c *LayoutCache) Misses() uint64 { return c.misses.Load() }

// Destroy frees every layout. The device must be idle and no pipeline may
// use them anymore.
func (c *LayoutCache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, l := range c.layouts {
		l.native.Destroy()
		delete(c.layouts, k)
	}
	for k, s := range c.sets {
		s.Destroy()
		delete(c.sets, k)
	}
}
