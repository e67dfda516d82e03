package headless

import (
	"github.com/andewx/dieselrhi/driver"
	"github.com/andewx/dieselrhi/internal/alloc"
)

// pendingWrite is the last write to a resource. Once a barrier whose source
// scope covers the write executes, the write is visible to the barrier's
// destination scope.
type pendingWrite struct {
	stage     driver.Sync
	access    driver.Access
	visible   bool
	visStage  driver.Sync
	visAccess driver.Access
}

// resource is a buffer or image whose accesses are tracked.
type resource struct {
	object
	d     *device
	write *pendingWrite
}

type buffer struct {
	resource
	desc driver.BufferDesc
	al   alloc.Allocation
	data []byte
}

func (b *buffer) Size() uint64 { return b.desc.Size }

func (b *buffer) Mapped() []byte {
	if b.desc.Domain != driver.DomainCPU {
		return nil
	}
	return b.data
}

func (b *buffer) Destroy() {
	if b.release() {
		delete(b.d.dirty, &b.resource)
		b.d.mem.Free(b.al)
	}
}

type image struct {
	resource
	desc      driver.ImageDesc
	data      []byte
	layout    driver.Layout
	swapchain bool
}

func (i *image) Desc() driver.ImageDesc { return i.desc }

func (i *image) Destroy() {
	if i.swapchain {
		i.b.violate("%s is owned by a swapchain", i)
		return
	}
	i.destroy()
}

func (i *image) destroy() {
	if i.release() {
		delete(i.d.dirty, &i.resource)
		i.data = nil
	}
}

type sampler struct {
	object
	desc driver.SamplerDesc
}

func (s *sampler) Destroy() { s.release() }

type shader struct {
	object
	stage driver.ShaderStage
	code  []byte
}

func (s *shader) Stage() driver.ShaderStage { return s.stage }

func (s *shader) Destroy() { s.release() }

type setLayout struct {
	object
	bindings []driver.LayoutBinding
}

func (l *setLayout) binding(n uint32) (driver.LayoutBinding, bool) {
	for _, b := range l.bindings {
		if b.Binding == n {
			return b, true
		}
	}
	return driver.LayoutBinding{}, false
}

func (l *setLayout) Destroy() { l.release() }

type pipelineLayout struct {
	object
	sets []*setLayout
	push []driver.PushConstantRange
}

func (l *pipelineLayout) Destroy() { l.release() }

type pipeline struct {
	object
	layout *pipelineLayout
	desc   driver.GraphicsPipelineDesc
}

func (p *pipeline) Destroy() { p.release() }

type descBinding struct {
	kind   driver.DescriptorKind
	stages driver.ShaderStage
	res    *resource
	img    *image
}

type descriptorSet struct {
	object
	layout *setLayout
	bound  []descBinding
}

func (s *descriptorSet) Destroy() { s.release() }

// ReadBuffer returns a copy of the contents of a headless buffer, including
// GPU-domain buffers the caller cannot map.
func ReadBuffer(b driver.Buffer) []byte {
	hb, ok := b.(*buffer)
	if !ok || hb.destroyed {
		return nil
	}
	out := make([]byte, len(hb.data))
	copy(out, hb.data)
	return out
}

// ReadImage returns a copy of the first mip level of a headless image.
func ReadImage(i driver.Image) []byte {
	hi, ok := i.(*image)
	if !ok || hi.destroyed {
		return nil
	}
	out := make([]byte, len(hi.data))
	copy(out, hi.data)
	return out
}

// ImageLayout reports the layout a headless image is in after all executed
// work.
func ImageLayout(i driver.Image) driver.Layout {
	if hi, ok := i.(*image); ok {
		return hi.layout
	}
	return driver.LayoutUndefined
}
