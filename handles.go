package dieselrhi

import (
	"github.com/andewx/dieselrhi/driver"
	"github.com/andewx/dieselrhi/internal/slab"
)

// Handles are generation-checked indices into the device's resource
// arenas. A destroyed handle never resolves again, even after its slot is
// reused.
type (
	BufferHandle        struct{ h slab.Handle }
	ImageHandle         struct{ h slab.Handle }
	SamplerHandle       struct{ h slab.Handle }
	ShaderHandle        struct{ h slab.Handle }
	PipelineHandle      struct{ h slab.Handle }
	DescriptorSetHandle struct{ h slab.Handle }
)

func (h BufferHandle) IsNil() bool        { return h.h.IsNil() }
func (h ImageHandle) IsNil() bool         { return h.h.IsNil() }
func (h SamplerHandle) IsNil() bool       { return h.h.IsNil() }
func (h ShaderHandle) IsNil() bool        { return h.h.IsNil() }
func (h PipelineHandle) IsNil() bool      { return h.h.IsNil() }
func (h DescriptorSetHandle) IsNil() bool { return h.h.IsNil() }

type bufferRecord struct {
	native driver.Buffer
	desc   BufferDesc
}

type imageRecord struct {
	native driver.Image
	desc   ImageDesc
	// owned images belong to the swapchain controller; their layout is
	// tracked in tag.
	owned bool
	tag   driver.Layout
}

type samplerRecord struct {
	native driver.Sampler
}

type shaderRecord struct {
	native driver.Shader
	stage  driver.ShaderStage
	refl   Reflection
}

type pipelineRecord struct {
	native driver.Pipeline
	layout *PipelineLayout
}

type descriptorSetRecord struct {
	native driver.DescriptorSet
	layout *PipelineLayout
	set    uint32
}

type arenas struct {
	buffers   *slab.Slab[bufferRecord]
	images    *slab.Slab[imageRecord]
	samplers  *slab.Slab[samplerRecord]
	shaders   *slab.Slab[shaderRecord]
	pipelines *slab.Slab[pipelineRecord]
	sets      *slab.Slab[descriptorSetRecord]
}

func newArenas() arenas {
	return arenas{
		buffers:   slab.New[bufferRecord](64),
		images:    slab.New[imageRecord](16),
		samplers:  slab.New[samplerRecord](8),
		shaders:   slab.New[shaderRecord](16),
		pipelines: slab.New[pipelineRecord](16),
		sets:      slab.New[descriptorSetRecord](16),
	}
}

func (d *Device) buffer(h BufferHandle) (bufferRecord, bool) {
	r, ok := d.res.buffers.Get(h.h)
	d.assertf(ok, "stale or nil buffer handle %+v", h.h)
	return r, ok
}

func (d *Device) image(h ImageHandle) (imageRecord, bool) {
	r, ok := d.res.images.Get(h.h)
	d.assertf(ok, "stale or nil image handle %+v", h.h)
	return r, ok
}

func (d *Device) sampler(h SamplerHandle) (samplerRecord, bool) {
	r, ok := d.res.samplers.Get(h.h)
	d.assertf(ok, "stale or nil sampler handle %+v", h.h)
	return r, ok
}

func (d *Device) shader(h ShaderHandle) (shaderRecord, bool) {
	r, ok := d.res.shaders.Get(h.h)
	d.assertf(ok, "stale or nil shader handle %+v", h.h)
	return r, ok
}

func (d *Device) pipeline(h PipelineHandle) (pipelineRecord, bool) {
	r, ok := d.res.pipelines.Get(h.h)
	d.assertf(ok, "stale or nil pipeline handle %+v", h.h)
	return r, ok
}

func (d *Device) descriptorSet(h DescriptorSetHandle) (descriptorSetRecord, bool) {
	r, ok := d.res.sets.Get(h.h)
	d.assertf(ok, "stale or nil descriptor set handle %+v", h.h)
	return r, ok
}
