package dieselrhi

import (
	"github.com/andewx/dieselrhi/driver"
	"github.com/cockroachdb/errors"
)

// GraphicsPipelineDesc describes a graphics pipeline in terms of device
// handles. Its layout comes from the layout cache, built from the merged
// reflection of Shaders.
type GraphicsPipelineDesc struct {
	Shaders    []ShaderHandle
	Bindings   []driver.VertexBinding
	Attributes []driver.VertexAttribute
	Topology   driver.Topology
	Cull       driver.CullMode
	CCW        bool
	DepthTest  bool
	DepthWrite bool
	DepthOp    driver.CompareOp
	Blend      bool

	// ColorFormats defaults to the swapchain format. DepthFormat defaults to
	// the swapchain depth format when DepthTest is set.
	ColorFormats []driver.Format
	DepthFormat  driver.Format
}

func (d *Device) CreateGraphicPipeline(desc GraphicsPipelineDesc) (PipelineHandle, error) {
	if len(desc.Shaders) == 0 {
		return PipelineHandle{}, errors.Wrap(driver.ErrInvalid, "pipeline: no shaders")
	}
	natives := make([]driver.Shader, 0, len(desc.Shaders))
	refls := make([]Reflection, 0, len(desc.Shaders))
	var stages driver.ShaderStage
	for _, h := range desc.Shaders {
		rec, ok := d.res.shaders.Get(h.h)
		if !ok {
			return PipelineHandle{}, errors.Wrapf(driver.ErrInvalid, "pipeline: stale shader %+v", h.h)
		}
		if stages&rec.stage != 0 {
			return PipelineHandle{}, errors.Wrapf(driver.ErrInvalid, "pipeline: two %s shaders", rec.stage)
		}
		stages |= rec.stage
		natives = append(natives, rec.native)
		refls = append(refls, rec.refl)
	}
	if stages&driver.StageVertex == 0 || stages&driver.StageCompute != 0 {
		return PipelineHandle{}, errors.Wrapf(driver.ErrInvalid, "pipeline: stages %b are not a graphics program", stages)
	}
	merged, err := MergeReflection(refls...)
	if err != nil {
		return PipelineHandle{}, errors.Wrap(err, "pipeline")
	}
	layout, err := d.layouts.Get(merged)
	if err != nil {
		d.fatal("pipeline: layout", err)
		return PipelineHandle{}, err
	}

	colors := desc.ColorFormats
	if colors == nil {
		colors = []driver.Format{d.GetSwapChainImageFormat()}
	}
	depth := desc.DepthFormat
	if depth == driver.FormatUndefined && desc.DepthTest {
		depth = d.sc.depthFormat
	}
	p, err := d.dev.NewGraphicsPipeline(&driver.GraphicsPipelineDesc{
		Layout:       layout.native,
		Shaders:      natives,
		Bindings:     desc.Bindings,
		Attributes:   desc.Attributes,
		Topology:     desc.Topology,
		Cull:         desc.Cull,
		CCW:          desc.CCW,
		DepthTest:    desc.DepthTest,
		DepthWrite:   desc.DepthWrite,
		DepthOp:      desc.DepthOp,
		Blend:        desc.Blend,
		ColorFormats: colors,
		DepthFormat:  depth,
	})
	if err != nil {
		d.fatal("pipeline: create", err)
		return PipelineHandle{}, err
	}
	return PipelineHandle{d.res.pipelines.Insert(pipelineRecord{native: p, layout: layout})}, nil
}

// PipelineLayout returns the cached layout of p.
func (d *Device) PipelineLayout(p PipelineHandle) *PipelineLayout {
	rec, ok := d.pipeline(p)
	if !ok {
		return nil
	}
	return rec.layout
}

// DestroyPipeline retires p. Its layout stays cached until shutdown.
func (d *Device) DestroyPipeline(p PipelineHandle) {
	rec, ok := d.res.pipelines.Remove(p.h)
	d.assertf(ok, "DestroyPipeline on stale handle %+v", p.h)
	if ok {
		d.retire(rec.native)
	}
}

// DescriptorWrite fills one binding of a descriptor set. Only the handles
// matching Kind are read. Range 0 covers the buffer from Offset.
type DescriptorWrite struct {
	Binding uint32
	Kind    driver.DescriptorKind
	Buffer  BufferHandle
	Offset  uint64
	Range   uint64
	Image   ImageHandle
	Sampler SamplerHandle
}

// CreateDescriptorSet allocates a descriptor set for set index set of p's
// layout and writes every binding given.
func (d *Device) CreateDescriptorSet(p PipelineHandle, set uint32, writes []DescriptorWrite) (DescriptorSetHandle, error) {
	prec, ok := d.res.pipelines.Get(p.h)
	if !ok {
		return DescriptorSetHandle{}, errors.Wrapf(driver.ErrInvalid, "descriptor set: stale pipeline %+v", p.h)
	}
	layout := prec.layout
	if int(set) >= layout.SetCount() {
		return DescriptorSetHandle{}, errors.Wrapf(driver.ErrInvalid,
			"descriptor set: layout has %d sets, want index %d", layout.SetCount(), set)
	}
	bindings := layout.Bindings(set)
	natives := make([]driver.DescriptorWrite, 0, len(writes))
	for _, w := range writes {
		if err := checkWrite(bindings, w); err != nil {
			return DescriptorSetHandle{}, err
		}
		nw := driver.DescriptorWrite{Binding: w.Binding, Kind: w.Kind, Offset: w.Offset, Range: w.Range}
		if !w.Buffer.IsNil() {
			rec, ok := d.res.buffers.Get(w.Buffer.h)
			if !ok {
				return DescriptorSetHandle{}, errors.Wrapf(driver.ErrInvalid, "descriptor set: binding %d: stale buffer", w.Binding)
			}
			nw.Buffer = rec.native
		}
		if !w.Image.IsNil() {
			rec, ok := d.res.images.Get(w.Image.h)
			if !ok {
				return DescriptorSetHandle{}, errors.Wrapf(driver.ErrInvalid, "descriptor set: binding %d: stale image", w.Binding)
			}
			nw.Image = rec.native
		}
		if !w.Sampler.IsNil() {
			rec, ok := d.res.samplers.Get(w.Sampler.h)
			if !ok {
				return DescriptorSetHandle{}, errors.Wrapf(driver.ErrInvalid, "descriptor set: binding %d: stale sampler", w.Binding)
			}
			nw.Sampler = rec.native
		}
		natives = append(natives, nw)
	}
	ds, err := d.dev.NewDescriptorSet(layout.sets[set], natives)
	if err != nil {
		d.fatal("descriptor set: create", err)
		return DescriptorSetHandle{}, err
	}
	return DescriptorSetHandle{d.res.sets.Insert(descriptorSetRecord{native: ds, layout: layout, set: set})}, nil
}

func checkWrite(bindings []ReflectedBinding, w DescriptorWrite) error {
	for _, b := range bindings {
		if b.Binding != w.Binding {
			continue
		}
		if b.Kind != w.Kind {
			return errors.Wrapf(driver.ErrInvalid, "descriptor set: binding %d is %s, write is %s", w.Binding, b.Kind, w.Kind)
		}
		switch w.Kind {
		case driver.DescUniformBuffer, driver.DescStorageBuffer:
			if w.Buffer.IsNil() {
				return errors.Wrapf(driver.ErrInvalid, "descriptor set: binding %d needs a buffer", w.Binding)
			}
		case driver.DescSampledImage, driver.DescStorageImage:
			if w.Image.IsNil() {
				return errors.Wrapf(driver.ErrInvalid, "descriptor set: binding %d needs an image", w.Binding)
			}
		case driver.DescSampler:
			if w.Sampler.IsNil() {
				return errors.Wrapf(driver.ErrInvalid, "descriptor set: binding %d needs a sampler", w.Binding)
			}
		case driver.DescCombinedImageSampler:
			if w.Image.IsNil() || w.Sampler.IsNil() {
				return errors.Wrapf(driver.ErrInvalid, "descriptor set: binding %d needs an image and a sampler", w.Binding)
			}
		}
		return nil
	}
	return errors.Wrapf(driver.ErrInvalid, "descriptor set: binding %d not in layout", w.Binding)
}

func (d *Device) DestroyDescriptorSet(h DescriptorSetHandle) {
	rec, ok := d.res.sets.Remove(h.h)
	d.assertf(ok, "DestroyDescriptorSet on stale handle %+v", h.h)
	if ok {
		d.retire(rec.native)
	}
}
