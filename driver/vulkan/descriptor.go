package vulkan

import (
	"github.com/andewx/dieselrhi/driver"
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

const (
	poolSets        = 256
	poolDescriptors = 512
)

type setLayout struct {
	d        *device
	handle   vk.DescriptorSetLayout
	bindings []driver.LayoutBinding
}

func (d *device) NewDescriptorSetLayout(bindings []driver.LayoutBinding) (driver.DescriptorSetLayout, error) {
	vb := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		vb[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  descriptorTypes[b.Kind],
			DescriptorCount: b.Count,
			StageFlags:      vkShaderStages(b.Stages),
		}
	}
	l := &setLayout{d: d, bindings: append([]driver.LayoutBinding(nil), bindings...)}
	ret := vk.CreateDescriptorSetLayout(d.handle, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vb)),
		PBindings:    vb,
	}, nil, &l.handle)
	if isError(ret) {
		return nil, newError(ret)
	}
	return l, nil
}

func (l *setLayout) Destroy() {
	vk.DestroyDescriptorSetLayout(l.d.handle, l.handle, nil)
}

type pipelineLayout struct {
	d      *device
	handle vk.PipelineLayout
}

func (d *device) NewPipelineLayout(sets []driver.DescriptorSetLayout, push []driver.PushConstantRange) (driver.PipelineLayout, error) {
	handles := make([]vk.DescriptorSetLayout, len(sets))
	for i, s := range sets {
		handles[i] = s.(*setLayout).handle
	}
	ranges := make([]vk.PushConstantRange, len(push))
	for i, r := range push {
		ranges[i] = vk.PushConstantRange{
			StageFlags: vkShaderStages(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}
	l := &pipelineLayout{d: d}
	ret := vk.CreatePipelineLayout(d.handle, &vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(handles)),
		PSetLayouts:            handles,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}, nil, &l.handle)
	if isError(ret) {
		return nil, newError(ret)
	}
	return l, nil
}

func (l *pipelineLayout) Destroy() {
	vk.DestroyPipelineLayout(l.d.handle, l.handle, nil)
}

type descriptorSet struct {
	d      *device
	pool   vk.DescriptorPool
	handle vk.DescriptorSet
}

func (d *device) newDescriptorPool() (vk.DescriptorPool, error) {
	sizes := make([]vk.DescriptorPoolSize, len(descriptorTypes))
	for i, t := range descriptorTypes {
		sizes[i] = vk.DescriptorPoolSize{Type: t, DescriptorCount: poolDescriptors}
	}
	var pool vk.DescriptorPool
	ret := vk.CreateDescriptorPool(d.handle, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       poolSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}, nil, &pool)
	if isError(ret) {
		return nil, newError(ret)
	}
	d.pools = append(d.pools, pool)
	return pool, nil
}

// allocateSet allocates from the newest pool and opens a new pool when it
// is exhausted.
func (d *device) allocateSet(layout vk.DescriptorSetLayout) (vk.DescriptorPool, vk.DescriptorSet, error) {
	info := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}
	var set vk.DescriptorSet
	if n := len(d.pools); n > 0 {
		info.DescriptorPool = d.pools[n-1]
		if ret := vk.AllocateDescriptorSets(d.handle, &info, &set); !isError(ret) {
			return info.DescriptorPool, set, nil
		}
	}
	pool, err := d.newDescriptorPool()
	if err != nil {
		return nil, nil, err
	}
	info.DescriptorPool = pool
	if ret := vk.AllocateDescriptorSets(d.handle, &info, &set); isError(ret) {
		return nil, nil, newError(ret)
	}
	return pool, set, nil
}

func (d *device) NewDescriptorSet(layout driver.DescriptorSetLayout, writes []driver.DescriptorWrite) (driver.DescriptorSet, error) {
	l := layout.(*setLayout)
	for _, w := range writes {
		found := false
		for _, b := range l.bindings {
			if b.Binding == w.Binding {
				found = b.Kind == w.Kind
				break
			}
		}
		if !found {
			return nil, errors.Wrapf(driver.ErrInvalid, "vulkan: write of %s to binding %d does not match the layout", w.Kind, w.Binding)
		}
	}

	pool, handle, err := d.allocateSet(l.handle)
	if err != nil {
		return nil, errors.Wrap(err, "vulkan: allocate descriptor set")
	}
	vw := make([]vk.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		vw[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          handle,
			DstBinding:      w.Binding,
			DescriptorCount: 1,
			DescriptorType:  descriptorTypes[w.Kind],
		}
		switch w.Kind {
		case driver.DescUniformBuffer, driver.DescStorageBuffer:
			rng := vk.DeviceSize(w.Range)
			if w.Range == 0 {
				rng = vk.DeviceSize(vk.WholeSize)
			}
			vw[i].PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: w.Buffer.(*buffer).handle,
				Offset: vk.DeviceSize(w.Offset),
				Range:  rng,
			}}
		default:
			info := vk.DescriptorImageInfo{ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal}
			if w.Kind == driver.DescStorageImage {
				info.ImageLayout = vk.ImageLayoutGeneral
			}
			if w.Image != nil {
				info.ImageView = w.Image.(*image).view
			}
			if w.Sampler != nil {
				info.Sampler = w.Sampler.(*sampler).handle
			}
			vw[i].PImageInfo = []vk.DescriptorImageInfo{info}
		}
	}
	if len(vw) > 0 {
		vk.UpdateDescriptorSets(d.handle, uint32(len(vw)), vw, 0, nil)
	}
	return &descriptorSet{d: d, pool: pool, handle: handle}, nil
}

func (s *descriptorSet) Destroy() {
	vk.FreeDescriptorSets(s.d.handle, s.pool, 1, []vk.DescriptorSet{s.handle})
}
