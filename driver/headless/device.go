package headless

import (
	"github.com/andewx/dieselrhi/driver"
	"github.com/andewx/dieselrhi/internal/alloc"
	"github.com/cockroachdb/errors"
)

type device struct {
	b         *Backend
	queues    [driver.QueueCount]*queue
	mem       *alloc.Allocator
	destroyed bool
	// dirty holds resources with a write not yet made visible by a barrier
	// or a submission boundary.
	dirty map[*resource]struct{}
}

var _ driver.Device = (*device)(nil)

func newDevice(b *Backend, families driver.QueueFamilies) *device {
	d := &device{
		b:     b,
		dirty: make(map[*resource]struct{}),
	}
	for t := range d.queues {
		d.queues[t] = &queue{d: d, typ: driver.QueueType(t), family: families[t]}
	}
	d.mem = alloc.New(b.blockSize,
		func(class uint32, size uint64) (any, error) {
			return make([]byte, size), nil
		},
		nil)
	return d
}

func (d *device) Destroy() {
	if d.destroyed {
		return
	}
	for _, q := range d.queues {
		if len(q.pending) > 0 {
			d.b.violate("device destroyed with %d pending %s batches", len(q.pending), q.typ)
		}
	}
	d.mem.Destroy()
	d.destroyed = true
}

// WaitIdle executes everything that can run. It fails with ErrTimeout when
// the GPU is hung or a batch waits on a semaphore nobody signals.
func (d *device) WaitIdle() error {
	d.run()
	for _, q := range d.queues {
		if len(q.pending) > 0 {
			return errors.Wrapf(driver.ErrTimeout, "headless: %s queue stalled with %d batches", q.typ, len(q.pending))
		}
	}
	return nil
}

func (d *device) Queue(t driver.QueueType) driver.Queue {
	return d.queues[t]
}

func (d *device) idle() bool {
	for _, q := range d.queues {
		if len(q.pending) > 0 {
			return false
		}
	}
	return true
}

func (d *device) NewFence(signaled bool) (driver.Fence, error) {
	return &fence{object: d.b.newObject(KindFence), d: d, signaled: signaled}, nil
}

func (d *device) NewSemaphore() (driver.Semaphore, error) {
	return &semaphore{object: d.b.newObject(KindSemaphore)}, nil
}

func (d *device) NewCommandPool(q driver.QueueType) (driver.CommandPool, error) {
	return &commandPool{object: d.b.newObject(KindCommandPool), d: d, queue: q}, nil
}

func (d *device) NewBuffer(desc driver.BufferDesc) (driver.Buffer, error) {
	if desc.Size == 0 {
		return nil, errors.Wrap(driver.ErrInvalid, "headless: zero-size buffer")
	}
	al, err := d.mem.Allocate(uint32(desc.Domain), desc.Size, 16)
	if err != nil {
		return nil, errors.Mark(err, driver.ErrOutOfMemory)
	}
	block := al.Block.Memory.([]byte)
	buf := &buffer{
		resource: resource{object: d.b.newObject(KindBuffer), d: d},
		desc:     desc,
		al:       al,
		data:     block[al.Offset : al.Offset+desc.Size : al.Offset+desc.Size],
	}
	for i := range buf.data {
		buf.data[i] = 0
	}
	return buf, nil
}

func (d *device) NewImage(desc driver.ImageDesc) (driver.Image, error) {
	return d.newImage(desc, false)
}

func (d *device) newImage(desc driver.ImageDesc, owned bool) (*image, error) {
	if desc.Width <= 0 || desc.Height <= 0 || desc.Format.Size() == 0 {
		return nil, errors.Wrapf(driver.ErrInvalid, "headless: image %dx%d %s", desc.Width, desc.Height, desc.Format)
	}
	if desc.Levels <= 0 {
		desc.Levels = 1
	}
	if desc.Layers <= 0 {
		desc.Layers = 1
	}
	return &image{
		resource:  resource{object: d.b.newObject(KindImage), d: d},
		desc:      desc,
		data:      make([]byte, desc.Width*desc.Height*desc.Layers*desc.Format.Size()),
		swapchain: owned,
	}, nil
}

func (d *device) NewSampler(desc driver.SamplerDesc) (driver.Sampler, error) {
	return &sampler{object: d.b.newObject(KindSampler), desc: desc}, nil
}

func (d *device) NewShader(stage driver.ShaderStage, code []byte) (driver.Shader, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.Wrapf(driver.ErrInvalid, "headless: shader code of %d bytes", len(code))
	}
	c := make([]byte, len(code))
	copy(c, code)
	return &shader{object: d.b.newObject(KindShader), stage: stage, code: c}, nil
}

func (d *device) NewDescriptorSetLayout(bindings []driver.LayoutBinding) (driver.DescriptorSetLayout, error) {
	l := &setLayout{object: d.b.newObject(KindSetLayout)}
	l.bindings = append(l.bindings, bindings...)
	return l, nil
}

func (d *device) NewPipelineLayout(sets []driver.DescriptorSetLayout, push []driver.PushConstantRange) (driver.PipelineLayout, error) {
	l := &pipelineLayout{object: d.b.newObject(KindPipelineLayout)}
	for _, s := range sets {
		sl, ok := s.(*setLayout)
		if !ok {
			return nil, errors.Wrap(driver.ErrInvalid, "headless: foreign set layout")
		}
		if sl.destroyed {
			d.b.violate("pipeline layout built from destroyed %s", sl)
		}
		l.sets = append(l.sets, sl)
	}
	l.push = append(l.push, push...)
	return l, nil
}

func (d *device) NewGraphicsPipeline(desc *driver.GraphicsPipelineDesc) (driver.Pipeline, error) {
	layout, ok := desc.Layout.(*pipelineLayout)
	if !ok {
		return nil, errors.Wrap(driver.ErrInvalid, "headless: pipeline without layout")
	}
	var stages driver.ShaderStage
	for _, s := range desc.Shaders {
		sh, ok := s.(*shader)
		if !ok || sh.destroyed {
			return nil, errors.Wrap(driver.ErrInvalid, "headless: invalid shader")
		}
		stages |= sh.stage
	}
	if stages&driver.StageVertex == 0 {
		return nil, errors.Wrap(driver.ErrInvalid, "headless: graphics pipeline without vertex stage")
	}
	return &pipeline{object: d.b.newObject(KindPipeline), layout: layout, desc: *desc}, nil
}

func (d *device) NewDescriptorSet(layout driver.DescriptorSetLayout, writes []driver.DescriptorWrite) (driver.DescriptorSet, error) {
	sl, ok := layout.(*setLayout)
	if !ok {
		return nil, errors.Wrap(driver.ErrInvalid, "headless: foreign set layout")
	}
	ds := &descriptorSet{object: d.b.newObject(KindDescriptorSet), layout: sl}
	for _, w := range writes {
		lb, ok := sl.binding(w.Binding)
		if !ok {
			return nil, errors.Wrapf(driver.ErrInvalid, "headless: binding %d not in layout", w.Binding)
		}
		if lb.Kind != w.Kind {
			return nil, errors.Wrapf(driver.ErrInvalid, "headless: binding %d is %s, write is %s", w.Binding, lb.Kind, w.Kind)
		}
		bd := descBinding{kind: w.Kind, stages: lb.Stages}
		switch w.Kind {
		case driver.DescUniformBuffer, driver.DescStorageBuffer:
			if b, ok := w.Buffer.(*buffer); ok {
				bd.res = &b.resource
			}
		case driver.DescSampledImage, driver.DescStorageImage, driver.DescCombinedImageSampler:
			if img, ok := w.Image.(*image); ok {
				bd.res = &img.resource
				bd.img = img
			}
		}
		if bd.res == nil && w.Kind != driver.DescSampler {
			return nil, errors.Wrapf(driver.ErrInvalid, "headless: binding %d has no resource", w.Binding)
		}
		ds.bound = append(ds.bound, bd)
	}
	return ds, nil
}

func (d *device) NewSwapchain(desc driver.SwapchainDesc) (driver.Swapchain, error) {
	if desc.Images < 2 {
		desc.Images = 2
	}
	if desc.Images > 8 {
		desc.Images = 8
	}
	sc := &swapchain{object: d.b.newObject(KindSwapchain), d: d, count: desc.Images}
	if err := sc.build(); err != nil {
		sc.release()
		return nil, err
	}
	return sc, nil
}
