package headless

import (
	"github.com/andewx/dieselrhi/driver"
	"github.com/cockroachdb/errors"
)

type commandPool struct {
	object
	d       *device
	queue   driver.QueueType
	buffers []*commandBuffer
}

func (p *commandPool) Reset() error {
	for _, cb := range p.buffers {
		if cb.state == cbPending {
			p.b.violate("%s reset while %s is pending", &p.object, &cb.object)
		}
		cb.reset()
	}
	return nil
}

func (p *commandPool) Allocate() (driver.CommandBuffer, error) {
	if p.destroyed {
		return nil, errors.Wrap(driver.ErrInvalid, "headless: allocate from destroyed pool")
	}
	cb := &commandBuffer{object: p.b.newObject(KindCommandBuffer), pool: p}
	p.buffers = append(p.buffers, cb)
	return cb, nil
}

func (p *commandPool) Destroy() {
	if !p.release() {
		return
	}
	for _, cb := range p.buffers {
		cb.release()
	}
	p.buffers = nil
}

type cbState int

const (
	cbInitial cbState = iota
	cbRecording
	cbExecutable
	cbPending
)

type opKind int

const (
	opBarrier opKind = iota
	opBeginRendering
	opEndRendering
	opBindPipeline
	opBindVertex
	opBindIndex
	opBindSet
	opDraw
	opDrawIndexed
	opCopy
	opFill
	opCopyToImage
)

type op struct {
	kind opKind

	mem []driver.MemoryBarrier
	img []driver.ImageBarrier
	buf []driver.BufferBarrier

	colors []*image
	depth  *image

	pipeline *pipeline
	bufs     []*buffer
	set      uint32
	ds       *descriptorSet

	src, dst *buffer
	dstImg   *image
	regions  []driver.BufferCopy
	region   driver.BufferImageCopy
	offset   uint64
	size     uint64
	value    uint32
}

type commandBuffer struct {
	object
	pool      *commandPool
	state     cbState
	ops       []op
	refs      map[*object]struct{}
	rendering bool
	pipeline  *pipeline
}

func (c *commandBuffer) reset() {
	c.state = cbInitial
	c.ops = nil
	c.refs = nil
	c.rendering = false
	c.pipeline = nil
}

func (c *commandBuffer) Begin() error {
	switch c.state {
	case cbPending:
		c.b.violate("%s begun while pending", &c.object)
	case cbRecording:
		c.b.violate("%s begun twice", &c.object)
	}
	c.reset()
	c.state = cbRecording
	c.refs = make(map[*object]struct{})
	return nil
}

func (c *commandBuffer) End() error {
	if !c.recording("End") {
		return errors.Wrap(driver.ErrInvalid, "headless: end outside recording")
	}
	if c.rendering {
		c.b.violate("%s ended inside a rendering scope", &c.object)
	}
	c.state = cbExecutable
	return nil
}

func (c *commandBuffer) recording(cmd string) bool {
	if c.state != cbRecording {
		c.b.violate("%s: %s recorded outside Begin/End", &c.object, cmd)
		return false
	}
	return true
}

func (c *commandBuffer) ref(o *object) {
	if o.destroyed {
		c.b.violate("%s records destroyed %s", &c.object, o)
	}
	c.refs[o] = struct{}{}
}

func (c *commandBuffer) outsideRendering(cmd string) {
	if c.rendering {
		c.b.violate("%s: %s inside a rendering scope", &c.object, cmd)
	}
}

func (c *commandBuffer) BeginRendering(info *driver.RenderingInfo) {
	if !c.recording("BeginRendering") {
		return
	}
	c.outsideRendering("BeginRendering")
	o := op{kind: opBeginRendering}
	for _, a := range info.Colors {
		img := a.Image.(*image)
		c.ref(&img.object)
		o.colors = append(o.colors, img)
	}
	if info.Depth != nil {
		img := info.Depth.Image.(*image)
		c.ref(&img.object)
		o.depth = img
	}
	c.rendering = true
	c.ops = append(c.ops, o)
}

func (c *commandBuffer) EndRendering() {
	if !c.recording("EndRendering") {
		return
	}
	if !c.rendering {
		c.b.violate("%s: EndRendering without BeginRendering", &c.object)
	}
	c.rendering = false
	c.ops = append(c.ops, op{kind: opEndRendering})
}

func (c *commandBuffer) BindPipeline(p driver.Pipeline) {
	if !c.recording("BindPipeline") {
		return
	}
	hp := p.(*pipeline)
	c.ref(&hp.object)
	c.pipeline = hp
	c.ops = append(c.ops, op{kind: opBindPipeline, pipeline: hp})
}

func (c *commandBuffer) SetViewport(vp driver.Viewport) {
	c.recording("SetViewport")
}

func (c *commandBuffer) SetScissor(r driver.Rect) {
	c.recording("SetScissor")
}

func (c *commandBuffer) BindVertexBuffers(first uint32, bufs []driver.Buffer, offsets []uint64) {
	if !c.recording("BindVertexBuffers") {
		return
	}
	o := op{kind: opBindVertex}
	for _, b := range bufs {
		hb := b.(*buffer)
		c.ref(&hb.object)
		o.bufs = append(o.bufs, hb)
	}
	c.ops = append(c.ops, o)
}

func (c *commandBuffer) BindIndexBuffer(buf driver.Buffer, offset uint64, t driver.IndexType) {
	if !c.recording("BindIndexBuffer") {
		return
	}
	hb := buf.(*buffer)
	c.ref(&hb.object)
	c.ops = append(c.ops, op{kind: opBindIndex, bufs: []*buffer{hb}, offset: offset})
}

func (c *commandBuffer) BindDescriptorSet(layout driver.PipelineLayout, set uint32, ds driver.DescriptorSet) {
	if !c.recording("BindDescriptorSet") {
		return
	}
	hs := ds.(*descriptorSet)
	c.ref(&hs.object)
	for _, b := range hs.bound {
		if b.res != nil {
			c.ref(&b.res.object)
		}
	}
	c.ops = append(c.ops, op{kind: opBindSet, set: set, ds: hs})
}

func (c *commandBuffer) PushConstants(layout driver.PipelineLayout, stages driver.ShaderStage, offset uint32, data []byte) {
	if !c.recording("PushConstants") {
		return
	}
	pl := layout.(*pipelineLayout)
	end := offset + uint32(len(data))
	for _, r := range pl.push {
		if r.Stages&stages == stages && offset >= r.Offset && end <= r.Offset+r.Size {
			return
		}
	}
	c.b.violate("%s: push constants [%d,%d) outside layout ranges", &c.object, offset, end)
}

func (c *commandBuffer) draw(cmd string, kind opKind) {
	if !c.recording(cmd) {
		return
	}
	if !c.rendering {
		c.b.violate("%s: %s outside a rendering scope", &c.object, cmd)
	}
	if c.pipeline == nil {
		c.b.violate("%s: %s without a pipeline", &c.object, cmd)
	}
	c.ops = append(c.ops, op{kind: kind})
}

func (c *commandBuffer) Draw(vertices, instances, firstVertex, firstInstance uint32) {
	c.draw("Draw", opDraw)
}

func (c *commandBuffer) DrawIndexed(indices, instances, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	c.draw("DrawIndexed", opDrawIndexed)
}

func (c *commandBuffer) CopyBuffer(src, dst driver.Buffer, regions []driver.BufferCopy) {
	if !c.recording("CopyBuffer") {
		return
	}
	c.outsideRendering("CopyBuffer")
	s, d := src.(*buffer), dst.(*buffer)
	c.ref(&s.object)
	c.ref(&d.object)
	c.ops = append(c.ops, op{kind: opCopy, src: s, dst: d, regions: append([]driver.BufferCopy(nil), regions...)})
}

func (c *commandBuffer) FillBuffer(dst driver.Buffer, offset, size uint64, value uint32) {
	if !c.recording("FillBuffer") {
		return
	}
	c.outsideRendering("FillBuffer")
	d := dst.(*buffer)
	c.ref(&d.object)
	c.ops = append(c.ops, op{kind: opFill, dst: d, offset: offset, size: size, value: value})
}

func (c *commandBuffer) CopyBufferToImage(src driver.Buffer, dst driver.Image, region driver.BufferImageCopy) {
	if !c.recording("CopyBufferToImage") {
		return
	}
	c.outsideRendering("CopyBufferToImage")
	s, d := src.(*buffer), dst.(*image)
	c.ref(&s.object)
	c.ref(&d.object)
	c.ops = append(c.ops, op{kind: opCopyToImage, src: s, dstImg: d, region: region})
}

func (c *commandBuffer) PipelineBarrier(mem []driver.MemoryBarrier, img []driver.ImageBarrier, buf []driver.BufferBarrier) {
	if !c.recording("PipelineBarrier") {
		return
	}
	c.outsideRendering("PipelineBarrier")
	for _, b := range img {
		c.ref(&b.Image.(*image).object)
	}
	for _, b := range buf {
		c.ref(&b.Buffer.(*buffer).object)
	}
	c.ops = append(c.ops, op{
		kind: opBarrier,
		mem:  append([]driver.MemoryBarrier(nil), mem...),
		img:  append([]driver.ImageBarrier(nil), img...),
		buf:  append([]driver.BufferBarrier(nil), buf...),
	})
}

// BarrierCalls counts the barrier commands recorded in a headless command
// buffer since its last reset.
func BarrierCalls(cb driver.CommandBuffer) int {
	c, ok := cb.(*commandBuffer)
	if !ok {
		return 0
	}
	n := 0
	for _, o := range c.ops {
		if o.kind == opBarrier {
			n++
		}
	}
	return n
}
