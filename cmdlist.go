package dieselrhi

import (
	"github.com/andewx/dieselrhi/driver"
)

// ListState is the lifecycle of a CommandList within one frame.
type ListState int

const (
	ListReady ListState = iota
	ListRecording
	ListEnded
	ListSubmitted
)

func (s ListState) String() string {
	switch s {
	case ListReady:
		return "ready"
	case ListRecording:
		return "recording"
	case ListEnded:
		return "ended"
	case ListSubmitted:
		return "submitted"
	}
	return "invalid"
}

// MemoryBarrier applies to all memory accessed by the list's queue.
type MemoryBarrier = driver.MemoryBarrier

// ImageBarrier is a dependency on one image, optionally transitioning its
// layout. LayoutBefore may be LayoutUndefined to discard the contents.
type ImageBarrier struct {
	driver.Barrier

	Image        ImageHandle
	LayoutBefore driver.Layout
	LayoutAfter  driver.Layout
}

// BufferBarrier is a dependency on a range of one buffer. Size 0 covers the
// rest of the buffer.
type BufferBarrier struct {
	driver.Barrier

	Buffer BufferHandle
	Offset uint64
	Size   uint64
}

type ColorAttachment struct {
	Image ImageHandle
	Load  driver.LoadOp
	Store driver.StoreOp
	Clear [4]float32
}

type DepthAttachment struct {
	Image        ImageHandle
	Load         driver.LoadOp
	Store        driver.StoreOp
	ClearDepth   float32
	ClearStencil uint32
}

// RenderingInfo opens a rendering scope. A zero Area covers the first
// attachment.
type RenderingInfo struct {
	Area   driver.Rect
	Colors []ColorAttachment
	Depth  *DepthAttachment
}

// CommandList records work for one queue within one frame. Lists are
// obtained from BeginCommandList, submitted by EndFrame and recycled when
// their frame slot comes around again; they must not be kept across frames.
type CommandList struct {
	d     *Device
	slot  *FrameSlot
	queue driver.QueueType

	pool driver.CommandPool
	cb   driver.CommandBuffer
	// done[q] is signaled by the list's batch for the lists on queue q that
	// wait for it. A binary semaphore has exactly one waiter, so every
	// waiting queue gets its own, created on first use.
	done   [driver.QueueCount]driver.Semaphore
	signal [driver.QueueCount]bool
	waits  []*CommandList

	state     ListState
	rendering bool
	layout    *PipelineLayout

	mem []driver.MemoryBarrier
	img []driver.ImageBarrier
	buf []driver.BufferBarrier
}

func newCommandList(d *Device, slot *FrameSlot, q driver.QueueType) *CommandList {
	c := &CommandList{d: d, slot: slot, queue: q}
	var err error
	if c.pool, err = d.dev.NewCommandPool(q); !d.must("cmd: new pool", err) {
		return nil
	}
	if c.cb, err = c.pool.Allocate(); !d.must("cmd: allocate", err) {
		return nil
	}
	return c
}

func (c *CommandList) Queue() driver.QueueType { return c.queue }

func (c *CommandList) State() ListState { return c.state }

// BeginCommandList returns a list of the current frame slot in the
// Recording state. Its native pool is reset before recording starts.
func (d *Device) BeginCommandList(q driver.QueueType) *CommandList {
	d.assertf(d.inFrame, "BeginCommandList outside BeginFrame/EndFrame")
	d.assertf(q >= 0 && q < driver.QueueCount, "invalid queue %d", q)
	c := d.frames[d.slot].pools[q].next()
	if c == nil {
		return nil
	}
	if !d.must("cmd: reset pool", c.pool.Reset()) {
		return nil
	}
	if !d.must("cmd: begin", c.cb.Begin()) {
		return nil
	}
	c.state = ListRecording
	return c
}

// SubmitCommandList ends cmd if it is still recording. The list goes to the
// GPU with the rest of its queue's lists at EndFrame.
func (d *Device) SubmitCommandList(cmd *CommandList) {
	d.assertf(cmd.state == ListRecording || cmd.state == ListEnded,
		"SubmitCommandList on a %s list", cmd.state)
	if cmd.state == ListRecording {
		cmd.End()
	}
}

// End flushes pending barriers and finishes recording.
func (c *CommandList) End() {
	if !c.recording() {
		return
	}
	c.d.assertf(!c.rendering, "End inside a rendering scope")
	c.flush()
	c.d.must("cmd: end", c.cb.End())
	c.state = ListEnded
}

// WaitFor makes this list's batch wait for other's batch. other must be on
// a queue submitted earlier in the frame (transfer, then compute, then
// graphics); lists on the same queue are already ordered.
func (c *CommandList) WaitFor(other *CommandList) {
	if other == nil || other.queue == c.queue {
		return
	}
	if !precedes(other.queue, c.queue) {
		c.d.assertf(false, "%s list cannot wait for a %s list", c.queue, other.queue)
		return
	}
	if other.done[c.queue] == nil {
		sem, err := c.d.dev.NewSemaphore()
		if !c.d.must("cmd: new semaphore", err) {
			return
		}
		other.done[c.queue] = sem
	}
	other.signal[c.queue] = true
	c.waits = append(c.waits, other)
}

func (c *CommandList) recycle() {
	c.state = ListReady
	c.signal = [driver.QueueCount]bool{}
	c.waits = c.waits[:0]
	c.rendering = false
	c.layout = nil
	c.mem, c.img, c.buf = c.mem[:0], c.img[:0], c.buf[:0]
}

func (c *CommandList) destroy() {
	c.pool.Destroy()
	for _, sem := range c.done {
		if sem != nil {
			sem.Destroy()
		}
	}
}

func (c *CommandList) recording() bool {
	ok := c.state == ListRecording
	c.d.assertf(ok, "recording into a %s list", c.state)
	return ok
}

// prep readies the list for a non-barrier command.
func (c *CommandList) prep() bool {
	if !c.recording() {
		return false
	}
	c.flush()
	return true
}

// PipelineBarriers queues barriers. Everything queued before the next
// command is recorded as a single dependency.
func (c *CommandList) PipelineBarriers(mem []MemoryBarrier, img []ImageBarrier, buf []BufferBarrier) {
	if !c.recording() {
		return
	}
	c.d.assertf(!c.rendering, "barrier inside a rendering scope")
	c.mem = append(c.mem, mem...)
	for _, b := range img {
		rec := c.d.res.images.Ptr(b.Image.h)
		if rec == nil {
			c.d.assertf(false, "barrier on stale image %+v", b.Image.h)
			continue
		}
		if rec.owned {
			c.d.assertf(b.LayoutBefore == driver.LayoutUndefined || b.LayoutBefore == rec.tag,
				"barrier expects %s but swapchain image is in %s", b.LayoutBefore, rec.tag)
			rec.tag = b.LayoutAfter
		}
		c.img = append(c.img, driver.ImageBarrier{
			Barrier:      b.Barrier,
			Image:        rec.native,
			LayoutBefore: b.LayoutBefore,
			LayoutAfter:  b.LayoutAfter,
		})
	}
	for _, b := range buf {
		rec, ok := c.d.buffer(b.Buffer)
		if !ok {
			continue
		}
		c.buf = append(c.buf, driver.BufferBarrier{
			Barrier: b.Barrier,
			Buffer:  rec.native,
			Offset:  b.Offset,
			Size:    b.Size,
		})
	}
}

func (c *CommandList) flush() {
	if len(c.mem) == 0 && len(c.img) == 0 && len(c.buf) == 0 {
		return
	}
	c.cb.PipelineBarrier(c.mem, c.img, c.buf)
	c.mem, c.img, c.buf = c.mem[:0], c.img[:0], c.buf[:0]
}

func (c *CommandList) BeginRendering(info RenderingInfo) {
	if !c.prep() {
		return
	}
	c.d.assertf(!c.rendering, "nested BeginRendering")
	ri := driver.RenderingInfo{Area: info.Area}
	for _, a := range info.Colors {
		rec, ok := c.d.image(a.Image)
		if !ok {
			return
		}
		if rec.owned {
			c.d.assertf(rec.tag == driver.LayoutColorTarget,
				"color attachment is in %s layout", rec.tag)
		}
		ri.Colors = append(ri.Colors, driver.ColorAttachment{
			Image: rec.native, Load: a.Load, Store: a.Store, Clear: a.Clear,
		})
		if ri.Area.Width == 0 {
			ri.Area.Width, ri.Area.Height = uint32(rec.desc.Width), uint32(rec.desc.Height)
		}
	}
	if a := info.Depth; a != nil {
		rec, ok := c.d.image(a.Image)
		if !ok {
			return
		}
		if rec.owned {
			c.d.assertf(rec.tag == driver.LayoutDSTarget,
				"depth attachment is in %s layout", rec.tag)
		}
		ri.Depth = &driver.DepthAttachment{
			Image: rec.native, Load: a.Load, Store: a.Store,
			ClearDepth: a.ClearDepth, ClearStencil: a.ClearStencil,
		}
		if ri.Area.Width == 0 {
			ri.Area.Width, ri.Area.Height = uint32(rec.desc.Width), uint32(rec.desc.Height)
		}
	}
	c.cb.BeginRendering(&ri)
	c.rendering = true
}

func (c *CommandList) EndRendering() {
	if !c.recording() {
		return
	}
	c.d.assertf(c.rendering, "EndRendering without BeginRendering")
	c.cb.EndRendering()
	c.rendering = false
}

func (c *CommandList) BindPipeline(h PipelineHandle) {
	if !c.prep() {
		return
	}
	rec, ok := c.d.pipeline(h)
	if !ok {
		return
	}
	c.cb.BindPipeline(rec.native)
	c.layout = rec.layout
}

func (c *CommandList) SetViewport(vp driver.Viewport) {
	if c.prep() {
		c.cb.SetViewport(vp)
	}
}

func (c *CommandList) SetScissor(r driver.Rect) {
	if c.prep() {
		c.cb.SetScissor(r)
	}
}

func (c *CommandList) BindVertexBuffers(first uint32, bufs []BufferHandle, offsets []uint64) {
	if !c.prep() {
		return
	}
	c.d.assertf(len(offsets) == 0 || len(offsets) == len(bufs), "%d offsets for %d buffers", len(offsets), len(bufs))
	natives := make([]driver.Buffer, len(bufs))
	for i, h := range bufs {
		rec, ok := c.d.buffer(h)
		if !ok {
			return
		}
		natives[i] = rec.native
	}
	if len(offsets) == 0 {
		offsets = make([]uint64, len(bufs))
	}
	c.cb.BindVertexBuffers(first, natives, offsets)
}

func (c *CommandList) BindIndexBuffer(h BufferHandle, offset uint64, t driver.IndexType) {
	if !c.prep() {
		return
	}
	if rec, ok := c.d.buffer(h); ok {
		c.cb.BindIndexBuffer(rec.native, offset, t)
	}
}

// BindDescriptorSet binds ds at index set of the bound pipeline's layout.
// ds must have been created for a pipeline sharing that layout.
func (c *CommandList) BindDescriptorSet(set uint32, h DescriptorSetHandle) {
	if !c.prep() {
		return
	}
	rec, ok := c.d.descriptorSet(h)
	if !ok {
		return
	}
	c.d.assertf(c.layout != nil, "BindDescriptorSet before BindPipeline")
	c.d.assertf(rec.layout == c.layout && rec.set == set,
		"descriptor set was created for another layout or set index")
	if c.layout == nil {
		return
	}
	c.cb.BindDescriptorSet(c.layout.native, set, rec.native)
}

func (c *CommandList) PushConstants(stages driver.ShaderStage, offset uint32, data []byte) {
	if !c.prep() {
		return
	}
	c.d.assertf(c.layout != nil, "PushConstants before BindPipeline")
	if c.layout == nil {
		return
	}
	c.cb.PushConstants(c.layout.native, stages, offset, data)
}

func (c *CommandList) Draw(vertices, instances, firstVertex, firstInstance uint32) {
	if !c.prep() {
		return
	}
	c.d.assertf(c.rendering, "Draw outside a rendering scope")
	c.cb.Draw(vertices, instances, firstVertex, firstInstance)
}

func (c *CommandList) DrawIndexed(indices, instances, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if !c.prep() {
		return
	}
	c.d.assertf(c.rendering, "DrawIndexed outside a rendering scope")
	c.cb.DrawIndexed(indices, instances, firstIndex, vertexOffset, firstInstance)
}

func (c *CommandList) CopyBuffer(src, dst BufferHandle, regions ...driver.BufferCopy) {
	if !c.prep() {
		return
	}
	c.d.assertf(!c.rendering, "CopyBuffer inside a rendering scope")
	s, ok := c.d.buffer(src)
	if !ok {
		return
	}
	t, ok := c.d.buffer(dst)
	if !ok {
		return
	}
	if len(regions) == 0 {
		regions = []driver.BufferCopy{{Size: min(s.desc.Size, t.desc.Size)}}
	}
	c.cb.CopyBuffer(s.native, t.native, regions)
}

func (c *CommandList) FillBuffer(dst BufferHandle, offset, size uint64, value uint32) {
	if !c.prep() {
		return
	}
	c.d.assertf(!c.rendering, "FillBuffer inside a rendering scope")
	if rec, ok := c.d.buffer(dst); ok {
		c.cb.FillBuffer(rec.native, offset, size, value)
	}
}

// CopyBufferToImage copies into dst, which must be in LayoutCopyDst.
func (c *CommandList) CopyBufferToImage(src BufferHandle, dst ImageHandle, region driver.BufferImageCopy) {
	if !c.prep() {
		return
	}
	c.d.assertf(!c.rendering, "CopyBufferToImage inside a rendering scope")
	s, ok := c.d.buffer(src)
	if !ok {
		return
	}
	t, ok := c.d.image(dst)
	if !ok {
		return
	}
	if region.Width == 0 {
		region.Width, region.Height = uint32(t.desc.Width), uint32(t.desc.Height)
	}
	c.cb.CopyBufferToImage(s.native, t.native, region)
}
