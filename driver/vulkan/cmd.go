package vulkan

import (
	"unsafe"

	"github.com/andewx/dieselrhi/driver"
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

type commandPool struct {
	d      *device
	handle vk.CommandPool
	family uint32
}

// NewCommandPool creates a transient pool on the family serving t. Its
// command buffers are only ever reset together with the pool.
func (d *device) NewCommandPool(t driver.QueueType) (driver.CommandPool, error) {
	q := d.queues[t]
	p := &commandPool{d: d, family: uint32(q.family)}
	ret := vk.CreateCommandPool(d.handle, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
		QueueFamilyIndex: p.family,
	}, nil, &p.handle)
	if isError(ret) {
		return nil, newError(ret)
	}
	return p, nil
}

func (p *commandPool) Reset() error {
	return newError(vk.ResetCommandPool(p.d.handle, p.handle, 0))
}

func (p *commandPool) Allocate() (driver.CommandBuffer, error) {
	cbs := make([]vk.CommandBuffer, 1)
	ret := vk.AllocateCommandBuffers(p.d.handle, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.handle,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, cbs)
	if isError(ret) {
		return nil, newError(ret)
	}
	return &commandBuffer{d: p.d, handle: cbs[0]}, nil
}

func (p *commandPool) Destroy() {
	vk.DestroyCommandPool(p.d.handle, p.handle, nil)
	p.handle = vk.NullCommandPool
}

// commandBuffer records into a primary command buffer. Recording methods
// cannot fail individually; the first error is kept and returned by End.
type commandBuffer struct {
	d      *device
	handle vk.CommandBuffer
	err    error
}

func (cb *commandBuffer) Begin() error {
	cb.err = nil
	return newError(vk.BeginCommandBuffer(cb.handle, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}))
}

func (cb *commandBuffer) End() error {
	if err := newError(vk.EndCommandBuffer(cb.handle)); err != nil {
		return err
	}
	return cb.err
}

func (cb *commandBuffer) fail(err error) {
	if cb.err == nil {
		cb.err = err
	}
}

func (cb *commandBuffer) BeginRendering(info *driver.RenderingInfo) {
	begin, err := cb.d.passes.begin(info)
	if err != nil {
		cb.fail(errors.Wrap(err, "vulkan: begin rendering"))
		return
	}
	vk.CmdBeginRenderPass(cb.handle, &begin, vk.SubpassContentsInline)
}

func (cb *commandBuffer) EndRendering() {
	vk.CmdEndRenderPass(cb.handle)
}

func (cb *commandBuffer) BindPipeline(p driver.Pipeline) {
	vk.CmdBindPipeline(cb.handle, vk.PipelineBindPointGraphics, p.(*pipeline).handle)
}

func (cb *commandBuffer) SetViewport(vp driver.Viewport) {
	vk.CmdSetViewport(cb.handle, 0, 1, []vk.Viewport{{
		X:        vp.X,
		Y:        vp.Y,
		Width:    vp.Width,
		Height:   vp.Height,
		MinDepth: vp.MinDepth,
		MaxDepth: vp.MaxDepth,
	}})
}

func (cb *commandBuffer) SetScissor(r driver.Rect) {
	vk.CmdSetScissor(cb.handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: r.X, Y: r.Y},
		Extent: vk.Extent2D{Width: r.Width, Height: r.Height},
	}})
}

func (cb *commandBuffer) BindVertexBuffers(first uint32, bufs []driver.Buffer, offsets []uint64) {
	if len(bufs) == 0 {
		return
	}
	handles := make([]vk.Buffer, len(bufs))
	offs := make([]vk.DeviceSize, len(bufs))
	for i, b := range bufs {
		handles[i] = b.(*buffer).handle
		if i < len(offsets) {
			offs[i] = vk.DeviceSize(offsets[i])
		}
	}
	vk.CmdBindVertexBuffers(cb.handle, first, uint32(len(handles)), handles, offs)
}

func (cb *commandBuffer) BindIndexBuffer(buf driver.Buffer, offset uint64, t driver.IndexType) {
	vk.CmdBindIndexBuffer(cb.handle, buf.(*buffer).handle, vk.DeviceSize(offset), vkIndexType(t))
}

func (cb *commandBuffer) BindDescriptorSet(layout driver.PipelineLayout, set uint32, ds driver.DescriptorSet) {
	vk.CmdBindDescriptorSets(cb.handle, vk.PipelineBindPointGraphics, layout.(*pipelineLayout).handle,
		set, 1, []vk.DescriptorSet{ds.(*descriptorSet).handle}, 0, nil)
}

func (cb *commandBuffer) PushConstants(layout driver.PipelineLayout, stages driver.ShaderStage, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(cb.handle, layout.(*pipelineLayout).handle, vkShaderStages(stages),
		offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (cb *commandBuffer) Draw(vertices, instances, firstVertex, firstInstance uint32) {
	vk.CmdDraw(cb.handle, vertices, instances, firstVertex, firstInstance)
}

func (cb *commandBuffer) DrawIndexed(indices, instances, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(cb.handle, indices, instances, firstIndex, vertexOffset, firstInstance)
}

func (cb *commandBuffer) CopyBuffer(src, dst driver.Buffer, regions []driver.BufferCopy) {
	if len(regions) == 0 {
		return
	}
	rg := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		rg[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(cb.handle, src.(*buffer).handle, dst.(*buffer).handle, uint32(len(rg)), rg)
}

func (cb *commandBuffer) FillBuffer(dst driver.Buffer, offset, size uint64, value uint32) {
	sz := vk.DeviceSize(size)
	if size == 0 {
		sz = vk.DeviceSize(vk.WholeSize)
	}
	vk.CmdFillBuffer(cb.handle, dst.(*buffer).handle, vk.DeviceSize(offset), sz, value)
}

// CopyBufferToImage expects dst in LayoutCopyDst.
func (cb *commandBuffer) CopyBufferToImage(src driver.Buffer, dst driver.Image, region driver.BufferImageCopy) {
	img := dst.(*image)
	vk.CmdCopyBufferToImage(cb.handle, src.(*buffer).handle, img.handle, vk.ImageLayoutTransferDstOptimal, 1,
		[]vk.BufferImageCopy{{
			BufferOffset: vk.DeviceSize(region.BufferOffset),
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vkAspect(img.desc.Format),
				MipLevel:       uint32(region.Level),
				BaseArrayLayer: uint32(region.Layer),
				LayerCount:     1,
			},
			ImageOffset: vk.Offset3D{X: region.X, Y: region.Y},
			ImageExtent: vk.Extent3D{Width: region.Width, Height: region.Height, Depth: 1},
		}})
}

func (cb *commandBuffer) PipelineBarrier(mem []driver.MemoryBarrier, img []driver.ImageBarrier, buf []driver.BufferBarrier) {
	if len(mem)+len(img)+len(buf) == 0 {
		return
	}
	var src, dst driver.Sync
	mbs := make([]vk.MemoryBarrier, len(mem))
	for i, b := range mem {
		src, dst = src|b.SyncBefore, dst|b.SyncAfter
		mbs[i] = vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vkAccess(b.AccessBefore),
			DstAccessMask: vkAccess(b.AccessAfter),
		}
	}
	ibs := make([]vk.ImageMemoryBarrier, len(img))
	for i, b := range img {
		src, dst = src|b.SyncBefore, dst|b.SyncAfter
		im := b.Image.(*image)
		ibs[i] = vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vkAccess(b.AccessBefore),
			DstAccessMask:       vkAccess(b.AccessAfter),
			OldLayout:           vkLayout(b.LayoutBefore),
			NewLayout:           vkLayout(b.LayoutAfter),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               im.handle,
			SubresourceRange:    im.fullRange(),
		}
	}
	bbs := make([]vk.BufferMemoryBarrier, len(buf))
	for i, b := range buf {
		src, dst = src|b.SyncBefore, dst|b.SyncAfter
		size := vk.DeviceSize(b.Size)
		if b.Size == 0 {
			size = vk.DeviceSize(vk.WholeSize)
		}
		bbs[i] = vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vkAccess(b.AccessBefore),
			DstAccessMask:       vkAccess(b.AccessAfter),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              b.Buffer.(*buffer).handle,
			Offset:              vk.DeviceSize(b.Offset),
			Size:                size,
		}
	}
	vk.CmdPipelineBarrier(cb.handle, vkStages(src, true), vkStages(dst, false), 0,
		uint32(len(mbs)), mbs, uint32(len(bbs)), bbs, uint32(len(ibs)), ibs)
}
