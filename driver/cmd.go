package driver

// CommandPool owns the memory of the command buffers allocated from it.
// Reset returns every one of them to the initial state at once.
type CommandPool interface {
	Destroyer

	Reset() error
	Allocate() (CommandBuffer, error)
}

type LoadOp int

const (
	LoadDontCare LoadOp = iota
	LoadClear
	LoadLoad
)

type StoreOp int

const (
	StoreDontCare StoreOp = iota
	StoreStore
)

// ColorAttachment is a render target of BeginRendering. The image must be
// in LayoutColorTarget.
type ColorAttachment struct {
	Image Image
	Load  LoadOp
	Store StoreOp
	Clear [4]float32
}

// DepthAttachment is the depth/stencil target of BeginRendering. The image
// must be in LayoutDSTarget.
type DepthAttachment struct {
	Image        Image
	Load         LoadOp
	Store        StoreOp
	ClearDepth   float32
	ClearStencil uint32
}

type Rect struct {
	X, Y          int32
	Width, Height uint32
}

type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// RenderingInfo describes a dynamic rendering scope.
type RenderingInfo struct {
	Area   Rect
	Colors []ColorAttachment
	Depth  *DepthAttachment
}

type IndexType int

const (
	IndexUint16 IndexType = iota
	IndexUint32
)

type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

// BufferImageCopy copies tightly packed texels at BufferOffset into the
// given region of mip level Level.
type BufferImageCopy struct {
	BufferOffset uint64
	Level        int
	Layer        int
	X, Y         int32
	Width        uint32
	Height       uint32
}

// CommandBuffer records commands for one queue. Recording must happen
// between Begin and End; barriers are passed through in the order given and
// batching is the caller's concern.
type CommandBuffer interface {
	Begin() error
	End() error

	BeginRendering(info *RenderingInfo)
	EndRendering()

	BindPipeline(p Pipeline)
	SetViewport(vp Viewport)
	SetScissor(r Rect)
	BindVertexBuffers(first uint32, bufs []Buffer, offsets []uint64)
	BindIndexBuffer(buf Buffer, offset uint64, t IndexType)
	BindDescriptorSet(layout PipelineLayout, set uint32, ds DescriptorSet)
	PushConstants(layout PipelineLayout, stages ShaderStage, offset uint32, data []byte)

	Draw(vertices, instances, firstVertex, firstInstance uint32)
	DrawIndexed(indices, instances, firstIndex uint32, vertexOffset int32, firstInstance uint32)

	CopyBuffer(src, dst Buffer, regions []BufferCopy)
	FillBuffer(dst Buffer, offset, size uint64, value uint32)
	CopyBufferToImage(src Buffer, dst Image, region BufferImageCopy)

	// PipelineBarrier records all of the given barriers as one dependency.
	PipelineBarrier(mem []MemoryBarrier, img []ImageBarrier, buf []BufferBarrier)
}
