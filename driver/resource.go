package driver

// MemoryDomain selects where a resource's memory lives.
type MemoryDomain int

const (
	// DomainGPU is device-local memory, not visible to the CPU.
	DomainGPU MemoryDomain = iota
	// DomainCPU is host-visible coherent memory, persistently mapped.
	DomainCPU
)

func (d MemoryDomain) String() string {
	if d == DomainCPU {
		return "cpu"
	}
	return "gpu"
}

type BufferUsage int

const (
	BufferVertex BufferUsage = 1 << iota
	BufferIndex
	BufferUniform
	BufferStorage
	BufferIndirect
	BufferCopySrc
	BufferCopyDst
)

type BufferDesc struct {
	Size   uint64
	Usage  BufferUsage
	Domain MemoryDomain
}

// Buffer is a linear range of GPU memory.
type Buffer interface {
	Destroyer

	Size() uint64

	// Mapped returns the persistently mapped contents of a DomainCPU
	// buffer, or nil for DomainGPU.
	Mapped() []byte
}

type ImageUsage int

const (
	ImageSampled ImageUsage = 1 << iota
	ImageStorage
	ImageColorTarget
	ImageDepthTarget
	ImageCopySrc
	ImageCopyDst
)

type ImageDesc struct {
	Format Format
	Width  int
	Height int
	Levels int
	Layers int
	Usage  ImageUsage
}

// Image is a 2D image with a default view covering every subresource.
type Image interface {
	Destroyer

	Desc() ImageDesc
}

type Filter int

const (
	FilterNearest Filter = iota
	FilterLinear
)

type AddressMode int

const (
	AddressRepeat AddressMode = iota
	AddressMirror
	AddressClamp
)

type SamplerDesc struct {
	Min, Mag, Mip Filter
	AddressU      AddressMode
	AddressV      AddressMode
	AddressW      AddressMode
	MaxAnisotropy float32
	MinLod        float32
	MaxLod        float32
}

type Sampler interface {
	Destroyer
}

// ShaderStage is a set of programmable stages.
type ShaderStage int

const (
	StageVertex ShaderStage = 1 << iota
	StageFragment
	StageCompute

	StageAllGraphics = StageVertex | StageFragment
)

func (s ShaderStage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	}
	return "mixed"
}

// Shader is a compiled shader module. The bytecode is opaque to this layer.
type Shader interface {
	Destroyer

	Stage() ShaderStage
}

type DescriptorKind int

const (
	DescUniformBuffer DescriptorKind = iota
	DescStorageBuffer
	DescSampledImage
	DescStorageImage
	DescSampler
	DescCombinedImageSampler
)

func (k DescriptorKind) String() string {
	switch k {
	case DescUniformBuffer:
		return "uniform-buffer"
	case DescStorageBuffer:
		return "storage-buffer"
	case DescSampledImage:
		return "sampled-image"
	case DescStorageImage:
		return "storage-image"
	case DescSampler:
		return "sampler"
	case DescCombinedImageSampler:
		return "combined-image-sampler"
	}
	return "invalid"
}

// LayoutBinding is one binding of a descriptor-set layout.
type LayoutBinding struct {
	Binding uint32
	Kind    DescriptorKind
	Count   uint32
	Stages  ShaderStage
}

// PushConstantRange is a range of push-constant bytes visible to Stages.
type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

type DescriptorSetLayout interface {
	Destroyer
}

type PipelineLayout interface {
	Destroyer
}

// DescriptorWrite fills one binding of a descriptor set. Only the fields
// matching Kind are read.
type DescriptorWrite struct {
	Binding uint32
	Kind    DescriptorKind
	Buffer  Buffer
	Offset  uint64
	Range   uint64
	Image   Image
	Sampler Sampler
}

type DescriptorSet interface {
	Destroyer
}

type Topology int

const (
	TopologyTriangleList Topology = iota
	TopologyTriangleStrip
	TopologyLineList
	TopologyPointList
)

type CullMode int

const (
	CullNone CullMode = iota
	CullFront
	CullBack
)

type CompareOp int

const (
	CompareNever CompareOp = iota
	CompareLess
	CompareLessEqual
	CompareEqual
	CompareGreater
	CompareAlways
)

type VertexBinding struct {
	Binding     uint32
	Stride      uint32
	PerInstance bool
}

type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

// GraphicsPipelineDesc is the full fixed-function and programmable state of
// a graphics pipeline. ColorFormats and DepthFormat describe the attachments
// it will be used with inside BeginRendering.
type GraphicsPipelineDesc struct {
	Layout     PipelineLayout
	Shaders    []Shader
	Bindings   []VertexBinding
	Attributes []VertexAttribute
	Topology   Topology
	Cull       CullMode
	CCW        bool
	DepthTest  bool
	DepthWrite bool
	DepthOp    CompareOp
	Blend      bool

	ColorFormats []Format
	DepthFormat  Format
}

type Pipeline interface {
	Destroyer
}
