package vulkan

import (
	"github.com/andewx/dieselrhi/driver"
	"github.com/andewx/dieselrhi/internal/alloc"
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

type buffer struct {
	d      *device
	handle vk.Buffer
	desc   driver.BufferDesc
	mem    alloc.Allocation
	mapped []byte
}

func (d *device) NewBuffer(desc driver.BufferDesc) (driver.Buffer, error) {
	if desc.Size == 0 {
		return nil, errors.Wrap(driver.ErrInvalid, "vulkan: zero-size buffer")
	}
	mode, families := d.sharing()
	b := &buffer{d: d, desc: desc}
	ret := vk.CreateBuffer(d.handle, &vk.BufferCreateInfo{
		SType:                 vk.StructureTypeBufferCreateInfo,
		Size:                  vk.DeviceSize(desc.Size),
		Usage:                 vkBufferUsage(desc.Usage),
		SharingMode:           mode,
		QueueFamilyIndexCount: uint32(len(families)),
		PQueueFamilyIndices:   families,
	}, nil, &b.handle)
	if isError(ret) {
		return nil, newError(ret)
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.handle, b.handle, &reqs)
	reqs.Deref()
	var err error
	b.mem, err = d.allocate(reqs, desc.Domain)
	if err != nil {
		vk.DestroyBuffer(d.handle, b.handle, nil)
		return nil, errors.Wrapf(err, "vulkan: buffer of %d bytes", desc.Size)
	}
	blk := b.mem.Block.Memory.(*memBlock)
	if ret := vk.BindBufferMemory(d.handle, b.handle, blk.mem, vk.DeviceSize(b.mem.Offset)); isError(ret) {
		b.Destroy()
		return nil, newError(ret)
	}
	if desc.Domain == driver.DomainCPU {
		b.mapped = blk.bytes(b.mem.Offset, desc.Size)
	}
	return b, nil
}

func (b *buffer) Size() uint64 { return b.desc.Size }

func (b *buffer) Mapped() []byte { return b.mapped }

func (b *buffer) Destroy() {
	vk.DestroyBuffer(b.d.handle, b.handle, nil)
	b.d.allocator(b.desc.Domain).Free(b.mem)
	b.handle = vk.NullBuffer
	b.mapped = nil
}

// image is either owned, with its own memory, or a swapchain image of
// which only the view belongs to this layer.
type image struct {
	d      *device
	handle vk.Image
	view   vk.ImageView
	desc   driver.ImageDesc
	mem    alloc.Allocation
	owned  bool
}

func (d *device) NewImage(desc driver.ImageDesc) (driver.Image, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, errors.Wrapf(driver.ErrInvalid, "vulkan: image %dx%d", desc.Width, desc.Height)
	}
	desc.Levels = max(desc.Levels, 1)
	desc.Layers = max(desc.Layers, 1)
	mode, families := d.sharing()
	img := &image{d: d, desc: desc, owned: true}
	ret := vk.CreateImage(d.handle, &vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vkFormat(desc.Format),
		Extent: vk.Extent3D{
			Width:  uint32(desc.Width),
			Height: uint32(desc.Height),
			Depth:  1,
		},
		MipLevels:             uint32(desc.Levels),
		ArrayLayers:           uint32(desc.Layers),
		Samples:               vk.SampleCount1Bit,
		Tiling:                vk.ImageTilingOptimal,
		Usage:                 vkImageUsage(desc.Usage),
		SharingMode:           mode,
		QueueFamilyIndexCount: uint32(len(families)),
		PQueueFamilyIndices:   families,
		InitialLayout:         vk.ImageLayoutUndefined,
	}, nil, &img.handle)
	if isError(ret) {
		return nil, newError(ret)
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.handle, img.handle, &reqs)
	reqs.Deref()
	var err error
	img.mem, err = d.allocate(reqs, driver.DomainGPU)
	if err != nil {
		vk.DestroyImage(d.handle, img.handle, nil)
		return nil, errors.Wrapf(err, "vulkan: image %dx%d %s", desc.Width, desc.Height, desc.Format)
	}
	blk := img.mem.Block.Memory.(*memBlock)
	if ret := vk.BindImageMemory(d.handle, img.handle, blk.mem, vk.DeviceSize(img.mem.Offset)); isError(ret) {
		img.Destroy()
		return nil, newError(ret)
	}
	if err := img.createView(); err != nil {
		img.Destroy()
		return nil, err
	}
	return img, nil
}

// wrapImage adopts a swapchain image.
func (d *device) wrapImage(handle vk.Image, desc driver.ImageDesc) (*image, error) {
	img := &image{d: d, handle: handle, desc: desc}
	if err := img.createView(); err != nil {
		return nil, err
	}
	return img, nil
}

func (img *image) createView() error {
	viewType := vk.ImageViewType2d
	if img.desc.Layers > 1 {
		viewType = vk.ImageViewType2dArray
	}
	ret := vk.CreateImageView(img.d.handle, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.handle,
		ViewType: viewType,
		Format:   vkFormat(img.desc.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: img.fullRange(),
	}, nil, &img.view)
	return newError(ret)
}

func (img *image) fullRange() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask: vkAspect(img.desc.Format),
		LevelCount: uint32(max(img.desc.Levels, 1)),
		LayerCount: uint32(max(img.desc.Layers, 1)),
	}
}

func (img *image) Desc() driver.ImageDesc { return img.desc }

// Destroy drops the framebuffers built on the view, then the view, and for
// owned images the image and its memory.
func (img *image) Destroy() {
	if img.view != vk.NullImageView {
		img.d.passes.evict(img.view)
		vk.DestroyImageView(img.d.handle, img.view, nil)
		img.view = vk.NullImageView
	}
	if img.owned && img.handle != vk.NullImage {
		vk.DestroyImage(img.d.handle, img.handle, nil)
		img.d.local.Free(img.mem)
	}
	img.handle = vk.NullImage
}

// lodClampNone leaves the mip chain unclamped.
const lodClampNone = 1000.0

type sampler struct {
	d      *device
	handle vk.Sampler
}

func (d *device) NewSampler(desc driver.SamplerDesc) (driver.Sampler, error) {
	aniso := d.anisotropy && desc.MaxAnisotropy > 1
	maxLod := desc.MaxLod
	if maxLod == 0 {
		maxLod = lodClampNone
	}
	s := &sampler{d: d}
	ret := vk.CreateSampler(d.handle, &vk.SamplerCreateInfo{
		SType:            vk.StructureTypeSamplerCreateInfo,
		MagFilter:        vkFilter(desc.Mag),
		MinFilter:        vkFilter(desc.Min),
		MipmapMode:       vkMipmapMode(desc.Mip),
		AddressModeU:     vkAddress(desc.AddressU),
		AddressModeV:     vkAddress(desc.AddressV),
		AddressModeW:     vkAddress(desc.AddressW),
		AnisotropyEnable: vkBool(aniso),
		MaxAnisotropy:    min(max(desc.MaxAnisotropy, 1), d.maxAnisotropy),
		CompareOp:        vk.CompareOpNever,
		MinLod:           desc.MinLod,
		MaxLod:           maxLod,
		BorderColor:      vk.BorderColorFloatTransparentBlack,
	}, nil, &s.handle)
	if isError(ret) {
		return nil, newError(ret)
	}
	return s, nil
}

func (s *sampler) Destroy() {
	vk.DestroySampler(s.d.handle, s.handle, nil)
	s.handle = nil
}

type shader struct {
	d      *device
	handle vk.ShaderModule
	stage  driver.ShaderStage
}

func (d *device) NewShader(stage driver.ShaderStage, code []byte) (driver.Shader, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.Wrapf(driver.ErrInvalid, "vulkan: SPIR-V length %d", len(code))
	}
	s := &shader{d: d, stage: stage}
	ret := vk.CreateShaderModule(d.handle, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}, nil, &s.handle)
	if isError(ret) {
		return nil, newError(ret)
	}
	return s, nil
}

func (s *shader) Stage() driver.ShaderStage { return s.stage }

func (s *shader) Destroy() {
	vk.DestroyShaderModule(s.d.handle, s.handle, nil)
	s.handle = vk.NullShaderModule
}
