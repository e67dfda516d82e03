package vulkan

import (
	"unsafe"

	"github.com/andewx/dieselrhi/driver"
	vk "github.com/vulkan-go/vulkan"
)

var formats = map[driver.Format]vk.Format{
	driver.FormatUndefined:      vk.FormatUndefined,
	driver.FormatR8Unorm:        vk.FormatR8Unorm,
	driver.FormatRG8Unorm:       vk.FormatR8g8Unorm,
	driver.FormatRGBA8Unorm:     vk.FormatR8g8b8a8Unorm,
	driver.FormatRGBA8Srgb:      vk.FormatR8g8b8a8Srgb,
	driver.FormatBGRA8Unorm:     vk.FormatB8g8r8a8Unorm,
	driver.FormatBGRA8Srgb:      vk.FormatB8g8r8a8Srgb,
	driver.FormatR16Float:       vk.FormatR16Sfloat,
	driver.FormatRGBA16Float:    vk.FormatR16g16b16a16Sfloat,
	driver.FormatR32Uint:        vk.FormatR32Uint,
	driver.FormatR32Float:       vk.FormatR32Sfloat,
	driver.FormatRG32Float:      vk.FormatR32g32Sfloat,
	driver.FormatRGB32Float:     vk.FormatR32g32b32Sfloat,
	driver.FormatRGBA32Float:    vk.FormatR32g32b32a32Sfloat,
	driver.FormatD16Unorm:       vk.FormatD16Unorm,
	driver.FormatD32Float:       vk.FormatD32Sfloat,
	driver.FormatD24UnormS8Uint: vk.FormatD24UnormS8Uint,
	driver.FormatD32FloatS8Uint: vk.FormatD32SfloatS8Uint,
}

func vkFormat(f driver.Format) vk.Format {
	return formats[f]
}

// driverFormat is the inverse of vkFormat. Formats this layer does not
// name map to FormatUndefined.
func driverFormat(f vk.Format) driver.Format {
	for k, v := range formats {
		if v == f {
			return k
		}
	}
	return driver.FormatUndefined
}

func vkAspect(f driver.Format) vk.ImageAspectFlags {
	var out vk.ImageAspectFlagBits
	a := f.Aspect()
	if a&driver.AspectColor != 0 {
		out |= vk.ImageAspectColorBit
	}
	if a&driver.AspectDepth != 0 {
		out |= vk.ImageAspectDepthBit
	}
	if a&driver.AspectStencil != 0 {
		out |= vk.ImageAspectStencilBit
	}
	return vk.ImageAspectFlags(out)
}

// vkStages maps a synchronization scope. An empty scope becomes top of
// pipe when it is the source and bottom of pipe when it is the destination.
func vkStages(s driver.Sync, src bool) vk.PipelineStageFlags {
	if s&driver.SyncAll != 0 {
		return vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	}
	var out vk.PipelineStageFlagBits
	if s&driver.SyncVertexInput != 0 {
		out |= vk.PipelineStageVertexInputBit
	}
	if s&driver.SyncVertexShading != 0 {
		out |= vk.PipelineStageVertexShaderBit
	}
	if s&driver.SyncFragmentShading != 0 {
		out |= vk.PipelineStageFragmentShaderBit
	}
	if s&driver.SyncComputeShading != 0 {
		out |= vk.PipelineStageComputeShaderBit
	}
	if s&driver.SyncColorOutput != 0 {
		out |= vk.PipelineStageColorAttachmentOutputBit
	}
	if s&driver.SyncDSOutput != 0 {
		out |= vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit
	}
	if s&driver.SyncCopy != 0 {
		out |= vk.PipelineStageTransferBit
	}
	if s&driver.SyncHost != 0 {
		out |= vk.PipelineStageHostBit
	}
	if out == 0 {
		if src {
			out = vk.PipelineStageTopOfPipeBit
		} else {
			out = vk.PipelineStageBottomOfPipeBit
		}
	}
	return vk.PipelineStageFlags(out)
}

var accessBits = []struct {
	a driver.Access
	v vk.AccessFlagBits
}{
	{driver.AccessVertexRead, vk.AccessVertexAttributeReadBit},
	{driver.AccessIndexRead, vk.AccessIndexReadBit},
	{driver.AccessUniformRead, vk.AccessUniformReadBit},
	{driver.AccessShaderRead, vk.AccessShaderReadBit},
	{driver.AccessShaderWrite, vk.AccessShaderWriteBit},
	{driver.AccessColorRead, vk.AccessColorAttachmentReadBit},
	{driver.AccessColorWrite, vk.AccessColorAttachmentWriteBit},
	{driver.AccessDSRead, vk.AccessDepthStencilAttachmentReadBit},
	{driver.AccessDSWrite, vk.AccessDepthStencilAttachmentWriteBit},
	{driver.AccessCopyRead, vk.AccessTransferReadBit},
	{driver.AccessCopyWrite, vk.AccessTransferWriteBit},
	{driver.AccessHostRead, vk.AccessHostReadBit},
	{driver.AccessHostWrite, vk.AccessHostWriteBit},
	{driver.AccessAnyRead, vk.AccessMemoryReadBit},
	{driver.AccessAnyWrite, vk.AccessMemoryWriteBit},
}

func vkAccess(a driver.Access) vk.AccessFlags {
	var out vk.AccessFlagBits
	for _, b := range accessBits {
		if a&b.a != 0 {
			out |= b.v
		}
	}
	return vk.AccessFlags(out)
}

var layouts = [...]vk.ImageLayout{
	driver.LayoutUndefined:   vk.ImageLayoutUndefined,
	driver.LayoutGeneral:     vk.ImageLayoutGeneral,
	driver.LayoutColorTarget: vk.ImageLayoutColorAttachmentOptimal,
	driver.LayoutDSTarget:    vk.ImageLayoutDepthStencilAttachmentOptimal,
	driver.LayoutDSRead:      vk.ImageLayoutDepthStencilReadOnlyOptimal,
	driver.LayoutShaderRead:  vk.ImageLayoutShaderReadOnlyOptimal,
	driver.LayoutCopySrc:     vk.ImageLayoutTransferSrcOptimal,
	driver.LayoutCopyDst:     vk.ImageLayoutTransferDstOptimal,
	driver.LayoutPresent:     vk.ImageLayoutPresentSrc,
}

func vkLayout(l driver.Layout) vk.ImageLayout {
	return layouts[l]
}

func vkBufferUsage(u driver.BufferUsage) vk.BufferUsageFlags {
	var out vk.BufferUsageFlagBits
	if u&driver.BufferVertex != 0 {
		out |= vk.BufferUsageVertexBufferBit
	}
	if u&driver.BufferIndex != 0 {
		out |= vk.BufferUsageIndexBufferBit
	}
	if u&driver.BufferUniform != 0 {
		out |= vk.BufferUsageUniformBufferBit
	}
	if u&driver.BufferStorage != 0 {
		out |= vk.BufferUsageStorageBufferBit
	}
	if u&driver.BufferIndirect != 0 {
		out |= vk.BufferUsageIndirectBufferBit
	}
	if u&driver.BufferCopySrc != 0 {
		out |= vk.BufferUsageTransferSrcBit
	}
	if u&driver.BufferCopyDst != 0 {
		out |= vk.BufferUsageTransferDstBit
	}
	return vk.BufferUsageFlags(out)
}

func vkImageUsage(u driver.ImageUsage) vk.ImageUsageFlags {
	var out vk.ImageUsageFlagBits
	if u&driver.ImageSampled != 0 {
		out |= vk.ImageUsageSampledBit
	}
	if u&driver.ImageStorage != 0 {
		out |= vk.ImageUsageStorageBit
	}
	if u&driver.ImageColorTarget != 0 {
		out |= vk.ImageUsageColorAttachmentBit
	}
	if u&driver.ImageDepthTarget != 0 {
		out |= vk.ImageUsageDepthStencilAttachmentBit
	}
	if u&driver.ImageCopySrc != 0 {
		out |= vk.ImageUsageTransferSrcBit
	}
	if u&driver.ImageCopyDst != 0 {
		out |= vk.ImageUsageTransferDstBit
	}
	return vk.ImageUsageFlags(out)
}

func vkShaderStages(s driver.ShaderStage) vk.ShaderStageFlags {
	var out vk.ShaderStageFlagBits
	if s&driver.StageVertex != 0 {
		out |= vk.ShaderStageVertexBit
	}
	if s&driver.StageFragment != 0 {
		out |= vk.ShaderStageFragmentBit
	}
	if s&driver.StageCompute != 0 {
		out |= vk.ShaderStageComputeBit
	}
	return vk.ShaderStageFlags(out)
}

var descriptorTypes = [...]vk.DescriptorType{
	driver.DescUniformBuffer:        vk.DescriptorTypeUniformBuffer,
	driver.DescStorageBuffer:        vk.DescriptorTypeStorageBuffer,
	driver.DescSampledImage:         vk.DescriptorTypeSampledImage,
	driver.DescStorageImage:         vk.DescriptorTypeStorageImage,
	driver.DescSampler:              vk.DescriptorTypeSampler,
	driver.DescCombinedImageSampler: vk.DescriptorTypeCombinedImageSampler,
}

func vkFilter(f driver.Filter) vk.Filter {
	if f == driver.FilterLinear {
		return vk.FilterLinear
	}
	return vk.FilterNearest
}

func vkMipmapMode(f driver.Filter) vk.SamplerMipmapMode {
	if f == driver.FilterLinear {
		return vk.SamplerMipmapModeLinear
	}
	return vk.SamplerMipmapModeNearest
}

func vkAddress(m driver.AddressMode) vk.SamplerAddressMode {
	switch m {
	case driver.AddressMirror:
		return vk.SamplerAddressModeMirroredRepeat
	case driver.AddressClamp:
		return vk.SamplerAddressModeClampToEdge
	}
	return vk.SamplerAddressModeRepeat
}

var topologies = [...]vk.PrimitiveTopology{
	driver.TopologyTriangleList:  vk.PrimitiveTopologyTriangleList,
	driver.TopologyTriangleStrip: vk.PrimitiveTopologyTriangleStrip,
	driver.TopologyLineList:      vk.PrimitiveTopologyLineList,
	driver.TopologyPointList:     vk.PrimitiveTopologyPointList,
}

func vkCull(c driver.CullMode) vk.CullModeFlags {
	switch c {
	case driver.CullFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case driver.CullBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	}
	return vk.CullModeFlags(vk.CullModeNone)
}

var compareOps = [...]vk.CompareOp{
	driver.CompareNever:     vk.CompareOpNever,
	driver.CompareLess:      vk.CompareOpLess,
	driver.CompareLessEqual: vk.CompareOpLessOrEqual,
	driver.CompareEqual:     vk.CompareOpEqual,
	driver.CompareGreater:   vk.CompareOpGreater,
	driver.CompareAlways:    vk.CompareOpAlways,
}

var loadOps = [...]vk.AttachmentLoadOp{
	driver.LoadDontCare: vk.AttachmentLoadOpDontCare,
	driver.LoadClear:    vk.AttachmentLoadOpClear,
	driver.LoadLoad:     vk.AttachmentLoadOpLoad,
}

func vkStoreOp(s driver.StoreOp) vk.AttachmentStoreOp {
	if s == driver.StoreStore {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}

func vkIndexType(t driver.IndexType) vk.IndexType {
	if t == driver.IndexUint32 {
		return vk.IndexTypeUint32
	}
	return vk.IndexTypeUint16
}

func vkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

func adapterKind(t vk.PhysicalDeviceType) driver.AdapterKind {
	switch t {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return driver.AdapterDiscrete
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return driver.AdapterIntegrated
	case vk.PhysicalDeviceTypeVirtualGpu:
		return driver.AdapterVirtual
	case vk.PhysicalDeviceTypeCpu:
		return driver.AdapterCPU
	}
	return driver.AdapterOther
}

func safeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != 0 {
		return s + "\x00"
	}
	return s
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = safeString(s)
	}
	return out
}

// sliceUint32 reinterprets SPIR-V bytecode. len(data) must be a multiple
// of four.
func sliceUint32(data []byte) []uint32 {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}
