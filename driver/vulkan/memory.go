package vulkan

import (
	"unsafe"

	"github.com/andewx/dieselrhi/driver"
	"github.com/andewx/dieselrhi/internal/alloc"
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// memBlock is one vkAllocateMemory result. Host-visible blocks stay mapped
// for their whole life.
type memBlock struct {
	mem  vk.DeviceMemory
	ptr  unsafe.Pointer
	size uint64
}

func (b *memBlock) bytes(offset, size uint64) []byte {
	if b.ptr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Add(b.ptr, offset)), size)
}

// findMemoryType returns the first type allowed by typeBits whose property
// flags include every bit of want.
func (d *device) findMemoryType(typeBits uint32, want vk.MemoryPropertyFlagBits) (uint32, bool) {
	for i := uint32(0); i < d.memProps.MemoryTypeCount; i++ {
		if typeBits&(1<<i) == 0 {
			continue
		}
		flags := d.memProps.MemoryTypes[i].PropertyFlags
		if flags&vk.MemoryPropertyFlags(want) == vk.MemoryPropertyFlags(want) {
			return i, true
		}
	}
	return 0, false
}

// memoryClass picks the memory type for a resource in domain. Device-local
// memory falls back to any allowed type; host memory must be visible and
// coherent.
func (d *device) memoryClass(typeBits uint32, domain driver.MemoryDomain) (uint32, error) {
	if domain == driver.DomainCPU {
		if t, ok := d.findMemoryType(typeBits, vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit); ok {
			return t, nil
		}
		return 0, errors.Wrap(driver.ErrUnsupported, "vulkan: no host-visible coherent memory type")
	}
	if t, ok := d.findMemoryType(typeBits, vk.MemoryPropertyDeviceLocalBit); ok {
		return t, nil
	}
	if t, ok := d.findMemoryType(typeBits, 0); ok {
		return t, nil
	}
	return 0, errors.Wrapf(driver.ErrUnsupported, "vulkan: no memory type in mask %#x", typeBits)
}

func (d *device) allocator(domain driver.MemoryDomain) *alloc.Allocator {
	if domain == driver.DomainCPU {
		return d.host
	}
	return d.local
}

// allocate carves memory for reqs. Every allocation is aligned to the
// buffer-image granularity so linear and optimal resources can share a
// block.
func (d *device) allocate(reqs vk.MemoryRequirements, domain driver.MemoryDomain) (alloc.Allocation, error) {
	class, err := d.memoryClass(reqs.MemoryTypeBits, domain)
	if err != nil {
		return alloc.Allocation{}, err
	}
	align := max(uint64(reqs.Alignment), d.granularity)
	return d.allocator(domain).Allocate(class, uint64(reqs.Size), align)
}

func (d *device) memorySource(mapped bool) alloc.Source {
	return func(class uint32, size uint64) (any, error) {
		var mem vk.DeviceMemory
		ret := vk.AllocateMemory(d.handle, &vk.MemoryAllocateInfo{
			SType:           vk.StructureTypeMemoryAllocateInfo,
			AllocationSize:  vk.DeviceSize(size),
			MemoryTypeIndex: class,
		}, nil, &mem)
		if isError(ret) {
			return nil, newError(ret)
		}
		b := &memBlock{mem: mem, size: size}
		if mapped {
			ret = vk.MapMemory(d.handle, mem, 0, vk.DeviceSize(vk.WholeSize), 0, &b.ptr)
			if isError(ret) {
				vk.FreeMemory(d.handle, mem, nil)
				return nil, newError(ret)
			}
		}
		return b, nil
	}
}

func (d *device) releaseMemory(mem any) {
	b := mem.(*memBlock)
	if b.ptr != nil {
		vk.UnmapMemory(d.handle, b.mem)
		b.ptr = nil
	}
	vk.FreeMemory(d.handle, b.mem, nil)
}
