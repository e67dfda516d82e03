package vulkan

import (
	"github.com/andewx/dieselrhi/driver"
	"github.com/andewx/dieselrhi/internal/alloc"
	vk "github.com/vulkan-go/vulkan"
)

type device struct {
	b      *Backend
	gpu    vk.PhysicalDevice
	handle vk.Device

	props         vk.PhysicalDeviceProperties
	memProps      vk.PhysicalDeviceMemoryProperties
	granularity   uint64
	anisotropy    bool
	maxAnisotropy float32

	// families holds each distinct queue family once.
	families []uint32
	queues   [driver.QueueCount]*queue

	host  *alloc.Allocator
	local *alloc.Allocator

	passes *passCache
	pools  []vk.DescriptorPool

	destroyed bool
}

var _ driver.Device = (*device)(nil)

func newDevice(b *Backend, gpu vk.PhysicalDevice, handle vk.Device, families driver.QueueFamilies, distinct []uint32) *device {
	d := &device{
		b:        b,
		gpu:      gpu,
		handle:   handle,
		families: distinct,
	}
	vk.GetPhysicalDeviceProperties(gpu, &d.props)
	d.props.Deref()
	d.props.Limits.Deref()
	d.granularity = uint64(d.props.Limits.BufferImageGranularity)
	d.maxAnisotropy = d.props.Limits.MaxSamplerAnisotropy

	vk.GetPhysicalDeviceMemoryProperties(gpu, &d.memProps)
	d.memProps.Deref()
	for i := uint32(0); i < d.memProps.MemoryTypeCount; i++ {
		d.memProps.MemoryTypes[i].Deref()
	}

	for t := range d.queues {
		var q vk.Queue
		vk.GetDeviceQueue(handle, uint32(families[t]), 0, &q)
		d.queues[t] = &queue{d: d, typ: driver.QueueType(t), family: families[t], handle: q}
	}
	d.host = alloc.New(b.hostBlock, d.memorySource(true), d.releaseMemory)
	d.local = alloc.New(b.deviceBlock, d.memorySource(false), d.releaseMemory)
	d.passes = newPassCache(d)
	return d
}

// sharing returns the sharing mode for new buffers and images. With more
// than one queue family every resource is concurrent, so no queue family
// ownership transfers are needed.
func (d *device) sharing() (vk.SharingMode, []uint32) {
	if len(d.families) > 1 {
		return vk.SharingModeConcurrent, d.families
	}
	return vk.SharingModeExclusive, nil
}

func (d *device) Destroy() {
	if d.destroyed {
		return
	}
	vk.DeviceWaitIdle(d.handle)
	d.passes.destroy()
	for _, p := range d.pools {
		vk.DestroyDescriptorPool(d.handle, p, nil)
	}
	d.pools = nil
	d.host.Destroy()
	d.local.Destroy()
	vk.DestroyDevice(d.handle, nil)
	d.handle = nil
	d.destroyed = true
}

func (d *device) WaitIdle() error {
	return newError(vk.DeviceWaitIdle(d.handle))
}

func (d *device) Queue(t driver.QueueType) driver.Queue {
	return d.queues[t]
}
