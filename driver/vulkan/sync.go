package vulkan

import (
	"time"

	"github.com/andewx/dieselrhi/driver"
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

type fence struct {
	d      *device
	handle vk.Fence
}

func (d *device) NewFence(signaled bool) (driver.Fence, error) {
	var flags vk.FenceCreateFlags
	if signaled {
		flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	f := &fence{d: d}
	ret := vk.CreateFence(d.handle, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: flags,
	}, nil, &f.handle)
	if isError(ret) {
		return nil, newError(ret)
	}
	return f, nil
}

func (f *fence) Wait(timeout time.Duration) error {
	ret := vk.WaitForFences(f.d.handle, 1, []vk.Fence{f.handle}, vk.True, uint64(timeout.Nanoseconds()))
	if ret == vk.Timeout {
		return errors.Wrapf(driver.ErrTimeout, "vulkan: fence not signaled after %s", timeout)
	}
	return newError(ret)
}

func (f *fence) Reset() error {
	return newError(vk.ResetFences(f.d.handle, 1, []vk.Fence{f.handle}))
}

func (f *fence) Signaled() bool {
	return vk.GetFenceStatus(f.d.handle, f.handle) == vk.Success
}

func (f *fence) Destroy() {
	vk.DestroyFence(f.d.handle, f.handle, nil)
	f.handle = vk.NullFence
}

type semaphore struct {
	d      *device
	handle vk.Semaphore
}

func (d *device) NewSemaphore() (driver.Semaphore, error) {
	s := &semaphore{d: d}
	ret := vk.CreateSemaphore(d.handle, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &s.handle)
	if isError(ret) {
		return nil, newError(ret)
	}
	return s, nil
}

func (s *semaphore) Destroy() {
	vk.DestroySemaphore(s.d.handle, s.handle, nil)
	s.handle = vk.NullSemaphore
}
