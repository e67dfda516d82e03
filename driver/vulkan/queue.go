package vulkan

import (
	"github.com/andewx/dieselrhi/driver"
	vk "github.com/vulkan-go/vulkan"
)

// queue may share its vk.Queue with other queue types of the same family.
type queue struct {
	d      *device
	typ    driver.QueueType
	family int
	handle vk.Queue
}

func (q *queue) Type() driver.QueueType { return q.typ }

func (q *queue) Family() int { return q.family }

func (q *queue) Submit(sub driver.Submission) error {
	info := vk.SubmitInfo{SType: vk.StructureTypeSubmitInfo}
	if n := len(sub.CommandBuffers); n > 0 {
		cbs := make([]vk.CommandBuffer, n)
		for i, cb := range sub.CommandBuffers {
			cbs[i] = cb.(*commandBuffer).handle
		}
		info.CommandBufferCount = uint32(n)
		info.PCommandBuffers = cbs
	}
	if n := len(sub.Waits); n > 0 {
		sems := make([]vk.Semaphore, n)
		stages := make([]vk.PipelineStageFlags, n)
		for i, w := range sub.Waits {
			sems[i] = w.Semaphore.(*semaphore).handle
			stage := w.Stage
			if stage == driver.SyncNone {
				stage = driver.SyncAll
			}
			stages[i] = vkStages(stage, false)
		}
		info.WaitSemaphoreCount = uint32(n)
		info.PWaitSemaphores = sems
		info.PWaitDstStageMask = stages
	}
	if n := len(sub.Signals); n > 0 {
		sems := make([]vk.Semaphore, n)
		for i, s := range sub.Signals {
			sems[i] = s.(*semaphore).handle
		}
		info.SignalSemaphoreCount = uint32(n)
		info.PSignalSemaphores = sems
	}
	f := vk.NullFence
	if sub.Fence != nil {
		f = sub.Fence.(*fence).handle
	}
	return newError(vk.QueueSubmit(q.handle, 1, []vk.SubmitInfo{info}, f))
}

// Present maps out-of-date and suboptimal results to ErrOutOfDate and
// ErrSuboptimal. A suboptimal image has still been queued.
func (q *queue) Present(sc driver.Swapchain, index int, waits []driver.Semaphore) error {
	s := sc.(*swapchain)
	sems := make([]vk.Semaphore, len(waits))
	for i, w := range waits {
		sems[i] = w.(*semaphore).handle
	}
	ret := vk.QueuePresent(q.handle, &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(sems)),
		PWaitSemaphores:    sems,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.handle},
		PImageIndices:      []uint32{uint32(index)},
	})
	return newError(ret)
}
