package dieselrhi

import (
	"github.com/andewx/dieselrhi/driver"
)

// FrameSlot holds everything one frame in flight needs: a fence per queue,
// the swapchain semaphores, the command lists recorded for the frame and
// the objects waiting for the frame's fences before they can be freed.
type FrameSlot struct {
	d     *Device
	index int

	fences [driver.QueueCount]driver.Fence
	// used marks fences attached to a submission since the last reset. Only
	// those are waited on, so a frame abandoned before submit never blocks.
	used [driver.QueueCount]bool

	imageAcquired  driver.Semaphore
	renderComplete driver.Semaphore

	pools   [driver.QueueCount]*listPool
	garbage garbageList
}

func newFrameSlot(d *Device, index int) *FrameSlot {
	f := &FrameSlot{d: d, index: index}
	var err error
	for q := driver.QueueType(0); q < driver.QueueCount; q++ {
		f.fences[q], err = d.dev.NewFence(false)
		d.must("frame: new fence", err)
		f.pools[q] = newListPool(d, f, q)
	}
	f.imageAcquired, err = d.dev.NewSemaphore()
	d.must("frame: new semaphore", err)
	f.renderComplete, err = d.dev.NewSemaphore()
	d.must("frame: new semaphore", err)
	return f
}

func (f *FrameSlot) Index() int { return f.index }

// wait blocks on every fence submitted since the slot was last reset, then
// resets those fences. A timeout is fatal.
func (f *FrameSlot) wait() bool {
	for q, fence := range f.fences {
		if !f.used[q] {
			continue
		}
		if err := fence.Wait(f.d.fenceTimeout()); err != nil {
			f.d.fatal("frame: wait fence", err)
			return false
		}
	}
	for q, fence := range f.fences {
		if !f.used[q] {
			continue
		}
		if !f.d.must("frame: reset fence", fence.Reset()) {
			return false
		}
		f.used[q] = false
	}
	return true
}

// recycle makes the slot ready for a new frame. It must follow wait.
func (f *FrameSlot) recycle() {
	for _, p := range f.pools {
		p.rewind()
	}
	f.reapGarbage()
}

func (f *FrameSlot) reapGarbage() {
	f.garbage.reap()
}

// destroy tolerates a slot whose creation failed halfway.
func (f *FrameSlot) destroy() {
	for q := range f.fences {
		if f.pools[q] != nil {
			f.pools[q].destroy()
		}
		if f.fences[q] != nil {
			f.fences[q].Destroy()
		}
	}
	for _, sem := range []driver.Semaphore{f.imageAcquired, f.renderComplete} {
		if sem != nil {
			sem.Destroy()
		}
	}
	f.garbage.reap()
}

// BeginFrame starts a frame on the next slot of the ring: it waits for the
// slot's previous frame, frees its garbage and acquires a swapchain image.
// It returns false when no image could be acquired; the caller skips the
// frame and must not call EndFrame.
func (d *Device) BeginFrame(dt float64) bool {
	d.assertf(!d.inFrame, "BeginFrame called twice without EndFrame")
	if !d.ready || d.down {
		return false
	}
	if d.sc.pending() && !d.sc.resize() {
		return false
	}

	f := d.frames[d.slot]
	if !f.wait() {
		return false
	}
	f.recycle()

	if !d.sc.acquire(f.imageAcquired) {
		return false
	}
	d.inFrame = true
	return true
}

// EndFrame submits every command list of the frame and presents. It returns
// false when the frame was not shown; a later BeginFrame recreates the
// swapchain.
func (d *Device) EndFrame(dt float64) bool {
	if !d.inFrame {
		return false
	}
	f := d.frames[d.slot]
	d.submitFrame(f)

	if img, ok := d.image(d.sc.presentImage()); ok {
		d.assertf(img.tag == driver.LayoutPresent,
			"present image is in %s layout, want %s", img.tag, driver.LayoutPresent)
	}
	shown := d.sc.present(d.dev.Queue(driver.QueueGraphics), f.renderComplete)

	d.inFrame = false
	d.lastSlot = d.slot
	d.frame++
	d.slot = int(d.frame % uint64(len(d.frames)))
	return shown
}

// Frame is the number of frames ended so far.
func (d *Device) Frame() uint64 { return d.frame }

// FramesInFlight is the depth of the frame ring.
func (d *Device) FramesInFlight() int { return len(d.frames) }

// garbageSlot is the slot a destroyed object is retired to: the open frame
// if any, otherwise the last submitted one, since either may still reference
// the object on the GPU.
func (d *Device) garbageSlot() *FrameSlot {
	if d.inFrame {
		return d.frames[d.slot]
	}
	return d.frames[d.lastSlot]
}
