package dieselrhi

import (
	"github.com/andewx/dieselrhi/driver"
	"github.com/cockroachdb/errors"
)

type SwapchainState int

const (
	SwapchainValid SwapchainState = iota
	// SwapchainOutOfDate waits for the next BeginFrame to recreate it.
	SwapchainOutOfDate
	SwapchainRecreating
)

func (s SwapchainState) String() string {
	switch s {
	case SwapchainValid:
		return "valid"
	case SwapchainOutOfDate:
		return "out-of-date"
	case SwapchainRecreating:
		return "recreating"
	}
	return "invalid"
}

// swapchainController owns the swapchain, the handles of its images and the
// depth image rendered alongside them. The layout of every owned image is
// tracked in its record and updated by barriers as they are recorded.
type swapchainController struct {
	d      *Device
	native driver.Swapchain
	state  SwapchainState

	images      []ImageHandle
	depth       ImageHandle
	depthFormat driver.Format
	current     int

	// width and height are the size the next recreation asks for.
	width, height int
	recreated     int
}

func newSwapchainController(d *Device) *swapchainController {
	return &swapchainController{
		d:           d,
		depthFormat: driver.FormatD32Float,
		current:     -1,
	}
}

func (s *swapchainController) create(width, height int) bool {
	s.width, s.height = width, height
	sc, err := s.d.dev.NewSwapchain(driver.SwapchainDesc{
		Width:  width,
		Height: height,
		Images: s.d.cfg.SwapchainImages,
		VSync:  s.d.cfg.VSync,
	})
	if !s.d.must("swapchain: create", err) {
		return false
	}
	s.native = sc
	s.state = SwapchainValid
	return s.register()
}

// register wraps the native images in handles and creates the depth image.
func (s *swapchainController) register() bool {
	s.images = s.images[:0]
	for _, img := range s.native.Images() {
		h := s.d.res.images.Insert(imageRecord{native: img, desc: img.Desc(), owned: true})
		s.images = append(s.images, ImageHandle{h})
	}
	ext := s.native.Extent()
	desc := driver.ImageDesc{
		Format: s.depthFormat,
		Width:  ext.Width,
		Height: ext.Height,
		Levels: 1,
		Layers: 1,
		Usage:  driver.ImageDepthTarget,
	}
	depth, err := s.d.dev.NewImage(desc)
	if !s.d.must("swapchain: depth image", err) {
		return false
	}
	s.depth = ImageHandle{s.d.res.images.Insert(imageRecord{native: depth, desc: desc, owned: true})}
	return true
}

// unregister retires every handle and frees the depth image. The device
// must be idle.
func (s *swapchainController) unregister() {
	for _, h := range s.images {
		s.d.res.images.Remove(h.h)
	}
	s.images = s.images[:0]
	if rec, ok := s.d.res.images.Remove(s.depth.h); ok {
		rec.native.Destroy()
	}
	s.depth = ImageHandle{}
	s.current = -1
}

func (s *swapchainController) pending() bool {
	return s.state == SwapchainOutOfDate
}

func (s *swapchainController) invalidate() {
	if s.state == SwapchainValid {
		s.state = SwapchainOutOfDate
	}
}

// resize rebuilds the swapchain at the requested size. It returns false
// without doing anything while the size is zero, and leaves the swapchain
// out of date when the surface itself has no area.
func (s *swapchainController) resize() bool {
	if s.width <= 0 || s.height <= 0 {
		return false
	}
	s.state = SwapchainRecreating
	if !s.d.must("swapchain: wait idle", s.d.dev.WaitIdle()) {
		return false
	}
	s.unregister()
	if err := s.native.Recreate(s.width, s.height); err != nil {
		if errors.Is(err, driver.ErrOutOfDate) {
			// the surface is zero-sized, typically a minimized window whose
			// resize event has not arrived yet
			s.state = SwapchainOutOfDate
			s.d.log.Debug("swapchain recreation deferred", "err", err)
			return false
		}
		s.d.fatal("swapchain: recreate", err)
		return false
	}
	if !s.register() {
		return false
	}
	s.state = SwapchainValid
	s.recreated++
	ext := s.native.Extent()
	s.d.log.Info("swapchain recreated", "width", ext.Width, "height", ext.Height, "images", len(s.images))
	return true
}

func (s *swapchainController) acquire(signal driver.Semaphore) bool {
	idx, err := s.native.Acquire(signal, s.d.fenceTimeout())
	switch {
	case err == nil:
	case errors.Is(err, driver.ErrSuboptimal):
		s.invalidate()
	case errors.Is(err, driver.ErrOutOfDate):
		s.invalidate()
		return false
	default:
		s.d.fatal("swapchain: acquire", err)
		return false
	}
	s.current = idx
	return true
}

func (s *swapchainController) present(q driver.Queue, wait driver.Semaphore) bool {
	idx := s.current
	s.current = -1
	err := q.Present(s.native, idx, []driver.Semaphore{wait})
	switch {
	case err == nil:
		return true
	case errors.Is(err, driver.ErrSuboptimal):
		s.invalidate()
		return true
	case errors.Is(err, driver.ErrOutOfDate):
		s.invalidate()
		return false
	}
	s.d.fatal("swapchain: present", err)
	return false
}

func (s *swapchainController) presentImage() ImageHandle {
	if s.current < 0 || s.current >= len(s.images) {
		return ImageHandle{}
	}
	return s.images[s.current]
}

func (s *swapchainController) destroy() {
	if s.native == nil {
		return
	}
	s.unregister()
	s.native.Destroy()
	s.native = nil
}

// GetPresentImage returns the swapchain image acquired by BeginFrame. It
// starts each frame in an undefined layout; barriers must move it to
// LayoutPresent before EndFrame.
func (d *Device) GetPresentImage() ImageHandle {
	d.assertf(d.inFrame, "GetPresentImage outside a frame")
	return d.sc.presentImage()
}

// GetDepthImage returns the depth image sized like the swapchain.
func (d *Device) GetDepthImage() ImageHandle {
	return d.sc.depth
}

func (d *Device) GetSwapChainImageFormat() driver.Format {
	return d.sc.native.Format()
}

func (d *Device) GetDepthFormat() driver.Format {
	return d.sc.depthFormat
}

func (d *Device) SwapchainExtent() driver.Extent {
	return d.sc.native.Extent()
}

func (d *Device) SwapchainState() SwapchainState {
	return d.sc.state
}

// ImageLayout returns the tracked layout of a swapchain-owned image.
func (d *Device) ImageLayout(h ImageHandle) (driver.Layout, bool) {
	rec, ok := d.res.images.Get(h.h)
	if !ok || !rec.owned {
		return driver.LayoutUndefined, false
	}
	return rec.tag, true
}

// OnResize records a window size change. The swapchain is recreated by the
// next BeginFrame; a zero size skips frames until the window is restored.
func (d *Device) OnResize(width, height int) {
	d.sc.width, d.sc.height = width, height
	d.sc.invalidate()
}

// Resize recreates the swapchain now. It must not be called inside a frame.
func (d *Device) Resize(width, height int) bool {
	d.assertf(!d.inFrame, "Resize inside a frame")
	d.sc.width, d.sc.height = width, height
	return d.sc.resize()
}
