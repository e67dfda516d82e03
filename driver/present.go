package driver

import "time"

type Extent struct {
	Width  int
	Height int
}

type SwapchainDesc struct {
	Width  int
	Height int
	Images int
	VSync  bool
}

// Swapchain is a ring of presentable images bound to the backend's surface.
//
// Acquire returns ErrOutOfDate when the surface changed and no image can be
// used; the swapchain must be recreated before acquiring again. It returns a
// valid index together with ErrSuboptimal when the image can still be
// presented but the swapchain no longer matches the surface.
type Swapchain interface {
	Destroyer

	Images() []Image
	Format() Format
	Extent() Extent

	// Acquire requests the next image. signal is signaled when the image is
	// ready to be written.
	Acquire(signal Semaphore, timeout time.Duration) (int, error)

	// Recreate rebuilds the swapchain for a new surface size. Every image
	// previously returned by Images is destroyed; the device must be idle.
	// A surface with no area yields ErrOutOfDate and no images.
	Recreate(width, height int) error
}
