package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

func (b *Backend) createSurface() error {
	ptr, err := b.window.CreateWindowSurface(b.instance, nil)
	if err != nil {
		return errors.Wrap(err, "vulkan: create window surface")
	}
	b.surface = vk.SurfaceFromPointer(ptr)
	return nil
}

// surfaceExtent returns the extent the surface currently reports, falling
// back to the window framebuffer size when the platform leaves it to the
// swapchain.
func (b *Backend) surfaceExtent(caps *vk.SurfaceCapabilities, width, height int) vk.Extent2D {
	caps.CurrentExtent.Deref()
	if caps.CurrentExtent.Width != vk.MaxUint32 {
		return caps.CurrentExtent
	}
	if width <= 0 || height <= 0 {
		width, height = b.window.GetFramebufferSize()
	}
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return vk.Extent2D{
		Width:  clamp(uint32(width), caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(uint32(height), caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func clamp(v, lo, hi uint32) uint32 {
	return max(lo, min(v, hi))
}
