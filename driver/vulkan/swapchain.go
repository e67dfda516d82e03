package vulkan

import (
	"time"

	"github.com/andewx/dieselrhi/driver"
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

type swapchain struct {
	d      *device
	handle vk.Swapchain
	desc   driver.SwapchainDesc
	images []*image
	format vk.SurfaceFormat
	extent vk.Extent2D
}

func (d *device) NewSwapchain(desc driver.SwapchainDesc) (driver.Swapchain, error) {
	if d.b.surface == vk.NullSurface {
		return nil, errors.Wrap(driver.ErrUnsupported, "vulkan: backend has no surface")
	}
	sc := &swapchain{d: d, desc: desc}
	if err := sc.create(desc.Width, desc.Height); err != nil {
		return nil, err
	}
	return sc, nil
}

// chooseFormat prefers an sRGB BGRA surface and otherwise takes the first
// format the surface reports.
func chooseFormat(formats []vk.SurfaceFormat) (vk.SurfaceFormat, error) {
	if len(formats) == 0 {
		return vk.SurfaceFormat{}, errors.Wrap(driver.ErrUnsupported, "vulkan: surface reports no formats")
	}
	for i := range formats {
		formats[i].Deref()
	}
	if len(formats) == 1 && formats[0].Format == vk.FormatUndefined {
		return vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: formats[0].ColorSpace}, nil
	}
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Srgb {
			return f, nil
		}
	}
	for _, f := range formats {
		if driverFormat(f.Format) != driver.FormatUndefined {
			return f, nil
		}
	}
	return vk.SurfaceFormat{}, errors.Wrap(driver.ErrUnsupported, "vulkan: no usable surface format")
}

// choosePresentMode returns FIFO under vsync. Without it, mailbox is
// preferred over immediate; FIFO is always available.
func choosePresentMode(modes []vk.PresentMode, vsync bool) vk.PresentMode {
	if vsync {
		return vk.PresentModeFifo
	}
	for _, want := range []vk.PresentMode{vk.PresentModeMailbox, vk.PresentModeImmediate} {
		for _, m := range modes {
			if m == want {
				return m
			}
		}
	}
	return vk.PresentModeFifo
}

func imageCount(want int, caps *vk.SurfaceCapabilities) uint32 {
	n := uint32(max(want, 2))
	if n < caps.MinImageCount {
		n = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && n > caps.MaxImageCount {
		n = caps.MaxImageCount
	}
	return n
}

func (sc *swapchain) create(width, height int) error {
	d := sc.d
	gpu, surface := d.gpu, d.b.surface

	var caps vk.SurfaceCapabilities
	if ret := vk.GetPhysicalDeviceSurfaceCapabilities(gpu, surface, &caps); isError(ret) {
		return newError(ret)
	}
	caps.Deref()

	var n uint32
	vk.GetPhysicalDeviceSurfaceFormats(gpu, surface, &n, nil)
	formats := make([]vk.SurfaceFormat, n)
	vk.GetPhysicalDeviceSurfaceFormats(gpu, surface, &n, formats)
	format, err := chooseFormat(formats)
	if err != nil {
		return err
	}

	vk.GetPhysicalDeviceSurfacePresentModes(gpu, surface, &n, nil)
	modes := make([]vk.PresentMode, n)
	vk.GetPhysicalDeviceSurfacePresentModes(gpu, surface, &n, modes)
	mode := choosePresentMode(modes, sc.desc.VSync)

	extent := d.b.surfaceExtent(&caps, width, height)
	if extent.Width == 0 || extent.Height == 0 {
		return errors.Wrap(driver.ErrOutOfDate, "vulkan: surface has zero extent")
	}

	transform := caps.CurrentTransform
	if vk.SurfaceTransformFlagBits(caps.SupportedTransforms)&vk.SurfaceTransformIdentityBit != 0 {
		transform = vk.SurfaceTransformIdentityBit
	}
	alpha := vk.CompositeAlphaOpaqueBit
	for _, a := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(a) != 0 {
			alpha = a
			break
		}
	}

	sharing, families := d.sharing()
	old := sc.handle
	var handle vk.Swapchain
	ret := vk.CreateSwapchain(d.handle, &vk.SwapchainCreateInfo{
		SType:                 vk.StructureTypeSwapchainCreateInfo,
		Surface:               surface,
		MinImageCount:         imageCount(sc.desc.Images, &caps),
		ImageFormat:           format.Format,
		ImageColorSpace:       format.ColorSpace,
		ImageExtent:           extent,
		ImageArrayLayers:      1,
		ImageUsage:            vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode:      sharing,
		QueueFamilyIndexCount: uint32(len(families)),
		PQueueFamilyIndices:   families,
		PreTransform:          transform,
		CompositeAlpha:        alpha,
		PresentMode:           mode,
		Clipped:               vk.True,
		OldSwapchain:          old,
	}, nil, &handle)
	if isError(ret) {
		return newError(ret)
	}
	sc.releaseImages()
	if old != vk.NullSwapchain {
		vk.DestroySwapchain(d.handle, old, nil)
	}
	sc.handle, sc.format, sc.extent = handle, format, extent

	var count uint32
	vk.GetSwapchainImages(d.handle, handle, &count, nil)
	handles := make([]vk.Image, count)
	if ret := vk.GetSwapchainImages(d.handle, handle, &count, handles); isError(ret) {
		return newError(ret)
	}
	desc := driver.ImageDesc{
		Format: driverFormat(format.Format),
		Width:  int(extent.Width),
		Height: int(extent.Height),
		Levels: 1,
		Layers: 1,
		Usage:  driver.ImageColorTarget | driver.ImageCopyDst,
	}
	sc.images = make([]*image, 0, count)
	for _, h := range handles {
		img, err := d.wrapImage(h, desc)
		if err != nil {
			sc.releaseImages()
			return errors.Wrap(err, "vulkan: swapchain image view")
		}
		sc.images = append(sc.images, img)
	}
	d.b.log.Debug("swapchain created",
		"width", extent.Width, "height", extent.Height,
		"images", count, "format", desc.Format, "present", mode)
	return nil
}

func (sc *swapchain) releaseImages() {
	for _, img := range sc.images {
		img.Destroy()
	}
	sc.images = nil
}

func (sc *swapchain) Images() []driver.Image {
	out := make([]driver.Image, len(sc.images))
	for i, img := range sc.images {
		out[i] = img
	}
	return out
}

func (sc *swapchain) Format() driver.Format { return driverFormat(sc.format.Format) }

func (sc *swapchain) Extent() driver.Extent {
	return driver.Extent{Width: int(sc.extent.Width), Height: int(sc.extent.Height)}
}

// Acquire returns the index together with ErrSuboptimal when the image is
// usable but the swapchain should be recreated.
func (sc *swapchain) Acquire(signal driver.Semaphore, timeout time.Duration) (int, error) {
	sem := vk.NullSemaphore
	if signal != nil {
		sem = signal.(*semaphore).handle
	}
	var idx uint32
	ret := vk.AcquireNextImage(sc.d.handle, sc.handle, uint64(timeout.Nanoseconds()), sem, vk.NullFence, &idx)
	switch ret {
	case vk.Success:
		return int(idx), nil
	case vk.Suboptimal:
		return int(idx), newError(ret)
	}
	return -1, newError(ret)
}

func (sc *swapchain) Recreate(width, height int) error {
	return sc.create(width, height)
}

func (sc *swapchain) Destroy() {
	sc.releaseImages()
	if sc.handle != vk.NullSwapchain {
		vk.DestroySwapchain(sc.d.handle, sc.handle, nil)
		sc.handle = vk.NullSwapchain
	}
}
