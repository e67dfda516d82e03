package dieselrhi

import (
	"github.com/andewx/dieselrhi/driver"
	"github.com/cockroachdb/errors"
)

type (
	BufferDesc  = driver.BufferDesc
	ImageDesc   = driver.ImageDesc
	SamplerDesc = driver.SamplerDesc
	ShaderStage = driver.ShaderStage
)

// CreateBuffer creates a buffer and fills it with data, if any. CPU-domain
// buffers are written through their mapping. GPU-domain buffers are filled
// through a staging copy on the transfer queue and CreateBuffer blocks
// until the copy has finished.
func (d *Device) CreateBuffer(desc BufferDesc, data []byte) (BufferHandle, error) {
	if desc.Size == 0 {
		return BufferHandle{}, errors.Wrap(driver.ErrInvalid, "buffer: zero size")
	}
	if uint64(len(data)) > desc.Size {
		return BufferHandle{}, errors.Wrapf(driver.ErrInvalid,
			"buffer: %d bytes of data for a %d byte buffer", len(data), desc.Size)
	}
	if len(data) > 0 && desc.Domain == driver.DomainGPU {
		desc.Usage |= driver.BufferCopyDst
	}
	buf, err := d.dev.NewBuffer(desc)
	if err != nil {
		d.fatal("buffer: create", err)
		return BufferHandle{}, err
	}

	if len(data) > 0 {
		if desc.Domain == driver.DomainCPU {
			copy(buf.Mapped(), data)
		} else if err := d.upload.buffer(buf, data); err != nil {
			buf.Destroy()
			return BufferHandle{}, err
		}
	}
	return BufferHandle{d.res.buffers.Insert(bufferRecord{native: buf, desc: desc})}, nil
}

// BufferMapped returns the persistent mapping of a CPU-domain buffer, or nil.
func (d *Device) BufferMapped(h BufferHandle) []byte {
	rec, ok := d.buffer(h)
	if !ok {
		return nil
	}
	return rec.native.Mapped()
}

func (d *Device) BufferDesc(h BufferHandle) (BufferDesc, bool) {
	rec, ok := d.res.buffers.Get(h.h)
	return rec.desc, ok
}

// DestroyBuffer retires h immediately; the native buffer is freed once the
// current frame's fences have signaled.
func (d *Device) DestroyBuffer(h BufferHandle) {
	rec, ok := d.res.buffers.Remove(h.h)
	d.assertf(ok, "DestroyBuffer on stale handle %+v", h.h)
	if ok {
		d.retire(rec.native)
	}
}

// CreateImage creates a 2D image. When data is given it holds tightly
// packed texels of mip level 0, layer 0; the image is left in
// LayoutShaderRead. Without data the image starts in LayoutUndefined.
func (d *Device) CreateImage(desc ImageDesc, data []byte) (ImageHandle, error) {
	if desc.Width <= 0 || desc.Height <= 0 || desc.Format == driver.FormatUndefined {
		return ImageHandle{}, errors.Wrapf(driver.ErrInvalid,
			"image: %dx%d %s", desc.Width, desc.Height, desc.Format)
	}
	if desc.Levels == 0 {
		desc.Levels = 1
	}
	if desc.Layers == 0 {
		desc.Layers = 1
	}
	if len(data) > 0 {
		want := desc.Width * desc.Height * desc.Format.Size()
		if len(data) != want {
			return ImageHandle{}, errors.Wrapf(driver.ErrInvalid,
				"image: %d bytes of data, want %d", len(data), want)
		}
		desc.Usage |= driver.ImageCopyDst
	}
	img, err := d.dev.NewImage(desc)
	if err != nil {
		d.fatal("image: create", err)
		return ImageHandle{}, err
	}
	if len(data) > 0 {
		if err := d.upload.image(img, data); err != nil {
			img.Destroy()
			return ImageHandle{}, err
		}
	}
	return ImageHandle{d.res.images.Insert(imageRecord{native: img, desc: desc})}, nil
}

func (d *Device) ImageDesc(h ImageHandle) (ImageDesc, bool) {
	rec, ok := d.res.images.Get(h.h)
	return rec.desc, ok
}

// ImageFree retires an image created by CreateImage. Swapchain images and
// the depth image belong to the swapchain and cannot be freed.
func (d *Device) ImageFree(h ImageHandle) {
	rec, ok := d.image(h)
	if !ok {
		return
	}
	d.assertf(!rec.owned, "ImageFree on a swapchain-owned image")
	if rec.owned {
		return
	}
	d.res.images.Remove(h.h)
	d.retire(rec.native)
}

func (d *Device) CreateSampler(desc SamplerDesc) (SamplerHandle, error) {
	s, err := d.dev.NewSampler(desc)
	if err != nil {
		d.fatal("sampler: create", err)
		return SamplerHandle{}, err
	}
	return SamplerHandle{d.res.samplers.Insert(samplerRecord{native: s})}, nil
}

func (d *Device) DestroySampler(h SamplerHandle) {
	rec, ok := d.res.samplers.Remove(h.h)
	d.assertf(ok, "DestroySampler on stale handle %+v", h.h)
	if ok {
		d.retire(rec.native)
	}
}

// uploader runs one-shot copies on the transfer queue and waits for them.
type uploader struct {
	d     *Device
	pool  driver.CommandPool
	cb    driver.CommandBuffer
	fence driver.Fence
}

func (u *uploader) init() error {
	if u.pool != nil {
		return nil
	}
	var err error
	if u.pool, err = u.d.dev.NewCommandPool(driver.QueueTransfer); err != nil {
		return err
	}
	if u.cb, err = u.pool.Allocate(); err != nil {
		return err
	}
	u.fence, err = u.d.dev.NewFence(false)
	return err
}

func (u *uploader) staging(data []byte) (driver.Buffer, error) {
	buf, err := u.d.dev.NewBuffer(driver.BufferDesc{
		Size:   uint64(len(data)),
		Usage:  driver.BufferCopySrc,
		Domain: driver.DomainCPU,
	})
	if err != nil {
		return nil, err
	}
	copy(buf.Mapped(), data)
	return buf, nil
}

// run records with fn, submits and blocks until the transfer queue is done.
func (u *uploader) run(fn func(cb driver.CommandBuffer)) error {
	if err := u.init(); err != nil {
		return err
	}
	if err := u.pool.Reset(); err != nil {
		return err
	}
	if err := u.cb.Begin(); err != nil {
		return err
	}
	fn(u.cb)
	if err := u.cb.End(); err != nil {
		return err
	}
	q := u.d.dev.Queue(driver.QueueTransfer)
	err := q.Submit(driver.Submission{
		CommandBuffers: []driver.CommandBuffer{u.cb},
		Fence:          u.fence,
	})
	if err != nil {
		return err
	}
	if err := u.fence.Wait(u.d.fenceTimeout()); err != nil {
		return err
	}
	return u.fence.Reset()
}

func (u *uploader) buffer(dst driver.Buffer, data []byte) error {
	src, err := u.staging(data)
	if err != nil {
		u.d.fatal("upload: staging", err)
		return err
	}
	err = u.run(func(cb driver.CommandBuffer) {
		cb.CopyBuffer(src, dst, []driver.BufferCopy{{Size: uint64(len(data))}})
	})
	if err != nil {
		u.d.fatal("upload: buffer", err)
		return err
	}
	src.Destroy()
	return nil
}

func (u *uploader) image(dst driver.Image, data []byte) error {
	src, err := u.staging(data)
	if err != nil {
		u.d.fatal("upload: staging", err)
		return err
	}
	desc := dst.Desc()
	err = u.run(func(cb driver.CommandBuffer) {
		cb.PipelineBarrier(nil, []driver.ImageBarrier{{
			Barrier: driver.Barrier{
				SyncAfter:   driver.SyncCopy,
				AccessAfter: driver.AccessCopyWrite,
			},
			Image:        dst,
			LayoutBefore: driver.LayoutUndefined,
			LayoutAfter:  driver.LayoutCopyDst,
		}}, nil)
		cb.CopyBufferToImage(src, dst, driver.BufferImageCopy{
			Width:  uint32(desc.Width),
			Height: uint32(desc.Height),
		})
		// The fence wait orders later readers; only the layout changes here.
		cb.PipelineBarrier(nil, []driver.ImageBarrier{{
			Barrier: driver.Barrier{
				SyncBefore:   driver.SyncCopy,
				AccessBefore: driver.AccessCopyWrite,
			},
			Image:        dst,
			LayoutBefore: driver.LayoutCopyDst,
			LayoutAfter:  driver.LayoutShaderRead,
		}}, nil)
	})
	if err != nil {
		u.d.fatal("upload: image", err)
		return err
	}
	src.Destroy()
	return nil
}

func (u *uploader) destroy() {
	if u.pool != nil {
		u.pool.Destroy()
	}
	if u.fence != nil {
		u.fence.Destroy()
	}
	u.pool, u.cb, u.fence = nil, nil, nil
}
