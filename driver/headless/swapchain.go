package headless

import (
	"time"

	"github.com/andewx/dieselrhi/driver"
	"github.com/cockroachdb/errors"
)

type swapchain struct {
	object
	d        *device
	count    int
	extent   driver.Extent
	images   []*image
	acquired []bool
	next     int
}

func (s *swapchain) build() error {
	ext := s.d.b.surface
	if ext.Width <= 0 || ext.Height <= 0 {
		return errors.Wrapf(driver.ErrOutOfDate, "headless: surface is %dx%d", ext.Width, ext.Height)
	}
	s.extent = ext
	s.images = s.images[:0]
	for i := 0; i < s.count; i++ {
		img, err := s.d.newImage(driver.ImageDesc{
			Format: s.Format(),
			Width:  ext.Width,
			Height: ext.Height,
			Usage:  driver.ImageColorTarget | driver.ImageCopyDst,
		}, true)
		if err != nil {
			return err
		}
		s.images = append(s.images, img)
	}
	s.acquired = make([]bool, s.count)
	s.next = 0
	s.d.b.outOfDate = false
	s.d.b.suboptimal = false
	return nil
}

func (s *swapchain) teardown() {
	for _, img := range s.images {
		img.destroy()
	}
	s.images = nil
}

func (s *swapchain) Images() []driver.Image {
	out := make([]driver.Image, len(s.images))
	for i, img := range s.images {
		out[i] = img
	}
	return out
}

func (s *swapchain) Format() driver.Format { return driver.FormatBGRA8Srgb }

func (s *swapchain) Extent() driver.Extent { return s.extent }

func (s *swapchain) Acquire(signal driver.Semaphore, timeout time.Duration) (int, error) {
	b := s.d.b
	if b.outOfDate {
		return -1, errors.WithStack(driver.ErrOutOfDate)
	}
	idx := -1
	for i := 0; i < s.count; i++ {
		c := (s.next + i) % s.count
		if !s.acquired[c] {
			idx = c
			break
		}
	}
	if idx < 0 {
		return -1, errors.Wrapf(driver.ErrTimeout, "headless: all %d images acquired", s.count)
	}
	s.next = (idx + 1) % s.count
	s.acquired[idx] = true
	sem := signal.(*semaphore)
	sem.signal()
	b.emit(EventAcquire, &s.images[idx].object, driver.QueueGraphics)
	if b.suboptimal {
		return idx, errors.WithStack(driver.ErrSuboptimal)
	}
	return idx, nil
}

func (s *swapchain) Recreate(width, height int) error {
	if !s.d.idle() {
		s.d.b.violate("%s recreated while the device is busy", &s.object)
	}
	s.teardown()
	return s.build()
}

func (s *swapchain) Destroy() {
	if !s.d.idle() {
		s.d.b.violate("%s destroyed while the device is busy", &s.object)
	}
	s.teardown()
	s.release()
}
