package headless

import (
	"time"

	"github.com/andewx/dieselrhi/driver"
	"github.com/cockroachdb/errors"
)

type fence struct {
	object
	d        *device
	signaled bool
}

// Wait runs the simulated GPU and reports ErrTimeout if the fence is still
// unsignaled afterwards. It never sleeps.
func (f *fence) Wait(timeout time.Duration) error {
	if f.destroyed {
		return errors.Wrapf(driver.ErrInvalid, "headless: wait on destroyed %s", &f.object)
	}
	if !f.signaled {
		f.d.run()
	}
	if !f.signaled {
		return errors.Wrapf(driver.ErrTimeout, "headless: %s after %s", &f.object, timeout)
	}
	return nil
}

func (f *fence) Reset() error {
	if f.inflight > 0 {
		f.b.violate("%s reset while pending", &f.object)
	}
	f.signaled = false
	return nil
}

func (f *fence) Signaled() bool { return f.signaled }

func (f *fence) Destroy() { f.release() }

type semaphore struct {
	object
	signaled bool
}

func (s *semaphore) Destroy() { s.release() }

func (s *semaphore) signal() {
	if s.signaled {
		s.b.violate("%s signaled twice without a wait", &s.object)
	}
	s.signaled = true
}
