package driver

import "github.com/cockroachdb/errors"

// Native failures are mapped to these by every backend so callers can use
// errors.Is without knowing the backend.
var (
	ErrNoDevice    = errors.New("driver: no suitable device")
	ErrOutOfDate   = errors.New("driver: swapchain out of date")
	ErrSuboptimal  = errors.New("driver: swapchain suboptimal")
	ErrTimeout     = errors.New("driver: timeout")
	ErrDeviceLost  = errors.New("driver: device lost")
	ErrOutOfMemory = errors.New("driver: out of memory")
	ErrUnsupported = errors.New("driver: unsupported")
	ErrInvalid     = errors.New("driver: invalid argument")
)
