// Package dieselrhi is a thin frame and resource layer over an explicit,
// multi-queue GPU API. A Device owns a ring of frame slots, the command
// lists recorded into them, a content-hashed pipeline layout cache and the
// swapchain. Native objects are freed only once the fences of the frame
// that last used them have signaled.
package dieselrhi

import (
	"io"
	"log/slog"
	"time"

	"github.com/andewx/dieselrhi/driver"
	"github.com/andewx/dieselrhi/internal/slab"
	"github.com/cockroachdb/errors"
)

// Device is the root of the layer. It is not safe for concurrent use; the
// layout cache and the backend's memory allocator are the only internally
// synchronized parts.
type Device struct {
	cfg     Config
	log     *slog.Logger
	logFile io.Closer
	onFatal FatalHandler

	backend driver.Backend
	dev     driver.Device
	sel     QueueSelection

	res     arenas
	layouts *LayoutCache
	upload  *uploader

	frames []*FrameSlot
	// frame counts EndFrame calls; slot is frame modulo len(frames).
	frame    uint64
	slot     int
	lastSlot int
	inFrame  bool

	sc *swapchainController

	ready bool
	down  bool
}

type Option func(*Device)

// WithFatalHandler replaces the default exit-on-fatal behavior.
func WithFatalHandler(fn FatalHandler) Option {
	return func(d *Device) {
		d.onFatal = fn
	}
}

// WithLogger makes the device log to l instead of building a logger from
// Config.Log.
func WithLogger(l *slog.Logger) Option {
	return func(d *Device) {
		d.log = l
	}
}

// NewDevice binds a backend and a configuration. Nothing native is created
// until Init.
func NewDevice(b driver.Backend, cfg Config, opts ...Option) *Device {
	d := &Device{
		cfg:     cfg,
		onFatal: exitOnFatal,
		backend: b,
		res:     newArenas(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) Config() Config { return d.cfg }

func (d *Device) Logger() *slog.Logger { return d.log }

// Queues reports the adapter and queue families picked by Init.
func (d *Device) Queues() QueueSelection { return d.sel }

// Driver exposes the native device, for backend-specific extensions.
func (d *Device) Driver() driver.Device { return d.dev }

func (d *Device) fenceTimeout() time.Duration {
	return time.Duration(d.cfg.FenceTimeout)
}

// Init selects an adapter, opens the logical device and creates the frame
// ring and the swapchain. Errors before the device exists are returned;
// native failures after that are fatal. A failed Init releases whatever it
// created and leaves the device shut down.
func (d *Device) Init() error {
	if d.ready || d.down {
		return errors.New("device: already initialized")
	}
	if err := d.cfg.Validate(); err != nil {
		return err
	}
	if d.log == nil {
		l, closer, err := NewLogger(d.cfg.Log)
		if err != nil {
			return err
		}
		d.log, d.logFile = l, closer
	}
	if err := d.open(); err != nil {
		d.ShutDown()
		return err
	}
	d.ready = true
	return nil
}

func (d *Device) open() error {
	adapters, err := d.backend.Adapters()
	if err != nil {
		return errors.Wrapf(err, "device: enumerate adapters on %s", d.backend.Name())
	}
	sel, err := SelectQueues(adapters, d.cfg.PreferDiscrete)
	if err != nil {
		return err
	}
	d.sel = sel
	d.log.Info("adapter selected",
		"backend", d.backend.Name(),
		"adapter", sel.Adapter.Name,
		"kind", sel.Adapter.Kind,
		"graphics", sel.Families[driver.QueueGraphics],
		"compute", sel.Families[driver.QueueCompute],
		"transfer", sel.Families[driver.QueueTransfer])

	d.dev, err = d.backend.Open(sel.Adapter.Index, sel.Families, d.cfg.Validation)
	if err != nil {
		return errors.Wrapf(err, "device: open %s", sel.Adapter.Name)
	}

	d.layouts = NewLayoutCache(d.dev, d.cfg.Debug)
	d.upload = &uploader{d: d}

	d.frames = make([]*FrameSlot, d.cfg.FramesInFlight)
	for i := range d.frames {
		d.frames[i] = newFrameSlot(d, i)
	}

	d.sc = newSwapchainController(d)
	if !d.sc.create(d.cfg.Width, d.cfg.Height) {
		return errors.New("device: swapchain creation failed")
	}
	return nil
}

// ShutDown waits for the GPU, frees everything still pending and every
// object the device created, then destroys the device. It is safe to call
// more than once and after a failed Init.
func (d *Device) ShutDown() {
	if d.down {
		return
	}
	d.down = true
	d.inFrame = false
	if d.dev != nil {
		d.release()
	}
	if d.logFile != nil {
		d.logFile.Close()
		d.logFile = nil
	}
}

func (d *Device) release() {
	if err := d.dev.WaitIdle(); err != nil {
		d.log.Warn("wait idle at shutdown", "err", err)
	}
	for _, f := range d.frames {
		f.reapGarbage()
	}

	if d.sc != nil {
		d.sc.destroy()
	}
	leaks := d.destroyLeaked()
	if leaks > 0 {
		d.log.Warn("resources still alive at shutdown", "count", leaks)
	}
	if d.upload != nil {
		d.upload.destroy()
	}
	for _, f := range d.frames {
		if f != nil {
			f.destroy()
		}
	}
	d.frames = nil
	if d.layouts != nil {
		d.layouts.Destroy()
	}
	d.dev.Destroy()
	d.dev = nil
}

// destroyLeaked frees the native objects behind handles the caller never
// destroyed and reports how many there were.
func (d *Device) destroyLeaked() int {
	n := 0
	d.res.sets.Each(func(_ slab.Handle, r descriptorSetRecord) {
		r.native.Destroy()
		n++
	})
	d.res.pipelines.Each(func(_ slab.Handle, r pipelineRecord) {
		r.native.Destroy()
		n++
	})
	d.res.shaders.Each(func(_ slab.Handle, r shaderRecord) {
		r.native.Destroy()
		n++
	})
	d.res.samplers.Each(func(_ slab.Handle, r samplerRecord) {
		r.native.Destroy()
		n++
	})
	d.res.images.Each(func(_ slab.Handle, r imageRecord) {
		if !r.owned {
			r.native.Destroy()
			n++
		}
	})
	d.res.buffers.Each(func(_ slab.Handle, r bufferRecord) {
		r.native.Destroy()
		n++
	})
	d.res = newArenas()
	return n
}
