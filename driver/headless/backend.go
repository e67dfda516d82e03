// Package headless is a software driver.Backend. It runs no shaders; it
// executes copies and fills on real bytes and checks what a validation layer
// would: resources destroyed while the GPU still uses them, command pools
// reset while their buffers are pending, missing barriers, and image layout
// mismatches.
//
// Work is executed lazily, when a fence is waited on or the device is
// waited idle. Until then nothing submitted has "happened", so freeing a
// resource early shows up as a violation instead of passing by luck.
package headless

import (
	"fmt"
	"log/slog"

	"github.com/andewx/dieselrhi/driver"
	"github.com/cockroachdb/errors"
)

// Kind classifies headless objects for statistics.
type Kind int

const (
	KindBuffer Kind = iota
	KindImage
	KindSampler
	KindShader
	KindSetLayout
	KindPipelineLayout
	KindPipeline
	KindDescriptorSet
	KindFence
	KindSemaphore
	KindCommandPool
	KindCommandBuffer
	KindSwapchain
	kindCount
)

var kindNames = [...]string{
	"buffer", "image", "sampler", "shader", "set-layout", "pipeline-layout",
	"pipeline", "descriptor-set", "fence", "semaphore", "command-pool",
	"command-buffer", "swapchain",
}

func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return "invalid"
	}
	return kindNames[k]
}

type EventKind int

const (
	EventSubmit EventKind = iota
	EventExecute
	EventFenceSignal
	EventDestroy
	EventAcquire
	EventPresent
)

func (k EventKind) String() string {
	switch k {
	case EventSubmit:
		return "submit"
	case EventExecute:
		return "execute"
	case EventFenceSignal:
		return "fence-signal"
	case EventDestroy:
		return "destroy"
	case EventAcquire:
		return "acquire"
	case EventPresent:
		return "present"
	}
	return "invalid"
}

// Event is one entry of the backend's ordered log. Object is the ID of the
// object concerned: the fence for EventFenceSignal, the destroyed object for
// EventDestroy, the swapchain image for EventAcquire and EventPresent.
type Event struct {
	Seq    uint64
	Kind   EventKind
	Object uint64
	Type   Kind
	Queue  driver.QueueType
}

func (e Event) String() string {
	return fmt.Sprintf("#%d %s %s#%d", e.Seq, e.Kind, e.Type, e.Object)
}

// Stats is a snapshot of the backend counters.
type Stats struct {
	Live        [kindCount]int
	Created     [kindCount]int
	Submits     int
	Executed    int
	Draws       int
	Presents    int
	Copies      int
	MemBlocks   int
	MemReserved uint64
}

// LiveObjects sums the live counts of every kind.
func (s Stats) LiveObjects() int {
	n := 0
	for _, c := range s.Live {
		n += c
	}
	return n
}

type Option func(b *Backend)

// WithAdapters replaces the default single adapter.
func WithAdapters(adapters ...driver.Adapter) Option {
	return func(b *Backend) {
		b.adapters = adapters
	}
}

// WithSurface sets the initial surface size.
func WithSurface(width, height int) Option {
	return func(b *Backend) {
		b.surface = driver.Extent{Width: width, Height: height}
	}
}

// WithBlockSize sets the size of the memory blocks buffers are carved from.
func WithBlockSize(size uint64) Option {
	return func(b *Backend) {
		b.blockSize = size
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		b.log = l
	}
}

// DefaultAdapter has one family per queue type, the first of which can
// also present.
func DefaultAdapter() driver.Adapter {
	return driver.Adapter{
		Index: 0,
		Name:  "headless",
		Kind:  driver.AdapterDiscrete,
		Families: []driver.QueueFamily{
			{Index: 0, Caps: driver.CapGraphics | driver.CapCompute | driver.CapTransfer | driver.CapPresent, Count: 1},
			{Index: 1, Caps: driver.CapCompute | driver.CapTransfer, Count: 1},
			{Index: 2, Caps: driver.CapTransfer, Count: 1},
		},
		Swapchain:   true,
		DeviceBytes: 1 << 30,
	}
}

// Backend implements driver.Backend. It is not safe for concurrent use.
type Backend struct {
	adapters  []driver.Adapter
	surface   driver.Extent
	blockSize uint64
	log       *slog.Logger

	seq        uint64
	nextID     uint64
	events     []Event
	violations []string
	stats      Stats

	hang       bool
	outOfDate  bool
	suboptimal bool

	devices []*device
}

var _ driver.Backend = (*Backend)(nil)

func New(opts ...Option) *Backend {
	b := &Backend{
		adapters:  []driver.Adapter{DefaultAdapter()},
		surface:   driver.Extent{Width: 800, Height: 600},
		blockSize: 1 << 20,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Name() string { return "headless" }

func (b *Backend) Adapters() ([]driver.Adapter, error) {
	if len(b.adapters) == 0 {
		return nil, driver.ErrNoDevice
	}
	out := make([]driver.Adapter, len(b.adapters))
	copy(out, b.adapters)
	return out, nil
}

func (b *Backend) Open(adapter int, families driver.QueueFamilies, validation bool) (driver.Device, error) {
	if adapter < 0 || adapter >= len(b.adapters) {
		return nil, errors.Wrapf(driver.ErrInvalid, "headless: adapter %d", adapter)
	}
	a := b.adapters[adapter]
	for t, f := range families {
		if f < 0 || f >= len(a.Families) {
			return nil, errors.Wrapf(driver.ErrInvalid, "headless: %s queue family %d", driver.QueueType(t), f)
		}
	}
	d := newDevice(b, families)
	b.devices = append(b.devices, d)
	return d, nil
}

func (b *Backend) Close() {
	for _, d := range b.devices {
		if !d.destroyed {
			b.violate("backend closed with live device")
		}
	}
}

// SetSurfaceSize simulates a window resize. Existing swapchains become out
// of date.
func (b *Backend) SetSurfaceSize(width, height int) {
	b.surface = driver.Extent{Width: width, Height: height}
	b.outOfDate = true
}

// SetOutOfDate makes acquire and present report ErrOutOfDate until the
// swapchain is recreated.
func (b *Backend) SetOutOfDate(v bool) { b.outOfDate = v }

// SetSuboptimal makes acquire and present report ErrSuboptimal until the
// swapchain is recreated.
func (b *Backend) SetSuboptimal(v bool) { b.suboptimal = v }

// SetHang stops the simulated GPU from executing anything. Fence waits
// time out.
func (b *Backend) SetHang(v bool) { b.hang = v }

// Events returns a copy of the event log.
func (b *Backend) Events() []Event {
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Violations returns every validation failure seen so far.
func (b *Backend) Violations() []string {
	out := make([]string, len(b.violations))
	copy(out, b.violations)
	return out
}

func (b *Backend) Stats() Stats {
	s := b.stats
	for _, d := range b.devices {
		if d.destroyed {
			continue
		}
		as := d.mem.Stats()
		s.MemBlocks += as.Blocks
		s.MemReserved += as.Reserved
	}
	return s
}

// ID returns the headless object ID of a driver object, or 0.
func ID(v any) uint64 {
	if o, ok := v.(interface{ obj() *object }); ok {
		return o.obj().id
	}
	return 0
}

func (b *Backend) emit(kind EventKind, o *object, q driver.QueueType) {
	b.seq++
	e := Event{Seq: b.seq, Kind: kind, Queue: q}
	if o != nil {
		e.Object = o.id
		e.Type = o.kind
	}
	b.events = append(b.events, e)
}

func (b *Backend) violate(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	b.violations = append(b.violations, msg)
	b.log.Warn("headless validation", "msg", msg)
}

// object is embedded in every headless type.
type object struct {
	b         *Backend
	id        uint64
	kind      Kind
	destroyed bool
	// inflight counts submitted, not yet executed batches referencing it.
	inflight int
}

func (b *Backend) newObject(kind Kind) object {
	b.nextID++
	b.stats.Live[kind]++
	b.stats.Created[kind]++
	return object{b: b, id: b.nextID, kind: kind}
}

func (o *object) obj() *object { return o }

func (o *object) String() string {
	return fmt.Sprintf("%s#%d", o.kind, o.id)
}

// release marks o destroyed, reporting misuse. It returns false when o was
// already destroyed.
func (o *object) release() bool {
	if o.destroyed {
		o.b.violate("%s destroyed twice", o)
		return false
	}
	if o.inflight > 0 {
		o.b.violate("%s destroyed while in use by %d pending batches", o, o.inflight)
	}
	o.destroyed = true
	o.b.stats.Live[o.kind]--
	o.b.emit(EventDestroy, o, 0)
	return true
}
