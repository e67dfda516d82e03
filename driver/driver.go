// Package driver defines the contract between the frame/resource layer and a
// native GPU backend. A Backend is chosen once when the device is created;
// nothing above this package depends on a concrete graphics API.
package driver

import "time"

// Destroyer is implemented by every native object. Destroy releases memory
// that is not managed by the GC, so it must be called explicitly and only
// once the GPU has stopped using the object.
type Destroyer interface {
	Destroy()
}

// QueueType names one of the fixed hardware queues a Device exposes.
type QueueType int

const (
	QueueGraphics QueueType = iota
	QueueCompute
	QueueTransfer
	QueueCount
)

func (q QueueType) String() string {
	switch q {
	case QueueGraphics:
		return "graphics"
	case QueueCompute:
		return "compute"
	case QueueTransfer:
		return "transfer"
	}
	return "unknown"
}

// QueueCaps is a set of capabilities of a queue family.
type QueueCaps uint32

const (
	CapGraphics QueueCaps = 1 << iota
	CapCompute
	CapTransfer
	CapPresent
)

func (c QueueCaps) Has(o QueueCaps) bool {
	return c&o == o
}

// QueueFamily describes one family of an Adapter.
type QueueFamily struct {
	Index int
	Caps  QueueCaps
	Count int
}

// AdapterKind classifies physical devices for selection.
type AdapterKind int

const (
	AdapterOther AdapterKind = iota
	AdapterDiscrete
	AdapterIntegrated
	AdapterVirtual
	AdapterCPU
)

func (k AdapterKind) String() string {
	switch k {
	case AdapterDiscrete:
		return "discrete"
	case AdapterIntegrated:
		return "integrated"
	case AdapterVirtual:
		return "virtual"
	case AdapterCPU:
		return "cpu"
	}
	return "other"
}

// Adapter is a physical device as reported by a Backend.
type Adapter struct {
	Index    int
	Name     string
	Kind     AdapterKind
	Families []QueueFamily
	// Swapchain reports whether the adapter can present to the backend's
	// surface at all.
	Swapchain   bool
	DeviceBytes uint64
}

// QueueFamilies maps each QueueType to the family index that serves it.
// Several queue types may share one family.
type QueueFamilies [QueueCount]int

// Backend is a native graphics API implementation.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string

	// Adapters enumerates the physical devices usable by this backend.
	Adapters() ([]Adapter, error)

	// Open creates the logical device on the given adapter with one queue
	// per distinct family in families. When validation is set the backend
	// enables its debug layers, if any.
	Open(adapter int, families QueueFamilies, validation bool) (Device, error)

	// Close releases the backend itself. All devices must be destroyed.
	Close()
}

// Device is a logical device. Its methods must be called from a single
// goroutine unless stated otherwise.
type Device interface {
	Destroyer

	// WaitIdle blocks until every queue of the device is idle.
	WaitIdle() error

	// Queue returns the queue serving t.
	Queue(t QueueType) Queue

	NewFence(signaled bool) (Fence, error)
	NewSemaphore() (Semaphore, error)
	NewCommandPool(q QueueType) (CommandPool, error)

	NewBuffer(desc BufferDesc) (Buffer, error)
	NewImage(desc ImageDesc) (Image, error)
	NewSampler(desc SamplerDesc) (Sampler, error)
	NewShader(stage ShaderStage, code []byte) (Shader, error)

	NewDescriptorSetLayout(bindings []LayoutBinding) (DescriptorSetLayout, error)
	NewPipelineLayout(sets []DescriptorSetLayout, push []PushConstantRange) (PipelineLayout, error)
	NewGraphicsPipeline(desc *GraphicsPipelineDesc) (Pipeline, error)
	NewDescriptorSet(layout DescriptorSetLayout, writes []DescriptorWrite) (DescriptorSet, error)

	// NewSwapchain creates a swapchain on the backend's surface.
	NewSwapchain(desc SwapchainDesc) (Swapchain, error)
}

// Queue accepts work for one hardware queue. Submissions on the same queue
// execute in submission order.
type Queue interface {
	Type() QueueType
	Family() int

	// Submit enqueues one batch. Its fence, if any, must be unsignaled.
	Submit(sub Submission) error

	// Present queues the presentation of image index of sc once every
	// semaphore in waits is signaled.
	Present(sc Swapchain, index int, waits []Semaphore) error
}

// SemaphoreWait pairs a semaphore with the stage that waits on it.
type SemaphoreWait struct {
	Semaphore Semaphore
	Stage     Sync
}

// Submission is one batch of command buffers for a queue.
type Submission struct {
	CommandBuffers []CommandBuffer
	Waits          []SemaphoreWait
	Signals        []Semaphore
	Fence          Fence
}

// Fence is a GPU to CPU signal.
type Fence interface {
	Destroyer

	// Wait blocks until the fence is signaled or timeout elapses, in which
	// case ErrTimeout is returned.
	Wait(timeout time.Duration) error
	Reset() error
	Signaled() bool
}

// Semaphore is a binary GPU to GPU signal between submissions.
type Semaphore interface {
	Destroyer
}
