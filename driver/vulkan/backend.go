// Package vulkan is the driver.Backend for Vulkan 1.0 drivers through
// github.com/vulkan-go/vulkan, presenting to a GLFW window.
//
// Dynamic rendering is emulated: BeginRendering looks up a render pass and
// framebuffer matching the attachments in a private cache, so no render
// pass object is visible above the driver package.
package vulkan

import (
	"context"
	"log/slog"
	"unsafe"

	"github.com/andewx/dieselrhi/driver"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
)

type Option func(b *Backend)

func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		b.log = l
	}
}

func WithAppName(name string) Option {
	return func(b *Backend) {
		b.appName = name
	}
}

// WithValidation enables the Khronos validation layer and routes its
// reports to the logger. The layer must be chosen when the instance is
// created, so the flag passed to Open can only narrow it.
func WithValidation(v bool) Option {
	return func(b *Backend) {
		b.validation = v
	}
}

// WithBlockSizes sets the sizes of the host-visible and device-local
// memory blocks resources are carved from.
func WithBlockSizes(host, device uint64) Option {
	return func(b *Backend) {
		b.hostBlock, b.deviceBlock = host, device
	}
}

// Backend implements driver.Backend on one Vulkan instance and one window
// surface.
type Backend struct {
	log         *slog.Logger
	appName     string
	validation  bool
	hostBlock   uint64
	deviceBlock uint64

	window        *glfw.Window
	instance      vk.Instance
	surface       vk.Surface
	debugCallback vk.DebugReportCallback
	layers        []string
	gpus          []vk.PhysicalDevice

	devices []*device
}

var _ driver.Backend = (*Backend)(nil)

// New loads the Vulkan loader through GLFW, creates the instance with the
// extensions the window needs and a surface for the window. glfw.Init must
// have been called and the window created with the NoAPI client hint.
func New(window *glfw.Window, opts ...Option) (*Backend, error) {
	b := &Backend{
		log:         slog.Default(),
		appName:     "dieselrhi",
		hostBlock:   16 << 20,
		deviceBlock: 64 << 20,
		window:      window,
	}
	for _, opt := range opts {
		opt(b)
	}
	if !glfw.VulkanSupported() {
		return nil, errors.Wrap(driver.ErrUnsupported, "vulkan: loader not found")
	}
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "vulkan: init")
	}
	if err := b.createInstance(); err != nil {
		return nil, err
	}
	if err := b.createSurface(); err != nil {
		b.Close()
		return nil, err
	}

	var count uint32
	if ret := vk.EnumeratePhysicalDevices(b.instance, &count, nil); isError(ret) {
		b.Close()
		return nil, newError(ret)
	}
	b.gpus = make([]vk.PhysicalDevice, count)
	if ret := vk.EnumeratePhysicalDevices(b.instance, &count, b.gpus); isError(ret) {
		b.Close()
		return nil, newError(ret)
	}
	return b, nil
}

func (b *Backend) createInstance() error {
	actual, err := instanceExtensions()
	if err != nil {
		return err
	}
	var wanted []string
	if b.validation {
		wanted = append(wanted, debugReportExt)
	}
	exts, err := newNameSet(actual, b.window.GetRequiredInstanceExtensions(), wanted).Enabled()
	if err != nil {
		return err
	}

	if b.validation {
		available, err := validationLayers()
		if err != nil {
			return err
		}
		set := newNameSet(available, nil, []string{validationLayer})
		if m := set.MissingWanted(); len(m) > 0 {
			b.log.Warn("vulkan: validation layers missing", "layers", m)
		}
		b.layers, _ = set.Enabled()
	}
	b.log.Info("vulkan: creating instance", "extensions", len(exts), "layers", b.layers)

	var instance vk.Instance
	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:            vk.StructureTypeApplicationInfo,
			ApiVersion:       uint32(vk.MakeVersion(1, 0, 0)),
			PApplicationName: safeString(b.appName),
			PEngineName:      safeString("dieselrhi"),
		},
		EnabledExtensionCount:   uint32(len(exts)),
		PpEnabledExtensionNames: safeStrings(exts),
		EnabledLayerCount:       uint32(len(b.layers)),
		PpEnabledLayerNames:     safeStrings(b.layers),
	}, nil, &instance)
	if isError(ret) {
		return errors.Wrap(newError(ret), "vulkan: create instance")
	}
	b.instance = instance
	if err := vk.InitInstance(instance); err != nil {
		return errors.Wrap(err, "vulkan: init instance")
	}

	if b.validation && len(b.layers) > 0 {
		ret := vk.CreateDebugReportCallback(instance, &vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: b.debugReport,
		}, nil, &b.debugCallback)
		if isError(ret) {
			b.log.Warn("vulkan: debug report callback unavailable", "err", newError(ret))
		}
	}
	return nil
}

func (b *Backend) debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	level := slog.LevelInfo
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		level = slog.LevelError
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		level = slog.LevelWarn
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		level = slog.LevelDebug
	}
	b.log.Log(context.Background(), level, "vulkan validation", "layer", pLayerPrefix, "code", messageCode, "msg", pMessage)
	return vk.False
}

func (b *Backend) Name() string { return "vulkan" }

// Adapters reports every physical device with its queue families. A family
// has CapPresent when it can present to the window surface.
func (b *Backend) Adapters() ([]driver.Adapter, error) {
	if len(b.gpus) == 0 {
		return nil, driver.ErrNoDevice
	}
	out := make([]driver.Adapter, 0, len(b.gpus))
	for i, gpu := range b.gpus {
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(gpu, &props)
		props.Deref()
		a := driver.Adapter{
			Index: i,
			Name:  vk.ToString(props.DeviceName[:]),
			Kind:  adapterKind(props.DeviceType),
		}

		var count uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
		families := make([]vk.QueueFamilyProperties, count)
		vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, families)
		for j := range families {
			families[j].Deref()
			flags := families[j].QueueFlags
			var caps driver.QueueCaps
			if flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
				caps |= driver.CapGraphics | driver.CapTransfer
			}
			if flags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
				caps |= driver.CapCompute | driver.CapTransfer
			}
			if flags&vk.QueueFlags(vk.QueueTransferBit) != 0 {
				caps |= driver.CapTransfer
			}
			var present vk.Bool32
			vk.GetPhysicalDeviceSurfaceSupport(gpu, uint32(j), b.surface, &present)
			if present.B() {
				caps |= driver.CapPresent
			}
			a.Families = append(a.Families, driver.QueueFamily{
				Index: j,
				Caps:  caps,
				Count: int(families[j].QueueCount),
			})
		}

		exts, err := deviceExtensions(gpu)
		if err != nil {
			return nil, errors.Wrapf(err, "vulkan: extensions of %s", a.Name)
		}
		a.Swapchain = newNameSet(exts, nil, nil).has(swapchainExtension)

		var mem vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(gpu, &mem)
		mem.Deref()
		for h := uint32(0); h < mem.MemoryHeapCount; h++ {
			mem.MemoryHeaps[h].Deref()
			if mem.MemoryHeaps[h].Flags&vk.MemoryHeapFlags(vk.MemoryHeapDeviceLocalBit) != 0 {
				a.DeviceBytes += uint64(mem.MemoryHeaps[h].Size)
			}
		}
		out = append(out, a)
	}
	return out, nil
}

// Open creates the logical device with one queue per distinct family.
func (b *Backend) Open(adapter int, families driver.QueueFamilies, validation bool) (driver.Device, error) {
	if adapter < 0 || adapter >= len(b.gpus) {
		return nil, errors.Wrapf(driver.ErrInvalid, "vulkan: adapter %d", adapter)
	}
	gpu := b.gpus[adapter]

	exts, err := deviceExtensions(gpu)
	if err != nil {
		return nil, err
	}
	enabled, err := newNameSet(exts, []string{swapchainExtension}, nil).Enabled()
	if err != nil {
		return nil, err
	}

	var distinct []uint32
	for _, f := range families {
		seen := false
		for _, d := range distinct {
			seen = seen || d == uint32(f)
		}
		if !seen {
			distinct = append(distinct, uint32(f))
		}
	}
	infos := make([]vk.DeviceQueueCreateInfo, len(distinct))
	for i, f := range distinct {
		infos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: f,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	var supported vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(gpu, &supported)
	supported.Deref()
	features := vk.PhysicalDeviceFeatures{SamplerAnisotropy: supported.SamplerAnisotropy}

	var layers []string
	if validation {
		layers = b.layers
	}
	var handle vk.Device
	ret := vk.CreateDevice(gpu, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(infos)),
		PQueueCreateInfos:       infos,
		EnabledExtensionCount:   uint32(len(enabled)),
		PpEnabledExtensionNames: safeStrings(enabled),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     safeStrings(layers),
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
	}, nil, &handle)
	if isError(ret) {
		return nil, errors.Wrap(newError(ret), "vulkan: create device")
	}

	d := newDevice(b, gpu, handle, families, distinct)
	d.anisotropy = supported.SamplerAnisotropy.B()
	b.devices = append(b.devices, d)
	return d, nil
}

// Close destroys the surface and the instance. Every device must have been
// destroyed.
func (b *Backend) Close() {
	for _, d := range b.devices {
		if !d.destroyed {
			b.log.Warn("vulkan: backend closed with a live device")
			d.Destroy()
		}
	}
	b.devices = nil
	if b.surface != vk.NullSurface {
		vk.DestroySurface(b.instance, b.surface, nil)
		b.surface = vk.NullSurface
	}
	if b.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(b.instance, b.debugCallback, nil)
		b.debugCallback = vk.NullDebugReportCallback
	}
	if b.instance != nil {
		vk.DestroyInstance(b.instance, nil)
		b.instance = nil
	}
}
