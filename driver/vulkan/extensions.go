package vulkan

import (
	"github.com/andewx/dieselrhi/driver"
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

const (
	validationLayer    = "VK_LAYER_KHRONOS_validation"
	debugReportExt     = "VK_EXT_debug_report"
	swapchainExtension = "VK_KHR_swapchain"
)

// instanceExtensions lists the instance extensions available on the platform.
func instanceExtensions() ([]string, error) {
	var count uint32
	if ret := vk.EnumerateInstanceExtensionProperties("", &count, nil); isError(ret) {
		return nil, newError(ret)
	}
	list := make([]vk.ExtensionProperties, count)
	if ret := vk.EnumerateInstanceExtensionProperties("", &count, list); isError(ret) {
		return nil, newError(ret)
	}
	names := make([]string, 0, count)
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// deviceExtensions lists the extensions available on gpu.
func deviceExtensions(gpu vk.PhysicalDevice) ([]string, error) {
	var count uint32
	if ret := vk.EnumerateDeviceExtensionProperties(gpu, "", &count, nil); isError(ret) {
		return nil, newError(ret)
	}
	list := make([]vk.ExtensionProperties, count)
	if ret := vk.EnumerateDeviceExtensionProperties(gpu, "", &count, list); isError(ret) {
		return nil, newError(ret)
	}
	names := make([]string, 0, count)
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// validationLayers lists the layers available on the platform.
func validationLayers() ([]string, error) {
	var count uint32
	if ret := vk.EnumerateInstanceLayerProperties(&count, nil); isError(ret) {
		return nil, newError(ret)
	}
	list := make([]vk.LayerProperties, count)
	if ret := vk.EnumerateInstanceLayerProperties(&count, list); isError(ret) {
		return nil, newError(ret)
	}
	names := make([]string, 0, count)
	for _, layer := range list {
		layer.Deref()
		names = append(names, vk.ToString(layer.LayerName[:]))
	}
	return names, nil
}

// nameSet negotiates extensions or layers: required names must be
// available, wanted names are enabled when they are.
type nameSet struct {
	wanted   []string
	required []string
	actual   []string
}

func newNameSet(actual, required, wanted []string) *nameSet {
	return &nameSet{wanted: wanted, required: required, actual: actual}
}

func (s *nameSet) has(name string) bool {
	for _, a := range s.actual {
		if a == name {
			return true
		}
	}
	return false
}

func (s *nameSet) missing(names []string) []string {
	var out []string
	for _, n := range names {
		if !s.has(n) {
			out = append(out, n)
		}
	}
	return out
}

// MissingWanted lists the wanted names the platform lacks.
func (s *nameSet) MissingWanted() []string {
	return s.missing(s.wanted)
}

// Enabled returns required plus every available wanted name, without
// duplicates, or an error naming the missing required ones.
func (s *nameSet) Enabled() ([]string, error) {
	if m := s.missing(s.required); len(m) > 0 {
		return nil, errors.Wrapf(driver.ErrUnsupported, "vulkan: missing %v", m)
	}
	out := append([]string(nil), s.required...)
	seen := make(map[string]bool, len(out))
	for _, n := range out {
		seen[n] = true
	}
	for _, w := range s.wanted {
		if !seen[w] && s.has(w) {
			out = append(out, w)
			seen[w] = true
		}
	}
	return out, nil
}
