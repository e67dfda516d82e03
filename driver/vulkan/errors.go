package vulkan

import (
	"runtime"
	"strings"

	"github.com/andewx/dieselrhi/driver"
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

func isError(ret vk.Result) bool {
	return ret != vk.Success
}

// sentinel maps a native result to the driver error callers test with
// errors.Is. Results with no driver meaning map to nil.
func sentinel(ret vk.Result) error {
	switch ret {
	case vk.ErrorOutOfDate:
		return driver.ErrOutOfDate
	case vk.Suboptimal:
		return driver.ErrSuboptimal
	case vk.Timeout, vk.NotReady:
		return driver.ErrTimeout
	case vk.ErrorDeviceLost:
		return driver.ErrDeviceLost
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory, vk.ErrorFragmentedPool:
		return driver.ErrOutOfMemory
	case vk.ErrorFeatureNotPresent, vk.ErrorExtensionNotPresent, vk.ErrorLayerNotPresent,
		vk.ErrorIncompatibleDriver, vk.ErrorFormatNotSupported:
		return driver.ErrUnsupported
	}
	return nil
}

// newError turns a failed result into an error naming the calling
// function. It returns nil for vk.Success.
func newError(ret vk.Result) error {
	if ret == vk.Success {
		return nil
	}
	where := "unknown"
	if pc, _, _, ok := runtime.Caller(1); ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			where = fn.Name()
			if i := strings.LastIndexByte(where, '/'); i >= 0 {
				where = where[i+1:]
			}
		}
	}
	if base := sentinel(ret); base != nil {
		return errors.Wrapf(base, "vulkan: result %d on %s", ret, where)
	}
	return errors.Newf("vulkan: result %d on %s", ret, where)
}
