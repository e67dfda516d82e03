package vulkan

import (
	"testing"

	"github.com/andewx/dieselrhi/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestFormatRoundTrip(t *testing.T) {
	for f := range formats {
		assert.Equal(t, f, driverFormat(vkFormat(f)), f.String())
	}
	assert.Equal(t, driver.FormatUndefined, driverFormat(vk.FormatBc1RgbUnormBlock))
}

func TestStages(t *testing.T) {
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), vkStages(driver.SyncNone, true))
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit), vkStages(driver.SyncNone, false))
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit), vkStages(driver.SyncAll, true))

	got := vkStages(driver.SyncCopy|driver.SyncDSOutput, true)
	want := vk.PipelineStageFlags(vk.PipelineStageTransferBit |
		vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit)
	assert.Equal(t, want, got)
}

func TestAccess(t *testing.T) {
	assert.Zero(t, vkAccess(0))
	assert.Equal(t,
		vk.AccessFlags(vk.AccessTransferWriteBit|vk.AccessShaderReadBit),
		vkAccess(driver.AccessCopyWrite|driver.AccessShaderRead))
}

func TestAspect(t *testing.T) {
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectColorBit), vkAspect(driver.FormatRGBA8Unorm))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit), vkAspect(driver.FormatD32Float))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit|vk.ImageAspectStencilBit), vkAspect(driver.FormatD24UnormS8Uint))
}

func TestNameSet(t *testing.T) {
	s := newNameSet(
		[]string{"VK_KHR_surface", "VK_KHR_swapchain", "VK_EXT_debug_report"},
		[]string{"VK_KHR_swapchain"},
		[]string{"VK_EXT_debug_report", "VK_KHR_swapchain", "VK_EXT_missing"},
	)
	names, err := s.Enabled()
	require.NoError(t, err)
	assert.Equal(t, []string{"VK_KHR_swapchain", "VK_EXT_debug_report"}, names)
	assert.Equal(t, []string{"VK_EXT_missing"}, s.MissingWanted())

	_, err = newNameSet(nil, []string{"VK_KHR_swapchain"}, nil).Enabled()
	assert.ErrorIs(t, err, driver.ErrUnsupported)
}

func TestSafeString(t *testing.T) {
	assert.Equal(t, "main\x00", safeString("main"))
	assert.Equal(t, "main\x00", safeString("main\x00"))
	assert.Equal(t, []string{"a\x00", "b\x00"}, safeStrings([]string{"a", "b"}))
}

func TestSliceUint32(t *testing.T) {
	assert.Nil(t, sliceUint32(nil))
	words := sliceUint32([]byte{0x03, 0x02, 0x23, 0x07, 0, 0, 0, 0})
	require.Len(t, words, 2)
}

func TestResultErrors(t *testing.T) {
	assert.NoError(t, newError(vk.Success))
	assert.ErrorIs(t, newError(vk.ErrorOutOfDate), driver.ErrOutOfDate)
	assert.ErrorIs(t, newError(vk.Suboptimal), driver.ErrSuboptimal)
	assert.ErrorIs(t, newError(vk.ErrorDeviceLost), driver.ErrDeviceLost)
	assert.ErrorIs(t, newError(vk.ErrorOutOfDeviceMemory), driver.ErrOutOfMemory)

	err := newError(vk.ErrorInitializationFailed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TestResultErrors")
}

func TestChoosePresentMode(t *testing.T) {
	all := []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeImmediate, vk.PresentModeMailbox}
	assert.Equal(t, vk.PresentModeFifo, choosePresentMode(all, true))
	assert.Equal(t, vk.PresentModeMailbox, choosePresentMode(all, false))
	assert.Equal(t, vk.PresentModeImmediate, choosePresentMode(all[:2], false))
	assert.Equal(t, vk.PresentModeFifo, choosePresentMode(all[:1], false))
}

func TestImageCount(t *testing.T) {
	caps := vk.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 3}
	assert.Equal(t, uint32(3), imageCount(3, &caps))
	assert.Equal(t, uint32(3), imageCount(8, &caps))
	assert.Equal(t, uint32(2), imageCount(1, &caps))

	caps.MaxImageCount = 0
	assert.Equal(t, uint32(8), imageCount(8, &caps))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, uint32(5), clamp(1, 5, 10))
	assert.Equal(t, uint32(10), clamp(20, 5, 10))
	assert.Equal(t, uint32(7), clamp(7, 5, 10))
}

func TestCompatKeyIgnoresOps(t *testing.T) {
	k, err := compatKey([]driver.Format{driver.FormatBGRA8Srgb}, driver.FormatD32Float)
	require.NoError(t, err)
	assert.Equal(t, 1, k.ncolors)
	assert.True(t, k.hasDepth)
	assert.Equal(t, vk.AttachmentLoadOpDontCare, k.colors[0].load)

	_, err = compatKey(make([]driver.Format, maxColors+1), driver.FormatUndefined)
	assert.ErrorIs(t, err, driver.ErrInvalid)
}
