package vulkan_test

import (
	"io"
	"log/slog"
	"os"
	"runtime"
	"testing"

	"github.com/andewx/dieselrhi"
	"github.com/andewx/dieselrhi/driver"
	"github.com/andewx/dieselrhi/driver/vulkan"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	runtime.LockOSThread()
}

// TestSmoke needs a Vulkan driver and a display; set DIESELRHI_VULKAN=1 to
// run it.
func TestSmoke(t *testing.T) {
	if os.Getenv("DIESELRHI_VULKAN") == "" {
		t.Skip("DIESELRHI_VULKAN not set")
	}
	require.NoError(t, glfw.Init())
	defer glfw.Terminate()
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Visible, glfw.False)
	window, err := glfw.CreateWindow(320, 240, "dieselrhi", nil, nil)
	require.NoError(t, err)
	defer window.Destroy()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	b, err := vulkan.New(window, vulkan.WithLogger(log), vulkan.WithValidation(true))
	require.NoError(t, err)
	defer b.Close()

	adapters, err := b.Adapters()
	require.NoError(t, err)
	require.NotEmpty(t, adapters)

	cfg := dieselrhi.DefaultConfig()
	cfg.Width, cfg.Height = 320, 240
	cfg.Debug = true
	d := dieselrhi.NewDevice(b, cfg, dieselrhi.WithFatalHandler(dieselrhi.PanicOnFatal), dieselrhi.WithLogger(log))
	require.NoError(t, d.Init())
	defer d.ShutDown()

	buf, err := d.CreateBuffer(dieselrhi.BufferDesc{Size: 256, Usage: driver.BufferCopyDst}, nil)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.True(t, d.BeginFrame(1.0/60))
		c := d.BeginCommandList(driver.QueueGraphics)
		require.NotNil(t, c)
		if i == 0 {
			c.FillBuffer(buf, 0, 0, 0)
		}
		img := d.GetPresentImage()
		c.PipelineBarriers(nil, []dieselrhi.ImageBarrier{{
			Barrier:      driver.Barrier{SyncAfter: driver.SyncColorOutput, AccessAfter: driver.AccessColorWrite},
			Image:        img,
			LayoutBefore: driver.LayoutUndefined,
			LayoutAfter:  driver.LayoutColorTarget,
		}}, nil)
		c.BeginRendering(dieselrhi.RenderingInfo{Colors: []dieselrhi.ColorAttachment{{
			Image: img,
			Load:  driver.LoadClear,
			Store: driver.StoreStore,
			Clear: [4]float32{0.1, 0.2, 0.3, 1},
		}}})
		c.EndRendering()
		c.PipelineBarriers(nil, []dieselrhi.ImageBarrier{{
			Barrier:      driver.Barrier{SyncBefore: driver.SyncColorOutput, AccessBefore: driver.AccessColorWrite},
			Image:        img,
			LayoutBefore: driver.LayoutColorTarget,
			LayoutAfter:  driver.LayoutPresent,
		}}, nil)
		d.SubmitCommandList(c)
		d.EndFrame(1.0 / 60)
	}
	d.DestroyBuffer(buf)
	assert.Equal(t, uint64(4), d.Frame())
}
