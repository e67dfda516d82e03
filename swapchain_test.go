package dieselrhi

import (
	"testing"

	"github.com/andewx/dieselrhi/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResizeIdempotent(t *testing.T) {
	d, b := newTestDevice(t)
	require.True(t, frame(t, d, nil))
	require.NoError(t, d.Driver().WaitIdle())

	base := b.Stats()
	images := d.Stats().Images
	oldDepth := d.GetDepthImage()
	for i := 0; i < 5; i++ {
		require.True(t, d.Resize(800, 600))
		st := b.Stats()
		assert.Equal(t, base.Live, st.Live)
		assert.Equal(t, base.MemBlocks, st.MemBlocks)
		assert.Equal(t, images, d.Stats().Images)
	}
	assert.Equal(t, 5, d.Stats().SwapchainRecreated)
	_, ok := d.ImageDesc(oldDepth)
	assert.False(t, ok, "depth handle survived recreation")

	require.True(t, frame(t, d, nil))
	assert.Empty(t, b.Violations())
}

func TestResizeResetsLayoutTags(t *testing.T) {
	d, b := newTestDevice(t)
	require.True(t, frame(t, d, nil))
	require.True(t, d.Resize(800, 600))
	for _, h := range d.sc.images {
		l, ok := d.ImageLayout(h)
		require.True(t, ok)
		assert.Equal(t, driver.LayoutUndefined, l)
	}
	require.True(t, frame(t, d, nil))
	assert.Empty(t, b.Violations())
}

func TestAcquireOutOfDate(t *testing.T) {
	d, b := newTestDevice(t)
	require.True(t, frame(t, d, nil))

	b.SetSurfaceSize(1024, 768)
	d.OnResize(1024, 768)
	assert.Equal(t, SwapchainOutOfDate, d.SwapchainState())
	require.True(t, frame(t, d, nil))
	assert.Equal(t, SwapchainValid, d.SwapchainState())
	assert.Equal(t, driver.Extent{Width: 1024, Height: 768}, d.SwapchainExtent())

	// surface changed without a resize event
	b.SetOutOfDate(true)
	assert.False(t, d.BeginFrame(dt))
	assert.Equal(t, SwapchainOutOfDate, d.SwapchainState())
	assert.False(t, d.EndFrame(dt))
	require.True(t, frame(t, d, nil))
	assert.Empty(t, b.Violations())
}

func TestPresentOutOfDate(t *testing.T) {
	d, b := newTestDevice(t)
	require.True(t, d.BeginFrame(dt))
	c := d.BeginCommandList(driver.QueueGraphics)
	clearAndPresent(d, c)
	b.SetOutOfDate(true)
	assert.False(t, d.EndFrame(dt))
	assert.Equal(t, SwapchainOutOfDate, d.SwapchainState())

	require.True(t, frame(t, d, nil))
	assert.Equal(t, 1, d.Stats().SwapchainRecreated)
	assert.Empty(t, b.Violations())
}

func TestSuboptimalStillPresents(t *testing.T) {
	d, b := newTestDevice(t)
	b.SetSuboptimal(true)
	assert.True(t, frame(t, d, nil))
	assert.Equal(t, SwapchainOutOfDate, d.SwapchainState())
	assert.True(t, frame(t, d, nil))
	assert.Equal(t, SwapchainValid, d.SwapchainState())
	assert.Empty(t, b.Violations())
}

func TestMinimizedSkipsFrames(t *testing.T) {
	d, b := newTestDevice(t)
	require.True(t, frame(t, d, nil))
	d.OnResize(0, 0)
	for i := 0; i < 3; i++ {
		assert.False(t, d.BeginFrame(dt))
	}
	d.OnResize(800, 600)
	require.True(t, frame(t, d, nil))
	assert.Empty(t, b.Violations())
}

func TestZeroSurfaceDefersRecreation(t *testing.T) {
	d, b := newTestDevice(t)
	require.True(t, frame(t, d, nil))

	// minimized before any resize event arrives
	b.SetSurfaceSize(0, 0)
	for i := 0; i < 3; i++ {
		assert.False(t, d.BeginFrame(dt))
		assert.Equal(t, SwapchainOutOfDate, d.SwapchainState())
	}
	assert.Zero(t, d.Stats().SwapchainRecreated)

	b.SetSurfaceSize(800, 600)
	require.True(t, frame(t, d, nil))
	assert.Equal(t, SwapchainValid, d.SwapchainState())
	assert.Equal(t, 1, d.Stats().SwapchainRecreated)
	assert.Empty(t, b.Violations())
}

func TestImageFreeSwapchainImage(t *testing.T) {
	d, _ := newTestDevice(t)
	require.True(t, d.BeginFrame(dt))
	img := d.GetPresentImage()
	assert.Panics(t, func() { d.ImageFree(img) })
	assert.Panics(t, func() { d.ImageFree(d.GetDepthImage()) })

	c := d.BeginCommandList(driver.QueueGraphics)
	clearAndPresent(d, c)
	require.True(t, d.EndFrame(dt))
}

func TestBarrierLayoutMismatchPanics(t *testing.T) {
	d, _ := newTestDevice(t)
	require.True(t, d.BeginFrame(dt))
	c := d.BeginCommandList(driver.QueueGraphics)
	img := d.GetPresentImage()
	// the image is undefined, not a color target
	assert.Panics(t, func() {
		c.PipelineBarriers(nil, []ImageBarrier{toPresent(img)}, nil)
	})
	clearAndPresent(d, c)
	require.True(t, d.EndFrame(dt))
}
