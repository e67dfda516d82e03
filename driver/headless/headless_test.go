package headless

import (
	"testing"
	"time"

	"github.com/andewx/dieselrhi/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T, opts ...Option) (*Backend, driver.Device) {
	t.Helper()
	b := New(opts...)
	d, err := b.Open(0, driver.QueueFamilies{0, 1, 2}, true)
	require.NoError(t, err)
	return b, d
}

func record(t *testing.T, d driver.Device, q driver.QueueType, fn func(cb driver.CommandBuffer)) (driver.CommandPool, driver.CommandBuffer) {
	t.Helper()
	pool, err := d.NewCommandPool(q)
	require.NoError(t, err)
	cb, err := pool.Allocate()
	require.NoError(t, err)
	require.NoError(t, cb.Begin())
	fn(cb)
	require.NoError(t, cb.End())
	return pool, cb
}

func TestLazyCopy(t *testing.T) {
	b, d := open(t)
	src, err := d.NewBuffer(driver.BufferDesc{Size: 8, Domain: driver.DomainCPU})
	require.NoError(t, err)
	dst, err := d.NewBuffer(driver.BufferDesc{Size: 8, Domain: driver.DomainGPU})
	require.NoError(t, err)
	assert.Nil(t, dst.Mapped())
	copy(src.Mapped(), []byte{1, 2, 3, 4, 5, 6, 7, 8})

	_, cb := record(t, d, driver.QueueTransfer, func(cb driver.CommandBuffer) {
		cb.CopyBuffer(src, dst, []driver.BufferCopy{{Size: 8}})
	})
	f, err := d.NewFence(false)
	require.NoError(t, err)
	require.NoError(t, d.Queue(driver.QueueTransfer).Submit(driver.Submission{
		CommandBuffers: []driver.CommandBuffer{cb},
		Fence:          f,
	}))

	// nothing runs before the wait
	assert.Equal(t, make([]byte, 8), ReadBuffer(dst))
	require.NoError(t, f.Wait(time.Second))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, ReadBuffer(dst))
	assert.Empty(t, b.Violations())
}

func TestDestroyWhilePending(t *testing.T) {
	b, d := open(t)
	buf, err := d.NewBuffer(driver.BufferDesc{Size: 16, Domain: driver.DomainGPU})
	require.NoError(t, err)
	_, cb := record(t, d, driver.QueueTransfer, func(cb driver.CommandBuffer) {
		cb.FillBuffer(buf, 0, 0, 7)
	})
	require.NoError(t, d.Queue(driver.QueueTransfer).Submit(driver.Submission{CommandBuffers: []driver.CommandBuffer{cb}}))
	buf.Destroy()
	require.NoError(t, d.WaitIdle())
	assert.NotEmpty(t, b.Violations())
}

func TestPoolResetWhilePending(t *testing.T) {
	b, d := open(t)
	pool, cb := record(t, d, driver.QueueGraphics, func(cb driver.CommandBuffer) {})
	require.NoError(t, d.Queue(driver.QueueGraphics).Submit(driver.Submission{CommandBuffers: []driver.CommandBuffer{cb}}))
	require.NoError(t, pool.Reset())
	assert.Len(t, b.Violations(), 1)
}

func TestHazard(t *testing.T) {
	b, d := open(t)
	src, _ := d.NewBuffer(driver.BufferDesc{Size: 64, Domain: driver.DomainCPU})
	mid, _ := d.NewBuffer(driver.BufferDesc{Size: 64, Domain: driver.DomainGPU})
	dst, _ := d.NewBuffer(driver.BufferDesc{Size: 64, Domain: driver.DomainGPU})

	run := func(barrier bool) {
		_, cb := record(t, d, driver.QueueTransfer, func(cb driver.CommandBuffer) {
			cb.CopyBuffer(src, mid, []driver.BufferCopy{{Size: 64}})
			if barrier {
				cb.PipelineBarrier(nil, nil, []driver.BufferBarrier{{
					Barrier: driver.Barrier{
						SyncBefore: driver.SyncCopy, AccessBefore: driver.AccessCopyWrite,
						SyncAfter: driver.SyncCopy, AccessAfter: driver.AccessCopyRead,
					},
					Buffer: mid,
				}})
			}
			cb.CopyBuffer(mid, dst, []driver.BufferCopy{{Size: 64}})
		})
		require.NoError(t, d.Queue(driver.QueueTransfer).Submit(driver.Submission{CommandBuffers: []driver.CommandBuffer{cb}}))
		require.NoError(t, d.WaitIdle())
	}

	run(true)
	assert.Empty(t, b.Violations())
	run(false)
	require.Len(t, b.Violations(), 1)
	assert.Contains(t, b.Violations()[0], "read-after-write")
}

func TestSemaphoreOrdering(t *testing.T) {
	b, d := open(t)
	buf, _ := d.NewBuffer(driver.BufferDesc{Size: 4, Domain: driver.DomainGPU})
	sem, _ := d.NewSemaphore()
	f, _ := d.NewFence(false)

	_, fill := record(t, d, driver.QueueTransfer, func(cb driver.CommandBuffer) {
		cb.FillBuffer(buf, 0, 4, 0x01020304)
	})
	_, use := record(t, d, driver.QueueCompute, func(cb driver.CommandBuffer) {
		cb.FillBuffer(buf, 0, 4, 0x05060708)
	})
	// the compute batch waits on the transfer batch submitted after it
	require.NoError(t, d.Queue(driver.QueueCompute).Submit(driver.Submission{
		CommandBuffers: []driver.CommandBuffer{use},
		Waits:          []driver.SemaphoreWait{{Semaphore: sem, Stage: driver.SyncCopy}},
		Fence:          f,
	}))
	require.NoError(t, d.Queue(driver.QueueTransfer).Submit(driver.Submission{
		CommandBuffers: []driver.CommandBuffer{fill},
		Signals:        []driver.Semaphore{sem},
	}))
	require.NoError(t, f.Wait(time.Second))
	assert.Equal(t, []byte{8, 7, 6, 5}, ReadBuffer(buf))
	assert.Empty(t, b.Violations())
}

func TestHangTimesOut(t *testing.T) {
	b, d := open(t)
	b.SetHang(true)
	f, _ := d.NewFence(false)
	require.NoError(t, d.Queue(driver.QueueGraphics).Submit(driver.Submission{Fence: f}))
	err := f.Wait(time.Millisecond)
	assert.ErrorIs(t, err, driver.ErrTimeout)
}

func TestSwapchain(t *testing.T) {
	b, d := open(t, WithSurface(64, 32))
	sc, err := d.NewSwapchain(driver.SwapchainDesc{Images: 3})
	require.NoError(t, err)
	assert.Len(t, sc.Images(), 3)
	assert.Equal(t, driver.Extent{Width: 64, Height: 32}, sc.Extent())

	sem, _ := d.NewSemaphore()
	idx, err := sc.Acquire(sem, time.Second)
	require.NoError(t, err)

	_, cb := record(t, d, driver.QueueGraphics, func(cb driver.CommandBuffer) {
		cb.PipelineBarrier(nil, []driver.ImageBarrier{{
			Image:       sc.Images()[idx],
			LayoutAfter: driver.LayoutPresent,
		}}, nil)
	})
	done, _ := d.NewSemaphore()
	q := d.Queue(driver.QueueGraphics)
	require.NoError(t, q.Submit(driver.Submission{
		CommandBuffers: []driver.CommandBuffer{cb},
		Waits:          []driver.SemaphoreWait{{Semaphore: sem, Stage: driver.SyncColorOutput}},
		Signals:        []driver.Semaphore{done},
	}))
	require.NoError(t, q.Present(sc, idx, []driver.Semaphore{done}))
	require.NoError(t, d.WaitIdle())
	assert.Equal(t, 1, b.Stats().Presents)

	b.SetSurfaceSize(128, 64)
	_, err = sc.Acquire(sem, time.Second)
	assert.ErrorIs(t, err, driver.ErrOutOfDate)
	require.NoError(t, sc.Recreate(128, 64))
	assert.Equal(t, 128, sc.Extent().Width)
	assert.Equal(t, 3, b.Stats().Live[KindImage])

	b.SetSurfaceSize(0, 0)
	assert.ErrorIs(t, sc.Recreate(0, 0), driver.ErrOutOfDate)
	assert.Empty(t, sc.Images())
	b.SetSurfaceSize(128, 64)
	require.NoError(t, sc.Recreate(128, 64))

	sc.Images()[0].Destroy()
	assert.NotEmpty(t, b.Violations())
}
