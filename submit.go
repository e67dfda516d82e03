package dieselrhi

import "github.com/andewx/dieselrhi/driver"

// submitOrder is the order queues are submitted in each frame. Cross-queue
// waits can only point backwards in this order.
var submitOrder = [driver.QueueCount]driver.QueueType{
	driver.QueueTransfer,
	driver.QueueCompute,
	driver.QueueGraphics,
}

func precedes(a, b driver.QueueType) bool {
	for _, q := range submitOrder {
		switch q {
		case a:
			return true
		case b:
			return false
		}
	}
	return false
}

// submitFrame sends one batch per queue with work, plus the graphics batch
// that always carries the swapchain semaphores.
func (d *Device) submitFrame(f *FrameSlot) {
	for _, q := range submitOrder {
		lists := f.pools[q].active()
		for _, c := range lists {
			if c.state == ListRecording {
				c.End()
			}
		}
		graphics := q == driver.QueueGraphics
		if len(lists) == 0 && !graphics {
			continue
		}

		sub := driver.Submission{Fence: f.fences[q]}
		for _, c := range lists {
			if c.state != ListEnded {
				continue
			}
			sub.CommandBuffers = append(sub.CommandBuffers, c.cb)
			for w, ok := range c.signal {
				if ok {
					sub.Signals = append(sub.Signals, c.done[w])
				}
			}
			for _, w := range c.waits {
				sub.Waits = appendWait(sub.Waits, w.done[q], driver.SyncAll)
			}
		}
		if graphics {
			sub.Waits = append(sub.Waits, driver.SemaphoreWait{
				Semaphore: f.imageAcquired,
				Stage:     driver.SyncColorOutput,
			})
			sub.Signals = append(sub.Signals, f.renderComplete)
		}

		if !d.must("submit: "+q.String(), d.dev.Queue(q).Submit(sub)) {
			return
		}
		f.used[q] = true
		for _, c := range lists {
			if c.state == ListEnded {
				c.state = ListSubmitted
			}
		}
	}
}

func appendWait(waits []driver.SemaphoreWait, s driver.Semaphore, stage driver.Sync) []driver.SemaphoreWait {
	for i := range waits {
		if waits[i].Semaphore == s {
			waits[i].Stage |= stage
			return waits
		}
	}
	return append(waits, driver.SemaphoreWait{Semaphore: s, Stage: stage})
}
