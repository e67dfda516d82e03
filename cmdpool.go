package dieselrhi

import "github.com/andewx/dieselrhi/driver"

// listPool hands out the command lists of one queue for one frame slot and
// recycles them. Lists below count are in use this frame; the ones above
// are kept for later frames so the number of native pools stays at the
// high-water mark.
type listPool struct {
	d     *Device
	slot  *FrameSlot
	queue driver.QueueType
	lists []*CommandList
	count int
}

func newListPool(d *Device, slot *FrameSlot, q driver.QueueType) *listPool {
	return &listPool{d: d, slot: slot, queue: q}
}

// next returns a fresh or recycled list in the Ready state.
func (p *listPool) next() *CommandList {
	if p.count < len(p.lists) {
		c := p.lists[p.count]
		p.count++
		return c
	}
	c := newCommandList(p.d, p.slot, p.queue)
	if c == nil {
		return nil
	}
	p.lists = append(p.lists, c)
	p.count++
	return c
}

// active are the lists handed out since the last rewind.
func (p *listPool) active() []*CommandList {
	return p.lists[:p.count]
}

// rewind marks every list reusable. The slot's fences must have signaled.
func (p *listPool) rewind() {
	for _, c := range p.lists[:p.count] {
		c.recycle()
	}
	p.count = 0
}

func (p *listPool) destroy() {
	for _, c := range p.lists {
		c.destroy()
	}
	p.lists = nil
	p.count = 0
}
