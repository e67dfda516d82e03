package dieselrhi

import "github.com/andewx/dieselrhi/driver"

// garbageList holds native objects retired during a frame. They are
// destroyed in retirement order once the owning slot's fences signal.
type garbageList struct {
	items []driver.Destroyer
}

func (g *garbageList) push(objs ...driver.Destroyer) {
	for _, o := range objs {
		if o != nil {
			g.items = append(g.items, o)
		}
	}
}

func (g *garbageList) reap() int {
	n := len(g.items)
	for i, o := range g.items {
		o.Destroy()
		g.items[i] = nil
	}
	g.items = g.items[:0]
	return n
}

func (g *garbageList) len() int {
	return len(g.items)
}

// retire queues objs for destruction after the GPU is done with the frame
// that may still use them.
func (d *Device) retire(objs ...driver.Destroyer) {
	if d.down || len(d.frames) == 0 {
		for _, o := range objs {
			if o != nil {
				o.Destroy()
			}
		}
		return
	}
	d.garbageSlot().garbage.push(objs...)
}
