package dieselrhi

import "github.com/andewx/dieselrhi/driver"

// Stats is a snapshot of what the device holds.
type Stats struct {
	Frame uint64

	Buffers        int
	Images         int
	Samplers       int
	Shaders        int
	Pipelines      int
	DescriptorSets int

	Layouts    int
	SetLayouts int

	// Garbage is the number of objects waiting on each slot's fences.
	Garbage []int
	// CommandLists counts the lists allocated per queue over all slots.
	CommandLists [driver.QueueCount]int

	SwapchainState     SwapchainState
	SwapchainRecreated int
}

func (d *Device) Stats() Stats {
	s := Stats{
		Frame:          d.frame,
		Buffers:        d.res.buffers.Len(),
		Images:         d.res.images.Len(),
		Samplers:       d.res.samplers.Len(),
		Shaders:        d.res.shaders.Len(),
		Pipelines:      d.res.pipelines.Len(),
		DescriptorSets: d.res.sets.Len(),
	}
	if d.layouts != nil {
		s.Layouts = d.layouts.Len()
		s.SetLayouts = d.layouts.SetLayouts()
	}
	for _, f := range d.frames {
		s.Garbage = append(s.Garbage, f.garbage.len())
		for q, p := range f.pools {
			s.CommandLists[q] += len(p.lists)
		}
	}
	if d.sc != nil {
		s.SwapchainState = d.sc.state
		s.SwapchainRecreated = d.sc.recreated
	}
	return s
}

// CommandLists returns every list of the current slot for queue q, in use
// or not.
func (d *Device) CommandLists(q driver.QueueType) []*CommandList {
	if len(d.frames) == 0 {
		return nil
	}
	p := d.frames[d.slot].pools[q]
	out := make([]*CommandList, len(p.lists))
	copy(out, p.lists)
	return out
}
