package dieselrhi

import (
	"github.com/andewx/dieselrhi/driver"
	"github.com/cockroachdb/errors"
)

// QueueSelection is the adapter and queue families chosen at startup.
type QueueSelection struct {
	Adapter  driver.Adapter
	Families driver.QueueFamilies
	// Dedicated reports per queue type whether it got a family distinct
	// from the graphics family.
	Dedicated [driver.QueueCount]bool
}

// SelectQueues picks the best adapter and its queue families.
//
// Graphics must share a family with presentation. Compute prefers a family
// without graphics support and otherwise falls back to the graphics family.
// Transfer prefers a family supporting neither graphics nor compute, then
// the compute family, then graphics.
func SelectQueues(adapters []driver.Adapter, preferDiscrete bool) (QueueSelection, error) {
	best, bestScore := -1, -1
	var bestSel QueueSelection
	for i, a := range adapters {
		sel, ok := findFamilies(a)
		if !ok {
			continue
		}
		score := scoreAdapter(a, sel, preferDiscrete)
		if score > bestScore {
			best, bestScore, bestSel = i, score, sel
		}
	}
	if best < 0 {
		return QueueSelection{}, errors.Wrapf(driver.ErrNoDevice,
			"none of %d adapters has a graphics queue that can present", len(adapters))
	}
	return bestSel, nil
}

func scoreAdapter(a driver.Adapter, sel QueueSelection, preferDiscrete bool) int {
	score := 0
	switch a.Kind {
	case driver.AdapterDiscrete:
		score = 500
		if preferDiscrete {
			score = 1000
		}
	case driver.AdapterIntegrated:
		score = 600
	case driver.AdapterVirtual:
		score = 200
	case driver.AdapterCPU:
		score = 100
	default:
		score = 50
	}
	for _, d := range sel.Dedicated {
		if d {
			score += 10
		}
	}
	score += int(a.DeviceBytes >> 30)
	return score
}

func findFamilies(a driver.Adapter) (QueueSelection, bool) {
	sel := QueueSelection{Adapter: a}
	if !a.Swapchain {
		return sel, false
	}
	graphics := findFamily(a, driver.CapGraphics|driver.CapPresent, 0)
	if graphics < 0 {
		return sel, false
	}
	compute := findFamily(a, driver.CapCompute, driver.CapGraphics)
	if compute < 0 {
		compute = graphics
	}
	transfer := findFamily(a, driver.CapTransfer, driver.CapGraphics|driver.CapCompute)
	if transfer < 0 {
		transfer = compute
	}

	sel.Families[driver.QueueGraphics] = graphics
	sel.Families[driver.QueueCompute] = compute
	sel.Families[driver.QueueTransfer] = transfer
	sel.Dedicated[driver.QueueCompute] = compute != graphics
	sel.Dedicated[driver.QueueTransfer] = transfer != graphics
	return sel, true
}

// findFamily returns the first family having every capability in want and
// none in exclude, or -1.
func findFamily(a driver.Adapter, want, exclude driver.QueueCaps) int {
	for _, f := range a.Families {
		if f.Caps.Has(want) && f.Caps&exclude == 0 && f.Count > 0 {
			return f.Index
		}
	}
	return -1
}
