package dieselrhi

import (
	"testing"

	"github.com/andewx/dieselrhi/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func family(i int, caps driver.QueueCaps) driver.QueueFamily {
	return driver.QueueFamily{Index: i, Caps: caps, Count: 1}
}

const allCaps = driver.CapGraphics | driver.CapCompute | driver.CapTransfer | driver.CapPresent

func TestSelectDedicatedQueues(t *testing.T) {
	a := driver.Adapter{
		Kind:      driver.AdapterDiscrete,
		Swapchain: true,
		Families: []driver.QueueFamily{
			family(0, allCaps),
			family(1, driver.CapCompute|driver.CapTransfer),
			family(2, driver.CapTransfer),
		},
	}
	sel, err := SelectQueues([]driver.Adapter{a}, true)
	require.NoError(t, err)
	assert.Equal(t, driver.QueueFamilies{0, 1, 2}, sel.Families)
	assert.True(t, sel.Dedicated[driver.QueueCompute])
	assert.True(t, sel.Dedicated[driver.QueueTransfer])
}

func TestSelectFallbacks(t *testing.T) {
	only := driver.Adapter{
		Kind:      driver.AdapterIntegrated,
		Swapchain: true,
		Families:  []driver.QueueFamily{family(0, allCaps)},
	}
	sel, err := SelectQueues([]driver.Adapter{only}, true)
	require.NoError(t, err)
	assert.Equal(t, driver.QueueFamilies{0, 0, 0}, sel.Families)
	assert.False(t, sel.Dedicated[driver.QueueCompute])

	// transfer falls back to the async compute family
	two := driver.Adapter{
		Kind:      driver.AdapterDiscrete,
		Swapchain: true,
		Families: []driver.QueueFamily{
			family(0, allCaps),
			family(1, driver.CapCompute|driver.CapTransfer),
		},
	}
	sel, err = SelectQueues([]driver.Adapter{two}, true)
	require.NoError(t, err)
	assert.Equal(t, driver.QueueFamilies{0, 1, 1}, sel.Families)
}

func TestSelectPrefersDiscrete(t *testing.T) {
	fams := []driver.QueueFamily{family(0, allCaps)}
	adapters := []driver.Adapter{
		{Index: 0, Name: "igpu", Kind: driver.AdapterIntegrated, Swapchain: true, Families: fams},
		{Index: 1, Name: "dgpu", Kind: driver.AdapterDiscrete, Swapchain: true, Families: fams},
		{Index: 2, Name: "nopresent", Kind: driver.AdapterDiscrete, Swapchain: true,
			Families: []driver.QueueFamily{family(0, driver.CapGraphics|driver.CapCompute)}},
	}
	sel, err := SelectQueues(adapters, true)
	require.NoError(t, err)
	assert.Equal(t, "dgpu", sel.Adapter.Name)

	sel, err = SelectQueues(adapters, false)
	require.NoError(t, err)
	assert.Equal(t, "igpu", sel.Adapter.Name)
}

func TestSelectNoDevice(t *testing.T) {
	_, err := SelectQueues(nil, true)
	assert.ErrorIs(t, err, driver.ErrNoDevice)

	_, err = SelectQueues([]driver.Adapter{{Swapchain: false, Families: []driver.QueueFamily{family(0, allCaps)}}}, true)
	assert.ErrorIs(t, err, driver.ErrNoDevice)
}
