package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWaitRestoredBlocksWhileMinimized(t *testing.T) {
	sizes := [][2]int{{0, 0}, {0, 0}, {640, 0}, {640, 480}}
	waits := 0
	size := func() (int, int) {
		s := sizes[min(waits, len(sizes)-1)]
		return s[0], s[1]
	}
	waitRestored(size, func() bool { return false }, func() { waits++ })
	assert.Equal(t, 3, waits)
}

func TestWaitRestoredVisibleWindow(t *testing.T) {
	waits := 0
	waitRestored(func() (int, int) { return 800, 600 }, func() bool { return false }, func() { waits++ })
	assert.Zero(t, waits)
}

func TestWaitRestoredStopsOnClose(t *testing.T) {
	waits := 0
	closed := func() bool { return waits >= 2 }
	waitRestored(func() (int, int) { return 0, 0 }, closed, func() { waits++ })
	assert.Equal(t, 2, waits)
}
