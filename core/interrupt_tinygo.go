//go:build tinygo

package core

import "runtime/interrupt"

// disableInterrupts masks all interrupts and returns the previous state
func disableInterrupts() interrupt.State {
	return interrupt.Disable()
}

// restoreInterrupts restores the interrupt state
func restoreInterrupts(state interrupt.State) {
	interrupt.Restore(state)
}

// haltForever parks the core with interrupts masked. The waveform DMA
// keeps running if it was already enabled; nothing else will.
func haltForever(err error) {
	interrupt.Disable()
	for {
	}
}
