//go:build !tinygo

package core

// State stands in for the saved interrupt mask when running on a host.
type State uintptr

// disableInterrupts enters a critical section. Host builds have no
// interrupts; the dispatcher and simulator run on one goroutine.
func disableInterrupts() State {
	return 0
}

func restoreInterrupts(state State) {}

// haltForever ends execution after a fatal error on the host.
func haltForever(err error) {
	panic(err)
}
