package core

import "io"

// ClockSource brings up the clock tree. After Setup succeeds the system
// clock frequency is an established fact for every timer computation.
type ClockSource interface {
	Setup() error
	SysclkHz() uint32
}

// PinSetup puts the waveform, UART and button pins in their alternate or
// input modes. It must run before any timer output or UART use.
type PinSetup func() error

// FixedClock is a ClockSource whose tree is already running, used by the
// simulator and by boards started by a bootloader.
type FixedClock uint32

func (c FixedClock) Setup() error     { return nil }
func (c FixedClock) SysclkHz() uint32 { return uint32(c) }

// DelayFunc busy-waits for at least us microseconds.
type DelayFunc func(us uint32)

var (
	clockSource ClockSource
	pinSetup    PinSetup
	driverPort  io.Writer
	delay       DelayFunc
)

// SetClockSource is called by target-specific code to register its clock.
func SetClockSource(c ClockSource) {
	clockSource = c
}

// MustClock returns the configured clock source or panics if missing.
func MustClock() ClockSource {
	if clockSource == nil {
		panic("clock source not configured")
	}
	return clockSource
}

// SetPinSetup registers the target's pin configuration routine.
func SetPinSetup(fn PinSetup) {
	pinSetup = fn
}

// SetDriverPort registers the UART the stepper driver configuration frame
// is written to. Nil disables the frame.
func SetDriverPort(w io.Writer) {
	driverPort = w
}

// SetDelay registers the target's busy-wait. Without one, Delay returns at
// once, which only suits register models that do not time anything.
func SetDelay(fn DelayFunc) {
	delay = fn
}

// Delay busy-waits for us microseconds with the registered DelayFunc.
func Delay(us uint32) {
	if delay != nil {
		delay(us)
	}
}
