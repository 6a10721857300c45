//go:build tinygo && stm32g4

package main

import (
	"wavedma/core"
	"wavedma/regs"
	"wavedma/stm32g4"
)

const debounceMS = 50

// button toggles the direction output on each press of the PA10 switch.
// Edges closer than debounceMS to the last accepted press are bounce.
type button struct {
	exti  *regs.Window
	pins  gpioPorts
	last  uint32
	quiet uint32
	seen  bool
}

func newButton(set *core.PeripheralSet, pins gpioPorts, clockHz uint32) (*button, error) {
	exti, err := set.Take("EXTI")
	if err != nil {
		return nil, err
	}
	syscfg, err := set.Take("SYSCFG")
	if err != nil {
		return nil, err
	}
	line := uint32(1) << buttonPin.pin
	// EXTICR3 selects the port of lines 8..11; port A is 0.
	syscfg.ClearBits(stm32g4.SYSCFG_EXTICR3, 0xF<<(4*(buttonPin.pin-8)))
	exti.SetBits(stm32g4.EXTI_FTSR1, line)
	exti.ClearBits(stm32g4.EXTI_RTSR1, line)
	exti.Write(stm32g4.EXTI_PR1, line)
	exti.SetBits(stm32g4.EXTI_IMR1, line)
	return &button{exti: exti, pins: pins, quiet: clockHz / 1000 * debounceMS}, nil
}

func (b *button) handleInterrupt() {
	line := uint32(1) << buttonPin.pin
	if b.exti.Read(stm32g4.EXTI_PR1)&line == 0 {
		return
	}
	b.exti.Write(stm32g4.EXTI_PR1, line)

	now := cyccnt.Get()
	if b.seen && now-b.last < b.quiet {
		return
	}
	if b.pins.high(buttonPin) {
		return
	}
	b.seen = true
	b.last = now
	b.pins.toggle(dirPin)
	core.DebugPrintln("[BUTTON] direction toggled")
}
