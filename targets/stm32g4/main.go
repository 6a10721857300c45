//go:build tinygo && stm32g4

// Command stm32g4 is the waveform firmware for a G431 board: TIM2 drives
// the four bridge inputs from a duty table streamed by DMA1, TIM3 paces
// the diagnostic report, USART2 carries telemetry and USART3 configures
// the stepper driver once at boot. The PA10 switch flips the direction
// output.
package main

import (
	"runtime/interrupt"
	"time"

	"wavedma/config"
	"wavedma/core"
	"wavedma/regs"
	"wavedma/stm32g4"
)

var (
	dispatcher = core.NewDispatcher()
	board      *core.Board
	vcp        *usart
	driver     *usart
	sw1        *button

	// Text output shares the VCP with telemetry frames, so it stops once
	// the link is up and resumes on halt.
	linkUp bool
)

func main() {
	cfg := config.Default()

	var windows []*regs.Window
	for _, b := range stm32g4.Blocks {
		windows = append(windows, regs.MMIOWindow(b.Name, b.Base, b.Size))
	}
	set := core.NewPeripheralSet(windows...)

	clock, err := newPLLClock(set)
	if err != nil {
		core.Halt(err)
	}
	if err := clock.Setup(); err != nil {
		core.Halt(err)
	}
	hz := clock.SysclkHz()
	initCycleCounter(hz)

	u2, err := set.Take("USART2")
	if err != nil {
		core.Halt(err)
	}
	vcp = newUSART(u2, hz, uint32(cfg.Serial.Baud), true)
	u3, err := set.Take("USART3")
	if err != nil {
		core.Halt(err)
	}
	driver = newUSART(u3, hz, cfg.Driver.Baud, false)

	core.SetDebugWriter(func(msg string) {
		if !linkUp {
			vcp.Println(msg)
		}
	})
	core.SetHaltHandler(halt)
	core.SetClockSource(clock)
	pins, err := takePorts(set)
	if err != nil {
		core.Halt(err)
	}
	core.SetPinSetup(pinSetup(pins))
	core.SetDriverPort(driver)

	board = core.NewBoard(cfg, set, dispatcher, core.NewArena(cfg.ArenaWords()))
	board.AttachTelemetry(vcp)
	if err := board.Start(); err != nil {
		core.Halt(err)
	}
	linkUp = true
	if sw1, err = newButton(set, pins, hz); err != nil {
		core.Halt(err)
	}
	enableInterrupts(cfg)

	buf := make([]byte, 64)
	for {
		updateSystemTime()
		core.ProcessTimers()
		if n := vcp.drain(buf); n > 0 {
			board.Receive(buf[:n])
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// halt dumps the event ring as text and parks the core. A running
// circular DMA keeps the outputs moving.
func halt(err error) {
	linkUp = false
	core.DumpEventRing()
	interrupt.Disable()
	for {
	}
}

// enableInterrupts unmasks the lines the board bound on the dispatcher.
// interrupt.New needs constant numbers, so each line is spelled out.
func enableInterrupts(cfg config.Config) {
	waveform := interrupt.New(stm32g4.IRQ_DMA1_CH1, func(interrupt.Interrupt) {
		dispatcher.Run(stm32g4.IRQ_DMA1_CH1)
	})
	waveform.SetPriority(0x40)
	waveform.Enable()

	if cfg.Diagnostics.Enabled {
		tick := interrupt.New(stm32g4.IRQ_TIM3, func(interrupt.Interrupt) {
			dispatcher.Run(stm32g4.IRQ_TIM3)
		})
		tick.SetPriority(0xC0)
		tick.Enable()
	}
	if cfg.ADC.Enabled {
		capture := interrupt.New(stm32g4.IRQ_DMA1_CH2, func(interrupt.Interrupt) {
			dispatcher.Run(stm32g4.IRQ_DMA1_CH2)
		})
		capture.SetPriority(0x80)
		capture.Enable()
	}

	rx := interrupt.New(stm32g4.IRQ_USART2, func(interrupt.Interrupt) {
		vcp.handleInterrupt()
	})
	rx.SetPriority(0x80)
	rx.Enable()

	sw := interrupt.New(stm32g4.IRQ_EXTI15_10, func(interrupt.Interrupt) {
		sw1.handleInterrupt()
	})
	sw.SetPriority(0xC0)
	sw.Enable()
}
