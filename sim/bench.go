package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"wavedma/config"
	"wavedma/core"
)

// ErrHalted is returned by a bench whose board hit a fatal error.
var ErrHalted = errors.New("sim: board halted")

// Bench is a booted board on a simulated machine. Its methods are safe to
// call from any goroutine.
type Bench struct {
	m     *Machine
	board *core.Board
	d     *core.Dispatcher
	halt  error
}

// NewBench installs the simulated clock, starts a board with cfg and
// returns it. Telemetry frames go to telemetry when it is not nil. The
// core keeps process-wide hooks, so only one bench may run at a time.
func NewBench(cfg config.Config, telemetry io.Writer) (*Bench, error) {
	d := core.NewDispatcher()
	arena := core.NewArena(cfg.ArenaWords())
	b := &Bench{m: New(cfg.Clock.SysclkHz, arena, d), d: d}

	core.SetClockSource(b.m.Clock())
	core.SetDelay(b.m.Delay)
	core.SetHaltHandler(func(err error) { b.halt = err })
	b.board = core.NewBoard(cfg, b.m.Peripherals(), d, arena)
	if telemetry != nil {
		b.board.AttachTelemetry(telemetry)
	}
	if err := b.board.Start(); err != nil {
		core.SetClockSource(nil)
		core.SetDelay(nil)
		core.SetHaltHandler(nil)
		return nil, err
	}
	return b, nil
}

// Machine returns the simulated hardware.
func (b *Bench) Machine() *Machine { return b.m }

// Board returns the board. Callers on other goroutines must go through
// Machine().Do.
func (b *Bench) Board() *core.Board { return b.board }

func (b *Bench) locked(fn func() error) error {
	var err error
	b.m.Do(func() {
		if b.halt != nil {
			err = fmt.Errorf("%w: %v", ErrHalted, b.halt)
			return
		}
		err = fn()
	})
	return err
}

// Status returns the board's short state report.
func (b *Bench) Status() (core.Status, error) {
	var s core.Status
	err := b.locked(func() error { s = b.board.Status(); return nil })
	return s, err
}

// Snapshot samples the diagnostics.
func (b *Bench) Snapshot() (core.Snapshot, error) {
	var s core.Snapshot
	err := b.locked(func() error { s = b.board.Snapshot(); return nil })
	return s, err
}

// Start re-arms a stopped waveform.
func (b *Bench) Start() error {
	return b.locked(b.board.StartWaveform)
}

// Stop stops the waveform and releases the duty table.
func (b *Bench) Stop() error {
	return b.locked(func() error { b.board.StopWaveform(); return nil })
}

// Table returns a copy of the duty table.
func (b *Bench) Table() ([]uint16, error) {
	var v []uint16
	err := b.locked(func() error { v = b.board.Table().Values(); return nil })
	return v, err
}

// Receive hands bytes from the host to the board's telemetry link.
func (b *Bench) Receive(p []byte) {
	b.m.Do(func() { b.board.Receive(p) })
}

// Serve feeds everything read from r to the board until r fails.
func (b *Bench) Serve(r io.Reader) error {
	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			b.Receive(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// Run advances simulated time in step increments, paced against the wall
// clock, until ctx is done or the board halts.
func (b *Bench) Run(ctx context.Context, step time.Duration) error {
	cycles := uint64(b.m.clockHz) * uint64(step) / uint64(time.Second)
	ticker := time.NewTicker(step)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			var halted error
			b.m.Do(func() {
				b.m.advance(cycles)
				halted = b.halt
			})
			if halted != nil {
				return fmt.Errorf("%w: %v", ErrHalted, halted)
			}
		}
	}
}

// Close stops the board and restores the core's process-wide hooks.
func (b *Bench) Close() {
	b.m.Do(b.board.Stop)
	core.SetClockSource(nil)
	core.SetDelay(nil)
	core.SetHaltHandler(nil)
}
