package core

import (
	"errors"

	"wavedma/regs"
)

var (
	ErrAlreadyClaimed = errors.New("peripheral already claimed")
	ErrNoPeripheral   = errors.New("no such peripheral")
)

// PeripheralSet hands out register windows. Each window can be taken
// exactly once; the taker is its only owner from then on.
type PeripheralSet struct {
	windows map[string]*regs.Window
	taken   map[string]bool
}

// NewPeripheralSet builds a set from windows, keyed by window name.
func NewPeripheralSet(windows ...*regs.Window) *PeripheralSet {
	s := &PeripheralSet{
		windows: make(map[string]*regs.Window, len(windows)),
		taken:   make(map[string]bool, len(windows)),
	}
	for _, w := range windows {
		s.windows[w.Name()] = w
	}
	return s
}

// Take claims the named window.
func (s *PeripheralSet) Take(name string) (*regs.Window, error) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	w, ok := s.windows[name]
	if !ok {
		return nil, peripheralError{name, ErrNoPeripheral}
	}
	if s.taken[name] {
		return nil, peripheralError{name, ErrAlreadyClaimed}
	}
	s.taken[name] = true
	return w, nil
}

// Taken reports whether the named window has been claimed.
func (s *PeripheralSet) Taken(name string) bool {
	return s.taken[name]
}

type peripheralError struct {
	name string
	err  error
}

func (e peripheralError) Error() string { return e.name + ": " + e.err.Error() }
func (e peripheralError) Unwrap() error { return e.err }
