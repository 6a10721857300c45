//go:build tinygo

package regs

import (
	"runtime/volatile"
	"unsafe"
)

// MMIOBank reaches real peripheral registers at a fixed bus address.
type MMIOBank struct {
	base uintptr
}

func NewMMIOBank(base uint32) MMIOBank {
	return MMIOBank{base: uintptr(base)}
}

func (b MMIOBank) reg(off uint32) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(b.base + uintptr(off)))
}

func (b MMIOBank) Load(off uint32) uint32 {
	return b.reg(off).Get()
}

func (b MMIOBank) Store(off uint32, v uint32) {
	b.reg(off).Set(v)
}

// MMIOWindow is a Window over real registers.
func MMIOWindow(name string, base, size uint32) *Window {
	return NewWindow(name, base, size, NewMMIOBank(base))
}
