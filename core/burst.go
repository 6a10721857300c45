package core

import (
	"errors"

	"wavedma/stm32g4"
)

var (
	ErrBurstWindow = errors.New("burst window outside timer registers")
	ErrBurstStride = errors.New("burst does not match table stride")
)

// WordSize is a DMA transfer width; the value is the MSIZE/PSIZE encoding.
type WordSize uint8

const (
	Size8  WordSize = 0
	Size16 WordSize = 1
	Size32 WordSize = 2
)

// Bits returns the width in bits.
func (s WordSize) Bits() int {
	return 8 << s
}

// BurstDescriptor names the run of consecutive timer registers written per
// trigger through the DMA burst register. BaseOffset counts 32-bit
// registers from CR1; Length is the number of registers per trigger;
// ItemWidth is the size of one table entry.
type BurstDescriptor struct {
	BaseOffset uint8
	Length     uint8
	ItemWidth  WordSize
}

// maxBurst is the longest burst the DBL field allows.
const maxBurst = 18

// Validate checks the window against the timer register map and the
// table layout.
func (d BurstDescriptor) Validate(table *DutyTable) error {
	if d.Length == 0 || d.Length > maxBurst {
		return ErrBurstWindow
	}
	if int(d.BaseOffset)+int(d.Length) > stm32g4.TimerBurstRegisters {
		return ErrBurstWindow
	}
	if table == nil {
		return nil
	}
	if int(d.Length)*d.ItemWidth.Bits() > table.Stride()*16 {
		return ErrBurstStride
	}
	if table.Len()%int(d.Length) != 0 {
		return ErrBurstStride
	}
	return nil
}

// DBA and DBL are the DCR field values.
func (d BurstDescriptor) DBA() uint32 { return uint32(d.BaseOffset) }
func (d BurstDescriptor) DBL() uint32 { return uint32(d.Length) - 1 }

// DCR returns the whole DCR register value.
func (d BurstDescriptor) DCR() uint32 {
	return d.DBA() | d.DBL()<<8
}

// TargetOffset returns the byte offset, from the timer base, of the k-th
// register written by a burst.
func (d BurstDescriptor) TargetOffset(k int) uint32 {
	return uint32(int(d.BaseOffset)+k) * 4
}
