// Package tmc builds TMC2209 UART write datagrams. The board sends exactly
// one, GCONF, at startup; nothing is read back.
package tmc

import (
	"io"

	"github.com/snksoft/crc"
)

// Datagram bytes
const (
	SyncByte  = 0x05
	WriteFlag = 0x80
	FrameLen  = 8
)

// Registers
const (
	RegGCONF      = 0x00
	RegGSTAT      = 0x01
	RegIHOLD_IRUN = 0x10
	RegCHOPCONF   = 0x6C
)

// GCONF bits
const (
	GconfIScaleAnalog   = 1 << 0
	GconfInternalRsense = 1 << 1
	GconfEnSpreadCycle  = 1 << 2
	GconfShaft          = 1 << 3
	GconfIndexOtpw      = 1 << 4
	GconfIndexStep      = 1 << 5
	GconfPdnDisable     = 1 << 6
	GconfMstepRegSelect = 1 << 7
	GconfMultistepFilt  = 1 << 8
)

// The datagram CRC is CRC-8 with polynomial x^8+x^2+x+1, each byte fed
// least significant bit first, the result not reflected.
var crcTable = crc.NewTable(&crc.Parameters{
	Width:      8,
	Polynomial: 0x07,
	ReflectIn:  true,
	ReflectOut: false,
	Init:       0x00,
	FinalXor:   0x00,
})

// CRC8 returns the datagram checksum of data.
func CRC8(data []byte) uint8 {
	c := crcTable.InitCrc()
	c = crcTable.UpdateCrc(c, data)
	return crcTable.CRC8(c)
}

// WriteFrame encodes a write of value to reg on the driver at addr.
func WriteFrame(addr, reg uint8, value uint32) [FrameLen]byte {
	f := [FrameLen]byte{
		SyncByte,
		addr,
		reg | WriteFlag,
		byte(value >> 24),
		byte(value >> 16),
		byte(value >> 8),
		byte(value),
	}
	f[7] = CRC8(f[:7])
	return f
}

// GConf is the subset of GCONF the board sets.
type GConf struct {
	PDNDisable    bool
	MstepRegister bool
	MultistepFilt bool
	Shaft         bool
}

// Value returns the register word.
func (g GConf) Value() uint32 {
	var v uint32
	if g.PDNDisable {
		v |= GconfPdnDisable
	}
	if g.MstepRegister {
		v |= GconfMstepRegSelect
	}
	if g.MultistepFilt {
		v |= GconfMultistepFilt
	}
	if g.Shaft {
		v |= GconfShaft
	}
	return v
}

// SendGConf writes the GCONF datagram to w once. Short writes are errors;
// there is no retry.
func SendGConf(w io.Writer, addr uint8, g GConf) error {
	f := WriteFrame(addr, RegGCONF, g.Value())
	n, err := w.Write(f[:])
	if err != nil {
		return err
	}
	if n != len(f) {
		return io.ErrShortWrite
	}
	return nil
}
