// Package protocol frames the binary link between the waveform firmware and
// host tooling. A frame is
//
//	len, seq, payload..., crc_hi, crc_lo, 0x7E
//
// where len counts the whole frame, seq carries 0x10 plus a 4-bit counter,
// and the CRC16 covers len, seq and the payload. The payload is a run of
// messages, each a VLQ message ID followed by VLQ arguments.
package protocol

// Frame layout
const (
	FrameHeaderSize  = 2
	FrameTrailerSize = 3
	FrameMin         = FrameHeaderSize + FrameTrailerSize
	FrameMax         = 64
	PayloadMax       = FrameMax - FrameMin

	posLen = 0
	posSeq = 1

	SyncByte = 0x7E
	SeqBase  = 0x10
	SeqMask  = 0x0F
)

// OutputMax is the size of a ScratchOutput.
const OutputMax = 256

// Frame is one decoded frame.
type Frame struct {
	Seq     uint8
	Payload []byte
}

// Ack reports whether the frame carries no messages. Receivers answer
// every data frame with one.
func (f Frame) Ack() bool {
	return len(f.Payload) == 0
}

// NextSeq advances a sequence byte, wrapping within 0x10..0x1F.
func NextSeq(seq uint8) uint8 {
	return ((seq + 1) & SeqMask) | SeqBase
}
