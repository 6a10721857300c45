package protocol

import (
	"bytes"
	"errors"
)

var ErrFrameTooLong = errors.New("protocol: frame exceeds 64 bytes")

// AppendFrame appends a complete frame carrying payload to dst.
func AppendFrame(dst []byte, seq uint8, payload []byte) ([]byte, error) {
	n := FrameMin + len(payload)
	if n > FrameMax {
		return dst, ErrFrameTooLong
	}
	start := len(dst)
	dst = append(dst, byte(n), seq)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, byte(crc>>8), byte(crc), SyncByte), nil
}

// EncodeFrame writes one frame into out; body encodes the payload. Nothing
// is written when the payload does not fit.
func EncodeFrame(out OutputBuffer, seq uint8, body func(OutputBuffer)) error {
	var payload ScratchOutput
	if body != nil {
		body(&payload)
	}
	if payload.Overflowed() || payload.CurPosition() > PayloadMax {
		return ErrFrameTooLong
	}
	var frame [FrameMax]byte
	b, err := AppendFrame(frame[:0], seq, payload.Result())
	if err != nil {
		return err
	}
	out.Output(b)
	return nil
}

// Scanner reassembles frames from a byte stream. After a length, sequence,
// trailer or CRC error it drops input up to the next sync byte.
type Scanner struct {
	fifo    *FifoBuffer
	synced  bool
	dropped uint32
}

// NewScanner buffers up to capacity bytes of partial input.
func NewScanner(capacity int) *Scanner {
	if capacity < 2*FrameMax {
		capacity = 2 * FrameMax
	}
	return &Scanner{fifo: NewFifoBuffer(capacity), synced: true}
}

// Push buffers input and returns how many bytes were accepted.
func (s *Scanner) Push(p []byte) int {
	return s.fifo.Write(p)
}

// Dropped counts framing and CRC errors.
func (s *Scanner) Dropped() uint32 { return s.dropped }

// Next returns the next complete frame, if one is buffered.
func (s *Scanner) Next() (Frame, bool) {
	data := s.fifo.Data()
	used := 0
	for used < len(data) {
		rest := data[used:]
		if !s.synced {
			i := bytes.IndexByte(rest, SyncByte)
			if i < 0 {
				used = len(data)
				break
			}
			used += i + 1
			s.synced = true
			continue
		}
		if rest[0] == SyncByte {
			used++
			continue
		}
		if len(rest) < FrameMin {
			break
		}
		n := int(rest[posLen])
		if n < FrameMin || n > FrameMax || rest[posSeq]&^SeqMask != SeqBase {
			s.desync()
			continue
		}
		if len(rest) < n {
			break
		}
		sum := uint16(rest[n-3])<<8 | uint16(rest[n-2])
		if rest[n-1] != SyncByte || sum != CRC16(rest[:n-FrameTrailerSize]) {
			s.desync()
			continue
		}
		f := Frame{
			Seq:     rest[posSeq],
			Payload: append([]byte(nil), rest[FrameHeaderSize:n-FrameTrailerSize]...),
		}
		s.fifo.Pop(used + n)
		return f, true
	}
	s.fifo.Pop(used)
	return Frame{}, false
}

func (s *Scanner) desync() {
	s.synced = false
	s.dropped++
}

// Reset discards buffered input.
func (s *Scanner) Reset() {
	s.fifo.Reset()
	s.synced = true
}
