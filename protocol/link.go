package protocol

import (
	"io"
	"sync/atomic"
)

// Handler decodes and acts on one message. args is positioned after the
// message ID and must be advanced past the message's arguments.
type Handler func(id uint16, args *[]byte) error

// Link is the device end of the telemetry channel. It answers every host
// frame with an ACK carrying the next expected sequence, dispatches
// in-sequence frames to the handler, and sends device messages tagged with
// that same sequence.
//
// Receive and Send share one encode buffer; call them from the same task
// priority.
type Link struct {
	w        io.Writer
	handler  Handler
	scan     *Scanner
	expect   uint32
	out      ScratchOutput
	failures uint32
	onReset  func()
}

// NewLink writes frames to w and passes received messages to handler.
func NewLink(w io.Writer, handler Handler) *Link {
	return &Link{
		w:       w,
		handler: handler,
		scan:    NewScanner(4 * FrameMax),
		expect:  SeqBase,
	}
}

// SetResetCallback is called when the host restarts its sequence.
func (l *Link) SetResetCallback(fn func()) {
	l.onReset = fn
}

// HandlerErrors counts messages the handler rejected.
func (l *Link) HandlerErrors() uint32 {
	return atomic.LoadUint32(&l.failures)
}

// Dropped counts frames discarded for framing or CRC errors.
func (l *Link) Dropped() uint32 {
	return l.scan.Dropped()
}

// Receive consumes bytes read from the host.
func (l *Link) Receive(p []byte) {
	for len(p) > 0 {
		n := l.scan.Push(p)
		p = p[n:]
		l.drain()
		if n == 0 {
			l.scan.Reset()
		}
	}
}

func (l *Link) drain() {
	for {
		f, ok := l.scan.Next()
		if !ok {
			return
		}
		expect := uint8(atomic.LoadUint32(&l.expect))
		if f.Seq == SeqBase && expect != SeqBase {
			expect = SeqBase
			if l.onReset != nil {
				l.onReset()
			}
		}
		if f.Seq == expect {
			atomic.StoreUint32(&l.expect, uint32(NextSeq(expect)))
			l.dispatch(f.Payload)
		} else {
			atomic.StoreUint32(&l.expect, uint32(expect))
		}
		l.ack()
	}
}

func (l *Link) dispatch(payload []byte) {
	for len(payload) > 0 {
		id, err := DecodeVLQUint(&payload)
		if err != nil {
			atomic.AddUint32(&l.failures, 1)
			return
		}
		if l.handler == nil {
			return
		}
		if err := l.handler(uint16(id), &payload); err != nil {
			atomic.AddUint32(&l.failures, 1)
			return
		}
	}
}

// ack sends an empty frame; its sequence tells the host which frame is
// expected next, so a stale sequence doubles as a NAK.
func (l *Link) ack() {
	var buf [FrameMin]byte
	b, _ := AppendFrame(buf[:0], uint8(atomic.LoadUint32(&l.expect)), nil)
	l.w.Write(b)
}

// Send encodes message id with args into one frame and writes it.
func (l *Link) Send(id uint16, args func(OutputBuffer)) error {
	l.out.Reset()
	err := EncodeFrame(&l.out, uint8(atomic.LoadUint32(&l.expect)), func(out OutputBuffer) {
		EncodeVLQUint(out, uint32(id))
		if args != nil {
			args(out)
		}
	})
	if err != nil {
		return err
	}
	_, err = l.w.Write(l.out.Result())
	return err
}

// Reset forgets the host sequence and any partial input.
func (l *Link) Reset() {
	atomic.StoreUint32(&l.expect, SeqBase)
	l.scan.Reset()
}
