package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrLinkClosed = errors.New("protocol: link closed")
	ErrTimeout    = errors.New("protocol: timed out")
)

// DefaultAckTimeout bounds how long Send waits for the device.
const DefaultAckTimeout = 2 * time.Second

// HostLink is the host end of the telemetry channel. A background goroutine
// reads the port, routes ACKs to Send and device messages to the handler
// and to Receive.
type HostLink struct {
	port io.ReadWriteCloser
	seq  uint32

	scan    *Scanner
	acks    chan Frame
	frames  chan Frame
	handler atomic.Value

	writeMu sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewHostLink starts reading port.
func NewHostLink(port io.ReadWriteCloser) *HostLink {
	l := &HostLink{
		port:   port,
		seq:    SeqBase,
		scan:   NewScanner(512),
		acks:   make(chan Frame, 1),
		frames: make(chan Frame, 16),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go l.readLoop()
	return l
}

// SetHandler installs a callback for every device message. It runs on the
// reader goroutine.
func (l *HostLink) SetHandler(h Handler) {
	l.handler.Store(h)
}

// Sequence returns the sequence the next Send will use.
func (l *HostLink) Sequence() uint8 {
	return uint8(atomic.LoadUint32(&l.seq))
}

// Send writes one message and waits for the device's ACK.
func (l *HostLink) Send(id uint16, args func(OutputBuffer)) error {
	return l.SendTimeout(id, args, DefaultAckTimeout)
}

// SendTimeout is Send with an explicit ACK timeout.
func (l *HostLink) SendTimeout(id uint16, args func(OutputBuffer), timeout time.Duration) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	seq := l.Sequence()
	var out ScratchOutput
	err := EncodeFrame(&out, seq, func(o OutputBuffer) {
		EncodeVLQUint(o, uint32(id))
		if args != nil {
			args(o)
		}
	})
	if err != nil {
		return fmt.Errorf("encode message %d: %w", id, err)
	}
	if _, err := l.port.Write(out.Result()); err != nil {
		return fmt.Errorf("write message %d: %w", id, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-l.acks:
			if ack.Seq == NextSeq(seq) {
				atomic.StoreUint32(&l.seq, uint32(ack.Seq))
				return nil
			}
			// ACK for an earlier frame; keep waiting.
		case <-timer.C:
			return fmt.Errorf("ack for seq 0x%02x: %w", seq, ErrTimeout)
		case <-l.stop:
			return ErrLinkClosed
		}
	}
}

// Receive returns the next device message frame.
func (l *HostLink) Receive(timeout time.Duration) (Frame, error) {
	select {
	case f := <-l.frames:
		return f, nil
	case <-time.After(timeout):
		return Frame{}, ErrTimeout
	case <-l.stop:
		return Frame{}, ErrLinkClosed
	}
}

// Dropped counts frames discarded for framing or CRC errors.
func (l *HostLink) Dropped() uint32 {
	return l.scan.Dropped()
}

func (l *HostLink) readLoop() {
	defer close(l.done)
	buf := make([]byte, 256)
	for {
		select {
		case <-l.stop:
			return
		default:
		}
		n, err := l.port.Read(buf)
		if n > 0 {
			l.feed(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (l *HostLink) feed(p []byte) {
	for len(p) > 0 {
		n := l.scan.Push(p)
		p = p[n:]
		for {
			f, ok := l.scan.Next()
			if !ok {
				break
			}
			l.route(f)
		}
		if n == 0 {
			l.scan.Reset()
		}
	}
}

func (l *HostLink) route(f Frame) {
	if f.Ack() {
		select {
		case l.acks <- f:
		default:
			// Replace a stale ACK nobody waited for.
			select {
			case <-l.acks:
			default:
			}
			l.acks <- f
		}
		return
	}
	if h, ok := l.handler.Load().(Handler); ok && h != nil {
		payload := f.Payload
		for len(payload) > 0 {
			id, err := DecodeVLQUint(&payload)
			if err != nil || h(uint16(id), &payload) != nil {
				break
			}
		}
	}
	select {
	case l.frames <- f:
	default:
		select {
		case <-l.frames:
		default:
		}
		l.frames <- f
	}
}

// Close stops the reader and closes the port.
func (l *HostLink) Close() error {
	var err error
	l.once.Do(func() {
		close(l.stop)
		err = l.port.Close()
		<-l.done
	})
	return err
}
