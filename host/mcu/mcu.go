// Package mcu talks to a running wavedma board over its telemetry link.
package mcu

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"wavedma/core"
	"wavedma/host/serial"
	"wavedma/protocol"
)

var (
	ErrNotConnected = errors.New("mcu: not connected")
	ErrMismatch     = errors.New("mcu: board message table differs")
	ErrNoTable      = fmt.Errorf("mcu: duty table over the link: %w", errors.ErrUnsupported)
)

// ReplyTimeout bounds the wait for a status or snapshot reply after the
// request was acknowledged.
const ReplyTimeout = time.Second

// Device is a connection to a board.
type Device struct {
	link *protocol.HostLink

	status    chan core.Status
	snapshots chan core.Snapshot
	chunks    chan identifyChunk

	mu         sync.Mutex
	onSnapshot func(core.Snapshot)
	last       core.Snapshot
	received   uint32
	connected  bool
}

// New wraps an open port.
func New(port io.ReadWriteCloser) *Device {
	d := &Device{
		link:      protocol.NewHostLink(port),
		status:    make(chan core.Status, 1),
		snapshots: make(chan core.Snapshot, 1),
		chunks:    make(chan identifyChunk, 1),
		connected: true,
	}
	d.link.SetHandler(d.handle)
	return d
}

// Connect opens the serial device described by cfg.
func Connect(cfg *serial.Config) (*Device, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return New(port), nil
}

// OnSnapshot installs a callback for every snapshot the board sends,
// periodic or requested. It runs on the link's reader goroutine.
func (d *Device) OnSnapshot(fn func(core.Snapshot)) {
	d.mu.Lock()
	d.onSnapshot = fn
	d.mu.Unlock()
}

// handle decodes one device message.
func (d *Device) handle(id uint16, args *[]byte) error {
	switch core.MessageID(id) {
	case core.MsgStatus:
		s, err := core.DecodeStatus(args)
		if err != nil {
			return err
		}
		offer(d.status, s)
	case core.MsgSnapshot:
		s, err := core.DecodeSnapshot(args)
		if err != nil {
			return err
		}
		d.mu.Lock()
		d.last = s
		d.received++
		fn := d.onSnapshot
		d.mu.Unlock()
		if fn != nil {
			fn(s)
		}
		offer(d.snapshots, s)
	case core.MsgIdentifyResponse:
		off, data, err := core.DecodeIdentifyResponse(args)
		if err != nil {
			return err
		}
		offer(d.chunks, identifyChunk{off, data})
	default:
		return fmt.Errorf("%w: %d", core.ErrUnknownMessage, id)
	}
	return nil
}

// offer replaces whatever value nobody collected.
func offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}

func drain[T any](ch chan T) {
	select {
	case <-ch:
	default:
	}
}

func (d *Device) send(id core.MessageID) error {
	return d.sendArgs(id, nil)
}

func (d *Device) sendArgs(id core.MessageID, args func(protocol.OutputBuffer)) error {
	if !d.connected {
		return ErrNotConnected
	}
	if err := d.link.Send(uint16(id), args); err != nil {
		return fmt.Errorf("%s: %w", core.Messages[id].Name, err)
	}
	return nil
}

func await[T any](ch chan T, what string) (T, error) {
	select {
	case v := <-ch:
		return v, nil
	case <-time.After(ReplyTimeout):
		var zero T
		return zero, fmt.Errorf("%s reply: %w", what, protocol.ErrTimeout)
	}
}

// Status asks the board for its state.
func (d *Device) Status() (core.Status, error) {
	drain(d.status)
	if err := d.send(core.MsgGetStatus); err != nil {
		return core.Status{}, err
	}
	return await(d.status, "status")
}

// Snapshot asks the board for a fresh diagnostic snapshot.
func (d *Device) Snapshot() (core.Snapshot, error) {
	drain(d.snapshots)
	if err := d.send(core.MsgGetSnapshot); err != nil {
		return core.Snapshot{}, err
	}
	return await(d.snapshots, "snapshot")
}

type identifyChunk struct {
	offset uint32
	data   []byte
}

// Identity is the board's self description.
type Identity struct {
	Version      string                       `json:"version"`
	Config       map[string]string            `json:"config"`
	Commands     map[string]int               `json:"commands"`
	Responses    map[string]int               `json:"responses"`
	Enumerations map[string]map[string]uint32 `json:"enumerations"`
}

// Identify downloads the board's dictionary and checks that its message
// table matches the one this host was built with.
func (d *Device) Identify() (*Identity, error) {
	var stream []byte
	for {
		drain(d.chunks)
		off := uint32(len(stream))
		err := d.sendArgs(core.MsgIdentify, func(out protocol.OutputBuffer) {
			core.EncodeIdentify(out, off, core.IdentifyChunk)
		})
		if err != nil {
			return nil, err
		}
		c, err := await(d.chunks, "identify")
		if err != nil {
			return nil, err
		}
		if c.offset != off {
			return nil, fmt.Errorf("identify: chunk for offset %d, asked %d", c.offset, off)
		}
		if len(c.data) == 0 {
			break
		}
		stream = append(stream, c.data...)
	}
	return parseIdentity(stream)
}

func parseIdentity(stream []byte) (*Identity, error) {
	r, err := zlib.NewReader(bytes.NewReader(stream))
	if err != nil {
		return nil, fmt.Errorf("identify: %w", err)
	}
	defer r.Close()
	var id Identity
	if err := json.NewDecoder(r).Decode(&id); err != nil {
		return nil, fmt.Errorf("identify: %w", err)
	}
	for _, m := range core.Messages {
		key := m.Name
		if m.Format != "" {
			key += " " + m.Format
		}
		table := id.Commands
		if m.Response {
			table = id.Responses
		}
		if got, ok := table[key]; !ok || got != int(m.ID) {
			return &id, fmt.Errorf("%w: %q", ErrMismatch, key)
		}
	}
	return &id, nil
}

// Start re-arms the waveform.
func (d *Device) Start() error { return d.send(core.MsgStartWaveform) }

// Stop stops the waveform.
func (d *Device) Stop() error { return d.send(core.MsgStopWaveform) }

// Table is not available from a remote board.
func (d *Device) Table() ([]uint16, error) { return nil, ErrNoTable }

// Last returns the most recent snapshot received and how many arrived.
func (d *Device) Last() (core.Snapshot, uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.received
}

// Dropped counts frames the link discarded.
func (d *Device) Dropped() uint32 { return d.link.Dropped() }

// Close closes the connection to the board.
func (d *Device) Close() error {
	d.connected = false
	return d.link.Close()
}
