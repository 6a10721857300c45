// Package decode turns raw telemetry bytes into readable messages using
// the shared message table. The CLI decode command and the browser
// decoder are built on it.
package decode

import (
	"errors"
	"fmt"
	"strings"

	"wavedma/core"
	"wavedma/protocol"
)

var (
	ErrUnknownCommand = errors.New("decode: unknown command")
	ErrArgCount       = errors.New("decode: wrong number of arguments")
)

// Field is one decoded argument. Byte strings fill Bytes instead of Value.
type Field struct {
	Name  string `json:"name"`
	Value uint32 `json:"value"`
	Bytes []byte `json:"bytes,omitempty"`
}

// Message is one decoded message.
type Message struct {
	ID     uint16  `json:"id"`
	Name   string  `json:"name"`
	Fields []Field `json:"fields,omitempty"`
}

func (m Message) String() string {
	var b strings.Builder
	b.WriteString(m.Name)
	for _, f := range m.Fields {
		if f.Bytes != nil {
			fmt.Fprintf(&b, " %s=%x", f.Name, f.Bytes)
			continue
		}
		fmt.Fprintf(&b, " %s=%d", f.Name, f.Value)
	}
	return b.String()
}

// Frame is one decoded frame. Err is set when the payload did not decode;
// Messages then holds what decoded before the failure.
type Frame struct {
	Seq      uint8     `json:"seq"`
	Ack      bool      `json:"ack"`
	Messages []Message `json:"messages,omitempty"`
	Err      string    `json:"error,omitempty"`
}

type arg struct {
	name  string
	bytes bool
}

// args splits a "name=%u other=%*s" format into its arguments.
func args(format string) []arg {
	var out []arg
	for _, tok := range strings.Fields(format) {
		name, conv, _ := strings.Cut(tok, "=")
		out = append(out, arg{name: name, bytes: conv == "%*s" || conv == "%.*s"})
	}
	return out
}

// Payload decodes every message in a frame payload.
func Payload(p []byte) ([]Message, error) {
	var msgs []Message
	data := p
	for len(data) > 0 {
		id, err := protocol.DecodeVLQUint(&data)
		if err != nil {
			return msgs, err
		}
		if int(id) >= len(core.Messages) {
			return msgs, fmt.Errorf("%w: %d", core.ErrUnknownMessage, id)
		}
		def := core.Messages[id]
		m := Message{ID: uint16(id), Name: def.Name}
		for _, a := range args(def.Format) {
			f := Field{Name: a.name}
			if a.bytes {
				b, err := protocol.DecodeVLQBytes(&data)
				if err != nil {
					return msgs, fmt.Errorf("%s.%s: %w", def.Name, a.name, err)
				}
				f.Bytes = append([]byte{}, b...)
			} else if f.Value, err = protocol.DecodeVLQUint(&data); err != nil {
				return msgs, fmt.Errorf("%s.%s: %w", def.Name, a.name, err)
			}
			m.Fields = append(m.Fields, f)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Stream decodes every complete frame in data and reports how many bytes
// the scanner had to discard as framing or CRC errors.
func Stream(data []byte) ([]Frame, uint32) {
	scan := protocol.NewScanner(len(data) + 1)
	scan.Push(data)
	var frames []Frame
	for {
		f, ok := scan.Next()
		if !ok {
			break
		}
		out := Frame{Seq: f.Seq & protocol.SeqMask, Ack: f.Ack()}
		msgs, err := Payload(f.Payload)
		out.Messages = msgs
		if err != nil {
			out.Err = err.Error()
		}
		frames = append(frames, out)
	}
	return frames, scan.Dropped()
}

// Command encodes the named host command with its integer arguments as a
// complete frame.
func Command(name string, seq uint8, values ...uint32) ([]byte, error) {
	def, ok := core.MessageByName(name)
	if !ok || def.Response {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	want := args(def.Format)
	if len(values) != len(want) {
		return nil, fmt.Errorf("%w: %s takes %d", ErrArgCount, name, len(want))
	}
	out := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(out, uint32(def.ID))
	for _, v := range values {
		protocol.EncodeVLQUint(out, v)
	}
	return protocol.AppendFrame(nil, protocol.SeqBase|seq&protocol.SeqMask, out.Result())
}
