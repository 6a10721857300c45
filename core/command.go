package core

import (
	"errors"

	"wavedma/protocol"
)

var (
	ErrUnknownMessage = errors.New("unknown message ID")
	ErrNotACommand    = errors.New("message is device-to-host only")
)

// MessageID identifies a telemetry message. IDs are fixed by the Messages
// table; identify lets a host confirm it speaks the same table.
type MessageID uint16

const (
	MsgStatus MessageID = iota
	MsgSnapshot
	MsgGetStatus
	MsgGetSnapshot
	MsgStartWaveform
	MsgStopWaveform
	MsgIdentifyResponse
	MsgIdentify
)

// Message describes one entry of the message table. Format lists the
// arguments in order, Klipper style; every argument is a VLQ integer.
type Message struct {
	ID       MessageID
	Name     string
	Format   string
	Response bool
}

// Messages is the shared message table.
var Messages = []Message{
	{MsgStatus, "status", "channel=%c timer=%c errors=%u running=%c", true},
	{MsgSnapshot, "snapshot", "tick=%u psc=%u arr=%u rcr=%u ccr1=%u ccr2=%u ccr3=%u ccr4=%u " +
		"remaining=%u channel=%c timer=%c errors=%u adc=%hu mv=%u", true},
	{MsgGetStatus, "get_status", "", false},
	{MsgGetSnapshot, "get_snapshot", "", false},
	{MsgStartWaveform, "start_waveform", "", false},
	{MsgStopWaveform, "stop_waveform", "", false},
	{MsgIdentifyResponse, "identify_response", "offset=%u data=%*s", true},
	{MsgIdentify, "identify", "offset=%u count=%c", false},
}

// MessageByName looks up a table entry.
func MessageByName(name string) (Message, bool) {
	for _, m := range Messages {
		if m.Name == name {
			return m, true
		}
	}
	return Message{}, false
}

func lookupMessage(id uint16) (Message, bool) {
	if int(id) >= len(Messages) {
		return Message{}, false
	}
	return Messages[id], true
}

// CommandHandler decodes its own arguments from data.
type CommandHandler func(data *[]byte) error

// CommandRegistry maps host commands to handlers.
type CommandRegistry struct {
	handlers map[MessageID]CommandHandler
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{handlers: make(map[MessageID]CommandHandler)}
}

// Handle installs the handler for command id.
func (r *CommandRegistry) Handle(id MessageID, h CommandHandler) error {
	m, ok := lookupMessage(uint16(id))
	if !ok {
		return ErrUnknownMessage
	}
	if m.Response {
		return ErrNotACommand
	}
	r.handlers[id] = h
	return nil
}

// Dispatch runs the handler for id. Its signature matches
// protocol.Handler so a registry plugs straight into a Link.
func (r *CommandRegistry) Dispatch(id uint16, data *[]byte) error {
	h, ok := r.handlers[MessageID(id)]
	if !ok {
		return ErrUnknownMessage
	}
	return h(data)
}

// EncodeSnapshot writes the snapshot message arguments.
func EncodeSnapshot(out protocol.OutputBuffer, s Snapshot) {
	for _, v := range [...]uint32{
		s.Tick, s.PSC, s.ARR, s.RCR,
		s.CCR[0], s.CCR[1], s.CCR[2], s.CCR[3],
		s.Remaining, uint32(s.Channel), uint32(s.Timer), s.TransferErrors,
		uint32(s.ADCRaw), s.ADCMilliVolts,
	} {
		protocol.EncodeVLQUint(out, v)
	}
}

// DecodeSnapshot reads the arguments written by EncodeSnapshot.
func DecodeSnapshot(data *[]byte) (Snapshot, error) {
	var v [14]uint32
	for i := range v {
		x, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return Snapshot{}, err
		}
		v[i] = x
	}
	return Snapshot{
		Tick:           v[0],
		PSC:            v[1],
		ARR:            v[2],
		RCR:            v[3],
		CCR:            [4]uint32{v[4], v[5], v[6], v[7]},
		Remaining:      v[8],
		Channel:        ChannelState(v[9]),
		Timer:          TimerState(v[10]),
		TransferErrors: v[11],
		ADCRaw:         uint16(v[12]),
		ADCMilliVolts:  v[13],
	}, nil
}

// Status is the short state report.
type Status struct {
	Channel ChannelState
	Timer   TimerState
	Errors  uint32
	Running bool
}

func EncodeStatus(out protocol.OutputBuffer, s Status) {
	protocol.EncodeVLQUint(out, uint32(s.Channel))
	protocol.EncodeVLQUint(out, uint32(s.Timer))
	protocol.EncodeVLQUint(out, s.Errors)
	protocol.EncodeVLQUint(out, boolBit(s.Running))
}

func DecodeStatus(data *[]byte) (Status, error) {
	var v [4]uint32
	for i := range v {
		x, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return Status{}, err
		}
		v[i] = x
	}
	return Status{
		Channel: ChannelState(v[0]),
		Timer:   TimerState(v[1]),
		Errors:  v[2],
		Running: v[3] != 0,
	}, nil
}

// EncodeIdentify writes an identify request.
func EncodeIdentify(out protocol.OutputBuffer, offset uint32, count uint8) {
	protocol.EncodeVLQUint(out, offset)
	protocol.EncodeVLQUint(out, uint32(count))
}

// DecodeIdentifyResponse returns the offset and a copy of the chunk.
func DecodeIdentifyResponse(data *[]byte) (uint32, []byte, error) {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return 0, nil, err
	}
	chunk, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return 0, nil, err
	}
	return offset, append([]byte(nil), chunk...), nil
}
