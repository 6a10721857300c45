package decode

import (
	"errors"
	"testing"

	"wavedma/core"
	"wavedma/protocol"
)

func frame(t *testing.T, seq uint8, body func(protocol.OutputBuffer)) []byte {
	t.Helper()
	out := protocol.NewScratchOutput()
	body(out)
	f, err := protocol.AppendFrame(nil, protocol.SeqBase|seq, out.Result())
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestStream(t *testing.T) {
	var data []byte
	data = append(data, frame(t, 1, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(core.MsgStatus))
		core.EncodeStatus(out, core.Status{Channel: core.StateEnabled, Timer: core.TimerRunning, Errors: 2, Running: true})
	})...)
	data = append(data, 0x01, 0x02, protocol.SyncByte)
	data = append(data, frame(t, 2, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(core.MsgIdentifyResponse))
		protocol.EncodeVLQUint(out, 40)
		protocol.EncodeVLQBytes(out, []byte{0x78, 0x01})
	})...)
	data = append(data, frame(t, 3, func(protocol.OutputBuffer) {})...)

	frames, dropped := Stream(data)
	if dropped != 1 {
		t.Errorf("dropped = %d", dropped)
	}
	if len(frames) != 3 {
		t.Fatalf("frames = %+v", frames)
	}

	st := frames[0].Messages[0]
	if got := st.String(); got != "status channel=2 timer=2 errors=2 running=1" {
		t.Errorf("status = %q", got)
	}
	id := frames[1].Messages[0]
	if id.Name != "identify_response" || id.Fields[0].Value != 40 || string(id.Fields[1].Bytes) != "\x78\x01" {
		t.Errorf("identify_response = %+v", id)
	}
	if id.String() != "identify_response offset=40 data=7801" {
		t.Errorf("identify_response = %q", id.String())
	}
	if !frames[2].Ack || frames[2].Seq != 3 || len(frames[2].Messages) != 0 {
		t.Errorf("ack frame = %+v", frames[2])
	}
}

func TestPayloadErrors(t *testing.T) {
	testCases := []struct {
		name    string
		payload []byte
		want    error
	}{
		{"unknown id", []byte{0x7F}, core.ErrUnknownMessage},
		{"truncated status", []byte{byte(core.MsgStatus), 2}, protocol.ErrTruncated},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Payload(tc.payload); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCommand(t *testing.T) {
	f, err := Command("identify", 5, 80, 40)
	if err != nil {
		t.Fatal(err)
	}
	frames, _ := Stream(f)
	if len(frames) != 1 || frames[0].Seq != 5 {
		t.Fatalf("frames = %+v", frames)
	}
	m := frames[0].Messages[0]
	if m.String() != "identify offset=80 count=40" {
		t.Errorf("decoded %q", m.String())
	}

	if _, err := Command("status", 0); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("response accepted as command: %v", err)
	}
	if _, err := Command("get_status", 0, 1); !errors.Is(err, ErrArgCount) {
		t.Errorf("extra argument accepted: %v", err)
	}
}
