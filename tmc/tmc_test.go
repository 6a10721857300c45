package tmc

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// referenceCRC8 is the bitwise algorithm from the TMC2209 datasheet.
func referenceCRC8(data []byte) uint8 {
	var c uint8
	for _, b := range data {
		for i := 0; i < 8; i++ {
			if (c>>7)^(b&1) != 0 {
				c = c<<1 ^ 0x07
			} else {
				c <<= 1
			}
			b >>= 1
		}
	}
	return c
}

func TestCRC8MatchesReference(t *testing.T) {
	inputs := [][]byte{
		{0x05, 0x00, 0x80, 0x00, 0x00, 0x00, 0x40},
		{0x05, 0x03, 0x90, 0x00, 0x01, 0x1F, 0x10},
		{0x05, 0x00, 0x06},
		{0xFF, 0xFF, 0xFF},
		{},
	}
	for _, in := range inputs {
		if got, want := CRC8(in), referenceCRC8(in); got != want {
			t.Errorf("CRC8(% X) = 0x%02X, reference 0x%02X", in, got, want)
		}
	}
}

func TestWriteFrame(t *testing.T) {
	testCases := []struct {
		name  string
		addr  uint8
		reg   uint8
		value uint32
		want  [FrameLen]byte
	}{
		{"gconf pdn_disable", 0, RegGCONF, GconfPdnDisable,
			[FrameLen]byte{0x05, 0x00, 0x80, 0x00, 0x00, 0x00, 0x40, 0x47}},
		{"gconf pdn+mstep", 0, RegGCONF, GconfPdnDisable | GconfMstepRegSelect,
			[FrameLen]byte{0x05, 0x00, 0x80, 0x00, 0x00, 0x00, 0xC0, 0x40}},
		{"ihold_irun addr 3", 3, RegIHOLD_IRUN, 0x00011F10,
			[FrameLen]byte{0x05, 0x03, 0x90, 0x00, 0x01, 0x1F, 0x10, 0x45}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := WriteFrame(tc.addr, tc.reg, tc.value); got != tc.want {
				t.Errorf("WriteFrame = % X, want % X", got, tc.want)
			}
		})
	}
}

func TestGConfValue(t *testing.T) {
	g := GConf{PDNDisable: true, MstepRegister: true, MultistepFilt: true}
	if v := g.Value(); v != 0x1C0 {
		t.Errorf("Value() = 0x%X, want 0x1C0", v)
	}
}

type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) { return len(p) - 1, nil }

func TestSendGConf(t *testing.T) {
	var buf bytes.Buffer
	if err := SendGConf(&buf, 0, GConf{PDNDisable: true}); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != FrameLen || buf.Bytes()[7] != 0x47 {
		t.Errorf("sent % X", buf.Bytes())
	}
	if err := SendGConf(shortWriter{}, 0, GConf{}); !errors.Is(err, io.ErrShortWrite) {
		t.Errorf("short write err = %v", err)
	}
}
