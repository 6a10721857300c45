package protocol

import "testing"

func TestVLQRoundTrip(t *testing.T) {
	values := []int32{0, 1, -1, 31, -32, 95, 96, -33, 127, 128, 4095, 12288,
		-4097, 1 << 20, -(1 << 20), 1<<31 - 1, -1 << 31}

	for _, v := range values {
		out := NewScratchOutput()
		EncodeVLQInt(out, v)
		data := out.Result()
		got, err := DecodeVLQInt(&data)
		if err != nil {
			t.Errorf("decode %d: %v", v, err)
			continue
		}
		if got != v {
			t.Errorf("round trip %d -> %v -> %d", v, out.Result(), got)
		}
		if len(data) != 0 {
			t.Errorf("value %d left %d bytes", v, len(data))
		}
	}
}

func TestVLQEncodedLength(t *testing.T) {
	testCases := []struct {
		v    int32
		want int
	}{
		{0, 1},
		{95, 1},
		{-32, 1},
		{96, 2},
		{-33, 2},
		{8499, 2},
		{12287, 2},
		{12288, 3},
		{-1 << 31, 5},
	}
	for _, tc := range testCases {
		out := NewScratchOutput()
		EncodeVLQInt(out, tc.v)
		if n := out.CurPosition(); n != tc.want {
			t.Errorf("EncodeVLQInt(%d) used %d bytes, want %d", tc.v, n, tc.want)
		}
	}
}

func TestVLQUintAboveInt32(t *testing.T) {
	out := NewScratchOutput()
	EncodeVLQUint(out, 0xFFFFFFF0)
	data := out.Result()
	got, err := DecodeVLQUint(&data)
	if err != nil || got != 0xFFFFFFF0 {
		t.Errorf("got 0x%X, %v", got, err)
	}
}

func TestVLQTruncated(t *testing.T) {
	data := []byte{0x81}
	if _, err := DecodeVLQInt(&data); err != ErrTruncated {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
	if len(data) != 1 {
		t.Errorf("truncated decode consumed input")
	}

	var empty []byte
	if _, err := DecodeVLQUint(&empty); err != ErrTruncated {
		t.Errorf("empty input err = %v", err)
	}
}

func TestVLQBytes(t *testing.T) {
	out := NewScratchOutput()
	EncodeVLQBytes(out, []byte("tim2"))
	EncodeVLQUint(out, 7)
	data := out.Result()

	b, err := DecodeVLQBytes(&data)
	if err != nil || string(b) != "tim2" {
		t.Fatalf("DecodeVLQBytes = %q, %v", b, err)
	}
	v, err := DecodeVLQUint(&data)
	if err != nil || v != 7 {
		t.Errorf("trailing value = %d, %v", v, err)
	}

	short := []byte{5, 'a'}
	if _, err := DecodeVLQBytes(&short); err != ErrTruncated {
		t.Errorf("short string err = %v", err)
	}
}
