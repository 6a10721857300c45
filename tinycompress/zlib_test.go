package tinycompress

import (
	"bytes"
	"compress/zlib"
	"errors"
	"io"
	"testing"
)

func inflate(t *testing.T, stream []byte) []byte {
	t.Helper()
	r, err := zlib.NewReader(bytes.NewReader(stream))
	if err != nil {
		t.Fatalf("zlib header: %v", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	return out
}

func TestRoundTrip(t *testing.T) {
	long := bytes.Repeat([]byte("duty "), 30000)
	testCases := []struct {
		name  string
		data  []byte
		block int
	}{
		{"empty", nil, 0},
		{"short", []byte(`{"version":"wavedma"}`), 0},
		{"small blocks", []byte("0123456789abcdef0123"), 7},
		{"over one block", long, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := NewWriterSize(&buf, tc.block)
			for _, chunk := range [][]byte{tc.data[:len(tc.data)/2], tc.data[len(tc.data)/2:]} {
				if _, err := w.Write(chunk); err != nil {
					t.Fatal(err)
				}
			}
			if err := w.Close(); err != nil {
				t.Fatal(err)
			}
			if got := inflate(t, buf.Bytes()); !bytes.Equal(got, tc.data) {
				t.Errorf("inflated %d bytes, want %d", len(got), len(tc.data))
			}
		})
	}
}

func TestCompress(t *testing.T) {
	data := []byte("identify")
	stream, err := Compress(data)
	if err != nil {
		t.Fatal(err)
	}
	// header + block header + payload + adler
	if len(stream) != 2+5+len(data)+4 {
		t.Errorf("stream length = %d", len(stream))
	}
	if got := inflate(t, stream); string(got) != "identify" {
		t.Errorf("got %q", got)
	}
}

func TestWriteAfterClose(t *testing.T) {
	w := NewWriter(io.Discard)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v", err)
	}
}
