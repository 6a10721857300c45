// Package tinycompress writes zlib streams made of stored DEFLATE blocks.
// The output is readable by any zlib decoder; it trades ratio for a
// writer that needs one fixed buffer and no tables, which suits firmware.
package tinycompress

import (
	"bytes"
	"errors"
	"hash"
	"hash/adler32"
	"io"
)

// MaxBlock is the largest stored block DEFLATE allows.
const MaxBlock = 0xFFFF

var ErrClosed = errors.New("tinycompress: write after close")

// Writer is an io.WriteCloser producing a zlib stream.
type Writer struct {
	out        io.Writer
	block      []byte
	adler      hash.Hash32
	headerDone bool
	closed     bool
	err        error
}

// NewWriter returns a writer using the largest block size.
func NewWriter(w io.Writer) *Writer {
	return NewWriterSize(w, MaxBlock)
}

// NewWriterSize buffers at most size bytes before emitting a block. The
// buffer is allocated once, up front.
func NewWriterSize(w io.Writer, size int) *Writer {
	if size <= 0 || size > MaxBlock {
		size = MaxBlock
	}
	return &Writer{
		out:   w,
		block: make([]byte, 0, size),
		adler: adler32.New(),
	}
}

func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	n := 0
	for len(p) > 0 {
		if len(w.block) == cap(w.block) {
			if err := w.flush(false); err != nil {
				return n, err
			}
		}
		k := copy(w.block[len(w.block):cap(w.block)], p)
		w.block = w.block[:len(w.block)+k]
		w.adler.Write(p[:k])
		p = p[k:]
		n += k
	}
	return n, nil
}

// Close writes the final block and the Adler-32 trailer. It does not close
// the underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return w.err
	}
	w.closed = true
	if err := w.flush(true); err != nil {
		return err
	}
	sum := w.adler.Sum32()
	return w.write([]byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)})
}

func (w *Writer) flush(final bool) error {
	if !w.headerDone {
		// CMF 0x78: deflate, 32K window. FLG 0x01 makes the pair a
		// multiple of 31 with no dictionary and fastest level.
		if err := w.write([]byte{0x78, 0x01}); err != nil {
			return err
		}
		w.headerDone = true
	}
	var bfinal byte
	if final {
		bfinal = 1
	}
	n := uint16(len(w.block))
	hdr := []byte{bfinal, byte(n), byte(n >> 8), byte(^n), byte(^n >> 8)}
	if err := w.write(hdr); err != nil {
		return err
	}
	if err := w.write(w.block); err != nil {
		return err
	}
	w.block = w.block[:0]
	return nil
}

func (w *Writer) write(p []byte) error {
	if w.err != nil {
		return w.err
	}
	_, w.err = w.out.Write(p)
	return w.err
}

// Compress returns data as a complete zlib stream.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	size := len(data)
	if size == 0 {
		size = 1
	}
	w := NewWriterSize(&buf, size)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
