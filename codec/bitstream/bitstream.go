// Package bitstream implements the frame packing stage: bit-granular
// writing and reading, the 16-bit frame header, a CRC-8 trailer and the
// packer that assembles the final byte stream.
package bitstream

import "fmt"

// Writer accumulates bits most-significant first into a growing byte
// buffer. The zero value is ready to use.
type Writer struct {
	buf  []byte
	bits int
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// WriteBit appends a single bit.
func (w *Writer) WriteBit(b uint32) error {
	if b > 1 {
		return fmt.Errorf("bitstream: bit value out of range: %d", b)
	}

	if w.bits&7 == 0 {
		w.buf = append(w.buf, 0)
	}

	if b != 0 {
		w.buf[w.bits>>3] |= 0x80 >> uint(w.bits&7)
	}
	w.bits++

	return nil
}

// WriteBits appends the low n bits of v, most significant first.
func (w *Writer) WriteBits(v uint32, n int) error {
	if n < 0 || n > 32 {
		return fmt.Errorf("bitstream: bit count out of range: %d", n)
	}

	if n < 32 && v>>uint(n) != 0 {
		return fmt.Errorf("bitstream: value %d does not fit in %d bits", v, n)
	}

	for i := n - 1; i >= 0; i-- {
		if err := w.WriteBit(v >> uint(i) & 1); err != nil {
			return err
		}
	}

	return nil
}

// Len returns the number of bits written.
func (w *Writer) Len() int {
	return w.bits
}

// Bytes returns the written bits padded with zeros to a byte boundary.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Reset discards all written bits.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.bits = 0
}

// Reader consumes bits most-significant first from a byte buffer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader returns a Reader over buf. The buffer is not copied.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// ReadBit consumes and returns the next bit.
func (r *Reader) ReadBit() (uint32, error) {
	if r.pos >= len(r.buf)*8 {
		return 0, ErrShortBuffer
	}

	b := uint32(r.buf[r.pos>>3]) >> uint(7-r.pos&7) & 1
	r.pos++

	return b, nil
}

// ReadBits consumes n bits and returns them right-aligned.
func (r *Reader) ReadBits(n int) (uint32, error) {
	if n < 0 || n > 32 {
		return 0, fmt.Errorf("bitstream: bit count out of range: %d", n)
	}

	var v uint32
	for i := 0; i < n; i++ {
		b, err := r.ReadBit()
		if err != nil {
			return 0, err
		}
		v = v<<1 | b
	}

	return v, nil
}

// Remaining returns the number of unread bits.
func (r *Reader) Remaining() int {
	return len(r.buf)*8 - r.pos
}
