// Package bitio provides the bit and byte channels shared by the bit-plane
// coder, the packetizer and the file codec. Bits are packed MSB first.
package bitio

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// ErrExhausted signals that a bit source ended before the requested bits
// were available. Coders treat it as truncation, never as corruption.
var ErrExhausted = errors.New("bitio: bit source exhausted")

// Writer accumulates bits into an in-memory, growable byte slice.
type Writer struct {
	buf  []byte
	acc  uint64 // pending bits, right aligned
	bits int    // number of pending bits in acc (0-7 between calls)
}

// NewWriter creates an empty bit writer
func NewWriter() *Writer {
	return &Writer{}
}

// WriteBit writes the low bit of bit
func (w *Writer) WriteBit(bit int) {
	w.acc = (w.acc << 1) | uint64(bit&1)
	w.bits++
	if w.bits == 8 {
		w.buf = append(w.buf, byte(w.acc))
		w.acc = 0
		w.bits = 0
	}
}

// WriteBits writes the n low bits of val, most significant first (n <= 32)
func (w *Writer) WriteBits(val uint32, n int) {
	if n <= 0 {
		return
	}
	w.acc = (w.acc << n) | (uint64(val) & ((1 << n) - 1))
	w.bits += n
	for w.bits >= 8 {
		shift := w.bits - 8
		w.buf = append(w.buf, byte(w.acc>>shift))
		w.bits = shift
		w.acc &= (1 << shift) - 1
	}
}

// WriteZeros writes n zero bits
func (w *Writer) WriteZeros(n int) {
	for n > 32 {
		w.WriteBits(0, 32)
		n -= 32
	}
	w.WriteBits(0, n)
}

// BitLen returns the number of bits written so far
func (w *Writer) BitLen() int {
	return len(w.buf)*8 + w.bits
}

// Align pads with zero bits up to the next byte boundary
func (w *Writer) Align() {
	if w.bits > 0 {
		w.WriteBits(0, 8-w.bits)
	}
}

// Bytes returns the written data padded with zeros to a byte boundary.
// The writer itself is left untouched.
func (w *Writer) Bytes() []byte {
	out := make([]byte, len(w.buf), len(w.buf)+1)
	copy(out, w.buf)
	if w.bits > 0 {
		out = append(out, byte(w.acc<<(8-w.bits)))
	}
	return out
}

// Reader reads bits from a byte slice and tracks its bit position.
type Reader struct {
	data []byte
	pos  int // bit position
}

// NewReader creates a bit reader over data
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// ReadBit reads a single bit
func (r *Reader) ReadBit() (int, error) {
	if r.pos >= len(r.data)*8 {
		return 0, ErrExhausted
	}
	bit := int(r.data[r.pos>>3]>>(7-r.pos&7)) & 1
	r.pos++
	return bit, nil
}

// ReadBits reads n bits (n <= 32). On exhaustion the position is left
// where it was, so callers can stop cleanly at the last complete symbol.
func (r *Reader) ReadBits(n int) (uint32, error) {
	if n <= 0 {
		return 0, nil
	}
	if r.pos+n > len(r.data)*8 {
		return 0, ErrExhausted
	}
	var v uint32
	for i := 0; i < n; i++ {
		v = (v << 1) | uint32(r.data[r.pos>>3]>>(7-r.pos&7))&1
		r.pos++
	}
	return v, nil
}

// BitPos returns the current bit position
func (r *Reader) BitPos() int {
	return r.pos
}

// Remaining returns the number of unread bits
func (r *Reader) Remaining() int {
	return len(r.data)*8 - r.pos
}

// Seek moves to an absolute bit position
func (r *Reader) Seek(bit int) error {
	if bit < 0 || bit > len(r.data)*8 {
		return ErrExhausted
	}
	r.pos = bit
	return nil
}

// Align discards bits to reach the next byte boundary
func (r *Reader) Align() {
	r.pos = (r.pos + 7) &^ 7
}

// ByteReader provides buffered big-endian reads and counts consumed bytes.
type ByteReader struct {
	r   *bufio.Reader
	off int64
}

// NewByteReader creates a new byte reader
func NewByteReader(r io.Reader) *ByteReader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &ByteReader{r: br}
}

// Offset returns the number of bytes consumed so far
func (b *ByteReader) Offset() int64 {
	return b.off
}

// ReadByte reads a single byte
func (b *ByteReader) ReadByte() (byte, error) {
	c, err := b.r.ReadByte()
	if err != nil {
		return 0, err
	}
	b.off++
	return c, nil
}

// ReadUint16 reads a big-endian uint16
func (b *ByteReader) ReadUint16() (uint16, error) {
	v, err := b.readN(2)
	return uint16(v), err
}

// ReadUint32 reads a big-endian uint32
func (b *ByteReader) ReadUint32() (uint32, error) {
	v, err := b.readN(4)
	return uint32(v), err
}

func (b *ByteReader) readN(n int) (uint64, error) {
	var val uint64
	for i := 0; i < n; i++ {
		c, err := b.ReadByte()
		if err != nil {
			return 0, err
		}
		val = (val << 8) | uint64(c)
	}
	return val, nil
}

// ReadBytes reads up to n bytes. A short read returns the bytes that were
// available together with io.ErrUnexpectedEOF.
func (b *ByteReader) ReadBytes(n int) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, min(n, 1<<16)))
	got, err := io.CopyN(buf, b.r, int64(n))
	b.off += got
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return buf.Bytes(), err
}

// Skip discards n bytes and reports how many were actually skipped
func (b *ByteReader) Skip(n int) (int, error) {
	got, err := b.r.Discard(n)
	b.off += int64(got)
	return got, err
}

// ByteWriter provides buffered big-endian writes and counts written bytes.
type ByteWriter struct {
	w   *bufio.Writer
	off int64
}

// NewByteWriter creates a new byte writer
func NewByteWriter(w io.Writer) *ByteWriter {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}
	return &ByteWriter{w: bw}
}

// Offset returns the number of bytes written so far
func (b *ByteWriter) Offset() int64 {
	return b.off
}

// WriteByte writes a single byte
func (b *ByteWriter) WriteByte(c byte) error {
	if err := b.w.WriteByte(c); err != nil {
		return err
	}
	b.off++
	return nil
}

// WriteUint16 writes a big-endian uint16
func (b *ByteWriter) WriteUint16(v uint16) error {
	if err := b.WriteByte(byte(v >> 8)); err != nil {
		return err
	}
	return b.WriteByte(byte(v))
}

// WriteUint32 writes a big-endian uint32
func (b *ByteWriter) WriteUint32(v uint32) error {
	for i := 24; i >= 0; i -= 8 {
		if err := b.WriteByte(byte(v >> i)); err != nil {
			return err
		}
	}
	return nil
}

// WriteBytes writes multiple bytes
func (b *ByteWriter) WriteBytes(data []byte) error {
	n, err := b.w.Write(data)
	b.off += int64(n)
	return err
}

// Flush flushes the buffer
func (b *ByteWriter) Flush() error {
	return b.w.Flush()
}
