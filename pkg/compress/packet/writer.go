package packet

import (
	"errors"
	"io"

	"github.com/jpfielding/bpe.go/pkg/compress/bitio"
)

// Writer emits length-prefixed packets
type Writer struct {
	w     *bitio.ByteWriter
	count int
	hdr   []byte
}

// NewWriter returns a packet writer over w
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bitio.NewByteWriter(w)}
}

// WritePacket writes one header and its payload
func (pw *Writer) WritePacket(data []byte) error {
	hdr, err := AppendVBAS(pw.hdr[:0], len(data))
	if err != nil {
		return err
	}
	pw.hdr = hdr
	if err := pw.w.WriteBytes(hdr); err != nil {
		return err
	}
	if err := pw.w.WriteBytes(data); err != nil {
		return err
	}
	pw.count++
	return nil
}

// Count returns the number of packets written
func (pw *Writer) Count() int {
	return pw.count
}

// Offset returns the bytes written so far
func (pw *Writer) Offset() int64 {
	return pw.w.Offset()
}

// Flush writes any buffered data
func (pw *Writer) Flush() error {
	return pw.w.Flush()
}

// WriteAll writes the payload of every packet of the space in progression
// order and returns the packet count.
func WriteAll(w io.Writer, order ProgressionOrder, s *Space, payload func(Key) []byte) (int, error) {
	pw := NewWriter(w)
	err := Walk(order, s, func(k Key) error {
		return pw.WritePacket(payload(k))
	})
	if err != nil {
		return pw.Count(), err
	}
	return pw.Count(), pw.Flush()
}

// ReadAll replays the traversal over r and hands each packet to fn. A
// payload cut short by the end of input is delivered as is and ends the
// walk; the returned flag reports such truncation.
func ReadAll(r io.Reader, order ProgressionOrder, s *Space, fn func(Key, []byte) error) (bool, error) {
	br := bitio.NewByteReader(r)
	truncated := false
	err := Walk(order, s, func(k Key) error {
		n, err := ReadVBAS(br)
		if err != nil {
			if isEOF(err) {
				truncated = true
				return errStop
			}
			return err
		}
		data, err := br.ReadBytes(n)
		if err != nil {
			truncated = true
			if len(data) > 0 {
				if ferr := fn(k, data); ferr != nil {
					return ferr
				}
			}
			return errStop
		}
		return fn(k, data)
	})
	if errors.Is(err, errStop) {
		err = nil
	}
	return truncated, err
}
