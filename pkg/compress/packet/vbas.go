// Package packet writes and reads the packet layer of a coded file: each
// packet is a VBAS length header followed by that many bytes of one
// stream, and packets follow one of the progression orders.
package packet

import (
	"errors"
	"fmt"
	"io"

	"github.com/jpfielding/bpe.go/pkg/compress/bpe"
)

// ErrProtocol reports a malformed packet header. It matches
// bpe.ErrProtocol with errors.Is.
var ErrProtocol = fmt.Errorf("packet: %w", bpe.ErrProtocol)

const (
	MaxHeaderBytes = 5
	MaxLength      = 1<<31 - 1
)

// AppendVBAS appends the header for a packet of n bytes: big-endian groups
// of 7 bits, the high bit set on every byte but the last.
func AppendVBAS(dst []byte, n int) ([]byte, error) {
	if n < 0 || n > MaxLength {
		return dst, fmt.Errorf("%w: packet length %d outside 0..%d", ErrProtocol, n, MaxLength)
	}
	var groups [MaxHeaderBytes]byte
	i := len(groups) - 1
	groups[i] = byte(n & 0x7F)
	for n >>= 7; n > 0; n >>= 7 {
		i--
		groups[i] = byte(n&0x7F) | 0x80
	}
	return append(dst, groups[i:]...), nil
}

// HeaderLen returns the size of the header of an n byte packet
func HeaderLen(n int) int {
	size := 1
	for n >>= 7; n > 0; n >>= 7 {
		size++
	}
	return size
}

// ReadVBAS reads one packet header. A clean end of input before the first
// byte returns io.EOF.
func ReadVBAS(r io.ByteReader) (int, error) {
	var v uint64
	for i := 0; i < MaxHeaderBytes; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if i > 0 && errors.Is(err, io.EOF) {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		v = v<<7 | uint64(b&0x7F)
		if b&0x80 == 0 {
			if v > MaxLength {
				return 0, fmt.Errorf("%w: packet length %d exceeds %d", ErrProtocol, v, MaxLength)
			}
			return int(v), nil
		}
	}
	return 0, fmt.Errorf("%w: packet header longer than %d bytes", ErrProtocol, MaxHeaderBytes)
}
