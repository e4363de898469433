package bitio

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bitsWrite struct {
	val  uint32
	bits int
}

func TestWriter_WriteBits(t *testing.T) {
	tests := []struct {
		name     string
		writes   []bitsWrite
		expected []byte
	}{
		{
			name:     "single byte",
			writes:   []bitsWrite{{0xAB, 8}},
			expected: []byte{0xAB},
		},
		{
			name:     "two nibbles",
			writes:   []bitsWrite{{0xA, 4}, {0xB, 4}},
			expected: []byte{0xAB},
		},
		{
			name:     "mixed sizes",
			writes:   []bitsWrite{{0x7, 3}, {0x15, 5}},
			expected: []byte{0xF5},
		},
		{
			name:     "partial byte is zero padded",
			writes:   []bitsWrite{{0x5, 3}},
			expected: []byte{0xA0},
		},
		{
			name:     "wide value",
			writes:   []bitsWrite{{0xDEADBEEF, 32}},
			expected: []byte{0xDE, 0xAD, 0xBE, 0xEF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter()
			total := 0
			for _, wr := range tt.writes {
				w.WriteBits(wr.val, wr.bits)
				total += wr.bits
			}
			assert.Equal(t, total, w.BitLen())
			assert.Equal(t, tt.expected, w.Bytes())
		})
	}
}

func TestWriter_WriteBit(t *testing.T) {
	w := NewWriter()
	for _, b := range []int{1, 0, 1, 0, 1, 0, 1, 0, 1} {
		w.WriteBit(b)
	}
	assert.Equal(t, 9, w.BitLen())
	assert.Equal(t, []byte{0xAA, 0x80}, w.Bytes())

	w.Align()
	assert.Equal(t, 16, w.BitLen())
}

func TestBitRoundTrip(t *testing.T) {
	w := NewWriter()
	values := []bitsWrite{
		{0x7, 3},
		{0x1F, 5},
		{0xABCD, 16},
		{0x1, 1},
		{0x0, 1},
		{0x3FF, 10},
		{0x12345678, 32},
	}
	for _, v := range values {
		w.WriteBits(v.val, v.bits)
	}
	w.WriteZeros(40)

	r := NewReader(w.Bytes())
	for i, v := range values {
		got, err := r.ReadBits(v.bits)
		require.NoError(t, err)
		assert.Equal(t, v.val, got, "value %d", i)
	}
	zeros, err := r.ReadBits(32)
	require.NoError(t, err)
	assert.Zero(t, zeros)
}

func TestReader_Exhaustion(t *testing.T) {
	r := NewReader([]byte{0xF0})

	v, err := r.ReadBits(4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xF), v)

	_, err = r.ReadBits(5)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 4, r.BitPos(), "failed read must not move the cursor")
	assert.Equal(t, 4, r.Remaining())

	for i := 0; i < 4; i++ {
		bit, err := r.ReadBit()
		require.NoError(t, err)
		assert.Zero(t, bit)
	}
	_, err = r.ReadBit()
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestReader_SeekAlign(t *testing.T) {
	r := NewReader([]byte{0x0F, 0x80})
	r.ReadBit()
	r.Align()
	assert.Equal(t, 8, r.BitPos())
	bit, err := r.ReadBit()
	require.NoError(t, err)
	assert.Equal(t, 1, bit)

	require.NoError(t, r.Seek(4))
	v, err := r.ReadBits(4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xF), v)

	assert.ErrorIs(t, r.Seek(17), ErrExhausted)
}

func TestByteReaderWriter(t *testing.T) {
	var buf bytes.Buffer
	bw := NewByteWriter(&buf)
	require.NoError(t, bw.WriteUint16(0x1234))
	require.NoError(t, bw.WriteUint32(0xABCDEF01))
	require.NoError(t, bw.WriteBytes([]byte{9, 8, 7}))
	assert.Equal(t, int64(9), bw.Offset())
	require.NoError(t, bw.Flush())

	br := NewByteReader(bytes.NewReader(buf.Bytes()))
	v16, err := br.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), v16)

	v32, err := br.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xABCDEF01), v32)

	n, err := br.Skip(1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(7), br.Offset())

	data, err := br.ReadBytes(4)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, []byte{8, 7}, data)
	assert.Equal(t, int64(9), br.Offset())
}
