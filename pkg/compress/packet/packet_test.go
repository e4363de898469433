package packet

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/jpfielding/bpe.go/pkg/compress/bpe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVBAS_RoundTrip(t *testing.T) {
	tests := []struct {
		n    int
		want []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7F}},
		{128, []byte{0x81, 0x00}},
		{300, []byte{0x82, 0x2C}},
		{16383, []byte{0xFF, 0x7F}},
		{16384, []byte{0x81, 0x80, 0x00}},
		{MaxLength, []byte{0x87, 0xFF, 0xFF, 0xFF, 0x7F}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.n), func(t *testing.T) {
			hdr, err := AppendVBAS(nil, tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, hdr)

			got, err := ReadVBAS(bytes.NewReader(hdr))
			require.NoError(t, err)
			assert.Equal(t, tt.n, got)
		})
	}
}

func TestVBAS_Rejects(t *testing.T) {
	_, err := AppendVBAS(nil, MaxLength+1)
	assert.ErrorIs(t, err, ErrProtocol)
	assert.ErrorIs(t, err, bpe.ErrProtocol)
	_, err = AppendVBAS(nil, -1)
	assert.ErrorIs(t, err, ErrProtocol)

	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"value 2^31", []byte{0x88, 0x80, 0x80, 0x80, 0x00}, ErrProtocol},
		{"six bytes", []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}, ErrProtocol},
		{"empty", nil, nil},
		{"cut mid header", []byte{0x81}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadVBAS(bytes.NewReader(tt.in))
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}

	_, err = ReadVBAS(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
	_, err = ReadVBAS(bytes.NewReader([]byte{0x81}))
	assert.True(t, isEOF(err))
}

// smallSpace has 2 components, 2 segments of 2 levels, and 2 layers. The
// second segment has a single gaggle per level.
func smallSpace() *Space {
	c := Component{Levels: 2, Gaggles: [][]int{{2, 2}, {1, 1}}}
	return &Space{Layers: 2, Components: []Component{c, c}}
}

func keyNames(keys []Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

func TestWalk_Orders(t *testing.T) {
	s := &Space{
		Layers:     2,
		Components: []Component{{Levels: 2, Gaggles: [][]int{{1, 1}}}},
	}
	tests := []struct {
		order ProgressionOrder
		want  []string
	}{
		{SegmentSequential, []string{"c0/s0/r0/g0/l0", "c0/s0/r0/g0/l1", "c0/s0/r1/g0/l0", "c0/s0/r1/g0/l1"}},
		{LRCP, []string{"c0/s0/r0/g0/l0", "c0/s0/r1/g0/l0", "c0/s0/r0/g0/l1", "c0/s0/r1/g0/l1"}},
		{RLCP, []string{"c0/s0/r0/g0/l0", "c0/s0/r0/g0/l1", "c0/s0/r1/g0/l0", "c0/s0/r1/g0/l1"}},
		{RPCL, []string{"c0/s0/r0/g0/l0", "c0/s0/r0/g0/l1", "c0/s0/r1/g0/l0", "c0/s0/r1/g0/l1"}},
		{PCRL, []string{"c0/s0/r0/g0/l0", "c0/s0/r0/g0/l1", "c0/s0/r1/g0/l0", "c0/s0/r1/g0/l1"}},
		{CPRL, []string{"c0/s0/r0/g0/l0", "c0/s0/r0/g0/l1", "c0/s0/r1/g0/l0", "c0/s0/r1/g0/l1"}},
	}
	for _, tt := range tests {
		t.Run(tt.order.String(), func(t *testing.T) {
			keys, err := Keys(tt.order, s)
			require.NoError(t, err)
			assert.Equal(t, tt.want, keyNames(keys))
		})
	}
}

func TestWalk_Nesting(t *testing.T) {
	s := smallSpace()
	total := 2 * 2 * (2*2 + 1*2) // components * layers * (seg0 + seg1 packets)
	for order := SegmentSequential; order <= CPRL; order++ {
		t.Run(order.String(), func(t *testing.T) {
			keys, err := Keys(order, s)
			require.NoError(t, err)
			require.Len(t, keys, total)

			seen := map[Key]bool{}
			for _, k := range keys {
				assert.False(t, seen[k], "duplicate %s", k)
				seen[k] = true
			}
			assert.False(t, seen[Key{Segment: 1, Gaggle: 1}], "missing gaggle emitted")
		})
	}

	keys, err := Keys(LRCP, s)
	require.NoError(t, err)
	// every layer 0 packet precedes every layer 1 packet
	for i := 1; i < len(keys); i++ {
		assert.GreaterOrEqual(t, keys[i].Layer, keys[i-1].Layer)
	}

	keys, err = Keys(CPRL, s)
	require.NoError(t, err)
	for i := 1; i < len(keys); i++ {
		assert.GreaterOrEqual(t, keys[i].Component, keys[i-1].Component)
	}

	keys, err = Keys(PCRL, s)
	require.NoError(t, err)
	assert.Equal(t, "c0/s0/r0/g0/l0", keys[0].String())
	assert.Equal(t, "c0/s0/r0/g0/l1", keys[1].String())
	assert.Equal(t, "c0/s0/r1/g0/l0", keys[2].String())
	assert.Equal(t, "c1/s0/r0/g0/l0", keys[4].String())
	assert.Equal(t, "c0/s0/r0/g1/l0", keys[8].String())

	keys, err = Keys(SegmentSequential, s)
	require.NoError(t, err)
	assert.Equal(t, "c0/s0/r0/g0/l0", keys[0].String())
	assert.Equal(t, "c0/s0/r0/g0/l1", keys[1].String())
	assert.Equal(t, "c0/s0/r0/g1/l0", keys[2].String())
	assert.Equal(t, "c0/s1/r0/g0/l0", keys[8].String())
}

func TestWalk_Include(t *testing.T) {
	s := smallSpace()
	s.Include = func(k Key) bool { return k.Layer == 0 && k.Level == 0 }
	keys, err := Keys(RPCL, s)
	require.NoError(t, err)
	assert.Len(t, keys, 2*(2+1))
	for _, k := range keys {
		assert.Zero(t, k.Layer)
		assert.Zero(t, k.Level)
	}

	_, err = Keys(ProgressionOrder(9), s)
	assert.ErrorIs(t, err, bpe.ErrConfiguration)
}

func TestParseOrder(t *testing.T) {
	for p := SegmentSequential; p <= CPRL; p++ {
		got, err := ParseOrder(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
		assert.Equal(t, p != SegmentSequential, p.Indexed())
	}
	_, err := ParseOrder("XYZW")
	assert.ErrorIs(t, err, bpe.ErrConfiguration)
}

func payloadOf(k Key) []byte {
	n := (k.Component*7 + k.Segment*5 + k.Level*3 + k.Gaggle + k.Layer*11) % 9
	if k.Level == 1 && k.Layer == 0 {
		n = 200 // forces a two byte header
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(k.Level<<4 | k.Layer<<2 | i)
	}
	return out
}

func TestWriteReadAll(t *testing.T) {
	s := smallSpace()
	for order := SegmentSequential; order <= CPRL; order++ {
		t.Run(order.String(), func(t *testing.T) {
			var buf bytes.Buffer
			n, err := WriteAll(&buf, order, s, payloadOf)
			require.NoError(t, err)
			assert.Equal(t, 24, n)

			got := map[Key][]byte{}
			truncated, err := ReadAll(bytes.NewReader(buf.Bytes()), order, s, func(k Key, data []byte) error {
				got[k] = data
				return nil
			})
			require.NoError(t, err)
			assert.False(t, truncated)
			require.Len(t, got, 24)
			for k, data := range got {
				assert.Equal(t, payloadOf(k), data, k.String())
				assert.NotNil(t, data)
			}

			ix, err := BuildIndex(bytes.NewReader(buf.Bytes()), order, s)
			require.NoError(t, err)
			assert.False(t, ix.Truncated)
			assert.Len(t, ix.Entries, 24)
			assert.Equal(t, int64(buf.Len()), ix.Size())
			for _, e := range ix.Entries {
				want := payloadOf(e.Key)
				assert.Equal(t, len(want), e.Length)
				assert.Equal(t, want, buf.Bytes()[e.Offset:e.Offset+int64(e.Length)])
			}
		})
	}
}

func TestReadAll_Truncated(t *testing.T) {
	s := smallSpace()
	var buf bytes.Buffer
	_, err := WriteAll(&buf, LRCP, s, payloadOf)
	require.NoError(t, err)

	full, err := BuildIndex(bytes.NewReader(buf.Bytes()), LRCP, s)
	require.NoError(t, err)
	cutEntry := full.Entries[5]
	cut := buf.Bytes()[:cutEntry.Offset+int64(cutEntry.Length)/2]

	var keys []Key
	var last []byte
	truncated, err := ReadAll(bytes.NewReader(cut), LRCP, s, func(k Key, data []byte) error {
		keys = append(keys, k)
		last = data
		return nil
	})
	require.NoError(t, err)
	assert.True(t, truncated)
	if cutEntry.Length/2 > 0 {
		require.Len(t, keys, 6)
		assert.Equal(t, payloadOf(cutEntry.Key)[:cutEntry.Length/2], last)
	} else {
		assert.Len(t, keys, 5)
	}

	ix, err := BuildIndex(bytes.NewReader(cut), LRCP, s)
	require.NoError(t, err)
	assert.True(t, ix.Truncated)
	require.Len(t, ix.Entries, 6)
	e, ok := ix.Lookup(cutEntry.Key)
	require.True(t, ok)
	assert.Equal(t, cutEntry.Length/2, e.Avail)
	_, ok = ix.Lookup(full.Entries[6].Key)
	assert.False(t, ok)
}

func TestReadAll_BadHeader(t *testing.T) {
	s := smallSpace()
	bad := []byte{0x00, 0x80, 0x80, 0x80, 0x80, 0x80}
	_, err := ReadAll(bytes.NewReader(bad), LRCP, s, func(Key, []byte) error { return nil })
	assert.ErrorIs(t, err, ErrProtocol)

	ix, err := BuildIndex(bytes.NewReader(bad), LRCP, s)
	assert.ErrorIs(t, err, bpe.ErrProtocol)
	assert.Len(t, ix.Entries, 1)
}

func TestHeaderLen(t *testing.T) {
	for _, n := range []int{0, 1, 127, 128, 16383, 16384, 1 << 21, MaxLength} {
		hdr, err := AppendVBAS(nil, n)
		require.NoError(t, err)
		assert.Equal(t, len(hdr), HeaderLen(n), "n=%d", n)
	}
}
