package bpe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDCQuantization(t *testing.T) {
	tests := []struct {
		name                   string
		bitDepthDC, bitDepthAC int
		bp0                    int
		want                   int
	}{
		{"no AC", 10, 0, 0, 0},
		{"shallow DC", 3, 5, 0, 0},
		{"DC close to AC", 12, 20, 0, 9},
		{"DC far above AC", 30, 4, 0, 20},
		{"DC above AC by ten", 16, 10, 0, 6},
		{"implicit zeros dominate", 16, 10, 8, 8},
		{"wide gap", 25, 10, 0, 15},
		{"gap just over ten", 14, 2, 0, 4},
		{"gap of ten", 13, 4, 0, 3},
		{"no AC but deep DC", 14, 0, 0, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := DCQuantization(tt.bitDepthDC, tt.bitDepthAC, tt.bp0)
			assert.Equal(t, tt.want, q)
			assert.LessOrEqual(t, tt.bitDepthDC-q, 10)
			assert.GreaterOrEqual(t, q, tt.bp0)
		})
	}
}

func TestCompletionFill(t *testing.T) {
	tests := []struct {
		name       string
		policy     Completion
		history    []int64
		bitDepthDC int
		q          int
		want       int64
	}{
		{"zero", CompletionZero, []int64{5, 6}, 10, 0, 0},
		{"mid magnitude", CompletionMid, nil, 10, 2, 64},
		{"mid magnitude of one bit", CompletionMid, nil, 1, 0, 0},
		{"mean of all", CompletionMeanAll, []int64{4, -2, 7}, 10, 0, 3},
		{"mean truncates toward zero", CompletionMeanAll, []int64{-5, -2}, 10, 0, -3},
		{"mean of last two", CompletionMeanLast(2), []int64{1, 2, 3, 10}, 10, 0, 6},
		{"window wider than history", CompletionMeanLast(10), []int64{1, 2, 3}, 10, 0, 2},
		{"empty history", CompletionMeanAll, nil, 10, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &dcHistory{}
			for _, v := range tt.history {
				h.add(v)
			}
			assert.Equal(t, tt.want, h.fill(tt.policy, tt.bitDepthDC, tt.q))
		})
	}
}

// dcOnlyParams codes 16 DC values per gaggle at 8 raw bits each when the
// values span -128..127 and every AC coefficient is zero.
func dcOnlyParams() Params {
	p := DefaultParams(1)
	p.BlocksPerSegment = 16
	p.Entropy = EntropyRaw
	p.DCStop = true
	return p
}

func dcBlocks(vals []int32) []Block {
	blocks := NewBlocks(Layout{Levels: 1}, len(vals))
	for i, v := range vals {
		blocks[i][0] = v
	}
	return blocks
}

func TestDC_CompletionOnTruncation(t *testing.T) {
	vals := []int32{100, -7, 33, 12, 90, -100, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}
	p := dcOnlyParams()
	seg, err := EncodeSegment(&p, 0, 0, dcBlocks(vals))
	require.NoError(t, err)
	require.Equal(t, 8, seg.BitDepthDC)
	require.Equal(t, 0, seg.BitDepthAC)
	require.Equal(t, 0, seg.Q)
	require.Len(t, seg.Streams[0][0].Data, 16)

	seg.Streams[0][0].Data = seg.Streams[0][0].Data[:5]
	tests := []struct {
		name   string
		policy Completion
		fill   int32
	}{
		{"zero", CompletionZero, 0},
		{"mid", CompletionMid, 64},
		{"mean all", CompletionMeanAll, (100 - 7 + 33 + 12 + 90) / 5},
		{"mean last two", CompletionMeanLast(2), (12 + 90) / 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultDecodeOptions()
			opts.Completion = tt.policy
			blocks, stats, err := DecodeSegment(&p, seg, opts)
			require.NoError(t, err)
			assert.Equal(t, 1, stats.Truncated)
			assert.Equal(t, 11, stats.Filled)
			for i, blk := range blocks {
				if i < 5 {
					assert.Equal(t, vals[i], blk[0], "block %d decoded", i)
				} else {
					assert.Equal(t, tt.fill, blk[0], "block %d filled", i)
				}
			}
		})
	}
}

func TestDC_SelectionVersusTruncation(t *testing.T) {
	vals := []int32{20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32, 33, 34, 35}
	p := dcOnlyParams()
	seg, err := EncodeSegment(&p, 0, 0, dcBlocks(vals))
	require.NoError(t, err)

	opts := DecodeOptions{Completion: CompletionMid}

	seg.Streams[0][0].Data = nil
	blocks, stats, err := DecodeSegment(&p, seg, opts)
	require.NoError(t, err)
	assert.Zero(t, stats.Streams)
	assert.Zero(t, stats.Filled)
	for _, blk := range blocks {
		assert.Zero(t, blk[0])
	}

	seg.Streams[0][0].Data = []byte{}
	blocks, stats, err = DecodeSegment(&p, seg, opts)
	require.NoError(t, err)
	assert.Equal(t, 16, stats.Filled)
	for _, blk := range blocks {
		assert.Equal(t, int32(1<<(seg.BitDepthDC-2)), blk[0])
	}
}

func TestDC_QuantizedRefinement(t *testing.T) {
	// deep DC and shallow AC push most DC planes into refinement
	vals := []int32{-30000, 12345, 777, -1, 0, 32767, -32768, 4242}
	blocks := NewBlocks(Layout{Levels: 1}, len(vals))
	for i, v := range vals {
		blocks[i][0] = v
		blocks[i][1] = int32(i % 3)
	}
	p := DefaultParams(1)
	p.BlocksPerSegment = len(vals)
	p.IDDC = 3
	seg, err := EncodeSegment(&p, 0, 0, blocks)
	require.NoError(t, err)
	require.Equal(t, 16, seg.BitDepthDC)
	require.Equal(t, 6, seg.Q)

	dcStream := seg.Streams[0][0]
	require.Len(t, dcStream.Passes, 1+seg.Q)
	for i, ps := range dcStream.Passes[1:] {
		assert.Equal(t, PassDCRefine, ps.Kind)
		assert.Equal(t, seg.Q-1-i, ps.Plane)
		assert.Equal(t, len(vals), ps.EndBit-ps.StartBit)
	}

	got, _, err := DecodeSegment(&p, seg, DefaultDecodeOptions())
	require.NoError(t, err)
	for i, blk := range got {
		assert.Equal(t, vals[i], blk[0])
	}

	// without refinement the DC floors to a multiple of 2^q
	dcStream.Data = dcStream.Data[:(dcStream.Passes[0].EndBit+7)/8]
	got, _, err = DecodeSegment(&p, seg, DefaultDecodeOptions())
	require.NoError(t, err)
	for i, blk := range got {
		assert.Equal(t, vals[i]>>seg.Q<<seg.Q, blk[0]&^(1<<seg.Q-1), "block %d", i)
	}
}
