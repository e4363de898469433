package bpe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout(t *testing.T) {
	l := Layout{Levels: 3}
	assert.Equal(t, 64, l.Size())
	assert.Equal(t, []int{0, 1, 4, 16}, []int{l.Start(0), l.Start(1), l.Start(2), l.Start(3)})
	assert.Equal(t, []int{1, 1, 2, 4}, []int{l.Side(0), l.Side(1), l.Side(2), l.Side(3)})
	assert.Equal(t, 63, l.Index(3, FamilyHH, 3, 3))
	assert.Equal(t, 4+4+3, l.Index(2, FamilyLH, 1, 1))

	tests := []struct {
		index   int
		subband int
	}{
		{0, 0},
		{1, 1},
		{3, 3},
		{4, 4},
		{15, 6},
		{16, 7},
		{63, 9},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.subband, l.Subband(tt.index), "index %d", tt.index)
	}
}

func TestNewBlocks_SharedArena(t *testing.T) {
	blocks := NewBlocks(Layout{Levels: 2}, 3)
	require.Len(t, blocks, 3)
	for _, blk := range blocks {
		assert.Len(t, blk, 16)
		assert.Equal(t, 16, cap(blk), "blocks must not see each other's tail")
	}
	blocks[1][0] = 7
	assert.Zero(t, blocks[0][0])
	assert.Zero(t, blocks[2][0])
}

func TestBlockGrid_GatherScatter(t *testing.T) {
	g := BlockGrid{Width: 16, Height: 8, Levels: 2}
	require.NoError(t, g.Validate())
	assert.Equal(t, 4, g.BlocksWide())
	assert.Equal(t, 2, g.BlocksHigh())

	plane := make([]int32, g.Width*g.Height)
	for i := range plane {
		plane[i] = int32(i)
	}
	blocks := g.Gather(plane)
	require.Len(t, blocks, 8)

	l := Layout{Levels: 2}
	assert.Equal(t, int32(1), blocks[1][0], "DC of block 1 sits in the LL band")
	assert.Equal(t, int32(5), blocks[1][l.Index(1, FamilyHL, 0, 0)])
	assert.Equal(t, int32(5*16+10), blocks[1][l.Index(2, FamilyHH, 1, 0)])

	back := make([]int32, len(plane))
	g.Scatter(blocks, back)
	assert.Equal(t, plane, back)
}

func TestBlockGrid_Validate(t *testing.T) {
	tests := []struct {
		name string
		grid BlockGrid
		ok   bool
	}{
		{"whole blocks", BlockGrid{Width: 32, Height: 16, Levels: 3}, true},
		{"ragged width", BlockGrid{Width: 30, Height: 16, Levels: 3}, false},
		{"no levels", BlockGrid{Width: 32, Height: 16, Levels: 0}, false},
		{"too deep", BlockGrid{Width: 256, Height: 256, Levels: MaxLevels + 1}, false},
		{"empty", BlockGrid{Width: 0, Height: 16, Levels: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.grid.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var cfg *ConfigError
			assert.ErrorAs(t, err, &cfg)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestBlockGrid_PixelRect(t *testing.T) {
	g := BlockGrid{Width: 16, Height: 8, Levels: 2}
	x0, y0, x1, y1 := g.PixelRect(5)
	assert.Equal(t, [4]int{4, 4, 8, 8}, [4]int{x0, y0, x1, y1})
}
