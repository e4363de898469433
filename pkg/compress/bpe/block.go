package bpe

// Families of a detail resolution level
const (
	FamilyHL = 0
	FamilyLH = 1
	FamilyHH = 2
)

// Layout addresses the coefficients of one block stored as a flat arena.
// Level 0 holds the DC coefficient at index 0; level r >= 1 starts at 4^(r-1)
// and holds three families, each a 2^(r-1) x 2^(r-1) grid in raster order.
type Layout struct {
	Levels int
}

// Size returns the number of coefficients in a block
func (l Layout) Size() int {
	return 1 << (2 * l.Levels)
}

// Side returns the grid side of one family at a level
func (l Layout) Side(level int) int {
	if level == 0 {
		return 1
	}
	return 1 << (level - 1)
}

// Start returns the arena index of the first coefficient of a level
func (l Layout) Start(level int) int {
	if level == 0 {
		return 0
	}
	return 1 << (2 * (level - 1))
}

// Index returns the arena index of a coefficient
func (l Layout) Index(level, family, y, x int) int {
	if level == 0 {
		return 0
	}
	side := l.Side(level)
	return l.Start(level) + family*side*side + y*side + x
}

// Subband returns the BP index of the coefficient at arena index i
func (l Layout) Subband(i int) int {
	if i == 0 {
		return 0
	}
	level := 1
	for i >= l.Start(level+1) && level < l.Levels {
		level++
	}
	side := l.Side(level)
	return Subband(level, (i-l.Start(level))/(side*side))
}

// Block is one block's coefficients addressed through a Layout
type Block []int32

// NewBlocks allocates n zeroed blocks backed by a single arena
func NewBlocks(l Layout, n int) []Block {
	size := l.Size()
	arena := make([]int32, size*n)
	blocks := make([]Block, n)
	for i := range blocks {
		blocks[i] = Block(arena[i*size : (i+1)*size : (i+1)*size])
	}
	return blocks
}

// BlockGrid maps blocks onto a Mallat-layout coefficient plane of
// Width x Height samples decomposed Levels times.
type BlockGrid struct {
	Width  int
	Height int
	Levels int
}

// BlocksWide returns the number of block columns
func (g BlockGrid) BlocksWide() int {
	return g.Width >> g.Levels
}

// BlocksHigh returns the number of block rows
func (g BlockGrid) BlocksHigh() int {
	return g.Height >> g.Levels
}

// NumBlocks returns the number of blocks in the plane
func (g BlockGrid) NumBlocks() int {
	return g.BlocksWide() * g.BlocksHigh()
}

// Validate checks that the plane is made of whole blocks
func (g BlockGrid) Validate() error {
	if g.Levels < 1 || g.Levels > MaxLevels {
		return configErr("Levels", "%d outside 1..%d", g.Levels, MaxLevels)
	}
	mask := (1 << g.Levels) - 1
	if g.Width <= 0 || g.Height <= 0 || g.Width&mask != 0 || g.Height&mask != 0 {
		return configErr("dimensions", "%dx%d not a positive multiple of %d", g.Width, g.Height, mask+1)
	}
	return nil
}

// planeIndex returns the Mallat plane index of a block coefficient
func (g BlockGrid) planeIndex(block, level, family, y, x int) int {
	bw := g.BlocksWide()
	bx, by := block%bw, block/bw
	if level == 0 {
		return by*g.Width + bx
	}
	scale := g.Levels - level + 1
	sw, sh := g.Width>>scale, g.Height>>scale
	side := 1 << (level - 1)
	row := by*side + y
	col := bx*side + x
	switch family {
	case FamilyHL:
		col += sw
	case FamilyLH:
		row += sh
	case FamilyHH:
		col += sw
		row += sh
	}
	return row*g.Width + col
}

// Gather rearranges a Mallat plane into blocks in raster block order
func (g BlockGrid) Gather(plane []int32) []Block {
	l := Layout{Levels: g.Levels}
	blocks := NewBlocks(l, g.NumBlocks())
	g.walk(func(block, idx, pos int) {
		blocks[block][idx] = plane[pos]
	})
	return blocks
}

// Scatter writes blocks back into a Mallat plane
func (g BlockGrid) Scatter(blocks []Block, plane []int32) {
	g.walk(func(block, idx, pos int) {
		if block < len(blocks) {
			plane[pos] = blocks[block][idx]
		}
	})
}

func (g BlockGrid) walk(fn func(block, idx, pos int)) {
	l := Layout{Levels: g.Levels}
	for b := 0; b < g.NumBlocks(); b++ {
		fn(b, 0, g.planeIndex(b, 0, 0, 0, 0))
		for level := 1; level <= g.Levels; level++ {
			side := l.Side(level)
			for f := 0; f < 3; f++ {
				for y := 0; y < side; y++ {
					for x := 0; x < side; x++ {
						fn(b, l.Index(level, f, y, x), g.planeIndex(b, level, f, y, x))
					}
				}
			}
		}
	}
}

// PixelRect returns the full-resolution pixel rectangle covered by a block
// as x0, y0, x1, y1 (exclusive upper bounds).
func (g BlockGrid) PixelRect(block int) (int, int, int, int) {
	bw := g.BlocksWide()
	side := 1 << g.Levels
	bx, by := block%bw, block/bw
	return bx * side, by * side, (bx + 1) * side, (by + 1) * side
}

// bitLen returns the number of bits needed to represent v (v >= 0)
func bitLen(v int64) int {
	n := 0
	for v > 0 {
		n++
		v >>= 1
	}
	return n
}

// twosComplementWidth returns the signed width needed to hold v
func twosComplementWidth(v int64) int {
	if v < 0 {
		return bitLen(-v-1) + 1
	}
	return bitLen(v) + 1
}

func abs32(v int32) int64 {
	if v < 0 {
		return -int64(v)
	}
	return int64(v)
}
