package bpe

import "math"

// Significance states of an AC coefficient
const (
	stateZero     int8 = -1 // structurally zero, never coded
	stateUnknown  int8 = 0
	stateNew      int8 = 1 // found significant in the current bitplane
	stateRefining int8 = 2
)

// acBlock is the coding state of one block at one resolution level.
// Coefficients are indexed family*side*side + y*side + x.
type acBlock struct {
	coef  []int32 // source coefficients, nil when decoding
	depth int     // bit depth of the level in this block
	state []int8
	mag   []int64
	neg   []bool
	low   []int // lowest bitplane known for each coefficient
}

// acLevel runs the bitplane passes of one resolution level over the blocks
// of a gaggle. The same traversal serves encoder and decoder; only the
// wordCoder differs.
type acLevel struct {
	p      *Params
	level  int
	side   int
	blocks []*acBlock
}

func newACLevel(p *Params, level, numBlocks int) *acLevel {
	side := Layout{Levels: p.Levels}.Side(level)
	n := 3 * side * side
	a := &acLevel{p: p, level: level, side: side, blocks: make([]*acBlock, numBlocks)}
	for i := range a.blocks {
		a.blocks[i] = &acBlock{
			state: make([]int8, n),
			mag:   make([]int64, n),
			neg:   make([]bool, n),
			low:   make([]int, n),
		}
	}
	return a
}

// load attaches source coefficients and computes the per-block depths
func (a *acLevel) load(blocks []Block) []int64 {
	l := Layout{Levels: a.p.Levels}
	start, n := l.Start(a.level), 3*a.side*a.side
	depths := make([]int64, len(blocks))
	per := a.side * a.side
	for i, blk := range blocks {
		ab := a.blocks[i]
		ab.coef = blk[start : start+n]
		var peak int64
		for j, c := range ab.coef {
			peak = max(peak, codedMagnitude(c, a.p.bp(Subband(a.level, j/per))))
		}
		ab.depth = bitLen(peak)
		depths[i] = int64(ab.depth)
	}
	return depths
}

// codedMagnitude drops the implicit zero planes of a coefficient
func codedMagnitude(c int32, bp int) int64 {
	return abs32(c) >> bp << bp
}

func (a *acLevel) index(f, y, x int) int {
	return f*a.side*a.side + y*a.side + x
}

func (a *acLevel) eligible(f, b int) bool {
	return b >= a.p.bp(Subband(a.level, f))
}

// markStructural fixes the unknown coefficients of every family whose
// implicit zero planes begin at b.
func (a *acLevel) markStructural(b int) {
	for _, blk := range a.blocks {
		for f := 0; f < 3; f++ {
			if a.eligible(f, b) {
				continue
			}
			for i := a.index(f, 0, 0); i < a.index(f+1, 0, 0); i++ {
				if blk.state[i] == stateUnknown {
					blk.state[i] = stateZero
				}
			}
		}
	}
}

// significant reports whether an unknown coefficient reaches plane b
func (blk *acBlock) significant(i, b int) bool {
	return blk.coef != nil && abs32(blk.coef[i])>>b != 0
}

// known reports whether a square already holds a significant coefficient
func (a *acLevel) known(blk *acBlock, f, y0, x0, sz int) bool {
	for y := y0; y < y0+sz; y++ {
		for x := x0; x < x0+sz; x++ {
			if blk.state[a.index(f, y, x)] >= stateNew {
				return true
			}
		}
	}
	return false
}

// reaches reports whether an unknown coefficient of a square is
// significant at plane b (encoder side only).
func (a *acLevel) reaches(blk *acBlock, f, y0, x0, sz, b int) bool {
	if blk.coef == nil {
		return false
	}
	for y := y0; y < y0+sz; y++ {
		for x := x0; x < x0+sz; x++ {
			i := a.index(f, y, x)
			if blk.state[i] == stateUnknown && blk.significant(i, b) {
				return true
			}
		}
	}
	return false
}

func bitOf(word uint32, n, k int) bool {
	return word>>(n-1-k)&1 == 1
}

func pushBit(word uint32, set bool) uint32 {
	word <<= 1
	if set {
		word |= 1
	}
	return word
}

// sort runs the significance pass of plane b over the gaggle
func (a *acLevel) sort(wc wordCoder, b int) error {
	a.markStructural(b)
	for _, blk := range a.blocks {
		if b >= blk.depth {
			continue
		}
		if err := a.sortBlock(wc, blk, b); err != nil {
			return err
		}
	}
	return nil
}

// sortBlock codes one block's significance at plane b. Each resolution level
// is gated by that level's own block depth rather than by the significance
// of coarser generations, so a level's stream decodes without its parents.
func (a *acLevel) sortBlock(wc wordCoder, blk *acBlock, b int) error {
	if a.level == 1 {
		var idx []int
		for f := 0; f < 3; f++ {
			if a.eligible(f, b) && blk.state[f] == stateUnknown {
				idx = append(idx, f)
			}
		}
		return a.leaf(wc, blk, idx, b)
	}
	var known [3]bool
	var fams []int
	var v uint32
	for f := 0; f < 3; f++ {
		if !a.eligible(f, b) {
			continue
		}
		known[f] = a.known(blk, f, 0, 0, a.side)
		if !known[f] {
			fams = append(fams, f)
			v = pushBit(v, a.reaches(blk, f, 0, 0, a.side, b))
		}
	}
	got, err := wc.Word(stageSignificance, len(fams), v)
	if err != nil {
		return err
	}
	var set [3]bool
	for k, f := range fams {
		set[f] = bitOf(got, len(fams), k)
	}
	for f := 0; f < 3; f++ {
		if !known[f] && !set[f] {
			continue
		}
		if err := a.visit(wc, blk, f, a.side, 0, 0, b); err != nil {
			return err
		}
	}
	return nil
}

// visit descends a significant square of a family grid
func (a *acLevel) visit(wc wordCoder, blk *acBlock, f, sz, y0, x0, b int) error {
	if sz == 2 {
		var idx []int
		for _, q := range [4][2]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}} {
			i := a.index(f, y0+q[0], x0+q[1])
			if blk.state[i] == stateUnknown {
				idx = append(idx, i)
			}
		}
		return a.leaf(wc, blk, idx, b)
	}
	h := sz / 2
	quads := [4][2]int{{y0, x0}, {y0, x0 + h}, {y0 + h, x0}, {y0 + h, x0 + h}}
	var known [4]bool
	var cand []int
	var v uint32
	for q, c := range quads {
		known[q] = a.known(blk, f, c[0], c[1], h)
		if !known[q] {
			cand = append(cand, q)
			v = pushBit(v, a.reaches(blk, f, c[0], c[1], h, b))
		}
	}
	got, err := wc.Word(stageSignificance, len(cand), v)
	if err != nil {
		return err
	}
	var set [4]bool
	for k, q := range cand {
		set[q] = bitOf(got, len(cand), k)
	}
	for q, c := range quads {
		if !known[q] && !set[q] {
			continue
		}
		if err := a.visit(wc, blk, f, h, c[0], c[1], b); err != nil {
			return err
		}
	}
	return nil
}

// leaf codes the significance word of a group of unknown coefficients,
// then the signs of those that became significant. A group whose sign word
// cannot be read is returned to the unknown state.
func (a *acLevel) leaf(wc wordCoder, blk *acBlock, idx []int, b int) error {
	var v uint32
	for _, i := range idx {
		v = pushBit(v, blk.significant(i, b))
	}
	got, err := wc.Word(stageSignificance, len(idx), v)
	if err != nil {
		return err
	}
	var newly []int
	for k, i := range idx {
		if bitOf(got, len(idx), k) {
			newly = append(newly, i)
			blk.state[i] = stateNew
			blk.mag[i] = 1 << b
			blk.low[i] = b
		}
	}
	var s uint32
	for _, i := range newly {
		s = pushBit(s, blk.coef != nil && blk.coef[i] < 0)
	}
	signs, err := wc.Word(stageSign, len(newly), s)
	if err != nil {
		for _, i := range newly {
			blk.state[i] = stateUnknown
			blk.mag[i] = 0
		}
		return err
	}
	for k, i := range newly {
		blk.neg[i] = bitOf(signs, len(newly), k)
	}
	return nil
}

// refine codes bit b of every coefficient found significant in an earlier
// plane, four bits to a word.
func (a *acLevel) refine(wc wordCoder, b int) error {
	for _, blk := range a.blocks {
		if b >= blk.depth {
			continue
		}
		var idx []int
		for f := 0; f < 3; f++ {
			if !a.eligible(f, b) {
				continue
			}
			for i := a.index(f, 0, 0); i < a.index(f+1, 0, 0); i++ {
				if blk.state[i] == stateRefining {
					idx = append(idx, i)
				}
			}
		}
		for len(idx) > 0 {
			n := min(4, len(idx))
			var v uint32
			for _, i := range idx[:n] {
				v = pushBit(v, blk.coef != nil && abs32(blk.coef[i])>>b&1 == 1)
			}
			got, err := wc.Word(stageRefinement, n, v)
			if err != nil {
				return err
			}
			for k, i := range idx[:n] {
				if bitOf(got, n, k) {
					blk.mag[i] |= 1 << b
				}
				blk.low[i] = b
			}
			idx = idx[n:]
		}
	}
	return nil
}

// promote ends a bitplane: newly significant coefficients start refining
func (a *acLevel) promote() {
	for _, blk := range a.blocks {
		for i, st := range blk.state {
			if st == stateNew {
				blk.state[i] = stateRefining
			}
		}
	}
}

// reconstruct writes the decoded level into blocks. Coefficients known down
// to a plane above their implicit zeros get gamma of that plane added back.
func (a *acLevel) reconstruct(blocks []Block, gamma float64) {
	start := Layout{Levels: a.p.Levels}.Start(a.level)
	per := a.side * a.side
	for bi, blk := range a.blocks {
		out := blocks[bi][start : start+3*per]
		for i, st := range blk.state {
			if st < stateNew {
				out[i] = 0
				continue
			}
			v := blk.mag[i]
			if bp := a.p.bp(Subband(a.level, i/per)); blk.low[i] > bp {
				v += int64(math.Round(gamma * float64(int64(1)<<blk.low[i])))
			}
			if blk.neg[i] {
				v = -v
			}
			out[i] = int32(v)
		}
	}
}
