package bpe

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/jpfielding/bpe.go/pkg/compress/bitio"
)

// PassKind identifies a coding pass within a stream
type PassKind byte

const (
	PassDCInitial PassKind = iota
	PassDCRefine
	PassBitDepth
	PassSorting
	PassRefine
)

func (k PassKind) String() string {
	switch k {
	case PassDCInitial:
		return "dc-initial"
	case PassDCRefine:
		return "dc-refine"
	case PassBitDepth:
		return "bit-depth"
	case PassSorting:
		return "sorting"
	case PassRefine:
		return "refine"
	default:
		return fmt.Sprintf("pass(%d)", byte(k))
	}
}

// Pass locates one coding pass inside its stream
type Pass struct {
	Kind     PassKind
	Level    int
	Plane    int
	StartBit int
	EndBit   int
}

// PlaneKey ranks a pass for bitplane-major ordering: larger keys are
// coded first. DC initial passes precede everything.
func (p Pass) PlaneKey() int {
	if p.Kind == PassDCInitial {
		return math.MaxInt32
	}
	return p.Plane
}

// Stream is the coded data of one (resolution level, gaggle) of a segment
type Stream struct {
	Level  int
	Gaggle int
	Data   []byte
	Bits   int
	Passes []Pass
}

// PassEnd returns the byte offset at which pass i is complete
func (s *Stream) PassEnd(i int) int {
	return min((s.Passes[i].EndBit+7)/8, len(s.Data))
}

// Segment is the coded form of a run of consecutive blocks
type Segment struct {
	Index      int
	FirstBlock int
	NumBlocks  int
	BitDepthDC int
	BitDepthAC int
	Q          int
	Streams    [][]*Stream // [level][gaggle]
}

// PassRef addresses a pass of a segment
type PassRef struct {
	Level  int
	Gaggle int
	Index  int
}

// CodingOrder lists every pass of the segment in the order the encoder
// would emit them as a single stream: descending bitplane, then level,
// gaggle and pass position.
func (s *Segment) CodingOrder() []PassRef {
	var refs []PassRef
	for _, row := range s.Streams {
		for _, st := range row {
			for i := range st.Passes {
				refs = append(refs, PassRef{Level: st.Level, Gaggle: st.Gaggle, Index: i})
			}
		}
	}
	sort.SliceStable(refs, func(i, j int) bool {
		a, b := refs[i], refs[j]
		ka, kb := s.pass(a).PlaneKey(), s.pass(b).PlaneKey()
		if ka != kb {
			return ka > kb
		}
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.Gaggle != b.Gaggle {
			return a.Gaggle < b.Gaggle
		}
		return a.Index < b.Index
	})
	return refs
}

func (s *Segment) pass(ref PassRef) Pass {
	return s.Streams[ref.Level][ref.Gaggle].Passes[ref.Index]
}

// Bytes returns the total coded size of the segment
func (s *Segment) Bytes() int {
	n := 0
	for _, row := range s.Streams {
		for _, st := range row {
			n += len(st.Data)
		}
	}
	return n
}

// EncodeSegment codes blocks (consecutive in raster order, the first at
// component block index first) as segment index.
func EncodeSegment(p *Params, index, first int, blocks []Block) (*Segment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, configErr("blocks", "segment %d is empty", index)
	}
	l := Layout{Levels: p.Levels}
	seg := &Segment{Index: index, FirstBlock: first, NumBlocks: len(blocks), BitDepthDC: 1}
	for i, blk := range blocks {
		if len(blk) != l.Size() {
			return nil, configErr("blocks", "block %d has %d coefficients, want %d", first+i, len(blk), l.Size())
		}
		seg.BitDepthDC = max(seg.BitDepthDC, twosComplementWidth(int64(blk[0])))
		for j := 1; j < len(blk); j++ {
			if blk[j] == math.MinInt32 {
				return nil, configErr("blocks", "block %d AC coefficient %d magnitude needs 32 bits", first+i, j)
			}
			seg.BitDepthAC = max(seg.BitDepthAC, bitLen(codedMagnitude(blk[j], p.bp(l.Subband(j)))))
		}
	}
	seg.Q = DCQuantization(seg.BitDepthDC, seg.BitDepthAC, p.bp(0))

	seg.Streams = make([][]*Stream, p.NumLevels())
	for level := range seg.Streams {
		size := p.GaggleSize(level)
		row := make([]*Stream, p.NumGaggles(level, len(blocks)))
		for g := range row {
			lo, hi := g*size, min((g+1)*size, len(blocks))
			st := &Stream{Level: level, Gaggle: g, Data: []byte{}}
			switch {
			case level >= p.CodedLevels():
			case level == 0:
				encodeDC(p, seg, st, blocks[lo:hi])
			default:
				if err := encodeAC(p, seg, st, blocks[lo:hi]); err != nil {
					return nil, fmt.Errorf("segment %d level %d gaggle %d: %w", index, level, g, err)
				}
			}
			row[g] = st
		}
		seg.Streams[level] = row
	}
	if p.SegByteLimit > 0 {
		seg.limit(p.SegByteLimit)
	}
	return seg, nil
}

func dcStop(p *Params) int {
	return max(p.bp(0), p.BitPlaneStop)
}

func finish(st *Stream, w *bitio.Writer) {
	st.Bits = w.BitLen()
	st.Data = w.Bytes()
}

func encodeDC(p *Params, seg *Segment, st *Stream, blocks []Block) {
	w := bitio.NewWriter()
	dc := newDCCoder(p, seg.BitDepthDC, seg.Q)
	vals := make([]int64, len(blocks))
	for i, blk := range blocks {
		vals[i] = int64(blk[0])
	}
	dc.encodeInitial(w, vals)
	st.Passes = append(st.Passes, Pass{Kind: PassDCInitial, Plane: seg.Q, EndBit: w.BitLen()})
	for b := seg.Q - 1; b >= dcStop(p); b-- {
		start := w.BitLen()
		dc.encodeRefine(w, vals, b)
		st.Passes = append(st.Passes, Pass{Kind: PassDCRefine, Plane: b, StartBit: start, EndBit: w.BitLen()})
	}
	finish(st, w)
}

func depthCoder(p *Params, bitDepthAC int) gaggleCoder {
	return gaggleCoder{
		vr:     valueRange{bits: bitLen(int64(bitDepthAC))},
		stride: p.IDAC,
		mode:   p.Entropy,
	}
}

func encodeAC(p *Params, seg *Segment, st *Stream, blocks []Block) error {
	w := bitio.NewWriter()
	a := newACLevel(p, st.Level, len(blocks))
	depths := a.load(blocks)
	depthCoder(p, seg.BitDepthAC).encode(w, depths)
	st.Passes = append(st.Passes, Pass{Kind: PassBitDepth, Level: st.Level, Plane: seg.BitDepthAC, EndBit: w.BitLen()})

	var buf wordBuffer
	emit := func(kind PassKind, b int, run func(wordCoder, int) error) error {
		start := w.BitLen()
		if err := run(&buf, b); err != nil {
			return fmt.Errorf("%s pass plane %d: %w", kind, b, err)
		}
		buf.flush(w, p.Entropy)
		st.Passes = append(st.Passes, Pass{Kind: kind, Level: st.Level, Plane: b, StartBit: start, EndBit: w.BitLen()})
		return nil
	}
	for b := seg.BitDepthAC - 1; b >= p.BitPlaneStop; b-- {
		if err := emit(PassSorting, b, a.sort); err != nil {
			return err
		}
		if err := emit(PassRefine, b, a.refine); err != nil {
			return err
		}
		a.promote()
	}
	finish(st, w)
	return nil
}

// limit drops every pass past the byte budget, walking passes in coding
// order. The pass that crosses the budget keeps the bytes that still fit.
func (s *Segment) limit(budget int) {
	type cut struct {
		bytes  int
		passes int
		bits   int // end bit of a partially kept pass, 0 if none
	}
	cuts := make(map[*Stream]*cut)
	for _, row := range s.Streams {
		for _, st := range row {
			cuts[st] = &cut{}
		}
	}
	total := 0
	for _, ref := range s.CodingOrder() {
		st := s.Streams[ref.Level][ref.Gaggle]
		c := cuts[st]
		grow := st.PassEnd(ref.Index) - c.bytes
		if total+grow > budget {
			if keep := budget - total; keep > 0 {
				c.bytes += keep
				c.bits = c.bytes * 8
			}
			break
		}
		total += grow
		c.bytes += grow
		c.passes++
	}
	for st, c := range cuts {
		passes := st.Passes[:c.passes]
		if c.bits > 0 && c.passes < len(st.Passes) && st.Passes[c.passes].StartBit < c.bits {
			partial := st.Passes[c.passes]
			partial.EndBit = min(partial.EndBit, c.bits)
			passes = append(passes, partial)
		}
		st.Passes = passes
		st.Data = st.Data[:c.bytes]
		st.Bits = min(st.Bits, c.bytes*8)
	}
}

// DecodeOptions controls reconstruction
type DecodeOptions struct {
	Gamma      float64    // reconstruction point within the last known bitplane, 0..1
	Completion Completion // DC completion policy for truncated streams
	Levels     int        // resolution levels to decode, DC included (0 = all)
}

// DefaultDecodeOptions returns midpoint reconstruction with zero completion
func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{Gamma: 0.5}
}

// DecodeStats summarizes what a segment decode recovered
type DecodeStats struct {
	Streams   int // streams with data present
	Truncated int // streams that ended before their final pass
	Filled    int // DC blocks completed by the completion policy
}

// Add accumulates another segment's stats
func (s *DecodeStats) Add(o DecodeStats) {
	s.Streams += o.Streams
	s.Truncated += o.Truncated
	s.Filled += o.Filled
}

// DecodeSegment reconstructs the blocks of a coded segment. A stream with
// nil data was not selected and decodes as zero; a short or empty stream
// is truncated, which stops that stream only. Protocol errors fail the
// segment.
func DecodeSegment(p *Params, seg *Segment, opts DecodeOptions) ([]Block, DecodeStats, error) {
	var stats DecodeStats
	if err := p.Validate(); err != nil {
		return nil, stats, err
	}
	if seg.NumBlocks < 1 {
		return nil, stats, configErr("NumBlocks", "segment %d is empty", seg.Index)
	}
	if seg.BitDepthDC < 1 || seg.BitDepthDC > 32 || seg.BitDepthAC < 0 || seg.BitDepthAC > 31 {
		return nil, stats, fmt.Errorf("%w: segment %d bit depths DC=%d AC=%d", ErrProtocol, seg.Index, seg.BitDepthDC, seg.BitDepthAC)
	}
	blocks := NewBlocks(Layout{Levels: p.Levels}, seg.NumBlocks)
	levels := p.CodedLevels()
	if opts.Levels > 0 {
		levels = min(levels, opts.Levels)
	}
	hist := &dcHistory{}
	for level := 0; level < levels && level < len(seg.Streams); level++ {
		size := p.GaggleSize(level)
		for g, st := range seg.Streams[level] {
			if st == nil || st.Data == nil {
				continue
			}
			lo, hi := g*size, min((g+1)*size, seg.NumBlocks)
			if lo >= hi {
				return nil, stats, fmt.Errorf("%w: segment %d level %d has no gaggle %d", ErrProtocol, seg.Index, level, g)
			}
			stats.Streams++
			var err error
			if level == 0 {
				var filled int
				filled, err = decodeDC(p, seg, st, blocks[lo:hi], opts.Completion, hist)
				stats.Filled += filled
			} else {
				err = decodeAC(p, seg, st, blocks[lo:hi], opts.Gamma)
			}
			switch {
			case err == nil:
			case errors.Is(err, bitio.ErrExhausted):
				stats.Truncated++
			default:
				return blocks, stats, fmt.Errorf("segment %d level %d gaggle %d: %w", seg.Index, level, g, err)
			}
		}
	}
	return blocks, stats, nil
}

func decodeDC(p *Params, seg *Segment, st *Stream, blocks []Block, policy Completion, hist *dcHistory) (int, error) {
	dc := newDCCoder(p, seg.BitDepthDC, seg.Q)
	g := &dcGaggle{values: make([]int64, len(blocks)), known: make([]bool, len(blocks))}
	r := bitio.NewReader(st.Data)
	err := dc.decodeInitial(r, g, policy, hist)
	for b := seg.Q - 1; err == nil && b >= dcStop(p); b-- {
		err = dc.decodeRefine(r, g, b)
	}
	for i, v := range g.values {
		blocks[i][0] = int32(v)
	}
	return g.filled, err
}

func decodeAC(p *Params, seg *Segment, st *Stream, blocks []Block, gamma float64) error {
	r := bitio.NewReader(st.Data)
	depths := make([]int64, len(blocks))
	if _, err := depthCoder(p, seg.BitDepthAC).decode(r, depths); err != nil {
		return err
	}
	a := newACLevel(p, st.Level, len(blocks))
	for i, d := range depths {
		if d > int64(seg.BitDepthAC) {
			return fmt.Errorf("%w: block depth %d exceeds segment depth %d", ErrProtocol, d, seg.BitDepthAC)
		}
		a.blocks[i].depth = int(d)
	}
	wr := newWordReader(r, p.Entropy)
	var err error
	for b := seg.BitDepthAC - 1; b >= p.BitPlaneStop; b-- {
		wr.reset()
		if err = a.sort(wr, b); err != nil {
			break
		}
		wr.reset()
		if err = a.refine(wr, b); err != nil {
			break
		}
		a.promote()
	}
	a.reconstruct(blocks, gamma)
	return err
}
