// Package layer splits the coded streams of every segment into quality
// layers. The result is a byte offset table per (component, segment,
// resolution level, gaggle) stream: layer k of a stream is the byte range
// Offsets[...][k] .. Offsets[...][k+1].
package layer

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/jpfielding/bpe.go/pkg/compress/bpe"
)

// Policy selects how coding passes are assigned to layers
type Policy int

const (
	SingleLayer        Policy = iota // everything in one layer
	MaxLength                        // equal fixed-size slices of every stream
	PassInterleave                   // passes in segment coding order, spilling across layers
	BitplaneInterleave               // passes bitplane-major across all segments and components
)

func (p Policy) String() string {
	switch p {
	case SingleLayer:
		return "single"
	case MaxLength:
		return "max-length"
	case PassInterleave:
		return "pass"
	case BitplaneInterleave:
		return "bitplane"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps a name from String back to its Policy
func ParsePolicy(name string) (Policy, error) {
	for p := SingleLayer; p <= BitplaneInterleave; p++ {
		if p.String() == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown layer policy %q", bpe.ErrConfiguration, name)
}

// MaxLayers is the largest layer count a file header can carry
const MaxLayers = math.MaxUint16

// Config describes the requested layering
type Config struct {
	Policy      Policy
	Layers      int      // requested layer count
	TargetBytes int      // total byte target for MaxLength, SizeEqual and SizeHalving
	SizeType    SizeType // budget schedule for the interleaving policies
	Sizes       []int    // explicit layer budgets in bytes
	CropUnused  bool     // drop trailing layers no pass reached
}

// DefaultConfig returns a single-layer configuration
func DefaultConfig() Config {
	return Config{Policy: SingleLayer, Layers: 1}
}

// Validate checks the configuration before allocation
func (c Config) Validate() error {
	if c.Policy < SingleLayer || c.Policy > BitplaneInterleave {
		return fmt.Errorf("%w: unknown layer policy %d", bpe.ErrConfiguration, c.Policy)
	}
	if c.Policy != SingleLayer && (c.Layers < 1 || c.Layers > MaxLayers) {
		return fmt.Errorf("%w: %d layers outside 1..%d", bpe.ErrConfiguration, c.Layers, MaxLayers)
	}
	if c.Policy == MaxLength && c.TargetBytes < 1 {
		return fmt.Errorf("%w: max-length layering needs a byte target", bpe.ErrConfiguration)
	}
	return nil
}

// Table is the result of an allocation
type Table struct {
	Layers  int
	Offsets [][][][][]int // [component][segment][level][gaggle][layer+1]
}

// Range returns the byte range of one packet within its stream
func (t *Table) Range(c, s, r, g, layer int) (int, int) {
	off := t.Offsets[c][s][r][g]
	return off[layer], off[layer+1]
}

// cursor is the allocation position: the layer being filled and the bytes
// it can still take. The last layer is never full.
type cursor struct {
	layer     int
	remaining int
}

// spill places n bytes starting at cur and returns the advanced cursor.
// place receives each (layer, bytes) piece in order.
func (cur cursor) spill(n int, budgets []int, place func(layer, n int)) cursor {
	for n > 0 {
		last := cur.layer == len(budgets)-1
		if cur.remaining == 0 && !last {
			cur.layer++
			cur.remaining = budgets[cur.layer]
			continue
		}
		take := n
		if !last {
			take = min(n, cur.remaining)
			cur.remaining -= take
		}
		place(cur.layer, take)
		n -= take
	}
	return cur
}

// streamRef addresses one stream of the whole image
type streamRef struct {
	comp, seg int
	st        *bpe.Stream
}

type passRef struct {
	streamRef
	index int
	key   int
}

// Allocate builds the layer table for segments[component][segment]
func Allocate(cfg Config, segments [][]*bpe.Segment) (*Table, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Table{Offsets: make([][][][][]int, len(segments))}
	var maxLen int
	for c, segs := range segments {
		t.Offsets[c] = make([][][][]int, len(segs))
		for s, seg := range segs {
			t.Offsets[c][s] = make([][][]int, len(seg.Streams))
			for r, row := range seg.Streams {
				t.Offsets[c][s][r] = make([][]int, len(row))
				for _, st := range row {
					maxLen = max(maxLen, len(st.Data))
				}
			}
		}
	}

	var err error
	switch cfg.Policy {
	case SingleLayer:
		t.Layers = 1
		t.each(segments, func(st *bpe.Stream, off []int) { off[1] = len(st.Data) })
	case MaxLength:
		budget := max(1, cfg.TargetBytes/cfg.Layers)
		t.Layers = max(1, (maxLen+budget-1)/budget)
		t.each(segments, func(st *bpe.Stream, off []int) {
			for k := 1; k <= t.Layers; k++ {
				off[k] = min(k*budget, len(st.Data))
			}
		})
	case PassInterleave, BitplaneInterleave:
		err = t.interleave(cfg, segments)
	}
	if err != nil {
		return nil, err
	}
	slog.Debug("layers allocated",
		slog.String("policy", cfg.Policy.String()),
		slog.Int("requested", cfg.Layers),
		slog.Int("layers", t.Layers))
	return t, nil
}

// each allocates an offset row of t.Layers+1 entries for every stream
func (t *Table) each(segments [][]*bpe.Segment, fn func(st *bpe.Stream, off []int)) {
	for c, segs := range segments {
		for s, seg := range segs {
			for r, row := range seg.Streams {
				for g, st := range row {
					off := make([]int, t.Layers+1)
					fn(st, off)
					t.Offsets[c][s][r][g] = off
				}
			}
		}
	}
}

func (t *Table) interleave(cfg Config, segments [][]*bpe.Segment) error {
	budgets, err := Budgets(cfg, cfg.Layers)
	if err != nil {
		return err
	}
	t.Layers = cfg.Layers

	var passes []passRef
	for c, segs := range segments {
		for s, seg := range segs {
			for _, ref := range seg.CodingOrder() {
				st := seg.Streams[ref.Level][ref.Gaggle]
				passes = append(passes, passRef{
					streamRef: streamRef{comp: c, seg: s, st: st},
					index:     ref.Index,
					key:       st.Passes[ref.Index].PlaneKey(),
				})
			}
		}
	}
	if cfg.Policy == BitplaneInterleave {
		sort.SliceStable(passes, func(i, j int) bool {
			a, b := passes[i], passes[j]
			if a.key != b.key {
				return a.key > b.key
			}
			if a.comp != b.comp {
				return a.comp < b.comp
			}
			return a.seg < b.seg
		})
	}

	// bytes of each stream assigned so far, and per-layer ends
	ends := make(map[*bpe.Stream][]int)
	used := make(map[*bpe.Stream]int)
	t.each(segments, func(st *bpe.Stream, off []int) { ends[st] = off })
	highest := 0
	cur := cursor{remaining: budgets[0]}
	for _, p := range passes {
		st := p.st
		size := st.PassEnd(p.index) - used[st]
		cur = cur.spill(size, budgets, func(layer, n int) {
			used[st] += n
			ends[st][layer+1] = used[st]
			highest = max(highest, layer)
		})
	}

	if cfg.CropUnused {
		t.Layers = highest + 1
	}
	for st, off := range ends {
		off = off[:t.Layers+1]
		for k := 1; k <= t.Layers; k++ {
			off[k] = max(off[k], off[k-1])
		}
		off[t.Layers] = len(st.Data)
		ends[st] = off
	}
	t.each(segments, func(st *bpe.Stream, off []int) {
		copy(off, ends[st])
	})
	return nil
}
