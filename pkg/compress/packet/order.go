package packet

import (
	"fmt"

	"github.com/jpfielding/bpe.go/pkg/compress/bpe"
)

// ProgressionOrder defines the nesting of the packet loops
type ProgressionOrder byte

const (
	SegmentSequential ProgressionOrder = 0 // Component-Segment-Resolution-Gaggle-Layer, not indexed
	LRCP              ProgressionOrder = 1 // Layer-Resolution-Component-Position
	RLCP              ProgressionOrder = 2 // Resolution-Layer-Component-Position
	RPCL              ProgressionOrder = 3 // Resolution-Position-Component-Layer
	PCRL              ProgressionOrder = 4 // Position-Component-Resolution-Layer
	CPRL              ProgressionOrder = 5 // Component-Position-Resolution-Layer
)

// String returns the progression order name
func (p ProgressionOrder) String() string {
	switch p {
	case SegmentSequential:
		return "SEQ"
	case LRCP:
		return "LRCP"
	case RLCP:
		return "RLCP"
	case RPCL:
		return "RPCL"
	case PCRL:
		return "PCRL"
	case CPRL:
		return "CPRL"
	default:
		return "Unknown"
	}
}

// Indexed reports whether the order supports random access extraction
func (p ProgressionOrder) Indexed() bool {
	return p >= LRCP && p <= CPRL
}

// Valid reports whether p names a known order
func (p ProgressionOrder) Valid() bool {
	return p <= CPRL
}

// ParseOrder maps a name from String back to its order
func ParseOrder(name string) (ProgressionOrder, error) {
	for p := SegmentSequential; p <= CPRL; p++ {
		if p.String() == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown progression order %q", bpe.ErrConfiguration, name)
}

// Key addresses one packet
type Key struct {
	Component int
	Segment   int
	Level     int
	Gaggle    int
	Layer     int
}

func (k Key) String() string {
	return fmt.Sprintf("c%d/s%d/r%d/g%d/l%d", k.Component, k.Segment, k.Level, k.Gaggle, k.Layer)
}

// Component describes the packets one component contributes
type Component struct {
	Levels  int     // resolution levels, DC included
	Gaggles [][]int // gaggle count per [segment][level]
}

// Space is the set of packets a file holds
type Space struct {
	Layers     int
	Components []Component
	Include    func(Key) bool // optional restriction of the traversal
}

func (s *Space) exists(k Key) bool {
	if k.Component >= len(s.Components) {
		return false
	}
	c := s.Components[k.Component]
	if k.Segment >= len(c.Gaggles) || k.Level >= c.Levels || k.Level >= len(c.Gaggles[k.Segment]) {
		return false
	}
	if k.Gaggle >= c.Gaggles[k.Segment][k.Level] {
		return false
	}
	return s.Include == nil || s.Include(k)
}

// extent returns the loop bounds shared by every component
func (s *Space) extent() (levels, segments int, gaggles []int) {
	for _, c := range s.Components {
		levels = max(levels, c.Levels)
		segments = max(segments, len(c.Gaggles))
	}
	gaggles = make([]int, segments)
	for _, c := range s.Components {
		for seg, row := range c.Gaggles {
			for _, n := range row {
				gaggles[seg] = max(gaggles[seg], n)
			}
		}
	}
	return levels, segments, gaggles
}

type position struct {
	segment, gaggle int
}

// Walk calls fn for every packet of the space in progression order. Walk
// stops at the first error fn returns and passes it through.
func Walk(order ProgressionOrder, s *Space, fn func(Key) error) error {
	levels, segments, gaggles := s.extent()
	var positions []position
	for seg := 0; seg < segments; seg++ {
		for g := 0; g < gaggles[seg]; g++ {
			positions = append(positions, position{seg, g})
		}
	}

	emit := func(k Key) error {
		if !s.exists(k) {
			return nil
		}
		return fn(k)
	}
	type loop func(k Key, inner func(Key) error) error
	layer := func(k Key, inner func(Key) error) error {
		for l := 0; l < s.Layers; l++ {
			k.Layer = l
			if err := inner(k); err != nil {
				return err
			}
		}
		return nil
	}
	resolution := func(k Key, inner func(Key) error) error {
		for r := 0; r < levels; r++ {
			k.Level = r
			if err := inner(k); err != nil {
				return err
			}
		}
		return nil
	}
	component := func(k Key, inner func(Key) error) error {
		for c := range s.Components {
			k.Component = c
			if err := inner(k); err != nil {
				return err
			}
		}
		return nil
	}
	pos := func(k Key, inner func(Key) error) error {
		for _, p := range positions {
			k.Segment, k.Gaggle = p.segment, p.gaggle
			if err := inner(k); err != nil {
				return err
			}
		}
		return nil
	}
	segment := func(k Key, inner func(Key) error) error {
		for seg := 0; seg < segments; seg++ {
			k.Segment = seg
			if err := inner(k); err != nil {
				return err
			}
		}
		return nil
	}
	gaggle := func(k Key, inner func(Key) error) error {
		for g := 0; g < gaggles[k.Segment]; g++ {
			k.Gaggle = g
			if err := inner(k); err != nil {
				return err
			}
		}
		return nil
	}

	var loops []loop
	switch order {
	case SegmentSequential:
		loops = []loop{component, segment, resolution, gaggle, layer}
	case LRCP:
		loops = []loop{layer, resolution, component, pos}
	case RLCP:
		loops = []loop{resolution, layer, component, pos}
	case RPCL:
		loops = []loop{resolution, pos, component, layer}
	case PCRL:
		loops = []loop{pos, component, resolution, layer}
	case CPRL:
		loops = []loop{component, pos, resolution, layer}
	default:
		return fmt.Errorf("%w: unknown progression order %d", bpe.ErrConfiguration, order)
	}

	var nest func(depth int, k Key) error
	nest = func(depth int, k Key) error {
		if depth == len(loops) {
			return emit(k)
		}
		return loops[depth](k, func(k Key) error { return nest(depth+1, k) })
	}
	return nest(0, Key{})
}

// Keys returns every packet of the space in progression order
func Keys(order ProgressionOrder, s *Space) ([]Key, error) {
	var keys []Key
	err := Walk(order, s, func(k Key) error {
		keys = append(keys, k)
		return nil
	})
	return keys, err
}
