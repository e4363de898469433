package ccsds122

import (
	"bufio"
	"fmt"
	"io"

	"github.com/jpfielding/bpe.go/pkg/compress/bitio"
	"github.com/jpfielding/bpe.go/pkg/compress/bpe"
)

// Component is one channel of wavelet coefficients in Mallat layout
type Component struct {
	Width  int
	Height int
	Params bpe.Params
	Plane  []int32 // row-major, Width*Height
}

// NewComponent allocates a zeroed plane for the given geometry
func NewComponent(width, height int, params bpe.Params) *Component {
	return &Component{
		Width:  width,
		Height: height,
		Params: params,
		Plane:  make([]int32, width*height),
	}
}

// Grid returns the block geometry of the component
func (c *Component) Grid() bpe.BlockGrid {
	return bpe.BlockGrid{Width: c.Width, Height: c.Height, Levels: c.Params.Levels}
}

// NumSegments returns how many segments the component's blocks split into
func (c *Component) NumSegments() int {
	n := c.Grid().NumBlocks()
	return (n + c.Params.BlocksPerSegment - 1) / c.Params.BlocksPerSegment
}

// Segment returns the first block and block count of segment i
func (c *Component) Segment(i int) (int, int) {
	first := i * c.Params.BlocksPerSegment
	return first, min(c.Params.BlocksPerSegment, c.Grid().NumBlocks()-first)
}

// Validate checks that the plane matches its geometry
func (c *Component) Validate() error {
	if err := c.Params.Validate(); err != nil {
		return err
	}
	if err := c.Grid().Validate(); err != nil {
		return err
	}
	if c.Width*c.Height > maxPixels {
		return fmt.Errorf("%w: %dx%d exceeds %d coefficients", bpe.ErrConfiguration, c.Width, c.Height, maxPixels)
	}
	if c.Plane != nil && len(c.Plane) != c.Width*c.Height {
		return fmt.Errorf("%w: plane holds %d coefficients, want %d", bpe.ErrConfiguration, len(c.Plane), c.Width*c.Height)
	}
	return nil
}

// Image is a set of components coded into one file
type Image struct {
	Components []*Component
}

// Validate checks every component
func (img *Image) Validate() error {
	if len(img.Components) == 0 || len(img.Components) > maxComponents {
		return fmt.Errorf("%w: %d components outside 1..%d", bpe.ErrConfiguration, len(img.Components), maxComponents)
	}
	for i, c := range img.Components {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("component %d: %w", i, err)
		}
	}
	return nil
}

// PlaneMagic starts a raw coefficient file
const PlaneMagic = "BPEC"

// ReadPlane reads a raw coefficient file: magic, width u32, height u32,
// levels u8, then the Mallat plane as big-endian int32.
func ReadPlane(r io.Reader) (*Component, error) {
	br := bitio.NewByteReader(r)
	magic, err := br.ReadBytes(len(PlaneMagic))
	if err != nil {
		return nil, fmt.Errorf("read plane magic: %w", err)
	}
	if string(magic) != PlaneMagic {
		return nil, fmt.Errorf("%w: plane magic %q", bpe.ErrProtocol, magic)
	}
	w, err := br.ReadUint32()
	if err != nil {
		return nil, err
	}
	h, err := br.ReadUint32()
	if err != nil {
		return nil, err
	}
	levels, err := br.ReadByte()
	if err != nil {
		return nil, err
	}
	if uint64(w)*uint64(h) > maxPixels {
		return nil, fmt.Errorf("%w: plane %dx%d too large", bpe.ErrProtocol, w, h)
	}
	c := NewComponent(int(w), int(h), bpe.DefaultParams(int(levels)))
	if err := c.Grid().Validate(); err != nil {
		return nil, err
	}
	for i := range c.Plane {
		v, err := br.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("read coefficient %d: %w", i, err)
		}
		c.Plane[i] = int32(v)
	}
	return c, nil
}

// WritePlane writes a component in the raw coefficient format
func WritePlane(w io.Writer, c *Component) error {
	bw := bitio.NewByteWriter(bufio.NewWriter(w))
	if err := bw.WriteBytes([]byte(PlaneMagic)); err != nil {
		return err
	}
	if err := bw.WriteUint32(uint32(c.Width)); err != nil {
		return err
	}
	if err := bw.WriteUint32(uint32(c.Height)); err != nil {
		return err
	}
	if err := bw.WriteByte(byte(c.Params.Levels)); err != nil {
		return err
	}
	for _, v := range c.Plane {
		if err := bw.WriteUint32(uint32(v)); err != nil {
			return err
		}
	}
	return bw.Flush()
}
