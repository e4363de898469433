// Package ccsds122 is the file codec around the bit-plane encoder: it
// gathers Mallat planes into blocks, codes them segment by segment,
// allocates the streams into quality layers, and writes the packets in a
// progression order behind a header that lets a decoder or extractor
// replay the same traversal.
package ccsds122

import (
	"errors"
	"fmt"
	"io"
	"math/bits"

	"github.com/google/uuid"
	"github.com/jpfielding/bpe.go/pkg/compress/bitio"
	"github.com/jpfielding/bpe.go/pkg/compress/bpe"
	"github.com/jpfielding/bpe.go/pkg/compress/packet"
)

const (
	Magic   = "BPE1"
	Version = 1

	maxComponents = 32
	maxPixels     = 1 << 30
)

var (
	ErrMagic   = fmt.Errorf("%w: not a coded file", bpe.ErrProtocol)
	ErrVersion = fmt.Errorf("%w: unsupported version", bpe.ErrProtocol)
)

// Rect is a pixel rectangle with exclusive upper bounds
type Rect struct {
	X0, Y0, X1, Y1 int
}

// Empty reports whether the rectangle covers no pixels
func (r Rect) Empty() bool {
	return r.X1 <= r.X0 || r.Y1 <= r.Y0
}

// Intersect returns the overlap of two rectangles
func (r Rect) Intersect(o Rect) Rect {
	return Rect{max(r.X0, o.X0), max(r.Y0, o.Y0), min(r.X1, o.X1), min(r.Y1, o.Y1)}
}

// Selection restricts which packets a file holds
type Selection struct {
	Levels     int    // resolution levels kept, DC included (0 = all)
	Layers     int    // quality layers kept (0 = all)
	Window     Rect   // full resolution pixels touched by the kept gaggles
	Components uint32 // bit i keeps component i
}

// SegmentHeader carries the per segment values the decoder needs
type SegmentHeader struct {
	BitDepthDC int
	BitDepthAC int
	Q          int
}

// ComponentHeader describes one coded component
type ComponentHeader struct {
	Width    int
	Height   int
	Params   bpe.Params
	Segments []SegmentHeader
}

func (ch *ComponentHeader) component() *Component {
	return &Component{Width: ch.Width, Height: ch.Height, Params: ch.Params}
}

// Header opens every coded file
type Header struct {
	StreamID   uuid.UUID
	Order      packet.ProgressionOrder
	Layers     int
	Selection  *Selection `json:",omitempty"`
	Components []ComponentHeader
}

// Space returns the packets a file with this header holds
func (h *Header) Space() *packet.Space {
	s := &packet.Space{Layers: h.Layers, Include: h.include(h.Selection)}
	for i := range h.Components {
		c := h.Components[i].component()
		pc := packet.Component{Levels: c.Params.NumLevels()}
		for seg := 0; seg < c.NumSegments(); seg++ {
			_, n := c.Segment(seg)
			row := make([]int, pc.Levels)
			for r := range row {
				row[r] = c.Params.NumGaggles(r, n)
			}
			pc.Gaggles = append(pc.Gaggles, row)
		}
		s.Components = append(s.Components, pc)
	}
	return s
}

// include returns the packet filter of a selection
func (h *Header) include(sel *Selection) func(packet.Key) bool {
	if sel == nil {
		return nil
	}
	return func(k packet.Key) bool {
		switch {
		case sel.Components&(1<<k.Component) == 0:
			return false
		case sel.Levels > 0 && k.Level >= sel.Levels:
			return false
		case sel.Layers > 0 && k.Layer >= sel.Layers:
			return false
		}
		return h.Components[k.Component].component().gaggleTouches(k.Segment, k.Level, k.Gaggle, sel.Window)
	}
}

// gaggleTouches reports whether any block of a gaggle overlaps the window
func (c *Component) gaggleTouches(seg, level, gaggle int, win Rect) bool {
	first, n := c.Segment(seg)
	size := c.Params.GaggleSize(level)
	grid := c.Grid()
	for b := gaggle * size; b < min((gaggle+1)*size, n); b++ {
		x0, y0, x1, y1 := grid.PixelRect(first + b)
		if !win.Intersect(Rect{x0, y0, x1, y1}).Empty() {
			return true
		}
	}
	return false
}

// WriteHeader serializes h
func WriteHeader(w io.Writer, h *Header) error {
	bw := bitio.NewByteWriter(w)
	if err := writeHeader(bw, h); err != nil {
		return err
	}
	return bw.Flush()
}

func writeHeader(bw *bitio.ByteWriter, h *Header) error {
	if h.Layers < 1 || h.Layers > 0xFFFF {
		return fmt.Errorf("%w: %d layers outside 1..65535", bpe.ErrConfiguration, h.Layers)
	}
	if len(h.Components) == 0 || len(h.Components) > maxComponents {
		return fmt.Errorf("%w: %d components outside 1..%d", bpe.ErrConfiguration, len(h.Components), maxComponents)
	}
	hw := &headerWriter{bw: bw}
	hw.raw([]byte(Magic))
	hw.u8(Version)
	hw.raw(h.StreamID[:])
	hw.u8(int(h.Order))
	hw.u16(h.Layers)
	if sel := h.Selection; sel != nil {
		hw.u8(1)
		hw.u8(sel.Levels)
		hw.u16(sel.Layers)
		for _, v := range []int{sel.Window.X0, sel.Window.Y0, sel.Window.X1, sel.Window.Y1} {
			hw.u32(max(v, 0))
		}
		hw.u32(int(sel.Components))
	} else {
		hw.u8(0)
	}
	hw.u16(len(h.Components))
	for _, c := range h.Components {
		p := c.Params
		hw.u32(c.Width)
		hw.u32(c.Height)
		hw.u8(p.Levels)
		hw.u32(p.BlocksPerSegment)
		hw.u16(p.GaggleSizeDC)
		hw.u16(p.GaggleSizeAC)
		hw.u16(p.IDDC)
		hw.u16(p.IDAC)
		hw.u8(int(p.Entropy))
		hw.flag(p.DCStop)
		hw.u8(p.BitPlaneStop)
		hw.u8(p.StageStop)
		for s := 0; s < bpe.NumSubbands(p.Levels); s++ {
			v := 0
			if s < len(p.BP) {
				v = p.BP[s]
			}
			hw.u8(v)
		}
	}
	for _, c := range h.Components {
		for _, s := range c.Segments {
			hw.u8(s.BitDepthDC)
			hw.u8(s.BitDepthAC)
			hw.u8(s.Q)
		}
	}
	return hw.err
}

// headerWriter keeps the first write error
type headerWriter struct {
	bw  *bitio.ByteWriter
	err error
}

func (hw *headerWriter) raw(b []byte) {
	if hw.err == nil {
		hw.err = hw.bw.WriteBytes(b)
	}
}

// fits records a configuration error when v overflows a field of the
// given width
func (hw *headerWriter) fits(v int, width int) bool {
	if hw.err == nil && (v < 0 || uint64(v) >= 1<<width) {
		hw.err = fmt.Errorf("%w: header value %d overflows %d bits", bpe.ErrConfiguration, v, width)
	}
	return hw.err == nil
}

func (hw *headerWriter) u8(v int) {
	if hw.fits(v, 8) {
		hw.err = hw.bw.WriteByte(byte(v))
	}
}

func (hw *headerWriter) flag(v bool) {
	if v {
		hw.u8(1)
	} else {
		hw.u8(0)
	}
}

func (hw *headerWriter) u16(v int) {
	if hw.fits(v, 16) {
		hw.err = hw.bw.WriteUint16(uint16(v))
	}
}

func (hw *headerWriter) u32(v int) {
	if hw.fits(v, 32) {
		hw.err = hw.bw.WriteUint32(uint32(v))
	}
}

// ReadHeader parses a header from r
func ReadHeader(r io.Reader) (*Header, error) {
	return readHeader(bitio.NewByteReader(r))
}

func readHeader(br *bitio.ByteReader) (*Header, error) {
	hr := &headerReader{br: br}
	if magic := hr.raw(len(Magic)); hr.err == nil && string(magic) != Magic {
		return nil, fmt.Errorf("%w: magic %q", ErrMagic, magic)
	}
	if v := hr.u8(); hr.err == nil && v != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, v)
	}
	h := &Header{}
	copy(h.StreamID[:], hr.raw(len(h.StreamID)))
	h.Order = packet.ProgressionOrder(hr.u8())
	h.Layers = hr.u16()
	if hr.u8() != 0 {
		h.Selection = &Selection{
			Levels: hr.u8(),
			Layers: hr.u16(),
			Window: Rect{hr.u32(), hr.u32(), hr.u32(), hr.u32()},
		}
		h.Selection.Components = uint32(hr.u32())
	}
	n := hr.u16()
	if hr.err != nil {
		return nil, hr.fail()
	}
	if !h.Order.Valid() {
		return nil, fmt.Errorf("%w: progression order %d", bpe.ErrProtocol, h.Order)
	}
	if h.Layers < 1 || n < 1 || n > maxComponents {
		return nil, fmt.Errorf("%w: %d layers, %d components", bpe.ErrProtocol, h.Layers, n)
	}
	h.Components = make([]ComponentHeader, n)
	for i := range h.Components {
		c := &h.Components[i]
		c.Width = hr.u32()
		c.Height = hr.u32()
		p := bpe.Params{Levels: hr.u8()}
		p.BlocksPerSegment = hr.u32()
		p.GaggleSizeDC = hr.u16()
		p.GaggleSizeAC = hr.u16()
		p.IDDC = hr.u16()
		p.IDAC = hr.u16()
		p.Entropy = bpe.Entropy(hr.u8())
		p.DCStop = hr.u8() != 0
		p.BitPlaneStop = hr.u8()
		p.StageStop = hr.u8()
		if hr.err != nil {
			return nil, hr.fail()
		}
		if p.Levels < 1 || p.Levels > bpe.MaxLevels {
			return nil, fmt.Errorf("%w: component %d levels %d", bpe.ErrProtocol, i, p.Levels)
		}
		p.BP = make([]int, bpe.NumSubbands(p.Levels))
		for s := range p.BP {
			p.BP[s] = hr.u8()
		}
		c.Params = p
		if err := c.component().Validate(); err != nil {
			return nil, fmt.Errorf("%w: component %d: %w", bpe.ErrProtocol, i, err)
		}
	}
	for i := range h.Components {
		c := &h.Components[i]
		c.Segments = make([]SegmentHeader, c.component().NumSegments())
		for s := range c.Segments {
			c.Segments[s] = SegmentHeader{BitDepthDC: hr.u8(), BitDepthAC: hr.u8(), Q: hr.u8()}
		}
	}
	if hr.err != nil {
		return nil, hr.fail()
	}
	return h, nil
}

// headerReader keeps the first read error
type headerReader struct {
	br  *bitio.ByteReader
	err error
}

func (hr *headerReader) fail() error {
	if errors.Is(hr.err, io.EOF) || errors.Is(hr.err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: header: %w", bpe.ErrProtocol, io.ErrUnexpectedEOF)
	}
	return fmt.Errorf("header: %w", hr.err)
}

func (hr *headerReader) raw(n int) []byte {
	if hr.err != nil {
		return nil
	}
	var b []byte
	b, hr.err = hr.br.ReadBytes(n)
	return b
}

func (hr *headerReader) u8() int {
	if hr.err != nil {
		return 0
	}
	v, err := hr.br.ReadByte()
	hr.err = err
	return int(v)
}

func (hr *headerReader) u16() int {
	if hr.err != nil {
		return 0
	}
	v, err := hr.br.ReadUint16()
	hr.err = err
	return int(v)
}

func (hr *headerReader) u32() int {
	if hr.err != nil {
		return 0
	}
	v, err := hr.br.ReadUint32()
	hr.err = err
	return int(v)
}

// componentMask returns the mask keeping the listed components (all when
// the list is empty).
func componentMask(n int, list []int) (uint32, error) {
	if len(list) == 0 {
		return uint32(1<<n - 1), nil
	}
	var mask uint32
	for _, c := range list {
		if c < 0 || c >= n {
			return 0, fmt.Errorf("%w: component %d outside 0..%d", bpe.ErrConfiguration, c, n-1)
		}
		mask |= 1 << c
	}
	return mask, nil
}

// keptComponents counts the bits of a mask
func keptComponents(mask uint32) int {
	return bits.OnesCount32(mask)
}
