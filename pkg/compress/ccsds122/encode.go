package ccsds122

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"

	"github.com/jpfielding/bpe.go/pkg/compress/bitio"
	"github.com/jpfielding/bpe.go/pkg/compress/bpe"
	"github.com/jpfielding/bpe.go/pkg/compress/layer"
	"github.com/jpfielding/bpe.go/pkg/compress/packet"
	"github.com/jpfielding/bpe.go/pkg/util"
)

// Options configures how a file is laid out
type Options struct {
	Order  packet.ProgressionOrder // packet progression order
	Layers layer.Config            // quality layer allocation
}

// DefaultOptions returns a single layer LRCP layout
func DefaultOptions() *Options {
	return &Options{
		Order:  packet.LRCP,
		Layers: layer.DefaultConfig(),
	}
}

// Validate checks the options before encoding
func (o *Options) Validate() error {
	if !o.Order.Valid() {
		return fmt.Errorf("%w: progression order %d", bpe.ErrConfiguration, o.Order)
	}
	return o.Layers.Validate()
}

// Encode codes every component of img and writes the file to w
func Encode(w io.Writer, img *Image, opts *Options) (*Header, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}

	segments := make([][]*bpe.Segment, len(img.Components))
	for i, c := range img.Components {
		segs, err := encodeComponent(c)
		if err != nil {
			return nil, fmt.Errorf("component %d: %w", i, err)
		}
		segments[i] = segs
	}
	tab, err := layer.Allocate(opts.Layers, segments)
	if err != nil {
		return nil, err
	}

	h := &Header{Order: opts.Order, Layers: tab.Layers}
	var lengths []int
	for i, c := range img.Components {
		ch := ComponentHeader{Width: c.Width, Height: c.Height, Params: c.Params}
		if len(ch.Params.BP) == 0 {
			ch.Params.BP = make([]int, bpe.NumSubbands(ch.Params.Levels))
		}
		for _, seg := range segments[i] {
			ch.Segments = append(ch.Segments, SegmentHeader{BitDepthDC: seg.BitDepthDC, BitDepthAC: seg.BitDepthAC, Q: seg.Q})
			for _, row := range seg.Streams {
				for _, st := range row {
					lengths = append(lengths, len(st.Data))
				}
			}
		}
		h.Components = append(h.Components, ch)
	}
	h.StreamID, err = util.HashUUID(struct {
		Header  *Header
		Lengths []int
	}{h, lengths})
	if err != nil {
		return nil, err
	}

	bw := bufio.NewWriter(w)
	hw := bitio.NewByteWriter(bw)
	if err := writeHeader(hw, h); err != nil {
		return nil, err
	}
	n, err := packet.WriteAll(bw, h.Order, h.Space(), func(k packet.Key) []byte {
		st := segments[k.Component][k.Segment].Streams[k.Level][k.Gaggle]
		lo, hi := tab.Range(k.Component, k.Segment, k.Level, k.Gaggle, k.Layer)
		return st.Data[lo:hi]
	})
	if err != nil {
		return nil, fmt.Errorf("write packets: %w", err)
	}
	slog.Debug("encoded",
		slog.String("stream", h.StreamID.String()),
		slog.String("order", h.Order.String()),
		slog.Int("layers", h.Layers),
		slog.Int("packets", n))
	return h, nil
}

// encodeComponent gathers the plane into blocks and codes each segment
func encodeComponent(c *Component) ([]*bpe.Segment, error) {
	if len(c.Plane) != c.Width*c.Height {
		return nil, fmt.Errorf("%w: missing coefficient plane", bpe.ErrConfiguration)
	}
	blocks := c.Grid().Gather(c.Plane)
	segs := make([]*bpe.Segment, c.NumSegments())
	for i := range segs {
		first, n := c.Segment(i)
		seg, err := bpe.EncodeSegment(&c.Params, i, first, blocks[first:first+n])
		if err != nil {
			return nil, err
		}
		segs[i] = seg
	}
	return segs, nil
}
