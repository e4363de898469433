package ccsds122

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jpfielding/bpe.go/pkg/compress/bitio"
	"github.com/jpfielding/bpe.go/pkg/compress/bpe"
	"github.com/jpfielding/bpe.go/pkg/compress/packet"
)

// DecodeOptions configures reconstruction
type DecodeOptions struct {
	bpe.DecodeOptions
	Layers int // quality layers to use (0 = all present)
}

// DefaultDecodeOptions returns midpoint reconstruction of every layer
func DefaultDecodeOptions() *DecodeOptions {
	return &DecodeOptions{DecodeOptions: bpe.DefaultDecodeOptions()}
}

// Report describes what a decode recovered
type Report struct {
	StreamID  uuid.UUID
	Order     packet.ProgressionOrder
	Packets   int  // packets read
	Bytes     int  // payload bytes handed to the decoder
	Truncated bool // the file ended before its last packet
	bpe.DecodeStats
}

// Decode reads a coded file and reconstructs its components. Truncated
// input is not an error: the image holds whatever the packets present
// could recover and the report says what was missing. Segments that fail
// with a protocol error are left partially decoded and their errors are
// joined into the returned error.
func Decode(r io.Reader, opts *DecodeOptions) (*Image, *Report, error) {
	if opts == nil {
		opts = DefaultDecodeOptions()
	}
	br := bufio.NewReader(r)
	h, err := readHeader(bitio.NewByteReader(br))
	if err != nil {
		return nil, nil, err
	}
	rep := &Report{StreamID: h.StreamID, Order: h.Order}

	// streams start nil (not selected) and become non-nil once the file
	// is expected to carry them
	segments := make([][]*bpe.Segment, len(h.Components))
	for i := range h.Components {
		segments[i] = skeleton(&h.Components[i])
	}
	space := h.Space()
	wanted := func(k packet.Key) bool {
		return (opts.Layers <= 0 || k.Layer < opts.Layers) && (opts.Levels <= 0 || k.Level < opts.Levels)
	}
	err = packet.Walk(h.Order, space, func(k packet.Key) error {
		if st := segments[k.Component][k.Segment].Streams[k.Level][k.Gaggle]; st.Data == nil && wanted(k) {
			st.Data = []byte{}
		}
		return nil
	})
	if err != nil {
		return nil, rep, err
	}
	rep.Truncated, err = packet.ReadAll(br, h.Order, space, func(k packet.Key, data []byte) error {
		rep.Packets++
		if !wanted(k) {
			return nil
		}
		st := segments[k.Component][k.Segment].Streams[k.Level][k.Gaggle]
		st.Data = append(st.Data, data...)
		rep.Bytes += len(data)
		return nil
	})
	if err != nil {
		return nil, rep, fmt.Errorf("read packets: %w", err)
	}
	if rep.Truncated {
		attrs := []any{
			slog.String("stream", h.StreamID.String()),
			slog.Int("packets", rep.Packets),
		}
		if h.Selection == nil {
			slog.Warn("coded file ended early", attrs...)
		} else {
			slog.Debug("extracted file ended early", attrs...)
		}
	}

	img := &Image{}
	var errs []error
	for i := range h.Components {
		c := h.Components[i].component()
		c.Plane = make([]int32, c.Width*c.Height)
		blocks := bpe.NewBlocks(bpe.Layout{Levels: c.Params.Levels}, c.Grid().NumBlocks())
		for _, seg := range segments[i] {
			got, stats, err := bpe.DecodeSegment(&c.Params, seg, opts.DecodeOptions)
			rep.Add(stats)
			if err != nil {
				errs = append(errs, fmt.Errorf("component %d: %w", i, err))
			}
			copy(blocks[seg.FirstBlock:], got)
		}
		c.Grid().Scatter(blocks, c.Plane)
		img.Components = append(img.Components, c)
	}
	if rep.Truncated && rep.DecodeStats.Truncated > 0 {
		slog.Debug("streams truncated",
			slog.Int("streams", rep.DecodeStats.Truncated),
			slog.Int("filled", rep.Filled))
	}
	return img, rep, errors.Join(errs...)
}

// skeleton builds the segments of a component with empty streams
func skeleton(ch *ComponentHeader) []*bpe.Segment {
	c := ch.component()
	segs := make([]*bpe.Segment, len(ch.Segments))
	for i, sh := range ch.Segments {
		first, n := c.Segment(i)
		seg := &bpe.Segment{
			Index:      i,
			FirstBlock: first,
			NumBlocks:  n,
			BitDepthDC: sh.BitDepthDC,
			BitDepthAC: sh.BitDepthAC,
			Q:          sh.Q,
			Streams:    make([][]*bpe.Stream, c.Params.NumLevels()),
		}
		for r := range seg.Streams {
			seg.Streams[r] = make([]*bpe.Stream, c.Params.NumGaggles(r, n))
			for g := range seg.Streams[r] {
				seg.Streams[r][g] = &bpe.Stream{Level: r, Gaggle: g}
			}
		}
		segs[i] = seg
	}
	return segs
}
