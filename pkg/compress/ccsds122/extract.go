package ccsds122

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jpfielding/bpe.go/pkg/compress/bitio"
	"github.com/jpfielding/bpe.go/pkg/compress/bpe"
	"github.com/jpfielding/bpe.go/pkg/compress/packet"
)

var errBudget = errors.New("ccsds122: byte budget reached")

// FileIndex locates every packet of a coded file
type FileIndex struct {
	Header     *Header
	HeaderSize int64 // packets start at this offset
	Packets    *packet.Index
}

// Index reads the header and every packet header of a coded file. A file
// that ends early yields the packets found so far.
func Index(r io.Reader) (*FileIndex, error) {
	br := bufio.NewReader(r)
	hr := bitio.NewByteReader(br)
	h, err := readHeader(hr)
	if err != nil {
		return nil, err
	}
	ix, err := packet.BuildIndex(br, h.Order, h.Space())
	if err != nil {
		return nil, err
	}
	return &FileIndex{Header: h, HeaderSize: hr.Offset(), Packets: ix}, nil
}

// Request selects the part of a file to extract
type Request struct {
	MaxBytes   int64 // output size limit, header included (0 = unlimited)
	Window     Rect  // full resolution pixel window (empty = whole image)
	Levels     int   // resolution levels kept, DC included (0 = all)
	Layers     int   // quality layers kept (0 = all)
	Components []int // components kept (empty = all)
}

// ExtractReport describes an extraction
type ExtractReport struct {
	Packets    int
	Bytes      int64 // output bytes, header included
	Components int   // components kept
	Truncated  bool  // the budget or the source cut the last packet
}

// Extract copies the packets a request selects from a coded file of the
// given size into a new file. Only an indexed progression order with
// equal DC and AC gaggle sizes supports extraction, since a gaggle then
// covers the same blocks at every resolution level.
func Extract(r io.ReaderAt, size int64, w io.Writer, req Request) (*ExtractReport, error) {
	fi, err := Index(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, err
	}
	h := fi.Header
	if !h.Order.Indexed() {
		return nil, fmt.Errorf("%w: %s files cannot be extracted", bpe.ErrConfiguration, h.Order)
	}
	for i, c := range h.Components {
		if c.Params.GaggleSizeDC != c.Params.GaggleSizeAC {
			return nil, fmt.Errorf("%w: component %d gaggle sizes DC=%d AC=%d differ",
				bpe.ErrConfiguration, i, c.Params.GaggleSizeDC, c.Params.GaggleSizeAC)
		}
	}
	sel, err := h.narrow(req)
	if err != nil {
		return nil, err
	}

	out := *h
	out.Selection = sel
	var hdr bytes.Buffer
	if err := WriteHeader(&hdr, &out); err != nil {
		return nil, err
	}
	if req.MaxBytes > 0 && int64(hdr.Len()) > req.MaxBytes {
		return nil, fmt.Errorf("%w: budget %d below header size %d", bpe.ErrConfiguration, req.MaxBytes, hdr.Len())
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(hdr.Bytes()); err != nil {
		return nil, err
	}
	rep := &ExtractReport{Bytes: int64(hdr.Len()), Components: keptComponents(sel.Components)}
	pw := packet.NewWriter(bw)
	var payload []byte
	err = packet.Walk(h.Order, out.Space(), func(k packet.Key) error {
		e, ok := fi.Packets.Lookup(k)
		if !ok {
			rep.Truncated = true
			return errBudget
		}
		n := e.Avail
		if req.MaxBytes > 0 {
			room := req.MaxBytes - rep.Bytes
			if hdrLen(n)+int64(n) > room {
				n = int(room - hdrLen(int(room)))
				if n <= 0 {
					rep.Truncated = true
					return errBudget
				}
			}
		}
		if cap(payload) < n {
			payload = make([]byte, n)
		}
		payload = payload[:n]
		if got, err := r.ReadAt(payload, fi.HeaderSize+e.Offset); got < n {
			return fmt.Errorf("read packet %s: %w", k, err)
		}
		if err := pw.WritePacket(payload); err != nil {
			return err
		}
		rep.Packets++
		rep.Bytes += hdrLen(n) + int64(n)
		if n < e.Length {
			rep.Truncated = true
			return errBudget
		}
		return nil
	})
	if err != nil && !errors.Is(err, errBudget) {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	slog.Debug("extracted",
		slog.String("stream", h.StreamID.String()),
		slog.Int("packets", rep.Packets),
		slog.Int64("bytes", rep.Bytes),
		slog.Bool("truncated", rep.Truncated))
	return rep, nil
}

func hdrLen(n int) int64 {
	return int64(packet.HeaderLen(n))
}

// narrow turns a request into a selection, intersected with any selection
// the file already carries.
func (h *Header) narrow(req Request) (*Selection, error) {
	mask, err := componentMask(len(h.Components), req.Components)
	if err != nil {
		return nil, err
	}
	full := Rect{}
	for _, c := range h.Components {
		full.X1 = max(full.X1, c.Width)
		full.Y1 = max(full.Y1, c.Height)
	}
	sel := &Selection{Levels: req.Levels, Layers: req.Layers, Window: full, Components: mask}
	if !req.Window.Empty() {
		sel.Window = full.Intersect(req.Window)
	}
	if sel.Layers > h.Layers {
		sel.Layers = 0
	}
	if prev := h.Selection; prev != nil {
		sel.Levels = minKept(sel.Levels, prev.Levels)
		sel.Layers = minKept(sel.Layers, prev.Layers)
		sel.Window = sel.Window.Intersect(prev.Window)
		sel.Components &= prev.Components
	}
	if sel.Levels < 0 || sel.Levels > 0xFF || sel.Layers < 0 {
		return nil, fmt.Errorf("%w: levels %d layers %d", bpe.ErrConfiguration, sel.Levels, sel.Layers)
	}
	return sel, nil
}

// minKept combines two limits where 0 means unlimited
func minKept(a, b int) int {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	}
	return min(a, b)
}
