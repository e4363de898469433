package bpe

import (
	"github.com/jpfielding/bpe.go/pkg/compress/bitio"
)

// DCQuantization returns the number of DC LSB planes left to the refinement
// passes, given the segment's DC and AC bit depths and BP[0].
func DCQuantization(bitDepthDC, bitDepthAC, bp0 int) int {
	var q int
	diff := bitDepthDC - (1 + bitDepthAC/2)
	switch {
	case bitDepthAC == 0, bitDepthDC <= 3:
		q = 0
	case diff <= 1:
		q = bitDepthDC - 3
	case diff > 10:
		q = bitDepthDC - 10
	default:
		q = 1 + bitDepthAC/2
	}
	return max(q, bp0, bitDepthDC-10, 0)
}

// dcCoder codes the DC coefficients of one gaggle: quantized initial
// values, then one raw bit per block for each refinement plane.
type dcCoder struct {
	bitDepthDC int
	q          int
	gc         gaggleCoder
}

func newDCCoder(p *Params, bitDepthDC, q int) dcCoder {
	return dcCoder{
		bitDepthDC: bitDepthDC,
		q:          q,
		gc: gaggleCoder{
			vr:     valueRange{bits: max(bitDepthDC-q, 1), signed: true},
			stride: p.IDDC,
			mode:   p.Entropy,
		},
	}
}

func (dc dcCoder) encodeInitial(w *bitio.Writer, dcs []int64) {
	quant := make([]int64, len(dcs))
	for i, v := range dcs {
		quant[i] = v >> dc.q
	}
	dc.gc.encode(w, quant)
}

func (dc dcCoder) encodeRefine(w *bitio.Writer, dcs []int64, plane int) {
	for _, v := range dcs {
		w.WriteBit(int(v>>plane) & 1)
	}
}

// dcGaggle is the decoder's view of one DC gaggle
type dcGaggle struct {
	values []int64 // reconstructed DC values
	known  []bool  // value came from the stream rather than the completion policy
	filled int     // blocks completed by policy
}

// decodeInitial reads the quantized DCs. Blocks the stream never reached
// are completed from hist with the policy and the read error is returned so
// the caller stops the stream.
func (dc dcCoder) decodeInitial(r *bitio.Reader, g *dcGaggle, policy Completion, hist *dcHistory) error {
	quant := make([]int64, len(g.values))
	n, err := dc.gc.decode(r, quant)
	for i := 0; i < n; i++ {
		hist.add(quant[i])
		g.values[i] = quant[i] << dc.q
		g.known[i] = true
	}
	if n < len(quant) {
		fill := hist.fill(policy, dc.bitDepthDC, dc.q)
		for i := n; i < len(quant); i++ {
			g.values[i] = fill << dc.q
		}
		g.filled = len(quant) - n
	}
	return err
}

// decodeRefine ORs the plane bit into each decoded block
func (dc dcCoder) decodeRefine(r *bitio.Reader, g *dcGaggle, plane int) error {
	for i := range g.values {
		bit, err := r.ReadBit()
		if err != nil {
			return err
		}
		if g.known[i] {
			g.values[i] |= int64(bit) << plane
		}
	}
	return nil
}
