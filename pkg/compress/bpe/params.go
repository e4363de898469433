// Package bpe implements the bit-plane encoder of a CCSDS 122.0 style
// wavelet coefficient codec: DC quantization with DPCM, quad-tree
// significance coding of AC coefficients, refinement, and the per-segment
// orchestration that produces one byte stream per (resolution level,
// gaggle) so the streams can be packetized independently.
package bpe

import "math"

// Entropy selects how coded words and DC deltas are written.
type Entropy byte

const (
	EntropyRaw   Entropy = 0 // every word and delta is written as plain bits
	EntropyCoded Entropy = 1 // table-driven codes for words, Rice codes for deltas
)

func (e Entropy) String() string {
	switch e {
	case EntropyRaw:
		return "raw"
	case EntropyCoded:
		return "coded"
	default:
		return "unknown"
	}
}

// MaxLevels bounds the wavelet depth a block can carry.
const MaxLevels = 6

// Params configures the bit-plane coding of one component
type Params struct {
	Levels           int     // Wavelet decomposition levels (block side is 2^Levels)
	BlocksPerSegment int     // Blocks per segment (last segment may be short)
	GaggleSizeDC     int     // Blocks per gaggle for the DC stream
	GaggleSizeAC     int     // Blocks per gaggle for the AC streams
	IDDC             int     // Every IDDC-th block of a gaggle is a raw DC reference
	IDAC             int     // Every IDAC-th block of a gaggle is a raw bit-depth reference
	Entropy          Entropy // Word and delta coding mode
	BP               []int   // Implicit zero LSB planes per subband (1 + 3*Levels entries)
	SegByteLimit     int     // Maximum bytes per segment (0 = unlimited)
	DCStop           bool    // Code DC coefficients only
	BitPlaneStop     int     // Lowest bitplane coded
	StageStop        int     // Resolution levels coded, 1..Levels+1 (0 = all)
}

// DefaultParams returns the recommended parameters for the given depth
func DefaultParams(levels int) Params {
	return Params{
		Levels:           levels,
		BlocksPerSegment: 256,
		GaggleSizeDC:     16,
		GaggleSizeAC:     16,
		IDDC:             16,
		IDAC:             16,
		Entropy:          EntropyCoded,
		BP:               make([]int, NumSubbands(levels)),
	}
}

// NumSubbands returns the number of subbands of a block of the given depth
func NumSubbands(levels int) int {
	return 1 + 3*levels
}

// Subband returns the BP index of a family at a resolution level (level 0 is
// the DC subband and ignores family).
func Subband(level, family int) int {
	if level == 0 {
		return 0
	}
	return 1 + 3*(level-1) + family
}

// NumLevels returns the number of resolution levels, DC included
func (p *Params) NumLevels() int {
	return p.Levels + 1
}

// GaggleSize returns the gaggle size used by a resolution level
func (p *Params) GaggleSize(level int) int {
	if level == 0 {
		return p.GaggleSizeDC
	}
	return p.GaggleSizeAC
}

// NumGaggles returns how many gaggles a segment of numBlocks has at a level
func (p *Params) NumGaggles(level, numBlocks int) int {
	size := p.GaggleSize(level)
	return (numBlocks + size - 1) / size
}

// CodedLevels returns the number of resolution levels the encoder codes
func (p *Params) CodedLevels() int {
	if p.DCStop {
		return 1
	}
	if p.StageStop <= 0 || p.StageStop > p.NumLevels() {
		return p.NumLevels()
	}
	return p.StageStop
}

// bp returns the implicit zero planes of a subband (0 when BP is short)
func (p *Params) bp(subband int) int {
	if subband < len(p.BP) {
		return p.BP[subband]
	}
	return 0
}

// Validate checks that the parameters describe a codable geometry
func (p *Params) Validate() error {
	if p.Levels < 1 || p.Levels > MaxLevels {
		return configErr("Levels", "%d outside 1..%d", p.Levels, MaxLevels)
	}
	if p.BlocksPerSegment < 1 || int64(p.BlocksPerSegment) > math.MaxUint32 {
		return configErr("BlocksPerSegment", "%d outside 1..%d", p.BlocksPerSegment, uint32(math.MaxUint32))
	}
	if !inField16(p.GaggleSizeDC) || !inField16(p.GaggleSizeAC) {
		return configErr("GaggleSize", "DC=%d AC=%d outside 1..%d", p.GaggleSizeDC, p.GaggleSizeAC, math.MaxUint16)
	}
	if !inField16(p.IDDC) || !inField16(p.IDAC) {
		return configErr("ID", "DC=%d AC=%d outside 1..%d", p.IDDC, p.IDAC, math.MaxUint16)
	}
	if p.Entropy != EntropyRaw && p.Entropy != EntropyCoded {
		return configErr("Entropy", "unknown mode %d", p.Entropy)
	}
	if len(p.BP) != 0 && len(p.BP) != NumSubbands(p.Levels) {
		return configErr("BP", "need %d entries, got %d", NumSubbands(p.Levels), len(p.BP))
	}
	for i, v := range p.BP {
		if v < 0 || v > 31 {
			return configErr("BP", "subband %d value %d outside 0..31", i, v)
		}
	}
	if p.SegByteLimit < 0 {
		return configErr("SegByteLimit", "negative limit %d", p.SegByteLimit)
	}
	if p.BitPlaneStop < 0 || p.BitPlaneStop > 31 {
		return configErr("BitPlaneStop", "%d outside 0..31", p.BitPlaneStop)
	}
	if p.StageStop < 0 || p.StageStop > p.NumLevels() {
		return configErr("StageStop", "%d outside 0..%d", p.StageStop, p.NumLevels())
	}
	return nil
}

// inField16 reports whether v fits a positive 16-bit header field
func inField16(v int) bool {
	return v >= 1 && v <= math.MaxUint16
}
