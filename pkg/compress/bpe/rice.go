package bpe

import (
	"fmt"

	"github.com/jpfielding/bpe.go/pkg/compress/bitio"
)

// valueRange is the N-bit domain of the integers a gaggle coder carries
type valueRange struct {
	bits   int
	signed bool
}

func (vr valueRange) min() int64 {
	if vr.signed {
		return -(1 << (vr.bits - 1))
	}
	return 0
}

func (vr valueRange) max() int64 {
	if vr.signed {
		return (1 << (vr.bits - 1)) - 1
	}
	return (1 << vr.bits) - 1
}

func (vr valueRange) raw(v int64) uint32 {
	return uint32(v) & ((1 << vr.bits) - 1)
}

func (vr valueRange) fromRaw(u uint32) int64 {
	v := int64(u)
	if vr.signed && v >= 1<<(vr.bits-1) {
		v -= 1 << vr.bits
	}
	return v
}

// mapDelta folds the difference to the previous value into 0..2^N-1 using
// the room left between prev and the ends of the range.
func mapDelta(v, prev int64, vr valueRange) uint32 {
	d := v - prev
	theta := min(prev-vr.min(), vr.max()-prev)
	switch {
	case d >= 0 && d <= theta:
		return uint32(2 * d)
	case d < 0 && -d <= theta:
		return uint32(-2*d - 1)
	case d < 0:
		return uint32(theta - d)
	default:
		return uint32(theta + d)
	}
}

// unmapDelta inverts mapDelta
func unmapDelta(m uint32, prev int64, vr valueRange) int64 {
	low, high := prev-vr.min(), vr.max()-prev
	theta := min(low, high)
	mv := int64(m)
	if mv <= 2*theta {
		if mv%2 == 0 {
			return prev + mv/2
		}
		return prev - (mv+1)/2
	}
	if low < high {
		return prev + (mv - theta)
	}
	return prev - (mv - theta)
}

// gaggleCoder codes the integers of one gaggle: every stride-th value is a
// raw reference, the others are mapped DPCM deltas written raw or with a
// Rice code whose parameter is chosen for the whole gaggle.
type gaggleCoder struct {
	vr     valueRange
	stride int
	mode   Entropy
}

// optionBits returns the width of the per-gaggle option id (0 = none)
func (gc gaggleCoder) optionBits() int {
	if gc.mode == EntropyRaw || gc.vr.bits < 2 {
		return 0
	}
	return bitLen(int64(gc.vr.bits - 1))
}

func (gc gaggleCoder) escapeID() int {
	return (1 << gc.optionBits()) - 1
}

func (gc gaggleCoder) isRef(j int) bool {
	return j%gc.stride == 0
}

func (gc gaggleCoder) hasDeltas(count int) bool {
	return count > 1 && gc.stride > 1
}

// chooseK returns the Rice parameter, or -1 when raw deltas are cheaper
func (gc gaggleCoder) chooseK(mapped []uint32) int {
	rawCost := gc.vr.bits * len(mapped)
	bestK, bestCost := -1, rawCost
	for k := 0; k <= gc.vr.bits-2; k++ {
		cost := 0
		for _, m := range mapped {
			cost += int(m>>k) + 1 + k
		}
		if cost < bestCost {
			bestK, bestCost = k, cost
		}
	}
	return bestK
}

func (gc gaggleCoder) encode(w *bitio.Writer, vals []int64) {
	mapped := make([]uint32, 0, len(vals))
	for j := range vals {
		if !gc.isRef(j) {
			mapped = append(mapped, mapDelta(vals[j], vals[j-1], gc.vr))
		}
	}
	k := -1
	if gc.optionBits() > 0 && gc.hasDeltas(len(vals)) {
		k = gc.chooseK(mapped)
		id := k
		if k < 0 {
			id = gc.escapeID()
		}
		w.WriteBits(uint32(id), gc.optionBits())
	}
	next := 0
	for j, v := range vals {
		if gc.isRef(j) {
			w.WriteBits(gc.vr.raw(v), gc.vr.bits)
			continue
		}
		m := mapped[next]
		next++
		if k < 0 {
			w.WriteBits(m, gc.vr.bits)
			continue
		}
		w.WriteZeros(int(m >> k))
		w.WriteBit(1)
		w.WriteBits(m&((1<<k)-1), k)
	}
}

// decode fills out and returns how many leading values were recovered
// before the source ended or failed.
func (gc gaggleCoder) decode(r *bitio.Reader, out []int64) (int, error) {
	k := -1
	if gc.optionBits() > 0 && gc.hasDeltas(len(out)) {
		id, err := r.ReadBits(gc.optionBits())
		if err != nil {
			return 0, err
		}
		switch {
		case int(id) == gc.escapeID():
		case int(id) <= gc.vr.bits-2:
			k = int(id)
		default:
			return 0, fmt.Errorf("%w: rice option %d for %d-bit values", ErrProtocol, id, gc.vr.bits)
		}
	}
	for j := range out {
		if gc.isRef(j) {
			u, err := r.ReadBits(gc.vr.bits)
			if err != nil {
				return j, err
			}
			out[j] = gc.vr.fromRaw(u)
			continue
		}
		var m uint32
		if k < 0 {
			u, err := r.ReadBits(gc.vr.bits)
			if err != nil {
				return j, err
			}
			m = u
		} else {
			u, err := readRice(r, k, uint32(gc.vr.max()-gc.vr.min()))
			if err != nil {
				return j, err
			}
			m = u
		}
		out[j] = unmapDelta(m, out[j-1], gc.vr)
	}
	return len(out), nil
}

// readRice reads a fundamental sequence (zeros closed by a one) followed by
// k remainder bits. Quotients past limit>>k cannot come from the encoder.
func readRice(r *bitio.Reader, k int, limit uint32) (uint32, error) {
	start := r.BitPos()
	var z uint32
	for {
		bit, err := r.ReadBit()
		if err != nil {
			r.Seek(start)
			return 0, err
		}
		if bit == 1 {
			break
		}
		z++
		if z > limit>>k {
			return 0, fmt.Errorf("%w: fundamental sequence overrun", ErrProtocol)
		}
	}
	rem, err := r.ReadBits(k)
	if err != nil {
		r.Seek(start)
		return 0, err
	}
	return z<<k | rem, nil
}
