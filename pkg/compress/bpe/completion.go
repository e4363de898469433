package bpe

// Completion chooses the value given to DC coefficients whose codes were cut
// off by the end of the stream.
//
//	0   zero
//	1   mid-magnitude of the segment's DC dynamic range
//	2   mean of every DC decoded so far in the segment
//	n>2 mean of the last n-2 decoded DCs
type Completion int

const (
	CompletionZero    Completion = 0
	CompletionMid     Completion = 1
	CompletionMeanAll Completion = 2
)

// CompletionMeanLast returns the policy averaging the last n decoded values
func CompletionMeanLast(n int) Completion {
	return Completion(n + 2)
}

// dcHistory records decoded quantized DC values in decode order
type dcHistory struct {
	values []int64
}

func (h *dcHistory) add(v int64) {
	h.values = append(h.values, v)
}

// fill returns the quantized value for a block the stream never reached.
// Means use Go integer division, truncating toward zero.
func (h *dcHistory) fill(policy Completion, bitDepthDC, q int) int64 {
	switch {
	case policy <= CompletionZero:
		return 0
	case policy == CompletionMid:
		if bitDepthDC < 2 {
			return 0
		}
		return (int64(1) << (bitDepthDC - 2)) >> q
	}
	vals := h.values
	if policy > CompletionMeanAll {
		if n := int(policy) - 2; len(vals) > n {
			vals = vals[len(vals)-n:]
		}
	}
	if len(vals) == 0 {
		return 0
	}
	var sum int64
	for _, v := range vals {
		sum += v
	}
	return sum / int64(len(vals))
}
