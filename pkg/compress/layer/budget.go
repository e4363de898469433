package layer

import (
	"fmt"

	"github.com/jpfielding/bpe.go/pkg/compress/bpe"
)

// SizeType selects how per-layer byte budgets are derived
type SizeType int

const (
	SizeExplicit SizeType = iota // Config.Sizes, last value repeated
	SizeEqual                    // TargetBytes split evenly
	SizeHalving                  // each layer half the next, layer 0 takes the remainder
)

func (s SizeType) String() string {
	switch s {
	case SizeExplicit:
		return "explicit"
	case SizeEqual:
		return "equal"
	case SizeHalving:
		return "halving"
	default:
		return fmt.Sprintf("SizeType(%d)", int(s))
	}
}

// ParseSizeType maps a name from String back to its SizeType
func ParseSizeType(name string) (SizeType, error) {
	for s := SizeExplicit; s <= SizeHalving; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown layer size type %q", bpe.ErrConfiguration, name)
}

// Budgets returns the byte budget of each of n layers
func Budgets(cfg Config, n int) ([]int, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d layers", bpe.ErrConfiguration, n)
	}
	sizes := make([]int, n)
	switch cfg.SizeType {
	case SizeExplicit:
		if len(cfg.Sizes) == 0 {
			return nil, fmt.Errorf("%w: explicit layer sizes missing", bpe.ErrConfiguration)
		}
		for k := range sizes {
			sizes[k] = cfg.Sizes[min(k, len(cfg.Sizes)-1)]
		}
	case SizeEqual:
		each := cfg.TargetBytes / n
		for k := range sizes {
			sizes[k] = each
		}
		sizes[n-1] += cfg.TargetBytes - each*n
	case SizeHalving:
		rest := cfg.TargetBytes
		for k := 1; k < n; k++ {
			sizes[k] = cfg.TargetBytes >> (n - k)
			rest -= sizes[k]
		}
		sizes[0] = rest
	default:
		return nil, fmt.Errorf("%w: unknown size type %d", bpe.ErrConfiguration, cfg.SizeType)
	}
	for k, v := range sizes {
		if v < 0 {
			return nil, fmt.Errorf("%w: layer %d budget %d", bpe.ErrConfiguration, k, v)
		}
	}
	return sizes, nil
}
