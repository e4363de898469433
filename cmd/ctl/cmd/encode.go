package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jpfielding/bpe.go/pkg/compress/bpe"
	"github.com/jpfielding/bpe.go/pkg/compress/ccsds122"
	"github.com/jpfielding/bpe.go/pkg/compress/layer"
	"github.com/jpfielding/bpe.go/pkg/compress/packet"
	"github.com/spf13/cobra"
)

// NewEncodeCmd codes one or more coefficient planes into a packet file
func NewEncodeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "encode .coef planes",
		Long:  "Codes each --in plane as one component and writes the packet file to --out.",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			inputs, _ := f.GetStringSlice("in")
			outPath, _ := f.GetString("out")
			inputs = append(inputs, args...)
			if len(inputs) == 0 {
				return fmt.Errorf("at least one input plane is required. Use --in flag or provide as argument")
			}
			opts, err := encodeOptions(cmd)
			if err != nil {
				return err
			}
			img := &ccsds122.Image{}
			for _, path := range inputs {
				c, err := readPlane(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if err := applyParams(cmd, &c.Params); err != nil {
					return err
				}
				img.Components = append(img.Components, c)
			}

			out, err := createOutput(cmd, outPath)
			if err != nil {
				return err
			}
			defer out.Close()
			h, err := ccsds122.Encode(out, img, opts)
			if err != nil {
				return err
			}
			slog.InfoContext(ctx, "encoded",
				slog.String("stream", h.StreamID.String()),
				slog.String("order", h.Order.String()),
				slog.Int("components", len(h.Components)),
				slog.Int("layers", h.Layers))
			return out.Close()
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringSliceP("in", "i", nil, "coefficient plane (.coef), one per component")
	pf.StringP("out", "o", "-", "coded output file")
	pf.String("order", packet.LRCP.String(), "progression order (SEQ|LRCP|RLCP|RPCL|PCRL|CPRL)")
	pf.String("policy", layer.SingleLayer.String(), "layer policy (single|max-length|pass|bitplane)")
	pf.Int("layers", 1, "requested quality layers")
	pf.Int("target", 0, "total byte target for max-length, equal and halving budgets")
	pf.String("size-type", layer.SizeEqual.String(), "layer budget schedule (explicit|equal|halving)")
	pf.IntSlice("sizes", nil, "explicit layer budgets in bytes, the last repeats")
	pf.Bool("crop", false, "drop trailing layers no pass reached")
	pf.Int("segment", 256, "blocks per segment")
	pf.Int("gaggle-dc", 16, "blocks per DC gaggle")
	pf.Int("gaggle-ac", 16, "blocks per AC gaggle")
	pf.String("entropy", bpe.EntropyCoded.String(), "word coding (raw|coded)")
	pf.IntSlice("bp", nil, "implicit zero bitplanes per subband (1+3*levels values)")
	pf.Int("seg-bytes", 0, "byte limit per segment (0 = unlimited)")
	pf.Bool("dc-stop", false, "code DC coefficients only")
	pf.Int("bitplane-stop", 0, "lowest bitplane coded")
	pf.Int("stage-stop", 0, "resolution levels coded, DC included (0 = all)")
	return cmd
}

func encodeOptions(cmd *cobra.Command) (*ccsds122.Options, error) {
	f := cmd.Flags()
	orderName, _ := f.GetString("order")
	policyName, _ := f.GetString("policy")
	sizeName, _ := f.GetString("size-type")
	order, err := packet.ParseOrder(orderName)
	if err != nil {
		return nil, err
	}
	policy, err := layer.ParsePolicy(policyName)
	if err != nil {
		return nil, err
	}
	sizeType, err := layer.ParseSizeType(sizeName)
	if err != nil {
		return nil, err
	}
	opts := &ccsds122.Options{Order: order, Layers: layer.Config{Policy: policy, SizeType: sizeType}}
	opts.Layers.Layers, _ = f.GetInt("layers")
	opts.Layers.TargetBytes, _ = f.GetInt("target")
	opts.Layers.Sizes, _ = f.GetIntSlice("sizes")
	opts.Layers.CropUnused, _ = f.GetBool("crop")
	return opts, opts.Validate()
}

// applyParams overrides the coding parameters of a plane from the flags
func applyParams(cmd *cobra.Command, p *bpe.Params) error {
	f := cmd.Flags()
	p.BlocksPerSegment, _ = f.GetInt("segment")
	p.GaggleSizeDC, _ = f.GetInt("gaggle-dc")
	p.GaggleSizeAC, _ = f.GetInt("gaggle-ac")
	p.SegByteLimit, _ = f.GetInt("seg-bytes")
	p.DCStop, _ = f.GetBool("dc-stop")
	p.BitPlaneStop, _ = f.GetInt("bitplane-stop")
	p.StageStop, _ = f.GetInt("stage-stop")
	if bp, _ := f.GetIntSlice("bp"); len(bp) > 0 {
		p.BP = bp
	}
	switch entropy, _ := f.GetString("entropy"); entropy {
	case bpe.EntropyRaw.String():
		p.Entropy = bpe.EntropyRaw
	case bpe.EntropyCoded.String():
		p.Entropy = bpe.EntropyCoded
	default:
		return fmt.Errorf("%w: unknown entropy mode %q", bpe.ErrConfiguration, entropy)
	}
	return p.Validate()
}

func readPlane(path string) (*ccsds122.Component, error) {
	in, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	return ccsds122.ReadPlane(in)
}
