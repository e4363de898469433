package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/jpfielding/bpe.go/pkg/compress/bpe"
	"github.com/jpfielding/bpe.go/pkg/compress/ccsds122"
	"github.com/spf13/cobra"
)

// NewDecodeCmd reconstructs the coefficient planes of a packet file
func NewDecodeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "decode a packet file to .coef planes",
		Long:  "Decodes --in and writes one plane per component; with several components the index is added before the extension of --out.",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			inPath, _ := f.GetString("in")
			outPath, _ := f.GetString("out")
			if !cmd.Flags().Changed("in") && len(args) > 0 {
				inPath = args[0]
			}
			opts := ccsds122.DefaultDecodeOptions()
			opts.Layers, _ = f.GetInt("layers")
			opts.Levels, _ = f.GetInt("levels")
			opts.Gamma, _ = f.GetFloat64("gamma")
			completion, _ := f.GetInt("completion")
			opts.Completion = bpe.Completion(completion)

			in, err := openInput(inPath)
			if err != nil {
				return err
			}
			defer in.Close()
			img, rep, err := ccsds122.Decode(in, opts)
			if img == nil {
				return err
			}
			if err != nil {
				slog.WarnContext(ctx, "decoded with segment errors", slog.Any("error", err))
			}
			for i, c := range img.Components {
				path := outPath
				if len(img.Components) > 1 && path != "-" {
					ext := filepath.Ext(path)
					path = fmt.Sprintf("%s.%d%s", strings.TrimSuffix(path, ext), i, ext)
				}
				if err := writePlane(cmd, path, c); err != nil {
					return err
				}
			}
			slog.InfoContext(ctx, "decoded",
				slog.String("stream", rep.StreamID.String()),
				slog.Int("packets", rep.Packets),
				slog.Int("bytes", rep.Bytes),
				slog.Bool("truncated", rep.Truncated),
				slog.Int("streams", rep.Streams),
				slog.Int("truncatedStreams", rep.DecodeStats.Truncated),
				slog.Int("filled", rep.Filled))
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringP("in", "i", "-", "coded input file")
	pf.StringP("out", "o", "-", "coefficient plane output (.coef)")
	pf.Int("layers", 0, "quality layers to decode (0 = all)")
	pf.Int("levels", 0, "resolution levels to decode, DC included (0 = all)")
	pf.Float64("gamma", 0.5, "reconstruction point within the last decoded bitplane")
	pf.Int("completion", int(bpe.CompletionZero), "DC completion policy (0 zero, 1 mid, 2 mean, n>2 mean of last n-2)")
	return cmd
}

func writePlane(cmd *cobra.Command, path string, c *ccsds122.Component) error {
	out, err := createOutput(cmd, path)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := ccsds122.WritePlane(out, c); err != nil {
		return err
	}
	return out.Close()
}
