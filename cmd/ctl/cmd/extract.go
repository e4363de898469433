package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/jpfielding/bpe.go/pkg/compress/ccsds122"
	"github.com/spf13/cobra"
)

// NewIndexCmd lists the packets of a coded file
func NewIndexCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "list the header and packets of a coded file",
		Long:  "Reads every packet header of --in and prints the header and packet offsets as JSON.",
		RunE: func(cmd *cobra.Command, args []string) error {
			inPath, _ := cmd.Flags().GetString("in")
			if !cmd.Flags().Changed("in") && len(args) > 0 {
				inPath = args[0]
			}
			in, err := openInput(inPath)
			if err != nil {
				return err
			}
			defer in.Close()
			fi, err := ccsds122.Index(in)
			if err != nil {
				return err
			}
			if fi.Packets.Truncated {
				slog.WarnContext(ctx, "coded file ended early", slog.Int("packets", len(fi.Packets.Entries)))
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			if pretty, _ := cmd.Flags().GetBool("pretty"); pretty {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(fi)
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringP("in", "i", "-", "coded input file")
	pf.Bool("pretty", false, "indent the JSON output")
	return cmd
}

// NewExtractCmd copies a byte, window, level, layer or component selection
// of a coded file into a new file
func NewExtractCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "extract part of a coded file",
		Long:  "Copies the packets selected by the flags from --in to --out. The input must use an indexed progression order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			inPath, _ := f.GetString("in")
			outPath, _ := f.GetString("out")
			if !cmd.Flags().Changed("in") && len(args) > 0 {
				inPath = args[0]
			}
			var req ccsds122.Request
			req.MaxBytes, _ = f.GetInt64("max-bytes")
			req.Levels, _ = f.GetInt("levels")
			req.Layers, _ = f.GetInt("layers")
			req.Components, _ = f.GetIntSlice("components")
			if win, _ := f.GetIntSlice("window"); len(win) > 0 {
				if len(win) != 4 {
					return fmt.Errorf("window needs x0,y0,x1,y1, got %v", win)
				}
				req.Window = ccsds122.Rect{X0: win[0], Y0: win[1], X1: win[2], Y1: win[3]}
			}

			in, err := os.Open(inPath)
			if err != nil {
				return fmt.Errorf("failed to open file: %w", err)
			}
			defer in.Close()
			st, err := in.Stat()
			if err != nil {
				return err
			}
			out, err := createOutput(cmd, outPath)
			if err != nil {
				return err
			}
			defer out.Close()
			rep, err := ccsds122.Extract(in, st.Size(), out, req)
			if err != nil {
				return err
			}
			slog.InfoContext(ctx, "extracted",
				slog.Int("packets", rep.Packets),
				slog.Int64("bytes", rep.Bytes),
				slog.Int("components", rep.Components),
				slog.Bool("truncated", rep.Truncated))
			return out.Close()
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringP("in", "i", "", "coded input file")
	pf.StringP("out", "o", "-", "extracted output file")
	pf.Int64("max-bytes", 0, "output size limit, header included (0 = unlimited)")
	pf.IntSlice("window", nil, "full resolution pixel window x0,y0,x1,y1")
	pf.Int("levels", 0, "resolution levels kept, DC included (0 = all)")
	pf.Int("layers", 0, "quality layers kept (0 = all)")
	pf.IntSlice("components", nil, "components kept (default all)")
	return cmd
}
