package main

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/fls/pkg/engine/registry"
	"github.com/ajitpratap0/fls/pkg/flserrors"
	"github.com/ajitpratap0/fls/pkg/fls"
)

// benchResult is one engine's run over the input.
type benchResult struct {
	Engine string
	Codec  string
	Rows   int64
	Ingest time.Duration
	Emit   time.Duration
	Decode time.Duration
	Bytes  int64
	Ratio  float64
}

func (a *app) benchCommand() *cobra.Command {
	var engines []string
	cmd := &cobra.Command{
		Use:   "bench <input-dir>",
		Short: "Round-trip an input directory through several engines and compare them",
		Long: `Round-trip an input directory through every engine (or those named by
--engines) with the current compression and rowgroup settings, and print
stage timings and artifact sizes.

Example:
  fls bench ./orders --engines fls,parquet --compression lz4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(engines) == 0 {
				engines = registry.List()
			}
			scratch, err := os.MkdirTemp("", "fls-bench-*")
			if err != nil {
				return flserrors.Annotate(err, "bench", os.TempDir())
			}
			defer os.RemoveAll(scratch)

			a.printf("%-8s %-8s %10s %12s %12s %12s %12s %7s\n", "ENGINE", "CODEC", "ROWS", "INGEST", "EMIT", "DECODE", "BYTES", "RATIO")
			for _, name := range engines {
				res, err := a.bench(name, args[0], scratch)
				if err != nil {
					return err
				}
				ratio := "-"
				if res.Ratio > 0 {
					ratio = strconv.FormatFloat(res.Ratio, 'f', 2, 64) + "x"
				}
				a.printf("%-8s %-8s %10d %12s %12s %12s %12d %7s\n", res.Engine, res.Codec, res.Rows,
					res.Ingest.Round(time.Microsecond), res.Emit.Round(time.Microsecond),
					res.Decode.Round(time.Microsecond), res.Bytes, ratio)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&engines, "engines", nil, "Engines to compare (default: all)")
	return cmd
}

// bench runs one full session and reader for engine name.
func (a *app) bench(name, input, scratch string) (*benchResult, error) {
	cfg := a.cfg.Engine
	cfg.Name = name
	eng, err := registry.Create(cfg)
	if err != nil {
		return nil, err
	}
	res := &benchResult{Engine: name}

	conn, err := fls.Connect(eng, fls.WithLogger(a.log)).Configure(fls.Options{InlineFooter: cfg.InlineFooter})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	start := time.Now()
	if conn, err = conn.Ingest(input); err != nil {
		return nil, err
	}
	res.Ingest = time.Since(start)
	res.Rows = conn.Rows()

	artifact := filepath.Join(scratch, "bench."+name)
	start = time.Now()
	if conn, err = conn.Emit(artifact); err != nil {
		return nil, err
	}
	res.Emit = time.Since(start)

	r, err := conn.Open(artifact)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	start = time.Now()
	if _, err = r.ToCSV(filepath.Join(scratch, name+".csv")); err != nil {
		return nil, err
	}
	res.Decode = time.Since(start)

	d := r.Describe()
	res.Bytes = d.FileBytes
	res.Ratio = d.CompressionRatio
	res.Codec = d.Codec
	return res, nil
}
