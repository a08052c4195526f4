package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/fls/pkg/engine"
	"github.com/ajitpratap0/fls/pkg/engine/registry"
	"github.com/ajitpratap0/fls/pkg/fls"
	jsonpool "github.com/ajitpratap0/fls/pkg/json"
)

// connect opens a session configured from the resolved settings.
func (a *app) connect() (*fls.Connection, error) {
	eng, err := a.engine()
	if err != nil {
		return nil, err
	}
	conn := fls.Connect(eng, fls.WithLogger(a.log))
	return conn.Configure(fls.Options{InlineFooter: a.cfg.Engine.InlineFooter})
}

// convert runs configure, ingest, the optional projection and emit.
func (a *app) convert(dir, artifact string, columns []int) (*fls.Connection, error) {
	conn, err := a.connect()
	if err != nil {
		return nil, err
	}
	// Close through the first handle; later stages retire it but any
	// handle may close the session.
	defer conn.Close()

	if conn, err = conn.Ingest(dir); err != nil {
		return nil, err
	}
	if len(columns) > 0 {
		if conn, err = conn.Project(columns...); err != nil {
			return nil, err
		}
	}
	if conn, err = conn.Emit(artifact); err != nil {
		return nil, err
	}
	a.printf("wrote %s: %d rows, engine %s\n", artifact, conn.Rows(), conn.Engine())
	return conn, nil
}

// decode opens artifact with conn and writes its rows to target.
func (a *app) decode(conn *fls.Connection, artifact, target string) error {
	r, err := conn.Open(artifact)
	if err != nil {
		return err
	}
	defer r.Close()
	if r, err = r.ToCSV(target); err != nil {
		return err
	}
	a.printf("wrote %s: %d rows\n", r.TargetPath(), r.NumRows())
	return nil
}

func (a *app) convertCommand() *cobra.Command {
	var columns []int
	cmd := &cobra.Command{
		Use:   "convert <input-dir> <artifact>",
		Short: "Ingest an input directory and write an artifact",
		Long: `Ingest an input directory (schema.json plus a CSV or JSONL file) and
write it as an artifact of the selected engine.

Example:
  fls convert ./orders orders.fls --inline-footer --columns 0,2`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := a.convert(args[0], args[1], columns)
			return err
		},
	}
	cmd.Flags().IntSliceVar(&columns, "columns", nil, "Keep only these column indexes, in this order")
	return cmd
}

func (a *app) decodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <artifact> <target>",
		Short: "Decode an artifact to delimited text",
		Long: `Decode an artifact to delimited text. A target that is an existing
directory receives materialized_by_fls.csv.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.engine()
			if err != nil {
				return err
			}
			conn := fls.Connect(eng, fls.WithLogger(a.log))
			defer conn.Close()
			return a.decode(conn, args[0], args[1])
		},
	}
}

func (a *app) roundtripCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "roundtrip <input-dir> <artifact> <target>",
		Short: "Convert an input directory and decode the artifact again",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.convert(args[0], args[1], nil)
			if err != nil {
				return err
			}
			// The closed session can still open artifacts.
			return a.decode(conn, args[1], args[2])
		},
	}
}

func (a *app) inspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <artifact>",
		Short: "Print an artifact's footer summary as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.engine()
			if err != nil {
				return err
			}
			conn := fls.Connect(eng, fls.WithLogger(a.log))
			defer conn.Close()

			r, err := conn.Open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()
			return jsonpool.Encode(a.stdout, r.Describe(), "  ")
		},
	}
}

func (a *app) enginesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List available storage engines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range registry.List() {
				marker := " "
				if name == a.cfg.Engine.Name {
					marker = "*"
				}
				a.printf("%s %s\n", marker, name)
			}
			return nil
		},
	}
}

func (a *app) configCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return dumpYAML(a.stdout, a.cfg)
		},
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "fls v%s\n", engine.Version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
