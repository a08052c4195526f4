package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/fls/pkg/config"
	"github.com/ajitpratap0/fls/pkg/engine"
	"github.com/ajitpratap0/fls/pkg/engine/registry"
	"github.com/ajitpratap0/fls/pkg/flserrors"
	"github.com/ajitpratap0/fls/pkg/logger"
	"github.com/ajitpratap0/fls/pkg/metrics"
	"github.com/ajitpratap0/fls/pkg/observability"

	// Register every engine
	_ "github.com/ajitpratap0/fls/pkg/engine/arrowipc"
	_ "github.com/ajitpratap0/fls/pkg/engine/avro"
	_ "github.com/ajitpratap0/fls/pkg/engine/native"
	_ "github.com/ajitpratap0/fls/pkg/engine/parquet"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit status.
func execute(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, viper: viper.New()}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if ferr := a.finish(); err == nil {
		err = ferr
	}
	if err != nil {
		fmt.Fprintf(stderr, "fls: %v\n", err)
		return 1
	}
	return 0
}

// app holds what the commands share once flags and configuration are
// resolved.
type app struct {
	stdout, stderr io.Writer
	viper          *viper.Viper
	configFile     string
	cfg            *config.Config
	log            *zap.Logger
	shutdown       observability.ShutdownFunc
	profiler       profiler
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "fls",
		Short: "fls - staged CSV to columnar conversion",
		Long: `fls ingests a directory holding schema.json and a CSV or JSONL file,
writes it as a compressed columnar artifact and decodes artifacts back to
delimited text.

Configuration is read from --config (YAML), then FLS_* environment
variables (FLS_ENGINE_COMPRESSION, FLS_LOGGING_LEVEL, ...), then flags.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.setup() },
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Path to a YAML configuration file")
	flags.String("engine", "fls", "Storage engine ("+strings.Join(registry.List(), ", ")+")")
	flags.String("compression", "zstd", "Chunk compression: zstd, lz4, snappy, s2, gzip, deflate or none")
	flags.Int("rowgroup-vectors", 64, "Rowgroup size in vectors of 1024 rows")
	flags.Bool("inline-footer", false, "Embed the footer in the artifact instead of a sidecar file")
	flags.String("delimiter", "|", "CSV field delimiter")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("trace", false, "Print an OpenTelemetry span for every stage to stderr")
	flags.String("metrics-out", "", "Write Prometheus metrics to this file on exit")
	flags.StringVar(&a.profiler.cpuFile, "cpuprofile", "", "Write a CPU profile to this file")
	flags.StringVar(&a.profiler.memFile, "memprofile", "", "Write a heap profile to this file on exit")

	bindings := map[string]string{
		"engine":           "engine.name",
		"compression":      "engine.compression",
		"rowgroup-vectors": "engine.vectors_per_rowgroup",
		"inline-footer":    "engine.inline_footer",
		"delimiter":        "engine.delimiter",
		"log-level":        "logging.level",
		"trace":            "observability.tracing",
		"metrics-out":      "observability.metrics_out",
	}
	for flag, key := range bindings {
		_ = a.viper.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		a.convertCommand(),
		a.decodeCommand(),
		a.roundtripCommand(),
		a.inspectCommand(),
		a.benchCommand(),
		a.enginesCommand(),
		a.configCommand(),
		versionCommand(),
	)
	return root
}

// setup resolves the configuration and starts logging, tracing and
// metrics.
func (a *app) setup() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := logger.Init(cfg.Logging); err != nil {
		return flserrors.Wrap(err, flserrors.ErrorTypeConfig, "invalid logging configuration")
	}
	a.log = logger.Get()

	if cfg.Observability.Tracing {
		oc := observability.DefaultConfig()
		oc.ServiceVersion = engine.Version
		oc.Exporter = cfg.Observability.TraceExporter
		oc.SamplingRate = cfg.Observability.SamplingRate
		oc.Writer = a.stderr
		shutdown, err := observability.Init(oc)
		if err != nil {
			return flserrors.Wrap(err, flserrors.ErrorTypeConfig, "cannot start tracing")
		}
		a.shutdown = shutdown
	}

	a.log.Debug("configuration loaded", zap.Stringer("engine", cfg.Engine))
	return a.profiler.start()
}

// loadConfig layers the config file, FLS_* variables and flags over the
// defaults.
func (a *app) loadConfig() (*config.Config, error) {
	base := config.Default()
	if a.configFile != "" {
		loaded, err := config.LoadFile(a.configFile)
		if err != nil {
			return nil, flserrors.Annotate(err, "config", a.configFile)
		}
		base = loaded
	}

	// Every key must be known to viper for AutomaticEnv to reach Unmarshal.
	raw, err := yaml.Marshal(base)
	if err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeInternal, "cannot encode configuration")
	}
	tree := map[string]interface{}{}
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeInternal, "cannot decode configuration")
	}
	if err := a.viper.MergeConfigMap(tree); err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeConfig, "cannot merge configuration")
	}

	a.viper.SetEnvPrefix("FLS")
	a.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.viper.AutomaticEnv()

	cfg := config.Default()
	if err := a.viper.Unmarshal(cfg); err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeConfig, "invalid configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// engine builds the configured storage engine.
func (a *app) engine() (engine.Engine, error) {
	return registry.Create(a.cfg.Engine)
}

// finish stops profiling, flushes traces, writes metrics and syncs the
// logger.
func (a *app) finish() error {
	err := a.profiler.stop()
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := a.shutdown(ctx); serr != nil && err == nil {
			err = flserrors.Wrap(serr, flserrors.ErrorTypeInternal, "cannot flush traces")
		}
	}
	if a.cfg != nil && a.cfg.Observability.MetricsOut != "" {
		path := a.cfg.Observability.MetricsOut
		if merr := metrics.WriteToTextfile(path); merr != nil && err == nil {
			err = flserrors.Annotate(merr, "metrics", path)
		}
	}
	_ = logger.Sync()
	return err
}

// printf writes to the command output.
func (a *app) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.stdout, format, args...)
}

func dumpYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
