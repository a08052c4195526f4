package config

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/fls/pkg/compression"
	"github.com/ajitpratap0/fls/pkg/flserrors"
	"github.com/ajitpratap0/fls/pkg/logger"
)

// VectorSize is the number of values in one vector. Rowgroups are sized in
// whole vectors.
const VectorSize = 1024

// Config is the complete configuration of an fls process.
type Config struct {
	// Engine selects and tunes the storage engine
	Engine EngineConfig `yaml:"engine" json:"engine" mapstructure:"engine"`

	// Logging configures the global zap logger
	Logging logger.Config `yaml:"logging" json:"logging" mapstructure:"logging"`

	// Observability configures tracing and metrics export
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`
}

// EngineConfig contains the storage engine settings.
type EngineConfig struct {
	// Name of the registered engine: fls, parquet, arrow or avro
	Name string `yaml:"name" json:"name" mapstructure:"name"`
	// Compression algorithm applied to column chunks
	Compression string `yaml:"compression" json:"compression" mapstructure:"compression"`
	// CompressionLevel is 1 (fastest) through 9 (best)
	CompressionLevel int `yaml:"compression_level" json:"compression_level" mapstructure:"compression_level"`
	// VectorsPerRowgroup sets the rowgroup size in vectors of 1024 values
	VectorsPerRowgroup int `yaml:"vectors_per_rowgroup" json:"vectors_per_rowgroup" mapstructure:"vectors_per_rowgroup"`
	// InlineFooter embeds the footer in the artifact instead of a sidecar
	InlineFooter bool `yaml:"inline_footer" json:"inline_footer" mapstructure:"inline_footer"`
	// Delimiter separates CSV fields on input and output
	Delimiter string `yaml:"delimiter" json:"delimiter" mapstructure:"delimiter"`
	// VerifyChecksums checks chunk checksums when decoding
	VerifyChecksums bool `yaml:"verify_checksums" json:"verify_checksums" mapstructure:"verify_checksums"`
	// Workers bounds parallel chunk compression (0 = NumCPU)
	Workers int `yaml:"workers" json:"workers" mapstructure:"workers"`
}

// ObservabilityConfig contains tracing and metrics settings.
type ObservabilityConfig struct {
	// Tracing enables OpenTelemetry spans for every pipeline stage
	Tracing bool `yaml:"tracing" json:"tracing" mapstructure:"tracing"`
	// TraceExporter is "stdout" or "none"
	TraceExporter string `yaml:"trace_exporter" json:"trace_exporter" mapstructure:"trace_exporter"`
	// SamplingRate in [0,1]
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate" mapstructure:"sampling_rate"`
	// MetricsOut is a file that receives the Prometheus text exposition on exit
	MetricsOut string `yaml:"metrics_out" json:"metrics_out" mapstructure:"metrics_out"`
}

// Default returns the configuration used when no file or flag overrides it.
func Default() *Config {
	return &Config{
		Engine:  DefaultEngineConfig(),
		Logging: logger.DefaultConfig(),
		Observability: ObservabilityConfig{
			TraceExporter: "stdout",
			SamplingRate:  1.0,
		},
	}
}

// DefaultEngineConfig returns the native engine with zstd chunks and 64
// vectors per rowgroup.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Name:               "fls",
		Compression:        string(compression.Zstd),
		CompressionLevel:   int(compression.Default),
		VectorsPerRowgroup: 64,
		Delimiter:          "|",
		VerifyChecksums:    true,
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	switch c.Observability.TraceExporter {
	case "", "stdout", "none":
	default:
		return flserrors.Newf(flserrors.ErrorTypeConfig, "unsupported trace_exporter %q", c.Observability.TraceExporter)
	}
	if c.Observability.SamplingRate < 0 || c.Observability.SamplingRate > 1 {
		return flserrors.New(flserrors.ErrorTypeConfig, "sampling_rate must be within [0,1]")
	}
	return nil
}

// Validate checks the engine section.
func (e *EngineConfig) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return flserrors.New(flserrors.ErrorTypeConfig, "engine name is required")
	}
	if _, err := compression.ParseAlgorithm(e.Compression); err != nil {
		return flserrors.Wrap(err, flserrors.ErrorTypeConfig, "invalid compression")
	}
	if e.CompressionLevel < 0 || e.CompressionLevel > 9 {
		return flserrors.New(flserrors.ErrorTypeConfig, "compression_level must be within [0,9]")
	}
	if e.VectorsPerRowgroup <= 0 {
		return flserrors.New(flserrors.ErrorTypeConfig, "vectors_per_rowgroup must be positive")
	}
	if _, err := e.DelimiterByte(); err != nil {
		return err
	}
	if e.Workers < 0 {
		return flserrors.New(flserrors.ErrorTypeConfig, "workers cannot be negative")
	}
	return nil
}

// RowgroupSize returns the number of rows in a full rowgroup.
func (e *EngineConfig) RowgroupSize() int {
	if e.VectorsPerRowgroup <= 0 {
		return DefaultEngineConfig().VectorsPerRowgroup * VectorSize
	}
	return e.VectorsPerRowgroup * VectorSize
}

// DelimiterByte returns the single-byte delimiter, '|' when unset.
func (e *EngineConfig) DelimiterByte() (byte, error) {
	switch len(e.Delimiter) {
	case 0:
		return '|', nil
	case 1:
		d := e.Delimiter[0]
		if d == '"' || d == '\n' || d == '\r' {
			return 0, flserrors.Newf(flserrors.ErrorTypeConfig, "delimiter %q is not allowed", e.Delimiter)
		}
		return d, nil
	default:
		return 0, flserrors.Newf(flserrors.ErrorTypeConfig, "delimiter must be a single byte, got %q", e.Delimiter)
	}
}

// CompressionConfig returns the compressor settings for the engine.
func (e *EngineConfig) CompressionConfig() (*compression.Config, error) {
	algo, err := compression.ParseAlgorithm(e.Compression)
	if err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeConfig, "invalid compression")
	}
	level := compression.Level(e.CompressionLevel)
	if level == 0 {
		level = compression.Default
	}
	return &compression.Config{Algorithm: algo, Level: level}, nil
}

func (e EngineConfig) String() string {
	return fmt.Sprintf("%s(%s, %d vectors/rowgroup, inline_footer=%t)",
		e.Name, e.Compression, e.VectorsPerRowgroup, e.InlineFooter)
}
