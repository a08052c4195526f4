// Package engine defines the storage engine boundary of fls.
//
// An Engine turns an input directory into an in-memory table, writes tables
// as artifacts, opens artifacts and decodes them back into delimited text.
// The session in package fls only ever talks to this interface; concrete
// engines live in the subpackages and register themselves with
// engine/registry.
package engine

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/fls/pkg/config"
	"github.com/ajitpratap0/fls/pkg/flserrors"
	"github.com/ajitpratap0/fls/pkg/ingest"
	"github.com/ajitpratap0/fls/pkg/logger"
	"github.com/ajitpratap0/fls/pkg/materialize"
	"github.com/ajitpratap0/fls/pkg/schema"
	"github.com/ajitpratap0/fls/pkg/table"
)

// Version of the fls library. Every engine reports it.
const Version = "0.0.2"

// WriteOptions control a single artifact write.
type WriteOptions struct {
	// InlineFooter embeds the footer in the artifact. Engines whose format
	// fixes the footer location ignore it.
	InlineFooter bool
}

// Engine encodes and decodes artifacts.
type Engine interface {
	Name() string
	Version() string
	IngestDirectory(dir string) (*table.Table, error)
	WriteArtifact(t *table.Table, path string, opts WriteOptions) error
	OpenArtifact(path string) (Artifact, error)
	// DecodeToDirectory writes every row of a to path, or to
	// materialize.FileName inside path when it is an existing directory.
	DecodeToDirectory(a Artifact, path string) error
}

// Artifact is an opened artifact.
type Artifact interface {
	Path() string
	Schema() *schema.Schema
	NumRows() int64
	Describe() Description
	Close() error
}

// Description summarizes an artifact for inspection.
type Description struct {
	Engine       string              `json:"engine"`
	Version      string              `json:"version,omitempty"`
	Path         string              `json:"path"`
	FileBytes    int64               `json:"file_bytes"`
	Rows         int64               `json:"rows"`
	Rowgroups    int                 `json:"rowgroups"`
	Codec        string              `json:"codec,omitempty"`
	InlineFooter bool                `json:"inline_footer"`
	Columns      []ColumnDescription `json:"columns"`
	// StoredBytes and RawBytes are only known to engines that track chunk
	// sizes.
	StoredBytes      int64   `json:"stored_bytes,omitempty"`
	RawBytes         int64   `json:"raw_bytes,omitempty"`
	CompressionRatio float64 `json:"compression_ratio,omitempty"`
}

// ColumnDescription is one column of a Description.
type ColumnDescription struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Nullable  bool     `json:"nullable"`
	Encodings []string `json:"encodings,omitempty"`
}

// DescribeColumns fills the column part of a Description from s.
func DescribeColumns(s *schema.Schema) []ColumnDescription {
	out := make([]ColumnDescription, s.Len())
	for i, c := range s.Columns {
		out[i] = ColumnDescription{Name: c.Name, Type: c.TypeName, Nullable: c.Nullable}
	}
	return out
}

// Base carries what every engine shares: configuration, logging, ingestion
// and materialization. Engines embed it.
type Base struct {
	Config    config.EngineConfig
	Logger    *zap.Logger
	Delimiter byte
}

// NewBase validates cfg and creates a Base logging under the engine's name.
func NewBase(name string, cfg config.EngineConfig) (Base, error) {
	if err := cfg.Validate(); err != nil {
		return Base{}, err
	}
	delim, err := cfg.DelimiterByte()
	if err != nil {
		return Base{}, err
	}
	return Base{
		Config:    cfg,
		Logger:    logger.Get().With(zap.String(string(logger.EngineKey), name)),
		Delimiter: delim,
	}, nil
}

// Version returns the library version.
func (b *Base) Version() string { return Version }

// IngestDirectory loads dir using the configured delimiter and rowgroup size.
func (b *Base) IngestDirectory(dir string) (*table.Table, error) {
	return ingest.Directory(dir, ingest.Options{
		Delimiter:    b.Delimiter,
		RowgroupSize: b.Config.RowgroupSize(),
		Logger:       b.Logger,
	})
}

// Materialize writes every record of rr as delimited text and returns the
// file written.
func (b *Base) Materialize(path string, s *schema.Schema, rr materialize.RecordReader) (string, error) {
	target, rows, err := materialize.ToFile(path, s, rr, materialize.Options{
		Delimiter: b.Delimiter,
		Logger:    b.Logger,
	})
	if err != nil {
		return target, err
	}
	b.Logger.Debug("decoded artifact", zap.String("target", target), zap.Int64("rows", rows))
	return target, nil
}

// ForeignArtifact is returned when an engine is handed an artifact another
// engine opened.
func ForeignArtifact(engine string, a Artifact) error {
	return flserrors.Newf(flserrors.ErrorTypeValidation,
		"%s engine cannot decode an artifact opened by %s", engine, a.Describe().Engine).
		WithOp("decode", a.Path())
}
