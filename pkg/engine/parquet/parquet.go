// Package parquet stores tables as Parquet files through arrow-go's pqarrow
// bridge. Each table rowgroup becomes one Parquet row group and the arrow
// schema, including the declared fls type names, is stored in the file.
package parquet

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	pq "github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"go.uber.org/zap"

	"github.com/ajitpratap0/fls/pkg/compression"
	"github.com/ajitpratap0/fls/pkg/config"
	"github.com/ajitpratap0/fls/pkg/engine"
	"github.com/ajitpratap0/fls/pkg/engine/registry"
	"github.com/ajitpratap0/fls/pkg/flserrors"
	"github.com/ajitpratap0/fls/pkg/schema"
	"github.com/ajitpratap0/fls/pkg/table"
)

// Name of the engine in the registry.
const Name = "parquet"

// Keys of the file-level metadata written next to the schema.
const (
	metaEngine  = "fls.engine"
	metaVersion = "fls.version"
	metaCodec   = "fls.codec"
)

func init() {
	registry.Register(Name, func(cfg config.EngineConfig) (engine.Engine, error) {
		return New(cfg)
	})
}

// Engine reads and writes Parquet artifacts.
type Engine struct {
	engine.Base
	codec compress.Compression
}

// New creates a Parquet engine. The configured chunk codec is mapped to the
// closest Parquet codec.
func New(cfg config.EngineConfig) (*Engine, error) {
	cfg.Name = Name
	base, err := engine.NewBase(Name, cfg)
	if err != nil {
		return nil, err
	}
	algo, err := compression.ParseAlgorithm(cfg.Compression)
	if err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeConfig, "invalid compression")
	}
	return &Engine{Base: base, codec: parquetCodec(algo)}, nil
}

func parquetCodec(a compression.Algorithm) compress.Compression {
	switch a {
	case compression.Zstd:
		return compress.Codecs.Zstd
	case compression.Snappy, compression.S2:
		return compress.Codecs.Snappy
	case compression.Gzip, compression.Deflate:
		return compress.Codecs.Gzip
	case compression.LZ4:
		return compress.Codecs.Lz4Raw
	default:
		return compress.Codecs.Uncompressed
	}
}

// Name returns "parquet".
func (e *Engine) Name() string { return Name }

// WriteArtifact writes t to path. The footer location is fixed by the
// Parquet format, so opts.InlineFooter has no effect.
func (e *Engine) WriteArtifact(t *table.Table, path string, _ engine.WriteOptions) error {
	const op = "write artifact"

	f, err := os.Create(path) //nolint:gosec // G304: artifact path chosen by the caller
	if err != nil {
		return flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to create artifact").WithOp(op, path)
	}

	md := arrow.NewMetadata(
		[]string{metaEngine, metaVersion, metaCodec},
		[]string{Name, engine.Version, e.Config.Compression},
	)
	as := arrow.NewSchema(t.Schema().ArrowSchema().Fields(), &md)

	props := pq.NewWriterProperties(
		pq.WithCompression(e.codec),
		pq.WithDictionaryDefault(true),
		pq.WithMaxRowGroupLength(int64(e.Config.RowgroupSize())),
		pq.WithCreatedBy("fls "+engine.Version),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithStoreSchema(),
		pqarrow.WithAllocator(memory.NewGoAllocator()),
	)

	fw, err := pqarrow.NewFileWriter(as, f, props, arrowProps)
	if err != nil {
		f.Close()
		return flserrors.Wrap(err, flserrors.ErrorTypeInternal, "failed to create parquet writer").WithOp(op, path)
	}

	for _, rec := range t.Records() {
		same := array.NewRecord(as, rec.Columns(), rec.NumRows())
		err = fw.Write(same)
		same.Release()
		if err != nil {
			fw.Close()
			return flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to write row group").WithOp(op, path)
		}
	}
	// closing the writer closes the file
	if err := fw.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to finish parquet file").WithOp(op, path)
	}

	e.Logger.Debug("wrote parquet artifact",
		zap.String("path", path),
		zap.Int64("rows", t.NumRows()),
		zap.Int("row_groups", t.NumRowgroups()),
		zap.String("codec", e.codec.String()))
	return nil
}

// OpenArtifact opens path as a Parquet file.
func (e *Engine) OpenArtifact(path string) (engine.Artifact, error) {
	const op = "open artifact"

	f, err := os.Open(path) //nolint:gosec // G304: artifact path chosen by the caller
	if err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to open artifact").WithOp(op, path)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to stat artifact").WithOp(op, path)
	}

	fr, err := file.NewParquetReader(f)
	if err != nil {
		f.Close()
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeFormat, "not a parquet file").WithOp(op, path)
	}
	ar, err := pqarrow.NewFileReader(fr, pqarrow.ArrowReadProperties{
		BatchSize: int64(e.Config.RowgroupSize()),
	}, memory.NewGoAllocator())
	if err != nil {
		fr.Close()
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeFormat, "failed to read parquet schema").WithOp(op, path)
	}
	as, err := ar.Schema()
	if err != nil {
		fr.Close()
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeFormat, "failed to read parquet schema").WithOp(op, path)
	}
	s, err := schema.FromArrow(as)
	if err != nil {
		fr.Close()
		return nil, flserrors.Annotate(err, op, path)
	}

	return &Artifact{path: path, size: st.Size(), reader: fr, arrow: ar, schema: s, meta: as.Metadata()}, nil
}

// DecodeToDirectory decodes a into path.
func (e *Engine) DecodeToDirectory(a engine.Artifact, path string) error {
	art, ok := a.(*Artifact)
	if !ok {
		return engine.ForeignArtifact(Name, a)
	}
	rr, err := art.arrow.GetRecordReader(context.Background(), nil, nil)
	if err != nil {
		return flserrors.Wrap(err, flserrors.ErrorTypeFormat, "failed to read row groups").WithOp("decode artifact", art.path)
	}
	defer rr.Release()
	_, err = e.Materialize(path, art.schema, &recordReader{rr: rr, path: art.path})
	return err
}

// Artifact is an opened Parquet file.
type Artifact struct {
	path   string
	size   int64
	reader *file.Reader
	arrow  *pqarrow.FileReader
	schema *schema.Schema
	meta   arrow.Metadata
}

func (a *Artifact) Path() string           { return a.path }
func (a *Artifact) Schema() *schema.Schema { return a.schema }
func (a *Artifact) NumRows() int64         { return a.reader.NumRows() }

// Describe reports the row group layout and the metadata fls recorded.
func (a *Artifact) Describe() engine.Description {
	d := engine.Description{
		Engine:    Name,
		Path:      a.path,
		FileBytes: a.size,
		Rows:      a.reader.NumRows(),
		Rowgroups: a.reader.NumRowGroups(),
		Columns:   engine.DescribeColumns(a.schema),
		// the parquet footer always trails the data
		InlineFooter: true,
	}
	if i := a.meta.FindKey(metaVersion); i >= 0 {
		d.Version = a.meta.Values()[i]
	}
	if i := a.meta.FindKey(metaCodec); i >= 0 {
		d.Codec = a.meta.Values()[i]
	}
	return d
}

// Close closes the underlying file.
func (a *Artifact) Close() error {
	if a.reader == nil {
		return nil
	}
	err := a.reader.Close()
	a.reader = nil
	return err
}

// recordReader adapts a pqarrow record reader to materialize.RecordReader.
type recordReader struct {
	rr   pqarrow.RecordReader
	path string
}

func (r *recordReader) Next() (arrow.Record, error) {
	if r.rr.Next() {
		rec := r.rr.Record()
		rec.Retain()
		return rec, nil
	}
	if err := r.rr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeFormat, "failed to decode row group").WithOp("decode artifact", r.path)
	}
	return nil, io.EOF
}
