// Package arrowipc stores tables as Arrow IPC files, one record batch per
// rowgroup. Artifacts are read back through a memory map.
package arrowipc

import (
	"bytes"
	"io"
	"os"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/ajitpratap0/fls/pkg/compression"
	"github.com/ajitpratap0/fls/pkg/config"
	"github.com/ajitpratap0/fls/pkg/engine"
	"github.com/ajitpratap0/fls/pkg/engine/registry"
	"github.com/ajitpratap0/fls/pkg/flserrors"
	"github.com/ajitpratap0/fls/pkg/mmap"
	"github.com/ajitpratap0/fls/pkg/schema"
	"github.com/ajitpratap0/fls/pkg/table"
)

// Name of the engine in the registry.
const Name = "arrow"

const (
	metaVersion = "fls.version"
	metaCodec   = "fls.codec"
	metaRows    = "fls.rows"
)

func init() {
	registry.Register(Name, func(cfg config.EngineConfig) (engine.Engine, error) {
		return New(cfg)
	})
}

// Engine reads and writes Arrow IPC artifacts.
type Engine struct {
	engine.Base
	algo compression.Algorithm
}

// New creates an Arrow IPC engine. Arrow body compression only knows lz4
// and zstd; any other codec writes uncompressed buffers.
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
	switch algo {
	case compression.Zstd, compression.LZ4:
	default:
		algo = compression.None
	}
	return &Engine{Base: base, algo: algo}, nil
}

// Name returns "arrow".
func (e *Engine) Name() string { return Name }

// WriteArtifact writes one record batch per rowgroup. The IPC file footer
// always trails the batches; opts.InlineFooter has no effect.
func (e *Engine) WriteArtifact(t *table.Table, path string, _ engine.WriteOptions) error {
	const op = "write artifact"

	f, err := os.Create(path) //nolint:gosec // G304: artifact path chosen by the caller
	if err != nil {
		return flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to create artifact").WithOp(op, path)
	}

	md := arrow.NewMetadata(
		[]string{metaVersion, metaCodec, metaRows},
		[]string{engine.Version, string(e.algo), strconv.FormatInt(t.NumRows(), 10)},
	)
	as := arrow.NewSchema(t.Schema().ArrowSchema().Fields(), &md)

	opts := []ipc.Option{ipc.WithSchema(as), ipc.WithAllocator(memory.NewGoAllocator())}
	switch e.algo {
	case compression.Zstd:
		opts = append(opts, ipc.WithZstd())
	case compression.LZ4:
		opts = append(opts, ipc.WithLZ4())
	}

	fw, err := ipc.NewFileWriter(f, opts...)
	if err != nil {
		f.Close()
		return flserrors.Wrap(err, flserrors.ErrorTypeInternal, "failed to create ipc writer").WithOp(op, path)
	}
	for _, rec := range t.Records() {
		same := array.NewRecord(as, rec.Columns(), rec.NumRows())
		err = fw.Write(same)
		same.Release()
		if err != nil {
			fw.Close()
			f.Close()
			return flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to write record batch").WithOp(op, path)
		}
	}
	if err := fw.Close(); err != nil {
		f.Close()
		return flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to finish ipc file").WithOp(op, path)
	}
	if err := f.Close(); err != nil {
		return flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to close artifact").WithOp(op, path)
	}

	e.Logger.Debug("wrote arrow artifact",
		zap.String("path", path),
		zap.Int64("rows", t.NumRows()),
		zap.Int("batches", t.NumRowgroups()),
		zap.String("codec", string(e.algo)))
	return nil
}

// OpenArtifact maps path and reads the IPC footer.
func (e *Engine) OpenArtifact(path string) (engine.Artifact, error) {
	const op = "open artifact"

	data, err := mmap.Open(path)
	if err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to open artifact").WithOp(op, path)
	}
	fr, err := ipc.NewFileReader(bytes.NewReader(data.Bytes()), ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		data.Close()
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeFormat, "not an arrow ipc file").WithOp(op, path)
	}
	s, err := schema.FromArrow(fr.Schema())
	if err != nil {
		fr.Close()
		data.Close()
		return nil, flserrors.Annotate(err, op, path)
	}

	a := &Artifact{path: path, data: data, reader: fr, schema: s, rows: -1}
	md := fr.Schema().Metadata()
	if i := md.FindKey(metaRows); i >= 0 {
		if n, err := strconv.ParseInt(md.Values()[i], 10, 64); err == nil {
			a.rows = n
		}
	}
	return a, nil
}

// DecodeToDirectory decodes a into path.
func (e *Engine) DecodeToDirectory(a engine.Artifact, path string) error {
	art, ok := a.(*Artifact)
	if !ok {
		return engine.ForeignArtifact(Name, a)
	}
	_, err := e.Materialize(path, art.schema, &batchReader{a: art})
	return err
}

// Artifact is an opened Arrow IPC file.
type Artifact struct {
	path   string
	data   *mmap.Reader
	reader *ipc.FileReader
	schema *schema.Schema
	rows   int64
}

func (a *Artifact) Path() string           { return a.path }
func (a *Artifact) Schema() *schema.Schema { return a.schema }

// NumRows returns the recorded row count, counting batches when the file
// was not written by fls.
func (a *Artifact) NumRows() int64 {
	if a.rows >= 0 {
		return a.rows
	}
	var n int64
	for i := 0; i < a.reader.NumRecords(); i++ {
		rec, err := a.reader.RecordAt(i)
		if err != nil {
			return n
		}
		n += rec.NumRows()
		rec.Release()
	}
	a.rows = n
	return n
}

// Describe reports the batch layout and the metadata fls recorded.
func (a *Artifact) Describe() engine.Description {
	d := engine.Description{
		Engine:       Name,
		Path:         a.path,
		FileBytes:    a.data.Size(),
		Rows:         a.NumRows(),
		Rowgroups:    a.reader.NumRecords(),
		Columns:      engine.DescribeColumns(a.schema),
		InlineFooter: true,
	}
	md := a.reader.Schema().Metadata()
	if i := md.FindKey(metaVersion); i >= 0 {
		d.Version = md.Values()[i]
	}
	if i := md.FindKey(metaCodec); i >= 0 {
		d.Codec = md.Values()[i]
	}
	return d
}

// Close releases the reader and unmaps the file.
func (a *Artifact) Close() error {
	if a.reader == nil {
		return nil
	}
	a.reader.Close()
	a.reader = nil
	return a.data.Close()
}

type batchReader struct {
	a    *Artifact
	next int
}

func (r *batchReader) Next() (arrow.Record, error) {
	if r.next >= r.a.reader.NumRecords() {
		return nil, io.EOF
	}
	rec, err := r.a.reader.RecordAt(r.next)
	if err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeFormat, "failed to read record batch").
			WithOp("decode artifact", r.a.path).WithDetail("batch", r.next)
	}
	r.next++
	return rec, nil
}
