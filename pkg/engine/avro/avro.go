// Package avro stores tables as Avro object container files through
// goavro. One OCF block is written per rowgroup and the table schema is
// kept in the file metadata.
package avro

import (
	"bytes"
	"io"
	"os"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/linkedin/goavro/v2"
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
const Name = "avro"

// Keys of the OCF header metadata fls writes.
const (
	SchemaMetadataKey = "fls.schema"
	metaVersion       = "fls.version"
	metaCodec         = "fls.codec"
	metaRows          = "fls.rows"
	metaRowgroups     = "fls.rowgroups"
)

func init() {
	registry.Register(Name, func(cfg config.EngineConfig) (engine.Engine, error) {
		return New(cfg)
	})
}

// Engine reads and writes Avro artifacts.
type Engine struct {
	engine.Base
	codec string
}

// New creates an Avro engine. OCF supports deflate and snappy blocks;
// other codecs fall back to deflate, and "none" writes plain blocks.
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
	return &Engine{Base: base, codec: ocfCodec(algo)}, nil
}

func ocfCodec(a compression.Algorithm) string {
	switch a {
	case compression.None:
		return goavro.CompressionNullLabel
	case compression.Snappy, compression.S2:
		return goavro.CompressionSnappyLabel
	default:
		return goavro.CompressionDeflateLabel
	}
}

// Name returns "avro".
func (e *Engine) Name() string { return Name }

// WriteArtifact writes t to path. The OCF header holds all metadata, so
// opts.InlineFooter has no effect.
func (e *Engine) WriteArtifact(t *table.Table, path string, _ engine.WriteOptions) error {
	const op = "write artifact"

	avroSchema, err := recordSchema(t.Schema())
	if err != nil {
		return flserrors.Annotate(err, op, path)
	}
	tableSchema, err := t.Schema().MarshalJSON()
	if err != nil {
		return flserrors.Wrap(err, flserrors.ErrorTypeInternal, "failed to encode schema").WithOp(op, path)
	}

	f, err := os.Create(path) //nolint:gosec // G304: artifact path chosen by the caller
	if err != nil {
		return flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to create artifact").WithOp(op, path)
	}

	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               f,
		Schema:          avroSchema,
		CompressionName: e.codec,
		MetaData: map[string][]byte{
			SchemaMetadataKey: tableSchema,
			metaVersion:       []byte(engine.Version),
			metaCodec:         []byte(e.codec),
			metaRows:          []byte(strconv.FormatInt(t.NumRows(), 10)),
			metaRowgroups:     []byte(strconv.Itoa(t.NumRowgroups())),
		},
	})
	if err != nil {
		f.Close()
		return flserrors.Wrap(err, flserrors.ErrorTypeInternal, "failed to create avro writer").WithOp(op, path)
	}

	for _, rec := range t.Records() {
		rows, err := nativeRows(t.Schema(), rec)
		if err == nil {
			err = ocf.Append(rows)
		}
		if err != nil {
			f.Close()
			return flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to write block").WithOp(op, path)
		}
	}
	if err := f.Close(); err != nil {
		return flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to close artifact").WithOp(op, path)
	}

	e.Logger.Debug("wrote avro artifact",
		zap.String("path", path),
		zap.Int64("rows", t.NumRows()),
		zap.Int("blocks", t.NumRowgroups()),
		zap.String("codec", e.codec))
	return nil
}

// nativeRows converts rec into goavro native rows.
func nativeRows(s *schema.Schema, rec arrow.Record) ([]interface{}, error) {
	n := int(rec.NumRows())
	rows := make([]interface{}, n)
	for i := 0; i < n; i++ {
		row := make(map[string]interface{}, s.Len())
		for c := range s.Columns {
			v, err := nativeValue(rec.Column(c), i)
			if err != nil {
				return nil, err
			}
			if v == nil {
				row[fieldName(c)] = nil
			} else {
				row[fieldName(c)] = goavro.Union(avroType(s.Columns[c].Type), v)
			}
		}
		rows[i] = row
	}
	return rows, nil
}

func nativeValue(arr arrow.Array, i int) (interface{}, error) {
	if arr.IsNull(i) {
		return nil, nil
	}
	switch a := arr.(type) {
	case *array.Int8:
		return int32(a.Value(i)), nil
	case *array.Int16:
		return int32(a.Value(i)), nil
	case *array.Int32:
		return a.Value(i), nil
	case *array.Int64:
		return a.Value(i), nil
	case *array.Uint8:
		return int32(a.Value(i)), nil
	case *array.Uint16:
		return int32(a.Value(i)), nil
	case *array.Uint32:
		return int64(a.Value(i)), nil
	case *array.Uint64:
		return int64(a.Value(i)), nil //nolint:gosec // G115: bit pattern preserved
	case *array.Float32:
		return a.Value(i), nil
	case *array.Float64:
		return a.Value(i), nil
	case *array.Boolean:
		return a.Value(i), nil
	case *array.String:
		return a.Value(i), nil
	case *array.Date32:
		return int32(a.Value(i)), nil
	case *array.Timestamp:
		return int64(a.Value(i)), nil
	case *array.Decimal128:
		return int64(a.Value(i).LowBits()), nil //nolint:gosec // G115: precision <= 18 fits int64
	default:
		return nil, flserrors.Newf(flserrors.ErrorTypeInternal, "avro cannot store %s", arr.DataType())
	}
}

// OpenArtifact maps path and reads the OCF header.
func (e *Engine) OpenArtifact(path string) (engine.Artifact, error) {
	const op = "open artifact"

	data, err := mmap.Open(path)
	if err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to open artifact").WithOp(op, path)
	}
	ocf, err := goavro.NewOCFReader(bytes.NewReader(data.Bytes()))
	if err != nil {
		data.Close()
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeFormat, "not an avro object container file").WithOp(op, path)
	}
	md := ocf.MetaData()
	raw, ok := md[SchemaMetadataKey]
	if !ok {
		data.Close()
		return nil, flserrors.New(flserrors.ErrorTypeFormat, "avro file has no "+SchemaMetadataKey+" metadata").WithOp(op, path)
	}
	s, err := schema.Parse(raw)
	if err != nil {
		data.Close()
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeFormat, "invalid stored schema").WithOp(op, path)
	}

	a := &Artifact{path: path, data: data, schema: s, meta: md, rows: -1}
	if n, err := strconv.ParseInt(string(md[metaRows]), 10, 64); err == nil {
		a.rows = n
	}
	return a, nil
}

// DecodeToDirectory decodes a into path.
func (e *Engine) DecodeToDirectory(a engine.Artifact, path string) error {
	art, ok := a.(*Artifact)
	if !ok {
		return engine.ForeignArtifact(Name, a)
	}
	ocf, err := goavro.NewOCFReader(bytes.NewReader(art.data.Bytes()))
	if err != nil {
		return flserrors.Wrap(err, flserrors.ErrorTypeFormat, "failed to reopen avro file").WithOp("decode artifact", art.path)
	}
	rr := &blockReader{
		ocf:    ocf,
		schema: art.schema,
		path:   art.path,
		size:   e.Config.RowgroupSize(),
		mem:    memory.NewGoAllocator(),
	}
	_, err = e.Materialize(path, art.schema, rr)
	return err
}

// Artifact is an opened Avro object container file.
type Artifact struct {
	path   string
	data   *mmap.Reader
	schema *schema.Schema
	meta   map[string][]byte
	rows   int64
}

func (a *Artifact) Path() string           { return a.path }
func (a *Artifact) Schema() *schema.Schema { return a.schema }

// NumRows returns the recorded row count, or -1 when it is unknown.
func (a *Artifact) NumRows() int64 { return a.rows }

// Describe reports the metadata fls recorded in the OCF header.
func (a *Artifact) Describe() engine.Description {
	d := engine.Description{
		Engine:       Name,
		Version:      string(a.meta[metaVersion]),
		Path:         a.path,
		FileBytes:    a.data.Size(),
		Rows:         a.rows,
		Codec:        string(a.meta[metaCodec]),
		Columns:      engine.DescribeColumns(a.schema),
		InlineFooter: true,
	}
	if n, err := strconv.Atoi(string(a.meta[metaRowgroups])); err == nil {
		d.Rowgroups = n
	}
	return d
}

// Close unmaps the file.
func (a *Artifact) Close() error { return a.data.Close() }

// blockReader decodes OCF items into arrow records of up to size rows.
type blockReader struct {
	ocf    *goavro.OCFReader
	schema *schema.Schema
	path   string
	size   int
	mem    memory.Allocator
}

func (r *blockReader) Next() (arrow.Record, error) {
	b := array.NewRecordBuilder(r.mem, r.schema.ArrowSchema())
	defer b.Release()

	n := 0
	for n < r.size && r.ocf.Scan() {
		datum, err := r.ocf.Read()
		if err != nil {
			return nil, r.err(err, "failed to read item")
		}
		row, ok := datum.(map[string]interface{})
		if !ok {
			return nil, r.err(nil, "item is not a record")
		}
		for c := range r.schema.Columns {
			if err := appendNative(b.Field(c), &r.schema.Columns[c], row[fieldName(c)]); err != nil {
				return nil, r.err(err, "bad value for column "+strconv.Quote(r.schema.Columns[c].Name))
			}
		}
		n++
	}
	if err := r.ocf.Err(); err != nil {
		return nil, r.err(err, "failed to read block")
	}
	if n == 0 {
		return nil, io.EOF
	}
	return b.NewRecord(), nil
}

func (r *blockReader) err(cause error, msg string) error {
	var e *flserrors.Error
	if cause != nil {
		e = flserrors.Wrap(cause, flserrors.ErrorTypeFormat, msg)
	} else {
		e = flserrors.New(flserrors.ErrorTypeFormat, msg)
	}
	return e.WithOp("decode artifact", r.path)
}

// appendNative appends a decoded union value to fb.
func appendNative(fb array.Builder, c *schema.Column, v interface{}) error {
	if u, ok := v.(map[string]interface{}); ok {
		for _, inner := range u {
			v = inner
		}
	}
	if v == nil {
		fb.AppendNull()
		return nil
	}

	switch b := fb.(type) {
	case *array.Int8Builder:
		x, ok := v.(int32)
		if !ok {
			return typeErr(c, v)
		}
		b.Append(int8(x)) //nolint:gosec // G115: written from an int8
	case *array.Int16Builder:
		x, ok := v.(int32)
		if !ok {
			return typeErr(c, v)
		}
		b.Append(int16(x)) //nolint:gosec // G115: written from an int16
	case *array.Int32Builder:
		x, ok := v.(int32)
		if !ok {
			return typeErr(c, v)
		}
		b.Append(x)
	case *array.Int64Builder:
		x, ok := v.(int64)
		if !ok {
			return typeErr(c, v)
		}
		b.Append(x)
	case *array.Uint8Builder:
		x, ok := v.(int32)
		if !ok {
			return typeErr(c, v)
		}
		b.Append(uint8(x)) //nolint:gosec // G115: written from a uint8
	case *array.Uint16Builder:
		x, ok := v.(int32)
		if !ok {
			return typeErr(c, v)
		}
		b.Append(uint16(x)) //nolint:gosec // G115: written from a uint16
	case *array.Uint32Builder:
		x, ok := v.(int64)
		if !ok {
			return typeErr(c, v)
		}
		b.Append(uint32(x)) //nolint:gosec // G115: written from a uint32
	case *array.Uint64Builder:
		x, ok := v.(int64)
		if !ok {
			return typeErr(c, v)
		}
		b.Append(uint64(x)) //nolint:gosec // G115: bit pattern preserved
	case *array.Float32Builder:
		x, ok := v.(float32)
		if !ok {
			return typeErr(c, v)
		}
		b.Append(x)
	case *array.Float64Builder:
		x, ok := v.(float64)
		if !ok {
			return typeErr(c, v)
		}
		b.Append(x)
	case *array.BooleanBuilder:
		x, ok := v.(bool)
		if !ok {
			return typeErr(c, v)
		}
		b.Append(x)
	case *array.StringBuilder:
		x, ok := v.(string)
		if !ok {
			return typeErr(c, v)
		}
		b.Append(x)
	case *array.Date32Builder:
		x, ok := v.(int32)
		if !ok {
			return typeErr(c, v)
		}
		b.Append(arrow.Date32(x))
	case *array.TimestampBuilder:
		x, ok := v.(int64)
		if !ok {
			return typeErr(c, v)
		}
		b.Append(arrow.Timestamp(x))
	case *array.Decimal128Builder:
		x, ok := v.(int64)
		if !ok {
			return typeErr(c, v)
		}
		b.Append(decimal128.FromI64(x))
	default:
		return flserrors.Newf(flserrors.ErrorTypeInternal, "no avro decoding for %T", fb)
	}
	return nil
}

func typeErr(c *schema.Column, v interface{}) error {
	return flserrors.Newf(flserrors.ErrorTypeFormat, "column %q holds a %T", c.Name, v)
}
