package ingest

import (
	"bytes"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/ajitpratap0/fls/pkg/flserrors"
	"github.com/ajitpratap0/fls/pkg/mmap"
	"github.com/ajitpratap0/fls/pkg/schema"
	"github.com/ajitpratap0/fls/pkg/table"
)

// Options control ingestion.
type Options struct {
	// Delimiter separates CSV fields; zero means '|'
	Delimiter byte
	// RowgroupSize is the number of rows per rowgroup
	RowgroupSize int
	Allocator    memory.Allocator
	Logger       *zap.Logger
}

func (o *Options) defaults() {
	if o.Delimiter == 0 {
		o.Delimiter = '|'
	}
	if o.RowgroupSize <= 0 {
		o.RowgroupSize = 64 * 1024
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Directory discovers and loads an input directory.
func Directory(dir string, opts Options) (*table.Table, error) {
	opts.defaults()

	src, err := Discover(dir)
	if err != nil {
		return nil, err
	}
	s, err := schema.Load(src.SchemaPath)
	if err != nil {
		return nil, err
	}

	data, err := mmap.Open(src.DataPath)
	if err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to open data file").WithOp("ingest", src.DataPath)
	}
	defer data.Close()

	opts.Logger.Debug("ingesting input directory",
		zap.String("schema", src.SchemaPath),
		zap.String("data", src.DataPath),
		zap.String("format", string(src.Format)),
		zap.Int("columns", s.Len()),
		zap.Int64("bytes", data.Size()))

	var t *table.Table
	switch src.Format {
	case FormatJSONL:
		t, err = ReadJSONL(bytes.NewReader(data.Bytes()), s, opts)
	default:
		t, err = ReadCSV(bytes.NewReader(data.Bytes()), s, opts)
	}
	if err != nil {
		return nil, flserrors.Annotate(err, "ingest", src.DataPath)
	}
	return t, nil
}
