// Package materialize writes decoded tables back out as delimited text.
package materialize

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"go.uber.org/zap"

	"github.com/ajitpratap0/fls/pkg/flserrors"
	"github.com/ajitpratap0/fls/pkg/schema"
	stringpool "github.com/ajitpratap0/fls/pkg/strings"
)

// FileName is written inside a target that is an existing directory.
const FileName = "materialized_by_fls.csv"

// RecordReader yields rowgroups in order and io.EOF after the last one.
// The caller of Next owns the returned record.
type RecordReader interface {
	Next() (arrow.Record, error)
}

// Options control materialization.
type Options struct {
	// Delimiter separates fields; zero means '|'
	Delimiter byte
	Logger    *zap.Logger
}

// TargetPath resolves where rows for path are written: inside path when it
// is an existing directory, path itself otherwise.
func TargetPath(path string) string {
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		return filepath.Join(path, FileName)
	}
	return path
}

// ToFile writes every record of rr to the resolved target and returns the
// file written and the row count.
func ToFile(path string, s *schema.Schema, rr RecordReader, opts Options) (string, int64, error) {
	const op = "materialize"
	target := TargetPath(path)

	f, err := os.Create(target) //nolint:gosec // G304: target chosen by the caller
	if err != nil {
		return target, 0, flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to create output").WithOp(op, target)
	}

	w := NewWriter(f, s, opts.Delimiter)
	rows, werr := w.WriteAll(rr)
	if werr == nil {
		werr = w.Flush()
	}
	if cerr := f.Close(); werr == nil && cerr != nil {
		werr = flserrors.Wrap(cerr, flserrors.ErrorTypeIO, "failed to close output")
	}
	if werr != nil {
		return target, rows, flserrors.Annotate(werr, op, target)
	}

	if opts.Logger != nil {
		opts.Logger.Debug("materialized rows", zap.String("path", target), zap.Int64("rows", rows))
	}
	return target, rows, nil
}

// Writer renders records as delimited rows.
type Writer struct {
	w      *bufio.Writer
	schema *schema.Schema
	delim  byte
	fields []string
	rows   int64
}

// NewWriter creates a writer for records of schema s.
func NewWriter(w io.Writer, s *schema.Schema, delim byte) *Writer {
	if delim == 0 {
		delim = '|'
	}
	return &Writer{
		w:      bufio.NewWriterSize(w, 1<<20),
		schema: s,
		delim:  delim,
		fields: make([]string, s.Len()),
	}
}

// WriteAll drains rr, releasing every record.
func (w *Writer) WriteAll(rr RecordReader) (int64, error) {
	for {
		rec, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return w.rows, nil
		}
		if err != nil {
			return w.rows, err
		}
		err = w.WriteRecord(rec)
		rec.Release()
		if err != nil {
			return w.rows, err
		}
	}
}

// WriteRecord appends the rows of rec.
func (w *Writer) WriteRecord(rec arrow.Record) error {
	if int(rec.NumCols()) != w.schema.Len() {
		return flserrors.Newf(flserrors.ErrorTypeFormat, "record has %d columns, schema has %d", rec.NumCols(), w.schema.Len())
	}
	n := int(rec.NumRows())
	rb := stringpool.NewRowBuilder(w.delim, n, len(w.fields))
	defer rb.Close()

	single := len(w.fields) == 1
	for i := 0; i < n; i++ {
		for c := range w.fields {
			w.fields[c] = FormatValue(rec.Column(c), &w.schema.Columns[c], i)
		}
		if single && w.fields[0] == "" && rec.Column(0).IsValid(i) {
			// a lone empty string would read back as a blank line
			rb.WriteRawRow(`""`)
			continue
		}
		rb.WriteRow(w.fields)
	}
	if _, err := w.w.Write(rb.Bytes()); err != nil {
		return flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to write rows")
	}
	w.rows += int64(n)
	return nil
}

// Flush writes buffered rows to the underlying writer.
func (w *Writer) Flush() error {
	if err := w.w.Flush(); err != nil {
		return flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to flush rows")
	}
	return nil
}

// Rows returns the number of rows written.
func (w *Writer) Rows() int64 { return w.rows }

// FormatValue renders slot i of arr in canonical text form. Null is the
// empty string.
func FormatValue(arr arrow.Array, c *schema.Column, i int) string {
	if arr.IsNull(i) {
		return ""
	}
	switch a := arr.(type) {
	case *array.Int8:
		return stringpool.ValueToString(a.Value(i))
	case *array.Int16:
		return stringpool.ValueToString(a.Value(i))
	case *array.Int32:
		return stringpool.ValueToString(a.Value(i))
	case *array.Int64:
		return stringpool.ValueToString(a.Value(i))
	case *array.Uint8:
		return stringpool.ValueToString(a.Value(i))
	case *array.Uint16:
		return stringpool.ValueToString(a.Value(i))
	case *array.Uint32:
		return stringpool.ValueToString(a.Value(i))
	case *array.Uint64:
		return stringpool.ValueToString(a.Value(i))
	case *array.Float32:
		return stringpool.ValueToString(a.Value(i))
	case *array.Float64:
		return stringpool.ValueToString(a.Value(i))
	case *array.Boolean:
		return stringpool.ValueToString(a.Value(i))
	case *array.String:
		return a.Value(i)
	case *array.Date32:
		return schema.FormatDate(a.Value(i))
	case *array.Timestamp:
		return schema.FormatTimestamp(a.Value(i))
	case *array.Decimal128:
		return schema.FormatDecimal(int64(a.Value(i).LowBits()), c.Scale) //nolint:gosec // G115: precision <= 18 fits int64
	default:
		return arr.ValueStr(i)
	}
}
