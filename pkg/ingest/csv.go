package ingest

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"

	"go.uber.org/zap"

	"github.com/ajitpratap0/fls/pkg/flserrors"
	"github.com/ajitpratap0/fls/pkg/schema"
	"github.com/ajitpratap0/fls/pkg/table"
)

// ReadCSV reads headerless delimited rows. Quoted fields follow RFC 4180,
// blank lines are skipped and one trailing empty field (a delimiter at the
// end of the line) is dropped.
func ReadCSV(r io.Reader, s *schema.Schema, opts Options) (*table.Table, error) {
	opts.defaults()

	cr := csv.NewReader(r)
	cr.Comma = rune(opts.Delimiter)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	b := table.NewBuilder(s, opts.RowgroupSize, opts.Allocator)
	ncols := s.Len()
	for row := 1; ; row++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			b.Release()
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, flserrors.Wrap(err, flserrors.ErrorTypeSchema, "malformed row").
					WithDetail("line", pe.Line)
			}
			return nil, flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to read data")
		}

		if len(record) == ncols+1 && record[ncols] == "" {
			record = record[:ncols]
		}
		if len(record) != ncols {
			b.Release()
			line, _ := cr.FieldPos(0)
			return nil, flserrors.Newf(flserrors.ErrorTypeSchema,
				"row %d has %d fields, schema has %d columns", row, len(record), ncols).
				WithDetail("line", line)
		}

		for i, field := range record {
			if err := b.AppendText(i, field); err != nil {
				b.Release()
				line, _ := cr.FieldPos(i)
				return nil, flserrors.Wrap(err, flserrors.ErrorTypeSchema, "invalid value in row "+strconv.Itoa(row)).
					WithDetail("line", line)
			}
		}
		b.EndRow()
	}

	t, err := b.Finish()
	if err != nil {
		return nil, err
	}
	opts.Logger.Debug("read csv data", zap.Int64("rows", t.NumRows()), zap.Int("rowgroups", t.NumRowgroups()))
	return t, nil
}
