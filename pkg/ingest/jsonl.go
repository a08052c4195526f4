package ingest

import (
	"errors"
	"io"
	"strconv"

	"go.uber.org/zap"

	"github.com/ajitpratap0/fls/pkg/flserrors"
	jsonpool "github.com/ajitpratap0/fls/pkg/json"
	"github.com/ajitpratap0/fls/pkg/schema"
	"github.com/ajitpratap0/fls/pkg/table"
)

// ReadJSONL reads one JSON object per line, keyed by column name. A
// missing key is null; a key that names no column is a schema error.
func ReadJSONL(r io.Reader, s *schema.Schema, opts Options) (*table.Table, error) {
	opts.defaults()

	index := make(map[string]int, s.Len())
	for i, c := range s.Columns {
		index[c.Name] = i
	}

	dec := jsonpool.NewDecoder(r)
	b := table.NewBuilder(s, opts.RowgroupSize, opts.Allocator)
	seen := make([]bool, s.Len())
	for row := 1; ; row++ {
		var obj map[string]interface{}
		err := dec.Decode(&obj)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			b.Release()
			return nil, flserrors.Wrap(err, flserrors.ErrorTypeSchema, "malformed object in row "+strconv.Itoa(row))
		}
		if obj == nil {
			b.Release()
			return nil, flserrors.Newf(flserrors.ErrorTypeSchema, "row %d is not an object", row)
		}

		for i := range seen {
			seen[i] = false
		}
		for key, v := range obj {
			i, ok := index[key]
			if !ok {
				b.Release()
				return nil, flserrors.Newf(flserrors.ErrorTypeSchema, "row %d has unknown column %q", row, key)
			}
			seen[i] = true
			if err := b.AppendValue(i, v); err != nil {
				b.Release()
				return nil, flserrors.Wrap(err, flserrors.ErrorTypeSchema, "invalid value in row "+strconv.Itoa(row))
			}
		}
		for i, ok := range seen {
			if ok {
				continue
			}
			if err := b.AppendNull(i); err != nil {
				b.Release()
				return nil, flserrors.Wrap(err, flserrors.ErrorTypeSchema, "missing value in row "+strconv.Itoa(row))
			}
		}
		b.EndRow()
	}

	t, err := b.Finish()
	if err != nil {
		return nil, err
	}
	opts.Logger.Debug("read jsonl data", zap.Int64("rows", t.NumRows()), zap.Int("rowgroups", t.NumRowgroups()))
	return t, nil
}
