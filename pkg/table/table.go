// Package table holds an ingested table in memory as a sequence of arrow
// records, one per rowgroup.
package table

import (
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/ajitpratap0/fls/pkg/flserrors"
	"github.com/ajitpratap0/fls/pkg/schema"
)

// Table is an immutable set of rowgroups sharing one schema.
type Table struct {
	schema  *schema.Schema
	records []arrow.Record
	rows    int64
}

// New assembles a table from records whose arrow schema has one field per
// schema column. The table takes ownership of the records.
func New(s *schema.Schema, records []arrow.Record) (*Table, error) {
	t := &Table{schema: s, records: records}
	for i, rec := range records {
		if int(rec.NumCols()) != s.Len() {
			t.Release()
			return nil, flserrors.Newf(flserrors.ErrorTypeSchema,
				"rowgroup %d has %d columns, schema has %d", i, rec.NumCols(), s.Len())
		}
		t.rows += rec.NumRows()
	}
	return t, nil
}

// Schema returns the table schema.
func (t *Table) Schema() *schema.Schema { return t.schema }

// Records returns the rowgroups. They remain owned by the table.
func (t *Table) Records() []arrow.Record { return t.records }

// NumRows returns the total number of rows.
func (t *Table) NumRows() int64 { return t.rows }

// NumRowgroups returns the number of rowgroups.
func (t *Table) NumRowgroups() int { return len(t.records) }

// Project returns a new table with the columns at idxs, in that order. The
// receiver is left intact.
func (t *Table) Project(idxs []int) (*Table, error) {
	ps, err := t.schema.Project(idxs)
	if err != nil {
		return nil, err
	}
	as := ps.ArrowSchema()

	records := make([]arrow.Record, len(t.records))
	for r, rec := range t.records {
		cols := make([]arrow.Array, len(idxs))
		for i, idx := range idxs {
			cols[i] = rec.Column(idx)
		}
		records[r] = array.NewRecord(as, cols, rec.NumRows())
	}
	return &Table{schema: ps, records: records, rows: t.rows}, nil
}

// Release drops the table's references to its records.
func (t *Table) Release() {
	for _, rec := range t.records {
		rec.Release()
	}
	t.records = nil
}

// Reader iterates the rowgroups of a table in order.
type Reader struct {
	t *Table
	i int
}

// NewReader returns a reader positioned at the first rowgroup.
func (t *Table) NewReader() *Reader { return &Reader{t: t} }

// Next returns the next rowgroup with an extra reference the caller must
// release, or io.EOF.
func (r *Reader) Next() (arrow.Record, error) {
	if r.i >= len(r.t.records) {
		return nil, io.EOF
	}
	rec := r.t.records[r.i]
	rec.Retain()
	r.i++
	return rec, nil
}
