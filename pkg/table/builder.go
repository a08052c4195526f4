package table

import (
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/fls/pkg/flserrors"
	jsonpool "github.com/ajitpratap0/fls/pkg/json"
	"github.com/ajitpratap0/fls/pkg/schema"
)

// Builder accumulates rows and cuts a record every rowgroupSize rows.
// Values are appended column by column; EndRow closes the current row.
type Builder struct {
	schema       *schema.Schema
	rowgroupSize int
	rb           *array.RecordBuilder
	pending      int
	records      []arrow.Record
}

// NewBuilder creates a builder. A nil allocator uses the Go allocator.
func NewBuilder(s *schema.Schema, rowgroupSize int, mem memory.Allocator) *Builder {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	if rowgroupSize <= 0 {
		rowgroupSize = 64 * 1024
	}
	return &Builder{
		schema:       s,
		rowgroupSize: rowgroupSize,
		rb:           array.NewRecordBuilder(mem, s.ArrowSchema()),
	}
}

// AppendNull appends a null to column col.
func (b *Builder) AppendNull(col int) error {
	c := &b.schema.Columns[col]
	if !c.Nullable {
		return flserrors.Newf(flserrors.ErrorTypeSchema, "column %q is not nullable", c.Name).
			WithDetail("column", c.Name)
	}
	b.rb.Field(col).AppendNull()
	return nil
}

// AppendText parses field as the type of column col and appends it. An
// empty field is null for every type but string.
func (b *Builder) AppendText(col int, field string) error {
	c := &b.schema.Columns[col]
	if field == "" && c.Type != schema.TypeString {
		return b.AppendNull(col)
	}
	if err := appendParsed(b.rb.Field(col), c, field); err != nil {
		return flserrors.Wrap(err, flserrors.ErrorTypeSchema,
			"cannot parse "+strconv.Quote(field)+" as "+c.TypeName+" for column "+strconv.Quote(c.Name)).
			WithDetail("column", c.Name)
	}
	return nil
}

// AppendValue appends a decoded JSON value: nil, string, bool, json.Number
// or float64.
func (b *Builder) AppendValue(col int, v interface{}) error {
	c := &b.schema.Columns[col]
	switch x := v.(type) {
	case nil:
		return b.AppendNull(col)
	case string:
		if x == "" && c.Type != schema.TypeString {
			return b.AppendNull(col)
		}
		return b.AppendText(col, x)
	case bool:
		return b.AppendText(col, strconv.FormatBool(x))
	case jsonpool.Number:
		return b.AppendText(col, x.String())
	case float64:
		return b.AppendText(col, strconv.FormatFloat(x, 'g', -1, 64))
	default:
		return flserrors.Newf(flserrors.ErrorTypeSchema,
			"column %q cannot hold a %T value", c.Name, v).WithDetail("column", c.Name)
	}
}

// EndRow completes a row. All columns must have received exactly one value.
func (b *Builder) EndRow() {
	b.pending++
	if b.pending >= b.rowgroupSize {
		b.flush()
	}
}

// Rows returns the number of completed rows.
func (b *Builder) Rows() int64 {
	var n int64
	for _, r := range b.records {
		n += r.NumRows()
	}
	return n + int64(b.pending)
}

// Finish cuts the last rowgroup and returns the table. The builder must
// not be used afterwards.
func (b *Builder) Finish() (*Table, error) {
	if b.pending > 0 {
		b.flush()
	}
	records := b.records
	b.records = nil
	b.rb.Release()
	return New(b.schema, records)
}

// Release frees everything built so far.
func (b *Builder) Release() {
	for _, r := range b.records {
		r.Release()
	}
	b.records = nil
	b.rb.Release()
}

func (b *Builder) flush() {
	b.records = append(b.records, b.rb.NewRecord())
	b.pending = 0
}

func appendParsed(fb array.Builder, c *schema.Column, s string) error {
	switch c.Type {
	case schema.TypeInt8, schema.TypeInt16, schema.TypeInt32, schema.TypeInt64:
		v, err := schema.ParseInt(s, c.Type.BitSize())
		if err != nil {
			return err
		}
		switch x := fb.(type) {
		case *array.Int8Builder:
			x.Append(int8(v))
		case *array.Int16Builder:
			x.Append(int16(v))
		case *array.Int32Builder:
			x.Append(int32(v))
		case *array.Int64Builder:
			x.Append(v)
		}
	case schema.TypeUint8, schema.TypeUint16, schema.TypeUint32, schema.TypeUint64:
		v, err := schema.ParseUint(s, c.Type.BitSize())
		if err != nil {
			return err
		}
		switch x := fb.(type) {
		case *array.Uint8Builder:
			x.Append(uint8(v))
		case *array.Uint16Builder:
			x.Append(uint16(v))
		case *array.Uint32Builder:
			x.Append(uint32(v))
		case *array.Uint64Builder:
			x.Append(v)
		}
	case schema.TypeFloat32:
		v, err := schema.ParseFloat(s, 32)
		if err != nil {
			return err
		}
		fb.(*array.Float32Builder).Append(float32(v))
	case schema.TypeFloat64:
		v, err := schema.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		fb.(*array.Float64Builder).Append(v)
	case schema.TypeString:
		fb.(*array.StringBuilder).Append(s)
	case schema.TypeBool:
		v, err := schema.ParseBool(s)
		if err != nil {
			return err
		}
		fb.(*array.BooleanBuilder).Append(v)
	case schema.TypeDate:
		v, err := schema.ParseDate(s)
		if err != nil {
			return err
		}
		fb.(*array.Date32Builder).Append(v)
	case schema.TypeTimestamp:
		v, err := schema.ParseTimestamp(s)
		if err != nil {
			return err
		}
		fb.(*array.TimestampBuilder).Append(v)
	case schema.TypeDecimal:
		v, err := schema.ParseDecimal(s, c.Precision, c.Scale)
		if err != nil {
			return err
		}
		fb.(*array.Decimal128Builder).Append(decimal128.FromI64(v))
	default:
		return flserrors.Newf(flserrors.ErrorTypeInternal, "unsupported column type %s", c.Type)
	}
	return nil
}
