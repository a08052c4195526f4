// Package strings provides pooled string and byte builders used on the hot
// paths of fls: error formatting, row materialization and chunk assembly.
package strings

import (
	"fmt"
	"strconv"
	"sync"
	"unsafe"
)

// BytesToString converts a byte slice to a string without allocating.
// The returned string shares memory with b; b must not be modified afterwards.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

// Clone returns a copy of s that owns its memory.
func Clone(s string) string {
	if len(s) == 0 {
		return ""
	}
	b := make([]byte, len(s))
	copy(b, s)
	return BytesToString(b)
}

// Builder is an append-only byte buffer that implements io.Writer.
type Builder struct {
	buf []byte
}

// NewBuilder creates a builder with the given initial capacity.
func NewBuilder(capacity int) *Builder {
	return &Builder{buf: make([]byte, 0, capacity)}
}

func (b *Builder) WriteString(s string) (int, error) {
	b.buf = append(b.buf, s...)
	return len(s), nil
}

func (b *Builder) WriteByte(c byte) error {
	b.buf = append(b.buf, c)
	return nil
}

func (b *Builder) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// String returns the contents without copying. The result is only valid
// until the builder is next written to or reset.
func (b *Builder) String() string { return BytesToString(b.buf) }

func (b *Builder) Bytes() []byte { return b.buf }
func (b *Builder) Len() int      { return len(b.buf) }
func (b *Builder) Cap() int      { return cap(b.buf) }
func (b *Builder) Reset()        { b.buf = b.buf[:0] }

// Grow ensures room for n more bytes.
func (b *Builder) Grow(n int) {
	if cap(b.buf)-len(b.buf) < n {
		grown := make([]byte, len(b.buf), 2*cap(b.buf)+n)
		copy(grown, b.buf)
		b.buf = grown
	}
}

// BuilderSize selects one of the shared builder pools.
type BuilderSize int

const (
	Small  BuilderSize = iota // < 1KB
	Medium                    // 1KB - 16KB
	Large                     // 16KB+
)

var pools = [...]*sync.Pool{
	Small:  {New: func() interface{} { return NewBuilder(1024) }},
	Medium: {New: func() interface{} { return NewBuilder(16 * 1024) }},
	Large:  {New: func() interface{} { return NewBuilder(64 * 1024) }},
}

func poolFor(size BuilderSize) *sync.Pool {
	if size < Small || size > Large {
		return pools[Small]
	}
	return pools[size]
}

// SizeFor picks the pool that best fits an estimated output length.
func SizeFor(estimated int) BuilderSize {
	switch {
	case estimated > 16*1024:
		return Large
	case estimated > 1024:
		return Medium
	default:
		return Small
	}
}

// GetBuilder retrieves an empty pooled builder.
func GetBuilder(size BuilderSize) *Builder {
	b := poolFor(size).Get().(*Builder)
	b.Reset()
	return b
}

// PutBuilder returns a builder to its pool.
func PutBuilder(b *Builder, size BuilderSize) {
	if b == nil {
		return
	}
	b.Reset()
	poolFor(size).Put(b)
}

// Sprintf is fmt.Sprintf backed by a pooled builder.
func Sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	size := SizeFor(len(format) + len(args)*16)
	b := GetBuilder(size)
	defer PutBuilder(b, size)
	fmt.Fprintf(b, format, args...)
	return Clone(b.String())
}

// Concat joins strings with a pooled builder.
func Concat(parts ...string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	size := SizeFor(total)
	b := GetBuilder(size)
	defer PutBuilder(b, size)
	for _, p := range parts {
		b.WriteString(p)
	}
	return Clone(b.String())
}

// ValueToString renders scalar values without going through fmt.
func ValueToString(value interface{}) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []byte:
		return string(v)
	default:
		return Sprintf("%v", value)
	}
}

// RowBuilder accumulates delimited text rows in a pooled builder.
// Fields are quoted only when they contain the delimiter, a quote or a
// line break.
type RowBuilder struct {
	builder   *Builder
	size      BuilderSize
	delimiter byte
	rows      int
}

// NewRowBuilder creates a row builder sized for the expected output.
func NewRowBuilder(delimiter byte, estimatedRows, estimatedCols int) *RowBuilder {
	size := SizeFor(estimatedRows * estimatedCols * 16)
	return &RowBuilder{
		builder:   GetBuilder(size),
		size:      size,
		delimiter: delimiter,
	}
}

// WriteRow appends one row terminated by '\n'.
func (rb *RowBuilder) WriteRow(fields []string) {
	for i, f := range fields {
		if i > 0 {
			rb.builder.WriteByte(rb.delimiter)
		}
		rb.writeField(f)
	}
	rb.builder.WriteByte('\n')
	rb.rows++
}

// WriteRawRow appends row verbatim, terminated by '\n'.
func (rb *RowBuilder) WriteRawRow(row string) {
	rb.builder.WriteString(row)
	rb.builder.WriteByte('\n')
	rb.rows++
}

func (rb *RowBuilder) writeField(field string) {
	quote := false
	for i := 0; i < len(field); i++ {
		c := field[i]
		if c == rb.delimiter || c == '"' || c == '\n' || c == '\r' {
			quote = true
			break
		}
	}
	if !quote {
		rb.builder.WriteString(field)
		return
	}
	rb.builder.WriteByte('"')
	for i := 0; i < len(field); i++ {
		if field[i] == '"' {
			rb.builder.WriteString(`""`)
		} else {
			rb.builder.WriteByte(field[i])
		}
	}
	rb.builder.WriteByte('"')
}

// Bytes returns the buffered rows. Valid until Reset or Close.
func (rb *RowBuilder) Bytes() []byte { return rb.builder.Bytes() }

// Len returns the number of buffered bytes.
func (rb *RowBuilder) Len() int { return rb.builder.Len() }

// Rows returns the number of rows written since creation.
func (rb *RowBuilder) Rows() int { return rb.rows }

// Reset drops the buffered bytes but keeps the row count.
func (rb *RowBuilder) Reset() { rb.builder.Reset() }

// Close releases the builder back to the pool.
func (rb *RowBuilder) Close() {
	if rb.builder != nil {
		PutBuilder(rb.builder, rb.size)
		rb.builder = nil
	}
}
