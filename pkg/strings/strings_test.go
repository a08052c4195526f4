package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytesToString(t *testing.T) {
	assert.Equal(t, "hello world", BytesToString([]byte("hello world")))
	assert.Equal(t, "", BytesToString(nil))
}

func TestBuilder(t *testing.T) {
	builder := NewBuilder(2)
	builder.WriteString("hello")
	builder.WriteByte(' ')
	builder.Write([]byte("world"))

	assert.Equal(t, "hello world", builder.String())
	assert.Equal(t, 11, builder.Len())

	before := builder.Cap()
	builder.Grow(before * 2)
	assert.Greater(t, builder.Cap(), before)

	builder.Reset()
	assert.Equal(t, 0, builder.Len())
}

func TestPooledBuilders(t *testing.T) {
	for _, size := range []BuilderSize{Small, Medium, Large, BuilderSize(42)} {
		b := GetBuilder(size)
		assert.Equal(t, 0, b.Len())
		b.WriteString("data")
		PutBuilder(b, size)
	}
	PutBuilder(nil, Small)
}

func TestSizeFor(t *testing.T) {
	assert.Equal(t, Small, SizeFor(10))
	assert.Equal(t, Medium, SizeFor(4096))
	assert.Equal(t, Large, SizeFor(1<<20))
}

func TestSprintfAndConcat(t *testing.T) {
	assert.Equal(t, "plain", Sprintf("plain"))
	assert.Equal(t, "io: ingest: 3", Sprintf("%s: %s: %d", "io", "ingest", 3))
	assert.Equal(t, "", Concat())
	assert.Equal(t, "a", Concat("a"))
	assert.Equal(t, "a/b/c", Concat("a", "/", "b", "/", "c"))
}

func TestValueToString(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"nil", nil, ""},
		{"string", "x", "x"},
		{"int8", int8(-8), "-8"},
		{"uint64", uint64(18446744073709551615), "18446744073709551615"},
		{"float64", 1.5, "1.5"},
		{"float32", float32(0.25), "0.25"},
		{"bool", true, "true"},
		{"bytes", []byte("raw"), "raw"},
		{"struct", struct{ A int }{1}, "{1}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValueToString(tt.value))
		})
	}
}

func TestRowBuilder(t *testing.T) {
	rb := NewRowBuilder('|', 2, 3)
	defer rb.Close()

	rb.WriteRow([]string{"1", "plain", ""})
	rb.WriteRow([]string{"2", "a|b", `say "hi"`})

	assert.Equal(t, "1|plain|\n2|\"a|b\"|\"say \"\"hi\"\"\"\n", string(rb.Bytes()))
	assert.Equal(t, 2, rb.Rows())

	rb.Reset()
	assert.Equal(t, 0, rb.Len())
	assert.Equal(t, 2, rb.Rows())
}
