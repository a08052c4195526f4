package columnar

import (
	"errors"
	"strconv"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/fls/pkg/schema"
	"github.com/ajitpratap0/fls/pkg/table"
)

// buildColumn parses fields into a single-column array; "" is null for
// non-string types and nil marks a null string.
func buildColumn(t *testing.T, mem memory.Allocator, typeName string, fields []*string) (arrow.Array, *schema.Column) {
	t.Helper()
	s, err := schema.New(schema.Column{Name: "c", TypeName: typeName, Nullable: true})
	require.NoError(t, err)

	b := table.NewBuilder(s, len(fields)+1, mem)
	for _, f := range fields {
		if f == nil {
			require.NoError(t, b.AppendNull(0))
		} else {
			require.NoError(t, b.AppendText(0, *f))
		}
		b.EndRow()
	}
	tbl, err := b.Finish()
	require.NoError(t, err)
	defer tbl.Release()

	require.Equal(t, 1, tbl.NumRowgroups())
	arr := tbl.Records()[0].Column(0)
	arr.Retain()
	return arr, &s.Columns[0]
}

func strs(values ...string) []*string {
	out := make([]*string, len(values))
	for i := range values {
		if values[i] == "<null>" {
			continue
		}
		out[i] = &values[i]
	}
	return out
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		typeName string
		values   []*string
		encoding Encoding
	}{
		{"TINYINT", strs("-128", "127", "", "0"), EncodingDeltaVarint},
		{"SMALLINT", strs("1", "2", "3", "-32768"), EncodingDeltaVarint},
		{"INT", strs("2147483647", "-2147483648", "<null>"), EncodingDeltaVarint},
		{"BIGINT", strs("9223372036854775807", "-9223372036854775808", "0"), EncodingDeltaVarint},
		{"UTINYINT", strs("255", "0"), EncodingDeltaVarint},
		{"USMALLINT", strs("65535", "1"), EncodingDeltaVarint},
		{"UINTEGER", strs("4294967295", ""), EncodingDeltaVarint},
		{"UBIGINT", strs("18446744073709551615", "0", "9223372036854775808"), EncodingDeltaVarint},
		{"DATE", strs("2024-01-01", "1/2/1900", ""), EncodingDeltaVarint},
		{"TIMESTAMP", strs("2024-01-01 10:00:00.5", "", "1969-12-31 23:59:59"), EncodingDeltaVarint},
		{"DECIMAL(18,4)", strs("-99999999999999.9999", "0.0001", ""), EncodingDeltaVarint},
		{"FLOAT", strs("1.5", "-0", "", "3.4e38"), EncodingRaw},
		{"DOUBLE", strs("-Inf", "1e-300", "Inf", "0.1"), EncodingRaw},
		{"BOOLEAN", strs("t", "f", "", "y", "n", "1", "0", "yes", "no", "true"), EncodingBitpack},
		{"VARCHAR", strs("a", "b", "", "<null>", "quote\"|pipe"), EncodingPlain},
		{"VARCHAR", strs("x", "x", "x", "y", "x", "<null>", "x"), EncodingDictionary},
		{"VARCHAR", strs("a", "a", "a", "b"), EncodingPlain},
	}
	for i, tt := range tests {
		t.Run(strconv.Itoa(i)+"_"+tt.typeName, func(t *testing.T) {
			mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
			defer mem.AssertSize(t, 0)

			arr, col := buildColumn(t, mem, tt.typeName, tt.values)
			defer arr.Release()

			chunk, err := Encode(arr, col.Type)
			require.NoError(t, err)
			assert.Equal(t, tt.encoding, chunk.Encoding)
			assert.Equal(t, arr.Len(), chunk.NumValues)
			assert.Equal(t, arr.NullN(), chunk.NullCount)

			back, err := Decode(chunk.Data, chunk.Encoding, col, chunk.NumValues, mem)
			require.NoError(t, err)
			defer back.Release()

			assert.True(t, array.Equal(arr, back), "got %v want %v", back, arr)
		})
	}
}

func TestAllNull(t *testing.T) {
	arr, col := buildColumn(t, nil, "VARCHAR", strs("<null>", "<null>"))
	defer arr.Release()

	chunk, err := Encode(arr, col.Type)
	require.NoError(t, err)
	assert.Equal(t, EncodingPlain, chunk.Encoding)
	assert.Equal(t, []byte{validityBitmap, 0}, chunk.Data)

	back, err := Decode(chunk.Data, chunk.Encoding, col, 2, nil)
	require.NoError(t, err)
	defer back.Release()
	assert.Equal(t, 2, back.NullN())
}

func TestDeltaIsCompact(t *testing.T) {
	values := make([]*string, 1000)
	for i := range values {
		s := strconv.Itoa(1_000_000 + i)
		values[i] = &s
	}
	arr, col := buildColumn(t, nil, "BIGINT", values)
	defer arr.Release()

	chunk, err := Encode(arr, col.Type)
	require.NoError(t, err)
	// first value takes 3 bytes, every delta of 1 takes one
	assert.Equal(t, 1+3+999, len(chunk.Data))
}

func TestDecodeCorrupt(t *testing.T) {
	// two distinct values out of five stay under the dictionary threshold
	arr, col := buildColumn(t, nil, "VARCHAR", strs("a", "a", "a", "a", "b"))
	defer arr.Release()
	chunk, err := Encode(arr, col.Type)
	require.NoError(t, err)
	require.Equal(t, EncodingDictionary, chunk.Encoding)
	n := arr.Len()

	intCol := schema.Column{Name: "i", TypeName: "INT", Type: schema.TypeInt32}

	tests := []struct {
		name string
		data []byte
		enc  Encoding
		col  *schema.Column
		n    int
	}{
		{"empty", nil, chunk.Encoding, col, n},
		{"truncated", chunk.Data[:len(chunk.Data)-1], chunk.Encoding, col, n},
		{"trailing", append(append([]byte{}, chunk.Data...), 0), chunk.Encoding, col, n},
		{"bad validity", append([]byte{7}, chunk.Data[1:]...), chunk.Encoding, col, n},
		{"wrong encoding", chunk.Data, EncodingBitpack, col, n},
		{"incompatible type", chunk.Data, chunk.Encoding, &intCol, n},
		{"bad code", []byte{validityAll, 1, 1, 'a', 5}, EncodingDictionary, col, 1},
		{"huge string", []byte{validityAll, 0xff, 0xff, 0x03}, EncodingPlain, col, 1},
		{"short floats", []byte{validityAll, 1, 2, 3}, EncodingRaw, &schema.Column{Type: schema.TypeFloat64}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data, tt.enc, tt.col, tt.n, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCorrupt))
		})
	}
}

func TestEncodingText(t *testing.T) {
	for _, enc := range []Encoding{EncodingDeltaVarint, EncodingPlain, EncodingDictionary, EncodingBitpack, EncodingRaw} {
		text, err := enc.MarshalText()
		require.NoError(t, err)
		var back Encoding
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, enc, back)
	}
	var e Encoding
	assert.Error(t, e.UnmarshalText([]byte("rle")))
	_, err := EncodingInvalid.MarshalText()
	assert.Error(t, err)
	assert.Equal(t, "encoding(0)", EncodingInvalid.String())
}
