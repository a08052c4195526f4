package columnar

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/ajitpratap0/fls/pkg/schema"
	stringpool "github.com/ajitpratap0/fls/pkg/strings"
)

// dictionaryThreshold: dictionary encoding is chosen when distinct values
// are fewer than this fraction of the non-null values.
const dictionaryThreshold = 0.5

// Chunk is one encoded column of one rowgroup.
type Chunk struct {
	Data     []byte
	Encoding Encoding
	// NumValues counts all slots, nulls included
	NumValues int
	NullCount int
}

// Encode serializes arr, whose values are of logical type t.
func Encode(arr arrow.Array, t schema.Type) (*Chunk, error) {
	n := arr.Len()
	size := stringpool.SizeFor(n * 8)
	buf := stringpool.GetBuilder(size)
	defer stringpool.PutBuilder(buf, size)

	writeValidity(buf, arr)

	var enc Encoding
	switch t {
	case schema.TypeInt8, schema.TypeInt16, schema.TypeInt32, schema.TypeInt64,
		schema.TypeUint8, schema.TypeUint16, schema.TypeUint32, schema.TypeUint64,
		schema.TypeDate, schema.TypeTimestamp, schema.TypeDecimal:
		values, err := int64Values(arr)
		if err != nil {
			return nil, err
		}
		writeDeltas(buf, values)
		enc = EncodingDeltaVarint

	case schema.TypeFloat32, schema.TypeFloat64:
		if err := writeFloats(buf, arr); err != nil {
			return nil, err
		}
		enc = EncodingRaw

	case schema.TypeBool:
		b, ok := arr.(*array.Boolean)
		if !ok {
			return nil, fmt.Errorf("expected boolean array, got %s", arr.DataType())
		}
		writeBools(buf, b)
		enc = EncodingBitpack

	case schema.TypeString:
		s, ok := arr.(*array.String)
		if !ok {
			return nil, fmt.Errorf("expected string array, got %s", arr.DataType())
		}
		enc = writeStrings(buf, s)

	default:
		return nil, fmt.Errorf("unsupported column type %s", t)
	}

	data := make([]byte, buf.Len())
	copy(data, buf.Bytes())
	return &Chunk{
		Data:      data,
		Encoding:  enc,
		NumValues: n,
		NullCount: arr.NullN(),
	}, nil
}

func writeValidity(buf *stringpool.Builder, arr arrow.Array) {
	if arr.NullN() == 0 {
		buf.WriteByte(validityAll)
		return
	}
	buf.WriteByte(validityBitmap)
	bitmap := make([]byte, (arr.Len()+7)/8)
	for i := 0; i < arr.Len(); i++ {
		if arr.IsValid(i) {
			bitmap[i/8] |= 1 << (i % 8)
		}
	}
	buf.Write(bitmap)
}

// int64Values widens the non-null values of an integer-like array.
func int64Values(arr arrow.Array) ([]int64, error) {
	out := make([]int64, 0, arr.Len()-arr.NullN())
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			continue
		}
		switch a := arr.(type) {
		case *array.Int8:
			out = append(out, int64(a.Value(i)))
		case *array.Int16:
			out = append(out, int64(a.Value(i)))
		case *array.Int32:
			out = append(out, int64(a.Value(i)))
		case *array.Int64:
			out = append(out, a.Value(i))
		case *array.Uint8:
			out = append(out, int64(a.Value(i)))
		case *array.Uint16:
			out = append(out, int64(a.Value(i)))
		case *array.Uint32:
			out = append(out, int64(a.Value(i)))
		case *array.Uint64:
			out = append(out, int64(a.Value(i))) //nolint:gosec // G115: bit pattern preserved, reversed on decode
		case *array.Date32:
			out = append(out, int64(a.Value(i)))
		case *array.Timestamp:
			out = append(out, int64(a.Value(i)))
		case *array.Decimal128:
			out = append(out, int64(a.Value(i).LowBits())) //nolint:gosec // G115: precision <= 18 fits int64
		default:
			return nil, fmt.Errorf("unsupported integer array %s", arr.DataType())
		}
	}
	return out, nil
}

func writeDeltas(buf *stringpool.Builder, values []int64) {
	var prev int64
	for _, v := range values {
		writeVarint(buf, v-prev)
		prev = v
	}
}

// writeVarint writes a zigzag variable-length integer
func writeVarint(buf *stringpool.Builder, v int64) {
	uv := uint64(v<<1) ^ uint64(v>>63) // #nosec G115 - intentional zigzag encoding
	writeUvarint(buf, uv)
}

func writeUvarint(buf *stringpool.Builder, uv uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uv)
	buf.Write(tmp[:n])
}

func writeFloats(buf *stringpool.Builder, arr arrow.Array) error {
	var tmp [8]byte
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			continue
		}
		switch a := arr.(type) {
		case *array.Float32:
			binary.LittleEndian.PutUint32(tmp[:4], math.Float32bits(a.Value(i)))
			buf.Write(tmp[:4])
		case *array.Float64:
			binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(a.Value(i)))
			buf.Write(tmp[:])
		default:
			return fmt.Errorf("unsupported float array %s", arr.DataType())
		}
	}
	return nil
}

func writeBools(buf *stringpool.Builder, arr *array.Boolean) {
	var cur byte
	bit := 0
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			continue
		}
		if arr.Value(i) {
			cur |= 1 << bit
		}
		bit++
		if bit == 8 {
			buf.WriteByte(cur)
			cur, bit = 0, 0
		}
	}
	if bit > 0 {
		buf.WriteByte(cur)
	}
}

func writeStrings(buf *stringpool.Builder, arr *array.String) Encoding {
	valid := arr.Len() - arr.NullN()

	dict := make(map[string]uint64)
	order := make([]string, 0)
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			continue
		}
		v := arr.Value(i)
		if _, ok := dict[v]; !ok {
			dict[v] = uint64(len(order))
			order = append(order, v)
		}
	}

	if valid == 0 || float64(len(order)) >= dictionaryThreshold*float64(valid) {
		for i := 0; i < arr.Len(); i++ {
			if arr.IsNull(i) {
				continue
			}
			v := arr.Value(i)
			writeUvarint(buf, uint64(len(v)))
			buf.WriteString(v)
		}
		return EncodingPlain
	}

	writeUvarint(buf, uint64(len(order)))
	for _, v := range order {
		writeUvarint(buf, uint64(len(v)))
		buf.WriteString(v)
	}
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			continue
		}
		writeUvarint(buf, dict[arr.Value(i)])
	}
	return EncodingDictionary
}
