package columnar

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/fls/pkg/schema"
)

// ErrCorrupt is returned, wrapped, for chunks that cannot be decoded.
var ErrCorrupt = errors.New("corrupt chunk")

func corrupt(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}

type chunkReader struct {
	data []byte
	pos  int
}

func (r *chunkReader) readByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, corrupt("unexpected end of chunk at %d", r.pos)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *chunkReader) bytes(n int) ([]byte, error) {
	if n < 0 || n > len(r.data)-r.pos {
		return nil, corrupt("need %d bytes at %d, chunk has %d", n, r.pos, len(r.data))
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *chunkReader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.data[r.pos:])
	if n <= 0 {
		return 0, corrupt("bad varint at %d", r.pos)
	}
	r.pos += n
	return v, nil
}

func (r *chunkReader) varint() (int64, error) {
	uv, err := r.uvarint()
	if err != nil {
		return 0, err
	}
	return int64(uv>>1) ^ -int64(uv&1), nil //nolint:gosec // G115: zigzag decoding
}

// Decode rebuilds an array of n values of column c from chunk data.
func Decode(data []byte, enc Encoding, c *schema.Column, n int, mem memory.Allocator) (arrow.Array, error) {
	if !compatible(enc, c.Type) {
		return nil, corrupt("encoding %s cannot hold %s values", enc, c.Type)
	}
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	r := &chunkReader{data: data}

	valid, err := readValidity(r, n)
	if err != nil {
		return nil, err
	}

	b := array.NewBuilder(mem, c.ArrowType())
	defer b.Release()
	b.Reserve(n)

	switch enc {
	case EncodingDeltaVarint:
		err = decodeDeltas(r, b, valid, n)
	case EncodingRaw:
		err = decodeFloats(r, b, valid, n)
	case EncodingBitpack:
		err = decodeBools(r, b.(*array.BooleanBuilder), valid, n)
	case EncodingPlain:
		err = decodePlain(r, b.(*array.StringBuilder), valid, n)
	case EncodingDictionary:
		err = decodeDictionary(r, b.(*array.StringBuilder), valid, n)
	}
	if err != nil {
		return nil, err
	}
	if r.pos != len(r.data) {
		return nil, corrupt("%d trailing bytes", len(r.data)-r.pos)
	}
	return b.NewArray(), nil
}

// readValidity returns nil when every slot is valid.
func readValidity(r *chunkReader, n int) ([]byte, error) {
	marker, err := r.readByte()
	if err != nil {
		return nil, err
	}
	switch marker {
	case validityAll:
		return nil, nil
	case validityBitmap:
		return r.bytes((n + 7) / 8)
	default:
		return nil, corrupt("unknown validity marker %#x", marker)
	}
}

func isValid(bitmap []byte, i int) bool {
	return bitmap == nil || bitmap[i/8]&(1<<(i%8)) != 0
}

func decodeDeltas(r *chunkReader, b array.Builder, valid []byte, n int) error {
	var prev int64
	for i := 0; i < n; i++ {
		if !isValid(valid, i) {
			b.AppendNull()
			continue
		}
		d, err := r.varint()
		if err != nil {
			return err
		}
		prev += d
		switch x := b.(type) {
		case *array.Int8Builder:
			x.Append(int8(prev))
		case *array.Int16Builder:
			x.Append(int16(prev))
		case *array.Int32Builder:
			x.Append(int32(prev))
		case *array.Int64Builder:
			x.Append(prev)
		case *array.Uint8Builder:
			x.Append(uint8(prev))
		case *array.Uint16Builder:
			x.Append(uint16(prev))
		case *array.Uint32Builder:
			x.Append(uint32(prev))
		case *array.Uint64Builder:
			x.Append(uint64(prev)) //nolint:gosec // G115: reverses the encode-side cast
		case *array.Date32Builder:
			x.Append(arrow.Date32(prev))
		case *array.TimestampBuilder:
			x.Append(arrow.Timestamp(prev))
		case *array.Decimal128Builder:
			x.Append(decimal128.FromI64(prev))
		default:
			return corrupt("delta values for %s", b.Type())
		}
	}
	return nil
}

func decodeFloats(r *chunkReader, b array.Builder, valid []byte, n int) error {
	for i := 0; i < n; i++ {
		if !isValid(valid, i) {
			b.AppendNull()
			continue
		}
		switch x := b.(type) {
		case *array.Float32Builder:
			raw, err := r.bytes(4)
			if err != nil {
				return err
			}
			x.Append(math.Float32frombits(binary.LittleEndian.Uint32(raw)))
		case *array.Float64Builder:
			raw, err := r.bytes(8)
			if err != nil {
				return err
			}
			x.Append(math.Float64frombits(binary.LittleEndian.Uint64(raw)))
		default:
			return corrupt("raw values for %s", b.Type())
		}
	}
	return nil
}

func decodeBools(r *chunkReader, b *array.BooleanBuilder, valid []byte, n int) error {
	count := 0
	for i := 0; i < n; i++ {
		if isValid(valid, i) {
			count++
		}
	}
	packed, err := r.bytes((count + 7) / 8)
	if err != nil {
		return err
	}
	bit := 0
	for i := 0; i < n; i++ {
		if !isValid(valid, i) {
			b.AppendNull()
			continue
		}
		b.Append(packed[bit/8]&(1<<(bit%8)) != 0)
		bit++
	}
	return nil
}

func (r *chunkReader) str() (string, error) {
	l, err := r.uvarint()
	if err != nil {
		return "", err
	}
	if l > uint64(len(r.data)) {
		return "", corrupt("string length %d exceeds chunk", l)
	}
	raw, err := r.bytes(int(l))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodePlain(r *chunkReader, b *array.StringBuilder, valid []byte, n int) error {
	for i := 0; i < n; i++ {
		if !isValid(valid, i) {
			b.AppendNull()
			continue
		}
		s, err := r.str()
		if err != nil {
			return err
		}
		b.Append(s)
	}
	return nil
}

func decodeDictionary(r *chunkReader, b *array.StringBuilder, valid []byte, n int) error {
	size, err := r.uvarint()
	if err != nil {
		return err
	}
	if size > uint64(len(r.data)) {
		return corrupt("dictionary size %d exceeds chunk", size)
	}
	dict := make([]string, size)
	for i := range dict {
		if dict[i], err = r.str(); err != nil {
			return err
		}
	}
	for i := 0; i < n; i++ {
		if !isValid(valid, i) {
			b.AppendNull()
			continue
		}
		code, err := r.uvarint()
		if err != nil {
			return err
		}
		if code >= uint64(len(dict)) {
			return corrupt("dictionary code %d out of range %d", code, len(dict))
		}
		b.Append(dict[code])
	}
	return nil
}
