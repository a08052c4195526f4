package columnar

import (
	"fmt"

	"github.com/ajitpratap0/fls/pkg/schema"
)

// Encoding identifies how the values of a chunk are laid out.
type Encoding uint8

const (
	EncodingInvalid Encoding = iota
	EncodingDeltaVarint
	EncodingPlain
	EncodingDictionary
	EncodingBitpack
	EncodingRaw
)

var encodingNames = map[Encoding]string{
	EncodingDeltaVarint: "delta_varint",
	EncodingPlain:       "plain",
	EncodingDictionary:  "dictionary",
	EncodingBitpack:     "bitpack",
	EncodingRaw:         "raw",
}

func (e Encoding) String() string {
	if name, ok := encodingNames[e]; ok {
		return name
	}
	return fmt.Sprintf("encoding(%d)", uint8(e))
}

// ParseEncoding is the inverse of Encoding.String.
func ParseEncoding(name string) (Encoding, error) {
	for e, n := range encodingNames {
		if n == name {
			return e, nil
		}
	}
	return EncodingInvalid, fmt.Errorf("unknown encoding %q", name)
}

// MarshalText encodes the encoding by name, so footers stay readable.
func (e Encoding) MarshalText() ([]byte, error) {
	name, ok := encodingNames[e]
	if !ok {
		return nil, fmt.Errorf("unknown encoding %d", uint8(e))
	}
	return []byte(name), nil
}

// UnmarshalText decodes an encoding name.
func (e *Encoding) UnmarshalText(text []byte) error {
	parsed, err := ParseEncoding(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// compatible reports whether enc can hold values of type t.
func compatible(enc Encoding, t schema.Type) bool {
	switch enc {
	case EncodingDeltaVarint:
		return t.IsInteger() || t == schema.TypeDate || t == schema.TypeTimestamp || t == schema.TypeDecimal
	case EncodingPlain, EncodingDictionary:
		return t == schema.TypeString
	case EncodingBitpack:
		return t == schema.TypeBool
	case EncodingRaw:
		return t == schema.TypeFloat32 || t == schema.TypeFloat64
	}
	return false
}

const (
	validityAll    byte = 0
	validityBitmap byte = 1
)
