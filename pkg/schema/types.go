package schema

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/ajitpratap0/fls/pkg/flserrors"
)

// Type is the logical type of a column.
type Type int

const (
	TypeInvalid Type = iota
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeString
	TypeBool
	TypeDate
	TypeTimestamp
	TypeDecimal
)

// MaxDecimalPrecision is the widest decimal that fits a scaled int64.
const MaxDecimalPrecision = 18

var typeNames = [...]string{
	TypeInvalid:   "invalid",
	TypeInt8:      "int8",
	TypeInt16:     "int16",
	TypeInt32:     "int32",
	TypeInt64:     "int64",
	TypeUint8:     "uint8",
	TypeUint16:    "uint16",
	TypeUint32:    "uint32",
	TypeUint64:    "uint64",
	TypeFloat32:   "float32",
	TypeFloat64:   "float64",
	TypeString:    "string",
	TypeBool:      "bool",
	TypeDate:      "date",
	TypeTimestamp: "timestamp",
	TypeDecimal:   "decimal",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "type(" + strconv.Itoa(int(t)) + ")"
	}
	return typeNames[t]
}

// IsInteger reports whether t is a signed or unsigned integer type.
func (t Type) IsInteger() bool {
	return t >= TypeInt8 && t <= TypeUint64
}

// IsUnsigned reports whether t is an unsigned integer type.
func (t Type) IsUnsigned() bool {
	return t >= TypeUint8 && t <= TypeUint64
}

// BitSize returns the width of integer and float types, 0 otherwise.
func (t Type) BitSize() int {
	switch t {
	case TypeInt8, TypeUint8:
		return 8
	case TypeInt16, TypeUint16:
		return 16
	case TypeInt32, TypeUint32, TypeFloat32:
		return 32
	case TypeInt64, TypeUint64, TypeFloat64:
		return 64
	}
	return 0
}

// typeTable maps normalized SQL-ish type names to logical types.
var typeTable = map[string]Type{
	"FLS_I64": TypeInt64,
	"BIGINT":  TypeInt64,
	"INTEGER": TypeInt64,

	"FLS_I32":   TypeInt32,
	"INT":       TypeInt32,
	"MEDIUMINT": TypeInt32,

	"FLS_I16":  TypeInt16,
	"SMALLINT": TypeInt16,
	"YEAR":     TypeInt16,

	"FLS_I08": TypeInt8,
	"TINYINT": TypeInt8,

	"FLS_U08":          TypeUint8,
	"UTINYINT":         TypeUint8,
	"UINT8":            TypeUint8,
	"TINYINT UNSIGNED": TypeUint8,

	"USMALLINT":         TypeUint16,
	"UINT16":            TypeUint16,
	"SMALLINT UNSIGNED": TypeUint16,

	"UINTEGER":           TypeUint32,
	"UINT32":             TypeUint32,
	"INT UNSIGNED":       TypeUint32,
	"MEDIUMINT UNSIGNED": TypeUint32,

	"UBIGINT":         TypeUint64,
	"UINT64":          TypeUint64,
	"BIGINT UNSIGNED": TypeUint64,

	"FLS_DBL": TypeFloat64,
	"DOUBLE":  TypeFloat64,
	"FLOAT":   TypeFloat32,

	"FLS_STR":  TypeString,
	"STRING":   TypeString,
	"VARCHAR":  TypeString,
	"CHAR":     TypeString,
	"TEXT":     TypeString,
	"TIME":     TypeString,
	"JSON":     TypeString,
	"ENUM":     TypeString,
	"SET":      TypeString,
	"UUID":     TypeString,
	"INTERVAL": TypeString,

	"BOOLEAN": TypeBool,
	"BOOL":    TypeBool,
	"BIT":     TypeBool,

	"DATE":      TypeDate,
	"TIMESTAMP": TypeTimestamp,
	"DATETIME":  TypeTimestamp,
}

var (
	decimalPattern = regexp.MustCompile(`^DECIMAL\s*\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\)$`)
	sizedPattern   = regexp.MustCompile(`^(VARCHAR|CHAR)\s*\(\s*\d+\s*\)$`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

// LookupType resolves a type name from schema.json. Names are
// case-insensitive and runs of whitespace are collapsed. For decimals the
// precision and scale are returned as well.
func LookupType(name string) (t Type, precision, scale int, err error) {
	s := strings.ToUpper(strings.TrimSpace(name))
	s = spacePattern.ReplaceAllString(s, " ")

	if m := decimalPattern.FindStringSubmatch(s); m != nil {
		precision, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			scale, _ = strconv.Atoi(m[2])
		}
		if precision < 1 || precision > MaxDecimalPrecision {
			return TypeInvalid, 0, 0, flserrors.Newf(flserrors.ErrorTypeSchema,
				"decimal precision %d outside [1, %d] in %q", precision, MaxDecimalPrecision, name)
		}
		if scale > precision {
			return TypeInvalid, 0, 0, flserrors.Newf(flserrors.ErrorTypeSchema,
				"decimal scale %d exceeds precision %d in %q", scale, precision, name)
		}
		return TypeDecimal, precision, scale, nil
	}
	if sizedPattern.MatchString(s) {
		return TypeString, 0, 0, nil
	}
	if t, ok := typeTable[s]; ok {
		return t, 0, 0, nil
	}
	return TypeInvalid, 0, 0, flserrors.Newf(flserrors.ErrorTypeSchema, "unknown type %q", name)
}

// ArrowType returns the arrow data type that holds values of the column.
func (c *Column) ArrowType() arrow.DataType {
	switch c.Type {
	case TypeInt8:
		return arrow.PrimitiveTypes.Int8
	case TypeInt16:
		return arrow.PrimitiveTypes.Int16
	case TypeInt32:
		return arrow.PrimitiveTypes.Int32
	case TypeInt64:
		return arrow.PrimitiveTypes.Int64
	case TypeUint8:
		return arrow.PrimitiveTypes.Uint8
	case TypeUint16:
		return arrow.PrimitiveTypes.Uint16
	case TypeUint32:
		return arrow.PrimitiveTypes.Uint32
	case TypeUint64:
		return arrow.PrimitiveTypes.Uint64
	case TypeFloat32:
		return arrow.PrimitiveTypes.Float32
	case TypeFloat64:
		return arrow.PrimitiveTypes.Float64
	case TypeString:
		return arrow.BinaryTypes.String
	case TypeBool:
		return arrow.FixedWidthTypes.Boolean
	case TypeDate:
		return arrow.FixedWidthTypes.Date32
	case TypeTimestamp:
		return &arrow.TimestampType{Unit: arrow.Microsecond}
	case TypeDecimal:
		return &arrow.Decimal128Type{Precision: int32(c.Precision), Scale: int32(c.Scale)}
	}
	return arrow.Null
}

// typeFromArrow is the inverse of ArrowType.
func typeFromArrow(dt arrow.DataType) (t Type, precision, scale int, ok bool) {
	switch dt.ID() {
	case arrow.INT8:
		return TypeInt8, 0, 0, true
	case arrow.INT16:
		return TypeInt16, 0, 0, true
	case arrow.INT32:
		return TypeInt32, 0, 0, true
	case arrow.INT64:
		return TypeInt64, 0, 0, true
	case arrow.UINT8:
		return TypeUint8, 0, 0, true
	case arrow.UINT16:
		return TypeUint16, 0, 0, true
	case arrow.UINT32:
		return TypeUint32, 0, 0, true
	case arrow.UINT64:
		return TypeUint64, 0, 0, true
	case arrow.FLOAT32:
		return TypeFloat32, 0, 0, true
	case arrow.FLOAT64:
		return TypeFloat64, 0, 0, true
	case arrow.STRING, arrow.LARGE_STRING:
		return TypeString, 0, 0, true
	case arrow.BOOL:
		return TypeBool, 0, 0, true
	case arrow.DATE32:
		return TypeDate, 0, 0, true
	case arrow.TIMESTAMP:
		if dt.(*arrow.TimestampType).Unit == arrow.Microsecond {
			return TypeTimestamp, 0, 0, true
		}
	case arrow.DECIMAL128:
		d := dt.(*arrow.Decimal128Type)
		if d.Precision <= MaxDecimalPrecision {
			return TypeDecimal, int(d.Precision), int(d.Scale), true
		}
	}
	return TypeInvalid, 0, 0, false
}
