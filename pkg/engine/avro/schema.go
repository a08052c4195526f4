package avro

import (
	"strconv"

	"github.com/ajitpratap0/fls/pkg/flserrors"
	jsonpool "github.com/ajitpratap0/fls/pkg/json"
	"github.com/ajitpratap0/fls/pkg/schema"
)

// fieldName is the Avro name of column i. Column names need not be valid
// Avro names, so fields are positional; the table schema with the real
// names travels in the file metadata.
func fieldName(i int) string {
	return "c" + strconv.Itoa(i)
}

// avroType is the Avro primitive carrying values of t. Dates are days,
// timestamps microseconds and decimals unscaled integers; uint64 values
// are stored with their bit pattern in a long.
func avroType(t schema.Type) string {
	switch t {
	case schema.TypeInt8, schema.TypeInt16, schema.TypeInt32,
		schema.TypeUint8, schema.TypeUint16, schema.TypeDate:
		return "int"
	case schema.TypeInt64, schema.TypeUint32, schema.TypeUint64,
		schema.TypeTimestamp, schema.TypeDecimal:
		return "long"
	case schema.TypeFloat32:
		return "float"
	case schema.TypeFloat64:
		return "double"
	case schema.TypeBool:
		return "boolean"
	default:
		return "string"
	}
}

// recordSchema renders the Avro record schema for s. Every field is a
// ["null", T] union.
func recordSchema(s *schema.Schema) (string, error) {
	fields := make([]map[string]interface{}, s.Len())
	for i, c := range s.Columns {
		fields[i] = map[string]interface{}{
			"name":     fieldName(i),
			"type":     []interface{}{"null", avroType(c.Type)},
			"doc":      c.Name,
			"fls.type": c.TypeName,
		}
	}
	doc := map[string]interface{}{
		"type":      "record",
		"name":      "row",
		"namespace": "fls",
		"fields":    fields,
	}
	data, err := jsonpool.Marshal(doc)
	if err != nil {
		return "", flserrors.Wrap(err, flserrors.ErrorTypeInternal, "failed to render avro schema")
	}
	return string(data), nil
}
