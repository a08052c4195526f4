// Package schema describes the columns of an fls table: the schema.json
// document found in an input directory, the logical column types it names,
// and the text forms values of those types are parsed from and printed as.
package schema

import (
	"os"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/xeipuuv/gojsonschema"

	"github.com/ajitpratap0/fls/pkg/flserrors"
	jsonpool "github.com/ajitpratap0/fls/pkg/json"
)

// FileName is the name of the schema document inside an input directory.
const FileName = "schema.json"

// TypeMetadataKey carries the declared type name on arrow fields so that
// engines storing arrow schemas give back the exact spelling.
const TypeMetadataKey = "fls.type"

// documentSchema validates schema.json before it is decoded.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["columns"],
  "properties": {
    "columns": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "type"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "type": {"type": "string", "minLength": 1},
          "nullable": {"type": "boolean"}
        }
      }
    }
  }
}`

var documentLoader = gojsonschema.NewStringLoader(documentSchema)

// Column is one column of a table.
type Column struct {
	Name string
	// TypeName is the type as written in schema.json
	TypeName string
	Type     Type
	// Nullable columns accept empty (non-string) and null values
	Nullable  bool
	Precision int
	Scale     int
}

// Schema is the ordered list of columns of a table.
type Schema struct {
	Columns []Column
}

type document struct {
	Columns []columnDocument `json:"columns"`
}

type columnDocument struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable *bool  `json:"nullable,omitempty"`
}

// New builds a schema from columns, resolving each TypeName.
func New(columns ...Column) (*Schema, error) {
	s := &Schema{Columns: make([]Column, len(columns))}
	seen := make(map[string]struct{}, len(columns))
	for i, c := range columns {
		if strings.TrimSpace(c.Name) == "" {
			return nil, flserrors.Newf(flserrors.ErrorTypeSchema, "column %d has no name", i)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, flserrors.Newf(flserrors.ErrorTypeSchema, "duplicate column %q", c.Name)
		}
		seen[c.Name] = struct{}{}

		t, p, sc, err := LookupType(c.TypeName)
		if err != nil {
			return nil, err
		}
		c.Type, c.Precision, c.Scale = t, p, sc
		s.Columns[i] = c
	}
	if len(s.Columns) == 0 {
		return nil, flserrors.New(flserrors.ErrorTypeSchema, "schema has no columns")
	}
	return s, nil
}

// Parse validates and decodes a schema.json document.
func Parse(data []byte) (*Schema, error) {
	if !jsonpool.Valid(data) {
		return nil, flserrors.New(flserrors.ErrorTypeSchema, "schema is not valid JSON")
	}
	result, err := gojsonschema.Validate(documentLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeSchema, "schema validation error")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, flserrors.New(flserrors.ErrorTypeSchema, "invalid schema: "+strings.Join(msgs, "; "))
	}

	var doc document
	if err := jsonpool.Unmarshal(data, &doc); err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeSchema, "failed to decode schema")
	}

	columns := make([]Column, len(doc.Columns))
	for i, c := range doc.Columns {
		columns[i] = Column{Name: c.Name, TypeName: c.Type, Nullable: true}
		if c.Nullable != nil {
			columns[i].Nullable = *c.Nullable
		}
	}
	return New(columns...)
}

// Load reads and parses a schema.json file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: input path chosen by the caller
	if err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to read schema").WithOp("load schema", path)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, flserrors.Annotate(err, "load schema", path)
	}
	return s, nil
}

// MarshalJSON encodes the schema in schema.json form.
func (s *Schema) MarshalJSON() ([]byte, error) {
	doc := document{Columns: make([]columnDocument, len(s.Columns))}
	for i, c := range s.Columns {
		nullable := c.Nullable
		doc.Columns[i] = columnDocument{Name: c.Name, Type: c.TypeName, Nullable: &nullable}
	}
	return jsonpool.Marshal(doc)
}

// UnmarshalJSON decodes and resolves a schema.json document.
func (s *Schema) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}

// Len returns the number of columns.
func (s *Schema) Len() int { return len(s.Columns) }

// Names returns the column names in order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the named column or -1.
func (s *Schema) Index(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Project returns a schema containing the columns at idxs, in that order.
// Out-of-range or repeated indexes are a schema error.
func (s *Schema) Project(idxs []int) (*Schema, error) {
	if len(idxs) == 0 {
		return nil, flserrors.New(flserrors.ErrorTypeSchema, "projection selects no columns")
	}
	seen := make(map[int]struct{}, len(idxs))
	out := &Schema{Columns: make([]Column, 0, len(idxs))}
	for _, i := range idxs {
		if i < 0 || i >= len(s.Columns) {
			return nil, flserrors.Newf(flserrors.ErrorTypeSchema, "column index %d out of range [0, %d)", i, len(s.Columns))
		}
		if _, dup := seen[i]; dup {
			return nil, flserrors.Newf(flserrors.ErrorTypeSchema, "column index %d selected twice", i)
		}
		seen[i] = struct{}{}
		out.Columns = append(out.Columns, s.Columns[i])
	}
	return out, nil
}

// Equal reports whether both schemas have the same columns.
func (s *Schema) Equal(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.Columns) != len(o.Columns) {
		return false
	}
	for i := range s.Columns {
		if s.Columns[i] != o.Columns[i] {
			return false
		}
	}
	return true
}

// ArrowSchema returns the arrow schema of the table. Every field is
// nullable at the arrow level; TypeMetadataKey holds the declared name.
func (s *Schema) ArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, len(s.Columns))
	for i := range s.Columns {
		c := &s.Columns[i]
		fields[i] = arrow.Field{
			Name:     c.Name,
			Type:     c.ArrowType(),
			Nullable: true,
			Metadata: arrow.NewMetadata(
				[]string{TypeMetadataKey, "fls.nullable"},
				[]string{c.TypeName, boolString(c.Nullable)},
			),
		}
	}
	return arrow.NewSchema(fields, nil)
}

// FromArrow rebuilds a schema from an arrow schema written by ArrowSchema
// or by another producer using the same physical types. Types fls cannot
// represent are a format error.
func FromArrow(as *arrow.Schema) (*Schema, error) {
	columns := make([]Column, as.NumFields())
	for i, f := range as.Fields() {
		t, p, sc, ok := typeFromArrow(f.Type)
		if !ok {
			return nil, flserrors.Newf(flserrors.ErrorTypeFormat, "column %q has unsupported type %s", f.Name, f.Type)
		}
		c := Column{Name: f.Name, Type: t, Precision: p, Scale: sc, Nullable: true}
		c.TypeName = canonicalName(c)
		if v, ok := metadataValue(f.Metadata, TypeMetadataKey); ok {
			if lt, lp, ls, err := LookupType(v); err == nil && lt == t && lp == p && ls == sc {
				c.TypeName = v
			}
		}
		if v, ok := metadataValue(f.Metadata, "fls.nullable"); ok {
			c.Nullable = v != "false"
		}
		columns[i] = c
	}
	s, err := New(columns...)
	if err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeFormat, "invalid stored schema")
	}
	return s, nil
}

func metadataValue(md arrow.Metadata, key string) (string, bool) {
	i := md.FindKey(key)
	if i < 0 {
		return "", false
	}
	return md.Values()[i], true
}

// canonicalName is the type name used when none was recorded.
func canonicalName(c Column) string {
	switch c.Type {
	case TypeInt8:
		return "TINYINT"
	case TypeInt16:
		return "SMALLINT"
	case TypeInt32:
		return "INT"
	case TypeInt64:
		return "BIGINT"
	case TypeUint8:
		return "UTINYINT"
	case TypeUint16:
		return "USMALLINT"
	case TypeUint32:
		return "UINTEGER"
	case TypeUint64:
		return "UBIGINT"
	case TypeFloat32:
		return "FLOAT"
	case TypeFloat64:
		return "DOUBLE"
	case TypeString:
		return "VARCHAR"
	case TypeBool:
		return "BOOLEAN"
	case TypeDate:
		return "DATE"
	case TypeTimestamp:
		return "TIMESTAMP"
	case TypeDecimal:
		return "DECIMAL(" + strconv.Itoa(c.Precision) + "," + strconv.Itoa(c.Scale) + ")"
	}
	return ""
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
