package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/fls/pkg/flserrors"
)

func TestLookupType(t *testing.T) {
	tests := []struct {
		name      string
		want      Type
		precision int
		scale     int
	}{
		{"BIGINT", TypeInt64, 0, 0},
		{"integer", TypeInt64, 0, 0},
		{"FLS_I64", TypeInt64, 0, 0},
		{"int", TypeInt32, 0, 0},
		{"MediumInt", TypeInt32, 0, 0},
		{"YEAR", TypeInt16, 0, 0},
		{"tinyint", TypeInt8, 0, 0},
		{"FLS_U08", TypeUint8, 0, 0},
		{"TINYINT UNSIGNED", TypeUint8, 0, 0},
		{"usmallint", TypeUint16, 0, 0},
		{"INT  UNSIGNED", TypeUint32, 0, 0},
		{"BIGINT UNSIGNED", TypeUint64, 0, 0},
		{"DOUBLE", TypeFloat64, 0, 0},
		{"FLOAT", TypeFloat32, 0, 0},
		{"VARCHAR", TypeString, 0, 0},
		{"varchar(255)", TypeString, 0, 0},
		{"CHAR(3)", TypeString, 0, 0},
		{"UUID", TypeString, 0, 0},
		{"JSON", TypeString, 0, 0},
		{"bit", TypeBool, 0, 0},
		{"BOOLEAN", TypeBool, 0, 0},
		{"DATE", TypeDate, 0, 0},
		{"DATETIME", TypeTimestamp, 0, 0},
		{"TIMESTAMP", TypeTimestamp, 0, 0},
		{"DECIMAL(10,2)", TypeDecimal, 10, 2},
		{"decimal( 18 , 4 )", TypeDecimal, 18, 4},
		{"DECIMAL(5)", TypeDecimal, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, p, s, err := LookupType(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.precision, p)
			assert.Equal(t, tt.scale, s)
		})
	}
}

func TestLookupTypeErrors(t *testing.T) {
	for _, name := range []string{"LIST", "STRUCT", "", "DECIMAL(19,2)", "DECIMAL(4,5)", "DECIMAL(0,0)", "VARCHAR(x)", "INT8"} {
		t.Run(name, func(t *testing.T) {
			_, _, _, err := LookupType(name)
			require.Error(t, err)
			assert.True(t, flserrors.IsType(err, flserrors.ErrorTypeSchema))
		})
	}
}

func TestParse(t *testing.T) {
	s, err := Parse([]byte(`{"columns":[
		{"name":"id","type":"BIGINT","nullable":false},
		{"name":"name","type":"VARCHAR(20)"},
		{"name":"price","type":"DECIMAL(10,2)"}
	]}`))
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"id", "name", "price"}, s.Names())
	assert.False(t, s.Columns[0].Nullable)
	assert.True(t, s.Columns[1].Nullable)
	assert.Equal(t, TypeDecimal, s.Columns[2].Type)
	assert.Equal(t, 2, s.Columns[2].Scale)
	assert.Equal(t, 2, s.Index("price"))
	assert.Equal(t, -1, s.Index("missing"))
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"not json":       `{"columns":`,
		"no columns key": `{"cols":[]}`,
		"empty columns":  `{"columns":[]}`,
		"missing type":   `{"columns":[{"name":"a"}]}`,
		"empty name":     `{"columns":[{"name":"","type":"INT"}]}`,
		"wrong kind":     `{"columns":[{"name":"a","type":5}]}`,
		"unknown type":   `{"columns":[{"name":"a","type":"BLOB"}]}`,
		"duplicate":      `{"columns":[{"name":"a","type":"INT"},{"name":"a","type":"INT"}]}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, flserrors.ErrSchema)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, FileName))
	require.Error(t, err)
	assert.True(t, flserrors.IsType(err, flserrors.ErrorTypeIO))

	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"columns":[{"name":"a","type":"BLOB"}]}`), 0o600))
	_, err = Load(path)
	require.Error(t, err)
	var fe *flserrors.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, flserrors.ErrorTypeSchema, fe.Type)
	assert.Equal(t, path, fe.Path)
}

func TestJSONRoundTrip(t *testing.T) {
	s, err := New(
		Column{Name: "a", TypeName: "FLS_I32", Nullable: true},
		Column{Name: "b", TypeName: "DECIMAL(6,3)"},
	)
	require.NoError(t, err)

	data, err := s.MarshalJSON()
	require.NoError(t, err)

	var back Schema
	require.NoError(t, back.UnmarshalJSON(data))
	assert.True(t, s.Equal(&back))
}

func TestArrowRoundTrip(t *testing.T) {
	s, err := New(
		Column{Name: "i8", TypeName: "TINYINT", Nullable: true},
		Column{Name: "u64", TypeName: "UBIGINT", Nullable: true},
		Column{Name: "f", TypeName: "FLOAT", Nullable: true},
		Column{Name: "s", TypeName: "TEXT", Nullable: true},
		Column{Name: "b", TypeName: "BOOL", Nullable: false},
		Column{Name: "d", TypeName: "DATE", Nullable: true},
		Column{Name: "ts", TypeName: "DATETIME", Nullable: true},
		Column{Name: "dec", TypeName: "DECIMAL(12,4)", Nullable: true},
	)
	require.NoError(t, err)

	as := s.ArrowSchema()
	assert.Equal(t, arrow.DECIMAL128, as.Field(7).Type.ID())

	back, err := FromArrow(as)
	require.NoError(t, err)
	assert.True(t, s.Equal(back))

	// without metadata the canonical names are used
	plain := arrow.NewSchema([]arrow.Field{
		{Name: "x", Type: arrow.PrimitiveTypes.Int32},
		{Name: "y", Type: &arrow.Decimal128Type{Precision: 9, Scale: 2}},
	}, nil)
	back, err = FromArrow(plain)
	require.NoError(t, err)
	assert.Equal(t, "INT", back.Columns[0].TypeName)
	assert.Equal(t, "DECIMAL(9,2)", back.Columns[1].TypeName)

	_, err = FromArrow(arrow.NewSchema([]arrow.Field{{Name: "l", Type: arrow.ListOf(arrow.PrimitiveTypes.Int8)}}, nil))
	require.Error(t, err)
	assert.True(t, flserrors.IsType(err, flserrors.ErrorTypeFormat))
}

func TestProject(t *testing.T) {
	s, err := New(
		Column{Name: "a", TypeName: "INT"},
		Column{Name: "b", TypeName: "INT"},
		Column{Name: "c", TypeName: "INT"},
	)
	require.NoError(t, err)

	p, err := s.Project([]int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, p.Names())

	for _, idxs := range [][]int{{}, {3}, {-1}, {1, 1}} {
		_, err := s.Project(idxs)
		assert.True(t, flserrors.IsType(err, flserrors.ErrorTypeSchema), "%v", idxs)
	}
}
