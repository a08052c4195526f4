package materialize

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/fls/pkg/flserrors"
	"github.com/ajitpratap0/fls/pkg/ingest"
	"github.com/ajitpratap0/fls/pkg/schema"
	"github.com/ajitpratap0/fls/pkg/table"
	"github.com/ajitpratap0/fls/pkg/testutil"
)

func TestTargetPath(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, filepath.Join(dir, FileName), TargetPath(dir))

	file := filepath.Join(dir, "out.csv")
	assert.Equal(t, file, TargetPath(file))
}

func TestToFileCanonical(t *testing.T) {
	tbl, err := ingest.Directory(testutil.MixedDir(t), ingest.Options{RowgroupSize: 3})
	require.NoError(t, err)
	defer tbl.Release()

	out := t.TempDir()
	target, rows, err := ToFile(out, tbl.Schema(), tbl.NewReader(), Options{Logger: testutil.TestLogger(t)})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, FileName), target)
	assert.Equal(t, int64(4), rows)
	assert.Equal(t, testutil.MixedCanonical, testutil.ReadLines(t, target))
}

func TestToFileIdempotent(t *testing.T) {
	columns := []testutil.Column{{Name: "id", Type: "BIGINT"}, {Name: "name", Type: "VARCHAR"}}
	first := materializeDir(t, testutil.CSVDir(t, columns, "1|alice|", "2|bob", "", "3|\"carol\""))
	firstData, err := os.ReadFile(first)
	require.NoError(t, err)

	second := materializeDir(t, testutil.InputDir(t, columns, "data.csv", string(firstData)))
	secondData, err := os.ReadFile(second)
	require.NoError(t, err)

	assert.Equal(t, firstData, secondData)
	assert.Equal(t, []string{"1|alice", "2|bob", "3|carol"}, testutil.ReadLines(t, second))
}

func materializeDir(t *testing.T, dir string) string {
	t.Helper()
	tbl, err := ingest.Directory(dir, ingest.Options{})
	require.NoError(t, err)
	defer tbl.Release()
	target, _, err := ToFile(filepath.Join(t.TempDir(), "out.csv"), tbl.Schema(), tbl.NewReader(), Options{})
	require.NoError(t, err)
	return target
}

func TestToFileUnwritable(t *testing.T) {
	tbl, err := ingest.Directory(testutil.SampleDir(t), ingest.Options{})
	require.NoError(t, err)
	defer tbl.Release()

	_, _, err = ToFile(filepath.Join(t.TempDir(), "missing", "out.csv"), tbl.Schema(), tbl.NewReader(), Options{})
	require.Error(t, err)
	assert.True(t, flserrors.IsType(err, flserrors.ErrorTypeIO))
}

func TestSingleEmptyString(t *testing.T) {
	s, err := schema.New(schema.Column{Name: "s", TypeName: "VARCHAR", Nullable: true})
	require.NoError(t, err)

	b := table.NewBuilder(s, 0, nil)
	for _, v := range []string{"a", "", "b"} {
		require.NoError(t, b.AppendText(0, v))
		b.EndRow()
	}
	require.NoError(t, b.AppendNull(0))
	b.EndRow()
	tbl, err := b.Finish()
	require.NoError(t, err)
	defer tbl.Release()

	var buf bytes.Buffer
	w := NewWriter(&buf, s, 0)
	n, err := w.WriteAll(tbl.NewReader())
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	assert.Equal(t, int64(4), n)
	assert.Equal(t, "a\n\"\"\nb\n\n", buf.String())
}

func TestDelimiter(t *testing.T) {
	tbl, err := ingest.Directory(testutil.CSVDir(t,
		[]testutil.Column{{Name: "a", Type: "INT"}, {Name: "b", Type: "VARCHAR"}},
		"1|x,y",
		"2|z",
	), ingest.Options{})
	require.NoError(t, err)
	defer tbl.Release()

	var buf bytes.Buffer
	w := NewWriter(&buf, tbl.Schema(), ',')
	_, err = w.WriteAll(tbl.NewReader())
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	assert.Equal(t, "1,\"x,y\"\n2,z\n", buf.String())
}

type failingReader struct{ err error }

func (f failingReader) Next() (arrow.Record, error) { return nil, f.err }

func TestWriteAllPropagatesError(t *testing.T) {
	s, err := schema.New(schema.Column{Name: "a", TypeName: "INT", Nullable: true})
	require.NoError(t, err)
	boom := errors.New("boom")
	_, err = NewWriter(&bytes.Buffer{}, s, 0).WriteAll(failingReader{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestWriteRecordColumnMismatch(t *testing.T) {
	s, err := schema.New(
		schema.Column{Name: "a", TypeName: "INT", Nullable: true},
		schema.Column{Name: "b", TypeName: "INT", Nullable: true},
	)
	require.NoError(t, err)

	one, err := schema.New(schema.Column{Name: "a", TypeName: "INT", Nullable: true})
	require.NoError(t, err)
	rb := array.NewRecordBuilder(memory.DefaultAllocator, one.ArrowSchema())
	defer rb.Release()
	rb.Field(0).(*array.Int32Builder).Append(1)
	rec := rb.NewRecord()
	defer rec.Release()

	err = NewWriter(&bytes.Buffer{}, s, 0).WriteRecord(rec)
	assert.True(t, flserrors.IsType(err, flserrors.ErrorTypeFormat))
}
