// Package testutil provides fixtures and helpers shared by fls tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// Column is a schema.json column entry.
type Column struct {
	Name string
	Type string
}

// SchemaJSON renders columns as a schema.json document.
func SchemaJSON(columns ...Column) string {
	var b strings.Builder
	b.WriteString(`{"columns":[`)
	for i, c := range columns {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(`{"name":"` + c.Name + `","type":"` + c.Type + `"}`)
	}
	b.WriteString(`]}`)
	return b.String()
}

// InputDir creates an input directory with schema.json and a data file
// named dataFile holding data. It returns the directory path.
func InputDir(t *testing.T, columns []Column, dataFile, data string) string {
	t.Helper()
	dir := t.TempDir()
	WriteFile(t, filepath.Join(dir, "schema.json"), SchemaJSON(columns...))
	WriteFile(t, filepath.Join(dir, dataFile), data)
	return dir
}

// CSVDir creates an input directory with a data.csv file.
func CSVDir(t *testing.T, columns []Column, rows ...string) string {
	t.Helper()
	return InputDir(t, columns, "data.csv", joinRows(rows))
}

// SampleDir is a three-row, two-column input directory.
func SampleDir(t *testing.T) string {
	t.Helper()
	return CSVDir(t,
		[]Column{{Name: "id", Type: "BIGINT"}, {Name: "name", Type: "VARCHAR"}},
		"1|alice",
		"2|bob",
		"3|carol",
	)
}

// MixedDir is an input directory covering every column type, including
// nulls and quoted strings.
func MixedDir(t *testing.T) string {
	t.Helper()
	return CSVDir(t,
		[]Column{
			{Name: "i8", Type: "TINYINT"},
			{Name: "u32", Type: "UINTEGER"},
			{Name: "i64", Type: "BIGINT"},
			{Name: "f", Type: "FLOAT"},
			{Name: "d", Type: "DOUBLE"},
			{Name: "s", Type: "VARCHAR(32)"},
			{Name: "b", Type: "BOOLEAN"},
			{Name: "day", Type: "DATE"},
			{Name: "ts", Type: "TIMESTAMP"},
			{Name: "amount", Type: "DECIMAL(10,2)"},
		},
		"-1|4000000000|9223372036854775807|1.5|0.1|plain|true|2024-02-29|2024-02-29T12:30:00|12.50",
		"127|0|-42|-0.25|1e+100|\"has|pipe\"|false|1970-01-01|1970-01-01T00:00:00.000001|-0.01",
		"||||||||||",
		"0|1|0|0|0|\"say \"\"hi\"\"\"|true|1999-12-31|1999-12-31T23:59:59|0.00",
	)
}

// MixedCanonical is MixedDir's data as fls prints it.
var MixedCanonical = []string{
	"-1|4000000000|9223372036854775807|1.5|0.1|plain|true|2024-02-29|2024-02-29T12:30:00|12.50",
	"127|0|-42|-0.25|1e+100|\"has|pipe\"|false|1970-01-01|1970-01-01T00:00:00.000001|-0.01",
	"|||||||||",
	"0|1|0|0|0|\"say \"\"hi\"\"\"|true|1999-12-31|1999-12-31T23:59:59|0.00",
}

// WriteFile writes content to path, failing the test on error.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// ReadLines returns the lines of a text file without the final newline.
func ReadLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func joinRows(rows []string) string {
	if len(rows) == 0 {
		return ""
	}
	return strings.Join(rows, "\n") + "\n"
}
