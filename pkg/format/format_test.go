package format

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/fls/pkg/compression"
	"github.com/ajitpratap0/fls/pkg/flserrors"
	"github.com/ajitpratap0/fls/pkg/schema"
	"github.com/ajitpratap0/fls/pkg/table"
)

func buildTable(t *testing.T, rows, rowgroupSize int) *table.Table {
	t.Helper()
	s, err := schema.New(
		schema.Column{Name: "id", TypeName: "BIGINT", Nullable: true},
		schema.Column{Name: "city", TypeName: "VARCHAR", Nullable: true},
		schema.Column{Name: "ok", TypeName: "BOOLEAN", Nullable: true},
		schema.Column{Name: "price", TypeName: "DECIMAL(9,2)", Nullable: true},
	)
	require.NoError(t, err)

	cities := []string{"Amsterdam", "Berlin", "Cairo"}
	b := table.NewBuilder(s, rowgroupSize, nil)
	for i := 0; i < rows; i++ {
		require.NoError(t, b.AppendText(0, strconv.Itoa(i)))
		require.NoError(t, b.AppendText(1, cities[i%len(cities)]))
		require.NoError(t, b.AppendText(2, strconv.FormatBool(i%2 == 0)))
		if i%5 == 0 {
			require.NoError(t, b.AppendNull(3))
		} else {
			require.NoError(t, b.AppendText(3, strconv.Itoa(i)+".25"))
		}
		b.EndRow()
	}
	tbl, err := b.Finish()
	require.NoError(t, err)
	t.Cleanup(tbl.Release)
	return tbl
}

func writeArtifact(t *testing.T, tbl *table.Table, inline bool) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.fls")
	_, err := WriteFile(path, tbl, WriteOptions{InlineFooter: inline, Version: "0.0.2", Engine: "fls", Workers: 2})
	require.NoError(t, err)
	return path
}

func TestWriteRead(t *testing.T) {
	for _, inline := range []bool{true, false} {
		t.Run("inline="+strconv.FormatBool(inline), func(t *testing.T) {
			tbl := buildTable(t, 250, 100)
			path := writeArtifact(t, tbl, inline)

			_, err := os.Stat(SidecarPath(path))
			assert.Equal(t, !inline, err == nil, "sidecar presence")

			mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
			defer mem.AssertSize(t, 0)

			f, err := Open(path, ReadOptions{VerifyChecksums: true, Allocator: mem})
			require.NoError(t, err)
			defer f.Close()

			assert.Equal(t, inline, f.InlineFooter())
			assert.Equal(t, int64(250), f.NumRows())
			assert.Equal(t, 3, f.NumRowgroups())
			assert.True(t, tbl.Schema().Equal(f.Schema()))
			assert.Equal(t, "0.0.2", f.Footer().Version)
			assert.Equal(t, "zstd", f.Footer().Codec)
			assert.Greater(t, f.Footer().CompressionRatio(), 0.0)

			for i, want := range tbl.Records() {
				got, err := f.ReadRowgroup(i)
				require.NoError(t, err)
				assert.True(t, array.RecordEqual(want, got), "rowgroup %d", i)
				got.Release()
			}

			_, err = f.ReadRowgroup(3)
			assert.Error(t, err)
		})
	}
}

func TestRewriteInlineRemovesSidecar(t *testing.T) {
	tbl := buildTable(t, 10, 100)
	path := writeArtifact(t, tbl, false)
	require.FileExists(t, SidecarPath(path))

	_, err := WriteFile(path, tbl, WriteOptions{InlineFooter: true, Version: "0.0.2", Engine: "fls"})
	require.NoError(t, err)
	assert.NoFileExists(t, SidecarPath(path))

	f, err := Open(path, ReadOptions{VerifyChecksums: true})
	require.NoError(t, err)
	defer f.Close()
	assert.True(t, f.InlineFooter())
	assert.Equal(t, int64(10), f.NumRows())
}

func TestAllCodecs(t *testing.T) {
	tbl := buildTable(t, 40, 16)
	for _, algo := range compression.Algorithms() {
		t.Run(string(algo), func(t *testing.T) {
			pool, err := compression.NewCompressorPool(&compression.Config{Algorithm: algo, Level: compression.Fastest})
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), "out.fls")
			footer, err := WriteFile(path, tbl, WriteOptions{InlineFooter: true, Compressor: pool})
			require.NoError(t, err)
			assert.Equal(t, string(algo), footer.Codec)

			f, err := Open(path, ReadOptions{VerifyChecksums: true})
			require.NoError(t, err)
			defer f.Close()
			for i := 0; i < f.NumRowgroups(); i++ {
				rec, err := f.ReadRowgroup(i)
				require.NoError(t, err)
				assert.True(t, array.RecordEqual(tbl.Records()[i], rec))
				rec.Release()
			}
		})
	}
}

func TestEmptyTable(t *testing.T) {
	tbl := buildTable(t, 0, 8)
	path := writeArtifact(t, tbl, true)

	f, err := Open(path, ReadOptions{})
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, int64(0), f.NumRows())
	assert.Equal(t, 0, f.NumRowgroups())
}

func mutate(t *testing.T, path string, fn func([]byte) []byte) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, fn(data), 0o600))
}

func TestOpenErrors(t *testing.T) {
	tests := []struct {
		name   string
		inline bool
		damage func(t *testing.T, path string)
		want   flserrors.ErrorType
	}{
		{"missing", true, func(t *testing.T, path string) { require.NoError(t, os.Remove(path)) }, flserrors.ErrorTypeIO},
		{"missing sidecar", false, func(t *testing.T, path string) { require.NoError(t, os.Remove(SidecarPath(path))) }, flserrors.ErrorTypeIO},
		{"too small", true, func(t *testing.T, path string) {
			mutate(t, path, func(b []byte) []byte { return b[:10] })
		}, flserrors.ErrorTypeFormat},
		{"bad magic", true, func(t *testing.T, path string) {
			mutate(t, path, func(b []byte) []byte { b[0] = 'X'; return b })
		}, flserrors.ErrorTypeFormat},
		{"bad version", true, func(t *testing.T, path string) {
			mutate(t, path, func(b []byte) []byte { binary.LittleEndian.PutUint16(b[4:], 99); return b })
		}, flserrors.ErrorTypeFormat},
		{"bad trailer", true, func(t *testing.T, path string) {
			mutate(t, path, func(b []byte) []byte { b[len(b)-1] = 'X'; return b })
		}, flserrors.ErrorTypeFormat},
		{"truncated", true, func(t *testing.T, path string) {
			mutate(t, path, func(b []byte) []byte { return b[:len(b)-25] })
		}, flserrors.ErrorTypeFormat},
		{"footer tampered", true, func(t *testing.T, path string) {
			mutate(t, path, func(b []byte) []byte { b[len(b)-TrailerSize-2] ^= 0xff; return b })
		}, flserrors.ErrorTypeFormat},
		{"sidecar tampered", false, func(t *testing.T, path string) {
			mutate(t, SidecarPath(path), func(b []byte) []byte { return append(b, ' ') })
		}, flserrors.ErrorTypeFormat},
		{"not an artifact", true, func(t *testing.T, path string) {
			require.NoError(t, os.WriteFile(path, []byte("1|2|3\n4|5|6\n7|8|9\n10|11|12\n"), 0o600))
		}, flserrors.ErrorTypeFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeArtifact(t, buildTable(t, 20, 8), tt.inline)
			tt.damage(t, path)

			_, err := Open(path, ReadOptions{VerifyChecksums: true})
			require.Error(t, err)
			assert.Equal(t, tt.want, flserrors.TypeOf(err), err.Error())

			var fe *flserrors.Error
			require.ErrorAs(t, err, &fe)
			assert.NotEmpty(t, fe.Path)
		})
	}
}

func TestChunkChecksum(t *testing.T) {
	tbl := buildTable(t, 20, 32)
	path := writeArtifact(t, tbl, false)

	// flip a byte inside the first chunk
	mutate(t, path, func(b []byte) []byte { b[HeaderSize+1] ^= 0xff; return b })

	f, err := Open(path, ReadOptions{VerifyChecksums: true})
	require.NoError(t, err)
	defer f.Close()

	_, err = f.ReadRowgroup(0)
	require.Error(t, err)
	assert.True(t, flserrors.IsType(err, flserrors.ErrorTypeFormat))
	assert.Contains(t, err.Error(), "checksum")
}
