package parquet

import (
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/fls/pkg/compression"
	"github.com/ajitpratap0/fls/pkg/config"
	"github.com/ajitpratap0/fls/pkg/engine"
	"github.com/ajitpratap0/fls/pkg/engine/enginetest"
	"github.com/ajitpratap0/fls/pkg/engine/registry"
	"github.com/ajitpratap0/fls/pkg/testutil"
)

func TestContract(t *testing.T) {
	enginetest.Run(t, func(cfg config.EngineConfig) (engine.Engine, error) {
		return New(cfg)
	}, ".parquet")
}

func TestParquetCodec(t *testing.T) {
	tests := []struct {
		algo compression.Algorithm
		want compress.Compression
	}{
		{compression.Zstd, compress.Codecs.Zstd},
		{compression.Snappy, compress.Codecs.Snappy},
		{compression.S2, compress.Codecs.Snappy},
		{compression.Gzip, compress.Codecs.Gzip},
		{compression.Deflate, compress.Codecs.Gzip},
		{compression.LZ4, compress.Codecs.Lz4Raw},
		{compression.None, compress.Codecs.Uncompressed},
	}
	for _, tt := range tests {
		t.Run(string(tt.algo), func(t *testing.T) {
			assert.Equal(t, tt.want, parquetCodec(tt.algo))
		})
	}
}

func TestRowGroups(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.VectorsPerRowgroup = 1
	e, err := New(cfg)
	require.NoError(t, err)

	rows := make([]string, 2500)
	for i := range rows {
		rows[i] = "7|x"
	}
	tbl, err := e.IngestDirectory(testutil.CSVDir(t,
		[]testutil.Column{{Name: "n", Type: "INT"}, {Name: "s", Type: "TEXT"}}, rows...))
	require.NoError(t, err)
	defer tbl.Release()
	require.Equal(t, 3, tbl.NumRowgroups())

	path := filepath.Join(t.TempDir(), "big.parquet")
	require.NoError(t, e.WriteArtifact(tbl, path, engine.WriteOptions{}))
	a, err := e.OpenArtifact(path)
	require.NoError(t, err)
	defer a.Close()

	d := a.Describe()
	assert.Equal(t, 3, d.Rowgroups)
	assert.Equal(t, int64(2500), d.Rows)
	assert.Equal(t, "zstd", d.Codec)
	assert.Equal(t, engine.Version, d.Version)

	target := filepath.Join(t.TempDir(), "big.csv")
	require.NoError(t, e.DecodeToDirectory(a, target))
	assert.Len(t, testutil.ReadLines(t, target), 2500)
}

func TestRegistered(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.Name = Name
	eng, err := registry.Create(cfg)
	require.NoError(t, err)
	assert.Equal(t, Name, eng.Name())
}
