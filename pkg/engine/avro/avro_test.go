package avro

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/linkedin/goavro/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/fls/pkg/compression"
	"github.com/ajitpratap0/fls/pkg/config"
	"github.com/ajitpratap0/fls/pkg/engine"
	"github.com/ajitpratap0/fls/pkg/engine/enginetest"
	"github.com/ajitpratap0/fls/pkg/engine/registry"
	"github.com/ajitpratap0/fls/pkg/flserrors"
	"github.com/ajitpratap0/fls/pkg/schema"
	"github.com/ajitpratap0/fls/pkg/testutil"
)

func TestContract(t *testing.T) {
	enginetest.Run(t, func(cfg config.EngineConfig) (engine.Engine, error) {
		return New(cfg)
	}, ".avro")
}

func TestRecordSchemaCompiles(t *testing.T) {
	s, err := schema.New(
		schema.Column{Name: "odd name!", TypeName: "BIGINT", Nullable: true},
		schema.Column{Name: "when", TypeName: "TIMESTAMP", Nullable: true},
		schema.Column{Name: "price", TypeName: "DECIMAL(9,3)", Nullable: true},
		schema.Column{Name: "u", TypeName: "UBIGINT", Nullable: true},
	)
	require.NoError(t, err)

	doc, err := recordSchema(s)
	require.NoError(t, err)
	codec, err := goavro.NewCodec(doc)
	require.NoError(t, err)
	assert.True(t, strings.Contains(codec.Schema(), `"c0"`))

	native := map[string]interface{}{
		"c0": goavro.Union("long", int64(5)),
		"c1": nil,
		"c2": goavro.Union("long", int64(1234)),
		"c3": goavro.Union("long", int64(-1)),
	}
	bin, err := codec.BinaryFromNative(nil, native)
	require.NoError(t, err)
	_, _, err = codec.NativeFromBinary(bin)
	require.NoError(t, err)
}

func TestUnsignedExtremes(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.Compression = "snappy"
	e, err := New(cfg)
	require.NoError(t, err)

	tbl, err := e.IngestDirectory(testutil.CSVDir(t,
		[]testutil.Column{{Name: "u", Type: "UBIGINT"}, {Name: "i", Type: "TINYINT"}},
		"18446744073709551615|-128",
		"0|127",
		"|"))
	require.NoError(t, err)
	defer tbl.Release()

	path := filepath.Join(t.TempDir(), "u.avro")
	require.NoError(t, e.WriteArtifact(tbl, path, engine.WriteOptions{}))
	a, err := e.OpenArtifact(path)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, "snappy", a.Describe().Codec)
	assert.Equal(t, 1, a.Describe().Rowgroups)

	target := filepath.Join(t.TempDir(), "u.csv")
	require.NoError(t, e.DecodeToDirectory(a, target))
	assert.Equal(t, []string{"18446744073709551615|-128", "0|127", "|"}, testutil.ReadLines(t, target))
}

func TestForeignAvroFile(t *testing.T) {
	// an OCF file without fls metadata
	codec, err := goavro.NewCodec(`{"type":"record","name":"r","fields":[{"name":"a","type":"long"}]}`)
	require.NoError(t, err)
	var buf strings.Builder
	w, err := goavro.NewOCFWriter(goavro.OCFConfig{W: &buf, Codec: codec})
	require.NoError(t, err)
	require.NoError(t, w.Append([]interface{}{map[string]interface{}{"a": int64(1)}}))
	path := filepath.Join(t.TempDir(), "plain.avro")
	testutil.WriteFile(t, path, buf.String())

	e, err := New(config.DefaultEngineConfig())
	require.NoError(t, err)
	_, err = e.OpenArtifact(path)
	require.Error(t, err)
	assert.True(t, flserrors.IsType(err, flserrors.ErrorTypeFormat))
}

func TestOCFCodec(t *testing.T) {
	assert.Equal(t, goavro.CompressionNullLabel, ocfCodec(compression.None))
	assert.Equal(t, goavro.CompressionSnappyLabel, ocfCodec(compression.Snappy))
	assert.Equal(t, goavro.CompressionSnappyLabel, ocfCodec(compression.S2))
	assert.Equal(t, goavro.CompressionDeflateLabel, ocfCodec(compression.Zstd))
	assert.Equal(t, goavro.CompressionDeflateLabel, ocfCodec(compression.Gzip))
}

func TestRegistered(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.Name = Name
	eng, err := registry.Create(cfg)
	require.NoError(t, err)
	assert.Equal(t, Name, eng.Name())
}
