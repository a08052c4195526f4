// Package enginetest checks that an engine.Engine honors the engine
// contract. Engine packages call Run from their tests.
package enginetest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/fls/pkg/config"
	"github.com/ajitpratap0/fls/pkg/engine"
	"github.com/ajitpratap0/fls/pkg/flserrors"
	"github.com/ajitpratap0/fls/pkg/materialize"
	"github.com/ajitpratap0/fls/pkg/schema"
	"github.com/ajitpratap0/fls/pkg/testutil"
)

// Factory builds the engine under test from cfg.
type Factory func(cfg config.EngineConfig) (engine.Engine, error)

// Run executes the contract tests against the engine built by factory.
// ext is the artifact file extension, e.g. ".parquet".
func Run(t *testing.T, factory Factory, ext string) {
	newEngine := func(t *testing.T, mutate func(*config.EngineConfig)) engine.Engine {
		t.Helper()
		cfg := config.DefaultEngineConfig()
		if mutate != nil {
			mutate(&cfg)
		}
		e, err := factory(cfg)
		require.NoError(t, err)
		return e
	}

	t.Run("Version", func(t *testing.T) {
		e := newEngine(t, nil)
		assert.Regexp(t, `^\d+\.\d+\.\d+$`, e.Version())
		assert.NotEmpty(t, e.Name())
	})

	t.Run("RoundTrip", func(t *testing.T) {
		for _, inline := range []bool{false, true} {
			e := newEngine(t, func(c *config.EngineConfig) { c.VectorsPerRowgroup = 1 })
			tbl, err := e.IngestDirectory(testutil.MixedDir(t))
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), "mixed"+ext)
			require.NoError(t, e.WriteArtifact(tbl, path, engine.WriteOptions{InlineFooter: inline}))

			a, err := e.OpenArtifact(path)
			require.NoError(t, err)
			assert.Equal(t, path, a.Path())
			assert.Equal(t, tbl.NumRows(), a.NumRows())
			assert.True(t, a.Schema().Equal(tbl.Schema()), "schema changed: %v", a.Schema().Names())
			tbl.Release()

			out := t.TempDir()
			require.NoError(t, e.DecodeToDirectory(a, out))
			assert.Equal(t, testutil.MixedCanonical, testutil.ReadLines(t, filepath.Join(out, materialize.FileName)))
			require.NoError(t, a.Close())
		}
	})

	t.Run("DecodeToFile", func(t *testing.T) {
		e := newEngine(t, nil)
		path := writeSample(t, e, ext)
		a, err := e.OpenArtifact(path)
		require.NoError(t, err)
		defer a.Close()

		target := filepath.Join(t.TempDir(), "rows.csv")
		require.NoError(t, e.DecodeToDirectory(a, target))
		assert.Equal(t, []string{"1|alice", "2|bob", "3|carol"}, testutil.ReadLines(t, target))
	})

	t.Run("EmptyTable", func(t *testing.T) {
		e := newEngine(t, nil)
		tbl, err := e.IngestDirectory(testutil.CSVDir(t, []testutil.Column{{Name: "a", Type: "INT"}}))
		require.NoError(t, err)
		defer tbl.Release()

		path := filepath.Join(t.TempDir(), "empty"+ext)
		require.NoError(t, e.WriteArtifact(tbl, path, engine.WriteOptions{}))
		a, err := e.OpenArtifact(path)
		require.NoError(t, err)
		defer a.Close()
		assert.Equal(t, int64(0), a.NumRows())

		target := filepath.Join(t.TempDir(), "empty.csv")
		require.NoError(t, e.DecodeToDirectory(a, target))
		assert.Empty(t, testutil.ReadLines(t, target))
	})

	t.Run("Describe", func(t *testing.T) {
		e := newEngine(t, nil)
		path := writeSample(t, e, ext)
		a, err := e.OpenArtifact(path)
		require.NoError(t, err)
		defer a.Close()

		d := a.Describe()
		assert.Equal(t, e.Name(), d.Engine)
		assert.Equal(t, path, d.Path)
		assert.Equal(t, int64(3), d.Rows)
		assert.Positive(t, d.FileBytes)
		require.Len(t, d.Columns, 2)
		assert.Equal(t, "id", d.Columns[0].Name)
		assert.Equal(t, "BIGINT", d.Columns[0].Type)
	})

	t.Run("OpenMissing", func(t *testing.T) {
		_, err := newEngine(t, nil).OpenArtifact(filepath.Join(t.TempDir(), "missing"+ext))
		require.Error(t, err)
		assert.True(t, flserrors.IsType(err, flserrors.ErrorTypeIO), err.Error())
	})

	t.Run("OpenGarbage", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "garbage"+ext)
		testutil.WriteFile(t, path, "definitely not a columnar artifact, only some plain text bytes\n")
		_, err := newEngine(t, nil).OpenArtifact(path)
		require.Error(t, err)
		assert.True(t, flserrors.IsType(err, flserrors.ErrorTypeFormat), err.Error())
	})

	t.Run("WriteUnwritable", func(t *testing.T) {
		e := newEngine(t, nil)
		tbl, err := e.IngestDirectory(testutil.SampleDir(t))
		require.NoError(t, err)
		defer tbl.Release()

		err = e.WriteArtifact(tbl, filepath.Join(t.TempDir(), "no", "dir"+ext), engine.WriteOptions{})
		require.Error(t, err)
		assert.True(t, flserrors.IsType(err, flserrors.ErrorTypeIO), err.Error())
	})

	t.Run("ForeignArtifact", func(t *testing.T) {
		err := newEngine(t, nil).DecodeToDirectory(foreign{}, t.TempDir())
		require.Error(t, err)
		assert.True(t, flserrors.IsType(err, flserrors.ErrorTypeValidation))
	})

	t.Run("Delimiter", func(t *testing.T) {
		e := newEngine(t, func(c *config.EngineConfig) { c.Delimiter = "," })
		tbl, err := e.IngestDirectory(testutil.CSVDir(t,
			[]testutil.Column{{Name: "a", Type: "INT"}, {Name: "b", Type: "TEXT"}},
			`1,"x,y"`, "2,z"))
		require.NoError(t, err)
		defer tbl.Release()

		path := filepath.Join(t.TempDir(), "comma"+ext)
		require.NoError(t, e.WriteArtifact(tbl, path, engine.WriteOptions{}))
		a, err := e.OpenArtifact(path)
		require.NoError(t, err)
		defer a.Close()

		target := filepath.Join(t.TempDir(), "comma.csv")
		require.NoError(t, e.DecodeToDirectory(a, target))
		data, err := os.ReadFile(target)
		require.NoError(t, err)
		assert.Equal(t, "1,\"x,y\"\n2,z\n", string(data))
	})
}

func writeSample(t *testing.T, e engine.Engine, ext string) string {
	t.Helper()
	tbl, err := e.IngestDirectory(testutil.SampleDir(t))
	require.NoError(t, err)
	defer tbl.Release()

	path := filepath.Join(t.TempDir(), "sample"+ext)
	require.NoError(t, e.WriteArtifact(tbl, path, engine.WriteOptions{}))
	return path
}

type foreign struct{}

func (foreign) Path() string           { return "/elsewhere" }
func (foreign) Schema() *schema.Schema { return nil }
func (foreign) NumRows() int64         { return 0 }
func (foreign) Describe() engine.Description {
	return engine.Description{Engine: "elsewhere"}
}
func (foreign) Close() error { return nil }
