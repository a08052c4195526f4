package fls_test

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/fls/pkg/config"
	"github.com/ajitpratap0/fls/pkg/engine"
	"github.com/ajitpratap0/fls/pkg/engine/native"
	"github.com/ajitpratap0/fls/pkg/fls"
	"github.com/ajitpratap0/fls/pkg/flserrors"
	"github.com/ajitpratap0/fls/pkg/table"
	"github.com/ajitpratap0/fls/pkg/testutil"
)

func newEngine(t *testing.T) engine.Engine {
	t.Helper()
	e, err := native.New(config.DefaultEngineConfig())
	require.NoError(t, err)
	return e
}

func connect(t *testing.T, opts ...fls.Option) *fls.Connection {
	t.Helper()
	opts = append([]fls.Option{fls.WithLogger(testutil.TestLogger(t))}, opts...)
	conn := fls.Connect(newEngine(t), opts...)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// emitSample runs a fresh session over dir and returns the artifact path.
func emitSample(t *testing.T, dir string, inline bool) string {
	t.Helper()
	conn, err := connect(t).Configure(fls.Options{InlineFooter: inline})
	require.NoError(t, err)
	conn, err = conn.Ingest(dir)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "out.fls")
	conn, err = conn.Emit(path)
	require.NoError(t, err)
	assert.Equal(t, fls.Emitted, conn.State())
	return path
}

func requireKind(t *testing.T, err error, kind flserrors.ErrorType) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, flserrors.TypeOf(err), err.Error())
}

func TestRoundTrip(t *testing.T) {
	conn := connect(t)
	assert.Equal(t, fls.Created, conn.State())

	conn, err := conn.Ingest(testutil.SampleDir(t))
	require.NoError(t, err)
	assert.Equal(t, fls.Ingested, conn.State())
	assert.Equal(t, int64(3), conn.Rows())

	artifact := filepath.Join(t.TempDir(), "out.fls")
	conn, err = conn.Emit(artifact)
	require.NoError(t, err)
	assert.Equal(t, fls.Emitted, conn.State())
	assert.Equal(t, artifact, conn.TargetPath())

	r, err := conn.Open(artifact)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, fls.Opened, r.State())
	assert.Equal(t, int64(3), r.NumRows())
	assert.Equal(t, []string{"id", "name"}, r.Schema().Names())

	target := filepath.Join(t.TempDir(), "out.csv")
	r, err = r.ToCSV(target)
	require.NoError(t, err)
	assert.Equal(t, fls.Decoded, r.State())
	assert.Equal(t, target, r.TargetPath())
	assert.Equal(t, []string{"1|alice", "2|bob", "3|carol"}, testutil.ReadLines(t, target))
}

func TestInlineFooterIsLayoutOnly(t *testing.T) {
	dir := testutil.MixedDir(t)
	var decoded [][]string
	for _, inline := range []bool{false, true} {
		conn := connect(t)
		r, err := conn.Open(emitSample(t, dir, inline))
		require.NoError(t, err)
		out := t.TempDir()
		_, err = r.ToCSV(out)
		require.NoError(t, err)
		require.NoError(t, r.Close())
		decoded = append(decoded, testutil.ReadLines(t, filepath.Join(out, "materialized_by_fls.csv")))
	}
	assert.Equal(t, testutil.MixedCanonical, decoded[0])
	assert.Equal(t, decoded[0], decoded[1])
}

func TestStateOrder(t *testing.T) {
	tests := []struct {
		name  string
		run   func(t *testing.T, conn *fls.Connection) error
		state fls.State
	}{
		{
			name: "emit before ingest",
			run: func(t *testing.T, conn *fls.Connection) error {
				_, err := conn.Emit(filepath.Join(t.TempDir(), "out.fls"))
				return err
			},
			state: fls.Created,
		},
		{
			name: "project before ingest",
			run: func(t *testing.T, conn *fls.Connection) error {
				_, err := conn.Project(0)
				return err
			},
			state: fls.Created,
		},
		{
			name: "configure after ingest",
			run: func(t *testing.T, conn *fls.Connection) error {
				conn, err := conn.Ingest(testutil.SampleDir(t))
				require.NoError(t, err)
				_, err = conn.Configure(fls.Options{InlineFooter: true})
				assert.False(t, conn.InlineFooter())
				return err
			},
			state: fls.Ingested,
		},
		{
			name: "ingest twice",
			run: func(t *testing.T, conn *fls.Connection) error {
				conn, err := conn.Ingest(testutil.SampleDir(t))
				require.NoError(t, err)
				_, err = conn.Ingest(testutil.SampleDir(t))
				return err
			},
			state: fls.Ingested,
		},
		{
			name: "emit twice",
			run: func(t *testing.T, conn *fls.Connection) error {
				conn, err := conn.Ingest(testutil.SampleDir(t))
				require.NoError(t, err)
				conn, err = conn.Emit(filepath.Join(t.TempDir(), "a.fls"))
				require.NoError(t, err)
				_, err = conn.Emit(filepath.Join(t.TempDir(), "b.fls"))
				return err
			},
			state: fls.Emitted,
		},
		{
			name: "configure after emit",
			run: func(t *testing.T, conn *fls.Connection) error {
				conn, err := conn.Ingest(testutil.SampleDir(t))
				require.NoError(t, err)
				conn, err = conn.Emit(filepath.Join(t.TempDir(), "a.fls"))
				require.NoError(t, err)
				_, err = conn.Configure(fls.Options{})
				return err
			},
			state: fls.Emitted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := connect(t)
			err := tt.run(t, conn)
			requireKind(t, err, flserrors.ErrorTypeState)
			assert.ErrorIs(t, err, flserrors.ErrState)
			assert.Equal(t, tt.state, conn.State())
		})
	}
}

func TestConfigureIsIdempotent(t *testing.T) {
	conn := connect(t)
	conn, err := conn.Configure(fls.Options{InlineFooter: true})
	require.NoError(t, err)
	conn, err = conn.Configure(fls.Options{InlineFooter: false})
	require.NoError(t, err)
	conn, err = conn.Configure(fls.Options{InlineFooter: true})
	require.NoError(t, err)
	assert.Equal(t, fls.Configured, conn.State())
	assert.True(t, conn.InlineFooter())
}

func TestWithInlineFooter(t *testing.T) {
	conn := connect(t, fls.WithInlineFooter(true))
	assert.True(t, conn.InlineFooter())
	assert.Equal(t, fls.Created, conn.State())
}

func TestStaleHandle(t *testing.T) {
	first := connect(t)
	second, err := first.Configure(fls.Options{})
	require.NoError(t, err)
	assert.False(t, first.Live())
	assert.True(t, second.Live())

	_, err = first.Ingest(testutil.SampleDir(t))
	requireKind(t, err, flserrors.ErrorTypeState)
	assert.Contains(t, err.Error(), "stale handle")

	_, err = first.Open(filepath.Join(t.TempDir(), "x.fls"))
	requireKind(t, err, flserrors.ErrorTypeState)

	third, err := second.Ingest(testutil.SampleDir(t))
	require.NoError(t, err)
	assert.Equal(t, fls.Ingested, third.State())
	assert.Equal(t, fls.Ingested, first.State())
}

func TestFailedStageKeepsHandle(t *testing.T) {
	conn := connect(t)
	missing := filepath.Join(t.TempDir(), "nonexistent")

	next, err := conn.Ingest(missing)
	assert.Nil(t, next)
	requireKind(t, err, flserrors.ErrorTypeIO)
	assert.True(t, conn.Live())
	assert.Equal(t, fls.Created, conn.State())
	assert.Empty(t, conn.SourcePath())

	var fe *flserrors.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, fls.StageIngest, fe.Op)
	assert.Equal(t, missing, fe.Path)

	dir := testutil.SampleDir(t)
	conn, err = conn.Ingest(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, conn.SourcePath())

	unwritable := filepath.Join(t.TempDir(), "no", "such", "out.fls")
	_, err = conn.Emit(unwritable)
	requireKind(t, err, flserrors.ErrorTypeIO)
	assert.Contains(t, err.Error(), unwritable)
	assert.Equal(t, fls.Ingested, conn.State())

	conn, err = conn.Emit(filepath.Join(t.TempDir(), "out.fls"))
	require.NoError(t, err)
	assert.Equal(t, fls.Emitted, conn.State())
}

func TestIngestErrors(t *testing.T) {
	tests := []struct {
		name string
		dir  func(t *testing.T) string
		kind flserrors.ErrorType
	}{
		{"missing directory", func(t *testing.T) string { return "/nonexistent" }, flserrors.ErrorTypeIO},
		{"missing schema", func(t *testing.T) string {
			dir := t.TempDir()
			testutil.WriteFile(t, filepath.Join(dir, "data.csv"), "1\n")
			return dir
		}, flserrors.ErrorTypeIO},
		{"unknown type", func(t *testing.T) string {
			return testutil.CSVDir(t, []testutil.Column{{Name: "a", Type: "GEOMETRY"}}, "1")
		}, flserrors.ErrorTypeSchema},
		{"wrong field count", func(t *testing.T) string {
			return testutil.CSVDir(t, []testutil.Column{{Name: "a", Type: "INT"}, {Name: "b", Type: "INT"}}, "1|2|3|4")
		}, flserrors.ErrorTypeSchema},
		{"bad value", func(t *testing.T) string {
			return testutil.CSVDir(t, []testutil.Column{{Name: "a", Type: "INT"}}, "one")
		}, flserrors.ErrorTypeSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := connect(t)
			_, err := conn.Ingest(tt.dir(t))
			requireKind(t, err, tt.kind)
			assert.Equal(t, fls.Created, conn.State())
		})
	}
}

func TestOpenMissing(t *testing.T) {
	_, err := connect(t).Open("/nonexistent.artifact")
	require.Error(t, err)
	kind := flserrors.TypeOf(err)
	assert.Contains(t, []flserrors.ErrorType{flserrors.ErrorTypeIO, flserrors.ErrorTypeFormat}, kind)
	assert.Contains(t, err.Error(), "/nonexistent.artifact")
}

func TestOpenGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.fls")
	testutil.WriteFile(t, path, "plain text, not an artifact, long enough to hold a header and trailer\n")
	_, err := connect(t).Open(path)
	requireKind(t, err, flserrors.ErrorTypeFormat)
}

func TestOpenDoesNotRetireHandle(t *testing.T) {
	path := emitSample(t, testutil.SampleDir(t), false)
	conn := connect(t)
	for i := 0; i < 2; i++ {
		r, err := conn.Open(path)
		require.NoError(t, err)
		require.NoError(t, r.Close())
	}
	assert.True(t, conn.Live())
	assert.Equal(t, fls.Created, conn.State())

	conn, err := conn.Ingest(testutil.SampleDir(t))
	require.NoError(t, err)
	assert.Equal(t, fls.Ingested, conn.State())
}

func TestProject(t *testing.T) {
	conn, err := connect(t).Ingest(testutil.SampleDir(t))
	require.NoError(t, err)

	_, err = conn.Project(0, 0)
	requireKind(t, err, flserrors.ErrorTypeSchema)
	_, err = conn.Project(2)
	requireKind(t, err, flserrors.ErrorTypeSchema)
	assert.True(t, conn.Live())

	conn, err = conn.Project(1, 0)
	require.NoError(t, err)
	assert.Equal(t, fls.Ingested, conn.State())

	path := filepath.Join(t.TempDir(), "projected.fls")
	conn, err = conn.Emit(path)
	require.NoError(t, err)

	r, err := conn.Open(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, []string{"name", "id"}, r.Schema().Names())

	target := filepath.Join(t.TempDir(), "projected.csv")
	_, err = r.ToCSV(target)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice|1", "bob|2", "carol|3"}, testutil.ReadLines(t, target))
}

func TestClose(t *testing.T) {
	artifact := emitSample(t, testutil.SampleDir(t), true)

	conn := connect(t)
	next, err := conn.Configure(fls.Options{})
	require.NoError(t, err)

	// A stale handle may still close the session.
	require.NoError(t, conn.Close())
	require.NoError(t, next.Close())
	assert.True(t, next.Closed())

	_, err = next.Ingest(testutil.SampleDir(t))
	requireKind(t, err, flserrors.ErrorTypeState)
	assert.Contains(t, err.Error(), "closed")

	r, err := next.Open(artifact)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, int64(3), r.NumRows())
}

func TestClosedSessionKeepsReader(t *testing.T) {
	path := emitSample(t, testutil.SampleDir(t), false)

	conn := connect(t)
	r, err := conn.Open(path)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	target := filepath.Join(t.TempDir(), "after-close.csv")
	r, err = r.ToCSV(target)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Len(t, testutil.ReadLines(t, target), 3)
}

func TestAccessors(t *testing.T) {
	conn := connect(t)
	_, err := uuid.Parse(conn.ID())
	require.NoError(t, err)
	assert.Equal(t, engine.Version, conn.Version())
	assert.Equal(t, native.Name, conn.Engine())
	assert.NotEqual(t, conn.ID(), connect(t).ID())
}

func TestNilConnection(t *testing.T) {
	var conn *fls.Connection
	_, err := conn.Ingest("x")
	requireKind(t, err, flserrors.ErrorTypeState)
	assert.NoError(t, conn.Close())
	assert.False(t, conn.Live())

	assert.Equal(t, fls.Created, conn.State())
	assert.Empty(t, conn.ID())
	assert.Empty(t, conn.Engine())
	assert.Empty(t, conn.Version())
	assert.False(t, conn.InlineFooter())
	assert.Empty(t, conn.SourcePath())
	assert.Empty(t, conn.TargetPath())
	assert.Zero(t, conn.Rows())
	assert.False(t, conn.Closed())

	_, err = conn.Open("x")
	requireKind(t, err, flserrors.ErrorTypeState)
}

func TestNoEngine(t *testing.T) {
	_, err := fls.Connect(nil).Ingest(testutil.SampleDir(t))
	requireKind(t, err, flserrors.ErrorTypeConfig)
}

// blockingEngine parks IngestDirectory until released.
type blockingEngine struct {
	engine.Engine
	entered chan struct{}
	release chan struct{}
}

func (b *blockingEngine) Name() string { return "blocking" }

func (b *blockingEngine) IngestDirectory(string) (*table.Table, error) {
	close(b.entered)
	<-b.release
	return nil, flserrors.New(flserrors.ErrorTypeIO, "input vanished")
}

func TestConcurrentCall(t *testing.T) {
	eng := &blockingEngine{entered: make(chan struct{}), release: make(chan struct{})}
	conn := fls.Connect(eng, fls.WithLogger(testutil.TestLogger(t)))

	var wg sync.WaitGroup
	var ingestErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, ingestErr = conn.Ingest("in")
	}()
	<-eng.entered

	_, err := conn.Configure(fls.Options{})
	requireKind(t, err, flserrors.ErrorTypeState)
	assert.Contains(t, err.Error(), "in progress")
	requireKind(t, conn.Close(), flserrors.ErrorTypeState)

	close(eng.release)
	wg.Wait()
	requireKind(t, ingestErr, flserrors.ErrorTypeIO)

	// The failed ingest left the handle live.
	_, err = conn.Configure(fls.Options{})
	require.NoError(t, err)
}
