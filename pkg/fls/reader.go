package fls

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/fls/pkg/engine"
	"github.com/ajitpratap0/fls/pkg/flserrors"
	"github.com/ajitpratap0/fls/pkg/materialize"
	"github.com/ajitpratap0/fls/pkg/metrics"
	"github.com/ajitpratap0/fls/pkg/observability"
	"github.com/ajitpratap0/fls/pkg/schema"
)

type reader struct {
	sessionID  string
	eng        engine.Engine
	engineName string
	ctx        context.Context
	logger     *zap.Logger
	token      token

	path   string
	rows   int64
	schema *schema.Schema
	desc   engine.Description

	mu     sync.RWMutex
	art    engine.Artifact
	state  ReaderState
	closed bool
	target string
}

// TableReader is a handle to an opened artifact. Like a Connection it is
// retired by a successful ToCSV. It does not depend on the session that
// opened it.
type TableReader struct {
	r   *reader
	gen uint64
}

func newTableReader(s *session, a engine.Artifact) *TableReader {
	desc := a.Describe()
	r := &reader{
		sessionID:  s.id,
		eng:        s.eng,
		engineName: s.engineName,
		ctx:        s.ctx,
		logger:     s.logger.With(zap.String("artifact", a.Path())),
		path:       a.Path(),
		rows:       a.NumRows(),
		schema:     a.Schema(),
		desc:       desc,
		art:        a,
		state:      Opened,
	}
	metrics.ObserveCompression(desc.Engine, desc.Codec, desc.CompressionRatio)
	r.logger.Debug("artifact opened",
		zap.Int64("rows", r.rows),
		zap.Int("rowgroups", desc.Rowgroups),
		zap.String("codec", desc.Codec))
	return &TableReader{r: r, gen: r.token.current()}
}

// ToCSV decodes every row of the artifact as delimited text into path and
// moves the reader to Decoded. When path is an existing directory the rows
// go to materialized_by_fls.csv inside it.
func (t *TableReader) ToCSV(path string) (*TableReader, error) {
	if t == nil || t.r == nil {
		return nil, stateError(StageDecode, path, "use of a nil table reader")
	}
	r := t.r
	var next *TableReader
	err := observe(r.ctx, r.logger, r.sessionID, r.engineName, StageDecode, path,
		func(_ context.Context, span *observability.Span) error {
			if err := r.token.acquire(t.gen, StageDecode, path); err != nil {
				return err
			}
			defer r.token.release()

			r.mu.RLock()
			closed, state, art := r.closed, r.state, r.art
			r.mu.RUnlock()
			if closed {
				return stateError(StageDecode, path, "table reader is closed")
			}
			if state != Opened {
				return flserrors.Newf(flserrors.ErrorTypeState, "decode is not allowed in state %s", state).
					WithOp(StageDecode, path)
			}

			target := materialize.TargetPath(path)
			timer := metrics.NewTimer()
			if err := r.eng.DecodeToDirectory(art, path); err != nil {
				return flserrors.Annotate(err, StageDecode, path)
			}
			metrics.ObserveRows(StageDecode, r.engineName, r.rows, timer.Stop())
			span.SetAttribute("fls.target", target)
			span.SetAttribute("fls.rows", r.rows)

			r.mu.Lock()
			r.state = Decoded
			r.target = target
			r.mu.Unlock()
			next = &TableReader{r: r, gen: r.token.rotate()}
			r.logger.Debug("reader transition",
				zap.Stringer("from", Opened),
				zap.Stringer("to", Decoded),
				zap.String("target", target))
			return nil
		})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// Close releases the artifact. Any handle of the reader may close it;
// closing twice is a no-op.
func (t *TableReader) Close() error {
	if t == nil || t.r == nil {
		return nil
	}
	r := t.r
	if err := r.token.lock(StageClose, r.path); err != nil {
		return err
	}
	defer r.token.release()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.art.Close()
	r.art = nil
	return flserrors.Annotate(err, StageClose, r.path)
}

// State returns the reader state. A nil handle reports Opened.
func (t *TableReader) State() ReaderState {
	if t == nil || t.r == nil {
		return Opened
	}
	t.r.mu.RLock()
	defer t.r.mu.RUnlock()
	return t.r.state
}

// Live reports whether t is the reader's current handle.
func (t *TableReader) Live() bool {
	return t != nil && t.r != nil && t.r.token.current() == t.gen
}

// Path returns the artifact path.
func (t *TableReader) Path() string {
	if t == nil || t.r == nil {
		return ""
	}
	return t.r.path
}

// TargetPath returns the file written by ToCSV.
func (t *TableReader) TargetPath() string {
	if t == nil || t.r == nil {
		return ""
	}
	t.r.mu.RLock()
	defer t.r.mu.RUnlock()
	return t.r.target
}

// NumRows returns the number of rows in the artifact.
func (t *TableReader) NumRows() int64 {
	if t == nil || t.r == nil {
		return 0
	}
	return t.r.rows
}

// Schema returns the artifact schema.
func (t *TableReader) Schema() *schema.Schema {
	if t == nil || t.r == nil {
		return nil
	}
	return t.r.schema
}

// Describe summarizes the artifact as it was when opened.
func (t *TableReader) Describe() engine.Description {
	if t == nil || t.r == nil {
		return engine.Description{}
	}
	return t.r.desc
}
