package fls

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/fls/pkg/engine"
	"github.com/ajitpratap0/fls/pkg/flserrors"
	"github.com/ajitpratap0/fls/pkg/metrics"
	"github.com/ajitpratap0/fls/pkg/observability"
	"github.com/ajitpratap0/fls/pkg/table"
)

type session struct {
	id         string
	eng        engine.Engine
	engineName string
	ctx        context.Context
	logger     *zap.Logger
	token      token

	// Written only while the token is held.
	mu           sync.RWMutex
	state        State
	closed       bool
	inlineFooter bool
	source       string
	target       string
	rows         int64
	table        *table.Table
}

// Connection is a handle to a session. It is valid until a stage called on
// it succeeds; from then on the returned handle must be used instead.
type Connection struct {
	s   *session
	gen uint64
}

// guard runs fn as stage name while holding the session token.
func (c *Connection) guard(name, path string, fn func(s *session, span *observability.Span) error) error {
	if c == nil || c.s == nil {
		return stateError(name, path, "use of a nil connection")
	}
	s := c.s
	return observe(s.ctx, s.logger, s.id, s.engineName, name, path,
		func(_ context.Context, span *observability.Span) error {
			if err := s.token.acquire(c.gen, name, path); err != nil {
				return err
			}
			defer s.token.release()
			if s.eng == nil {
				return flserrors.New(flserrors.ErrorTypeConfig, "session has no engine").WithOp(name, path)
			}
			return flserrors.Annotate(fn(s, span), name, path)
		})
}

// expect fails unless the session is open and in one of states.
func (s *session) expect(op, path string, states ...State) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return stateError(op, path, "session is closed")
	}
	for _, st := range states {
		if s.state == st {
			return nil
		}
	}
	return flserrors.Newf(flserrors.ErrorTypeState, "%s is not allowed in state %s", op, s.state).
		WithOp(op, path).
		WithDetail("state", s.state.String())
}

// advance moves the session to next and issues the handle for it. The
// caller holds the token.
func (s *session) advance(op string, next State) *Connection {
	s.mu.Lock()
	from := s.state
	s.state = next
	s.mu.Unlock()
	gen := s.token.rotate()
	s.logger.Debug("session transition",
		zap.String("stage", op),
		zap.Stringer("from", from),
		zap.Stringer("to", next))
	return &Connection{s: s, gen: gen}
}

// Configure sets the session options. It is allowed in Created and
// Configured, where the last call wins, and moves the session to
// Configured.
func (c *Connection) Configure(opts Options) (*Connection, error) {
	var next *Connection
	err := c.guard(StageConfigure, "", func(s *session, span *observability.Span) error {
		if err := s.expect(StageConfigure, "", Created, Configured); err != nil {
			return err
		}
		span.SetAttribute("fls.inline_footer", opts.InlineFooter)
		s.mu.Lock()
		s.inlineFooter = opts.InlineFooter
		s.mu.Unlock()
		next = s.advance(StageConfigure, Configured)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// Ingest reads the input directory dir into the session and moves it to
// Ingested. dir holds a schema.json and one CSV or JSONL data file.
func (c *Connection) Ingest(dir string) (*Connection, error) {
	var next *Connection
	err := c.guard(StageIngest, dir, func(s *session, span *observability.Span) error {
		if err := s.expect(StageIngest, dir, Created, Configured); err != nil {
			return err
		}
		timer := metrics.NewTimer()
		t, err := s.eng.IngestDirectory(dir)
		if err != nil {
			return err
		}
		metrics.ObserveRows(StageIngest, s.engineName, t.NumRows(), timer.Stop())
		if rss := metrics.SampleProcessMemory(); rss > 0 {
			span.SetAttribute("fls.rss_bytes", int64(rss)) //nolint:gosec // G115: rss fits int64
		}
		span.SetAttribute("fls.rows", t.NumRows())
		span.SetAttribute("fls.rowgroups", t.NumRowgroups())

		s.mu.Lock()
		s.table = t
		s.source = dir
		s.rows = t.NumRows()
		s.mu.Unlock()
		next = s.advance(StageIngest, Ingested)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// Project narrows the ingested table to the columns at idxs, in that
// order. It is only allowed in Ingested and keeps that state.
func (c *Connection) Project(idxs ...int) (*Connection, error) {
	var next *Connection
	err := c.guard(StageProject, "", func(s *session, span *observability.Span) error {
		if err := s.expect(StageProject, "", Ingested); err != nil {
			return err
		}
		s.mu.RLock()
		old := s.table
		s.mu.RUnlock()
		t, err := old.Project(idxs)
		if err != nil {
			return err
		}
		span.SetAttribute("fls.columns", t.Schema().Len())

		s.mu.Lock()
		s.table = t
		s.mu.Unlock()
		old.Release()
		next = s.advance(StageProject, Ingested)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// Emit writes the ingested table to path and moves the session to
// Emitted. The footer placement follows the configured InlineFooter.
func (c *Connection) Emit(path string) (*Connection, error) {
	var next *Connection
	err := c.guard(StageEmit, path, func(s *session, span *observability.Span) error {
		if err := s.expect(StageEmit, path, Ingested); err != nil {
			return err
		}
		s.mu.RLock()
		t, inline := s.table, s.inlineFooter
		s.mu.RUnlock()
		span.SetAttribute("fls.inline_footer", inline)

		timer := metrics.NewTimer()
		if err := s.eng.WriteArtifact(t, path, engine.WriteOptions{InlineFooter: inline}); err != nil {
			return err
		}
		metrics.ObserveRows(StageEmit, s.engineName, t.NumRows(), timer.Stop())
		metrics.ObserveArtifact(s.engineName, path)

		s.mu.Lock()
		s.target = path
		s.table = nil
		s.mu.Unlock()
		t.Release()
		next = s.advance(StageEmit, Emitted)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// Open opens the artifact at path with the session's engine. It is allowed
// in every state, including after Close, and does not retire c. The reader
// has its own lifetime.
func (c *Connection) Open(path string) (*TableReader, error) {
	var r *TableReader
	err := c.guard(StageOpen, path, func(s *session, span *observability.Span) error {
		a, err := s.eng.OpenArtifact(path)
		if err != nil {
			return err
		}
		r = newTableReader(s, a)
		span.SetAttribute("fls.rows", r.r.rows)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Close releases the buffered table. It may be called through any handle
// of the session, so a deferred Close on the handle Connect returned works.
// Readers already opened are unaffected. Closing twice is a no-op.
func (c *Connection) Close() error {
	if c == nil || c.s == nil {
		return nil
	}
	s := c.s
	if err := s.token.lock(StageClose, ""); err != nil {
		return err
	}
	defer s.token.release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.table != nil {
		s.table.Release()
		s.table = nil
	}
	s.logger.Debug("session closed", zap.Stringer("state", s.state))
	return nil
}

// State returns the session state. A nil handle reports Created.
func (c *Connection) State() State {
	if c == nil || c.s == nil {
		return Created
	}
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return c.s.state
}

// Live reports whether c is the session's current handle.
func (c *Connection) Live() bool {
	return c != nil && c.s != nil && c.s.token.current() == c.gen
}

// ID returns the session id.
func (c *Connection) ID() string {
	if c == nil || c.s == nil {
		return ""
	}
	return c.s.id
}

// Engine returns the engine name.
func (c *Connection) Engine() string {
	if c == nil || c.s == nil {
		return ""
	}
	return c.s.engineName
}

// Version returns the engine's library version.
func (c *Connection) Version() string {
	if c == nil || c.s == nil || c.s.eng == nil {
		return ""
	}
	return c.s.eng.Version()
}

// InlineFooter reports the configured footer placement.
func (c *Connection) InlineFooter() bool {
	if c == nil || c.s == nil {
		return false
	}
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return c.s.inlineFooter
}

// SourcePath returns the directory last ingested.
func (c *Connection) SourcePath() string {
	if c == nil || c.s == nil {
		return ""
	}
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return c.s.source
}

// TargetPath returns the artifact last emitted.
func (c *Connection) TargetPath() string {
	if c == nil || c.s == nil {
		return ""
	}
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return c.s.target
}

// Rows returns the number of rows ingested.
func (c *Connection) Rows() int64 {
	if c == nil || c.s == nil {
		return 0
	}
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return c.s.rows
}

// Closed reports whether Close was called.
func (c *Connection) Closed() bool {
	if c == nil || c.s == nil {
		return false
	}
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return c.s.closed
}
