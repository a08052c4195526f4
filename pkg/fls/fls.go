// Package fls drives a storage engine through a staged conversion:
// configure, ingest a CSV or JSONL directory, emit a columnar artifact, and
// later open the artifact and decode it back to delimited text.
//
// A session is used through exactly one live handle at a time. Every stage
// returns the handle to use next and retires the one it was called on:
//
//	eng, _ := registry.Create(config.DefaultEngineConfig())
//	conn := fls.Connect(eng)
//	defer conn.Close()
//
//	conn, err := conn.Configure(fls.Options{InlineFooter: true})
//	if err != nil { ... }
//	conn, err = conn.Ingest("input/")
//	if err != nil { ... }
//	conn, err = conn.Emit("out.fls")
//	if err != nil { ... }
//
//	r, err := conn.Open("out.fls")
//	if err != nil { ... }
//	defer r.Close()
//	r, err = r.ToCSV("out.csv")
//
// Calling a stage on a retired handle, calling it out of order or calling
// it while another call on the same session is running fails with a state
// error. A failed stage leaves the state unchanged and the handle it was
// called on stays live, so the caller may retry it.
package fls

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/fls/pkg/engine"
	"github.com/ajitpratap0/fls/pkg/logger"
	"github.com/ajitpratap0/fls/pkg/metrics"
	"github.com/ajitpratap0/fls/pkg/observability"
)

// Stage names used in errors, logs, spans and metrics.
const (
	StageConfigure = "configure"
	StageIngest    = "ingest"
	StageProject   = "project"
	StageEmit      = "emit"
	StageOpen      = "open"
	StageDecode    = "decode"
	StageClose     = "close"
)

// Options are the settings Configure accepts.
type Options struct {
	// InlineFooter embeds the artifact footer in the artifact on the next
	// Emit instead of writing it out of band.
	InlineFooter bool
}

// Option configures Connect.
type Option func(*connectOptions)

type connectOptions struct {
	logger       *zap.Logger
	ctx          context.Context
	inlineFooter bool
}

// WithLogger sets the logger. Defaults to the global logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *connectOptions) { o.logger = l }
}

// WithContext sets the parent context of the session's trace spans. It is
// not used for cancellation; stages always run to completion.
func WithContext(ctx context.Context) Option {
	return func(o *connectOptions) { o.ctx = ctx }
}

// WithInlineFooter sets the initial footer placement. The session stays in
// Created.
func WithInlineFooter(inline bool) Option {
	return func(o *connectOptions) { o.inlineFooter = inline }
}

// Connect opens a session on eng in state Created.
func Connect(eng engine.Engine, opts ...Option) *Connection {
	o := connectOptions{ctx: context.Background()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ctx == nil {
		o.ctx = context.Background()
	}

	id := uuid.NewString()
	name := ""
	if eng != nil {
		name = eng.Name()
	}
	ctx := context.WithValue(o.ctx, logger.SessionIDKey, id)
	ctx = context.WithValue(ctx, logger.EngineKey, name)

	log := o.logger
	if log == nil {
		log = logger.WithContext(ctx)
	} else {
		log = log.With(
			zap.String(string(logger.SessionIDKey), id),
			zap.String(string(logger.EngineKey), name),
		)
	}

	s := &session{
		id:           id,
		eng:          eng,
		engineName:   name,
		ctx:          ctx,
		logger:       log,
		state:        Created,
		inlineFooter: o.inlineFooter,
	}
	log.Debug("session created", zap.Bool("inline_footer", o.inlineFooter))
	return &Connection{s: s, gen: s.token.current()}
}

// observe runs fn as one stage call: a span, the stage metrics and a warning
// log on failure.
func observe(ctx context.Context, log *zap.Logger, id, eng, stage, path string,
	fn func(ctx context.Context, span *observability.Span) error) error {
	timer := metrics.NewTimer()
	ctx, span := observability.StartStage(context.WithValue(ctx, logger.StageKey, stage), stage, id, eng)
	if path != "" {
		span.SetAttribute("fls.path", path)
	}
	err := fn(ctx, span)
	span.End(err)
	metrics.ObserveStage(stage, eng, timer.Stop(), err)
	if err != nil {
		log.Warn("stage failed",
			zap.String(string(logger.StageKey), stage),
			zap.String("path", path),
			zap.Error(err))
	}
	return err
}
