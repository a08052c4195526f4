package fls

import (
	"sync/atomic"

	"github.com/ajitpratap0/fls/pkg/flserrors"
)

// token is the single-owner guard shared by a session (or reader) and every
// handle issued for it. A handle is live while its generation equals the
// token's; a successful stage rotates the generation so the handle it was
// called on goes stale.
type token struct {
	busy atomic.Bool
	gen  atomic.Uint64
}

// acquire marks the token busy for a call made through a handle of
// generation gen.
func (t *token) acquire(gen uint64, op, path string) error {
	if !t.busy.CompareAndSwap(false, true) {
		return stateError(op, path, "another operation is in progress on this handle")
	}
	if t.gen.Load() != gen {
		t.busy.Store(false)
		return stateError(op, path, "stale handle; use the one returned by the previous stage")
	}
	return nil
}

// lock marks the token busy regardless of generation. Close uses it.
func (t *token) lock(op, path string) error {
	if !t.busy.CompareAndSwap(false, true) {
		return stateError(op, path, "another operation is in progress on this handle")
	}
	return nil
}

func (t *token) release() { t.busy.Store(false) }

// rotate retires every issued handle and returns the new generation. The
// caller must hold the token.
func (t *token) rotate() uint64 { return t.gen.Add(1) }

func (t *token) current() uint64 { return t.gen.Load() }

func stateError(op, path, msg string) error {
	return flserrors.New(flserrors.ErrorTypeState, msg).WithOp(op, path)
}
