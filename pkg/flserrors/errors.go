// Package flserrors provides the structured error type used across fls.
//
// Every failure that crosses a package boundary is an *Error carrying one of
// the pipeline error kinds:
//
//   - io:     a path is missing, unreadable or unwritable
//   - schema: ingested records are inconsistent with their schema
//   - format: an artifact is corrupt or was written by an incompatible version
//   - state:  an operation was invoked out of order or on a stale handle
//
// Errors also record the operation and path they concern, so that a driver
// can report both without parsing the message.
//
//	if err := conn.Ingest(dir); err != nil {
//	    if flserrors.IsType(err, flserrors.ErrorTypeIO) {
//	        // retry with another directory
//	    }
//	}
//
// errors.Is works against the kind sentinels:
//
//	errors.Is(err, flserrors.ErrState)
package flserrors

import (
	"errors"
	"io/fs"
	"runtime"

	stringpool "github.com/ajitpratap0/fls/pkg/strings"
)

// ErrorType is the category of an error.
type ErrorType string

const (
	// ErrorTypeIO: path missing, unreadable or unwritable
	ErrorTypeIO ErrorType = "io"
	// ErrorTypeSchema: ingested records inconsistent in shape or type
	ErrorTypeSchema ErrorType = "schema"
	// ErrorTypeFormat: artifact unreadable or version-incompatible
	ErrorTypeFormat ErrorType = "format"
	// ErrorTypeState: operation invoked out of sequence
	ErrorTypeState ErrorType = "state"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeValidation represents invalid arguments
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeInternal represents internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// Sentinels for use with errors.Is. They match any *Error of the same type.
var (
	ErrIO     = &Error{Type: ErrorTypeIO}
	ErrSchema = &Error{Type: ErrorTypeSchema}
	ErrFormat = &Error{Type: ErrorTypeFormat}
	ErrState  = &Error{Type: ErrorTypeState}
)

// Error is a categorized error with the operation and path it concerns.
type Error struct {
	Type    ErrorType
	Op      string // pipeline operation, e.g. "ingest"
	Path    string // filesystem path the operation was working on
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame is one frame of the call stack captured at creation.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error formats as "<type>: <op> <path>: <message>: <cause>", omitting
// empty parts.
func (e *Error) Error() string {
	b := stringpool.GetBuilder(stringpool.Small)
	defer stringpool.PutBuilder(b, stringpool.Small)

	b.WriteString(string(e.Type))
	if e.Op != "" || e.Path != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
		if e.Op != "" && e.Path != "" {
			b.WriteByte(' ')
		}
		b.WriteString(e.Path)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return stringpool.Clone(b.String())
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a kind sentinel (an *Error with no message)
// of the same type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t == e {
		return true
	}
	return t.Message == "" && t.Op == "" && t.Cause == nil && t.Type == e.Type
}

// WithDetail adds a key-value detail. Chainable.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithOp records the operation and path the error concerns. Chainable.
func (e *Error) WithOp(op, path string) *Error {
	e.Op = op
	e.Path = path
	return e
}

// New creates an error and captures the call stack.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a format string.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: stringpool.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps err with a type and message. If err is already an *Error its
// stack, operation and path are carried over. Returns nil for a nil err.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		return &Error{
			Type:    errType,
			Op:      existing.Op,
			Path:    existing.Path,
			Message: message,
			Cause:   err,
			Stack:   existing.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// Annotate attaches op and path to err. An *Error keeps its type; any other
// error is classified with Classify first.
func Annotate(err error, op, path string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Op == "" {
			e.Op = op
		}
		if e.Path == "" {
			e.Path = path
		}
		return err
	}
	out := Wrap(err, Classify(err), "")
	out.Op, out.Path = op, path
	return out
}

// Classify maps a foreign error to a kind. Filesystem errors are io, an
// *Error keeps its own type, anything else is internal.
func Classify(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) ||
		errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, fs.ErrExist) {
		return ErrorTypeIO
	}
	return ErrorTypeInternal
}

// IsRetryable reports whether a caller may succeed by retrying with a
// different path. Only io errors qualify.
func IsRetryable(err error) bool {
	return IsType(err, ErrorTypeIO)
}

// IsType reports whether the outermost *Error in err's chain has the type.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the type of the outermost *Error in err's chain, or the
// empty string.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Type
}

func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip+1, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	out := make([]StackFrame, 0, n)
	for {
		frame, more := frames.Next()
		out = append(out, StackFrame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more {
			break
		}
	}
	return out
}
