package sqlite

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/tinysqlite/sqlite/sqliteh"
)

// Kind classifies an Error.
type Kind int

const (
	KindEngine     Kind = iota + 1 // the engine returned an error code
	KindConversion                 // a value could not move in or out of a Value
	KindMalformed                  // text the engine cannot carry, or no statement
	KindNoRow                      // no row is pending on the cursor
	KindClosed                     // the handle was already released
	KindMisuse                     // the API was called out of order
)

func (k Kind) String() string {
	switch k {
	case KindEngine:
		return "engine"
	case KindConversion:
		return "conversion"
	case KindMalformed:
		return "malformed"
	case KindNoRow:
		return "no row"
	case KindClosed:
		return "closed"
	case KindMisuse:
		return "misuse"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Sentinels for errors.Is. Every *Error matches the sentinel of its Kind.
var (
	ErrEngine     = errors.New("sqlite: engine error")
	ErrConversion = errors.New("sqlite: conversion error")
	ErrMalformed  = errors.New("sqlite: malformed input")
	ErrNoRow      = errors.New("sqlite: no row")

	// ErrClosed is returned when an operation is attempted on a connection
	// or query after Close has already been called.
	ErrClosed = errors.New("sqlite: already closed")

	// ErrCursorInUse is returned when a Query is bound or executed while an
	// Answer or Row from an earlier execution still holds its cursor.
	ErrCursorInUse = errors.New("sqlite: cursor in use")

	// ErrStaleRow is returned when a borrowed Row is read after its
	// cursor moved on to another row.
	ErrStaleRow = errors.New("sqlite: stale row")

	// ErrUnsafeMode is returned when a connection would be opened without
	// the engine's full mutex.
	ErrUnsafeMode = errors.New("sqlite: unsafe open mode")
)

var kindErrs = map[Kind]error{
	KindEngine:     ErrEngine,
	KindConversion: ErrConversion,
	KindMalformed:  ErrMalformed,
	KindNoRow:      ErrNoRow,
	KindClosed:     ErrClosed,
}

// Error is the error returned by every operation in this package.
type Error struct {
	Kind  Kind
	Code  sqliteh.Code // SQLite error code, KindEngine only
	Loc   string       // method name that generated the error
	Query string       // original SQL query text
	Msg   string
	Err   error // cause, if any

	pcs []uintptr
}

func (e *Error) Error() string {
	b := new(strings.Builder)
	b.WriteString("sqlite")
	if e.Loc != "" {
		b.WriteByte('.')
		b.WriteString(e.Loc)
	}
	b.WriteString(": ")
	sep := ""
	if e.Kind == KindEngine {
		b.WriteString(e.Code.String())
		sep = ": "
	}
	if e.Msg != "" {
		b.WriteString(sep)
		b.WriteString(e.Msg)
		sep = ": "
	}
	if e.Err != nil && e.Kind != KindEngine {
		b.WriteString(sep)
		b.WriteString(e.Err.Error())
	}
	if e.Query != "" {
		b.WriteString(" (")
		b.WriteString(e.Query)
		b.WriteByte(')')
	}
	return b.String()
}

// Unwrap reports the sentinel of the error's Kind and its cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if k := kindErrs[e.Kind]; k != nil {
		errs = append(errs, k)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// HasStack reports whether a stack trace was captured with the error.
func (e *Error) HasStack() bool { return len(e.pcs) > 0 }

// Stack formats the stack captured when the error was built,
// one "function\n\tfile:line" entry per frame.
func (e *Error) Stack() string {
	if len(e.pcs) == 0 {
		return ""
	}
	b := new(strings.Builder)
	frames := runtime.CallersFrames(e.pcs)
	for {
		f, more := frames.Next()
		fmt.Fprintf(b, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}
	return b.String()
}

func (e *Error) withQuery(query string) *Error {
	e.Query = query
	return e
}

func newError(kind Kind, loc, msg string, cause error) *Error {
	e := &Error{Kind: kind, Loc: loc, Msg: msg, Err: cause}
	var pcs [32]uintptr
	if n := runtime.Callers(3, pcs[:]); n > 0 {
		e.pcs = append([]uintptr(nil), pcs[:n]...)
	}
	return e
}

// errorf builds an error from a formatted message.
func errorf(kind Kind, loc, format string, args ...any) *Error {
	return newError(kind, loc, fmt.Sprintf(format, args...), nil)
}

// wrapf builds an error around cause.
func wrapf(kind Kind, loc string, cause error, format string, args ...any) *Error {
	return newError(kind, loc, fmt.Sprintf(format, args...), cause)
}

// closedError reports a use of a released handle and counts it.
func closedError(loc string) *Error {
	UsesAfterClose.Add(loc, 1)
	return newError(KindClosed, loc, "", nil)
}

// lastError builds an engine error for code. The message is the engine's
// description of code, followed by the connection's own last error text
// in parentheses when db is not nil.
func lastError(db sqliteh.DB, loc, query string, code sqliteh.Code) *Error {
	var msg string
	if Engine != nil {
		msg = Engine.ErrStr(code)
	}
	if db != nil {
		if m := db.ErrMsg(); m != "" && m != msg {
			if msg == "" {
				msg = m
			} else {
				msg += " (" + m + ")"
			}
		}
	}
	e := newError(KindEngine, loc, msg, sqliteh.ErrCode(code))
	e.Code = code
	e.Query = query
	return e
}

// checkResult maps an engine result to an error.
// A nil err is success; db may be nil when no connection is available.
func checkResult(db sqliteh.DB, loc, query string, err error) error {
	if err == nil {
		return nil
	}
	var ec sqliteh.ErrCode
	if errors.As(err, &ec) {
		return lastError(db, loc, query, sqliteh.Code(ec))
	}
	return wrapf(KindEngine, loc, err, "").withQuery(query)
}
