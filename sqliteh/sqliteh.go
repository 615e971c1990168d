// Package sqliteh describes the SQLite C API that package sqlite consumes.
//
// It holds the engine's constants and the handle interfaces a binding
// (such as cgosqlite) implements. Nothing in here owns a resource: ownership
// rules live in package sqlite.
package sqliteh

// Given everything in here has an sqliteh. prefix,
// why not strip the SQLITE_ prefix from constants?
// Because this way standard names show up in search.

import (
	"context"
	"time"
)

// Engine is the set of SQLite entry points that do not operate on a handle.
type Engine interface {
	// Open is sqlite3_open_v2.
	//
	// Surprisingly: an error opening the DB can return a non-nil handle.
	// Call Close on it.
	//
	// https://sqlite.org/c3ref/open.html
	Open(filename string, flags OpenFlags, vfs string) (DB, error)
	// ErrStr is sqlite3_errstr.
	// https://sqlite.org/c3ref/errcode.html
	ErrStr(code Code) string
	// LibVersionNumber is sqlite3_libversion_number.
	// https://sqlite.org/c3ref/libversion.html
	LibVersionNumber() int
	// Threadsafe is sqlite3_threadsafe.
	// https://sqlite.org/c3ref/threadsafe.html
	Threadsafe() int
}

// DB is an sqlite3* database connection object.
// https://sqlite.org/c3ref/sqlite3.html
type DB interface {
	// Close is sqlite3_close_v2.
	// https://sqlite.org/c3ref/close.html
	Close() error
	// ErrMsg is sqlite3_errmsg.
	// https://sqlite.org/c3ref/errcode.html
	ErrMsg() string
	// Changes is sqlite3_changes.
	// https://sqlite.org/c3ref/changes.html
	Changes() int
	// LastInsertRowid is sqlite3_last_insert_rowid.
	// https://sqlite.org/c3ref/last_insert_rowid.html
	LastInsertRowid() int64
	// Prepare is sqlite3_prepare_v2.
	//
	// For empty or comment-only SQL the engine reports success and
	// no statement: stmt is then nil.
	//
	// https://www.sqlite.org/c3ref/prepare.html
	Prepare(query string) (stmt Stmt, remainingQuery string, err error)
	// Exec is sqlite3_exec without a callback.
	// https://sqlite.org/c3ref/exec.html
	Exec(queries string) error
	// BusyTimeout is sqlite3_busy_timeout.
	// https://www.sqlite.org/c3ref/busy_timeout.html
	BusyTimeout(time.Duration)
}

// Stmt is an sqlite3_stmt* prepared statement object.
// https://sqlite.org/c3ref/stmt.html
type Stmt interface {
	// Finalize is sqlite3_finalize.
	// https://sqlite.org/c3ref/finalize.html
	Finalize() error
	// Reset is sqlite3_reset.
	// https://www.sqlite.org/c3ref/reset.html
	Reset() error
	// ClearBindings is sqlite3_clear_bindings.
	// https://www.sqlite.org/c3ref/clear_bindings.html
	ClearBindings() error
	// SQL is sqlite3_sql.
	// https://www.sqlite.org/c3ref/expanded_sql.html
	SQL() string
	// Step is sqlite3_step.
	// 	For SQLITE_ROW, Step returns (true, nil).
	// 	For SQLITE_DONE, Step returns (false, nil).
	// 	For any error, Step returns (false, err).
	// https://www.sqlite.org/c3ref/step.html
	Step() (row bool, err error)
	// BindNull is sqlite3_bind_null.
	// https://sqlite.org/c3ref/bind_blob.html
	BindNull(col int) error
	// BindInt64 is sqlite3_bind_int64.
	// https://sqlite.org/c3ref/bind_blob.html
	BindInt64(col int, val int64) error
	// BindDouble is sqlite3_bind_double.
	// https://sqlite.org/c3ref/bind_blob.html
	BindDouble(col int, val float64) error
	// BindText64 is sqlite3_bind_text64 with SQLITE_TRANSIENT:
	// the engine copies val before returning.
	// https://sqlite.org/c3ref/bind_blob.html
	BindText64(col int, val string) error
	// BindBlob64 is sqlite3_bind_blob64 with SQLITE_TRANSIENT:
	// the engine copies val before returning.
	// https://sqlite.org/c3ref/bind_blob.html
	BindBlob64(col int, val []byte) error
	// BindParameterCount is sqlite3_bind_parameter_count.
	// https://sqlite.org/c3ref/bind_parameter_count.html
	BindParameterCount() int
	// BindParameterIndex is sqlite3_bind_parameter_index.
	// Returns zero if no matching parameter is found.
	// https://sqlite.org/c3ref/bind_parameter_index.html
	BindParameterIndex(name string) int
	// ColumnCount is sqlite3_column_count.
	// https://sqlite.org/c3ref/column_count.html
	ColumnCount() int
	// DataCount is sqlite3_data_count.
	// https://sqlite.org/c3ref/data_count.html
	DataCount() int
	// ColumnName is sqlite3_column_name.
	// https://sqlite.org/c3ref/column_name.html
	ColumnName(col int) string
	// ColumnType is sqlite3_column_type.
	// https://www.sqlite.org/c3ref/column_blob.html
	ColumnType(col int) ColumnType
	// ColumnInt64 is sqlite3_column_int64.
	// https://sqlite.org/c3ref/column_blob.html
	ColumnInt64(col int) int64
	// ColumnDouble is sqlite3_column_double.
	// https://sqlite.org/c3ref/column_blob.html
	ColumnDouble(col int) float64
	// ColumnText is sqlite3_column_text, copied into Go memory.
	// https://sqlite.org/c3ref/column_blob.html
	ColumnText(col int) string
	// ColumnBlob is sqlite3_column_blob.
	//
	// WARNING: The returned memory is managed by C and is only valid until
	//          another call is made on this Stmt.
	//
	// A zero-length blob is reported by the engine as a NULL pointer,
	// for which ColumnBlob returns nil.
	//
	// https://sqlite.org/c3ref/column_blob.html
	ColumnBlob(col int) []byte
}

// TraceConnID identifies a connection in Tracer callbacks.
type TraceConnID int

// Tracer is called by package sqlite as connections are used.
// Implementations must be safe for concurrent use.
type Tracer interface {
	// Open is called after every attempt to open a connection.
	Open(id TraceConnID, location string, err error)

	// Query is called after a statement is executed: a batch script,
	// or the first step of a prepared query.
	Query(id TraceConnID, query string, duration time.Duration, err error)

	// Close is called when a connection is closed.
	Close(id TraceConnID, err error)

	// BeginTx is called after a database/sql driver transaction begins,
	// or fails to. beginCtx is the context passed to BeginTx.
	BeginTx(beginCtx context.Context, id TraceConnID, readOnly bool, err error)

	// Commit is called after a transaction is committed.
	Commit(id TraceConnID, err error)

	// Rollback is called after a transaction is rolled back.
	Rollback(id TraceConnID, err error)
}
