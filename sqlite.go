// Package sqlite is a safe layer over the SQLite C handle API.
//
// A Conn owns an sqlite3* connection, a Query owns an sqlite3_stmt*.
// Both release their handle exactly once, on Close; any later use
// reports ErrClosed instead of touching freed memory.
//
// # Binding and reading
//
// Parameters are bound with Query.Bind, which converts any Go value with
// ValueOf. Bind columns are 1-based, like the engine's. Executing a Query
// steps it once and returns an Answer. Rows are read from the Answer
// either as one owned Row (Answer.Row) or one borrowed Row at a time
// (Answer.Next). Read columns are 0-based, again like the engine's:
//
//	q, err := conn.Prepare("SELECT name, age FROM people WHERE id = ?")
//	if err != nil {
//		// handle err
//	}
//	defer q.Close()
//	if _, err := q.Bind(1, id); err != nil {
//		// handle err
//	}
//	a, err := q.Execute()
//	if err != nil {
//		// handle err
//	}
//	row, err := a.Row()
//	if err != nil {
//		// handle err, errors.Is(err, sqlite.ErrNoRow) if there was none
//	}
//	defer row.Close()
//	name, err := sqlite.Read[string](row, 0)
//	age, err := sqlite.Read[*int](row, 1) // nil if age IS NULL
//
// Values are never coerced between storage classes: reading TEXT into an
// int fails with ErrConversion rather than guessing.
//
// # Cursors
//
// A Query has one cursor. While an Answer, or an owned Row taken from it,
// is open, binding or executing the Query again fails with ErrCursorInUse.
// Closing the Answer (or the owned Row) resets the statement, keeping its
// bindings, so the next Execute starts again from the first row.
//
// A borrowed Row is only valid until its Answer advances: reading it
// afterwards reports ErrStaleRow, or ErrNoRow once the rows ran out.
//
// # Threads
//
// Connections are always opened with SQLITE_OPEN_FULLMUTEX; opening fails
// with ErrUnsafeMode if that is not possible. A Conn may be shared between
// goroutines. A Query and its Answer and Rows must not be used
// concurrently.
package sqlite

import (
	"expvar"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinysqlite/sqlite/sqliteh"
	"go4.org/mem"
)

// Engine is the SQLite library used to open connections.
// It is set by the cgo binding when it is linked in.
var Engine sqliteh.Engine

var maxConnID atomic.Int32

// UsesAfterClose is a metric that is incremented every time an operation is
// attempted on a connection or query after Close has already been called.
// The keys are the names of the operations.
var UsesAfterClose expvar.Map

// Config configures a connection opened with OpenWith.
type Config struct {
	// Tracer, if not nil, is told about the connection's open, queries
	// and close.
	Tracer sqliteh.Tracer

	// BusyTimeout, if positive, is passed to sqlite3_busy_timeout.
	BusyTimeout time.Duration

	// VFS names the sqlite3_vfs to open with. Empty means the default.
	VFS string

	// Init is called on the new connection before OpenWith returns.
	// Any error closes the connection.
	Init func(*Conn) error
}

// Conn is an open SQLite connection.
type Conn struct {
	h        *handle[sqliteh.DB]
	id       sqliteh.TraceConnID
	tracer   sqliteh.Tracer
	location string

	mu     sync.Mutex
	closed bool
	stmts  map[*Query]struct{} // open queries, finalized by Close
}

// Open opens the database at location, creating it if it does not
// exist.
func Open(location string) (*Conn, error) {
	return OpenWith(location, sqliteh.SQLITE_OPEN_READWRITE|sqliteh.SQLITE_OPEN_CREATE, nil)
}

// OpenURI opens a database named by a file: URI, such as
// "file:name?mode=memory". URI parameters are passed to the engine as is.
func OpenURI(uri string) (*Conn, error) {
	return OpenWith(uri, sqliteh.SQLITE_OPEN_READWRITE|sqliteh.SQLITE_OPEN_URI, nil)
}

// OpenWith opens location with flags, which always gain
// SQLITE_OPEN_FULLMUTEX. cfg may be nil.
func OpenWith(location string, flags sqliteh.OpenFlags, cfg *Config) (*Conn, error) {
	const loc = "Open"
	if cfg == nil {
		cfg = &Config{}
	}
	if hasNUL(location) {
		return nil, errorf(KindMalformed, loc, "location %q contains a NUL byte", location)
	}
	if hasNUL(cfg.VFS) {
		return nil, errorf(KindMalformed, loc, "vfs %q contains a NUL byte", cfg.VFS)
	}
	if flags&sqliteh.SQLITE_OPEN_NOMUTEX != 0 {
		return nil, wrapf(KindMisuse, loc, ErrUnsafeMode, "%v is not supported", sqliteh.SQLITE_OPEN_NOMUTEX)
	}
	if Engine == nil {
		return nil, errorf(KindMisuse, loc, "no SQLite engine linked (build with cgo)")
	}
	if Engine.Threadsafe() == 0 {
		return nil, wrapf(KindMisuse, loc, ErrUnsafeMode, "SQLite library was built with SQLITE_THREADSAFE=0")
	}
	flags |= sqliteh.SQLITE_OPEN_FULLMUTEX

	id := sqliteh.TraceConnID(maxConnID.Add(1))
	db, err := Engine.Open(location, flags, cfg.VFS)
	if err != nil {
		err = checkResult(db, loc, "", err)
		if db != nil {
			db.Close()
		}
		if cfg.Tracer != nil {
			cfg.Tracer.Open(id, location, err)
		}
		return nil, err
	}
	c := &Conn{
		h:        newHandle(db, sqliteh.DB.Close),
		id:       id,
		tracer:   cfg.Tracer,
		location: location,
	}
	if c.tracer != nil {
		c.tracer.Open(id, location, nil)
	}
	if cfg.BusyTimeout > 0 {
		db.BusyTimeout(cfg.BusyTimeout)
	}
	if cfg.Init != nil {
		if err := cfg.Init(c); err != nil {
			c.Close()
			return nil, fmt.Errorf("sqlite.Config.Init: %w", err)
		}
	}
	return c, nil
}

func hasNUL(s string) bool { return mem.IndexByte(mem.S(s), 0) >= 0 }

// use runs fn on the connection handle.
func (c *Conn) use(loc string, fn func(sqliteh.DB) error) error {
	err := c.h.use(fn)
	if err == errReleased {
		return closedError(loc)
	}
	return err
}

// check maps an engine result for query to an error, adding the
// connection's last error message while the connection is open.
func (c *Conn) check(loc, query string, err error) error {
	if err == nil {
		return nil
	}
	var res error
	if c.h.use(func(db sqliteh.DB) error {
		res = checkResult(db, loc, query, err)
		return nil
	}) != nil {
		res = checkResult(nil, loc, query, err)
	}
	return res
}

func (c *Conn) trace(query string, d time.Duration, err error) {
	if c.tracer != nil {
		c.tracer.Query(c.id, query, d, err)
	}
}

// ID identifies the connection in Tracer callbacks.
func (c *Conn) ID() sqliteh.TraceConnID { return c.id }

// Location is the location the connection was opened with.
func (c *Conn) Location() string { return c.location }

// Prepare compiles the first SQL statement in sql.
// Text after the first statement is not compiled; it is reported by
// Query.Tail. SQL with no statement in it is ErrMalformed.
func (c *Conn) Prepare(sql string) (*Query, error) {
	const loc = "Conn.Prepare"
	if hasNUL(sql) {
		return nil, errorf(KindMalformed, loc, "SQL contains a NUL byte").withQuery(sql)
	}
	var q *Query
	err := c.use(loc, func(db sqliteh.DB) error {
		stmt, tail, err := db.Prepare(sql)
		if err != nil {
			return checkResult(db, loc, sql, err)
		}
		if stmt == nil {
			return errorf(KindMalformed, loc, "no SQL statement").withQuery(sql)
		}
		q = newQuery(c, stmt, tail)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		q.h.release()
		return nil, closedError(loc)
	}
	if c.stmts == nil {
		c.stmts = make(map[*Query]struct{})
	}
	c.stmts[q] = struct{}{}
	return q, nil
}

func (c *Conn) forget(q *Query) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stmts, q)
}

// ExecScript executes a set of SQL queries with sqlite3_exec.
// It stops on the first error; statements before it stay executed.
// It is recommended you wrap your script in a BEGIN; ... COMMIT; block.
func (c *Conn) ExecScript(sql string) error {
	const loc = "Conn.ExecScript"
	if hasNUL(sql) {
		return errorf(KindMalformed, loc, "SQL contains a NUL byte").withQuery(sql)
	}
	start := time.Now()
	err := c.use(loc, func(db sqliteh.DB) error {
		return checkResult(db, loc, sql, db.Exec(sql))
	})
	c.trace(sql, time.Since(start), err)
	return err
}

// Exec prepares sql, binds args to its parameters in order, runs it to
// its first row or completion, and finalizes it.
func (c *Conn) Exec(sql string, args ...any) error {
	q, err := c.Prepare(sql)
	if err != nil {
		return err
	}
	defer q.Close()
	if err := q.BindAll(args...); err != nil {
		return err
	}
	a, err := q.Execute()
	if err != nil {
		return err
	}
	return a.Close()
}

// QueryRow prepares sql, binds args and returns its first row.
// The Row owns the statement: closing it finalizes the statement.
// If there is no row, the error is ErrNoRow.
func (c *Conn) QueryRow(sql string, args ...any) (*Row, error) {
	q, err := c.Prepare(sql)
	if err != nil {
		return nil, err
	}
	if err := q.BindAll(args...); err != nil {
		q.Close()
		return nil, err
	}
	a, err := q.Execute()
	if err != nil {
		q.Close()
		return nil, err
	}
	row, err := a.Row()
	if err != nil {
		q.Close()
		return nil, err
	}
	row.ownsQuery = true
	return row, nil
}

// Changes is the number of rows changed by the most recent INSERT,
// UPDATE or DELETE on the connection.
func (c *Conn) Changes() (n int) {
	c.use("Conn.Changes", func(db sqliteh.DB) error {
		n = db.Changes()
		return nil
	})
	return n
}

// LastInsertRowID is the rowid of the most recent successful INSERT on
// the connection.
func (c *Conn) LastInsertRowID() (id int64) {
	c.use("Conn.LastInsertRowID", func(db sqliteh.DB) error {
		id = db.LastInsertRowid()
		return nil
	})
	return id
}

// BusyTimeout calls sqlite3_busy_timeout on the connection.
func (c *Conn) BusyTimeout(d time.Duration) error {
	return c.use("Conn.BusyTimeout", func(db sqliteh.DB) error {
		db.BusyTimeout(d)
		return nil
	})
}

// Close finalizes every Query still open on the connection, then closes
// it. Calling Close again does nothing.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		UsesAfterClose.Add("Conn.Close", 1)
		return nil
	}
	c.closed = true
	stmts := c.stmts
	c.stmts = nil
	c.mu.Unlock()

	for q := range stmts {
		q.orphaned.Store(true)
		q.h.release()
		q.out.Store(false)
	}
	err := checkResult(nil, "Conn.Close", "", c.h.release())
	if c.tracer != nil {
		c.tracer.Close(c.id, err)
	}
	return err
}

// Version reports the version of the SQLite library.
func Version() (major, minor, patch int) {
	if Engine == nil {
		return 0, 0, 0
	}
	n := Engine.LibVersionNumber()
	return n / 1_000_000, n / 1000 % 1000, n % 1000
}

// VersionString reports the version of the SQLite library as
// "major.minor.patch".
func VersionString() string {
	major, minor, patch := Version()
	return strconv.Itoa(major) + "." + strconv.Itoa(minor) + "." + strconv.Itoa(patch)
}
