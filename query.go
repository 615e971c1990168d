package sqlite

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/tinysqlite/sqlite/sqliteh"
)

// Query is a prepared statement on a Conn.
//
// A Query has one cursor. Execute hands it out in an Answer; until that
// Answer (or an owned Row taken from it) is closed, Bind and Execute fail
// with ErrCursorInUse.
type Query struct {
	conn *Conn
	h    *handle[sqliteh.Stmt]
	sql  string
	tail string

	out      atomic.Bool // the cursor is held by an Answer or owned Row
	orphaned atomic.Bool // finalized by Conn.Close

	// Cursor state.
	gen     uint64 // incremented on every step and reset
	stepped bool   // stepped since the last reset
	hasRow  bool   // the cursor is on a row
	done    bool   // the cursor finished or failed
}

func newQuery(c *Conn, stmt sqliteh.Stmt, tail string) *Query {
	return &Query{
		conn: c,
		h:    newHandle(stmt, sqliteh.Stmt.Finalize),
		sql:  stmt.SQL(),
		tail: tail,
	}
}

func (q *Query) use(loc string, fn func(sqliteh.Stmt) error) error {
	err := q.h.use(fn)
	if err == errReleased {
		return closedError(loc)
	}
	return err
}

func (q *Query) check(loc string, err error) error {
	return q.conn.check(loc, q.sql, err)
}

// SQL is the text of the prepared statement.
func (q *Query) SQL() string { return q.sql }

// Tail is the text after the prepared statement that Prepare did not
// compile. It is empty unless the SQL held more than one statement.
func (q *Query) Tail() string { return q.tail }

// idle checks that the cursor is not handed out, and resets the statement
// if an earlier execution left it stepped.
func (q *Query) idle(loc string) error {
	if q.h.isReleased() {
		return closedError(loc)
	}
	if q.out.Load() {
		return wrapf(KindMisuse, loc, ErrCursorInUse, "close the previous Answer first").withQuery(q.sql)
	}
	if !q.stepped {
		return nil
	}
	return q.use(loc, func(s sqliteh.Stmt) error {
		s.Reset() // repeats the error of a failed step, already reported
		q.rewind()
		return nil
	})
}

func (q *Query) rewind() {
	q.gen++
	q.stepped = false
	q.hasRow = false
	q.done = false
}

// step advances the cursor once.
func (q *Query) step(loc string) (row bool, err error) {
	err = q.use(loc, func(s sqliteh.Stmt) error {
		var err error
		row, err = s.Step()
		q.gen++
		q.stepped = true
		q.hasRow = row
		q.done = !row
		return q.check(loc, err)
	})
	return row, err
}

// checkin returns the cursor from an Answer or owned Row and resets the
// statement. Bindings are kept.
func (q *Query) checkin() {
	q.h.use(func(s sqliteh.Stmt) error {
		s.Reset()
		return nil
	})
	q.rewind()
	q.out.Store(false)
}

// Bind binds v to the parameter at col, counting from 1. v is converted
// with ValueOf; the engine copies text and blob content before Bind
// returns. The same Query is returned so binds can be chained.
//
// A failed Bind leaves the Query usable.
func (q *Query) Bind(col int, v any) (*Query, error) {
	const loc = "Query.Bind"
	val, err := toValue(v)
	if err != nil {
		return nil, wrapf(KindConversion, loc, err, "parameter %d", col).withQuery(q.sql)
	}
	if err := q.bindValue(loc, col, val); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Query) bindValue(loc string, col int, v Value) error {
	if err := q.idle(loc); err != nil {
		return err
	}
	return q.use(loc, func(s sqliteh.Stmt) error {
		var err error
		switch v.Type() {
		case sqliteh.SQLITE_INTEGER:
			err = s.BindInt64(col, v.i)
		case sqliteh.SQLITE_FLOAT:
			err = s.BindDouble(col, v.f)
		case sqliteh.SQLITE_TEXT:
			err = s.BindText64(col, v.s)
		case sqliteh.SQLITE_BLOB:
			err = s.BindBlob64(col, v.b)
		default:
			err = s.BindNull(col)
		}
		return q.check(loc, err)
	})
}

// BindAll binds args to the parameters 1 through len(args).
func (q *Query) BindAll(args ...any) error {
	for i, arg := range args {
		if _, err := q.Bind(i+1, arg); err != nil {
			return err
		}
	}
	return nil
}

// BindNamed binds v to the parameter called name. A name without one
// of the prefixes ":", "@", "$" or "?" is looked up with each of them.
func (q *Query) BindNamed(name string, v any) (*Query, error) {
	const loc = "Query.BindNamed"
	col := q.ParamIndex(name)
	if col == 0 {
		return nil, errorf(KindMisuse, loc, "unknown parameter name %q", name).withQuery(q.sql)
	}
	val, err := toValue(v)
	if err != nil {
		return nil, wrapf(KindConversion, loc, err, "parameter %q", name).withQuery(q.sql)
	}
	if err := q.bindValue(loc, col, val); err != nil {
		return nil, err
	}
	return q, nil
}

// ClearBindings sets every parameter back to NULL.
func (q *Query) ClearBindings() error {
	const loc = "Query.ClearBindings"
	if err := q.idle(loc); err != nil {
		return err
	}
	return q.use(loc, func(s sqliteh.Stmt) error {
		return q.check(loc, s.ClearBindings())
	})
}

// NumParams is the number of parameters in the statement.
func (q *Query) NumParams() (n int) {
	q.use("Query.NumParams", func(s sqliteh.Stmt) error {
		n = s.BindParameterCount()
		return nil
	})
	return n
}

// ParamIndex is the index of the parameter called name, or 0 if there is
// none. See BindNamed for how prefixes are matched.
func (q *Query) ParamIndex(name string) (col int) {
	if name == "" || hasNUL(name) {
		return 0
	}
	q.use("Query.ParamIndex", func(s sqliteh.Stmt) error {
		if strings.ContainsRune(":@$?", rune(name[0])) {
			col = s.BindParameterIndex(name)
			return nil
		}
		for _, prefix := range []string{":", "@", "$"} {
			if col = s.BindParameterIndex(prefix + name); col > 0 {
				return nil
			}
		}
		return nil
	})
	return col
}

// ColumnCount is the number of columns in the statement's result.
func (q *Query) ColumnCount() (n int) {
	q.use("Query.ColumnCount", func(s sqliteh.Stmt) error {
		n = s.ColumnCount()
		return nil
	})
	return n
}

// ColumnNames are the names of the statement's result columns.
func (q *Query) ColumnNames() (names []string) {
	q.use("Query.ColumnNames", func(s sqliteh.Stmt) error {
		names = make([]string, s.ColumnCount())
		for i := range names {
			names[i] = s.ColumnName(i)
		}
		return nil
	})
	return names
}

// Execute steps the statement once and returns the Answer holding its
// cursor. Producing a row and finishing are both successes. After a
// failure the Query stays usable and the next Execute starts over.
func (q *Query) Execute() (*Answer, error) {
	const loc = "Query.Execute"
	if err := q.idle(loc); err != nil {
		return nil, err
	}
	start := time.Now()
	row, err := q.step(loc)
	q.conn.trace(q.sql, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	q.out.Store(true)
	return &Answer{q: q, fresh: row}, nil
}

// Close finalizes the statement. Answers and Rows still using it report
// ErrClosed afterwards. Calling Close again does nothing.
func (q *Query) Close() error {
	if q.h.isReleased() {
		if !q.orphaned.Load() {
			UsesAfterClose.Add("Query.Close", 1)
		}
		return nil
	}
	q.conn.forget(q)
	q.out.Store(false)
	return q.conn.check("Query.Close", q.sql, q.h.release())
}
