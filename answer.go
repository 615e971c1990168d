package sqlite

import (
	"iter"

	"github.com/tinysqlite/sqlite/sqliteh"
)

// Answer holds the cursor of an executed Query.
//
// Rows come out of an Answer in one of two ways. Row hands over the
// current row together with the cursor: the Answer is spent and the Row
// must be closed. Next lends out one row at a time: each borrowed Row is
// valid until the next call to Next, and the Answer must be closed.
type Answer struct {
	q     *Query
	fresh bool // the cursor's current row has not been handed out
	spent bool
}

// Row returns the current row as an owned Row, advancing the cursor if
// its current row was already returned by Next. If there is no row the
// error is ErrNoRow.
//
// Row always consumes the Answer: on error the cursor is returned to the
// Query.
func (a *Answer) Row() (*Row, error) {
	const loc = "Answer.Row"
	if a.spent {
		return nil, closedError(loc)
	}
	q := a.q
	if !a.fresh && !q.done {
		if _, err := q.step(loc); err != nil {
			a.Close()
			return nil, err
		}
	}
	if !q.hasRow {
		a.Close()
		return nil, errorf(KindNoRow, loc, "query produced no row").withQuery(q.sql)
	}
	a.fresh = false
	a.spent = true
	return &Row{q: q, gen: q.gen, owned: true}, nil
}

// Next returns the next row as a borrowed Row. The first call returns
// the row produced by Execute. At the end of the rows Next returns
// (nil, nil); it never steps a finished cursor again.
func (a *Answer) Next() (*Row, error) {
	const loc = "Answer.Next"
	if a.spent {
		return nil, closedError(loc)
	}
	q := a.q
	if !a.fresh {
		if q.done {
			return nil, nil
		}
		if _, err := q.step(loc); err != nil {
			return nil, err
		}
	}
	a.fresh = false
	if !q.hasRow {
		return nil, nil
	}
	return &Row{q: q, gen: q.gen}, nil
}

// All iterates over the remaining rows as borrowed Rows, closing the
// Answer when done. An error ends the iteration.
func (a *Answer) All() iter.Seq2[*Row, error] {
	return func(yield func(*Row, error) bool) {
		defer a.Close()
		for {
			row, err := a.Next()
			if err != nil {
				yield(nil, err)
				return
			}
			if row == nil || !yield(row, nil) {
				return
			}
		}
	}
}

// Close returns the cursor to the Query, resetting the statement.
// Borrowed Rows become unreadable. Calling Close again does nothing.
func (a *Answer) Close() error {
	if a.spent {
		return nil
	}
	a.spent = true
	a.q.checkin()
	return nil
}

// Row is one result row.
//
// An owned Row, from Answer.Row or Conn.QueryRow, holds the cursor
// until Close. A borrowed Row, from Answer.Next, reads through the
// Answer's cursor and needs no Close.
type Row struct {
	q         *Query
	gen       uint64
	owned     bool
	ownsQuery bool // Close also closes q
	closed    bool
}

// current checks the row can still be read.
func (r *Row) current(loc string) error {
	switch {
	case r.closed:
		return closedError(loc)
	case !r.q.hasRow:
		return errorf(KindNoRow, loc, "cursor has no row").withQuery(r.q.sql)
	case r.gen != r.q.gen:
		return wrapf(KindMisuse, loc, ErrStaleRow, "cursor moved past this row").withQuery(r.q.sql)
	}
	return nil
}

// Len is the number of columns in the row, or 0 if the row can no longer
// be read.
func (r *Row) Len() (n int) {
	if r.current("Row.Len") != nil {
		return 0
	}
	r.q.use("Row.Len", func(s sqliteh.Stmt) error {
		n = s.DataCount()
		return nil
	})
	return n
}

// IsEmpty reports whether Len is 0.
func (r *Row) IsEmpty() bool { return r.Len() == 0 }

// ColumnName is the name of column col, counting from 0.
func (r *Row) ColumnName(col int) (name string) {
	r.q.use("Row.ColumnName", func(s sqliteh.Stmt) error {
		if col >= 0 && col < s.ColumnCount() {
			name = s.ColumnName(col)
		}
		return nil
	})
	return name
}

// Value reads column col, counting from 0, in its storage class.
// Text is checked to be UTF-8. Blobs are copied; an empty blob is an
// empty, non-nil slice.
func (r *Row) Value(col int) (Value, error) {
	return r.value("Row.Value", col)
}

func (r *Row) value(loc string, col int) (v Value, err error) {
	if err := r.current(loc); err != nil {
		return Value{}, err
	}
	err = r.q.use(loc, func(s sqliteh.Stmt) error {
		if n := s.DataCount(); col < 0 || col >= n {
			return errorf(KindMisuse, loc, "column %d out of range [0,%d)", col, n).withQuery(r.q.sql)
		}
		switch typ := s.ColumnType(col); typ {
		case sqliteh.SQLITE_INTEGER:
			v = Integer(s.ColumnInt64(col))
		case sqliteh.SQLITE_FLOAT:
			v = Real(s.ColumnDouble(col))
		case sqliteh.SQLITE_TEXT:
			var err error
			if v, err = textValue(s.ColumnText(col)); err != nil {
				return wrapf(KindConversion, loc, err, "column %d", col).withQuery(r.q.sql)
			}
		case sqliteh.SQLITE_BLOB:
			v = Blob(append([]byte{}, s.ColumnBlob(col)...))
		case sqliteh.SQLITE_NULL:
			v = Null()
		default:
			return errorf(KindEngine, loc, "column %d has unknown type %v", col, typ).withQuery(r.q.sql)
		}
		return nil
	})
	return v, err
}

// Read reads column col of row, counting from 0, as a T.
// See Convert for the rules; a pointer T reads NULL as nil.
func Read[T any](row *Row, col int) (T, error) {
	const loc = "Read"
	var t T
	v, err := row.value(loc, col)
	if err != nil {
		return t, err
	}
	if err := scanValue(v, &t); err != nil {
		return t, wrapf(KindConversion, loc, err, "column %d", col).withQuery(row.q.sql)
	}
	return t, nil
}

// Scan reads the first len(dst) columns into dst, as Value.Scan does.
func (r *Row) Scan(dst ...any) error {
	const loc = "Row.Scan"
	for i, d := range dst {
		v, err := r.value(loc, i)
		if err != nil {
			return err
		}
		if err := scanValue(v, d); err != nil {
			return wrapf(KindConversion, loc, err, "column %d", i).withQuery(r.q.sql)
		}
	}
	return nil
}

// Close returns the cursor of an owned Row to its Query, and closes the
// Query if the Row came from Conn.QueryRow. It does nothing for a
// borrowed Row.
func (r *Row) Close() error {
	if !r.owned || r.closed {
		return nil
	}
	r.closed = true
	r.q.checkin()
	if r.ownsQuery {
		return r.q.Close()
	}
	return nil
}
