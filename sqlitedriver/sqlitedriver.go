// Package sqlitedriver implements a database/sql driver on top of
// package sqlite.
//
// The driver is registered as "sqlitetiny". Names are opened with
// SQLITE_OPEN_URI, so file: URIs work:
//
//	db, err := sql.Open("sqlitetiny", "file:/path/to/db?_busy=1")
//
// # Initializing connections or tracing
//
// If you want to do initial configuration of a connection, or enable
// tracing, use the Connector function:
//
//	connInitFunc := func(ctx context.Context, conn driver.ConnPrepareContext) error {
//		return sqlitedriver.ExecScript(conn.(sqlitedriver.SQLConn), "PRAGMA journal_mode=WAL;")
//	}
//	db, err = sql.OpenDB(sqlitedriver.Connector(sqliteURI, connInitFunc, nil))
//
// # Memory Mode
//
// In-memory databases are popular for tests. Use a shared-cache memory
// URI with a name unique to the database so every connection in the
// database/sql pool sees the same data:
//
//	file:dbname?mode=memory&cache=shared
//
// # Types
//
// Arguments are bound with sqlite.ValueOf, so bool, time.Time and
// encoding.TextMarshaler values are accepted besides the database/sql
// driver types. A driver.Valuer, such as sql.NullString, is bound as the
// value its Value method returns. Columns are returned in their storage class: int64,
// float64, string, []byte or nil.
package sqlitedriver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/tinysqlite/sqlite"
	"github.com/tinysqlite/sqlite/sqliteh"
)

// DriverName is the name the driver is registered under.
const DriverName = "sqlitetiny"

func init() {
	sql.Register(DriverName, drv{})
}

// ConnInitFunc is a function called by the driver on new connections.
//
// The conn can be used to execute queries, and implements SQLConn.
// Any error return closes the conn and passes the error to database/sql.
type ConnInitFunc func(ctx context.Context, conn driver.ConnPrepareContext) error

type drv struct{}

func (drv) Open(name string) (driver.Conn, error) {
	return (&connector{name: name}).Connect(context.Background())
}

func (drv) OpenConnector(name string) (driver.Connector, error) {
	return &connector{name: name}, nil
}

// Connector returns a driver.Connector for sql.OpenDB.
// connInitFunc and tracer may be nil.
func Connector(sqliteURI string, connInitFunc ConnInitFunc, tracer sqliteh.Tracer) driver.Connector {
	return &connector{
		name:         sqliteURI,
		tracer:       tracer,
		connInitFunc: connInitFunc,
	}
}

type connector struct {
	name         string
	tracer       sqliteh.Tracer
	connInitFunc ConnInitFunc
}

func (p *connector) Driver() driver.Driver { return drv{} }

func (p *connector) Connect(ctx context.Context) (driver.Conn, error) {
	const flags = sqliteh.SQLITE_OPEN_READWRITE | sqliteh.SQLITE_OPEN_CREATE | sqliteh.SQLITE_OPEN_URI
	sc, err := sqlite.OpenWith(p.name, flags, &sqlite.Config{Tracer: p.tracer})
	if err != nil {
		return nil, err
	}
	c := &conn{c: sc, tracer: p.tracer}
	if p.connInitFunc != nil {
		if err := p.connInitFunc(ctx, c); err != nil {
			sc.Close()
			return nil, fmt.Errorf("sqlitedriver.ConnInitFunc: %w", err)
		}
	}
	return c, nil
}

type txState int

const (
	txStateNone  = txState(0) // connection is not connected to a Tx
	txStateBegun = txState(1) // "BEGIN" has been executed
)

type conn struct {
	c        *sqlite.Conn
	tracer   sqliteh.Tracer
	stmts    map[string]*stmt // persisted statements
	txState  txState
	readOnly bool
	closed   bool
}

var (
	_ driver.ConnPrepareContext = (*conn)(nil)
	_ driver.ConnBeginTx        = (*conn)(nil)
	_ driver.NamedValueChecker  = (*conn)(nil)
	_ driver.StmtExecContext    = (*stmt)(nil)
	_ driver.StmtQueryContext   = (*stmt)(nil)
)

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *conn) Close() error {
	if c.closed {
		sqlite.UsesAfterClose.Add("driver.Conn.Close", 1)
		return nil
	}
	c.closed = true
	for q, s := range c.stmts {
		s.q.Close()
		delete(c.stmts, q)
	}
	return c.c.Close()
}

func (c *conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	persist := ctx.Value(persistQuery{}) != nil
	return c.prepare(query, persist)
}

func (c *conn) prepare(query string, persist bool) (*stmt, error) {
	if c.closed {
		sqlite.UsesAfterClose.Add("driver.prepare", 1)
		return nil, sqlite.ErrClosed
	}

	query = strings.TrimSpace(query)
	if s := c.stmts[query]; s != nil {
		// don't hand the same statement out twice; this is re-added on s.Close
		delete(c.stmts, query)
		s.closed = false
		return s, nil
	}
	q, err := c.c.Prepare(query)
	if err != nil {
		return nil, err
	}
	if rem := strings.TrimSpace(q.Tail()); rem != "" {
		q.Close()
		return nil, &sqlite.Error{
			Kind:  sqlite.KindMisuse,
			Loc:   "Prepare",
			Query: query,
			Msg:   fmt.Sprintf("query has trailing text: %q", rem),
		}
	}
	return &stmt{conn: c, q: q, query: query, persist: persist}, nil
}

func (c *conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if c.closed {
		sqlite.UsesAfterClose.Add("driver.BeginTx", 1)
		return nil, sqlite.ErrClosed
	}

	const LevelSerializable = 6 // matches the sql package constant
	if opts.Isolation != 0 && opts.Isolation != LevelSerializable {
		return nil, errors.New("sqlitedriver only supports serializable isolation level")
	}
	readOnly := opts.ReadOnly || IsReadOnly(ctx)
	var err error
	if readOnly {
		if err = c.c.ExecScript("BEGIN; PRAGMA query_only=true;"); err != nil {
			// BEGIN may have succeeded.
			c.c.ExecScript("ROLLBACK; PRAGMA query_only=false;")
		}
	} else {
		err = c.c.ExecScript("BEGIN IMMEDIATE;")
	}
	if c.tracer != nil {
		c.tracer.BeginTx(ctx, c.c.ID(), readOnly, err)
	}
	if err != nil {
		return nil, err
	}
	c.readOnly = readOnly
	c.txState = txStateBegun
	return &connTx{conn: c}, nil
}

// CheckNamedValue accepts every argument sqlite.ValueOf can convert.
// A driver.Valuer is converted through the value it returns.
func (c *conn) CheckNamedValue(nv *driver.NamedValue) error {
	x := nv.Value
	if vr, ok := x.(driver.Valuer); ok {
		var err error
		if x, err = callValuer(vr); err != nil {
			return err
		}
	}
	v, err := sqlite.ValueOf(x)
	if err != nil {
		return err
	}
	nv.Value = v.Any()
	return nil
}

var valuerType = reflect.TypeFor[driver.Valuer]()

// callValuer calls vr.Value. A nil pointer to a type with a value
// receiver Value method is NULL.
func callValuer(vr driver.Valuer) (driver.Value, error) {
	if rv := reflect.ValueOf(vr); rv.Kind() == reflect.Pointer && rv.IsNil() && rv.Type().Elem().Implements(valuerType) {
		return nil, nil
	}
	return vr.Value()
}

// Raw is so ConnInitFunc can cast to SQLConn.
func (c *conn) Raw(fn func(any) error) error { return fn(c) }

func (c *conn) txEnd(endStmt string) error {
	state, readOnly := c.txState, c.readOnly
	c.txState = txStateNone
	c.readOnly = false
	if state != txStateBegun {
		return nil
	}

	err := c.c.ExecScript(endStmt)
	if readOnly {
		if err2 := c.c.ExecScript("PRAGMA query_only=false;"); err == nil {
			err = err2
		}
	}
	return err
}

type readOnlyKey struct{}

// ReadOnly makes transactions begun with ctx read-only, by applying the
// query_only pragma to the connection for the length of the transaction.
func ReadOnly(ctx context.Context) context.Context {
	return context.WithValue(ctx, readOnlyKey{}, true)
}

// IsReadOnly reports whether the context has the ReadOnly key.
func IsReadOnly(ctx context.Context) bool {
	return ctx.Value(readOnlyKey{}) != nil
}

type connTx struct {
	conn *conn
}

func (tx *connTx) Commit() error {
	if tx.conn.closed {
		sqlite.UsesAfterClose.Add("driver.tx.Commit", 1)
		return sqlite.ErrClosed
	}

	err := tx.conn.txEnd("COMMIT;")
	if tx.conn.tracer != nil {
		tx.conn.tracer.Commit(tx.conn.c.ID(), err)
	}
	return err
}

func (tx *connTx) Rollback() error {
	if tx.conn.closed {
		sqlite.UsesAfterClose.Add("driver.tx.Rollback", 1)
		return sqlite.ErrClosed
	}

	err := tx.conn.txEnd("ROLLBACK;")
	if tx.conn.tracer != nil {
		tx.conn.tracer.Rollback(tx.conn.c.ID(), err)
	}
	return err
}

type stmt struct {
	conn    *conn
	q       *sqlite.Query
	query   string
	persist bool // true if stmt is cached and lives beyond Close
	closed  bool
}

func (s *stmt) NumInput() int {
	if s.closed {
		sqlite.UsesAfterClose.Add("driver.stmt.NumInput", 1)
		return 0
	}
	return s.q.NumParams()
}

func (s *stmt) Close() error {
	if s.closed {
		sqlite.UsesAfterClose.Add("driver.stmt.Close", 1)
		return nil
	}
	s.closed = true
	if s.conn.closed {
		return nil
	}

	// We return this statement to the conn only if it's persistent, and
	// only if there's not already a statement with the same query already
	// cached there.
	if s.persist {
		if _, alreadyPersisted := s.conn.stmts[s.query]; !alreadyPersisted {
			if err := s.q.ClearBindings(); err != nil {
				return err
			}
			if s.conn.stmts == nil {
				s.conn.stmts = make(map[string]*stmt)
			}
			s.conn.stmts[s.query] = s
			return nil
		}
	}
	return s.q.Close()
}

func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), valuesToNamed(args))
}

func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), valuesToNamed(args))
}

func valuesToNamed(args []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return named
}

func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if s.closed {
		sqlite.UsesAfterClose.Add("driver.stmt.ExecContext", 1)
		return nil, sqlite.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.bindAll(args); err != nil {
		return nil, err
	}
	a, err := s.q.Execute()
	if err != nil {
		return nil, err
	}
	a.Close()
	return getStmtResult(s.conn.c.LastInsertRowID(), int64(s.conn.c.Changes())), nil
}

var (
	stmtResultZeroRows = &stmtResult{}
	stmtResultOneRow   = &stmtResult{rowsAffected: 1}
)

func getStmtResult(lastInsertID int64, rowsAffected int64) *stmtResult {
	// Some common cases to avoid allocs:
	if lastInsertID == 0 {
		switch rowsAffected {
		case 0:
			return stmtResultZeroRows
		case 1:
			return stmtResultOneRow
		}
	}
	return &stmtResult{lastInsertID: lastInsertID, rowsAffected: rowsAffected}
}

type stmtResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (res *stmtResult) LastInsertId() (int64, error) { return res.lastInsertID, nil }
func (res *stmtResult) RowsAffected() (int64, error) { return res.rowsAffected, nil }

func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if s.closed {
		sqlite.UsesAfterClose.Add("driver.stmt.QueryContext", 1)
		return nil, sqlite.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.bindAll(args); err != nil {
		return nil, err
	}
	a, err := s.q.Execute()
	if err != nil {
		return nil, err
	}
	return &rows{stmt: s, a: a}, nil
}

func (s *stmt) bindAll(args []driver.NamedValue) error {
	if err := s.q.ClearBindings(); err != nil {
		return err
	}
	for _, arg := range args {
		var err error
		if arg.Name != "" {
			_, err = s.q.BindNamed(arg.Name, arg.Value)
		} else {
			_, err = s.q.Bind(arg.Ordinal, arg.Value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

type rows struct {
	stmt     *stmt
	a        *sqlite.Answer
	closed   bool
	colNames []string // filled on call to Columns
}

func (r *rows) Columns() []string {
	if r.closed {
		panic("Columns called after Rows was closed")
	}
	if r.colNames == nil {
		r.colNames = r.stmt.q.ColumnNames()
	}
	return append([]string{}, r.colNames...)
}

func (r *rows) Close() error {
	if r.closed {
		return errors.New("sqlitedriver rows result already closed")
	}
	r.closed = true
	return r.a.Close()
}

func (r *rows) Next(dest []driver.Value) error {
	if r.closed {
		return errors.New("sqlitedriver rows result already closed")
	}
	row, err := r.a.Next()
	if err != nil {
		return err
	}
	if row == nil {
		return io.EOF
	}
	for i := range dest {
		v, err := row.Value(i)
		if err != nil {
			return err
		}
		dest[i] = v.Any()
	}
	return nil
}

// SQLConn is a database/sql.Conn.
// (We cannot create a circular package dependency here.)
type SQLConn interface {
	Raw(func(driverConn any) error) error
}

// Raw calls fn with the *sqlite.Conn under sqlconn.
func Raw(sqlconn SQLConn, fn func(*sqlite.Conn) error) error {
	return sqlconn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*conn)
		if !ok {
			return fmt.Errorf("sqlitedriver.Raw: sql.Conn is not the sqlitedriver driver: %T", driverConn)
		}
		return fn(c.c)
	})
}

// ExecScript executes a set of SQL queries on an sql.Conn.
// It stops on the first error.
// It is recommended you wrap your script in a BEGIN; ... COMMIT; block.
//
// Usage:
//
//	c, err := db.Conn(ctx)
//	if err != nil {
//		// handle err
//	}
//	if err := sqlitedriver.ExecScript(c, queries); err != nil {
//		// handle err
//	}
//	c.Close() // return sql.Conn to pool
func ExecScript(sqlconn SQLConn, queries string) error {
	return Raw(sqlconn, func(c *sqlite.Conn) error {
		return c.ExecScript(queries)
	})
}

// WithPersist makes a ctx instruct the driver to persist a prepared query.
//
// This should be used with recurring queries to avoid constant parsing and
// planning of the query by SQLite.
func WithPersist(ctx context.Context) context.Context {
	return context.WithValue(ctx, persistQuery{}, persistQuery{})
}

// persistQuery is used as a context value.
type persistQuery struct{}
