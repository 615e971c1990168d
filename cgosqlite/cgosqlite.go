package cgosqlite

// The engine is the system libsqlite3. Its compile-time options are
// whatever the platform chose; package sqlite checks sqlite3_threadsafe
// at open time instead of assuming them.

// #cgo LDFLAGS: -lsqlite3
// #cgo linux LDFLAGS: -ldl -lm
// #cgo linux CFLAGS: -std=c99
//
// #include <stdint.h>
// #include <stdlib.h>
// #include <string.h>
// #include <sqlite3.h>
//
// static int bind_text64(sqlite3_stmt* stmt, int col, const char* str, sqlite3_uint64 n) {
// 	if (n == 0) {
// 		return sqlite3_bind_text(stmt, col, "", 0, SQLITE_STATIC);
// 	}
// 	return sqlite3_bind_text64(stmt, col, str, n, SQLITE_TRANSIENT, SQLITE_UTF8);
// }
//
// static int bind_blob64(sqlite3_stmt* stmt, int col, const void* b, sqlite3_uint64 n) {
// 	if (n == 0) {
// 		return sqlite3_bind_zeroblob(stmt, col, 0);
// 	}
// 	return sqlite3_bind_blob64(stmt, col, b, n, SQLITE_TRANSIENT);
// }
//
// static int bind_parameter_index(sqlite3_stmt* stmt, _GoString_ name) {
// 	char buf[256];
// 	size_t n = _GoStringLen(name);
// 	char* p = buf;
// 	int res;
// 	if (n >= sizeof(buf)) {
// 		p = malloc(n + 1);
// 		if (p == NULL) {
// 			return 0;
// 		}
// 	}
// 	memcpy(p, _GoStringPtr(name), n);
// 	p[n] = 0;
// 	res = sqlite3_bind_parameter_index(stmt, p);
// 	if (p != buf) {
// 		free(p);
// 	}
// 	return res;
// }
import "C"
import (
	"time"
	"unsafe"

	"github.com/tinysqlite/sqlite/sqliteh"
)

func init() {
	C.sqlite3_initialize()
}

// Engine is the process-wide SQLite library.
type Engine struct{}

var (
	_ sqliteh.Engine = Engine{}
	_ sqliteh.DB     = (*DB)(nil)
	_ sqliteh.Stmt   = (*Stmt)(nil)
)

// Open is sqlite3_open_v2.
//
// Surprisingly: an error opening the DB can return a non-nil handle.
// Call Close on it.
//
// https://sqlite.org/c3ref/open.html
func (Engine) Open(filename string, flags sqliteh.OpenFlags, vfs string) (sqliteh.DB, error) {
	cfilename := C.CString(filename)
	defer C.free(unsafe.Pointer(cfilename))

	cvfs := (*C.char)(nil)
	if vfs != "" {
		cvfs = C.CString(vfs)
		defer C.free(unsafe.Pointer(cvfs))
	}

	var cdb *C.sqlite3
	res := C.sqlite3_open_v2(cfilename, &cdb, C.int(flags), cvfs)
	err := errCode(res)
	if cdb == nil {
		if err == nil {
			err = sqliteh.ErrCode(sqliteh.SQLITE_NOMEM)
		}
		return nil, err
	}
	return &DB{db: cdb}, err
}

// ErrStr is sqlite3_errstr.
// https://sqlite.org/c3ref/errcode.html
func (Engine) ErrStr(code sqliteh.Code) string {
	return C.GoString(C.sqlite3_errstr(C.int(code)))
}

// LibVersionNumber is sqlite3_libversion_number.
// https://sqlite.org/c3ref/libversion.html
func (Engine) LibVersionNumber() int {
	return int(C.sqlite3_libversion_number())
}

// Threadsafe is sqlite3_threadsafe.
// https://sqlite.org/c3ref/threadsafe.html
func (Engine) Threadsafe() int {
	return int(C.sqlite3_threadsafe())
}

// DB is an sqlite3* database connection object.
// https://sqlite.org/c3ref/sqlite3.html
type DB struct {
	db *C.sqlite3
}

// Stmt is an sqlite3_stmt* database connection object.
// https://sqlite.org/c3ref/stmt.html
type Stmt struct {
	db   *DB
	stmt *C.sqlite3_stmt
}

// Close is sqlite3_close_v2.
// https://sqlite.org/c3ref/close.html
func (db *DB) Close() error {
	return errCode(C.sqlite3_close_v2(db.db))
}

// ErrMsg is sqlite3_errmsg.
// https://sqlite.org/c3ref/errcode.html
func (db *DB) ErrMsg() string {
	return C.GoString(C.sqlite3_errmsg(db.db))
}

// Changes is sqlite3_changes.
// https://sqlite.org/c3ref/changes.html
func (db *DB) Changes() int {
	return int(C.sqlite3_changes(db.db))
}

// LastInsertRowid is sqlite3_last_insert_rowid.
// https://sqlite.org/c3ref/last_insert_rowid.html
func (db *DB) LastInsertRowid() int64 {
	return int64(C.sqlite3_last_insert_rowid(db.db))
}

// BusyTimeout is sqlite3_busy_timeout.
// https://www.sqlite.org/c3ref/busy_timeout.html
func (db *DB) BusyTimeout(d time.Duration) {
	C.sqlite3_busy_timeout(db.db, C.int(d/time.Millisecond))
}

// Exec is sqlite3_exec with no callback.
// https://sqlite.org/c3ref/exec.html
func (db *DB) Exec(queries string) error {
	csql := C.CString(queries)
	defer C.free(unsafe.Pointer(csql))
	return errCode(C.sqlite3_exec(db.db, csql, nil, nil, nil))
}

// Prepare is sqlite3_prepare_v2.
// https://www.sqlite.org/c3ref/prepare.html
func (db *DB) Prepare(query string) (stmt sqliteh.Stmt, remainingQuery string, err error) {
	csql := C.CString(query)
	defer C.free(unsafe.Pointer(csql))

	var cstmt *C.sqlite3_stmt
	var csqlTail *C.char
	res := C.sqlite3_prepare_v2(db.db, csql, C.int(len(query))+1, &cstmt, &csqlTail)
	if err := errCode(res); err != nil {
		return nil, "", err
	}
	if csqlTail != nil {
		remainingQuery = query[len(query)-int(C.strlen(csqlTail)):]
	}
	if cstmt == nil {
		return nil, remainingQuery, nil
	}
	return &Stmt{db: db, stmt: cstmt}, remainingQuery, nil
}

// SQL is sqlite3_sql.
// https://www.sqlite.org/c3ref/expanded_sql.html
func (stmt *Stmt) SQL() string {
	return C.GoString(C.sqlite3_sql(stmt.stmt))
}

// Reset is sqlite3_reset.
// https://www.sqlite.org/c3ref/reset.html
func (stmt *Stmt) Reset() error {
	return errCode(C.sqlite3_reset(stmt.stmt))
}

// Finalize is sqlite3_finalize.
// https://sqlite.org/c3ref/finalize.html
func (stmt *Stmt) Finalize() error {
	return errCode(C.sqlite3_finalize(stmt.stmt))
}

// ClearBindings sqlite3_clear_bindings.
//
// https://www.sqlite.org/c3ref/clear_bindings.html
func (stmt *Stmt) ClearBindings() error {
	return errCode(C.sqlite3_clear_bindings(stmt.stmt))
}

// Step is sqlite3_step.
// 	For SQLITE_ROW, Step returns (true, nil).
// 	For SQLITE_DONE, Step returns (false, nil).
// 	For any error, Step returns (false, err).
// https://www.sqlite.org/c3ref/step.html
func (stmt *Stmt) Step() (row bool, err error) {
	res := C.sqlite3_step(stmt.stmt)
	switch res {
	case C.SQLITE_ROW:
		return true, nil
	case C.SQLITE_DONE:
		return false, nil
	default:
		return false, errCode(res)
	}
}

// BindDouble is sqlite3_bind_double.
// https://sqlite.org/c3ref/bind_blob.html
func (stmt *Stmt) BindDouble(col int, val float64) error {
	return errCode(C.sqlite3_bind_double(stmt.stmt, C.int(col), C.double(val)))
}

// BindInt64 is sqlite3_bind_int64.
// https://sqlite.org/c3ref/bind_blob.html
func (stmt *Stmt) BindInt64(col int, val int64) error {
	return errCode(C.sqlite3_bind_int64(stmt.stmt, C.int(col), C.sqlite3_int64(val)))
}

// BindNull is sqlite3_bind_null.
// https://sqlite.org/c3ref/bind_blob.html
func (stmt *Stmt) BindNull(col int) error {
	return errCode(C.sqlite3_bind_null(stmt.stmt, C.int(col)))
}

// BindText64 is sqlite3_bind_text64.
// The engine copies val before returning.
// https://sqlite.org/c3ref/bind_blob.html
func (stmt *Stmt) BindText64(col int, val string) error {
	var str *C.char
	if len(val) > 0 {
		str = (*C.char)(unsafe.Pointer(unsafe.StringData(val)))
	}
	return errCode(C.bind_text64(stmt.stmt, C.int(col), str, C.sqlite3_uint64(len(val))))
}

// BindBlob64 is sqlite3_bind_blob64.
// The engine copies val before returning. An empty val binds a
// zero-length blob, not NULL.
// https://sqlite.org/c3ref/bind_blob.html
func (stmt *Stmt) BindBlob64(col int, val []byte) error {
	var b unsafe.Pointer
	if len(val) > 0 {
		b = unsafe.Pointer(&val[0])
	}
	return errCode(C.bind_blob64(stmt.stmt, C.int(col), b, C.sqlite3_uint64(len(val))))
}

// BindParameterCount is sqlite3_bind_parameter_count.
// https://sqlite.org/c3ref/bind_parameter_count.html
func (stmt *Stmt) BindParameterCount() int {
	return int(C.sqlite3_bind_parameter_count(stmt.stmt))
}

// BindParameterIndex is sqlite3_bind_parameter_index.
// Returns zero if no matching parameter is found.
// https://sqlite.org/c3ref/bind_parameter_index.html
func (stmt *Stmt) BindParameterIndex(name string) int {
	return int(C.bind_parameter_index(stmt.stmt, name))
}

// ColumnCount is sqlite3_column_count.
// https://sqlite.org/c3ref/column_count.html
func (stmt *Stmt) ColumnCount() int {
	return int(C.sqlite3_column_count(stmt.stmt))
}

// DataCount is sqlite3_data_count.
// https://sqlite.org/c3ref/data_count.html
func (stmt *Stmt) DataCount() int {
	return int(C.sqlite3_data_count(stmt.stmt))
}

// ColumnName is sqlite3_column_name.
// https://sqlite.org/c3ref/column_name.html
func (stmt *Stmt) ColumnName(col int) string {
	return C.GoString(C.sqlite3_column_name(stmt.stmt, C.int(col)))
}

// ColumnText is sqlite3_column_text.
// https://sqlite.org/c3ref/column_blob.html
func (stmt *Stmt) ColumnText(col int) string {
	str := (*C.char)(unsafe.Pointer(C.sqlite3_column_text(stmt.stmt, C.int(col))))
	n := C.sqlite3_column_bytes(stmt.stmt, C.int(col))
	if str == nil || n == 0 {
		return ""
	}
	return C.GoStringN(str, n)
}

// ColumnBlob is sqlite3_column_blob.
//
// WARNING: The returned memory is managed by C and is only valid until
//          another call is made on this Stmt.
//
// https://sqlite.org/c3ref/column_blob.html
func (stmt *Stmt) ColumnBlob(col int) []byte {
	res := C.sqlite3_column_blob(stmt.stmt, C.int(col))
	if res == nil {
		return nil
	}
	n := int(C.sqlite3_column_bytes(stmt.stmt, C.int(col)))
	return unsafe.Slice((*byte)(res), n)
}

// ColumnDouble is sqlite3_column_double.
// https://sqlite.org/c3ref/column_blob.html
func (stmt *Stmt) ColumnDouble(col int) float64 {
	return float64(C.sqlite3_column_double(stmt.stmt, C.int(col)))
}

// ColumnInt64 is sqlite3_column_int64.
// https://sqlite.org/c3ref/column_blob.html
func (stmt *Stmt) ColumnInt64(col int) int64 {
	return int64(C.sqlite3_column_int64(stmt.stmt, C.int(col)))
}

// ColumnType is sqlite3_column_type.
// https://www.sqlite.org/c3ref/column_blob.html
func (stmt *Stmt) ColumnType(col int) sqliteh.ColumnType {
	return sqliteh.ColumnType(C.sqlite3_column_type(stmt.stmt, C.int(col)))
}

func errCode(code C.int) error { return sqliteh.CodeAsError(sqliteh.Code(code)) }
