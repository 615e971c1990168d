package sqlite

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func readInts(t *testing.T, a *Answer) []int {
	t.Helper()
	var got []int
	for row, err := range a.All() {
		if err != nil {
			t.Fatal(err)
		}
		n, err := Read[int](row, 0)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, n)
	}
	return got
}

func TestCursorInUse(t *testing.T) {
	c := openTestConn(t)
	execScript(t, c, "CREATE TABLE t (c); INSERT INTO t VALUES (1), (2), (3);")
	q := prepare(t, c, "SELECT c FROM t WHERE c >= ? ORDER BY c")
	if _, err := q.Bind(1, 1); err != nil {
		t.Fatal(err)
	}

	a, err := q.Execute()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := q.Execute(); !errors.Is(err, ErrCursorInUse) {
		t.Errorf("second Execute: %v, want ErrCursorInUse", err)
	}
	if _, err := q.Bind(1, 2); !errors.Is(err, ErrCursorInUse) {
		t.Errorf("Bind: %v, want ErrCursorInUse", err)
	}
	if err := q.ClearBindings(); !errors.Is(err, ErrCursorInUse) {
		t.Errorf("ClearBindings: %v, want ErrCursorInUse", err)
	}
	if _, err := a.Next(); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	// Closing the Answer resets the cursor and keeps the bindings.
	a, err = q.Execute()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, readInts(t, a)); diff != "" {
		t.Errorf("rows (-want +got):\n%s", diff)
	}

	// All closed the Answer.
	if _, err := q.Bind(1, 2); err != nil {
		t.Fatal(err)
	}
	a, err = q.Execute()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{2, 3}, readInts(t, a)); diff != "" {
		t.Errorf("rebound rows (-want +got):\n%s", diff)
	}
}

func TestOwnedRowHoldsCursor(t *testing.T) {
	c := openTestConn(t)
	q := prepare(t, c, "SELECT 7")
	a, err := q.Execute()
	if err != nil {
		t.Fatal(err)
	}
	row, err := a.Row()
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Execute(); !errors.Is(err, ErrCursorInUse) {
		t.Errorf("Execute while a Row is open: %v, want ErrCursorInUse", err)
	}
	if n, err := Read[int](row, 0); err != nil || n != 7 {
		t.Errorf("Read=%d, %v", n, err)
	}
	if _, err := a.Row(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Row: %v, want ErrClosed", err)
	}
	if err := row.Close(); err != nil {
		t.Fatal(err)
	}
	if err := row.Close(); err != nil {
		t.Fatal(err)
	}
	a, err = q.Execute()
	if err != nil {
		t.Fatal(err)
	}
	a.Close()
}

func TestRowAfterNext(t *testing.T) {
	c := openTestConn(t)
	q := prepare(t, c, "SELECT value FROM (SELECT 1 AS value UNION ALL SELECT 2 UNION ALL SELECT 3) ORDER BY value")
	a, err := q.Execute()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Next(); err != nil {
		t.Fatal(err)
	}
	// The first row was lent out, so Row moves on to the second.
	row, err := a.Row()
	if err != nil {
		t.Fatal(err)
	}
	defer row.Close()
	if n, err := Read[int](row, 0); err != nil || n != 2 {
		t.Errorf("Row after Next=%d, %v, want 2", n, err)
	}
}

func TestStaleRow(t *testing.T) {
	c := openTestConn(t)
	q := prepare(t, c, "SELECT 1 UNION ALL SELECT 2")
	a, err := q.Execute()
	if err != nil {
		t.Fatal(err)
	}
	first, err := a.Next()
	if err != nil || first == nil {
		t.Fatalf("Next=%v, %v", first, err)
	}
	second, err := a.Next()
	if err != nil || second == nil {
		t.Fatalf("Next=%v, %v", second, err)
	}
	if _, err := first.Value(0); !errors.Is(err, ErrStaleRow) {
		t.Errorf("first row after Next: %v, want ErrStaleRow", err)
	}
	if first.Len() != 0 {
		t.Errorf("stale Len=%d, want 0", first.Len())
	}
	if n, err := Read[int](second, 0); err != nil || n != 2 {
		t.Errorf("second=%d, %v", n, err)
	}
	if err := first.Close(); err != nil {
		t.Errorf("Close of a borrowed row: %v", err)
	}
	a.Close()
	if _, err := second.Value(0); !errors.Is(err, ErrNoRow) {
		t.Errorf("borrowed row after Answer.Close: %v, want ErrNoRow", err)
	}
}

func TestAllBreak(t *testing.T) {
	c := openTestConn(t)
	q := prepare(t, c, "SELECT 1 UNION ALL SELECT 2 UNION ALL SELECT 3")
	a, err := q.Execute()
	if err != nil {
		t.Fatal(err)
	}
	for row, err := range a.All() {
		if err != nil {
			t.Fatal(err)
		}
		if n, _ := Read[int](row, 0); n == 1 {
			break
		}
	}
	// Breaking out of All still returned the cursor.
	a, err = q.Execute()
	if err != nil {
		t.Fatalf("Execute after break: %v", err)
	}
	a.Close()
}

func TestStepErrorRestarts(t *testing.T) {
	c := openTestConn(t)
	execScript(t, c, "CREATE TABLE t (c INTEGER PRIMARY KEY);")
	q := prepare(t, c, "INSERT INTO t VALUES (?)")
	if _, err := q.Bind(1, 1); err != nil {
		t.Fatal(err)
	}
	a, err := q.Execute()
	if err != nil {
		t.Fatal(err)
	}
	a.Close()

	var se *Error
	if _, err := q.Execute(); !errors.As(err, &se) || !errors.Is(err, ErrEngine) {
		t.Fatalf("duplicate insert: %v, want an engine error", err)
	}
	if se.Query != "INSERT INTO t VALUES (?)" {
		t.Errorf("Query=%q", se.Query)
	}

	// The failed step does not hold the cursor.
	if _, err := q.Bind(1, 2); err != nil {
		t.Fatalf("Bind after a failed step: %v", err)
	}
	a, err = q.Execute()
	if err != nil {
		t.Fatalf("Execute after a failed step: %v", err)
	}
	a.Close()
	if c.LastInsertRowID() != 2 {
		t.Errorf("LastInsertRowID=%d, want 2", c.LastInsertRowID())
	}
}

func TestFinishedRestarts(t *testing.T) {
	c := openTestConn(t)
	execScript(t, c, "CREATE TABLE t (c);")
	q := prepare(t, c, "INSERT INTO t VALUES (1)")
	for range 3 {
		a, err := q.Execute()
		if err != nil {
			t.Fatal(err)
		}
		a.Close()
	}
	row, err := c.QueryRow("SELECT count(*) FROM t")
	if err != nil {
		t.Fatal(err)
	}
	defer row.Close()
	if n, _ := Read[int](row, 0); n != 3 {
		t.Errorf("count=%d, want 3", n)
	}
}

func TestBindNamed(t *testing.T) {
	c := openTestConn(t)
	q := prepare(t, c, "SELECT :a, @b, $c, ?4")
	if got := q.NumParams(); got != 4 {
		t.Errorf("NumParams=%d, want 4", got)
	}
	for name, want := range map[string]int{"a": 1, ":a": 1, "b": 2, "@b": 2, "c": 3, "?4": 4, "d": 0, "": 0} {
		if got := q.ParamIndex(name); got != want {
			t.Errorf("ParamIndex(%q)=%d, want %d", name, got, want)
		}
	}
	if _, err := q.BindNamed("a", "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := q.BindNamed("@b", 2); err != nil {
		t.Fatal(err)
	}
	if _, err := q.BindNamed("c", 1.5); err != nil {
		t.Fatal(err)
	}
	if _, err := q.BindNamed("missing", 1); err == nil {
		t.Error("BindNamed(missing) succeeded")
	}

	a, err := q.Execute()
	if err != nil {
		t.Fatal(err)
	}
	row, err := a.Row()
	if err != nil {
		t.Fatal(err)
	}
	var vals [4]Value
	if err := row.Scan(&vals[0], &vals[1], &vals[2], &vals[3]); err != nil {
		t.Fatal(err)
	}
	row.Close()
	want := [4]Value{Text("x"), Integer(2), Real(1.5), Null()}
	if diff := cmp.Diff(want, vals); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}

	if err := q.ClearBindings(); err != nil {
		t.Fatal(err)
	}
	a, err = q.Execute()
	if err != nil {
		t.Fatal(err)
	}
	row, err = a.Row()
	if err != nil {
		t.Fatal(err)
	}
	defer row.Close()
	if v, _ := row.Value(0); !v.IsNull() {
		t.Errorf("after ClearBindings=%v, want NULL", v)
	}
}

func TestBindChain(t *testing.T) {
	c := openTestConn(t)
	q := prepare(t, c, "SELECT ? + ?")
	q2, err := q.Bind(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := q2.Bind(2, 3); err != nil {
		t.Fatal(err)
	}
	if q2 != q {
		t.Error("Bind did not return its Query")
	}
	if _, err := q.Bind(3, 1); !errors.Is(err, ErrEngine) {
		t.Errorf("Bind out of range: %v, want SQLITE_RANGE", err)
	}
	a, err := q.Execute()
	if err != nil {
		t.Fatal(err)
	}
	row, err := a.Row()
	if err != nil {
		t.Fatal(err)
	}
	defer row.Close()
	if n, _ := Read[int](row, 0); n != 5 {
		t.Errorf("sum=%d, want 5", n)
	}
}

func TestConnExecAndQueryRow(t *testing.T) {
	c := openTestConn(t)
	if err := c.Exec("CREATE TABLE t (k TEXT PRIMARY KEY, v INTEGER)"); err != nil {
		t.Fatal(err)
	}
	for i, k := range []string{"a", "b", "c"} {
		if err := c.Exec("INSERT INTO t VALUES (?, ?)", k, i*10); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Exec("UPDATE t SET v = v + 1 WHERE v > ?", 0); err != nil {
		t.Fatal(err)
	}
	if got := c.Changes(); got != 2 {
		t.Errorf("Changes=%d, want 2", got)
	}
	if err := c.Exec("INSERT INTO t VALUES (?, ?)", "a", 1); !errors.Is(err, ErrEngine) {
		t.Errorf("duplicate key: %v, want ErrEngine", err)
	}
	if err := c.Exec("SELECT ?", 1, 2); err == nil {
		t.Error("Exec with too many args succeeded")
	}

	row, err := c.QueryRow("SELECT v FROM t WHERE k = ?", "c")
	if err != nil {
		t.Fatal(err)
	}
	if n, err := Read[int](row, 0); err != nil || n != 21 {
		t.Errorf("v=%d, %v, want 21", n, err)
	}
	q := row.q
	if err := row.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Execute(); !errors.Is(err, ErrClosed) {
		t.Errorf("QueryRow statement after Row.Close: %v, want ErrClosed", err)
	}
	c.mu.Lock()
	open := len(c.stmts)
	c.mu.Unlock()
	if open != 0 {
		t.Errorf("%d statements left open", open)
	}
}
