package sqlitezap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/tinysqlite/sqlite"
	"github.com/tinysqlite/sqlite/sqliteh"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(level zapcore.Level) (*Tracer, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return New(zap.New(core)), logs
}

func messages(logs *observer.ObservedLogs) []string {
	var msgs []string
	for _, e := range logs.All() {
		msgs = append(msgs, e.Level.String()+" "+e.Message)
	}
	return msgs
}

func TestTracerLevels(t *testing.T) {
	tr, logs := newObserved(zapcore.DebugLevel)
	tr.SlowQuery = time.Second

	tr.Open(1, "a.db", nil)
	tr.Query(1, "SELECT 1", time.Millisecond, nil)
	tr.Query(1, "SELECT 2", 2*time.Second, nil)
	tr.Query(1, "SELECT 3", time.Millisecond, errors.New("boom"))
	tr.Close(1, nil)
	tr.Open(2, "b.db", errors.New("cannot open"))
	tr.Close(2, errors.New("busy"))

	want := []string{
		"debug open",
		"debug query",
		"info slow query",
		"warn query failed",
		"debug close",
		"warn open failed",
		"warn close failed",
	}
	if diff := cmp.Diff(want, messages(logs)); diff != "" {
		t.Errorf("log messages (-want +got):\n%s", diff)
	}
	for _, e := range logs.All() {
		if e.LoggerName != "sqlite" {
			t.Errorf("%q logged by %q, want sqlite", e.Message, e.LoggerName)
		}
	}

	q := logs.FilterMessage("slow query").All()[0].ContextMap()
	if q["query"] != "SELECT 2" || q["conn"] != int64(1) {
		t.Errorf("slow query fields=%v", q)
	}
}

func TestTracerTx(t *testing.T) {
	tr, logs := newObserved(zapcore.DebugLevel)
	ctx := context.Background()

	tr.BeginTx(ctx, 1, true, nil)
	tr.Commit(1, nil)
	tr.BeginTx(ctx, 1, false, nil)
	tr.Rollback(1, errors.New("busy"))
	tr.BeginTx(ctx, 2, false, errors.New("locked"))

	want := []string{
		"debug begin",
		"debug commit",
		"debug begin",
		"warn rollback failed",
		"warn begin failed",
	}
	if diff := cmp.Diff(want, messages(logs)); diff != "" {
		t.Errorf("log messages (-want +got):\n%s", diff)
	}
	begin := logs.FilterMessage("begin").All()[0].ContextMap()
	if begin["read_only"] != true || begin["conn"] != int64(1) {
		t.Errorf("begin fields=%v", begin)
	}
}

func TestTracerEngineError(t *testing.T) {
	tr, logs := newObserved(zapcore.WarnLevel)
	const flags = sqliteh.SQLITE_OPEN_READWRITE | sqliteh.SQLITE_OPEN_CREATE | sqliteh.SQLITE_OPEN_URI
	c, err := sqlite.OpenWith("file:"+uuid.NewString()+"?mode=memory", flags, &sqlite.Config{Tracer: tr})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.ExecScript("CREATE TABLE t (c INTEGER PRIMARY KEY); INSERT INTO t VALUES (1);"); err != nil {
		t.Fatal(err)
	}
	if err := c.Exec("INSERT INTO t VALUES (1)"); err == nil {
		t.Fatal("duplicate insert succeeded")
	}

	failed := logs.FilterMessage("query failed").All()
	if len(failed) != 1 {
		t.Fatalf("got %d failed queries logged, want 1", len(failed))
	}
	fields := failed[0].ContextMap()
	if fields["kind"] != "engine" || fields["code"] != "SQLITE_CONSTRAINT" {
		t.Errorf("kind=%v code=%v", fields["kind"], fields["code"])
	}
	if fields["query"] != "INSERT INTO t VALUES (1)" {
		t.Errorf("query=%v", fields["query"])
	}
	if s, _ := fields["stack"].(string); s == "" {
		t.Error("no stack logged")
	}
}

func TestTracerNil(t *testing.T) {
	tr := New(nil)
	tr.Open(1, "a.db", nil)
	tr.Query(1, "SELECT 1", 0, errors.New("x"))
	tr.Close(1, nil)

	var zero Tracer
	zero.Query(1, "SELECT 1", 0, nil)
}

func TestTracerWithConn(t *testing.T) {
	tr := New(zaptest.NewLogger(t))
	const flags = sqliteh.SQLITE_OPEN_READWRITE | sqliteh.SQLITE_OPEN_CREATE | sqliteh.SQLITE_OPEN_URI
	c, err := sqlite.OpenWith("file:"+uuid.NewString()+"?mode=memory", flags, &sqlite.Config{Tracer: tr})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.ExecScript("CREATE TABLE t (c);"); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}
