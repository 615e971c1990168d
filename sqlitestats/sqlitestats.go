// Package sqlitestats implements an SQLite Tracer that reports the
// connections and transactions currently open.
package sqlitestats

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinysqlite/sqlite/sqliteh"
)

// Stats tracks and reports open connections and transactions.
//
// Stats implements sqliteh.Tracer and http.Handler.
type Stats struct {
	conns  sync.Map // sqliteh.TraceConnID -> *connStats
	curTxs sync.Map // sqliteh.TraceConnID -> TxStats
}

var _ sqliteh.Tracer = (*Stats)(nil)

type connStats struct {
	id       sqliteh.TraceConnID
	location string
	start    time.Time

	queries   atomic.Int64
	errors    atomic.Int64
	lastQuery atomic.Pointer[string]
}

// ConnStats is a snapshot of one open connection.
type ConnStats struct {
	ID        sqliteh.TraceConnID
	Location  string
	Start     time.Time
	Queries   int64
	Errors    int64
	LastQuery string
}

// Live returns a snapshot of the open connections, oldest first.
func (s *Stats) Live() []ConnStats {
	var conns []ConnStats
	s.conns.Range(func(_, value any) bool {
		c := value.(*connStats)
		cs := ConnStats{
			ID:       c.id,
			Location: c.location,
			Start:    c.start,
			Queries:  c.queries.Load(),
			Errors:   c.errors.Load(),
		}
		if q := c.lastQuery.Load(); q != nil {
			cs.LastQuery = *q
		}
		conns = append(conns, cs)
		return true
	})
	sort.Slice(conns, func(i, j int) bool { return conns[i].Start.Before(conns[j].Start) })
	return conns
}

// TxStats describes one open transaction.
type TxStats struct {
	ID       sqliteh.TraceConnID
	Name     string // set with WithName
	Start    time.Time
	ReadOnly bool
}

// Txs returns a snapshot of the open transactions, oldest first.
func (s *Stats) Txs() []TxStats {
	var txs []TxStats
	s.curTxs.Range(func(_, value any) bool {
		txs = append(txs, value.(TxStats))
		return true
	})
	sort.Slice(txs, func(i, j int) bool { return txs[i].Start.Before(txs[j].Start) })
	return txs
}

func (s *Stats) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conns := s.Live()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(200)
	io.WriteString(w, "<html><head><title>sqlite open connections and transactions</title></head><body><pre>\n")
	fmt.Fprintf(w, "sqlite open connections (%d):", len(conns))
	now := time.Now()
	for _, c := range conns {
		fmt.Fprintf(w, "\n\t%d\t%s\t%v\t%d queries (%d failed)\t%s",
			c.ID,
			html.EscapeString(c.Location),
			now.Sub(c.Start).Round(time.Millisecond),
			c.Queries,
			c.Errors,
			html.EscapeString(c.LastQuery),
		)
	}
	txs := s.Txs()
	fmt.Fprintf(w, "\n\nsqlite active transactions (%d):", len(txs))
	for _, tx := range txs {
		ro := ""
		if tx.ReadOnly {
			ro = "read-only"
		}
		fmt.Fprintf(w, "\n\t%d\t%s\t%v\t%s", tx.ID, html.EscapeString(tx.Name), now.Sub(tx.Start).Round(time.Millisecond), ro)
	}
	io.WriteString(w, "\n</pre></body></html>")
}

func (s *Stats) Open(id sqliteh.TraceConnID, location string, err error) {
	if err != nil {
		// Not actually open.
		return
	}
	s.conns.Store(id, &connStats{
		id:       id,
		location: location,
		start:    time.Now(),
	})
}

func (s *Stats) Query(id sqliteh.TraceConnID, query string, duration time.Duration, err error) {
	v, ok := s.conns.Load(id)
	if !ok {
		return
	}
	c := v.(*connStats)
	c.queries.Add(1)
	if err != nil {
		c.errors.Add(1)
	}
	c.lastQuery.Store(&query)
}

func (s *Stats) Close(id sqliteh.TraceConnID, err error) {
	s.conns.Delete(id)
	s.curTxs.Delete(id)
}

func (s *Stats) BeginTx(beginCtx context.Context, id sqliteh.TraceConnID, readOnly bool, err error) {
	if err != nil {
		// Not actually in a tx.
		return
	}
	name, _ := beginCtx.Value(txName{}).(string)
	s.curTxs.Store(id, TxStats{
		ID:       id,
		Name:     name,
		Start:    time.Now(),
		ReadOnly: readOnly,
	})
}

func (s *Stats) Commit(id sqliteh.TraceConnID, err error) {
	s.curTxs.Delete(id)
}

func (s *Stats) Rollback(id sqliteh.TraceConnID, err error) {
	s.curTxs.Delete(id)
}

type txName struct{}

// WithName makes a ctx that names the transactions begun with it in the
// Stats report.
func WithName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, txName{}, name)
}
