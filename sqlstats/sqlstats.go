// Package sqlstats implements an SQLite Tracer that collects query stats.
package sqlstats

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinysqlite/sqlite/sqliteh"
)

// Tracer implements sqliteh.Tracer and collects query stats.
//
// To use, pass the tracer object to sqlite.Config or sqlitedriver.Connector,
// then start a debug web server with http.HandlerFunc(sqlTracer.Handle).
type Tracer struct {
	// Once a query has been seen once, only the read lock
	// is required to update stats.
	mu      sync.RWMutex
	queries map[string]*QueryStats // normalized query -> stats

	opens      atomic.Int64
	openErrors atomic.Int64
	closes     atomic.Int64

	begins      atomic.Int64
	beginErrors atomic.Int64
	commits     atomic.Int64
	rollbacks   atomic.Int64
	endErrors   atomic.Int64 // failed commits and rollbacks
}

var _ sqliteh.Tracer = (*Tracer)(nil)

// TxStats counts the transactions seen by a Tracer.
type TxStats struct {
	Begins      int64
	BeginErrors int64
	Commits     int64
	Rollbacks   int64
	EndErrors   int64
}

// QueryStats are the stats of one normalized query.
//
// Stats returned by Collect are snapshots; inside the Tracer all fields
// are accessed as atomics.
type QueryStats struct {
	Query string

	Count    int64
	Errors   int64
	Duration time.Duration
	Mean     time.Duration
}

var inList = regexp.MustCompile(`(?i)\bIN\s*\(\s*[^()]*?\s*\)`)
var subquery = regexp.MustCompile(`(?i)\(\s*SELECT\b`)

// normalizeQuery folds query variants that only differ in the length of
// an IN list of literals into one.
func normalizeQuery(q string) string {
	return inList.ReplaceAllStringFunc(q, func(m string) string {
		if subquery.MatchString(m[2:]) {
			return m
		}
		return "IN (...)"
	})
}

func (t *Tracer) queryStats(query string) *QueryStats {
	t.mu.RLock()
	stats := t.queries[query]
	t.mu.RUnlock()

	if stats != nil {
		return stats
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.queries == nil {
		t.queries = make(map[string]*QueryStats)
	}
	stats = t.queries[query]
	if stats == nil {
		stats = &QueryStats{Query: query}
		t.queries[query] = stats
	}
	return stats
}

// Collect returns a snapshot of the stats of every query seen.
func (t *Tracer) Collect() (rows []*QueryStats) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for query, s := range t.queries {
		row := &QueryStats{
			Query:    query,
			Count:    atomic.LoadInt64(&s.Count),
			Errors:   atomic.LoadInt64(&s.Errors),
			Duration: time.Duration(atomic.LoadInt64((*int64)(&s.Duration))),
		}
		if row.Count > 0 {
			row.Mean = row.Duration / time.Duration(row.Count)
		}
		rows = append(rows, row)
	}
	return rows
}

// Reset forgets all collected stats.
func (t *Tracer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queries = nil
	t.opens.Store(0)
	t.openErrors.Store(0)
	t.closes.Store(0)
	t.begins.Store(0)
	t.beginErrors.Store(0)
	t.commits.Store(0)
	t.rollbacks.Store(0)
	t.endErrors.Store(0)
}

// Conns reports the number of connection opens, failed opens and closes seen.
func (t *Tracer) Conns() (opens, openErrors, closes int64) {
	return t.opens.Load(), t.openErrors.Load(), t.closes.Load()
}

// Txs reports the transactions seen.
func (t *Tracer) Txs() TxStats {
	return TxStats{
		Begins:      t.begins.Load(),
		BeginErrors: t.beginErrors.Load(),
		Commits:     t.commits.Load(),
		Rollbacks:   t.rollbacks.Load(),
		EndErrors:   t.endErrors.Load(),
	}
}

func (t *Tracer) Open(id sqliteh.TraceConnID, location string, err error) {
	t.opens.Add(1)
	if err != nil {
		t.openErrors.Add(1)
	}
}

func (t *Tracer) Query(id sqliteh.TraceConnID, query string, duration time.Duration, err error) {
	stats := t.queryStats(normalizeQuery(query))

	atomic.AddInt64(&stats.Count, 1)
	atomic.AddInt64((*int64)(&stats.Duration), int64(duration))
	if err != nil {
		atomic.AddInt64(&stats.Errors, 1)
	}
}

func (t *Tracer) Close(id sqliteh.TraceConnID, err error) {
	t.closes.Add(1)
}

func (t *Tracer) BeginTx(beginCtx context.Context, id sqliteh.TraceConnID, readOnly bool, err error) {
	t.begins.Add(1)
	if err != nil {
		t.beginErrors.Add(1)
	}
}

func (t *Tracer) Commit(id sqliteh.TraceConnID, err error) {
	t.commits.Add(1)
	if err != nil {
		t.endErrors.Add(1)
	}
}

func (t *Tracer) Rollback(id sqliteh.TraceConnID, err error) {
	t.rollbacks.Add(1)
	if err != nil {
		t.endErrors.Add(1)
	}
}

func (t *Tracer) Handle(w http.ResponseWriter, r *http.Request) {
	getArgs, _ := url.ParseQuery(r.URL.RawQuery)
	sortParam := strings.TrimSpace(getArgs.Get("sort"))
	rows := t.Collect()

	switch sortParam {
	case "", "count":
		sort.Slice(rows, func(i, j int) bool { return rows[i].Count > rows[j].Count })
	case "query":
		sort.Slice(rows, func(i, j int) bool { return rows[i].Query < rows[j].Query })
	case "duration":
		sort.Slice(rows, func(i, j int) bool { return rows[i].Duration > rows[j].Duration })
	case "errors":
		sort.Slice(rows, func(i, j int) bool { return rows[i].Errors > rows[j].Errors })
	case "mean":
		sort.Slice(rows, func(i, j int) bool { return rows[i].Mean > rows[j].Mean })
	default:
		http.Error(w, fmt.Sprintf("unknown sort: %q", sortParam), http.StatusBadRequest)
		return
	}

	opens, openErrors, closes := t.Conns()
	txs := t.Txs()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `<!DOCTYPE html><html><body>
	<p>Trace of SQLite queries run via the github.com/tinysqlite/sqlite package.</p>
	<p>Connections: %d opened (%d failed), %d closed.</p>
	<p>Transactions: %d begun (%d failed), %d committed, %d rolled back, %d failed to end.</p>
	<table border="1">
	<tr>
	<th><a href="?sort=query">Query</a></th>
	<th><a href="?sort=count">Count</a></th>
	<th><a href="?sort=duration">Duration</a></th>
	<th><a href="?sort=mean">Mean</a></th>
	<th><a href="?sort=errors">Errors</a></th>
	</tr>
	`, opens, openErrors, closes, txs.Begins, txs.BeginErrors, txs.Commits, txs.Rollbacks, txs.EndErrors)
	for _, row := range rows {
		fmt.Fprintf(w, "<tr><td>%s</td><td>%d</td><td>%s</td><td>%s</td><td>%d</td></tr>\n",
			html.EscapeString(row.Query),
			row.Count,
			row.Duration.Round(time.Millisecond),
			row.Mean.Round(time.Microsecond),
			row.Errors,
		)
	}
	fmt.Fprintf(w, "</table></body></html>")
}
