// Package sqlitezap implements an SQLite Tracer that writes structured
// logs with zap.
package sqlitezap

import (
	"context"
	"errors"
	"time"

	"github.com/tinysqlite/sqlite"
	"github.com/tinysqlite/sqlite/sqliteh"
	"go.uber.org/zap"
)

// Tracer implements sqliteh.Tracer.
//
// Successful operations are logged at Debug level and failures at Warn
// level, with the error and, when the error carries one, the stack it
// was built at.
type Tracer struct {
	log *zap.Logger

	// SlowQuery, if positive, logs queries taking at least this long at
	// Info level.
	SlowQuery time.Duration
}

var _ sqliteh.Tracer = (*Tracer)(nil)

// New returns a Tracer writing to log. A nil log discards everything.
func New(log *zap.Logger) *Tracer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracer{log: log.Named("sqlite")}
}

// Logger returns the logger the Tracer writes to.
func (t *Tracer) Logger() *zap.Logger {
	if t.log == nil {
		return zap.NewNop()
	}
	return t.log
}

func errFields(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}
	var e *sqlite.Error
	if errors.As(err, &e) {
		fields = append(fields, zap.Stringer("kind", e.Kind))
		if e.Kind == sqlite.KindEngine {
			fields = append(fields, zap.Stringer("code", e.Code))
		}
		if e.HasStack() {
			fields = append(fields, zap.String("stack", e.Stack()))
		}
	}
	return fields
}

func (t *Tracer) Open(id sqliteh.TraceConnID, location string, err error) {
	log := t.Logger().With(zap.Int("conn", int(id)), zap.String("location", location))
	if err != nil {
		log.Warn("open failed", errFields(err)...)
		return
	}
	log.Debug("open")
}

func (t *Tracer) Query(id sqliteh.TraceConnID, query string, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.Int("conn", int(id)),
		zap.String("query", query),
		zap.Duration("duration", duration),
	}
	switch {
	case err != nil:
		t.Logger().Warn("query failed", append(fields, errFields(err)...)...)
	case t.SlowQuery > 0 && duration >= t.SlowQuery:
		t.Logger().Info("slow query", fields...)
	default:
		t.Logger().Debug("query", fields...)
	}
}

func (t *Tracer) Close(id sqliteh.TraceConnID, err error) {
	log := t.Logger().With(zap.Int("conn", int(id)))
	if err != nil {
		log.Warn("close failed", errFields(err)...)
		return
	}
	log.Debug("close")
}

func (t *Tracer) BeginTx(beginCtx context.Context, id sqliteh.TraceConnID, readOnly bool, err error) {
	log := t.Logger().With(zap.Int("conn", int(id)), zap.Bool("read_only", readOnly))
	if err != nil {
		log.Warn("begin failed", errFields(err)...)
		return
	}
	log.Debug("begin")
}

func (t *Tracer) Commit(id sqliteh.TraceConnID, err error) {
	t.txEnd(id, "commit", err)
}

func (t *Tracer) Rollback(id sqliteh.TraceConnID, err error) {
	t.txEnd(id, "rollback", err)
}

func (t *Tracer) txEnd(id sqliteh.TraceConnID, msg string, err error) {
	log := t.Logger().With(zap.Int("conn", int(id)))
	if err != nil {
		log.Warn(msg+" failed", errFields(err)...)
		return
	}
	log.Debug(msg)
}
