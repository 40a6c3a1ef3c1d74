package postgres

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
)

var queryObserver atomic.Pointer[queryObserverHolder]

type queryObserverHolder struct{ QueryObserver }

// QueryObserver receives per-query metrics (wired by main for Prometheus).
type QueryObserver interface {
	ObserveQuery(ctx context.Context, method, route, outcome string, dur time.Duration)
}

// QueryObserverFunc adapts a plain function to QueryObserver.
type QueryObserverFunc func(ctx context.Context, method, route, outcome string, dur time.Duration)

// ObserveQuery implements QueryObserver.
func (f QueryObserverFunc) ObserveQuery(ctx context.Context, method, route, outcome string, dur time.Duration) {
	f(ctx, method, route, outcome, dur)
}

// SetQueryObserver sets the global query observer (typically a Prometheus histogram).
func SetQueryObserver(o QueryObserver) {
	if o == nil {
		queryObserver.Store(nil)
		return
	}
	queryObserver.Store(&queryObserverHolder{QueryObserver: o})
}

func getQueryObserver() QueryObserver {
	h := queryObserver.Load()
	if h == nil {
		return nil
	}
	return h.QueryObserver
}

// pendingQuery is stashed on the query context between start and end.
type pendingQuery struct {
	sql    string
	args   []any
	start  time.Time
	labels Labels
}

type pendingQueryKey struct{}

// loggingTracer wraps another pgx.QueryTracer (e.g. otelpgx), labels its
// span and adds a structured log line and a metric for every query.
type loggingTracer struct {
	inner pgx.QueryTracer
}

// wrapQueryTracer wraps an inner tracer with structured logging.
func wrapQueryTracer(inner pgx.QueryTracer) pgx.QueryTracer {
	if inner == nil {
		return loggingTracer{}
	}
	return loggingTracer{inner: inner}
}

func (t loggingTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	q := &pendingQuery{sql: data.SQL, args: data.Args, start: time.Now(), labels: LabelsFromContext(ctx)}

	// Let inner tracer (otelpgx) create its span first.
	if t.inner != nil {
		ctx = t.inner.TraceQueryStart(ctx, conn, data)
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		if attrs := spanAttributes(&q.labels); len(attrs) > 0 {
			span.SetAttributes(attrs...)
		}
	}
	return context.WithValue(ctx, pendingQueryKey{}, q)
}

func (t loggingTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	// Always call inner tracer first so spans are finished correctly.
	if t.inner != nil {
		t.inner.TraceQueryEnd(ctx, conn, data)
	}

	q, ok := ctx.Value(pendingQueryKey{}).(*pendingQuery)
	if !ok {
		return
	}
	dur := time.Since(q.start)

	if obs := getQueryObserver(); obs != nil {
		method := q.labels.Method
		if method == "" {
			method = "UNKNOWN"
		}
		route := q.labels.Route
		if route == "" {
			route = "unknown"
		}
		outcome := "ok"
		if data.Err != nil {
			outcome = "error"
		}
		obs.ObserveQuery(ctx, method, route, outcome, dur)
	}

	fields := []any{
		"db.statement", q.sql,
		"db.args", q.args,
		"db.duration", dur.Seconds(),
	}
	if tag := strings.TrimSpace(data.CommandTag.String()); tag != "" {
		fields = append(fields, "pg.command_tag", tag, "db.rows", data.CommandTag.RowsAffected())
	}
	if q.labels.Operation != "" {
		fields = append(fields, "db.caller", q.labels.Operation)
	}
	if q.labels.RunID != "" {
		fields = append(fields, "run_id", q.labels.RunID)
	}
	if q.labels.DedupKey != "" {
		fields = append(fields, "dedup_key", q.labels.DedupKey)
	}

	L := log.FromContext(ctx)
	if data.Err == nil {
		L.Info(ctx, "db query", fields...)
		return
	}

	var pgErr *pgconn.PgError
	if errors.As(data.Err, &pgErr) {
		fields = append(fields, "db.error_code", pgErr.Code, "db.error_constraint", pgErr.ConstraintName)
	}
	L.Error(ctx, data.Err, "db query failed", fields...)
}

func spanAttributes(l *Labels) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if l.Operation != "" {
		attrs = append(attrs, attribute.String("db.caller", l.Operation))
	}
	if l.RunID != "" {
		attrs = append(attrs, attribute.String("roadwatch.ingest.run_id", l.RunID))
	}
	if l.DedupKey != "" {
		attrs = append(attrs, attribute.String("roadwatch.ingest.dedup_key", l.DedupKey))
	}
	return attrs
}
