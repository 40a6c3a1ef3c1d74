package postgres

import (
	"context"

	"github.com/go-chi/chi/v5"
)

// Labels describe who issued a query. They travel on the context from the
// HTTP middleware, the ingest scheduler and the stores down to the query
// tracer, which puts them on metrics, spans and the query log.
type Labels struct {
	Method    string // HTTP method, empty for background work
	Route     string // chi pattern or a background job name
	Operation string // store operation, e.g. pgstore.Insert
	RunID     string // ingest run
	DedupKey  string // feed record being claimed or released
}

type labelsKey struct{}

// LabelsFromContext returns the labels on ctx. The route falls back to the
// chi route pattern when the request is routed.
func LabelsFromContext(ctx context.Context) Labels {
	l, _ := ctx.Value(labelsKey{}).(Labels)
	if rc := chi.RouteContext(ctx); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			l.Route = p
		}
	}
	return l
}

func withLabels(ctx context.Context, set func(*Labels)) context.Context {
	l, _ := ctx.Value(labelsKey{}).(Labels)
	set(&l)
	return context.WithValue(ctx, labelsKey{}, l)
}

// WithHTTPMethod stores the HTTP method in the context for query metrics labelling.
func WithHTTPMethod(ctx context.Context, method string) context.Context {
	if method == "" {
		return ctx
	}
	return withLabels(ctx, func(l *Labels) { l.Method = method })
}

// WithRoute labels queries issued outside an HTTP request (ingest runs,
// ledger compaction) so their metrics do not all land on "unknown".
func WithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return withLabels(ctx, func(l *Labels) { l.Route = route })
}

// WithOperation names the store operation issuing the following queries.
func WithOperation(ctx context.Context, op string) context.Context {
	if op == "" {
		return ctx
	}
	return withLabels(ctx, func(l *Labels) { l.Operation = op })
}

// WithRun tags queries with the ingest run that issued them.
func WithRun(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return withLabels(ctx, func(l *Labels) { l.RunID = runID })
}

// WithDedupKey tags ledger queries with the feed record key they touch.
func WithDedupKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return withLabels(ctx, func(l *Labels) { l.DedupKey = key })
}
