// Package pgstore provides a PostgreSQL implementation of incident.Store
// and a persistent dedup ledger.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/roadwatch/internal/incident"
	"github.com/linnemanlabs/roadwatch/internal/postgres"
)

const tracerName = "github.com/linnemanlabs/roadwatch/internal/incident/pgstore"

//go:embed schema.sql
var schema string

// Store persists incidents in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New applies the schema on pool and returns a ready Store. The caller owns
// the pool and closes it.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool, now: time.Now}, nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	ctx = postgres.WithOperation(ctx, name)
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

const incidentColumns = `id, original_message, summary, category, priority, confidence, location,
	coordinates, status, advisory_message, source, reported_at, created_at, updated_at`

// Insert stores the draft unless (original_message, location) already
// exists. The unique index makes check and insert a single statement.
func (s *Store) Insert(ctx context.Context, d *incident.Draft) (*incident.Incident, error) {
	ctx, span := startSpan(ctx, "pgstore.Insert", "INSERT")
	defer span.End()

	inc := d.Build(0, s.now().UTC())
	query := `INSERT INTO incidents (
		original_message, summary, category, priority, confidence, location,
		coordinates, status, advisory_message, source, reported_at, created_at, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	ON CONFLICT DO NOTHING
	RETURNING id`

	err := s.pool.QueryRow(ctx, query,
		inc.OriginalMessage, inc.Summary, string(inc.Category), inc.Priority, inc.Confidence, inc.Location,
		inc.Coordinates, string(inc.Status), inc.AdvisoryMessage, string(inc.Source),
		inc.ReportedAt, inc.CreatedAt, inc.UpdatedAt,
	).Scan(&inc.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		span.SetAttributes(attribute.Bool("incident.duplicate", true))
		return nil, incident.ErrDuplicate
	}
	if err != nil {
		return nil, fail(span, fmt.Errorf("insert incident: %w", err))
	}

	span.SetAttributes(attribute.Int64("incident.id", inc.ID))
	return &inc, nil
}

// Get retrieves an incident by ID.
func (s *Store) Get(ctx context.Context, id int64) (*incident.Incident, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Get", "SELECT")
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`
	inc, err := scanIncident(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fail(span, err)
	}
	return inc, true, nil
}

// ListActive returns non-resolved incidents, priority desc, created_at desc.
func (s *Store) ListActive(ctx context.Context) ([]incident.Incident, error) {
	ctx, span := startSpan(ctx, "pgstore.ListActive", "SELECT")
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents
		WHERE status <> 'resolved'
		ORDER BY priority DESC, created_at DESC, id DESC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query incidents: %w", err))
	}
	defer rows.Close()

	out := []incident.Incident{}
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fail(span, err)
		}
		out = append(out, *inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate incidents: %w", err))
	}
	return out, nil
}

// UpdateStatus sets the status of an incident.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status incident.Status, at time.Time) error {
	ctx, span := startSpan(ctx, "pgstore.UpdateStatus", "UPDATE")
	defer span.End()

	tag, err := s.pool.Exec(ctx,
		`UPDATE incidents SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), at.UTC(),
	)
	if err != nil {
		return fail(span, fmt.Errorf("update status: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return incident.ErrNotFound
	}
	return nil
}

// SetAdvisory overrides the advisory message of an incident.
func (s *Store) SetAdvisory(ctx context.Context, id int64, message string, at time.Time) error {
	ctx, span := startSpan(ctx, "pgstore.SetAdvisory", "UPDATE")
	defer span.End()

	tag, err := s.pool.Exec(ctx,
		`UPDATE incidents SET advisory_message = $2, updated_at = $3 WHERE id = $1`,
		id, message, at.UTC(),
	)
	if err != nil {
		return fail(span, fmt.Errorf("set advisory: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return incident.ErrNotFound
	}
	return nil
}

// Statistics groups the window by (category, location, local day) in SQL.
// PostgreSQL needs a zone name for the day boundary, so the process-local
// zone (which has none) is tallied in Go instead.
func (s *Store) Statistics(ctx context.Context, q incident.StatsQuery) ([]incident.StatRow, error) {
	ctx, span := startSpan(ctx, "pgstore.Statistics", "SELECT")
	defer span.End()

	zone := "UTC"
	if q.Location != nil {
		zone = q.Location.String()
	}
	if zone == "Local" {
		rows, err := s.window(ctx, q)
		if err != nil {
			return nil, fail(span, err)
		}
		return incident.Tally(rows, q), nil
	}

	query := `SELECT category, location, to_char(created_at AT TIME ZONE $2, 'YYYY-MM-DD') AS day, count(*)
		FROM incidents
		WHERE created_at >= $1 AND ($3 = '' OR category = $3)
		GROUP BY category, location, day
		ORDER BY count(*) DESC, day DESC, category, location`
	rows, err := s.pool.Query(ctx, query, q.Since.UTC(), zone, string(q.Category))
	if err != nil {
		return nil, fail(span, fmt.Errorf("query statistics: %w", err))
	}
	defer rows.Close()

	out := []incident.StatRow{}
	for rows.Next() {
		var (
			r   incident.StatRow
			cat string
		)
		if err := rows.Scan(&cat, &r.Location, &r.Date, &r.Count); err != nil {
			return nil, fail(span, fmt.Errorf("scan statistics: %w", err))
		}
		r.Category = incident.Category(cat)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate statistics: %w", err))
	}
	return out, nil
}

func (s *Store) window(ctx context.Context, q incident.StatsQuery) ([]incident.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents
		WHERE created_at >= $1 AND ($2 = '' OR category = $2)`
	rows, err := s.pool.Query(ctx, query, q.Since.UTC(), string(q.Category))
	if err != nil {
		return nil, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()

	var out []incident.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate window: %w", err)
	}
	return out, nil
}

// SeedTemplates inserts templates whose kind is not present yet.
func (s *Store) SeedTemplates(ctx context.Context, templates []incident.Template) error {
	ctx, span := startSpan(ctx, "pgstore.SeedTemplates", "INSERT")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	for i := range templates {
		t := &templates[i]
		_, err := tx.Exec(ctx,
			`INSERT INTO advisory_templates (kind, category, template) VALUES ($1, $2, $3)
			 ON CONFLICT (kind) DO NOTHING`,
			t.Kind, string(t.Category), t.Text,
		)
		if err != nil {
			return fail(span, fmt.Errorf("seed template %s: %w", t.Kind, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fail(span, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// IncrementTemplateUsage bumps the usage counter of a template.
func (s *Store) IncrementTemplateUsage(ctx context.Context, kind string) (bool, error) {
	ctx, span := startSpan(ctx, "pgstore.IncrementTemplateUsage", "UPDATE")
	defer span.End()

	tag, err := s.pool.Exec(ctx,
		`UPDATE advisory_templates SET usage_count = usage_count + 1 WHERE kind = $1`, kind)
	if err != nil {
		return false, fail(span, fmt.Errorf("increment template usage: %w", err))
	}
	return tag.RowsAffected() > 0, nil
}

// ListTemplates returns templates in seed order.
func (s *Store) ListTemplates(ctx context.Context) ([]incident.Template, error) {
	ctx, span := startSpan(ctx, "pgstore.ListTemplates", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT kind, category, template, usage_count FROM advisory_templates ORDER BY id`)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query templates: %w", err))
	}
	defer rows.Close()

	out := []incident.Template{}
	for rows.Next() {
		var (
			t   incident.Template
			cat string
		)
		if err := rows.Scan(&t.Kind, &cat, &t.Text, &t.UsageCount); err != nil {
			return nil, fail(span, fmt.Errorf("scan template: %w", err))
		}
		t.Category = incident.Category(cat)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate templates: %w", err))
	}
	return out, nil
}

// scanIncident scans one row. pgx.ErrNoRows is returned unwrapped.
func scanIncident(row pgx.Row) (*incident.Incident, error) {
	var (
		inc                      incident.Incident
		category, status, source string
	)
	err := row.Scan(
		&inc.ID, &inc.OriginalMessage, &inc.Summary, &category, &inc.Priority, &inc.Confidence, &inc.Location,
		&inc.Coordinates, &status, &inc.AdvisoryMessage, &source, &inc.ReportedAt, &inc.CreatedAt, &inc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan incident: %w", err)
	}
	inc.Category = incident.Category(category)
	inc.Status = incident.Status(status)
	inc.Source = incident.Source(source)
	return &inc, nil
}
