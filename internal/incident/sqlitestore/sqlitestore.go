// Package sqlitestore provides a single-file SQLite implementation of
// incident.Store and a persistent dedup ledger, for deployments without
// PostgreSQL.
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/linnemanlabs/roadwatch/internal/incident"
)

const tracerName = "github.com/linnemanlabs/roadwatch/internal/incident/sqlitestore"

//go:embed migrations/*.sql
var migrations embed.FS

// Store persists incidents in a SQLite database file.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and migrates it to the
// latest schema.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one writer at a time; SQLite serializes writes anyway
	db.SetMaxOpenConns(1)

	if err := migrateUp(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// SetClock replaces the clock used for created_at and ledger marks.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// incidentRow mirrors the incidents table. Times are unix milliseconds.
type incidentRow struct {
	ID              int64   `db:"id"`
	OriginalMessage string  `db:"original_message"`
	Summary         string  `db:"summary"`
	Category        string  `db:"category"`
	Priority        int     `db:"priority"`
	Confidence      float64 `db:"confidence"`
	Location        string  `db:"location"`
	Coordinates     string  `db:"coordinates"`
	Status          string  `db:"status"`
	AdvisoryMessage string  `db:"advisory_message"`
	Source          string  `db:"source"`
	ReportedAt      int64   `db:"reported_at"`
	CreatedAt       int64   `db:"created_at"`
	UpdatedAt       int64   `db:"updated_at"`
}

func fromIncident(inc *incident.Incident) incidentRow {
	return incidentRow{
		ID:              inc.ID,
		OriginalMessage: inc.OriginalMessage,
		Summary:         inc.Summary,
		Category:        string(inc.Category),
		Priority:        inc.Priority,
		Confidence:      inc.Confidence,
		Location:        inc.Location,
		Coordinates:     inc.Coordinates,
		Status:          string(inc.Status),
		AdvisoryMessage: inc.AdvisoryMessage,
		Source:          string(inc.Source),
		ReportedAt:      inc.ReportedAt.UnixMilli(),
		CreatedAt:       inc.CreatedAt.UnixMilli(),
		UpdatedAt:       inc.UpdatedAt.UnixMilli(),
	}
}

func (r *incidentRow) incident() incident.Incident {
	return incident.Incident{
		ID:              r.ID,
		OriginalMessage: r.OriginalMessage,
		Summary:         r.Summary,
		Category:        incident.Category(r.Category),
		Priority:        r.Priority,
		Confidence:      r.Confidence,
		Location:        r.Location,
		Coordinates:     r.Coordinates,
		Status:          incident.Status(r.Status),
		AdvisoryMessage: r.AdvisoryMessage,
		Source:          incident.Source(r.Source),
		ReportedAt:      time.UnixMilli(r.ReportedAt).UTC(),
		CreatedAt:       time.UnixMilli(r.CreatedAt).UTC(),
		UpdatedAt:       time.UnixMilli(r.UpdatedAt).UTC(),
	}
}

const incidentColumns = `id, original_message, summary, category, priority, confidence, location,
	coordinates, status, advisory_message, source, reported_at, created_at, updated_at`

// Insert stores the draft unless (original_message, location) already
// exists. The UNIQUE constraint makes check and insert one statement.
func (s *Store) Insert(ctx context.Context, d *incident.Draft) (*incident.Incident, error) {
	ctx, span := startSpan(ctx, "sqlitestore.Insert", "INSERT")
	defer span.End()

	inc := d.Build(0, s.now().UTC().Truncate(time.Millisecond))
	row := fromIncident(&inc)
	res, err := s.db.NamedExecContext(ctx, `INSERT OR IGNORE INTO incidents (
		original_message, summary, category, priority, confidence, location,
		coordinates, status, advisory_message, source, reported_at, created_at, updated_at
	) VALUES (
		:original_message, :summary, :category, :priority, :confidence, :location,
		:coordinates, :status, :advisory_message, :source, :reported_at, :created_at, :updated_at
	)`, row)
	if err != nil {
		return nil, fail(span, fmt.Errorf("insert incident: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fail(span, fmt.Errorf("rows affected: %w", err))
	}
	if n == 0 {
		span.SetAttributes(attribute.Bool("incident.duplicate", true))
		return nil, incident.ErrDuplicate
	}
	if inc.ID, err = res.LastInsertId(); err != nil {
		return nil, fail(span, fmt.Errorf("last insert id: %w", err))
	}

	span.SetAttributes(attribute.Int64("incident.id", inc.ID))
	out := row.incident()
	out.ID = inc.ID
	return &out, nil
}

// Get retrieves an incident by ID.
func (s *Store) Get(ctx context.Context, id int64) (*incident.Incident, bool, error) {
	ctx, span := startSpan(ctx, "sqlitestore.Get", "SELECT")
	defer span.End()

	var row incidentRow
	err := s.db.GetContext(ctx, &row, `SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fail(span, fmt.Errorf("get incident: %w", err))
	}
	inc := row.incident()
	return &inc, true, nil
}

// ListActive returns non-resolved incidents, priority desc, created_at desc.
func (s *Store) ListActive(ctx context.Context) ([]incident.Incident, error) {
	ctx, span := startSpan(ctx, "sqlitestore.ListActive", "SELECT")
	defer span.End()

	var rows []incidentRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+incidentColumns+` FROM incidents
		WHERE status <> 'resolved'
		ORDER BY priority DESC, created_at DESC, id DESC`)
	if err != nil {
		return nil, fail(span, fmt.Errorf("list incidents: %w", err))
	}
	return toIncidents(rows), nil
}

func toIncidents(rows []incidentRow) []incident.Incident {
	out := make([]incident.Incident, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].incident())
	}
	return out
}

// UpdateStatus sets the status of an incident.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status incident.Status, at time.Time) error {
	ctx, span := startSpan(ctx, "sqlitestore.UpdateStatus", "UPDATE")
	defer span.End()

	return s.update(ctx, span, `UPDATE incidents SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), at.UnixMilli(), id)
}

// SetAdvisory overrides the advisory message of an incident.
func (s *Store) SetAdvisory(ctx context.Context, id int64, message string, at time.Time) error {
	ctx, span := startSpan(ctx, "sqlitestore.SetAdvisory", "UPDATE")
	defer span.End()

	return s.update(ctx, span, `UPDATE incidents SET advisory_message = ?, updated_at = ? WHERE id = ?`,
		message, at.UnixMilli(), id)
}

func (s *Store) update(ctx context.Context, span trace.Span, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fail(span, fmt.Errorf("update incident: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fail(span, fmt.Errorf("rows affected: %w", err))
	}
	if n == 0 {
		return incident.ErrNotFound
	}
	return nil
}

// Statistics loads the window and tallies it in Go. SQLite has no zone
// database, so day bucketing happens on this side.
func (s *Store) Statistics(ctx context.Context, q incident.StatsQuery) ([]incident.StatRow, error) {
	ctx, span := startSpan(ctx, "sqlitestore.Statistics", "SELECT")
	defer span.End()

	var rows []incidentRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+incidentColumns+` FROM incidents
		WHERE created_at >= ? AND (? = '' OR category = ?)`,
		q.Since.UnixMilli(), string(q.Category), string(q.Category))
	if err != nil {
		return nil, fail(span, fmt.Errorf("query statistics: %w", err))
	}
	return incident.Tally(toIncidents(rows), q), nil
}

type templateRow struct {
	Kind       string `db:"kind"`
	Category   string `db:"category"`
	Text       string `db:"template"`
	UsageCount int    `db:"usage_count"`
}

// SeedTemplates inserts templates whose kind is not present yet.
func (s *Store) SeedTemplates(ctx context.Context, templates []incident.Template) error {
	ctx, span := startSpan(ctx, "sqlitestore.SeedTemplates", "INSERT")
	defer span.End()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is harmless

	for i := range templates {
		t := &templates[i]
		_, err := tx.NamedExecContext(ctx,
			`INSERT OR IGNORE INTO advisory_templates (kind, category, template) VALUES (:kind, :category, :template)`,
			templateRow{Kind: t.Kind, Category: string(t.Category), Text: t.Text})
		if err != nil {
			return fail(span, fmt.Errorf("seed template %s: %w", t.Kind, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fail(span, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// IncrementTemplateUsage bumps the usage counter of a template.
func (s *Store) IncrementTemplateUsage(ctx context.Context, kind string) (bool, error) {
	ctx, span := startSpan(ctx, "sqlitestore.IncrementTemplateUsage", "UPDATE")
	defer span.End()

	res, err := s.db.ExecContext(ctx,
		`UPDATE advisory_templates SET usage_count = usage_count + 1 WHERE kind = ?`, kind)
	if err != nil {
		return false, fail(span, fmt.Errorf("increment template usage: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fail(span, fmt.Errorf("rows affected: %w", err))
	}
	return n > 0, nil
}

// ListTemplates returns templates in seed order.
func (s *Store) ListTemplates(ctx context.Context) ([]incident.Template, error) {
	ctx, span := startSpan(ctx, "sqlitestore.ListTemplates", "SELECT")
	defer span.End()

	var rows []templateRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT kind, category, template, usage_count FROM advisory_templates ORDER BY id`); err != nil {
		return nil, fail(span, fmt.Errorf("list templates: %w", err))
	}

	out := make([]incident.Template, 0, len(rows))
	for _, r := range rows {
		out = append(out, incident.Template{
			Kind:       r.Kind,
			Category:   incident.Category(r.Category),
			Text:       r.Text,
			UsageCount: r.UsageCount,
		})
	}
	return out, nil
}
