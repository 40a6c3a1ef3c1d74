package incident

import (
	"context"
	"time"
)

// Store is the persistence interface for incidents and advisory templates.
type Store interface {
	// Insert persists a draft unless an incident with the same original
	// message and location exists, in which case it returns ErrDuplicate.
	// The check and the insert are a single atomic step.
	Insert(ctx context.Context, d *Draft) (*Incident, error)
	Get(ctx context.Context, id int64) (*Incident, bool, error)
	// ListActive returns every non-resolved incident ordered priority desc, created_at desc.
	ListActive(ctx context.Context) ([]Incident, error)
	// UpdateStatus sets the status and refreshes updated_at. Returns ErrNotFound for unknown IDs.
	UpdateStatus(ctx context.Context, id int64, status Status, at time.Time) error
	// SetAdvisory overrides the advisory message. Returns ErrNotFound for unknown IDs.
	SetAdvisory(ctx context.Context, id int64, message string, at time.Time) error
	Statistics(ctx context.Context, q StatsQuery) ([]StatRow, error)

	// SeedTemplates inserts templates that do not exist yet, keeping usage counters.
	SeedTemplates(ctx context.Context, templates []Template) error
	// IncrementTemplateUsage bumps the counter of the template with the given kind.
	// It reports false when no such template exists.
	IncrementTemplateUsage(ctx context.Context, kind string) (bool, error)
	ListTemplates(ctx context.Context) ([]Template, error)
}

// Emitter publishes events to whoever is listening (viewers, mirrors, notifiers).
// Implementations must not block the caller.
type Emitter interface {
	Emit(ctx context.Context, name string, payload any)
}

// Emitters fans one event out to several emitters in order.
type Emitters []Emitter

// Emit implements Emitter.
func (es Emitters) Emit(ctx context.Context, name string, payload any) {
	for _, e := range es {
		if e != nil {
			e.Emit(ctx, name, payload)
		}
	}
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, string, any) {}
