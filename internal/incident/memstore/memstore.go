// Package memstore provides an in-memory implementation of incident.Store.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/roadwatch/internal/incident"
)

// Store holds incidents in memory. Suitable for dev/testing.
type Store struct {
	mu        sync.RWMutex
	nextID    int64
	incidents map[int64]*incident.Incident // incident ID -> incident
	seen      map[string]int64             // message+location -> incident ID (uniqueness)
	templates map[string]*incident.Template
	order     []string // template kinds in seed order
	now       func() time.Time
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		incidents: make(map[int64]*incident.Incident),
		seen:      make(map[string]int64),
		templates: make(map[string]*incident.Template),
		now:       time.Now,
	}
}

// SetClock replaces the clock used for created_at on insert.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func uniqueKey(message, location string) string {
	return message + "\x00" + location
}

// Insert stores a copy of the draft as a new incident, or returns
// incident.ErrDuplicate if the message/location pair is already present.
func (s *Store) Insert(_ context.Context, d *incident.Draft) (*incident.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := uniqueKey(d.OriginalMessage, d.Location)
	if _, ok := s.seen[key]; ok {
		return nil, incident.ErrDuplicate
	}

	s.nextID++
	inc := d.Build(s.nextID, s.now())
	s.incidents[inc.ID] = &inc
	s.seen[key] = inc.ID

	cp := inc
	return &cp, nil
}

// Get retrieves an incident by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id int64) (*incident.Incident, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, false, nil
	}
	cp := *inc
	return &cp, true, nil
}

// ListActive returns copies of all non-resolved incidents.
func (s *Store) ListActive(_ context.Context) ([]incident.Incident, error) {
	s.mu.RLock()
	out := make([]incident.Incident, 0, len(s.incidents))
	for _, inc := range s.incidents {
		if inc.Status == incident.StatusResolved {
			continue
		}
		out = append(out, *inc)
	}
	s.mu.RUnlock()

	incident.SortActive(out)
	return out, nil
}

// UpdateStatus sets the status of an incident.
func (s *Store) UpdateStatus(_ context.Context, id int64, status incident.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return incident.ErrNotFound
	}
	inc.Status = status
	inc.UpdatedAt = at
	return nil
}

// SetAdvisory overrides the advisory message of an incident.
func (s *Store) SetAdvisory(_ context.Context, id int64, message string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return incident.ErrNotFound
	}
	inc.AdvisoryMessage = message
	inc.UpdatedAt = at
	return nil
}

// Statistics aggregates the incidents in the query window.
func (s *Store) Statistics(_ context.Context, q incident.StatsQuery) ([]incident.StatRow, error) {
	s.mu.RLock()
	items := make([]incident.Incident, 0, len(s.incidents))
	for _, inc := range s.incidents {
		items = append(items, *inc)
	}
	s.mu.RUnlock()

	return incident.Tally(items, q), nil
}

// SeedTemplates adds templates whose kind is not present yet.
func (s *Store) SeedTemplates(_ context.Context, templates []incident.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range templates {
		if _, ok := s.templates[t.Kind]; ok {
			continue
		}
		cp := t
		s.templates[t.Kind] = &cp
		s.order = append(s.order, t.Kind)
	}
	return nil
}

// IncrementTemplateUsage bumps the usage counter of a template.
func (s *Store) IncrementTemplateUsage(_ context.Context, kind string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[kind]
	if !ok {
		return false, nil
	}
	t.UsageCount++
	return true, nil
}

// ListTemplates returns copies of all templates in seed order.
func (s *Store) ListTemplates(_ context.Context) ([]incident.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]incident.Template, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, *s.templates[k])
	}
	return out, nil
}
