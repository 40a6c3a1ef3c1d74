package incident

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// Enricher turns raw operator input into a classified, prioritized draft and
// recognizes advisory texts generated from known templates.
type Enricher interface {
	FromSubmission(sub *Submission, at time.Time) Draft
	MatchAdvisory(message, location string) (kind string, ok bool)
}

// ServiceHooks are optional callbacks for instrumentation.
type ServiceHooks struct {
	OnSubmit       func(result string)
	OnCreated      func(inc *Incident)
	OnStatusChange func(status Status)
	OnAdvisory     func(matched bool)
}

// AdvisoryResult is the outcome of SendAdvisory.
type AdvisoryResult struct {
	Message      string `json:"message"`
	Location     string `json:"location"`
	TemplateKind string `json:"template_kind,omitempty"`
}

// Service is the business boundary for incident operations.
type Service struct {
	store    Store
	enricher Enricher
	emitter  Emitter
	logger   log.Logger
	hooks    ServiceHooks
	now      func() time.Time
	loc      *time.Location
}

// NewService creates a new incident service.
func NewService(store Store, enricher Enricher, emitter Emitter, logger log.Logger, hooks ServiceHooks) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	if emitter == nil {
		emitter = nopEmitter{}
	}
	return &Service{
		store:    store,
		enricher: enricher,
		emitter:  emitter,
		logger:   logger,
		hooks:    hooks,
		now:      time.Now,
		loc:      time.Local,
	}
}

// SetTimezone sets the zone statistics day boundaries are computed in.
func (s *Service) SetTimezone(loc *time.Location) {
	if loc != nil {
		s.loc = loc
	}
}

// Submit classifies and stores an operator report, then announces it.
func (s *Service) Submit(ctx context.Context, sub *Submission) (*Incident, error) {
	sub.Message = strings.TrimSpace(sub.Message)
	sub.Location = strings.TrimSpace(sub.Location)
	sub.Coordinates = strings.TrimSpace(sub.Coordinates)

	if sub.Message == "" {
		s.submitResult("invalid")
		return nil, invalid("message", "required")
	}
	if sub.Location == "" {
		s.submitResult("invalid")
		return nil, invalid("location", "required")
	}

	d := s.enricher.FromSubmission(sub, s.now())
	inc, err := s.Record(ctx, &d)
	switch {
	case errors.Is(err, ErrDuplicate):
		s.submitResult("duplicate")
		return nil, err
	case err != nil:
		s.submitResult("error")
		return nil, err
	}
	s.submitResult("created")
	return inc, nil
}

// Record persists an enriched draft and emits newIncident. Duplicates are
// reported as ErrDuplicate and emit nothing.
func (s *Service) Record(ctx context.Context, d *Draft) (*Incident, error) {
	inc, err := s.store.Insert(ctx, d)
	if err != nil {
		return nil, err
	}

	s.emitter.Emit(ctx, EventNewIncident, inc)
	if s.hooks.OnCreated != nil {
		s.hooks.OnCreated(inc)
	}

	s.logger.Info(ctx, "incident registered",
		"incident_id", inc.ID,
		"category", inc.Category,
		"priority", inc.Priority,
		"source", inc.Source,
		"summary", inc.Summary,
	)
	return inc, nil
}

// Get retrieves an incident by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Incident, bool, error) {
	return s.store.Get(ctx, id)
}

// List returns the active (non-resolved) incidents, most urgent first.
func (s *Service) List(ctx context.Context) ([]Incident, error) {
	return s.store.ListActive(ctx)
}

// UpdateStatus changes the status of an incident and emits incidentUpdated.
// Setting the same status twice is allowed and emits twice.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status string) (*StatusUpdate, error) {
	st, ok := ParseStatus(status)
	if !ok {
		return nil, invalid("status", "must be one of unread, checking, resolved")
	}

	if err := s.store.UpdateStatus(ctx, id, st, s.now()); err != nil {
		return nil, err
	}

	upd := &StatusUpdate{ID: id, Status: st}
	s.emitter.Emit(ctx, EventIncidentUpdated, upd)
	if s.hooks.OnStatusChange != nil {
		s.hooks.OnStatusChange(st)
	}
	return upd, nil
}

// Statistics aggregates incidents in the period ending now. An empty or
// "all" category means every category.
func (s *Service) Statistics(ctx context.Context, period, category string) ([]StatRow, error) {
	p, ok := ParsePeriod(period)
	if !ok {
		return nil, invalid("period", "must be one of day, week, month")
	}

	q := StatsQuery{Since: p.Since(s.now().In(s.loc)), Location: s.loc}
	if c := strings.TrimSpace(category); c != "" && !strings.EqualFold(c, "all") {
		cat, ok := ParseCategory(c)
		if !ok {
			return nil, invalid("category", "must be one of accident, incident, other")
		}
		q.Category = cat
	}

	rows, err := s.store.Statistics(ctx, q)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []StatRow{}
	}
	return rows, nil
}

// SendAdvisory records the operator's advisory text on the incident and
// counts a use of the template it was generated from, if any. Delivery to
// the signage system itself is logged only.
func (s *Service) SendAdvisory(ctx context.Context, req *AdvisoryRequest) (*AdvisoryResult, error) {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return nil, invalid("message", "required")
	}
	location := strings.TrimSpace(req.Location)

	if req.IncidentID != 0 {
		inc, ok, err := s.store.Get(ctx, req.IncidentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNotFound
		}
		if location == "" {
			location = inc.Location
		}
		if err := s.store.SetAdvisory(ctx, req.IncidentID, msg, s.now()); err != nil {
			return nil, err
		}
	}

	res := &AdvisoryResult{Message: msg, Location: location}
	if kind, ok := s.enricher.MatchAdvisory(msg, location); ok {
		found, err := s.store.IncrementTemplateUsage(ctx, kind)
		if err != nil {
			// counting is best effort, the advisory itself went out
			s.logger.Error(ctx, err, "failed to count template usage", "kind", kind)
		} else if found {
			res.TemplateKind = kind
		}
	}
	if s.hooks.OnAdvisory != nil {
		s.hooks.OnAdvisory(res.TemplateKind != "")
	}

	s.logger.Info(ctx, "advisory dispatched",
		"incident_id", req.IncidentID,
		"location", location,
		"message", msg,
		"template", res.TemplateKind,
	)
	return res, nil
}

// Templates lists advisory templates with their usage counters.
func (s *Service) Templates(ctx context.Context) ([]Template, error) {
	return s.store.ListTemplates(ctx)
}

func (s *Service) submitResult(result string) {
	if s.hooks.OnSubmit != nil {
		s.hooks.OnSubmit(result)
	}
}
