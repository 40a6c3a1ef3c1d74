// Package incidentapi serves the operator dashboard's JSON API.
package incidentapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/roadwatch/internal/incident"
)

// IncidentService defines the business operations the API needs.
type IncidentService interface {
	Submit(ctx context.Context, sub *incident.Submission) (*incident.Incident, error)
	List(ctx context.Context) ([]incident.Incident, error)
	UpdateStatus(ctx context.Context, id int64, status string) (*incident.StatusUpdate, error)
	Statistics(ctx context.Context, period, category string) ([]incident.StatRow, error)
	SendAdvisory(ctx context.Context, req *incident.AdvisoryRequest) (*incident.AdvisoryResult, error)
	Templates(ctx context.Context) ([]incident.Template, error)
}

// FeedTrigger starts a feed run and returns its id, or "" when runs can no
// longer be started (shutdown).
type FeedTrigger interface {
	Trigger(ctx context.Context) string
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger  log.Logger
	svc     IncidentService
	feed    FeedTrigger
	limiter *rate.Limiter
}

// New creates a new API handler. feed may be nil, in which case the manual
// run endpoints answer 503. limiter throttles manual runs; nil means no limit.
func New(logger log.Logger, svc IncidentService, feed FeedTrigger, limiter *rate.Limiter) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("incident service is required"))
	}
	return &API{
		logger:  logger,
		svc:     svc,
		feed:    feed,
		limiter: limiter,
	}
}

// RegisterRoutes attaches API endpoints to the router. The event stream is
// mounted separately because it must bypass response compression.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/api/incidents", a.handleListIncidents)
	r.Post("/api/incidents", a.handleSubmitIncident)
	r.Put("/api/incidents/{id}/status", a.handleUpdateStatus)
	r.Get("/api/statistics", a.handleStatistics)
	r.Post("/api/advisory/send", a.handleSendAdvisory)
	r.Get("/api/advisory/templates", a.handleListTemplates)
	r.Post("/api/process-feed", a.handleProcessFeed)
	r.Post("/api/process-csv", a.handleProcessFeed)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps service errors onto status codes. Unexpected errors are logged
// and hidden behind a generic message.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case incident.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, incident.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, incident.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
	default:
		a.logger.Error(r.Context(), err, op+" failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}
