package incidentapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/roadwatch/internal/incident"
)

func (a *API) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.List(r.Context())
	if err != nil {
		a.fail(w, r, err, "list incidents")
		return
	}
	if items == nil {
		items = []incident.Incident{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleSubmitIncident(w http.ResponseWriter, r *http.Request) {
	var sub incident.Submission
	if err := decode(r, &sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	inc, err := a.svc.Submit(r.Context(), &sub)
	if err != nil {
		a.fail(w, r, err, "submit incident")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.Int64("roadwatch.incident.id", inc.ID),
		attribute.String("roadwatch.incident.category", string(inc.Category)),
		attribute.Int("roadwatch.incident.priority", inc.Priority),
	)

	writeJSON(w, http.StatusOK, inc)
}

func (a *API) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(attribute.Int64("roadwatch.incident.id", id))

	upd, err := a.svc.UpdateStatus(r.Context(), id, body.Status)
	if err != nil {
		a.fail(w, r, err, "update status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": upd.ID, "status": upd.Status})
}

func (a *API) handleStatistics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := a.svc.Statistics(r.Context(), q.Get("period"), q.Get("category"))
	if err != nil {
		a.fail(w, r, err, "statistics")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) handleSendAdvisory(w http.ResponseWriter, r *http.Request) {
	var req incident.AdvisoryRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	res, err := a.svc.SendAdvisory(r.Context(), &req)
	if err != nil {
		a.fail(w, r, err, "send advisory")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  res.Message,
		"location": res.Location,
		"template": res.TemplateKind,
	})
}

func (a *API) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Templates(r.Context())
	if err != nil {
		a.fail(w, r, err, "list templates")
		return
	}
	if list == nil {
		list = []incident.Template{}
	}
	writeJSON(w, http.StatusOK, list)
}
