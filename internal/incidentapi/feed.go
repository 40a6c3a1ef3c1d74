package incidentapi

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// handleProcessFeed starts a feed run in the background and answers with
// its id right away. The run does not stop when the client disconnects.
func (a *API) handleProcessFeed(w http.ResponseWriter, r *http.Request) {
	if a.feed == nil {
		writeError(w, http.StatusServiceUnavailable, "feed processing is not configured")
		return
	}

	if a.limiter != nil {
		res := a.limiter.Reserve()
		if delay := res.Delay(); !res.OK() || delay > 0 {
			res.Cancel()
			w.Header().Set("Retry-After", retryAfter(res.OK(), delay))
			writeError(w, http.StatusTooManyRequests, "feed run requested too recently")
			return
		}
	}

	runID := a.feed.Trigger(r.Context())
	if runID == "" {
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("roadwatch.ingest.run_id", runID))
	a.logger.Info(r.Context(), "manual feed run requested", "run_id", runID)

	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "run_id": runID})
}

// retryAfter renders a Retry-After value in whole seconds, at least one.
func retryAfter(ok bool, delay time.Duration) string {
	if !ok || delay < time.Second {
		return "1"
	}
	return strconv.Itoa(int(math.Ceil(delay.Seconds())))
}
