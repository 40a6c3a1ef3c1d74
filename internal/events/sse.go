package events

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// EventResync tells a viewer its Last-Event-ID could not be honoured and
// the incident list should be reloaded.
const EventResync = "resync"

// Handler streams broker events as Server-Sent Events. Reconnecting
// clients send Last-Event-ID (or ?lastEventId=) to resume. A comment line
// is written every heartbeat to keep idle connections open.
func Handler(b *Broker, heartbeat time.Duration) http.HandlerFunc {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		L := log.FromContext(ctx)
		rc := http.NewResponseController(w)

		// the server's write timeout would cut the stream
		if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
			L.Warn(ctx, "failed to clear write deadline for event stream", "err", err)
		}

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")

		sub, backlog, complete := b.Subscribe(lastEventID(r))
		defer b.Unsubscribe(sub)

		w.WriteHeader(http.StatusOK)
		if !complete {
			if err := writeEvent(w, Event{Name: EventResync, Data: []byte(strconv.FormatUint(b.LastID(), 10))}); err != nil {
				return
			}
		}
		for _, ev := range backlog {
			if err := writeEvent(w, ev); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			L.Error(ctx, err, "event stream not flushable")
			return
		}

		L.Info(ctx, "viewer connected", "viewer_id", sub.ID, "replayed", len(backlog))

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				L.Info(ctx, "viewer disconnected", "viewer_id", sub.ID)
				return
			case ev, ok := <-sub.C():
				if !ok {
					// dropped by the broker; the client reconnects with its last id
					return
				}
				if err := writeEvent(w, ev); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
					return
				}
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func lastEventID(r *http.Request) uint64 {
	v := r.Header.Get("Last-Event-ID")
	if v == "" {
		v = r.URL.Query().Get("lastEventId")
	}
	id, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// writeEvent writes ev in SSE framing. Events without an id (resync) are
// written without an id line so they do not move the client's cursor.
func writeEvent(w io.Writer, ev Event) error {
	var sb strings.Builder
	if ev.ID > 0 {
		fmt.Fprintf(&sb, "id: %d\n", ev.ID)
	}
	fmt.Fprintf(&sb, "event: %s\n", ev.Name)
	for _, line := range strings.Split(string(ev.Data), "\n") {
		sb.WriteString("data: ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')
	_, err := io.WriteString(w, sb.String())
	return err
}
