package events

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// readFrames reads n SSE frames (blank-line separated, comments skipped).
func readFrames(t *testing.T, sc *bufio.Scanner, n int) []map[string]string {
	t.Helper()
	var frames []map[string]string
	cur := map[string]string{}
	for len(frames) < n && sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if len(cur) > 0 {
				frames = append(frames, cur)
				cur = map[string]string{}
			}
		case strings.HasPrefix(line, ":"):
		default:
			k, v, _ := strings.Cut(line, ": ")
			cur[k] = v
		}
	}
	if len(frames) < n {
		t.Fatalf("read %d frames, want %d (err=%v)", len(frames), n, sc.Err())
	}
	return frames
}

func waitViewers(t *testing.T, b *Broker, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.Viewers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("viewers = %d, want %d", b.Viewers(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandler_StreamsEvents(t *testing.T) {
	t.Parallel()

	b := NewBroker(10, 10, log.Nop(), BrokerHooks{})
	srv := httptest.NewServer(Handler(b, time.Hour))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, http.NoBody)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	waitViewers(t, b, 1)
	b.Emit(context.Background(), "newIncident", map[string]int{"id": 7})
	b.Emit(context.Background(), "incidentUpdated", map[string]any{"id": 7, "status": "resolved"})

	frames := readFrames(t, bufio.NewScanner(resp.Body), 2)
	if frames[0]["id"] != "1" || frames[0]["event"] != "newIncident" || frames[0]["data"] != `{"id":7}` {
		t.Errorf("frame[0] = %v", frames[0])
	}
	if frames[1]["id"] != "2" || frames[1]["event"] != "incidentUpdated" {
		t.Errorf("frame[1] = %v", frames[1])
	}

	cancel()
	waitViewers(t, b, 0)
}

func TestHandler_ResumesFromLastEventID(t *testing.T) {
	t.Parallel()

	b := NewBroker(10, 10, log.Nop(), BrokerHooks{})
	for i := range 3 {
		b.Emit(context.Background(), "newIncident", map[string]int{"id": i + 1})
	}

	srv := httptest.NewServer(Handler(b, time.Hour))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, http.NoBody)
	req.Header.Set("Last-Event-ID", "1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	frames := readFrames(t, bufio.NewScanner(resp.Body), 2)
	if frames[0]["id"] != "2" || frames[1]["id"] != "3" {
		t.Errorf("replayed ids = %s, %s; want 2, 3", frames[0]["id"], frames[1]["id"])
	}
}

func TestHandler_ResyncOnUnknownID(t *testing.T) {
	t.Parallel()

	b := NewBroker(10, 10, log.Nop(), BrokerHooks{})
	b.Emit(context.Background(), "newIncident", 1)

	srv := httptest.NewServer(Handler(b, time.Hour))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?lastEventId=500", http.NoBody)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	frames := readFrames(t, bufio.NewScanner(resp.Body), 1)
	if frames[0]["event"] != EventResync || frames[0]["data"] != "1" {
		t.Errorf("frame = %v, want resync with last id 1", frames[0])
	}
	if _, ok := frames[0]["id"]; ok {
		t.Error("resync frame must not carry an id")
	}
}

func TestLastEventID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header, query string
		want          uint64
	}{
		{"", "", 0},
		{"42", "", 42},
		{"", "7", 7},
		{"9", "7", 9},
		{"abc", "", 0},
		{"-1", "", 0},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/events?lastEventId="+tt.query, http.NoBody)
		if tt.header != "" {
			r.Header.Set("Last-Event-ID", tt.header)
		}
		if got := lastEventID(r); got != tt.want {
			t.Errorf("lastEventID(header=%q, query=%q) = %d, want %d", tt.header, tt.query, got, tt.want)
		}
	}
}

func TestWriteEvent_MultilineData(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	if err := writeEvent(&sb, Event{ID: 3, Name: "x", Data: []byte("a\nb")}); err != nil {
		t.Fatal(err)
	}
	want := "id: 3\nevent: x\ndata: a\ndata: b\n\n"
	if sb.String() != want {
		t.Errorf("got %q, want %q", sb.String(), want)
	}
}
