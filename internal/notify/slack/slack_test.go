package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/roadwatch/internal/incident"
)

func testIncident() *incident.Incident {
	return &incident.Incident{
		ID:              42,
		OriginalMessage: "터널 화재 발생 (인명 구조)",
		Summary:         "[화재] 남산 1호터널 - 터널 화재 발생...",
		Category:        incident.CategoryIncident,
		Priority:        5,
		Confidence:      0.83,
		Location:        "서울 중구 남산 1호터널",
		Coordinates:     "37.55,126.99",
		AdvisoryMessage: "서울 중구 남산 1호터널 교통상황 주의",
		Source:          incident.SourceFeed,
		ReportedAt:      time.Date(2026, 2, 26, 14, 23, 0, 0, time.UTC),
	}
}

func TestSend_PostsToWebhook(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, 4, log.Nop())
	if err := n.Send(context.Background(), testIncident()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	blocks, ok := got["blocks"].([]any)
	if !ok {
		t.Fatal("expected blocks array in payload")
	}

	// header, divider, fields, divider, message, divider, context = 7 blocks
	if len(blocks) != 7 {
		t.Errorf("blocks count = %d, want 7", len(blocks))
	}

	header := blocks[0].(map[string]any)
	headerText := header["text"].(map[string]any)["text"].(string)
	if !strings.Contains(headerText, "P5 INCIDENT") || !strings.Contains(headerText, "남산 1호터널") {
		t.Errorf("header text = %q", headerText)
	}
	if !strings.Contains(headerText, "\U0001f534") {
		t.Errorf("header should contain red circle for priority 5")
	}

	fields := blocks[2].(map[string]any)["fields"].([]any)
	if len(fields) != 5 {
		t.Errorf("fields = %d, want 5 with coordinates", len(fields))
	}

	ctxText := blocks[6].(map[string]any)["elements"].([]any)[0].(map[string]any)["text"].(string)
	if !strings.Contains(ctxText, "incident 42") || !strings.Contains(ctxText, "2026-02-26 14:23 UTC") {
		t.Errorf("context text = %q", ctxText)
	}
}

func TestSend_NoOpWithoutURL(t *testing.T) {
	t.Parallel()

	n := New("", 1, log.Nop())
	if err := n.Send(context.Background(), &incident.Incident{}); err != nil {
		t.Fatalf("Send with empty URL should be no-op, got: %v", err)
	}
}

func TestSend_Non2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer srv.Close()

	err := New(srv.URL, 1, log.Nop()).Send(context.Background(), testIncident())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("err = %v, want 403 error", err)
	}
}

func TestEmit_FiltersByEventAndPriority(t *testing.T) {
	t.Parallel()

	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, 4, log.Nop())
	ctx := context.Background()

	low := testIncident()
	low.Priority = 3
	n.Emit(ctx, incident.EventNewIncident, low)
	n.Emit(ctx, incident.EventIncidentUpdated, &incident.StatusUpdate{ID: 1, Status: incident.StatusResolved})
	n.Emit(ctx, incident.EventNewIncident, "not an incident")
	n.Emit(ctx, incident.EventNewIncident, testIncident())

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := n.Wait(waitCtx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if posts.Load() != 1 {
		t.Errorf("posts = %d, want 1", posts.Load())
	}
}

func TestEmit_OutlivesCancelledContext(t *testing.T) {
	t.Parallel()

	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, 1, log.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	n.Emit(ctx, incident.EventNewIncident, testIncident())
	cancel()

	if err := n.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if posts.Load() != 1 {
		t.Errorf("posts = %d, want 1", posts.Load())
	}
}

func TestMessage_TruncatesLongReport(t *testing.T) {
	t.Parallel()

	inc := testIncident()
	inc.OriginalMessage = strings.Repeat("가", 5000)

	blocks := buildMessage(inc)["blocks"].([]map[string]any)
	text := blocks[4]["text"].(map[string]any)["text"].(string)
	if n := utf8.RuneCountInString(text); n > maxMessageLen {
		t.Errorf("message runes = %d, want <= %d", n, maxMessageLen)
	}
	if !strings.HasSuffix(text, "...") {
		t.Error("expected truncated message to end with ...")
	}
	if !utf8.ValidString(text) {
		t.Error("truncation split a rune")
	}
}

func TestPriorityEmoji(t *testing.T) {
	t.Parallel()

	tests := []struct {
		priority int
		want     string
	}{
		{5, "\U0001f534"},
		{4, "\U0001f7e0"},
		{3, "\U0001f7e1"},
		{2, "\U0001f7e2"},
		{1, "\U0001f7e2"},
	}

	for _, tt := range tests {
		if got := priorityEmoji(tt.priority); got != tt.want {
			t.Errorf("priorityEmoji(%d) = %q, want %q", tt.priority, got, tt.want)
		}
	}
}

func FuzzSlackBuild(f *testing.F) {
	f.Add("서울 강남구", "[ACCIDENT] 고속도로", "고속도로 추돌 사고 발생", 4)
	f.Add("", "", "", 0)
	f.Add("<@U123> mention", "*bold* _italic_ ~strike~", "```code``` <http://example.com|link>", 5)
	f.Add("loc\x00\x01\x02", "sum\nline", "msg\ttab", 9)
	f.Add(strings.Repeat("A", 5000), strings.Repeat("x", 10000), strings.Repeat("가", 4000), 3)

	f.Fuzz(func(t *testing.T, location, summary, message string, priority int) {
		inc := testIncident()
		inc.Location = location
		inc.Summary = summary
		inc.OriginalMessage = message
		inc.Priority = priority

		// Must not panic
		msg := buildMessage(inc)

		// Must produce valid JSON
		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("buildMessage produced non-marshalable output: %v", err)
		}

		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("round-trip unmarshal failed: %v", err)
		}
	})
}
