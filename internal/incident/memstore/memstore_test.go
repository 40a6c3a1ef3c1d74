package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/linnemanlabs/roadwatch/internal/incident"
)

func draft(msg, loc string, prio int) *incident.Draft {
	return &incident.Draft{
		OriginalMessage: msg,
		Summary:         "[TEST] " + msg,
		Category:        incident.CategoryIncident,
		Priority:        prio,
		Confidence:      0.7,
		Location:        loc,
		Source:          incident.SourceFeed,
	}
}

func TestStore_InsertAndGet(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	inc, err := s.Insert(ctx, draft("차량 고장", "경부고속도로 10km", 3))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if inc.ID == 0 {
		t.Fatal("expected store-assigned ID")
	}
	if inc.Status != incident.StatusUnread {
		t.Errorf("Status = %q, want %q", inc.Status, incident.StatusUnread)
	}
	if inc.CreatedAt.IsZero() || !inc.CreatedAt.Equal(inc.UpdatedAt) {
		t.Errorf("timestamps not initialized: created=%v updated=%v", inc.CreatedAt, inc.UpdatedAt)
	}

	got, ok, err := s.Get(ctx, inc.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected incident to be found")
	}
	if got.OriginalMessage != "차량 고장" {
		t.Errorf("OriginalMessage = %q, want %q", got.OriginalMessage, "차량 고장")
	}
}

func TestStore_GetMissing(t *testing.T) {
	t.Parallel()

	s := New()
	_, ok, err := s.Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing ID")
	}
}

func TestStore_InsertDuplicate(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	if _, err := s.Insert(ctx, draft("정체", "강변북로", 3)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	_, err := s.Insert(ctx, draft("정체", "강변북로", 3))
	if !errors.Is(err, incident.ErrDuplicate) {
		t.Fatalf("second Insert err = %v, want ErrDuplicate", err)
	}

	// same message, different location is a different incident
	if _, err := s.Insert(ctx, draft("정체", "올림픽대로", 3)); err != nil {
		t.Fatalf("Insert other location: %v", err)
	}
}

func TestStore_ListActiveOrderAndFilter(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	s.SetClock(func() time.Time { return base.Add(time.Duration(tick.Add(1)) * time.Minute) })

	low, _ := s.Insert(ctx, draft("a", "x", 1))
	highOld, _ := s.Insert(ctx, draft("b", "x", 5))
	highNew, _ := s.Insert(ctx, draft("c", "x", 5))
	done, _ := s.Insert(ctx, draft("d", "x", 4))
	if err := s.UpdateStatus(ctx, done.ID, incident.StatusResolved, base); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, err := s.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	want := []int64{highNew.ID, highOld.ID, low.ID}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("got[%d].ID = %d, want %d", i, got[i].ID, id)
		}
		if got[i].Status == incident.StatusResolved {
			t.Errorf("got[%d] is resolved", i)
		}
	}
}

func TestStore_UpdateStatus(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	inc, _ := s.Insert(ctx, draft("m", "l", 3))

	later := inc.CreatedAt.Add(time.Hour)
	if err := s.UpdateStatus(ctx, inc.ID, incident.StatusChecking, later); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, _, _ := s.Get(ctx, inc.ID)
	if got.Status != incident.StatusChecking {
		t.Errorf("Status = %q, want %q", got.Status, incident.StatusChecking)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, later)
	}
	if !got.CreatedAt.Equal(inc.CreatedAt) {
		t.Error("CreatedAt changed on update")
	}

	if err := s.UpdateStatus(ctx, 999, incident.StatusResolved, later); !errors.Is(err, incident.ErrNotFound) {
		t.Errorf("UpdateStatus unknown id err = %v, want ErrNotFound", err)
	}
}

func TestStore_SetAdvisory(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	inc, _ := s.Insert(ctx, draft("m", "l", 3))

	if err := s.SetAdvisory(ctx, inc.ID, "l 서행 바랍니다", time.Now()); err != nil {
		t.Fatalf("SetAdvisory: %v", err)
	}
	got, _, _ := s.Get(ctx, inc.ID)
	if got.AdvisoryMessage != "l 서행 바랍니다" {
		t.Errorf("AdvisoryMessage = %q", got.AdvisoryMessage)
	}
	if err := s.SetAdvisory(ctx, 999, "x", time.Now()); !errors.Is(err, incident.ErrNotFound) {
		t.Errorf("SetAdvisory unknown id err = %v, want ErrNotFound", err)
	}
}

func TestStore_Templates(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	seed := []incident.Template{
		{Kind: "accident", Category: incident.CategoryAccident, Text: "{location} 교통사고 발생, 우회 바랍니다"},
		{Kind: "weather", Category: incident.CategoryIncident, Text: "{location} 기상악화, 안전운전 하세요"},
	}
	if err := s.SeedTemplates(ctx, seed); err != nil {
		t.Fatalf("SeedTemplates: %v", err)
	}

	ok, err := s.IncrementTemplateUsage(ctx, "accident")
	if err != nil || !ok {
		t.Fatalf("IncrementTemplateUsage = %v, %v", ok, err)
	}
	// reseeding keeps counters
	if err := s.SeedTemplates(ctx, seed); err != nil {
		t.Fatalf("SeedTemplates again: %v", err)
	}
	ok, err = s.IncrementTemplateUsage(ctx, "missing")
	if err != nil || ok {
		t.Fatalf("IncrementTemplateUsage(missing) = %v, %v; want false, nil", ok, err)
	}

	got, err := s.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("templates = %d, want 2", len(got))
	}
	if got[0].Kind != "accident" || got[0].UsageCount != 1 {
		t.Errorf("got[0] = %+v, want accident with usage 1", got[0])
	}
	if got[1].UsageCount != 0 {
		t.Errorf("got[1].UsageCount = %d, want 0", got[1].UsageCount)
	}
}

func TestStore_StatisticsWindow(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	s.SetClock(func() time.Time { return now.Add(-48 * time.Hour) })
	_, _ = s.Insert(ctx, draft("old", "A", 3))
	s.SetClock(func() time.Time { return now })
	_, _ = s.Insert(ctx, draft("new1", "A", 3))
	_, _ = s.Insert(ctx, draft("new2", "A", 3))

	rows, err := s.Statistics(ctx, incident.StatsQuery{Since: incident.PeriodDay.Since(now), Location: time.UTC})
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %+v, want one bucket", rows)
	}
	if rows[0].Count != 2 || rows[0].Date != "2026-03-10" {
		t.Errorf("row = %+v, want count 2 on 2026-03-10", rows[0])
	}
}

func TestStore_ConcurrentInsertSameKey(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	const n = 50

	var wg sync.WaitGroup
	var created atomic.Int32
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			if _, err := s.Insert(ctx, draft("same", "place", 3)); err == nil {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	if created.Load() != 1 {
		t.Errorf("created = %d, want exactly 1", created.Load())
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	const n = 100

	var wg sync.WaitGroup
	wg.Add(n * 2)

	for i := range n {
		msg := fmt.Sprintf("msg-%d", i)

		go func() {
			defer wg.Done()
			_, _ = s.Insert(ctx, draft(msg, "loc", i%5+1))
		}()

		go func() {
			defer wg.Done()
			_, _ = s.ListActive(ctx)
			_, _, _ = s.Get(ctx, int64(i))
		}()
	}

	wg.Wait()
}
