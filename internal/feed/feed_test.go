package feed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var kst = time.FixedZone("KST", 9*3600)

func TestRecord_Key(t *testing.T) {
	t.Parallel()

	r := Record{
		RawTime:  "20240115093000",
		Location: "서울 강남구",
		Content:  "강남대로 교차로에서 승용차 두 대가 추돌하여 차선이 막혔습니다",
	}
	want := "20240115093000_서울 강남구_강남대로 교차로에서 승용차 두 대가 "
	if got := r.Key(); got != want {
		t.Errorf("Key = %q, want %q", got, want)
	}

	short := Record{RawTime: "x", Location: "", Content: "짧음"}
	if got := short.Key(); got != "x__짧음" {
		t.Errorf("Key = %q", got)
	}
}

func TestRecord_Message(t *testing.T) {
	t.Parallel()

	r := Record{Content: "차량 고장", Reason: "견인 요청"}
	if got := r.Message(); got != "차량 고장 (견인 요청)" {
		t.Errorf("Message = %q", got)
	}
	r.Reason = ""
	if got := r.Message(); got != "차량 고장" {
		t.Errorf("Message without reason = %q", got)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, kst)
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"20240115093000", time.Date(2024, 1, 15, 9, 30, 0, 0, kst), true},
		{" 20240115093000 ", time.Date(2024, 1, 15, 9, 30, 0, 0, kst), true},
		{"2024011509300", now, false},
		{"20241315093000", now, false},
		{"abcdefghijklmn", now, false},
		{"", now, false},
	}
	for _, tt := range tests {
		got, ok := ParseTimestamp(tt.in, kst, now)
		if ok != tt.ok || !got.Equal(tt.want) {
			t.Errorf("ParseTimestamp(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

const koreanCSV = "\ufeff접수일시,재난종별,재난위치,경위도,신고내용,요청사유\n" +
	"20240115093000,교통사고,서울 강남구 테헤란로,\"37.5,127.0\",차량 추돌,인명 구조\n" +
	"bad,기상,부산 해운대구,,도로 침수,\n" +
	"20240115100000,기타,대전,,,\n"

func TestParseCSV_Korean(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, kst)
	recs, err := ParseCSV(strings.NewReader(koreanCSV), kst, now)
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2 (empty content skipped)", len(recs))
	}

	r := recs[0]
	if r.DisasterType != "교통사고" || r.Location != "서울 강남구 테헤란로" || r.Coordinates != "37.5,127.0" {
		t.Errorf("record = %+v", r)
	}
	if r.Content != "차량 추돌" || r.Reason != "인명 구조" {
		t.Errorf("content/reason = %q/%q", r.Content, r.Reason)
	}
	if !r.ReportedAt.Equal(time.Date(2024, 1, 15, 9, 30, 0, 0, kst)) {
		t.Errorf("ReportedAt = %v", r.ReportedAt)
	}

	if !recs[1].ReportedAt.Equal(now) {
		t.Errorf("malformed time should fall back to now, got %v", recs[1].ReportedAt)
	}
	if recs[1].RawTime != "bad" {
		t.Errorf("RawTime = %q, want raw value kept for the key", recs[1].RawTime)
	}
}

func TestParseCSV_EnglishHeadersAndShortRows(t *testing.T) {
	t.Parallel()

	in := "content,location,extra\n  차량 고장 ,  경부고속도로  ,x\n정체\n"
	recs, err := ParseCSV(strings.NewReader(in), kst, time.Now())
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if recs[0].Content != "차량 고장" || recs[0].Location != "경부고속도로" {
		t.Errorf("record not trimmed: %+v", recs[0])
	}
	if recs[1].Location != "" {
		t.Errorf("short row location = %q, want empty", recs[1].Location)
	}
}

func TestParseCSV_Errors(t *testing.T) {
	t.Parallel()

	if recs, err := ParseCSV(strings.NewReader(""), kst, time.Now()); err != nil || recs != nil {
		t.Errorf("empty input = %v, %v; want nil, nil", recs, err)
	}
	if _, err := ParseCSV(strings.NewReader("a,b,c\n1,2,3\n"), kst, time.Now()); err == nil {
		t.Error("expected error for header without content column")
	}
}

func TestFileSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "incidents.csv")

	src := NewFileSource(path, kst)
	if _, err := src.Fetch(context.Background()); !errors.Is(err, ErrAbsent) {
		t.Fatalf("missing file err = %v, want ErrAbsent", err)
	}

	if err := os.WriteFile(path, []byte(koreanCSV), 0o600); err != nil {
		t.Fatal(err)
	}
	recs, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("records = %d, want 2", len(recs))
	}
	if src.Name() != "file:"+path {
		t.Errorf("Name = %q", src.Name())
	}
}

func FuzzParseCSV(f *testing.F) {
	f.Add(koreanCSV)
	f.Add("content\n\"unterminated\n")
	f.Add("")
	f.Fuzz(func(t *testing.T, in string) {
		recs, _ := ParseCSV(strings.NewReader(in), kst, time.Now())
		for _, r := range recs {
			if r.Content == "" {
				t.Fatal("record with empty content returned")
			}
			_ = r.Key()
		}
	})
}
