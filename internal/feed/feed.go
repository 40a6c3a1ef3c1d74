// Package feed reads raw incident reports from external sources.
//
// A Source returns the full current set of records on every Fetch. The
// ingestion pipeline deduplicates, so sources do not track what they
// returned before.
package feed

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrAbsent is returned by Fetch when the feed does not exist (yet). The
// pipeline treats it as an empty run, not a failure.
var ErrAbsent = errors.New("feed absent")

// Source produces feed records.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Record, error)
}

// keyContentRunes is how much of the content participates in the dedup key.
const keyContentRunes = 20

// Record is one raw report as delivered by the feed.
type Record struct {
	ReportedAt   time.Time `json:"reported_at"`
	RawTime      string    `json:"report_time"`
	DisasterType string    `json:"disaster_type"`
	Location     string    `json:"location"`
	Coordinates  string    `json:"coordinates,omitempty"`
	Content      string    `json:"content"`
	Reason       string    `json:"reason,omitempty"`
}

// Key is the dedup key: raw report time, location and the first 20
// characters of the content, joined by underscores.
func (r *Record) Key() string {
	content := r.Content
	if utf8.RuneCountInString(content) > keyContentRunes {
		content = string([]rune(content)[:keyContentRunes])
	}
	return r.RawTime + "_" + r.Location + "_" + content
}

// Message is the text stored as the incident's original message.
func (r *Record) Message() string {
	if r.Reason == "" {
		return r.Content
	}
	return r.Content + " (" + r.Reason + ")"
}

// timestampLayout is the 14-digit YYYYMMDDHHMMSS report time format.
const timestampLayout = "20060102150405"

// ParseTimestamp parses a 14-digit report time in loc. ok is false when s
// is malformed, in which case now is returned.
func ParseTimestamp(s string, loc *time.Location, now time.Time) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if len(s) != len(timestampLayout) {
		return now, false
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(timestampLayout, s, loc)
	if err != nil {
		return now, false
	}
	return t, true
}

// normalize trims every field and resolves the report time.
func (r *Record) normalize(loc *time.Location, now time.Time) {
	r.RawTime = strings.TrimSpace(r.RawTime)
	r.DisasterType = strings.TrimSpace(r.DisasterType)
	r.Location = strings.TrimSpace(r.Location)
	r.Coordinates = strings.TrimSpace(r.Coordinates)
	r.Content = strings.TrimSpace(r.Content)
	r.Reason = strings.TrimSpace(r.Reason)
	if r.ReportedAt.IsZero() {
		r.ReportedAt, _ = ParseTimestamp(r.RawTime, loc, now)
	}
}
