package incident

import (
	"sort"
	"strings"
	"time"
)

// Period is the statistics window.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ParsePeriod returns the period named by s. An empty string means week.
func ParsePeriod(s string) (Period, bool) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodWeek, true
	case PeriodDay, PeriodWeek, PeriodMonth:
		return p, true
	}
	return "", false
}

// Since returns the inclusive lower bound of the window ending at now.
// Windows start at local midnight: day is today, week the last seven days,
// month the same calendar day one month back.
func (p Period) Since(now time.Time) time.Time {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	switch p {
	case PeriodDay:
		return today
	case PeriodMonth:
		return today.AddDate(0, -1, 0)
	default:
		return today.AddDate(0, 0, -7)
	}
}

// StatsQuery selects incidents for aggregation.
type StatsQuery struct {
	Since    time.Time
	Category Category // empty = all categories
	Location *time.Location
}

// StatRow is one (category, location, day) bucket.
type StatRow struct {
	Category Category `json:"category"`
	Location string   `json:"location"`
	Date     string   `json:"date"`
	Count    int      `json:"count"`
}

// Matches reports whether an incident falls in the query window.
func (q StatsQuery) Matches(inc *Incident) bool {
	if inc.CreatedAt.Before(q.Since) {
		return false
	}
	return q.Category == "" || inc.Category == q.Category
}

func (q StatsQuery) loc() *time.Location {
	if q.Location == nil {
		return time.UTC
	}
	return q.Location
}

// Tally groups matching incidents by (category, location, day) and orders
// the buckets by count desc, then date desc. Backends that cannot aggregate
// natively fetch the window and call Tally.
func Tally(items []Incident, q StatsQuery) []StatRow {
	type bucket struct {
		cat  Category
		loc  string
		date string
	}
	counts := make(map[bucket]int)
	for i := range items {
		inc := &items[i]
		if !q.Matches(inc) {
			continue
		}
		b := bucket{inc.Category, inc.Location, inc.CreatedAt.In(q.loc()).Format(time.DateOnly)}
		counts[b]++
	}

	rows := make([]StatRow, 0, len(counts))
	for b, n := range counts {
		rows = append(rows, StatRow{Category: b.cat, Location: b.loc, Date: b.date, Count: n})
	}
	SortStats(rows)
	return rows
}

// SortStats orders rows the way the statistics endpoint returns them.
func SortStats(rows []StatRow) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Date != b.Date {
			return a.Date > b.Date
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Location < b.Location
	})
}

// SortActive orders incidents priority desc, created_at desc.
func SortActive(items []Incident) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}
