package incident

import (
	"strings"
	"time"
)

// Category is the classification label of an incident.
type Category string

const (
	// CategoryAccident is a traffic accident (collision, rollover, ...)
	CategoryAccident Category = "accident"

	// CategoryIncident is a non-collision road hazard (breakdown, congestion, fire, flood, debris, ...)
	CategoryIncident Category = "incident"

	// CategoryOther is everything else (noise, public order, environment, ...)
	CategoryOther Category = "other"
)

// Categories lists every valid category in a stable order.
var Categories = []Category{CategoryAccident, CategoryIncident, CategoryOther}

// ParseCategory returns the category named by s (case-insensitive).
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CategoryAccident, CategoryIncident, CategoryOther:
		return c, true
	}
	return "", false
}

// Status tracks where an incident is in its operator lifecycle.
type Status string

const (
	// StatusUnread means created, nobody has looked at it yet
	StatusUnread Status = "unread"

	// StatusChecking means an operator is verifying it
	StatusChecking Status = "checking"

	// StatusResolved means closed; resolved incidents leave the active list
	StatusResolved Status = "resolved"
)

// ParseStatus returns the status named by s. "active" is accepted as an
// alias of unread, which is how the dashboard labels fresh incidents.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusUnread, StatusChecking, StatusResolved:
		return st, true
	case "active":
		return StatusUnread, true
	}
	return "", false
}

// Incident is a persisted, classified report.
type Incident struct {
	ID              int64     `json:"id"`
	OriginalMessage string    `json:"original_message"`
	Summary         string    `json:"summary"`
	Category        Category  `json:"category"`
	Priority        int       `json:"priority"`
	Confidence      float64   `json:"confidence"`
	Location        string    `json:"location"`
	Coordinates     string    `json:"coordinates,omitempty"`
	Status          Status    `json:"status"`
	AdvisoryMessage string    `json:"advisory_message"`
	Source          Source    `json:"source"`
	ReportedAt      time.Time `json:"reported_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Source records which entry path produced an incident.
type Source string

const (
	SourceFeed     Source = "feed"
	SourceOperator Source = "operator"
)

// Draft is an enriched record that has not been persisted yet. The store
// turns it into an Incident by assigning the ID, status and timestamps.
type Draft struct {
	OriginalMessage string
	Summary         string
	Category        Category
	Priority        int
	Confidence      float64
	Location        string
	Coordinates     string
	AdvisoryMessage string
	Source          Source
	ReportedAt      time.Time
}

// Build materializes the draft as an unread Incident created at now.
// Stores call it so every backend fills the same defaults.
func (d *Draft) Build(id int64, now time.Time) Incident {
	reported := d.ReportedAt
	if reported.IsZero() {
		reported = now
	}
	return Incident{
		ID:              id,
		OriginalMessage: d.OriginalMessage,
		Summary:         d.Summary,
		Category:        d.Category,
		Priority:        d.Priority,
		Confidence:      d.Confidence,
		Location:        d.Location,
		Coordinates:     d.Coordinates,
		Status:          StatusUnread,
		AdvisoryMessage: d.AdvisoryMessage,
		Source:          d.Source,
		ReportedAt:      reported,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Submission is an operator-entered report.
type Submission struct {
	Message     string `json:"message"`
	Location    string `json:"location"`
	Coordinates string `json:"coordinates,omitempty"`
}

// StatusUpdate is the payload of an incidentUpdated event.
type StatusUpdate struct {
	ID     int64  `json:"id"`
	Status Status `json:"status"`
}

// AdvisoryRequest asks for an advisory message to be sent to roadside signage.
type AdvisoryRequest struct {
	IncidentID int64  `json:"incidentId"`
	Message    string `json:"message"`
	Location   string `json:"location"`
}

// Template is an advisory template row together with its usage counter.
type Template struct {
	Kind       string   `json:"kind"`
	Category   Category `json:"category"`
	Text       string   `json:"template"`
	UsageCount int      `json:"usage_count"`
}

// Event names emitted to viewers.
const (
	EventNewIncident     = "newIncident"
	EventIncidentUpdated = "incidentUpdated"
)
