// Package enrich turns raw reports into classified, prioritized incident
// drafts with a summary and a recommended advisory.
package enrich

import (
	"time"

	"github.com/linnemanlabs/roadwatch/internal/advisory"
	"github.com/linnemanlabs/roadwatch/internal/classify"
	"github.com/linnemanlabs/roadwatch/internal/feed"
	"github.com/linnemanlabs/roadwatch/internal/incident"
	"github.com/linnemanlabs/roadwatch/internal/priority"
)

// Enricher combines the classifier, the priority engine and the advisory
// generator. It implements incident.Enricher.
type Enricher struct {
	classifier *classify.Classifier
	priority   *priority.Engine
	advisory   *advisory.Generator
}

var _ incident.Enricher = (*Enricher)(nil)

// New returns an Enricher. Nil components are replaced by their defaults.
func New(c *classify.Classifier, p *priority.Engine, g *advisory.Generator) *Enricher {
	if c == nil {
		c = classify.New(nil, nil)
	}
	if p == nil {
		p = priority.New(nil)
	}
	if g == nil {
		g = advisory.NewGenerator(advisory.DefaultSet())
	}
	return &Enricher{classifier: c, priority: p, advisory: g}
}

// FromSubmission enriches an operator report. The category comes from the
// Bayes model and the priority rules see the message as content.
func (e *Enricher) FromSubmission(sub *incident.Submission, at time.Time) incident.Draft {
	pred := e.classifier.Text(sub.Message)
	prio, _ := e.priority.Score(&priority.Signals{Category: pred.Category, Content: sub.Message})
	text, _ := e.advisory.Advise(pred.Category, sub.Message, "", sub.Location)

	return incident.Draft{
		OriginalMessage: sub.Message,
		Summary:         advisory.OperatorSummary(pred.Category, sub.Message),
		Category:        pred.Category,
		Priority:        prio,
		Confidence:      pred.Confidence,
		Location:        sub.Location,
		Coordinates:     sub.Coordinates,
		AdvisoryMessage: text,
		Source:          incident.SourceOperator,
		ReportedAt:      at,
	}
}

// FromRecord enriches a feed record using the keyword rules.
func (e *Enricher) FromRecord(rec *feed.Record) incident.Draft {
	msg := rec.Message()
	pred := e.classifier.Record(&classify.Fields{
		DisasterType: rec.DisasterType,
		Content:      rec.Content,
		Reason:       rec.Reason,
	}, msg)
	prio, _ := e.priority.Score(&priority.Signals{Category: pred.Category, Content: rec.Content, Reason: rec.Reason})
	text, _ := e.advisory.Advise(pred.Category, rec.Content, rec.Reason, rec.Location)

	return incident.Draft{
		OriginalMessage: msg,
		Summary:         advisory.FeedSummary(rec.DisasterType, pred.Category, rec.Location, rec.Content),
		Category:        pred.Category,
		Priority:        prio,
		Confidence:      pred.Confidence,
		Location:        rec.Location,
		Coordinates:     rec.Coordinates,
		AdvisoryMessage: text,
		Source:          incident.SourceFeed,
		ReportedAt:      rec.ReportedAt,
	}
}

// MatchAdvisory implements incident.Enricher.
func (e *Enricher) MatchAdvisory(message, location string) (string, bool) {
	return e.advisory.Match(message, location)
}

// Templates returns the advisory templates for seeding the store.
func (e *Enricher) Templates() []incident.Template {
	return e.advisory.Templates()
}
