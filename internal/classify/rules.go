package classify

import (
	"strings"

	"github.com/linnemanlabs/roadwatch/internal/incident"
)

// Field selects which part of a feed record a rule inspects.
type Field int

const (
	FieldDisasterType Field = iota
	FieldContent
	FieldReason
)

// Fields are the classifiable parts of a feed record.
type Fields struct {
	DisasterType string
	Content      string
	Reason       string
}

func (f *Fields) get(field Field) string {
	switch field {
	case FieldDisasterType:
		return f.DisasterType
	case FieldReason:
		return f.Reason
	default:
		return f.Content
	}
}

// Rule assigns Category when Field contains any of Keywords.
type Rule struct {
	Category incident.Category
	Field    Field
	Keywords []string
}

// DefaultRules is the built-in rule table. Accident rules come first.
var DefaultRules = []Rule{
	{incident.CategoryAccident, FieldDisasterType, []string{"교통사고", "accident"}},
	{incident.CategoryAccident, FieldContent, []string{"사고", "추돌", "접촉", "전복", "accident", "crash", "collision"}},
	{incident.CategoryIncident, FieldContent, []string{
		"고장", "견인", "엔진", // breakdown
		"정체", "혼잡", // congestion
		"차단", "공사", // closure
		"화재", "폭발", // fire
		"폭우", "침수", // weather
		"낙하물", "유출", // debris and spills
	}},
	{incident.CategoryIncident, FieldReason, []string{"공사"}},
	{incident.CategoryIncident, FieldDisasterType, []string{"기상"}},
}

// Rules classifies feed records by ordered keyword rules. The first
// matching rule wins; no match yields other. Matching ignores case.
type Rules []Rule

// Classify returns the category of the first matching rule.
func (rs Rules) Classify(f *Fields) incident.Category {
	for _, r := range rs {
		if containsAny(f.get(r.Field), r.Keywords) {
			return r.Category
		}
	}
	return incident.CategoryOther
}

func containsAny(s string, keywords []string) bool {
	if s == "" {
		return false
	}
	s = strings.ToLower(s)
	for _, k := range keywords {
		if strings.Contains(s, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
