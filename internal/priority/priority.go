// Package priority scores incidents from 1 (routine) to 5 (life-threatening).
package priority

import (
	"strings"

	"github.com/linnemanlabs/roadwatch/internal/incident"
)

const (
	Min = 1
	Max = 5
)

// Signals are the texts a score is derived from. Operator reports only
// have Content.
type Signals struct {
	Category incident.Category
	Content  string
	Reason   string
}

// Level is one scoring rule. A rule matches when any keyword occurs in the
// content or reason, ignoring case, or when Category equals the incident
// category.
type Level struct {
	Name     string
	Priority int
	Keywords []string
	Category incident.Category
}

// DefaultLevels is the built-in rule table, evaluated in order.
var DefaultLevels = []Level{
	{Name: "casualty", Priority: 5, Keywords: []string{"인명", "부상", "구조", "사망", "injur", "rescue"}},
	{Name: "fire_hazmat", Priority: 5, Keywords: []string{"화재", "폭발", "유출", "위험물", "fire", "explosion", "hazmat"}},
	{Name: "accident", Priority: 4, Category: incident.CategoryAccident},
	{Name: "incident", Priority: 3, Category: incident.CategoryIncident},
}

// Engine assigns priorities. The first matching level wins; nothing
// matching scores Min.
type Engine struct {
	levels []Level
}

// New returns an Engine over levels, or DefaultLevels when levels is empty.
func New(levels []Level) *Engine {
	if len(levels) == 0 {
		levels = DefaultLevels
	}
	return &Engine{levels: levels}
}

// Score returns the priority and the name of the level that produced it.
func (e *Engine) Score(s *Signals) (int, string) {
	lower := Signals{
		Category: s.Category,
		Content:  strings.ToLower(s.Content),
		Reason:   strings.ToLower(s.Reason),
	}
	for _, l := range e.levels {
		if l.matches(&lower) {
			return clamp(l.Priority), l.Name
		}
	}
	return Min, "default"
}

func (l *Level) matches(s *Signals) bool {
	if l.Category != "" && l.Category == s.Category {
		return true
	}
	for _, k := range l.Keywords {
		k = strings.ToLower(k)
		if strings.Contains(s.Content, k) || strings.Contains(s.Reason, k) {
			return true
		}
	}
	return false
}

func clamp(p int) int {
	return max(Min, min(Max, p))
}
