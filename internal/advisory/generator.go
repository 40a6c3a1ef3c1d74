package advisory

import (
	"strings"

	"github.com/linnemanlabs/roadwatch/internal/incident"
)

// Generator recommends advisory messages from a template set.
type Generator struct {
	set Set
}

// NewGenerator returns a Generator over set.
func NewGenerator(set Set) *Generator {
	if strings.TrimSpace(set.Fallback) == "" {
		set.Fallback = DefaultSet().Fallback
	}
	return &Generator{set: set}
}

// Kind picks the template kind for an incident. The first template of the
// category whose keywords occur in content or reason wins; a template
// without keywords matches its category unconditionally. No match yields "".
func (g *Generator) Kind(cat incident.Category, content, reason string) string {
	for _, sp := range g.set.Templates {
		if sp.Category != cat {
			continue
		}
		if len(sp.Keywords) == 0 {
			return sp.Kind
		}
		for _, k := range sp.Keywords {
			if strings.Contains(content, k) || strings.Contains(reason, k) {
				return sp.Kind
			}
		}
	}
	return ""
}

// Advise returns the recommended advisory text and its template kind. The
// fallback text has an empty kind.
func (g *Generator) Advise(cat incident.Category, content, reason, location string) (text, kind string) {
	kind = g.Kind(cat, content, reason)
	if sp, ok := g.spec(kind); ok {
		return Render(sp.Text, location), kind
	}
	return Render(g.set.Fallback, location), ""
}

// Match reports which template, rendered for location, produced message.
// Operators may edit the text before sending; edited texts match nothing.
func (g *Generator) Match(message, location string) (string, bool) {
	msg := strings.TrimSpace(message)
	for _, sp := range g.set.Templates {
		if Render(sp.Text, location) == msg {
			return sp.Kind, true
		}
	}
	return "", false
}

// Templates returns the set as store rows for seeding usage counters.
func (g *Generator) Templates() []incident.Template {
	out := make([]incident.Template, 0, len(g.set.Templates))
	for _, sp := range g.set.Templates {
		out = append(out, incident.Template{Kind: sp.Kind, Category: sp.Category, Text: sp.Text})
	}
	return out
}

func (g *Generator) spec(kind string) (Spec, bool) {
	if kind == "" {
		return Spec{}, false
	}
	for _, sp := range g.set.Templates {
		if sp.Kind == kind {
			return sp, true
		}
	}
	return Spec{}, false
}
