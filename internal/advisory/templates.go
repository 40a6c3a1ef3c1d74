package advisory

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/roadwatch/internal/incident"
)

// Placeholder is replaced by the incident location when rendering.
const Placeholder = "{location}"

// Template kinds.
const (
	KindAccident     = "accident"
	KindBreakdown    = "breakdown"
	KindCongestion   = "congestion"
	KindConstruction = "construction"
	KindWeather      = "weather"
)

// Spec defines one advisory template. Keywords refine the incident category
// into this kind when they occur in the content or reason.
type Spec struct {
	Kind     string            `yaml:"kind"`
	Category incident.Category `yaml:"category"`
	Text     string            `yaml:"text"`
	Keywords []string          `yaml:"keywords"`
}

// Set is a complete template configuration.
type Set struct {
	Templates []Spec `yaml:"templates"`
	Fallback  string `yaml:"fallback"`
}

// DefaultSet returns the built-in templates.
func DefaultSet() Set {
	return Set{
		Templates: []Spec{
			{Kind: KindAccident, Category: incident.CategoryAccident, Text: "{location} 교통사고 발생, 우회 바랍니다"},
			{Kind: KindBreakdown, Category: incident.CategoryIncident, Text: "{location} 차량고장, 서행 운전하세요",
				Keywords: []string{"고장", "견인", "엔진"}},
			{Kind: KindCongestion, Category: incident.CategoryIncident, Text: "{location} 정체중, 대중교통 이용 권장",
				Keywords: []string{"정체", "혼잡"}},
			{Kind: KindConstruction, Category: incident.CategoryIncident, Text: "{location} 공사중, 차선변경 주의",
				Keywords: []string{"공사", "차단", "통제"}},
			{Kind: KindWeather, Category: incident.CategoryIncident, Text: "{location} 기상악화, 안전운전 하세요",
				Keywords: []string{"기상", "폭우", "폭설", "침수", "강풍", "결빙", "안개"}},
		},
		Fallback: "{location} 교통상황 주의",
	}
}

// LoadTemplates reads a YAML template file and merges it over the defaults.
// Entries replace the default with the same kind; new kinds are appended.
func LoadTemplates(path string) (Set, error) {
	set := DefaultSet()

	b, err := os.ReadFile(path)
	if err != nil {
		return set, fmt.Errorf("read templates: %w", err)
	}

	var override Set
	if err := yaml.Unmarshal(b, &override); err != nil {
		return set, fmt.Errorf("parse templates %s: %w", path, err)
	}

	for i := range override.Templates {
		sp := override.Templates[i]
		sp.Kind = strings.TrimSpace(sp.Kind)
		if sp.Kind == "" || strings.TrimSpace(sp.Text) == "" {
			return set, fmt.Errorf("parse templates %s: entry %d needs kind and text", path, i)
		}
		if sp.Category != "" {
			cat, ok := incident.ParseCategory(string(sp.Category))
			if !ok {
				return set, fmt.Errorf("parse templates %s: entry %q has unknown category %q", path, sp.Kind, sp.Category)
			}
			sp.Category = cat
		}
		replaced := false
		for j := range set.Templates {
			if set.Templates[j].Kind == sp.Kind {
				set.Templates[j] = sp
				replaced = true
				break
			}
		}
		if !replaced {
			set.Templates = append(set.Templates, sp)
		}
	}
	if strings.TrimSpace(override.Fallback) != "" {
		set.Fallback = override.Fallback
	}
	return set, nil
}

// Render substitutes location into text.
func Render(text, location string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, Placeholder, strings.TrimSpace(location)))
}
