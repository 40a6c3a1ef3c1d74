package advisory

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/linnemanlabs/roadwatch/internal/incident"
)

const (
	// UnknownLocation replaces an empty feed location in summaries.
	UnknownLocation = "위치불명"

	feedContentRunes = 50
	summaryWords     = 5
	minWordRunes     = 3
)

var stopwords = map[string]struct{}{
	"있습니다": {},
	"합니다":  {},
	"입니다":  {},
}

// FeedSummary summarizes a feed record as
// "[TYPE] <last two location words> - <content prefix>...". TYPE is the
// record's disaster type, or the category when the feed left it empty.
func FeedSummary(disasterType string, cat incident.Category, location, content string) string {
	label := strings.TrimSpace(disasterType)
	if label == "" {
		label = string(cat)
	}

	where := UnknownLocation
	if parts := strings.Fields(location); len(parts) > 0 {
		where = strings.Join(parts[max(0, len(parts)-2):], " ")
	}

	return "[" + strings.ToUpper(label) + "] " + where + " - " + truncate(content, feedContentRunes) + "..."
}

// OperatorSummary summarizes operator free text as "[CATEGORY] w1, w2, ..."
// using up to five words longer than two characters, stopwords excluded.
func OperatorSummary(cat incident.Category, message string) string {
	picked := make([]string, 0, summaryWords)
	for _, w := range words(message) {
		if utf8.RuneCountInString(w) < minWordRunes {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		picked = append(picked, w)
		if len(picked) == summaryWords {
			break
		}
	}
	return strings.TrimSpace("[" + strings.ToUpper(string(cat)) + "] " + strings.Join(picked, ", "))
}

func words(text string) []string {
	return strings.FieldsFunc(norm.NFC.String(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
