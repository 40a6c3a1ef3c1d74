package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

type column int

const (
	colTime column = iota
	colType
	colLocation
	colCoordinates
	colContent
	colReason
)

// headers maps both the Korean feed headers and their English aliases.
var headers = map[string]column{
	"접수일시":          colTime,
	"report_time":   colTime,
	"재난종별":          colType,
	"disaster_type": colType,
	"재난위치":          colLocation,
	"location":      colLocation,
	"경위도":           colCoordinates,
	"coordinates":   colCoordinates,
	"신고내용":          colContent,
	"content":       colContent,
	"요청사유":          colReason,
	"reason":        colReason,
}

// ParseCSV reads a header row followed by records. Unknown columns are
// ignored; a header without a content column is an error. Rows with empty
// content are skipped. Report times are parsed in loc, malformed ones
// become now.
func ParseCSV(r io.Reader, loc *time.Location, now time.Time) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[column]int)
	for i, h := range head {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if c, ok := headers[strings.ToLower(h)]; ok {
			if _, dup := idx[c]; !dup {
				idx[c] = i
			}
		}
	}
	if _, ok := idx[colContent]; !ok {
		return nil, fmt.Errorf("read header: no content column in %q", head)
	}

	field := func(row []string, c column) string {
		i, ok := idx[c]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var out []Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("read row: %w", err)
		}
		rec := Record{
			RawTime:      field(row, colTime),
			DisasterType: field(row, colType),
			Location:     field(row, colLocation),
			Coordinates:  field(row, colCoordinates),
			Content:      field(row, colContent),
			Reason:       field(row, colReason),
		}
		rec.normalize(loc, now)
		if rec.Content == "" {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
