package feed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// FileSource reads a CSV feed from the local filesystem.
type FileSource struct {
	path string
	loc  *time.Location
	now  func() time.Time
}

// NewFileSource returns a FileSource for path. Report times are read in loc.
func NewFileSource(path string, loc *time.Location) *FileSource {
	return &FileSource{path: path, loc: loc, now: time.Now}
}

// Name implements Source.
func (s *FileSource) Name() string { return "file:" + s.path }

// Fetch implements Source. A missing file yields ErrAbsent.
func (s *FileSource) Fetch(_ context.Context) ([]Record, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrAbsent
	}
	if err != nil {
		return nil, fmt.Errorf("open feed: %w", err)
	}
	defer f.Close()

	recs, err := ParseCSV(f, s.loc, s.now())
	if err != nil {
		return recs, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return recs, nil
}
