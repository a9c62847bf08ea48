// Package reporter collects per-source findings: duplicate source URLs, coverage gaps,
// rejected records and failed files.
package reporter

import (
	"fmt"

	"corpusnorm/internal/models"
)

type occurrence struct {
	file string
	line int
}

// DuplicateTracker remembers the first occurrence of every source_url in one source.
// It is owned by a single worker and is not safe for concurrent use.
type DuplicateTracker struct {
	source string
	seen   map[string]occurrence
}

// NewDuplicateTracker creates an empty tracker for source.
func NewDuplicateTracker(source string) *DuplicateTracker {
	return &DuplicateTracker{
		source: source,
		seen:   make(map[string]occurrence),
	}
}

// Observe records one accepted record in file order. It returns a duplicate finding
// when the record's source_url was seen before, and false otherwise.
func (d *DuplicateTracker) Observe(rec models.Record, file string, line int) (models.Finding, bool) {
	first, ok := d.seen[rec.SourceURL]
	if !ok {
		d.seen[rec.SourceURL] = occurrence{file: file, line: line}
		return models.Finding{}, false
	}

	return models.Finding{
		Kind:     models.KindDuplicate,
		Severity: models.SeverityWarning,
		Source:   d.source,
		File:     file,
		Line:     line,
		Field:    models.FieldSourceURL,
		Message:  fmt.Sprintf("duplicate source_url %s, first seen at %s:%d", rec.SourceURL, first.file, first.line),
	}, true
}

// Unique returns the number of distinct source URLs observed.
func (d *DuplicateTracker) Unique() int {
	return len(d.seen)
}
