// Package models defines the canonical record shape shared by the reader, normalizer, reporter and emitter.
package models

// Canonical field names.
const (
	FieldPublishTime = "publish_time"
	FieldType        = "type"
	FieldTitle       = "title"
	FieldContent     = "content"
	FieldSourceURL   = "source_url"
)

// Fields lists the canonical fields in their fixed output order.
var Fields = []string{FieldPublishTime, FieldType, FieldTitle, FieldContent, FieldSourceURL}

// IsCanonicalField reports whether name is one of the five canonical fields.
func IsCanonicalField(name string) bool {
	for _, f := range Fields {
		if f == name {
			return true
		}
	}

	return false
}

// Raw is one row as read from a source file, keyed by field name.
type Raw map[string]any

// Record is an accepted canonical record. Records are never mutated after validation.
type Record struct {
	PublishTime string `json:"publish_time"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	SourceURL   string `json:"source_url"`
}

// Values returns the field values in canonical order.
func (r Record) Values() []string {
	return []string{r.PublishTime, r.Type, r.Title, r.Content, r.SourceURL}
}

// Row is a raw row together with its position in the source file.
type Row struct {
	Data Raw
	File string
	// Line is the 1-based data row number (header excluded) or JSONL line number.
	Line int
	// Err is set when the row could not be decoded at all.
	Err error
}
