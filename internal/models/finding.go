package models

// FindingKind classifies a report entry.
type FindingKind string

// Finding kinds.
const (
	KindDuplicate       FindingKind = "duplicate"
	KindCoverageGap     FindingKind = "coverage_gap"
	KindSchemaViolation FindingKind = "schema_violation"
	KindMappingError    FindingKind = "mapping_error"
	KindIOFailure       FindingKind = "io_failure"
)

// Severity of a finding.
type Severity string

// Severity levels. Only SeverityFatal affects the exit status.
const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityFatal   Severity = "fatal"
)

// Finding is one reportable observation about a source.
type Finding struct {
	Kind       FindingKind `json:"kind"`
	Severity   Severity    `json:"severity"`
	Source     string      `json:"source"`
	File       string      `json:"file,omitempty"`
	Line       int         `json:"line,omitempty"`
	Field      string      `json:"field,omitempty"`
	Message    string      `json:"message"`
	Violations []Violation `json:"violations,omitempty"`
}

// IsFatal reports whether the finding aborted processing of a file or source.
func (f Finding) IsFatal() bool {
	return f.Severity == SeverityFatal
}
