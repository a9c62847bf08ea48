package reporter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/samber/lo"

	"corpusnorm/internal/models"
	"corpusnorm/internal/normalizer"
)

// ErrNilReport is returned when writing a report that was never created.
var ErrNilReport = errors.New("nil report")

// SourceStats summarises one source.
type SourceStats struct {
	Source     string `json:"source"`
	Files      int    `json:"files"`
	Read       int    `json:"read"`
	Accepted   int    `json:"accepted"`
	Skipped    int    `json:"skipped"`
	Duplicates int    `json:"duplicates"`
	Gaps       int    `json:"gaps"`
	FirstDate  string `json:"first_date,omitempty"`
	LastDate   string `json:"last_date,omitempty"`
	Failed     bool   `json:"failed"`
}

// SetCoverage records the date range of the source's accepted records.
func (s *SourceStats) SetCoverage(c Coverage) {
	if c.First.IsZero() {
		return
	}

	s.FirstDate = normalizer.FormatDate(c.First)
	s.LastDate = normalizer.FormatDate(c.Last)
}

// Report is the outcome of one validate or normalize run.
type Report struct {
	RunID       string           `json:"run_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Sources     []SourceStats    `json:"sources"`
	Findings    []models.Finding `json:"findings"`
	Summary     map[string]int   `json:"summary"`
}

// New creates an empty report.
func New(runID string) *Report {
	return &Report{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Sources:     []SourceStats{},
		Findings:    []models.Finding{},
		Summary:     map[string]int{},
	}
}

// Add appends one source's statistics and findings. Callers add sources in a
// deterministic order.
func (r *Report) Add(stats SourceStats, findings ...models.Finding) {
	r.Sources = append(r.Sources, stats)
	r.Findings = append(r.Findings, findings...)

	for kind, n := range r.CountByKind() {
		r.Summary[string(kind)] = n
	}
}

// HasFatal reports whether any finding aborted a file or source.
func (r *Report) HasFatal() bool {
	return lo.SomeBy(r.Findings, func(f models.Finding) bool { return f.IsFatal() })
}

// CountByKind counts findings per kind.
func (r *Report) CountByKind() map[models.FindingKind]int {
	return lo.CountValuesBy(r.Findings, func(f models.Finding) models.FindingKind { return f.Kind })
}

// WriteText renders the source summary and the findings as aligned tables.
// Informational findings are omitted unless showInfo is set.
func (r *Report) WriteText(w io.Writer, showInfo bool) error {
	if r == nil {
		return ErrNilReport
	}

	summary := [][]string{{"Source", "Files", "Read", "Accepted", "Skipped", "Duplicates", "Gaps", "Coverage", "Status"}}

	for _, s := range r.Sources {
		status := "ok"
		if s.Failed {
			status = "FAILED"
		}

		coverage := "-"
		if s.FirstDate != "" {
			coverage = s.FirstDate + " .. " + s.LastDate
		}

		summary = append(summary, []string{
			s.Source,
			strconv.Itoa(s.Files),
			strconv.Itoa(s.Read),
			strconv.Itoa(s.Accepted),
			strconv.Itoa(s.Skipped),
			strconv.Itoa(s.Duplicates),
			strconv.Itoa(s.Gaps),
			coverage,
			status,
		})
	}

	if err := writeLines(w, renderTable(summary)); err != nil {
		return err
	}

	shown := lo.Filter(r.Findings, func(f models.Finding, _ int) bool {
		return showInfo || f.Severity != models.SeverityInfo
	})

	if len(shown) == 0 {
		_, err := fmt.Fprintln(w, "\nNo findings.")
		return err
	}

	findings := [][]string{{"Severity", "Kind", "Source", "Location", "Message"}}

	for _, f := range shown {
		findings = append(findings, []string{
			string(f.Severity),
			string(f.Kind),
			f.Source,
			location(f),
			truncateCell(f.Message, maxMessageWidth),
		})
	}

	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}

	return writeLines(w, renderTable(findings))
}

// WriteJSON serialises the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	if r == nil {
		return ErrNilReport
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	return enc.Encode(r)
}

// Save writes the JSON report to path.
func (r *Report) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return &models.IOFailure{Op: "create", Path: path, Err: err}
	}

	if err := r.WriteJSON(f); err != nil {
		f.Close()
		return &models.IOFailure{Op: "write", Path: path, Err: err}
	}

	if err := f.Close(); err != nil {
		return &models.IOFailure{Op: "close", Path: path, Err: err}
	}

	return nil
}

// Load reads a JSON report written by Save.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.IOFailure{Op: "read", Path: path, Err: err}
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}

	return &r, nil
}

func location(f models.Finding) string {
	switch {
	case f.File != "" && f.Line > 0:
		return fmt.Sprintf("%s:%d", f.File, f.Line)
	case f.File != "":
		return f.File
	case f.Field != "":
		return f.Field
	default:
		return "-"
	}
}

func writeLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	return nil
}
