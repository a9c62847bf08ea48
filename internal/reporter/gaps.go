package reporter

import (
	"fmt"
	"slices"
	"time"

	"corpusnorm/internal/models"
	"corpusnorm/internal/normalizer"
)

// Coverage is the date range spanned by a source's records.
type Coverage struct {
	First time.Time
	Last  time.Time
}

// FindGaps sorts records by publish_time and reports every span between consecutive
// records longer than threshold. A non-positive threshold disables detection.
func FindGaps(source string, records []models.Record, threshold time.Duration) ([]models.Finding, Coverage) {
	times := make([]time.Time, 0, len(records))

	for _, rec := range records {
		t, err := normalizer.ParseDate(rec.PublishTime, "")
		if err != nil {
			// Accepted records always parse; anything else is not ours to judge here.
			continue
		}

		times = append(times, t.UTC())
	}

	if len(times) == 0 {
		return nil, Coverage{}
	}

	slices.SortFunc(times, func(a, b time.Time) int { return a.Compare(b) })

	coverage := Coverage{First: times[0], Last: times[len(times)-1]}

	if threshold <= 0 {
		return nil, coverage
	}

	var findings []models.Finding

	for i := 1; i < len(times); i++ {
		span := times[i].Sub(times[i-1])
		if span <= threshold {
			continue
		}

		findings = append(findings, models.Finding{
			Kind:     models.KindCoverageGap,
			Severity: models.SeverityInfo,
			Source:   source,
			Field:    models.FieldPublishTime,
			Message: fmt.Sprintf("no records between %s and %s (%d days)",
				normalizer.FormatDate(times[i-1]), normalizer.FormatDate(times[i]), int(span.Hours()/24)),
		})
	}

	return findings, coverage
}
