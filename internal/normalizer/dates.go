package normalizer

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// CanonicalDateLayout is used for publish times without a clock component.
const CanonicalDateLayout = "2006-01-02"

// ParseDate parses s with layout, or permissively when layout is empty.
// Zone-less values are read as UTC.
func ParseDate(s, layout string) (time.Time, error) {
	s = strings.TrimSpace(s)

	if layout != "" {
		return time.Parse(layout, s)
	}

	for _, l := range []string{CanonicalDateLayout, time.RFC3339Nano} {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}

	return dateparse.ParseIn(s, time.UTC)
}

// FormatDate renders t as YYYY-MM-DD when it carries no clock time, RFC 3339 otherwise.
func FormatDate(t time.Time) string {
	_, offset := t.Zone()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 && offset == 0 {
		return t.Format(CanonicalDateLayout)
	}

	return t.Format(time.RFC3339)
}
