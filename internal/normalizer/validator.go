package normalizer

import (
	"fmt"
	"strings"

	"corpusnorm/internal/models"
	"corpusnorm/pkg/utils"
)

// Validator checks canonical rows against the five-field schema.
type Validator struct {
	urls *utils.URLHelper
}

// NewValidator creates a new validator instance.
func NewValidator() *Validator {
	return &Validator{urls: utils.NewURLHelper()}
}

// Validate returns the accepted record, or a *models.SchemaViolation listing every
// broken rule. It has no side effects.
func (v *Validator) Validate(source string, raw models.Raw) (models.Record, error) {
	var violations []models.Violation

	values := make(map[string]string, len(models.Fields))

	for _, field := range models.Fields {
		val, ok := raw[field]
		if !ok || val == nil {
			violations = append(violations, models.Violation{
				Field:   field,
				Rule:    models.RuleMissing,
				Message: "field is missing",
			})

			continue
		}

		s, isString := val.(string)
		if !isString {
			violations = append(violations, models.Violation{
				Field:   field,
				Rule:    models.RuleType,
				Message: fmt.Sprintf("expected text, got %T", val),
			})

			continue
		}

		values[field] = s

		if viol, bad := v.checkValue(field, s); bad {
			violations = append(violations, viol)
		}
	}

	if len(violations) > 0 {
		return models.Record{}, &models.SchemaViolation{Source: source, Violations: violations}
	}

	return models.Record{
		PublishTime: values[models.FieldPublishTime],
		Type:        values[models.FieldType],
		Title:       values[models.FieldTitle],
		Content:     values[models.FieldContent],
		SourceURL:   values[models.FieldSourceURL],
	}, nil
}

func (v *Validator) checkValue(field, s string) (models.Violation, bool) {
	blank := strings.TrimSpace(s) == ""

	switch field {
	case models.FieldPublishTime:
		if blank {
			return models.Violation{Field: field, Rule: models.RuleEmpty, Message: "publish time is empty"}, true
		}

		parsed, err := ParseDate(s, "")
		if err != nil {
			return models.Violation{Field: field, Rule: models.RuleDate, Message: fmt.Sprintf("unparseable date %q", s)}, true
		}

		// The transformer canonicalizes every date its source layout accepts.
		if canonical := FormatDate(parsed); canonical != s {
			return models.Violation{
				Field:   field,
				Rule:    models.RuleDate,
				Message: fmt.Sprintf("date %q does not match the source date format (canonical %q)", s, canonical),
			}, true
		}
	case models.FieldTitle:
		if blank {
			return models.Violation{Field: field, Rule: models.RuleEmpty, Message: "title is empty"}, true
		}
	case models.FieldSourceURL:
		if blank {
			return models.Violation{Field: field, Rule: models.RuleEmpty, Message: "source_url is empty"}, true
		}

		if !v.urls.IsValidURL(s) {
			return models.Violation{Field: field, Rule: models.RuleURL, Message: fmt.Sprintf("malformed URL %q", s)}, true
		}
	}

	return models.Violation{}, false
}
