// Package normalizer maps source-specific rows onto the canonical schema and validates them.
package normalizer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"corpusnorm/internal/config"
	"corpusnorm/internal/models"
	"corpusnorm/pkg/utils"
)

// Transformer maps one source's native fields onto canonical fields.
type Transformer struct {
	source  config.SourceConfig
	extract map[string][]compiledExtract
	strs    *utils.StringHelper
}

type compiledExtract struct {
	from     string
	re       *regexp.Regexp
	template string
}

// NewTransformer compiles a source mapping. It fails with *models.MappingError when
// a canonical field has no native field, extract rule or default.
func NewTransformer(src config.SourceConfig) (*Transformer, error) {
	t := &Transformer{
		source:  src,
		extract: make(map[string][]compiledExtract),
		strs:    utils.NewStringHelper(),
	}

	if t.source.JoinSeparator == "" {
		t.source.JoinSeparator = config.DefaultJoinSeparator
	}

	for i, rule := range src.Extract {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, &models.MappingError{
				Source: src.Name,
				Field:  rule.Field,
				Reason: fmt.Sprintf("extract[%d] pattern: %v", i, err),
			}
		}

		t.extract[rule.Field] = append(t.extract[rule.Field], compiledExtract{from: rule.From, re: re, template: rule.Template})
	}

	if err := t.CheckMapping(); err != nil {
		return nil, err
	}

	return t, nil
}

// Source returns the source name.
func (t *Transformer) Source() string {
	return t.source.Name
}

// CheckMapping reports every canonical field the configuration cannot produce.
func (t *Transformer) CheckMapping() error {
	var errs []error

	for _, field := range models.Fields {
		if len(t.source.Fields.NativeFor(field)) > 0 || len(t.extract[field]) > 0 {
			continue
		}

		if _, ok := t.source.Defaults[field]; ok {
			continue
		}

		errs = append(errs, &models.MappingError{
			Source: t.source.Name,
			Field:  field,
			Reason: "no native field, extract rule or default configured",
		})
	}

	return errors.Join(errs...)
}

// CheckHeader verifies a tabular file can feed every canonical field.
// A nil header (JSONL) is not checked.
func (t *Transformer) CheckHeader(file string, header []string) error {
	if header == nil {
		return nil
	}

	columns := make(map[string]bool, len(header))
	for _, h := range header {
		columns[h] = true
	}

	var errs []error

	for _, field := range models.Fields {
		if _, ok := t.source.Defaults[field]; ok {
			continue
		}

		natives := t.source.Fields.NativeFor(field)
		fed := false

		for _, n := range natives {
			if columns[n] {
				fed = true
				break
			}
		}

		for _, rule := range t.extract[field] {
			if columns[rule.from] {
				fed = true
				break
			}
		}

		if fed {
			continue
		}

		errs = append(errs, &models.MappingError{
			Source: t.source.Name,
			Field:  field,
			Reason: fmt.Sprintf("%s: none of the mapped columns %v is in the header", file, natives),
		})
	}

	return errors.Join(errs...)
}

// Transform converts a native row into a canonical-keyed row. Values that cannot be
// converted are passed through unchanged so the validator can report them.
func (t *Transformer) Transform(raw models.Raw) models.Raw {
	out := make(models.Raw, len(models.Fields))

	for _, field := range models.Fields {
		val, ok := t.mapped(raw, field)

		if isBlankValue(val, ok) {
			if extracted, found := t.extracted(raw, field); found {
				val, ok = extracted, true
			}
		}

		if isBlankValue(val, ok) {
			if def, found := t.source.Defaults[field]; found {
				val, ok = def, true
			}
		}

		if !ok {
			continue
		}

		out[field] = t.clean(field, val)
	}

	return out
}

// mapped joins the non-empty values of every native field feeding canonical.
func (t *Transformer) mapped(raw models.Raw, canonical string) (any, bool) {
	natives := t.source.Fields.NativeFor(canonical)

	var (
		parts   []string
		present bool
	)

	for _, n := range natives {
		val, ok := raw[n]
		if !ok || val == nil {
			continue
		}

		present = true

		s, isString := val.(string)
		if !isString {
			// Non-text values are never joined; the validator reports them.
			return val, true
		}

		if len(natives) == 1 {
			return s, true
		}

		if strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}

	if !present {
		return nil, false
	}

	return strings.Join(parts, t.source.JoinSeparator), true
}

func (t *Transformer) extracted(raw models.Raw, canonical string) (string, bool) {
	for _, rule := range t.extract[canonical] {
		s, ok := raw[rule.from].(string)
		if !ok {
			continue
		}

		m := rule.re.FindStringSubmatchIndex(s)
		if m == nil {
			continue
		}

		if rule.template == "" {
			return s[m[0]:m[1]], true
		}

		return string(rule.re.ExpandString(nil, rule.template, s, m)), true
	}

	return "", false
}

func (t *Transformer) clean(field string, val any) any {
	s, ok := val.(string)
	if !ok {
		return val
	}

	s = t.strs.CanonicalText(s)

	if t.source.StripHTML && (field == models.FieldTitle || field == models.FieldContent) && looksLikeHTML(s) {
		if text, err := htmlToText(s); err == nil {
			s = text
		}
	}

	switch field {
	case models.FieldContent:
		return s
	case models.FieldPublishTime:
		s = strings.TrimSpace(s)
		if s == "" {
			return s
		}

		if parsed, err := ParseDate(s, t.source.DateFormat); err == nil {
			return FormatDate(parsed)
		}

		// Left as is; the validator rejects any non-canonical date.
		return s
	default:
		return strings.TrimSpace(s)
	}
}

func isBlankValue(val any, ok bool) bool {
	if !ok || val == nil {
		return true
	}

	s, isString := val.(string)

	return isString && strings.TrimSpace(s) == ""
}
