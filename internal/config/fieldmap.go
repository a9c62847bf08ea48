package config

import (
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// FieldRule maps one native field onto a canonical field.
type FieldRule struct {
	Native    string
	Canonical string
}

// FieldMap is an ordered native_field: canonical_field mapping.
// Order matters when several native fields feed one canonical field.
type FieldMap []FieldRule

// UnmarshalYAML keeps the document order of the mapping keys.
func (m *FieldMap) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("%w (line %d)", ErrFieldMapNotMapping, value.Line)
	}

	rules := make(FieldMap, 0, len(value.Content)/2)

	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i], value.Content[i+1]
		if key.Kind != yaml.ScalarNode || val.Kind != yaml.ScalarNode {
			return fmt.Errorf("%w (line %d)", ErrFieldMapNonScalarEntry, key.Line)
		}

		rules = append(rules, FieldRule{Native: key.Value, Canonical: val.Value})
	}

	*m = rules

	return nil
}

// NativeFor returns the native fields feeding a canonical field, in order.
func (m FieldMap) NativeFor(canonical string) []string {
	var natives []string

	for _, rule := range m {
		if rule.Canonical == canonical {
			natives = append(natives, rule.Native)
		}
	}

	return natives
}

// matchPattern matches a slash-separated relative path against a glob.
// Patterns without a slash match the base name in any directory.
func matchPattern(pattern, relPath string) (bool, error) {
	relPath = strings.ReplaceAll(relPath, "\\", "/")

	if !strings.Contains(pattern, "/") {
		return path.Match(pattern, path.Base(relPath))
	}

	return path.Match(pattern, relPath)
}
