// Package reader loads per-source record files (CSV, JSONL, XLSX) into raw rows.
package reader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"corpusnorm/internal/models"
	"corpusnorm/pkg/utils"
)

// Format identifies an input or output file format.
type Format string

// Supported formats.
const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
	FormatXLSX  Format = "xlsx"
)

// Reader errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrMissingHeader     = errors.New("missing header row")
	ErrDuplicateHeader   = errors.New("duplicate header column")
	ErrNoSheets          = errors.New("workbook has no sheets")
)

// partColumn matches split columns such as content_part_2.
var partColumn = regexp.MustCompile(`^(.+)_part_(\d+)$`)

// File is the decoded content of one input file.
type File struct {
	Path   string
	Format Format
	// Header lists the logical columns after part merging. Nil for JSONL.
	Header []string
	Rows   []models.Row
}

// DetectFormat maps a file extension to a format.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	case ".xlsx":
		return FormatXLSX, nil
	}

	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
}

// IsSupported reports whether the file has a readable extension.
func IsSupported(path string) bool {
	_, err := DetectFormat(path)
	return err == nil
}

// ReadFile opens and decodes a file. Failures that make the whole file unusable
// are returned as *models.IOFailure; row-level decode problems are kept on the row.
func ReadFile(path string) (*File, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, &models.IOFailure{Op: "detect", Path: path, Err: err}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &models.IOFailure{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	file, err := Read(f, format, path)
	if err != nil {
		return nil, &models.IOFailure{Op: "read", Path: path, Err: err}
	}

	return file, nil
}

// Read decodes r in the given format. name is recorded on every row.
func Read(r io.Reader, format Format, name string) (*File, error) {
	switch format {
	case FormatCSV:
		return readCSV(r, name)
	case FormatJSONL:
		return readJSONL(r, name)
	case FormatXLSX:
		return readXLSX(r, name)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

// columnPlan maps physical columns onto logical fields, joining *_part_N columns.
type columnPlan struct {
	header []string
	parts  map[string][]int
}

type partRef struct {
	index int
	order int
}

func planColumns(physical []string) (*columnPlan, error) {
	if len(physical) == 0 {
		return nil, ErrMissingHeader
	}

	seen := make(map[string]bool, len(physical))
	refs := make(map[string][]partRef)
	plan := &columnPlan{parts: make(map[string][]int)}

	strs := utils.NewStringHelper()

	for i, raw := range physical {
		name := strings.TrimSpace(strs.StripBOM(raw))
		if name == "" {
			continue
		}

		if seen[name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateHeader, name)
		}

		seen[name] = true

		base, order := name, 1
		if m := partColumn.FindStringSubmatch(name); m != nil {
			n, err := strconv.Atoi(m[2])
			if err == nil {
				base, order = m[1], n
			}
		}

		if _, ok := refs[base]; !ok {
			plan.header = append(plan.header, base)
		}

		refs[base] = append(refs[base], partRef{index: i, order: order})
	}

	if len(plan.header) == 0 {
		return nil, ErrMissingHeader
	}

	for base, list := range refs {
		sort.SliceStable(list, func(a, b int) bool { return list[a].order < list[b].order })

		idx := make([]int, len(list))
		for i, ref := range list {
			idx[i] = ref.index
		}

		plan.parts[base] = idx
	}

	return plan, nil
}

// row builds a raw row from physical cells; short rows are padded with empty cells.
func (p *columnPlan) row(cells []string) models.Raw {
	raw := make(models.Raw, len(p.header))

	for _, field := range p.header {
		var sb strings.Builder

		for _, idx := range p.parts[field] {
			if idx < len(cells) {
				sb.WriteString(cells[idx])
			}
		}

		raw[field] = sb.String()
	}

	return raw
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}

	return true
}

// mergeParts folds *_part_N string keys of a JSON object into their base key.
func mergeParts(obj map[string]any) models.Raw {
	raw := make(models.Raw, len(obj))

	type piece struct {
		order int
		text  string
	}

	pieces := make(map[string][]piece)

	for key, val := range obj {
		m := partColumn.FindStringSubmatch(key)
		s, isString := val.(string)

		if m == nil || !isString {
			raw[key] = val
			continue
		}

		n, err := strconv.Atoi(m[2])
		if err != nil {
			raw[key] = val
			continue
		}

		pieces[m[1]] = append(pieces[m[1]], piece{order: n, text: s})
	}

	for base, list := range pieces {
		if existing, ok := raw[base].(string); ok {
			list = append([]piece{{order: 1, text: existing}}, list...)
		} else if _, ok := raw[base]; ok {
			continue
		}

		sort.SliceStable(list, func(a, b int) bool { return list[a].order < list[b].order })

		var sb strings.Builder
		for _, p := range list {
			sb.WriteString(p.text)
		}

		raw[base] = sb.String()
	}

	return raw
}
