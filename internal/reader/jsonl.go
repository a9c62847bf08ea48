package reader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"corpusnorm/internal/models"
)

// JSONL row errors.
var (
	ErrNotObject    = errors.New("line is not a JSON object")
	ErrTrailingData = errors.New("trailing data after JSON value")
)

func readJSONL(r io.Reader, name string) (*File, error) {
	br := bufio.NewReader(r)
	file := &File{Path: name, Format: FormatJSONL}

	for lineNum := 1; ; lineNum++ {
		line, err := br.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}

		if lineNum == 1 {
			line = bytes.TrimPrefix(line, []byte("\xef\xbb\xbf"))
		}

		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			file.Rows = append(file.Rows, decodeLine(trimmed, name, lineNum))
		}

		if errors.Is(err, io.EOF) {
			break
		}
	}

	return file, nil
}

func decodeLine(line []byte, name string, lineNum int) models.Row {
	row := models.Row{File: name, Line: lineNum}

	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		row.Err = fmt.Errorf("invalid JSON: %w", err)
		return row
	}

	if dec.More() {
		row.Err = ErrTrailingData
		return row
	}

	obj, ok := value.(map[string]any)
	if !ok {
		row.Err = ErrNotObject
		return row
	}

	row.Data = mergeParts(obj)

	return row
}
