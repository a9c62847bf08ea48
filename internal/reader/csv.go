package reader

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"corpusnorm/internal/models"
)

func readCSV(r io.Reader, name string) (*File, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrMissingHeader
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	plan, err := planColumns(header)
	if err != nil {
		return nil, err
	}

	file := &File{Path: name, Format: FormatCSV, Header: plan.header}

	for {
		cells, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			file.Rows = append(file.Rows, models.Row{File: name, Line: parseErr.StartLine, Err: parseErr})
			continue
		}

		if err != nil {
			return nil, err
		}

		if isBlank(cells) {
			continue
		}

		line, _ := cr.FieldPos(0)

		row := models.Row{Data: plan.row(cells), File: name, Line: line}
		if len(cells) > len(header) {
			row.Err = fmt.Errorf("row has %d fields, header has %d", len(cells), len(header))
		}

		file.Rows = append(file.Rows, row)
	}

	return file, nil
}
