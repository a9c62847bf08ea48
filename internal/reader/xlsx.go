package reader

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"corpusnorm/internal/models"
)

// readXLSX reads the first sheet. Row numbers are worksheet row numbers.
func readXLSX(r io.Reader, name string) (*File, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}

	rows, err := wb.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	defer rows.Close()

	var (
		plan   *columnPlan
		file   = &File{Path: name, Format: FormatXLSX}
		rowNum = 0
	)

	for rows.Next() {
		rowNum++

		cells, err := rows.Columns()
		if err != nil {
			file.Rows = append(file.Rows, models.Row{File: name, Line: rowNum, Err: err})
			continue
		}

		if plan == nil {
			if isBlank(cells) {
				continue
			}

			plan, err = planColumns(cells)
			if err != nil {
				return nil, err
			}

			file.Header = plan.header

			continue
		}

		if isBlank(cells) {
			continue
		}

		file.Rows = append(file.Rows, models.Row{Data: plan.row(cells), File: name, Line: rowNum})
	}

	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate sheet %q: %w", sheets[0], err)
	}

	if plan == nil {
		return nil, ErrMissingHeader
	}

	return file, nil
}
