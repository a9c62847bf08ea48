// Package emitter writes canonical records as CSV, JSONL or XLSX.
package emitter

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"corpusnorm/internal/models"
	"corpusnorm/internal/reader"
	"corpusnorm/pkg/utils"
)

// DefaultSplitSize is the number of runes kept per XLSX cell before text spills into
// a <field>_part_N column. Excel rejects cells over 32767 characters.
const DefaultSplitSize = 30000

const byteOrderMark = "\uFEFF"

// ErrUnsupportedFormat is returned for formats the emitter cannot write.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// Options control format details that do not affect record values.
type Options struct {
	// CSVBOM prefixes CSV output with a UTF-8 byte order mark.
	CSVBOM bool
	// SplitSize overrides DefaultSplitSize for XLSX cells.
	SplitSize int
}

// Emitter serialises ordered record sequences. It holds no per-call state.
type Emitter struct {
	opts Options
	strs *utils.StringHelper
}

// New creates an emitter.
func New(opts Options) *Emitter {
	if opts.SplitSize <= 0 {
		opts.SplitSize = DefaultSplitSize
	}

	return &Emitter{opts: opts, strs: utils.NewStringHelper()}
}

// FileName returns the output file name for a source in the given format.
func FileName(source string, format reader.Format) string {
	return source + "." + string(format)
}

// Emit writes records to w in order. Zero records still produce a well-formed file.
func (e *Emitter) Emit(w io.Writer, format reader.Format, records []models.Record) error {
	switch format {
	case reader.FormatCSV:
		return e.emitCSV(w, records)
	case reader.FormatJSONL:
		return e.emitJSONL(w, records)
	case reader.FormatXLSX:
		return e.emitXLSX(w, records)
	}

	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

// WriteFile emits records into dir and returns the written path.
func (e *Emitter) WriteFile(dir, source string, format reader.Format, records []models.Record) (string, error) {
	path := filepath.Join(dir, FileName(source, format))

	f, err := os.Create(path)
	if err != nil {
		return "", &models.IOFailure{Op: "create", Path: path, Err: err}
	}

	if err := e.Emit(f, format, records); err != nil {
		f.Close()
		return "", &models.IOFailure{Op: "write", Path: path, Err: err}
	}

	if err := f.Close(); err != nil {
		return "", &models.IOFailure{Op: "close", Path: path, Err: err}
	}

	return path, nil
}

func (e *Emitter) emitCSV(w io.Writer, records []models.Record) error {
	bw := bufio.NewWriter(w)

	if e.opts.CSVBOM {
		if _, err := bw.WriteString(byteOrderMark); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(bw)

	if err := cw.Write(models.Fields); err != nil {
		return err
	}

	for _, rec := range records {
		if err := cw.Write(rec.Values()); err != nil {
			return err
		}
	}

	cw.Flush()

	if err := cw.Error(); err != nil {
		return err
	}

	return bw.Flush()
}

func (e *Emitter) emitJSONL(w io.Writer, records []models.Record) error {
	bw := bufio.NewWriter(w)

	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)

	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func (e *Emitter) emitXLSX(w io.Writer, records []models.Record) error {
	wb := excelize.NewFile()
	defer wb.Close()

	sheet := wb.GetSheetName(wb.GetActiveSheetIndex())

	sw, err := wb.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to open stream writer: %w", err)
	}

	// chunked[i][f] holds the cell pieces of field f of record i.
	chunked := make([][][]string, len(records))
	extra := make([]int, len(models.Fields))

	for i, rec := range records {
		values := rec.Values()
		chunked[i] = make([][]string, len(values))

		for f, v := range values {
			chunked[i][f] = e.strs.SplitRunes(v, e.opts.SplitSize)
			extra[f] = max(extra[f], len(chunked[i][f])-1)
		}
	}

	header := make([]any, 0, len(models.Fields))
	for _, f := range models.Fields {
		header = append(header, f)
	}

	for f, name := range models.Fields {
		for n := 2; n <= extra[f]+1; n++ {
			header = append(header, name+"_part_"+strconv.Itoa(n))
		}
	}

	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i := range records {
		row := make([]any, 0, len(header))
		for _, parts := range chunked[i] {
			row = append(row, parts[0])
		}

		for f, parts := range chunked[i] {
			for n := 1; n <= extra[f]; n++ {
				if n < len(parts) {
					row = append(row, parts[n])
				} else {
					row = append(row, "")
				}
			}
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}

		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}

	_, err = wb.WriteTo(w)

	return err
}
