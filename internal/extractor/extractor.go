// Package extractor turns tabular input into records.
//
// Only the first cell of each row is read. This is the single supported input
// shape: one text record per row in the first column, no header row. Other
// columns are ignored and rows whose first cell is missing or blank after
// trimming are skipped.
package extractor

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"batchforge/internal/domain"
)

// utf8BOM is stripped from the start of CSV input.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Extraction is the outcome of extracting records from a set of rows.
// len(Records) + SkippedRows always equals TotalRows.
type Extraction struct {
	Records     []domain.Record
	TotalRows   int
	SkippedRows int
}

// Extract applies the first-cell policy to rows.
func Extract(rows [][]string) Extraction {
	out := Extraction{TotalRows: len(rows)}
	for i, row := range rows {
		if len(row) == 0 {
			out.SkippedRows++
			continue
		}
		text := strings.TrimSpace(row[0])
		if text == "" {
			out.SkippedRows++
			continue
		}
		out.Records = append(out.Records, domain.Record{OriginIndex: i + 1, Text: text})
	}
	return out
}

// ReadCSV parses r as headerless CSV with a variable number of fields per row.
func ReadCSV(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, domain.NewInputError("read csv", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, domain.NewInputError("read csv", errors.New("input is not valid UTF-8"))
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, domain.NewInputError("parse csv", err)
	}
	return rows, nil
}

// ReadXLSX reads every row of the first worksheet in an .xlsx workbook.
func ReadXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, domain.NewInputError("open xlsx", err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, domain.NewInputError("read xlsx", errors.New("workbook has no sheets"))
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, domain.NewInputError("read xlsx", err)
	}
	return rows, nil
}

// ReadRows picks a reader by the file extension of name.
func ReadRows(name string, r io.Reader) ([][]string, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".csv", ".txt", "":
		return ReadCSV(r)
	case ".xlsx":
		return ReadXLSX(r)
	default:
		return nil, domain.NewInputError("detect format", fmt.Errorf("unsupported file extension %q", ext))
	}
}

// ExtractFile reads name from r and extracts its records.
func ExtractFile(name string, r io.Reader) (Extraction, error) {
	rows, err := ReadRows(name, r)
	if err != nil {
		return Extraction{}, err
	}
	return Extract(rows), nil
}
