package csvexport

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"batchforge/internal/domain"
)

// UTF-8 BOM bytes for Excel compatibility on Windows.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// ContentType is the media type of exported result files.
const ContentType = "text/csv; charset=utf-8"

// columns defines the CSV header row.
var columns = []string{"ID", "Result"}

// Writer wraps csv.Writer for exporting result rows as CSV.
type Writer struct {
	out io.Writer
	csv *csv.Writer
}

// NewWriter creates a Writer that writes CSV to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{out: w, csv: csv.NewWriter(w)}
}

// WriteBOM writes the UTF-8 byte order mark. Call it before anything else.
func (w *Writer) WriteBOM() error {
	_, err := w.out.Write(BOM)
	return err
}

// WriteHeader writes the header row.
func (w *Writer) WriteHeader() error {
	return w.csv.Write(columns)
}

// WriteRows writes one CSV row per result row, in the given order.
func (w *Writer) WriteRows(rows []domain.ResultRow) error {
	for i := range rows {
		if err := w.csv.Write([]string{rows[i].CustomID, rows[i].Text}); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer buffer.
func (w *Writer) Flush() {
	w.csv.Flush()
}

// Error returns any error from the underlying csv.Writer.
func (w *Writer) Error() error {
	return w.csv.Error()
}

// WriteResults writes a complete export: BOM, header, and rows.
func WriteResults(out io.Writer, rows []domain.ResultRow) error {
	w := NewWriter(out)
	if err := w.WriteBOM(); err != nil {
		return fmt.Errorf("writing BOM: %w", err)
	}
	if err := w.WriteHeader(); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if err := w.WriteRows(rows); err != nil {
		return fmt.Errorf("writing rows: %w", err)
	}
	w.Flush()
	return w.Error()
}

// BuildFilename returns the download filename for a result export.
// Format: batch_results_{unix_seconds}.csv
func BuildFilename(now time.Time) string {
	return fmt.Sprintf("batch_results_%d.csv", now.Unix())
}
