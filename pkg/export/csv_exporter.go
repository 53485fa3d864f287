package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSVExporter renders a report into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the report. The title is not part
// of the CSV body, only the header row and data records are written.
func (e *CSVExporter) Render(report Report) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(report.headers()); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, record := range report.records() {
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
