// Package tabular converts between spreadsheet bytes and structured rows.
// It is the only place the service touches CSV.
package tabular

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/go-gota/gota/dataframe"
)

// Rows reads CSV bytes into one field-map per data row, keyed by the
// header names. Everything stays a string; the caller validates.
func Rows(r io.Reader) ([]map[string]string, error) {
	df := dataframe.ReadCSV(r, dataframe.DetectTypes(false))
	if df.Err != nil {
		return nil, fmt.Errorf("failed to read spreadsheet: %w", df.Err)
	}
	records := df.Records()
	if len(records) == 0 {
		return nil, nil
	}
	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(rec) {
				row[name] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Bytes renders a header plus rows as CSV bytes.
func Bytes(columns []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	if len(rows) == 0 {
		buf.WriteString(strings.Join(columns, ","))
		buf.WriteString("\n")
		return buf.Bytes(), nil
	}
	records := make([][]string, 0, len(rows)+1)
	records = append(records, columns)
	records = append(records, rows...)
	df := dataframe.LoadRecords(records, dataframe.DetectTypes(false))
	if df.Err != nil {
		return nil, fmt.Errorf("failed to build spreadsheet: %w", df.Err)
	}
	if err := df.WriteCSV(&buf); err != nil {
		return nil, fmt.Errorf("failed to write spreadsheet: %w", err)
	}
	return buf.Bytes(), nil
}
