// Package export serializes analytics reports into downloadable JSON,
// CSV, and XLSX payloads.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Format identifiers accepted by the export endpoint.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

var ErrUnknownFormat = errors.New("unknown export format")

// Report is a column-ordered table ready for serialization. Rows may be
// ragged; missing trailing cells serialize as empty.
type Report struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// ParseFormat normalizes the format query parameter. Empty input selects
// JSON.
func ParseFormat(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, raw)
	}
}

// ContentType returns the MIME type served for a parsed format.
func ContentType(format string) string {
	switch format {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// FileName builds the download name, e.g. "overview-2026-03-15.csv".
func FileName(report Report, format string, now time.Time) string {
	return fmt.Sprintf("%s-%s.%s", report.Name, now.UTC().Format("2006-01-02"), format)
}

// Encode serializes report in the requested format.
func Encode(report Report, format string) ([]byte, error) {
	switch format {
	case FormatJSON:
		return encodeJSON(report)
	case FormatCSV:
		return encodeCSV(report)
	case FormatXLSX:
		return encodeXLSX(report)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// WriteAttachment encodes the report and writes it with download headers.
func WriteAttachment(w http.ResponseWriter, report Report, format string, now time.Time) error {
	payload, err := Encode(report, format)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", FileName(report, format, now)))
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	_, err = w.Write(payload)
	return err
}

// encodeJSON renders the table as an array of column-keyed objects, with
// no response envelope.
func encodeJSON(report Report) ([]byte, error) {
	objects := make([]map[string]any, 0, len(report.Rows))
	for _, row := range report.Rows {
		object := make(map[string]any, len(report.Columns))
		for i, column := range report.Columns {
			if i < len(row) {
				object[column] = row[i]
			} else {
				object[column] = nil
			}
		}
		objects = append(objects, object)
	}
	return json.Marshal(objects)
}

func encodeCSV(report Report) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(report.Columns); err != nil {
		return nil, err
	}
	record := make([]string, len(report.Columns))
	for _, row := range report.Rows {
		for i := range record {
			if i < len(row) {
				record[i] = cellString(row[i])
			} else {
				record[i] = ""
			}
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeXLSX(report Report) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	sheet := sheetName(report.Name)
	if err := file.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	header := make([]any, len(report.Columns))
	for i, column := range report.Columns {
		header[i] = column
	}
	if err := file.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}

	if len(report.Columns) > 0 {
		bold, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return nil, err
		}
		last, err := excelize.CoordinatesToCellName(len(report.Columns), 1)
		if err != nil {
			return nil, err
		}
		if err := file.SetCellStyle(sheet, "A1", last, bold); err != nil {
			return nil, err
		}
	}

	for i, row := range report.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := append([]any(nil), row...)
		if err := file.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cellString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format(time.RFC3339)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// sheetName renders the report name as a worksheet title. Excel caps
// titles at 31 characters.
func sheetName(name string) string {
	if name == "" {
		return "Report"
	}
	title := strings.ToUpper(name[:1]) + name[1:]
	if len(title) > 31 {
		title = title[:31]
	}
	return title
}
