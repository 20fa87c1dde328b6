package export

import (
	"fmt"
	"strings"
)

// Dataset defines tabular export content. Footer, when set, is rendered as a
// closing totals row.
type Dataset struct {
	Title   string
	Headers []string
	Rows    []map[string]string
	Footer  map[string]string
}

// Exporter renders a Dataset into one file format.
type Exporter interface {
	Render(data Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// Format names a supported export format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

// ParseFormat normalises user input into a Format.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case FormatCSV, "":
		return FormatCSV, nil
	case FormatPDF:
		return FormatPDF, nil
	case FormatXLSX, "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", value)
	}
}

// For returns the exporter for a format.
func For(format Format) (Exporter, error) {
	switch format {
	case FormatCSV:
		return NewCSVExporter(), nil
	case FormatPDF:
		return NewPDFExporter(), nil
	case FormatXLSX:
		return NewXLSXExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func (d Dataset) records() [][]string {
	out := make([][]string, 0, len(d.Rows)+1)
	for _, row := range d.Rows {
		out = append(out, d.line(row))
	}
	if len(d.Footer) > 0 {
		out = append(out, d.line(d.Footer))
	}
	return out
}

func (d Dataset) line(row map[string]string) []string {
	record := make([]string, len(d.Headers))
	for i, header := range d.Headers {
		record[i] = row[header]
	}
	return record
}
