package core

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// templateRows are the example rows shipped in the downloadable template.
// They must pass ValidateRow.
var templateRows = [][]string{
	{"Plant A", "Line 1", "PRODUCTION", "Press 01", "PLC-PRESS-01", "Main press controller",
		"Siemens", "S7-1500", "192.168.1.100", "V2.9", "PLC", "press;line1"},
	{"Plant A", "Line 1", "PRODUCTION", "Press 01", "HMI-PRESS-01", "Press operator panel",
		"Rockwell", "PanelView Plus 7", "192.168.1.101", "12.0", "HMI", "hmi"},
}

// Template is a downloadable import template.
type Template struct {
	Data        []byte
	ContentType string
	FileName    string
}

// ImportTemplate renders the import template in csv or xlsx.
func ImportTemplate(format ExportFormat) (*Template, error) {
	header := ImportColumnNames()

	switch format {
	case FormatXLSX:
		data, err := writeWorkbook("Import", header, templateRows)
		if err != nil {
			return nil, fmt.Errorf("build xlsx template: %w", err)
		}
		return &Template{Data: data, ContentType: FormatXLSX.contentType(), FileName: "plc-import-template.xlsx"}, nil
	case FormatCSV, "":
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write(header); err != nil {
			return nil, err
		}
		if err := w.WriteAll(templateRows); err != nil {
			return nil, fmt.Errorf("build csv template: %w", err)
		}
		return &Template{Data: buf.Bytes(), ContentType: FormatCSV.contentType(), FileName: "plc-import-template.csv"}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported template format %q", ErrInvalidOptions, format)
	}
}
