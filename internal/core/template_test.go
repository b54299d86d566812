package core

import (
	"errors"
	"testing"
)

func TestImportTemplate_RoundTrip(t *testing.T) {
	for _, format := range []ExportFormat{FormatCSV, FormatXLSX} {
		t.Run(string(format), func(t *testing.T) {
			tmpl, err := ImportTemplate(format)
			if err != nil {
				t.Fatalf("ImportTemplate: %v", err)
			}

			if err := CheckUpload(tmpl.FileName, tmpl.ContentType, int64(len(tmpl.Data)), 0); err != nil {
				t.Fatalf("CheckUpload(%s): %v", tmpl.FileName, err)
			}

			headers, rows, err := ParseFile(tmpl.FileName, tmpl.Data)
			if err != nil {
				t.Fatalf("ParseFile: %v", err)
			}

			report := ValidateFile(headers, rows)
			if !report.IsValid() {
				t.Fatalf("template does not validate: header=%v rows=%v", report.HeaderErrors, report.Diagnostics)
			}
			if report.TotalRows != len(templateRows) {
				t.Errorf("rows = %d, want %d", report.TotalRows, len(templateRows))
			}
		})
	}
}

func TestImportTemplate_UnknownFormat(t *testing.T) {
	if _, err := ImportTemplate(FormatJSON); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("err = %v, want ErrInvalidOptions", err)
	}
}
