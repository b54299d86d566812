package core

// validation.go checks an import file before anything touches the store.
//
// Validation happens at two levels:
//  1. Header validation: every required column must be present. This runs
//     once per file and, if it fails, row validation is skipped entirely.
//  2. Row validation: every rule is evaluated for every row so the caller
//     sees all problems at once.

import (
	"fmt"
	"net/netip"
	"unicode/utf8"
)

// PreviewRowLimit is how many parsed rows a validation report carries.
const PreviewRowLimit = 10

// ValidateHeaders returns the required column names missing from headers.
// headers are expected to be normalised already (see NormalizeHeader).
func ValidateHeaders(headers []string) []string {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[NormalizeHeader(h)] = true
	}

	var missing []string
	for _, name := range RequiredHeaders() {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// ValidateRow applies every field rule to row and returns all findings.
// All findings have error severity.
func ValidateRow(row RawRow) []Diagnostic {
	var diags []Diagnostic
	for _, spec := range ImportFields {
		if d, ok := validateField(row.Line, spec, row.Get(spec.Name)); !ok {
			diags = append(diags, d)
		}
	}
	return diags
}

func validateField(line int, spec FieldSpec, v string) (Diagnostic, bool) {
	if v == "" {
		if spec.Required {
			return errorDiag(line, spec.Name, "", "Required field is empty"), false
		}
		return Diagnostic{}, true
	}

	n := utf8.RuneCountInString(v)
	if spec.MinLen > 0 && (n < spec.MinLen || n > spec.MaxLen) {
		return errorDiag(line, spec.Name, v,
			fmt.Sprintf("Must be between %d and %d characters", spec.MinLen, spec.MaxLen)), false
	}
	if spec.MaxLen > 0 && n > spec.MaxLen {
		return errorDiag(line, spec.Name, v,
			fmt.Sprintf("Exceeds maximum length of %d characters", spec.MaxLen)), false
	}

	switch spec.Type {
	case FieldEnum:
		if _, ok := canonicalEnum(v, spec.EnumValues); !ok {
			return errorDiag(line, spec.Name, v, spec.EnumError), false
		}
	case FieldIP:
		if !ValidIPAddress(v) {
			return errorDiag(line, spec.Name, v, "Invalid IP address format"), false
		}
	}
	return Diagnostic{}, true
}

// ValidIPAddress accepts IPv4 dotted quads and IPv6 literals (compressed
// forms included). Zoned addresses and leading-zero octets are rejected.
func ValidIPAddress(s string) bool {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return false
	}
	return addr.Zone() == ""
}

// canonicalIP returns the normalised text form used for storage and lookups.
func canonicalIP(s string) string {
	if s == "" {
		return ""
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return s
	}
	return addr.Unmap().String()
}

// ValidationReport is the outcome of validating a whole file.
type ValidationReport struct {
	Headers      []string
	TotalRows    int
	Preview      []RawRow
	HeaderErrors []string
	Diagnostics  []Diagnostic
}

// IsValid reports whether the file can be imported.
func (v *ValidationReport) IsValid() bool {
	return len(v.HeaderErrors) == 0 && !hasErrors(v.Diagnostics)
}

// RowErrors groups diagnostics by source row.
type RowErrors struct {
	Row    int          `json:"row"`
	Errors []Diagnostic `json:"errors"`
}

// GroupedRowErrors returns diagnostics grouped by row in file order.
func (v *ValidationReport) GroupedRowErrors() []RowErrors {
	var out []RowErrors
	for _, d := range v.Diagnostics {
		if n := len(out); n > 0 && out[n-1].Row == d.Row {
			out[n-1].Errors = append(out[n-1].Errors, d)
			continue
		}
		out = append(out, RowErrors{Row: d.Row, Errors: []Diagnostic{d}})
	}
	return out
}

// ValidationSummary is the JSON shape returned for validate-only requests.
type ValidationSummary struct {
	IsValid      bool                `json:"isValid"`
	TotalRows    int                 `json:"totalRows"`
	Headers      []string            `json:"headers"`
	HeaderErrors []string            `json:"headerErrors"`
	RowErrors    []RowErrors         `json:"rowErrors"`
	Preview      []map[string]string `json:"preview"`
}

// Summary converts the report to its response shape.
func (v *ValidationReport) Summary() ValidationSummary {
	s := ValidationSummary{
		IsValid:      v.IsValid(),
		TotalRows:    v.TotalRows,
		Headers:      v.Headers,
		HeaderErrors: v.HeaderErrors,
		RowErrors:    v.GroupedRowErrors(),
		Preview:      make([]map[string]string, 0, len(v.Preview)),
	}
	if s.HeaderErrors == nil {
		s.HeaderErrors = []string{}
	}
	if s.RowErrors == nil {
		s.RowErrors = []RowErrors{}
	}
	for _, r := range v.Preview {
		s.Preview = append(s.Preview, r.Values())
	}
	return s
}

// ValidateFile runs header validation and, only if that passes, row
// validation over every row.
func ValidateFile(headers []string, rows []RawRow) *ValidationReport {
	report := &ValidationReport{
		Headers:   headers,
		TotalRows: len(rows),
	}
	if len(rows) > PreviewRowLimit {
		report.Preview = rows[:PreviewRowLimit]
	} else {
		report.Preview = rows
	}

	for _, m := range ValidateHeaders(headers) {
		report.HeaderErrors = append(report.HeaderErrors, fmt.Sprintf("missing required column: %s", m))
	}
	if len(report.HeaderErrors) > 0 {
		return report
	}
	if len(rows) == 0 {
		report.HeaderErrors = append(report.HeaderErrors, "File contains no data rows")
		return report
	}

	for _, row := range rows {
		report.Diagnostics = append(report.Diagnostics, ValidateRow(row)...)
	}
	return report
}
