package core

// parser.go turns an uploaded delimited file or workbook into RawRows.
//
// The parser reads the header line eagerly and then yields data rows one at
// a time. Blank lines (and rows whose every cell is whitespace) are dropped
// without advancing the row counter, so the first data row is always line 2
// from the caller's point of view. Malformed-input errors use the same
// counter: they name the record that failed to parse, not the physical line.

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// Field is a single cell tagged with its normalised column name.
type Field struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// RawRow is one parsed data row. Line is 1-based; the header is line 1.
type RawRow struct {
	Line   int     `json:"row"`
	Fields []Field `json:"fields"`
}

// Get returns the trimmed value for column, or "" if the column is absent.
// Column matching is case-insensitive.
func (r RawRow) Get(column string) string {
	for _, f := range r.Fields {
		if strings.EqualFold(f.Column, column) {
			return f.Value
		}
	}
	return ""
}

// Values returns the row as a column → value map.
func (r RawRow) Values() map[string]string {
	out := make(map[string]string, len(r.Fields))
	for _, f := range r.Fields {
		if _, dup := out[f.Column]; !dup {
			out[f.Column] = f.Value
		}
	}
	return out
}

// MalformedInputError reports a file that cannot be read as delimited UTF-8 text.
type MalformedInputError struct {
	Line int
	Err  error
}

func (e *MalformedInputError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed input at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("malformed input: %v", e.Err)
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

var (
	errInvalidUTF8 = errors.New("invalid UTF-8 encoding")
	errNoHeader    = errors.New("empty file: no header row")
	errNoSheets    = errors.New("workbook has no sheets")
)

// zipMagic starts every xlsx file.
var zipMagic = []byte("PK\x03\x04")

// Parser reads RawRows from a delimited source.
type Parser struct {
	r       *csv.Reader
	headers []string
	line    int
}

// NewParser consumes the header line from r and returns a parser positioned
// at the first data row.
func NewParser(r io.Reader) (*Parser, error) {
	br := bufio.NewReader(r)
	skipBOM(br)

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &MalformedInputError{Line: 1, Err: errNoHeader}
	}
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			err = pe.Err
		}
		return nil, &MalformedInputError{Line: 1, Err: err}
	}

	headers, err := normalizeHeaders(header)
	if err != nil {
		return nil, err
	}
	return &Parser{r: cr, headers: headers, line: 1}, nil
}

func normalizeHeaders(header []string) ([]string, error) {
	headers := make([]string, len(header))
	for i, h := range header {
		if !utf8.ValidString(h) {
			return nil, &MalformedInputError{Line: 1, Err: errInvalidUTF8}
		}
		headers[i] = NormalizeHeader(h)
	}
	return headers, nil
}

// Headers returns the normalised header names in file order.
func (p *Parser) Headers() []string {
	out := make([]string, len(p.headers))
	copy(out, p.headers)
	return out
}

// Next returns the next non-blank data row, or io.EOF when the input is exhausted.
func (p *Parser) Next() (RawRow, error) {
	for {
		record, err := p.r.Read()
		if errors.Is(err, io.EOF) {
			return RawRow{}, io.EOF
		}
		if err != nil {
			return RawRow{}, p.wrapCSVError(err)
		}
		if isBlankRecord(record) {
			continue
		}

		p.line++
		return buildRow(p.headers, record, p.line)
	}
}

func buildRow(headers, record []string, line int) (RawRow, error) {
	row := RawRow{Line: line, Fields: make([]Field, 0, len(headers))}
	for i, col := range headers {
		var v string
		if i < len(record) {
			if !utf8.ValidString(record[i]) {
				return RawRow{}, &MalformedInputError{Line: line, Err: errInvalidUTF8}
			}
			v = strings.TrimSpace(record[i])
		}
		row.Fields = append(row.Fields, Field{Column: col, Value: v})
	}
	return row, nil
}

// ParseFile reads an upload as a workbook when its name ends in .xlsx or
// its content is a zip archive, and as delimited text otherwise.
func ParseFile(fileName string, data []byte) ([]string, []RawRow, error) {
	if strings.EqualFold(filepath.Ext(fileName), ".xlsx") || bytes.HasPrefix(data, zipMagic) {
		return parseWorkbook(data)
	}
	return ParseAll(bytes.NewReader(data))
}

// parseWorkbook reads the first sheet of an xlsx file with the same header,
// blank-row and numbering rules as the delimited parser.
func parseWorkbook(data []byte) ([]string, []RawRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, &MalformedInputError{Err: fmt.Errorf("open xlsx: %w", err)}
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, &MalformedInputError{Err: errNoSheets}
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, &MalformedInputError{Err: fmt.Errorf("read sheet %q: %w", sheets[0], err)}
	}

	// Leading empty rows come before the header.
	for len(records) > 0 && isBlankRecord(records[0]) {
		records = records[1:]
	}
	if len(records) == 0 {
		return nil, nil, &MalformedInputError{Line: 1, Err: errNoHeader}
	}

	headers, err := normalizeHeaders(records[0])
	if err != nil {
		return nil, nil, err
	}

	var rows []RawRow
	line := 1
	for _, record := range records[1:] {
		if isBlankRecord(record) {
			continue
		}
		line++
		row, err := buildRow(headers, record, line)
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}
	return headers, rows, nil
}

// ParseAll reads the whole input.
func ParseAll(r io.Reader) ([]string, []RawRow, error) {
	p, err := NewParser(r)
	if err != nil {
		return nil, nil, err
	}

	var rows []RawRow
	for {
		row, err := p.Next()
		if errors.Is(err, io.EOF) {
			return p.Headers(), rows, nil
		}
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}
}

func skipBOM(br *bufio.Reader) {
	if b, err := br.Peek(3); err == nil && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = br.Discard(3)
	}
}

func isBlankRecord(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// wrapCSVError reports a read failure against the record that would have
// been numbered next, matching RawRow.Line rather than the physical line.
func (p *Parser) wrapCSVError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		err = pe.Err
	}
	return &MalformedInputError{Line: p.line + 1, Err: err}
}
