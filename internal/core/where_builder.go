package core

import (
	"fmt"
	"strings"
	"time"
)

// WhereBuilder accumulates AND-joined SQL predicates with positional
// ($n) arguments. Empty inputs add nothing, so callers can pass every
// optional filter unconditionally.
type WhereBuilder struct {
	conditions []string
	args       []any
	argIndex   int
}

// NewWhereBuilder returns a builder whose first placeholder is $1.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{argIndex: 1}
}

func (wb *WhereBuilder) placeholder(v any) string {
	p := fmt.Sprintf("$%d", wb.argIndex)
	wb.args = append(wb.args, v)
	wb.argIndex++
	return p
}

// AddRaw adds a predicate that takes no arguments.
func (wb *WhereBuilder) AddRaw(cond string) {
	if cond != "" {
		wb.conditions = append(wb.conditions, cond)
	}
}

// Add adds "col = $n" when value is non-empty.
func (wb *WhereBuilder) Add(col, value string) {
	if value == "" {
		return
	}
	wb.conditions = append(wb.conditions, col+" = "+wb.placeholder(value))
}

// AddIn adds "col IN ($n, ...)" when values is non-empty.
func (wb *WhereBuilder) AddIn(col string, values []string) {
	values = nonEmpty(values)
	if len(values) == 0 {
		return
	}
	ph := make([]string, len(values))
	for i, v := range values {
		ph[i] = wb.placeholder(v)
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s IN (%s)", col, strings.Join(ph, ", ")))
}

// AddTimestampRange adds an inclusive range; either bound may be nil.
func (wb *WhereBuilder) AddTimestampRange(col string, from, to *time.Time) {
	if from != nil {
		wb.conditions = append(wb.conditions, col+" >= "+wb.placeholder(*from))
	}
	if to != nil {
		wb.conditions = append(wb.conditions, col+" <= "+wb.placeholder(*to))
	}
}

// AddSearch adds a case-insensitive substring match across cols. LIKE
// wildcards in query are matched literally.
func (wb *WhereBuilder) AddSearch(query string, cols ...string) {
	query = strings.TrimSpace(query)
	if query == "" || len(cols) == 0 {
		return
	}
	p := wb.placeholder("%" + escapeLike(query) + "%")
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c + " ILIKE " + p
	}
	wb.conditions = append(wb.conditions, "("+strings.Join(parts, " OR ")+")")
}

// AddCIDR adds a containment check of an address column against a network.
func (wb *WhereBuilder) AddCIDR(col, cidr string) {
	if cidr == "" {
		return
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s::inet <<= %s::cidr", col, wb.placeholder(cidr)))
}

// AddArrayOverlap adds "col && $n" for a text[] column.
func (wb *WhereBuilder) AddArrayOverlap(col string, values []string) {
	values = nonEmpty(values)
	if len(values) == 0 {
		return
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s && %s::text[]", col, wb.placeholder(values)))
}

// Build returns " WHERE ..." (with leading space) and the arguments, or
// ("", nil) when nothing was added.
func (wb *WhereBuilder) Build() (string, []any) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}

// NextArgIndex is the placeholder number the next argument will get.
func (wb *WhereBuilder) NextArgIndex() int {
	return wb.argIndex
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
