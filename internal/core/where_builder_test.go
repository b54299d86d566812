package core

import (
	"testing"
	"time"
)

// ============================================================================
// WhereBuilder Tests
// ============================================================================

func TestNewWhereBuilder(t *testing.T) {
	wb := NewWhereBuilder()

	if wb.argIndex != 1 {
		t.Errorf("expected argIndex to be 1, got %d", wb.argIndex)
	}
	if len(wb.conditions) != 0 || len(wb.args) != 0 {
		t.Errorf("expected empty builder, got %d conditions, %d args", len(wb.conditions), len(wb.args))
	}
}

func TestWhereBuilder_Build_Empty(t *testing.T) {
	whereClause, args := NewWhereBuilder().Build()

	if whereClause != "" {
		t.Errorf("expected empty string for no conditions, got %q", whereClause)
	}
	if args != nil {
		t.Errorf("expected nil args for no conditions, got %v", args)
	}
}

func TestWhereBuilder_Add(t *testing.T) {
	wb := NewWhereBuilder()
	wb.Add("status", "")
	wb.Add("status", "active")
	wb.Add("type", "user")

	whereClause, args := wb.Build()

	if want := " WHERE status = $1 AND type = $2"; whereClause != want {
		t.Errorf("expected %q, got %q", want, whereClause)
	}
	if len(args) != 2 || args[0] != "active" || args[1] != "user" {
		t.Errorf("expected args [active user], got %v", args)
	}
}

func TestWhereBuilder_AddIn(t *testing.T) {
	wb := NewWhereBuilder()
	wb.AddRaw("p.deleted_at IS NULL")
	wb.AddIn("s.name", []string{"Plant A", " ", "Plant B"})
	wb.AddIn("p.make", nil)

	whereClause, args := wb.Build()

	if want := " WHERE p.deleted_at IS NULL AND s.name IN ($1, $2)"; whereClause != want {
		t.Errorf("expected %q, got %q", want, whereClause)
	}
	if len(args) != 2 || args[1] != "Plant B" {
		t.Errorf("unexpected args %v", args)
	}
}

func TestWhereBuilder_AddTimestampRange(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)

	tests := []struct {
		name       string
		from, to   *time.Time
		wantClause string
		wantArgs   int
	}{
		{"both bounds", &from, &to, " WHERE created_at >= $1 AND created_at <= $2", 2},
		{"from only", &from, nil, " WHERE created_at >= $1", 1},
		{"to only", nil, &to, " WHERE created_at <= $1", 1},
		{"neither", nil, nil, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wb := NewWhereBuilder()
			wb.AddTimestampRange("created_at", tt.from, tt.to)
			clause, args := wb.Build()
			if clause != tt.wantClause {
				t.Errorf("clause = %q, want %q", clause, tt.wantClause)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("args = %d, want %d", len(args), tt.wantArgs)
			}
		})
	}
}

func TestWhereBuilder_NextArgIndex(t *testing.T) {
	wb := NewWhereBuilder()
	now := time.Now()

	if wb.NextArgIndex() != 1 {
		t.Errorf("expected initial NextArgIndex to be 1, got %d", wb.NextArgIndex())
	}

	wb.Add("col1", "val1")
	wb.AddIn("col2", []string{"a", "b"})
	if wb.NextArgIndex() != 4 {
		t.Errorf("expected NextArgIndex 4, got %d", wb.NextArgIndex())
	}

	wb.AddTimestampRange("created_at", &now, &now)
	if wb.NextArgIndex() != 6 {
		t.Errorf("expected NextArgIndex after timestamp range to be 6, got %d", wb.NextArgIndex())
	}
}

func TestWhereBuilder_AddSearch(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		cols       []string
		wantClause string
		wantArg    string
	}{
		{"empty query skipped", "  ", []string{"name"}, "", ""},
		{"no columns skipped", "x", nil, "", ""},
		{"single column", "press", []string{"p.model"}, " WHERE (p.model ILIKE $1)", "%press%"},
		{"multiple columns share one arg", "abb", []string{"p.make", "p.model"}, " WHERE (p.make ILIKE $1 OR p.model ILIKE $1)", "%abb%"},
		{"wildcards escaped", "50%_off", []string{"d"}, " WHERE (d ILIKE $1)", `%50\%\_off%`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wb := NewWhereBuilder()
			wb.AddSearch(tt.query, tt.cols...)

			gotClause, gotArgs := wb.Build()
			if gotClause != tt.wantClause {
				t.Errorf("clause = %q, want %q", gotClause, tt.wantClause)
			}
			if tt.wantArg == "" {
				if len(gotArgs) != 0 {
					t.Errorf("expected no args, got %v", gotArgs)
				}
				return
			}
			if len(gotArgs) != 1 || gotArgs[0] != tt.wantArg {
				t.Errorf("args = %v, want [%s]", gotArgs, tt.wantArg)
			}
		})
	}
}

func TestWhereBuilder_NetworkAndArrays(t *testing.T) {
	wb := NewWhereBuilder()
	wb.AddCIDR("p.ip_address", "10.0.0.0/8")
	wb.AddCIDR("p.ip_address", "")
	wb.AddArrayOverlap("p.tags", []string{"press", ""})
	wb.AddArrayOverlap("p.tags", nil)

	clause, args := wb.Build()
	want := " WHERE p.ip_address::inet <<= $1::cidr AND p.tags && $2::text[]"
	if clause != want {
		t.Errorf("clause = %q, want %q", clause, want)
	}
	if tags, ok := args[1].([]string); !ok || len(tags) != 1 || tags[0] != "press" {
		t.Errorf("tags arg = %#v", args[1])
	}
}
