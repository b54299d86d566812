package database

import (
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestToPgText(t *testing.T) {
	tests := []struct {
		in   string
		want pgtype.Text
	}{
		{"", pgtype.Text{}},
		{"   ", pgtype.Text{}},
		{"V2.9", pgtype.Text{String: "V2.9", Valid: true}},
		{"  padded ", pgtype.Text{String: "padded", Valid: true}},
	}
	for _, tt := range tests {
		if got := ToPgText(tt.in); got != tt.want {
			t.Errorf("ToPgText(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestPgUUIDRoundTrip(t *testing.T) {
	const id = "6f1c9d8e-2b7a-4c1e-9a51-0d3c2e4f5a6b"

	u := ToPgUUID(id)
	if !u.Valid {
		t.Fatal("valid UUID rejected")
	}
	if got := PgUUIDToString(u); got != id {
		t.Errorf("round trip = %q, want %q", got, id)
	}

	for _, bad := range []string{"", "not-a-uuid", "1234"} {
		if ToPgUUID(bad).Valid {
			t.Errorf("ToPgUUID(%q) should be invalid", bad)
		}
	}
	if PgUUIDToString(pgtype.UUID{}) != "" {
		t.Error("invalid UUID should render empty")
	}
}

func TestNonNilTags(t *testing.T) {
	if got := nonNilTags(nil); got == nil || len(got) != 0 {
		t.Errorf("nonNilTags(nil) = %#v", got)
	}
	if got := nonNilTags([]string{"a"}); len(got) != 1 {
		t.Errorf("nonNilTags kept %v", got)
	}
}
