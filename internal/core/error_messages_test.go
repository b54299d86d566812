package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"file too large sentinel", fmt.Errorf("%w: 11MB", ErrFileTooLarge), "FILE001"},
		{"unsupported type sentinel", ErrUnsupportedFileType, "FILE003"},
		{"malformed csv", &MalformedInputError{Line: 4, Err: errors.New(`bare " in non-quoted-field`)}, "FILE002"},
		{"invalid options", fmt.Errorf("%w: bad threshold", ErrInvalidOptions), "VAL001"},
		{"limiter busy", ErrTooManyUploads, "UPL001"},
		{"wrapped not found", fmt.Errorf("get history: %w", ErrNotFound), "IMP001"},
		{"job not cancellable", ErrJobNotCancellable, "IMP002"},
		{"queue unavailable", ErrQueueUnavailable, "IMP003"},
		{"context canceled", fmt.Errorf("import interrupted: %w", context.Canceled), "UPL002"},
		{"deadline", context.DeadlineExceeded, "UPL003"},
		{"unique index", errors.New(`ERROR: duplicate key value violates unique constraint "plcs_tag_id_key"`), "DB001"},
		{"foreign key", errors.New("insert or update on table violates foreign key constraint"), "DB002"},
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connection refused"), "DB003"},
		{"case insensitive", errors.New("DEADLOCK detected"), "DB005"},
		{"unknown error", errors.New("some random internal error"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(ErrTooManyUploads)
	want := "System is busy processing other imports (Code: UPL001). Please wait a moment and try again"
	if got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}
	if FormatUserError(nil) != "" {
		t.Error("FormatUserError(nil) should be empty")
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("nil error should not be user facing")
	}
	if !IsUserFacing(ErrFileTooLarge) {
		t.Error("ErrFileTooLarge should be user facing")
	}
	if IsUserFacing(errors.New("random internal error xyz")) {
		t.Error("unknown error should not be user facing")
	}
}

func TestNewUserError(t *testing.T) {
	if NewUserError(nil) != nil {
		t.Fatal("NewUserError(nil) should be nil")
	}

	tech := fmt.Errorf("wrap: %w", ErrJobNotCancellable)
	ue := NewUserError(tech)
	if ue.Error() != "The import has already started" {
		t.Errorf("Error() = %q", ue.Error())
	}
	if !errors.Is(ue, ErrJobNotCancellable) {
		t.Error("Unwrap should expose the technical error")
	}
}
