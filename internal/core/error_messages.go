package core

// error_messages.go maps technical errors to user-facing messages with a
// support code.
//
// # Error Codes Reference
//
// Database (DB001-DB099)
//
//	DB001 - Duplicate value: unique index rejected a row
//	DB002 - Missing parent: foreign key rejected a row
//	DB003 - Connection refused
//	DB004 - Connection reset
//	DB005 - Deadlock
//
// Validation (VAL001-VAL099)
//
//	VAL001 - Invalid import or export options
//	VAL002 - Required column missing from the header
//	VAL003 - Required field is empty
//
// File (FILE001-FILE099)
//
//	FILE001 - File too large (10 MiB)
//	FILE002 - Malformed upload (bad quoting, invalid UTF-8, unreadable workbook)
//	FILE003 - Not a CSV file
//	FILE004 - No file in the request
//	FILE005 - Empty file
//
// Upload (UPL001-UPL099)
//
//	UPL001 - Too many imports in progress
//	UPL002 - Request cancelled
//	UPL003 - Request timed out
//
// Import jobs (IMP001-IMP099)
//
//	IMP001 - Import or job not found
//	IMP002 - Job already started, cannot cancel
//	IMP003 - Background processing unavailable
//
// ERR000 is the fallback. When a user reports ERR000, check the logs for
// the technical error logged next to the request ID.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Support reference
}

// sentinelMessages are matched with errors.Is before any text pattern.
var sentinelMessages = []struct {
	target error
	msg    UserMessage
}{
	{ErrFileTooLarge, UserMessage{"File exceeds maximum size limit (10MB)", "Split the file into smaller files", "FILE001"}},
	{ErrUnsupportedFileType, UserMessage{"Only CSV and XLSX files are accepted", "Save the spreadsheet as CSV (comma delimited) or XLSX", "FILE003"}},
	{ErrInvalidOptions, UserMessage{"Invalid request options", "Check the option values and try again", "VAL001"}},
	{ErrTooManyUploads, UserMessage{"System is busy processing other imports", "Please wait a moment and try again", "UPL001"}},
	{ErrNotFound, UserMessage{"Import not found", "Check the import ID; only your own imports are visible", "IMP001"}},
	{ErrJobNotCancellable, UserMessage{"The import has already started", "Wait for it to finish; running imports cannot be cancelled", "IMP002"}},
	{ErrQueueUnavailable, UserMessage{"Large imports cannot be processed right now", "Split the file below the background threshold or try later", "IMP003"}},
	{context.Canceled, UserMessage{"Request was cancelled", "Please try again", "UPL002"}},
	{context.DeadlineExceeded, UserMessage{"Request timed out", "Try a smaller file or try again later", "UPL003"}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns are matched case-insensitively with strings.Contains.
// The first match wins, so specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{"malformed input", UserMessage{"File could not be read", "Check CSV quoting and UTF-8 encoding, or re-save the workbook as XLSX", "FILE002"}},
	{"duplicate key", UserMessage{"A record with this value already exists", "Use overwrite or merge, or remove the duplicate row", "DB001"}},
	{"violates unique", UserMessage{"A record with this value already exists", "Use overwrite or merge, or remove the duplicate row", "DB001"}},
	{"violates foreign key", UserMessage{"Referenced site, cell or equipment does not exist", "Enable create missing or create the parent first", "DB002"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB003"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB004"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB005"}},
	{"missing required column", UserMessage{"Required column is missing from the file", "Download the template and compare the headers", "VAL002"}},
	{"required field is empty", UserMessage{"Required field is empty", "Ensure all required columns have values", "VAL003"}},
	{"no file provided", UserMessage{"No file was selected", "Please select a CSV file to import", "FILE004"}},
	{"empty file", UserMessage{"The uploaded file is empty", "Please upload a CSV file with a header and data rows", "FILE005"}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, s := range sentinelMessages {
		if errors.Is(err, s.target) {
			return s.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something other than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err; it returns nil for a nil error.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
