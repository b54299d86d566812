package core

// upload.go holds the request-level preconditions checked before a file is
// parsed: size, type and import options.

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// MaxUploadSize is the largest accepted import file (10 MiB).
const MaxUploadSize int64 = 10 << 20

var (
	// ErrFileTooLarge is returned for files larger than the configured limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrUnsupportedFileType is returned for anything that is not delimited
	// text or an xlsx workbook.
	ErrUnsupportedFileType = errors.New("unsupported file type: only CSV and XLSX files are accepted")

	// ErrInvalidOptions wraps every import option problem.
	ErrInvalidOptions = errors.New("invalid import options")

	// ErrNotFound is returned when a history record or job does not exist
	// or belongs to another user.
	ErrNotFound = errors.New("not found")

	// ErrQueueUnavailable is returned when an import needs background
	// processing but no queue is configured.
	ErrQueueUnavailable = errors.New("background queue unavailable")
)

var uploadMediaTypes = map[string]bool{
	"text/csv":                    true,
	"application/csv":             true,
	"text/comma-separated-values": true,
	"application/vnd.ms-excel":    true, // browsers on Windows send this for .csv
	"text/plain":                  true,

	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
}

// CheckUpload enforces the size and type preconditions. maxSize <= 0 uses
// MaxUploadSize.
func CheckUpload(fileName, contentType string, size, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = MaxUploadSize
	}
	if size > maxSize {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d bytes", ErrFileTooLarge, size, maxSize)
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv", ".xlsx":
		return nil
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && uploadMediaTypes[strings.ToLower(mt)] {
		return nil
	}
	return ErrUnsupportedFileType
}

// DuplicateStrategy selects how rows colliding with existing records are handled.
type DuplicateStrategy string

const (
	DuplicateSkip      DuplicateStrategy = "skip"
	DuplicateOverwrite DuplicateStrategy = "overwrite"
	DuplicateMerge     DuplicateStrategy = "merge"
)

// Background threshold bounds. A request value of 0 selects the service default.
const (
	DefaultBackgroundThreshold = 1000
	MinBackgroundThreshold     = 100
	MaxBackgroundThreshold     = 10000
)

// DefaultProgressInterval is how many rows a background import processes
// between progress reports.
const DefaultProgressInterval = 100

// ImportOptions are the caller-supplied knobs for one import.
type ImportOptions struct {
	CreateMissing       bool              `json:"createMissing"`
	DuplicateHandling   DuplicateStrategy `json:"duplicateHandling"`
	BackgroundThreshold int               `json:"backgroundThreshold"`
	ValidateOnly        bool              `json:"validateOnly"`
}

// Validate checks option values. Zero values are allowed and defaulted later.
func (o ImportOptions) Validate() error {
	switch o.DuplicateHandling {
	case "", DuplicateSkip, DuplicateOverwrite, DuplicateMerge:
	default:
		return fmt.Errorf("%w: duplicateHandling must be one of skip, overwrite, merge (got %q)",
			ErrInvalidOptions, o.DuplicateHandling)
	}
	if o.BackgroundThreshold != 0 &&
		(o.BackgroundThreshold < MinBackgroundThreshold || o.BackgroundThreshold > MaxBackgroundThreshold) {
		return fmt.Errorf("%w: backgroundThreshold must be between %d and %d (got %d)",
			ErrInvalidOptions, MinBackgroundThreshold, MaxBackgroundThreshold, o.BackgroundThreshold)
	}
	return nil
}

func (o ImportOptions) withDefaults(threshold int) ImportOptions {
	if o.DuplicateHandling == "" {
		o.DuplicateHandling = DuplicateSkip
	}
	if o.BackgroundThreshold == 0 {
		o.BackgroundThreshold = threshold
	}
	return o
}
