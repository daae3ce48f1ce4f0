package internal

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel conditions the orchestrator routes on.
var (
	// ErrUnknownCaptureTime marks a file whose capture time could not be
	// derived from metadata (or file date fallback). The file stays in the
	// source directory and is retried on the next run.
	ErrUnknownCaptureTime = errors.New("unknown capture time")

	// ErrCorruptIndex marks a malformed row in a persisted index. Loading
	// never degrades to a partial parse.
	ErrCorruptIndex = errors.New("corrupt index")
)

// ErrorCategory represents the type of error encountered
type ErrorCategory string

const (
	ErrorCategoryIO       ErrorCategory = "io_error"       // File system, permissions, disk space
	ErrorCategoryMetadata ErrorCategory = "metadata_error" // Capture time missing or unparseable
	ErrorCategoryIndex    ErrorCategory = "index_error"    // Index load/persist failures
	ErrorCategoryUnknown  ErrorCategory = "unknown_error"  // Unexpected errors
)

// ErrorSeverity indicates how critical the error is
type ErrorSeverity string

const (
	ErrorSeverityCritical ErrorSeverity = "critical" // Aborts the batch (index persistence, disk full)
	ErrorSeverityError    ErrorSeverity = "error"    // File-level issues, batch continues
	ErrorSeverityWarning  ErrorSeverity = "warning"  // Recoverable issues
)

// SyncError represents a categorized error during file processing
type SyncError struct {
	FilePath    string
	Category    ErrorCategory
	Severity    ErrorSeverity
	OriginalErr error
	Suggestion  string // User-friendly suggestion to fix
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("[%s/%s] %s: %v", e.Severity, e.Category, e.FilePath, e.OriginalErr)
}

func (e *SyncError) Unwrap() error {
	return e.OriginalErr
}

// ClassifySyncError analyzes an error and returns a SyncError with category and severity
func ClassifySyncError(filePath string, err error) *SyncError {
	if err == nil {
		return nil
	}

	syncErr := &SyncError{
		FilePath:    filePath,
		OriginalErr: err,
	}

	switch {
	case errors.Is(err, ErrUnknownCaptureTime):
		syncErr.Category = ErrorCategoryMetadata
		syncErr.Severity = ErrorSeverityError
		syncErr.Suggestion = "File has no usable capture date - it stays in the source directory; enable fallback_to_file_date for this source to place it by file date"
		return syncErr

	case errors.Is(err, ErrCorruptIndex):
		syncErr.Category = ErrorCategoryIndex
		syncErr.Severity = ErrorSeverityCritical
		syncErr.Suggestion = "The index file is damaged - restore the .bak generation or rebuild with 'mediasort rebuilddb'"
		return syncErr
	}

	// Categorize based on error message
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "no space left"):
		syncErr.Category = ErrorCategoryIO
		syncErr.Severity = ErrorSeverityCritical
		syncErr.Suggestion = "Free up disk space on the output drive and rerun"

	case strings.Contains(errStr, "permission denied"):
		syncErr.Category = ErrorCategoryIO
		syncErr.Severity = ErrorSeverityCritical
		syncErr.Suggestion = "Check permissions on the source and output directories"

	case strings.Contains(errStr, "read-only file system"):
		syncErr.Category = ErrorCategoryIO
		syncErr.Severity = ErrorSeverityCritical
		syncErr.Suggestion = "Output filesystem is read-only - check mount options"

	case strings.Contains(errStr, "writing index") || strings.Contains(errStr, "creating index"):
		syncErr.Category = ErrorCategoryIndex
		syncErr.Severity = ErrorSeverityCritical
		syncErr.Suggestion = "The index could not be persisted - fix the output directory before rerunning, the batch was stopped"

	case strings.Contains(errStr, "input/output error"):
		syncErr.Category = ErrorCategoryIO
		syncErr.Severity = ErrorSeverityError
		syncErr.Suggestion = "I/O error - check disk health"

	case strings.Contains(errStr, "no such file"):
		syncErr.Category = ErrorCategoryIO
		syncErr.Severity = ErrorSeverityError
		syncErr.Suggestion = "File disappeared during the run - check if an external drive disconnected"

	case strings.Contains(errStr, "exif") || strings.Contains(errStr, "metadata"):
		syncErr.Category = ErrorCategoryMetadata
		syncErr.Severity = ErrorSeverityWarning
		syncErr.Suggestion = "Metadata could not be extracted - file is skipped until it parses"

	default:
		syncErr.Category = ErrorCategoryUnknown
		syncErr.Severity = ErrorSeverityError
		syncErr.Suggestion = "Unexpected error - check logs for details"
	}

	return syncErr
}

// Fatal reports whether an error must stop the whole batch instead of the
// current file only.
func Fatal(err *SyncError) bool {
	return err != nil && err.Severity == ErrorSeverityCritical
}
