package knowledge

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured reports that no vector database credential is present.
// This is a recognized degraded-but-valid mode, not a failure: documents are
// still stored as text, and search returns nothing.
var ErrNotConfigured = errors.New("vector database credential not configured")

// ErrSearchFailed wraps embedding or query failures during retrieval. It is
// always propagated to the caller so the UI can show "search unavailable"
// instead of an empty-result illusion.
var ErrSearchFailed = errors.New("knowledge search failed")

// UnsupportedFormatError reports a file whose extension (and declared media
// type) matches no known extractor.
type UnsupportedFormatError struct {
	Ext       string
	Supported []string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format %q (supported: %s)", e.Ext, strings.Join(e.Supported, ", "))
}

// ExtractionFailedError reports a parseable-but-corrupt file. It is a data
// problem, never retried.
type ExtractionFailedError struct {
	Format string
	Err    error
}

func (e *ExtractionFailedError) Error() string {
	return fmt.Sprintf("%s text extraction failed: %v", e.Format, e.Err)
}

func (e *ExtractionFailedError) Unwrap() error { return e.Err }
