package domain

import (
	"errors"
	"fmt"
)

// Queue errors.
var (
	// ErrDuplicateActiveJob means the station already has a pending or
	// in-progress job. It is an expected outcome for repeated triggers.
	ErrDuplicateActiveJob = errors.New("station already has an active import job")
	ErrJobNotFound        = errors.New("import job not found")
	ErrJobAlreadyTerminal = errors.New("import job already terminal")
	ErrJobNotInProgress   = errors.New("import job not in progress")
	// ErrLeaseLost means the attempt being finished is no longer the job's
	// current attempt: it was reclaimed, and possibly claimed again.
	ErrLeaseLost          = errors.New("import job lease lost")
)

// DownloadErrorKind classifies a failed fetch.
type DownloadErrorKind string

// Download failure kinds.
const (
	DownloadNotFound DownloadErrorKind = "not_found"
	DownloadNetwork  DownloadErrorKind = "network"
	DownloadTimeout  DownloadErrorKind = "timeout"
)

// DownloadError reports a document that could not be fetched.
type DownloadError struct {
	Kind DownloadErrorKind
	URL  string
	Err  error
}

func (e *DownloadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("download %s: %s", e.URL, e.Kind)
	}
	return fmt.Sprintf("download %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a DownloadError of kind NotFound.
func IsNotFound(err error) bool {
	var de *DownloadError
	return errors.As(err, &de) && de.Kind == DownloadNotFound
}

// ParseErrorKind classifies a parse failure.
type ParseErrorKind string

// Parse failure kinds. RowScoped errors are recovered locally; the other
// kinds abort the document.
const (
	MissingRequiredField ParseErrorKind = "missing_required_field"
	InvalidFormat        ParseErrorKind = "invalid_format"
	RowScoped            ParseErrorKind = "row_scoped"
)

// ParseError reports a problem in a document. Sheet, Row and Field locate it
// when known; Row is 1-based.
type ParseError struct {
	Kind     ParseErrorKind
	Document string
	Sheet    string
	Row      int
	Field    string
	Err      error
}

func (e *ParseError) Error() string {
	loc := e.Document
	if e.Sheet != "" {
		loc += " sheet " + e.Sheet
	}
	if e.Row > 0 {
		loc += fmt.Sprintf(" row %d", e.Row)
	}
	if e.Field != "" {
		loc += " field " + e.Field
	}
	return fmt.Sprintf("parse %s: %s: %v", loc, e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsRowScoped reports whether err is a recoverable row-scoped parse error.
func IsRowScoped(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe) && pe.Kind == RowScoped
}

// ValidationWarning flags an out-of-range but non-fatal field.
type ValidationWarning struct {
	Field   string  `json:"field"`
	Value   float64 `json:"value"`
	Message string  `json:"message"`
}

func (w ValidationWarning) String() string {
	return fmt.Sprintf("%s=%g %s", w.Field, w.Value, w.Message)
}
