package transcript

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorType int

const (
	ErrUploadFailed ErrorType = iota
	ErrTransport
	ErrNotFound
	ErrMalformedResponse
	ErrTranscriptionFailed
	ErrValidation
)

func (t ErrorType) String() string {
	switch t {
	case ErrUploadFailed:
		return "UploadFailed"
	case ErrTransport:
		return "TransportError"
	case ErrNotFound:
		return "NotFound"
	case ErrMalformedResponse:
		return "MalformedResponse"
	case ErrTranscriptionFailed:
		return "TranscriptionFailed"
	case ErrValidation:
		return "Validation"
	default:
		return "Unknown"
	}
}

// Cause classifies transport-level upload failures that never produced
// an HTTP status.
type Cause string

const (
	CauseNone      Cause = ""
	CauseNetwork   Cause = "network"
	CauseCancelled Cause = "cancelled"
)

const defaultFailureMessage = "transcription failed"

// Error is the single error type surfaced by the orchestration layer.
type Error struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Body       string
	Cause      Cause
	JobID      string
	Err        error
}

func (e *Error) Error() string {
	if e.Type == ErrTranscriptionFailed {
		return e.Message
	}

	var parts []string
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.StatusCode != 0 {
		status := fmt.Sprintf("HTTP %d", e.StatusCode)
		if body := strings.TrimSpace(e.Body); body != "" {
			status += ": " + body
		}
		parts = append(parts, status)
	}
	if e.Cause != CauseNone {
		parts = append(parts, string(e.Cause))
	}
	if e.Err != nil && e.Cause != CauseCancelled {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewUploadHTTPError(statusCode int, body string) *Error {
	return &Error{
		Type:       ErrUploadFailed,
		Message:    "upload failed",
		StatusCode: statusCode,
		Body:       body,
	}
}

func NewUploadCauseError(cause Cause, err error) *Error {
	return &Error{
		Type:    ErrUploadFailed,
		Message: "upload failed",
		Cause:   cause,
		Err:     err,
	}
}

func NewTransportError(op string, err error) *Error {
	return &Error{
		Type:    ErrTransport,
		Message: op,
		Err:     err,
	}
}

func NewNotFoundError(jobID string) *Error {
	return &Error{
		Type:    ErrNotFound,
		Message: fmt.Sprintf("job %s not found", jobID),
		JobID:   jobID,
	}
}

func NewMalformedResponseError(message string, err error) *Error {
	return &Error{
		Type:    ErrMalformedResponse,
		Message: "malformed response: " + message,
		Err:     err,
	}
}

func NewValidationError(message string) *Error {
	return &Error{
		Type:    ErrValidation,
		Message: message,
	}
}

// NewTranscriptionFailed builds the error for a job the service reported as
// failed. Its message is the service's reason verbatim.
func NewTranscriptionFailed(job *Job) *Error {
	msg := ""
	id := ""
	if job != nil {
		msg = strings.TrimSpace(job.Error)
		id = job.ID
	}
	if msg == "" {
		msg = defaultFailureMessage
	}
	return &Error{
		Type:    ErrTranscriptionFailed,
		Message: msg,
		JobID:   id,
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == errorType
	}
	return false
}

// IsCancelled reports whether err is an upload aborted by the caller.
func IsCancelled(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == ErrUploadFailed && e.Cause == CauseCancelled
	}
	return false
}
