package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrModelUnavailable = errors.New("model provider unavailable")
	ErrVectorStore      = errors.New("vector store unavailable")
	ErrUpstreamAPI      = errors.New("upstream literature source error")
	ErrStreamingAborted = errors.New("streaming aborted")
)

// ValidationError marks bad input shape or enum values. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// EmbeddingFailure is surfaced after retries are exhausted. FailedIndices
// holds the positions of the inputs that could not be embedded so callers
// can apply a partial-failure policy.
type EmbeddingFailure struct {
	FailedIndices []int
	Err           error
}

func (e *EmbeddingFailure) Error() string {
	return fmt.Sprintf("embedding failed for %d input(s): %v", len(e.FailedIndices), e.Err)
}

func (e *EmbeddingFailure) Unwrap() error { return e.Err }

type ErrorType string

const (
	ErrorRate      ErrorType = "rate"
	ErrorQuota     ErrorType = "quota"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
)

// ClassifyError buckets provider errors for the retry policy. Rate and
// transient failures are retried with backoff; quota and permanent are not.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "quota"), strings.Contains(e, "insufficient_quota"), strings.Contains(e, "credit"):
		return ErrorQuota
	case strings.Contains(e, "rate"), strings.Contains(e, "429"):
		return ErrorRate
	case strings.Contains(e, "timeout"), strings.Contains(e, "temporarily"),
		strings.Contains(e, "unavailable"), strings.Contains(e, "connection"),
		strings.Contains(e, "502"), strings.Contains(e, "503"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}

func IsRetryable(err error) bool {
	switch ClassifyError(err) {
	case ErrorRate, ErrorTransient:
		return true
	default:
		return false
	}
}
