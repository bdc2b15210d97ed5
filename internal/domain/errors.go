package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is matched by every "missing record" error.
	ErrNotFound = errors.New("not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = fmt.Errorf("quiz %w", ErrNotFound)
	// ErrResultNotFound indicates a result record does not exist.
	ErrResultNotFound = fmt.Errorf("result %w", ErrNotFound)
	// ErrTransient marks store or network failures that may succeed later.
	ErrTransient = errors.New("store unavailable")
	// ErrQuestionNotFound indicates a submitted question ID is not part of the attempt.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option value is not offered by the question.
	ErrOptionNotFound = errors.New("option not found")
	// ErrAttemptClosed is returned for any action on a submitted or abandoned attempt.
	ErrAttemptClosed = errors.New("attempt already closed")
	// ErrNothingToRetry is returned by a persistence retry when the result is already saved.
	ErrNothingToRetry = errors.New("no pending result to persist")
	// ErrForbidden is returned when the caller does not own the resource.
	ErrForbidden = errors.New("forbidden")
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError reports malformed quiz or attempt state.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a field problem.
func (e *ValidationError) Add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

// OrNil returns e when it holds at least one field problem.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Reason: reason}}}
}

// PersistenceError means a result was scored but could not be saved.
// Result holds the computed record so the save can be retried as is.
type PersistenceError struct {
	Result Result
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist result for quiz %s: %v", e.Result.QuizID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// UnansweredError asks the caller to confirm a submission with unanswered questions.
type UnansweredError struct {
	Unanswered int
}

func (e *UnansweredError) Error() string {
	return fmt.Sprintf("%d unanswered questions, confirmation required", e.Unanswered)
}

// Transient wraps a store error so that errors.Is(err, ErrTransient) holds.
func Transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}
