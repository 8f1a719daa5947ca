package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for reporting and
// HTTP status mapping.
type ErrorClass string

const (
	// ErrorClassInput indicates malformed caller input: bad version text,
	// malformed recipe or bucket entries, schema violations.
	ErrorClassInput ErrorClass = "input"

	// ErrorClassPolicy indicates a computed plan rejected by an enforced policy.
	ErrorClassPolicy ErrorClass = "policy"

	// ErrorClassNotFound indicates a lookup for something that does not exist.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassInternal indicates a failure of the planner's own collaborators
	// (storage, telemetry exporters) rather than of the input.
	ErrorClassInternal ErrorClass = "internal"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Layer is the layer name involved, if any.
	Layer string `json:"layer,omitempty"`

	// Field is the descriptor field path involved, e.g. "recipes[2].to".
	Field string `json:"field,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	switch {
	case e.Field != "" && e.Layer != "":
		msg = fmt.Sprintf("%s (field=%s, layer=%s)", msg, e.Field, e.Layer)
	case e.Field != "":
		msg = fmt.Sprintf("%s (field=%s)", msg, e.Field)
	case e.Layer != "":
		msg = fmt.Sprintf("%s (layer=%s)", msg, e.Layer)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewInputFormatError creates an error for unparseable versions and malformed
// recipe, bucket or layer entries.
func NewInputFormatError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassInput,
		Code:    ErrCodeInputFormat,
		Message: message,
		Err:     err,
	}
}

// NewValidationError creates an error for documents that parse but violate a
// schema or a plan invariant.
func NewValidationError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassInput,
		Code:    ErrCodeValidation,
		Message: message,
		Err:     err,
	}
}

// NewPolicyError creates an error for a plan denied by an enforced policy.
func NewPolicyError(message string) *EngineError {
	return &EngineError{
		Class:   ErrorClassPolicy,
		Code:    ErrCodePolicyDenied,
		Message: message,
	}
}

// NewNotFoundError creates a lookup failure.
func NewNotFoundError(message string) *EngineError {
	return &EngineError{
		Class:   ErrorClassNotFound,
		Code:    ErrCodeNotFound,
		Message: message,
	}
}

// NewInternalError creates an error for collaborator failures.
func NewInternalError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassInternal,
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// WithLayer adds layer context to an error.
func (e *EngineError) WithLayer(name string) *EngineError {
	e.Layer = name
	return e
}

// WithField adds a descriptor field path to an error.
func (e *EngineError) WithField(field string) *EngineError {
	e.Field = field
	return e
}

// WithCode overrides the error code.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsInputFormat returns true if err is an input format error.
func IsInputFormat(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code == ErrCodeInputFormat
	}
	return false
}

// IsInput returns true if err was caused by caller input of any kind.
func IsInput(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassInput
	}
	return false
}

// IsPermanent returns true if retrying the same call cannot succeed: the
// input or an enforced policy must change first.
func IsPermanent(err error) bool {
	switch ClassOf(err) {
	case ErrorClassInput, ErrorClassPolicy, ErrorClassNotFound:
		return true
	default:
		return false
	}
}

// IsPolicyDenied returns true if err reports an enforced policy failure.
func IsPolicyDenied(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPolicy
	}
	return false
}

// IsNotFound returns true if err reports a missing entity.
func IsNotFound(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassNotFound
	}
	return false
}

// ClassOf returns the class of err, or ErrorClassInternal for unclassified errors.
func ClassOf(err error) ErrorClass {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class
	}
	return ErrorClassInternal
}

// CodeOf returns the code of err, or ErrCodeInternal for unclassified errors.
func CodeOf(err error) string {
	var e *EngineError
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return ErrCodeInternal
}

// Common error codes.
const (
	ErrCodeInputFormat  = "INPUT_FORMAT"
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodePolicyDenied = "POLICY_DENIED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)
