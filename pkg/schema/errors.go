package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeStepFailed = "STEP_FAILED"
	ErrCodeInference  = "INFERENCE_ERROR"
	ErrCodeTool       = "TOOL_ERROR"
	ErrCodeStore      = "STORE_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeInternal   = "INTERNAL_ERROR"
)

// TriagoError is the structured error type for all triago operations.
type TriagoError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Step    string         `json:"step,omitempty"`
	Cause   error          `json:"-"`
}

func (e *TriagoError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.Code, e.Step, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *TriagoError) Unwrap() error {
	return e.Cause
}

// NewError creates a new TriagoError.
func NewError(code, message string) *TriagoError {
	return &TriagoError{Code: code, Message: message}
}

// NewErrorf creates a new TriagoError with a formatted message.
func NewErrorf(code, format string, args ...any) *TriagoError {
	return &TriagoError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a step name to the error.
func (e *TriagoError) WithStep(step string) *TriagoError {
	e.Step = step
	return e
}

// WithCause attaches an underlying cause.
func (e *TriagoError) WithCause(err error) *TriagoError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *TriagoError) WithDetails(details map[string]any) *TriagoError {
	e.Details = details
	return e
}
