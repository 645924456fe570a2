package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies an error for callers and transport mapping
type ErrorType string

const (
	// ErrorTypeNotFound indicates an unknown clinic, appointment or hold
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates the input was rejected before any state change
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeConflict indicates the slot is taken or the record changed underneath us
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeInvalidTransition indicates a negotiation call made in the wrong state
	ErrorTypeInvalidTransition ErrorType = "INVALID_TRANSITION"

	// ErrorTypeUnauthorized indicates unauthorized access
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal indicates an error from an external service
	ErrorTypeExternal ErrorType = "EXTERNAL"
)

// Code narrows an ErrorType to the specific constraint that failed
type Code string

const (
	CodeRange                 Code = "RANGE"
	CodeWindowExceeded        Code = "WINDOW_EXCEEDED"
	CodeMissingField          Code = "MISSING_FIELD"
	CodeInvalidFormat         Code = "INVALID_FORMAT"
	CodeOutsideHours          Code = "OUTSIDE_HOURS"
	CodeSlotNoLongerAvailable Code = "SLOT_NO_LONGER_AVAILABLE"
	CodeHoldContention        Code = "HOLD_CONTENTION"
	CodeStaleAppointment      Code = "STALE_APPOINTMENT"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	prefix := string(e.Type)
	if e.Code != "" {
		prefix = fmt.Sprintf("%s[%s]", e.Type, e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithCode returns a copy of the error carrying code
func (e *AppError) WithCode(code Code) *AppError {
	cp := *e
	cp.Code = code
	return &cp
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewRangeError reports a numeric or date input outside its allowed range
func NewRangeError(format string, args ...any) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Code:    CodeRange,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewWindowExceededError reports a date past the advance booking window
func NewWindowExceededError(format string, args ...any) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Code:    CodeWindowExceeded,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewMissingFieldError reports a required field that was not supplied
func NewMissingFieldError(field string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Code:    CodeMissingField,
		Message: fmt.Sprintf("%s is required", field),
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Message: message,
	}
}

// NewSlotUnavailableError reports that a slot was taken after it was offered
func NewSlotUnavailableError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Code:    CodeSlotNoLongerAvailable,
		Message: message,
	}
}

// NewHoldContentionError reports that another live hold or booking occupies the slot
func NewHoldContentionError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Code:    CodeHoldContention,
		Message: message,
	}
}

// NewInvalidTransitionError creates a new invalid transition error
func NewInvalidTransitionError(format string, args ...any) *AppError {
	return &AppError{
		Type:    ErrorTypeInvalidTransition,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeUnauthorized,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeExternal,
		Message: message,
		Err:     err,
	}
}

// As returns the first AppError in err's chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType reports whether err carries an AppError of type t
func IsType(err error, t ErrorType) bool {
	appErr, ok := As(err)
	return ok && appErr.Type == t
}

// HasCode reports whether err carries an AppError with code
func HasCode(err error, code Code) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}
