// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies application errors.
type ErrorType string

const (
	// ErrorTypeValidation marks empty or malformed caller input.
	ErrorTypeValidation ErrorType = "validation_error"
	// ErrorTypeNotFound marks missing scenario/case/session data.
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeJudgeParse marks an unparsable rubric judge response. Recovered
	// locally by the evaluator, never fatal to the turn.
	ErrorTypeJudgeParse ErrorType = "judge_parse_error"
	// ErrorTypeExternalCapability marks a failed text-generation, search or
	// judge call. Aborts the current turn entirely.
	ErrorTypeExternalCapability ErrorType = "external_capability_error"
	// ErrorTypeProcessing marks everything else.
	ErrorTypeProcessing ErrorType = "processing_error"
)

// AppError carries a typed application error through the service layers.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a typed AppError wrapping an optional cause.
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     cause,
		Code:    errorCode(errType),
	}
}

// NewValidationError creates a validation error.
func NewValidationError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeValidation, message, cause)
}

// NewNotFoundError creates a data-not-found error.
func NewNotFoundError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, cause)
}

// NewJudgeParseError creates a judge-parse error.
func NewJudgeParseError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeJudgeParse, message, cause)
}

// NewExternalCapabilityError creates an external-capability error.
func NewExternalCapabilityError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeExternalCapability, message, cause)
}

// NewProcessingError creates a generic processing error.
func NewProcessingError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeProcessing, message, cause)
}

// IsValidationError reports whether err is a validation error.
func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsNotFoundError reports whether err is a data-not-found error.
func IsNotFoundError(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

// IsJudgeParseError reports whether err is a judge-parse error.
func IsJudgeParseError(err error) bool {
	return isType(err, ErrorTypeJudgeParse)
}

// IsExternalCapabilityError reports whether err is an external-capability error.
func IsExternalCapabilityError(err error) bool {
	return isType(err, ErrorTypeExternalCapability)
}

func isType(err error, errType ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == errType
	}
	return false
}

func errorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeJudgeParse:
		return "JUDGE_PARSE_ERROR"
	case ErrorTypeExternalCapability:
		return "EXTERNAL_CAPABILITY_ERROR"
	case ErrorTypeProcessing:
		return "PROCESSING_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError wraps an existing error, preserving an existing AppError type.
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	return NewAppError(errType, message, err)
}
