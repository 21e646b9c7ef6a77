package errors

import (
	"fmt"
)

// Error represents a StrataDB error with SQLSTATE code
type Error struct {
	Code     string // SQLSTATE code
	Message  string // Primary error message
	Detail   string // Optional detailed error message
	Hint     string // Optional hint message
	Where    string // Context where error occurred
	Resource string // Resource name if applicable
	Txn      uint64 // Transaction number if applicable (0 if none)
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (SQLSTATE %s) DETAIL: %s", e.Message, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s (SQLSTATE %s)", e.Message, e.Code)
}

// New creates a new Error with the given code and message
func New(code string, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with a formatted message
func Newf(code string, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetail adds detail to the error
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// WithDetailf adds formatted detail to the error
func (e *Error) WithDetailf(format string, args ...interface{}) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// WithHint adds a hint to the error
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// WithWhere sets the context where the error occurred
func (e *Error) WithWhere(where string) *Error {
	e.Where = where
	return e
}

// WithResource sets the resource name
func (e *Error) WithResource(resource string) *Error {
	e.Resource = resource
	return e
}

// WithTxn sets the transaction number
func (e *Error) WithTxn(txn uint64) *Error {
	e.Txn = txn
	return e
}

// InternalErrorf creates an internal error
func InternalErrorf(format string, args ...interface{}) *Error {
	return Newf(InternalError, format, args...)
}

// FeatureNotSupportedError creates a feature not supported error
func FeatureNotSupportedError(feature string) *Error {
	return Newf(FeatureNotSupported, "%s is not supported", feature)
}

// IsError checks if an error is a StrataDB Error with a specific code
func IsError(err error, code string) bool {
	if err == nil {
		return false
	}
	sErr, ok := err.(*Error)
	return ok && sErr.Code == code
}

// GetError attempts to extract a StrataDB Error from any error
func GetError(err error) *Error {
	if err == nil {
		return nil
	}
	if sErr, ok := err.(*Error); ok {
		return sErr
	}
	// Wrap generic errors as internal errors
	return InternalErrorf("%v", err)
}
