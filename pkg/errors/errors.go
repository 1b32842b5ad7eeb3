// Package errors provides structured error handling for the application.
// It defines AppError type with error codes shared by the task pipeline and the API layer.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Error codes organized by category
const (
	// General errors (1000-1099)
	CodeSuccess           = 0
	CodeUnknown           = 1000
	CodeInvalidParams     = 1001
	CodeNotFound          = 1002
	CodeInvalidTransition = 1003
	CodeTimeout           = 1004
	CodeCanceled          = 1005

	// Media tool errors (1100-1199)
	CodeProbeFailed      = 1100
	CodeExtractionFailed = 1101
	CodeAssemblyFailed   = 1102
	CodeVideoNotFound    = 1103

	// Time range errors (1200-1299)
	CodeMalformedTimestamp = 1200
	CodeInvalidRange       = 1201

	// Language model errors (1300-1399)
	CodeProposalUnavailable = 1300

	// Storage errors (1500-1599)
	CodeDBError        = 1500
	CodeFileWriteError = 1501
)

var kindNames = map[int]string{
	CodeUnknown:             "Unknown",
	CodeInvalidParams:       "InvalidParams",
	CodeNotFound:            "NotFound",
	CodeInvalidTransition:   "InvalidTransition",
	CodeTimeout:             "Timeout",
	CodeCanceled:            "Canceled",
	CodeProbeFailed:         "ProbeFailed",
	CodeExtractionFailed:    "ExtractionFailed",
	CodeAssemblyFailed:      "AssemblyFailed",
	CodeVideoNotFound:       "NotFound",
	CodeMalformedTimestamp:  "MalformedTimestamp",
	CodeInvalidRange:        "InvalidRange",
	CodeProposalUnavailable: "ProposalUnavailable",
	CodeDBError:             "DBError",
	CodeFileWriteError:      "FileWriteError",
}

// AppError represents a structured application error
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code int, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithDetail wraps an error with additional detail
func WrapWithDetail(code int, message string, detail string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Detail:  detail,
		Cause:   cause,
	}
}

// Is reports whether any AppError in err's chain carries code.
func Is(err error, code int) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// GetCode extracts error code from error, returns CodeUnknown if not AppError
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetMessage extracts message from error
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// KindOf returns the taxonomy name recorded on failed tasks. A timeout, then a
// cancellation, anywhere in the chain wins over the outer code.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	if Is(err, CodeTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return kindNames[CodeTimeout]
	}
	if Is(err, CodeCanceled) || errors.Is(err, context.Canceled) {
		return kindNames[CodeCanceled]
	}
	if name, ok := kindNames[GetCode(err)]; ok {
		return name
	}
	return kindNames[CodeUnknown]
}

// FromContext converts a context failure into a Timeout error when the
// deadline passed and a Canceled error otherwise. It returns nil while ctx is
// still live.
func FromContext(ctx context.Context, what string) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Wrap(CodeTimeout, what+" timed out", err)
		}
		return Wrap(CodeCanceled, what+" canceled", err)
	}
	return nil
}

// Predefined common errors
var (
	ErrInvalidParams     = New(CodeInvalidParams, "Invalid parameters")
	ErrNotFound          = New(CodeNotFound, "Resource not found")
	ErrInvalidTransition = New(CodeInvalidTransition, "Invalid task state transition")
	ErrVideoNotFound     = New(CodeVideoNotFound, "Video not found")
	ErrDBError           = New(CodeDBError, "Database error")
)
