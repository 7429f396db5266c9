// Package errors defines the structured error taxonomy shared by all
// datasource tools. Every error crossing the MCP boundary carries a
// machine-readable code, a human-readable message, and an optional
// details mapping.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// Code identifies the error category for tool callers.
type Code string

const (
	CodeDatasourceDisabled    Code = "DATASOURCE_DISABLED"
	CodeDatasourceUnavailable Code = "DATASOURCE_UNAVAILABLE"
	CodeInvalidQuery          Code = "INVALID_QUERY"
	CodeInvalidPattern        Code = "INVALID_PATTERN"
	CodeTimeRangeExceeded     Code = "TIME_RANGE_EXCEEDED"
	CodeBucketNotAllowed      Code = "BUCKET_NOT_ALLOWED"
	CodeResultsTruncated      Code = "RESULTS_TRUNCATED"
	CodeUpstreamTimeout       Code = "UPSTREAM_TIMEOUT"
	CodeUpstreamClientError   Code = "UPSTREAM_CLIENT_ERROR"
	CodeUpstreamServerError   Code = "UPSTREAM_SERVER_ERROR"
	CodeRateLimited           Code = "RATE_LIMITED"
)

// Error is a structured error with a taxonomy code and details mapping.
type Error struct {
	Code    Code                   `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// New creates a new structured error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new structured error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetails attaches a details mapping to the error.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// Response is the uniform error payload rendered to tool callers.
type Response struct {
	Error *Error `json:"error"`
}

// Response wraps the error in the standard {"error": {...}} envelope.
func (e *Error) Response() *Response {
	return &Response{Error: e}
}

// JSON renders the error response envelope as indented JSON. A marshal
// failure falls back to a minimal hand-built payload.
func (e *Error) JSON() string {
	b, err := json.MarshalIndent(e.Response(), "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error":{"code":%q,"message":%q}}`, e.Code, e.Message)
	}
	return string(b)
}

// As extracts a structured *Error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the taxonomy code of err, or empty string when err is
// not a structured error.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}
