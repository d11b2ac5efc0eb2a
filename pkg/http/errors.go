package http

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes written in AppError.Code.
const (
	CodeBadRequest    = "ERR_BAD_REQUEST"
	CodeLimitExceeded = "ERR_LIMIT_EXCEEDED"
	CodeUnavailable   = "ERR_UNAVAILABLE"
)

// AppError is a client-facing error with the HTTP status it maps to.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
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

// WithParam sets a single error param.
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

// WithError wraps the cause. It is logged, never serialized.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// BadRequestError creates a 400 error.
func BadRequestError(message string) *AppError {
	return &AppError{Code: CodeBadRequest, Message: message, Status: http.StatusBadRequest}
}

// LimitError rejects a field whose size exceeds limit.
func LimitError(field string, limit int) *AppError {
	e := &AppError{
		Code:    CodeLimitExceeded,
		Field:   field,
		Message: fmt.Sprintf("at most %d %s per request", limit, field),
		Status:  http.StatusBadRequest,
	}
	return e.WithParam("max", limit)
}

// UnavailableError creates a 503 for a backing store that cannot answer.
func UnavailableError(message string) *AppError {
	return &AppError{Code: CodeUnavailable, Message: message, Status: http.StatusServiceUnavailable}
}

// StatusError is returned by Client for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
