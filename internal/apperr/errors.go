// Package apperr defines the error taxonomy shared by the service and HTTP
// layers.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an Error
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeNotFound          Code = "NOT_FOUND"
	CodeUpstreamAuth      Code = "UPSTREAM_AUTH"
	CodeUpstreamTransient Code = "UPSTREAM_TRANSIENT"
	CodeConflict          Code = "CONFLICT"
	CodeInternal          Code = "INTERNAL_ERROR"
)

// Error is an application error with a stable code
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// New creates an Error
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to err. Returns nil for a nil err.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// WithDetails returns a copy of e carrying details
func (e *Error) WithDetails(details string) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Details = details
	return &cp
}

// HTTPStatus maps the code to a response status
func (e *Error) HTTPStatus() int {
	if e == nil {
		return http.StatusOK
	}

	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUpstreamAuth:
		return http.StatusUnauthorized
	case CodeUpstreamTransient:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf returns the code of the first *Error in err's chain, or
// CodeInternal when there is none
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries code
func IsCode(err error, code Code) bool {
	return errors.Is(err, &Error{Code: code})
}

// From converts err into an *Error, wrapping unknown errors as internal
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, CodeInternal, "internal error")
}

// WriteJSON writes err as {"error":{"code","message","details"}}. Internal
// causes are never exposed.
func WriteJSON(w http.ResponseWriter, err error) {
	e := From(err)

	body := map[string]any{
		"error": map[string]any{
			"code":    e.Code,
			"message": e.Message,
			"details": e.Details,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus())
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		w.Write([]byte(`{"error":{"code":"INTERNAL_ERROR","message":"internal error"}}`))
	}
}
