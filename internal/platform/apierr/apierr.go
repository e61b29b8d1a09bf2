package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies failures the way the rest of the backend talks about them.
// Handlers translate codes to HTTP statuses at the response boundary.
type Code string

const (
	CodeNotFound         Code = "not_found"
	CodeInvalidInput     Code = "invalid_input"
	CodeExtractionError  Code = "extraction_error"
	CodeNetworkError     Code = "network_error"
	CodeIndexConsistency Code = "index_consistency"
	CodeStoreError       Code = "store_error"
	CodeInternal         Code = "internal"
)

type Error struct {
	Status int
	Code   Code
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return string(e.Code)
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code Code, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func NotFound(format string, args ...any) *Error {
	return New(http.StatusNotFound, CodeNotFound, fmt.Errorf(format, args...))
}

func InvalidInput(format string, args ...any) *Error {
	return New(http.StatusBadRequest, CodeInvalidInput, fmt.Errorf(format, args...))
}

func Extraction(err error) *Error {
	return New(http.StatusUnprocessableEntity, CodeExtractionError, err)
}

func Network(err error) *Error {
	return New(http.StatusBadGateway, CodeNetworkError, err)
}

// IndexConsistency marks a vector-id/chunk mismatch. These abort the current
// operation; proceeding would corrupt the id-to-vector mapping.
func IndexConsistency(format string, args ...any) *Error {
	return New(http.StatusInternalServerError, CodeIndexConsistency, fmt.Errorf(format, args...))
}

func Store(err error) *Error {
	return New(http.StatusInternalServerError, CodeStoreError, err)
}

// StatusOf maps any error to the HTTP status a handler should return.
func StatusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae.Status
	}
	return http.StatusInternalServerError
}

// CodeOf extracts the taxonomy code, defaulting to internal.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) && ae.Code != "" {
		return ae.Code
	}
	return CodeInternal
}

func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }
