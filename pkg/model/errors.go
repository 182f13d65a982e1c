package model

import (
	"errors"
	"net/http"
)

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrStorageFailure   = errors.New("storage failure")
)

// Code maps an error onto the stable code reported to clients.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInvalidOperation):
		return "invalid_operation"
	case errors.Is(err, ErrStorageFailure):
		return "storage_failure"
	default:
		return "internal"
	}
}

// HTTPStatus maps an error onto an HTTP status for the API process.
func HTTPStatus(err error) int {
	switch Code(err) {
	case "":
		return http.StatusOK
	case "unauthenticated":
		return http.StatusUnauthorized
	case "forbidden":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "invalid_input":
		return http.StatusBadRequest
	case "invalid_operation":
		return http.StatusConflict
	case "storage_failure":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns text safe to send to a client. Storage and internal
// errors are not echoed verbatim.
func PublicMessage(err error) string {
	switch Code(err) {
	case "storage_failure":
		return "storage temporarily unavailable"
	case "internal":
		return "internal error"
	default:
		return err.Error()
	}
}
