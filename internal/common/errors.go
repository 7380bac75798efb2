package common

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound           = errors.New("requested resource not found")
	ErrUnauthorized       = errors.New("unauthorized access")
	ErrForbidden          = errors.New("forbidden access")
	ErrFull               = errors.New("room is full")
	ErrInvalidState       = errors.New("invalid state for this operation")
	ErrConflict           = errors.New("resource conflict") // e.g., room code already taken
	ErrInternalServer     = errors.New("internal server error")
	ErrValidation         = errors.New("validation failed")
	ErrServiceUnavailable = errors.New("service unavailable") // e.g. external judge down
	ErrLockFailed         = errors.New("failed to acquire lock")
)

// Wire codes let a remote client rebuild the sentinel from a JSON error body.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeFull               = "FULL"
	CodeInvalidState       = "INVALID_STATE"
	CodeConflict           = "CONFLICT"
	CodeValidation         = "VALIDATION"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL"
)

var codeToErr = map[string]error{
	CodeNotFound:           ErrNotFound,
	CodeUnauthorized:       ErrUnauthorized,
	CodeForbidden:          ErrForbidden,
	CodeFull:               ErrFull,
	CodeInvalidState:       ErrInvalidState,
	CodeConflict:           ErrConflict,
	CodeValidation:         ErrValidation,
	CodeServiceUnavailable: ErrServiceUnavailable,
	CodeInternal:           ErrInternalServer,
}

// HTTPStatusFromError maps domain errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, ErrForbidden) {
		return http.StatusForbidden
	}
	if errors.Is(err, ErrValidation) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrFull) || errors.Is(err, ErrInvalidState) || errors.Is(err, ErrConflict) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrServiceUnavailable) {
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, ErrLockFailed) {
		return http.StatusConflict
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" { // Unique violation
			return http.StatusConflict
		}
	}

	return http.StatusInternalServerError
}

// CodeFromError returns the wire code for err, CodeInternal when it wraps no known sentinel.
func CodeFromError(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrFull):
		return CodeFull
	case errors.Is(err, ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, ErrConflict), errors.Is(err, ErrLockFailed):
		return CodeConflict
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrServiceUnavailable):
		return CodeServiceUnavailable
	}
	return CodeInternal
}

// ErrorFromCode is the inverse of CodeFromError. Unknown codes yield nil.
func ErrorFromCode(code string) error {
	return codeToErr[code]
}

// Errorf creates a new error with formatting, useful for wrapping.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
