package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vissharm/ecommerce-app-user-service/internal/auth"
)

var (
	// ErrValidation is returned when required input is missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateEmail is returned when the normalized email belongs to another account.
	ErrDuplicateEmail = errors.New("email already in use")
	// ErrInvalidCredentials is returned for both unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountNotFound is returned when an account is not found.
	ErrAccountNotFound = errors.New("account not found")
)

// Validation wraps ErrValidation with a human readable reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Error: e.Message,
		Code:  e.Code,
	}
}

// IsInternal reports whether err maps to a 500.
func IsInternal(err error) bool {
	return MapErrorToHTTP(err).StatusCode == http.StatusInternalServerError
}

// MapErrorToHTTP maps domain errors to HTTP errors. Anything unrecognised is
// reported as a generic internal error so no detail leaks to the caller.
func MapErrorToHTTP(err error) *HTTPError {
	switch {
	case errors.Is(err, ErrValidation):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case errors.Is(err, ErrDuplicateEmail):
		return NewHTTPError(http.StatusBadRequest, ErrDuplicateEmail.Error(), "DUPLICATE_EMAIL")
	case errors.Is(err, ErrInvalidCredentials):
		return NewHTTPError(http.StatusBadRequest, ErrInvalidCredentials.Error(), "INVALID_CREDENTIALS")
	case errors.Is(err, ErrAccountNotFound):
		return NewHTTPError(http.StatusNotFound, ErrAccountNotFound.Error(), "ACCOUNT_NOT_FOUND")
	case errors.Is(err, auth.ErrTokenExpired):
		return NewHTTPError(http.StatusUnauthorized, auth.ErrTokenExpired.Error(), "TOKEN_EXPIRED")
	case errors.Is(err, auth.ErrTokenRevoked):
		return NewHTTPError(http.StatusUnauthorized, auth.ErrTokenRevoked.Error(), "TOKEN_REVOKED")
	case errors.Is(err, auth.ErrTokenInvalid):
		return NewHTTPError(http.StatusUnauthorized, auth.ErrTokenInvalid.Error(), "TOKEN_INVALID")
	default:
		return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
