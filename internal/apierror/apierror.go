package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	// ErrValidation marks malformed or missing input. The caller corrects the
	// input and resubmits; never retried automatically.
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	// ErrBusinessRule marks a stable business refusal (insufficient funds,
	// inactive account, over limit, expired). Not retried.
	ErrBusinessRule ErrorCode = "BUSINESS_RULE"
	// ErrNotFound marks an unknown account or card, distinct from business
	// refusals so callers can offer a different recovery flow.
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrConflict     ErrorCode = "CONFLICT"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrInternalServer marks unexpected storage or sequencing failures, the
	// only class eligible for bounded automatic retry.
	ErrInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	logrus.Error(details)
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// CodeOf extracts the error code, or ErrInternalServer for unclassified errors.
func CodeOf(err error) ErrorCode {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ErrInternalServer
}

// Retryable reports whether an error belongs to the storage/sequencing class
// that batch runs may retry up to the skip limit.
func Retryable(err error) bool {
	return CodeOf(err) == ErrInternalServer
}

func MapErrorToHTTPStatus(err error) int {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrConflict:
			return http.StatusConflict
		case ErrValidation, ErrInvalidInput:
			return http.StatusBadRequest
		case ErrBusinessRule:
			return http.StatusUnprocessableEntity
		case ErrInternalServer:
			return http.StatusInternalServerError
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
