package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorKind classifies every externally visible error into one of five
// categories. The kind determines the stable user-facing message; the
// kind-specific diagnostic detail is logged only in non-production builds.
type ErrorKind string

const (
	// ErrorKindNetwork is a transport-level failure (no HTTP response).
	ErrorKindNetwork ErrorKind = "NETWORK"

	// ErrorKindAPI means the remote returned an error status.
	ErrorKindAPI ErrorKind = "API"

	// ErrorKindValidation means malformed input or a malformed response.
	ErrorKindValidation ErrorKind = "VALIDATION"

	// ErrorKindRateLimit is an explicit 429 or backoff exhaustion.
	ErrorKindRateLimit ErrorKind = "RATE_LIMIT"

	// ErrorKindUnknown is everything unclassified.
	ErrorKindUnknown ErrorKind = "UNKNOWN"
)

// userMessages maps each kind to its stable user-facing message,
// independent of the diagnostic detail.
var userMessages = map[ErrorKind]string{
	ErrorKindNetwork:    "Unable to connect to the service. Please check your internet connection and try again.",
	ErrorKindAPI:        "The service is temporarily unavailable. Please try again in a moment.",
	ErrorKindValidation: "Please check your input and try again.",
	ErrorKindRateLimit:  "Too many requests. Please wait a moment before trying again.",
	ErrorKindUnknown:    "An unexpected error occurred. Please try again.",
}

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited indicates that a request was rate limited.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMissingCredential indicates that an enrichment credential was
	// required but not supplied.
	ErrMissingCredential = errors.New("missing credential")

	// ErrPassActive indicates that a long-running pass (expansion or
	// enrichment) is already running and another may not start.
	ErrPassActive = errors.New("pass already active")
)

// AppError is the normalized error surfaced to callers. Message carries the
// diagnostic detail; UserMessage returns the stable per-kind text.
type AppError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// UserMessage returns the stable user-facing message for the error's kind.
func (e *AppError) UserMessage() string {
	if msg, ok := userMessages[e.Kind]; ok {
		return msg
	}
	return userMessages[ErrorKindUnknown]
}

// NewAppError creates an AppError with the given kind and diagnostic detail.
func NewAppError(kind ErrorKind, message string, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, Cause: cause}
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// RateLimitError provides details about a rate limit rejection.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s: retry after %s", e.Source, e.RetryAfter)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// ExternalAPIError provides details about an external API error.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ExternalAPIError) Unwrap() error {
	return e.Cause
}

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// NewRateLimitError creates a new RateLimitError.
func NewRateLimitError(source string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Source: source, RetryAfter: retryAfter}
}

// NewExternalAPIError creates a new ExternalAPIError.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{Source: source, StatusCode: statusCode, Message: message, Cause: cause}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Normalize maps an arbitrary error onto the AppError taxonomy. Already
// normalized errors pass through unchanged.
func Normalize(err error) *AppError {
	if err == nil {
		return NewAppError(ErrorKindUnknown, "unknown error occurred", nil)
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if errors.Is(err, ErrRateLimited) {
		return NewAppError(ErrorKindRateLimit, err.Error(), err)
	}
	if errors.Is(err, ErrInvalidInput) {
		return NewAppError(ErrorKindValidation, err.Error(), err)
	}

	var apiErr *ExternalAPIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return NewAppError(ErrorKindRateLimit, apiErr.Error(), err)
		case apiErr.StatusCode == 0:
			return NewAppError(ErrorKindNetwork, apiErr.Error(), err)
		default:
			return NewAppError(ErrorKindAPI, apiErr.Error(), err)
		}
	}

	return NewAppError(ErrorKindUnknown, err.Error(), err)
}
