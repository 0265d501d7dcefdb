// Package faceerrors provides sentinel and custom error types for the engine.
package faceerrors

// ErrValidation represents a validation error.
// Use when client input fails validation (malformed ids, bad image, out-of-range params).
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}

	return "validation error"
}

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// ErrNotFound represents a "not found" error.
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for resources that are not found.
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a new NotFoundError with a custom message.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Resource != "" {
		return e.Resource + " not found"
	}

	return "resource not found"
}

// Is implements the error interface for error comparison.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)

	return ok
}

// ErrRateLimited is the sentinel for rate-limit rejections. RetryAfterSeconds
// gives the caller a backoff hint.
var ErrRateLimited = &RateLimitedError{}

// RateLimitedError is a sentinel error for requests rejected by rate limiting.
type RateLimitedError struct {
	RetryAfterSeconds int
	Message           string
}

// NewRateLimitedError creates a RateLimitedError with a backoff hint.
func NewRateLimitedError(retryAfterSeconds int, message string) *RateLimitedError {
	return &RateLimitedError{RetryAfterSeconds: retryAfterSeconds, Message: message}
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "rate limit exceeded"
}

// Is implements the error interface for error comparison.
func (e *RateLimitedError) Is(target error) bool {
	_, ok := target.(*RateLimitedError)

	return ok
}
