// Package validation provides request validation and custom validators.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	// Image decoders for ValidateImage. DecodeConfig only reads headers.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/facepass/engine/internal/api/response"
	"github.com/facepass/engine/internal/faceerrors"
)

// Image and identifier bounds.
const (
	MaxImageBytes = 10 << 20 // 10 MiB
	MinImageDim   = 10
	MaxImageDim   = 4096

	MaxIdentifierLen = 255

	MinSearchLimit     = 1
	MaxSearchLimit     = 1000
	DefaultSearchLimit = 100
)

// validate is a package-level singleton that is safe for concurrent read-only
// access. All registrations MUST happen in init() only; RegisterValidation is
// not thread-safe.
var validate *validator.Validate

func init() {
	validate = validator.New()

	if err := validate.RegisterValidation("identifier", validateIdentifier); err != nil {
		slog.Error("Failed to register identifier validator", "error", err)
	}
}

// ValidateStruct validates a struct using its validate tags.
func ValidateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		return formatValidationErrors(err)
	}

	return nil
}

// ValidateImage checks that data is a decodable JPEG, PNG, or WebP image
// within the size and dimension bounds. Only the header is decoded.
func ValidateImage(data []byte) error {
	if len(data) == 0 {
		return faceerrors.NewValidationError("file", "image file is empty")
	}

	if len(data) > MaxImageBytes {
		return faceerrors.NewValidationError("file",
			fmt.Sprintf("image exceeds maximum size of %d bytes", MaxImageBytes))
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return faceerrors.NewValidationError("file", "unsupported or corrupt image, expected JPEG, PNG, or WebP")
	}

	if cfg.Width < MinImageDim || cfg.Height < MinImageDim {
		return faceerrors.NewValidationError("file",
			fmt.Sprintf("%s image is too small, minimum dimension is %dpx", format, MinImageDim))
	}

	if cfg.Width > MaxImageDim || cfg.Height > MaxImageDim {
		return faceerrors.NewValidationError("file",
			fmt.Sprintf("%s image is too large, maximum dimension is %dpx", format, MaxImageDim))
	}

	return nil
}

// ValidateIdentifier checks a photo or session identifier: non-empty, at most
// 255 characters, no control or NULL bytes.
func ValidateIdentifier(field, value string) error {
	if value == "" {
		return faceerrors.NewValidationError(field, field+" is required")
	}

	if len(value) > MaxIdentifierLen {
		return faceerrors.NewValidationError(field,
			fmt.Sprintf("%s must be at most %d characters", field, MaxIdentifierLen))
	}

	for _, r := range value {
		if r < 0x20 || r == 0x7f {
			return faceerrors.NewValidationError(field, field+" must not contain control characters")
		}
	}

	return nil
}

// ParseThreshold parses an optional similarity threshold form value in [0, 1].
// An empty value returns def.
func ParseThreshold(raw string, def float64) (float64, error) {
	if raw == "" {
		return def, nil
	}

	threshold, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, faceerrors.NewValidationError("threshold", "threshold must be a number")
	}

	if threshold < 0 || threshold > 1 {
		return 0, faceerrors.NewValidationError("threshold", "threshold must be between 0 and 1")
	}

	return threshold, nil
}

// ParseLimit parses an optional result limit form value in [1, 1000]. An
// empty value returns def.
func ParseLimit(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, faceerrors.NewValidationError("limit", "limit must be an integer")
	}

	if limit < MinSearchLimit || limit > MaxSearchLimit {
		return 0, faceerrors.NewValidationError("limit",
			fmt.Sprintf("limit must be between %d and %d", MinSearchLimit, MaxSearchLimit))
	}

	return limit, nil
}

// fieldErrors presents readable messages while keeping the validator's field
// errors reachable through Unwrap, so GetValidationErrorDetails can still
// extract per-field details for the Problem Details errors array.
type fieldErrors struct {
	message string
	cause   validator.ValidationErrors
}

func (e *fieldErrors) Error() string { return e.message }

func (e *fieldErrors) Unwrap() error { return e.cause }

// formatValidationErrors converts validator errors to a formatted error message
// that can be used in RFC 7807 Problem Details responses.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		messages := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			messages = append(messages, formatFieldError(fieldError))
		}

		return &fieldErrors{
			message: fmt.Sprintf("validation failed: %s", strings.Join(messages, "; ")),
			cause:   validationErrors,
		}
	}

	return err
}

// formatFieldError formats a single field validation error.
func formatFieldError(fieldError validator.FieldError) string {
	field := fieldError.Field()

	switch fieldError.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fieldError.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fieldError.Param())
	case "identifier":
		return field + " must not contain control characters"
	default:
		return field + " is invalid"
	}
}

// GetValidationErrorDetails extracts field-level error details from validation errors
// Returns a slice of ErrorDetail for RFC 7807 Problem Details.
func GetValidationErrorDetails(err error) []response.ErrorDetail {
	var details []response.ErrorDetail

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, fieldError := range validationErrors {
			details = append(details, response.ErrorDetail{
				Location: fieldError.Field(),
				Message:  formatFieldError(fieldError),
				Value:    fieldError.Value(),
			})
		}
	}

	return details
}

// RespondValidationError writes a validation error response with RFC 7807 Problem Details.
func RespondValidationError(w http.ResponseWriter, err error) {
	details := GetValidationErrorDetails(err)

	problem := response.ProblemDetails{
		Type:   "about:blank",
		Title:  "Validation Error",
		Status: http.StatusBadRequest,
		Detail: err.Error(),
		Errors: details,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusBadRequest)

	if err := json.NewEncoder(w).Encode(problem); err != nil {
		slog.Error("Failed to encode validation error response", "error", err)
	}
}

// validateIdentifier rejects strings containing control or NULL bytes.
// Handles both string and *string types.
func validateIdentifier(fl validator.FieldLevel) bool {
	field := fl.Field()

	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return true
		}

		field = field.Elem()
	}

	if field.Kind() != reflect.String {
		return true
	}

	for _, r := range field.String() {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}

	return true
}
