package httpserver

import (
	"net/http"
)

// AppError is a tagged error carrying the HTTP status, stable error code,
// message, and optional structured extra data the spec's error envelope
// requires. Components return AppError instead of panicking or relying on
// exceptions for control flow.
type AppError struct {
	Code    string
	Status  int
	Message string
	Extra   map[string]any
}

func (e *AppError) Error() string {
	return e.Message
}

// NewAppError constructs an AppError.
func NewAppError(status int, code, message string) *AppError {
	return &AppError{Status: status, Code: code, Message: message}
}

// WithExtra attaches structured extra data and returns the same error.
func (e *AppError) WithExtra(extra map[string]any) *AppError {
	e.Extra = extra
	return e
}

// Common, stable error constructors named after the spec's error codes.
func ErrMissingAPIKey() *AppError {
	return NewAppError(http.StatusUnauthorized, "missing_api_key", "X-API-Key header is required")
}

func ErrInvalidAPIKey() *AppError {
	return NewAppError(http.StatusUnauthorized, "invalid_api_key", "API key is invalid or inactive")
}

func ErrRateLimited(retryAfter int) *AppError {
	return NewAppError(http.StatusTooManyRequests, "rate_limited", "rate limit exceeded").
		WithExtra(map[string]any{"retry_after": retryAfter})
}

func ErrQuotaExhausted() *AppError {
	return NewAppError(http.StatusPaymentRequired, "quota_exhausted", "monthly quota exhausted")
}

func ErrCapabilityDisabled(capability string) *AppError {
	return NewAppError(http.StatusNotImplemented, "capability_disabled", "capability disabled by deployment").
		WithExtra(map[string]any{"capability": capability})
}

func ErrCapabilityNotSupported(capabilities map[string]bool) *AppError {
	extra := map[string]any{"model_capabilities": capabilities}
	return NewAppError(http.StatusBadRequest, "capability_not_supported", "capability not supported").
		WithExtra(extra)
}

func ErrSchemaNotFound(schemaID string) *AppError {
	return NewAppError(http.StatusNotFound, "schema_not_found", "schema not found: "+schemaID)
}

func ErrSchemaLoadFailed(schemaID string, cause error) *AppError {
	return NewAppError(http.StatusInternalServerError, "schema_load_failed", "schema failed to load: "+schemaID)
}

func ErrInvalidJSON(message string) *AppError {
	return NewAppError(http.StatusUnprocessableEntity, "invalid_json", message)
}

func ErrSchemaValidationFailed(errs []string) *AppError {
	return NewAppError(http.StatusUnprocessableEntity, "schema_validation_failed", "output failed schema validation").
		WithExtra(map[string]any{"errors": errs})
}

func ErrModelNotLoaded(modelID string) *AppError {
	return NewAppError(http.StatusServiceUnavailable, "model_not_loaded", "model not loaded: "+modelID)
}

func ErrInternal(message string) *AppError {
	return NewAppError(http.StatusInternalServerError, "internal_error", message)
}

func ErrUnauthorized(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, "unauthorized", message)
}

func ErrForbidden(message string) *AppError {
	return NewAppError(http.StatusForbidden, "forbidden", message)
}
