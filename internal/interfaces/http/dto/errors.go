package dto

import (
	"net/http"

	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/shared"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeTimeout is used when a backing store did not answer in time
	ErrCodeTimeout = "ERR_TIMEOUT"
)

// Validation error codes
const (
	ErrCodeValidation      = "ERR_VALIDATION"
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput    = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON     = "ERR_INVALID_JSON"
	ErrCodeUnknownResource = "ERR_UNKNOWN_RESOURCE"
)

// Tenant binding error codes
const (
	// ErrCodeTenantRequired is used when no tenant id could be resolved
	ErrCodeTenantRequired = "ERR_TENANT_REQUIRED"
	// ErrCodeTenantInvalid is used when the tenant is missing or unusable
	ErrCodeTenantInvalid = "ERR_TENANT_INVALID"
	// ErrCodeFeatureUnavailable is used when a feature or its quota denies access
	ErrCodeFeatureUnavailable = "ERR_FEATURE_UNAVAILABLE"
	// ErrCodeUnauthorized is used when a session token is missing or invalid
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeTokenExpired is used when the session token has expired
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
)

// Resource error codes
const (
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists       = "ERR_ALREADY_EXISTS"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	ErrCodeInvalidState        = "ERR_INVALID_STATE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,
	ErrCodeTimeout:  http.StatusServiceUnavailable,

	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeUnknownResource: http.StatusBadRequest,

	ErrCodeTenantRequired:     http.StatusUnauthorized,
	ErrCodeTenantInvalid:      http.StatusForbidden,
	ErrCodeFeatureUnavailable: http.StatusForbidden,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeTokenExpired:       http.StatusUnauthorized,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState: http.StatusUnprocessableEntity,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// domainErrorCodes maps domain error codes to API error codes
var domainErrorCodes = map[string]string{
	shared.CodeNotFound:            ErrCodeNotFound,
	shared.CodeAlreadyExists:       ErrCodeAlreadyExists,
	shared.CodeInvalidInput:        ErrCodeInvalidInput,
	shared.CodeInvalidState:        ErrCodeInvalidState,
	shared.CodeConcurrencyConflict: ErrCodeConcurrencyConflict,
	shared.CodeFeatureUnavailable:  ErrCodeFeatureUnavailable,
	shared.CodePersistenceFailure:  ErrCodeInternal,
	shared.CodeTimeout:             ErrCodeTimeout,
}

// Messages returned in place of infrastructure error details
const (
	SafeInternalMessage = "internal server error"
	SafeTimeoutMessage  = "tenant store did not respond in time"
)

// ErrorInfoFromDomain translates err into an API error. Persistence and
// timeout failures get a fixed message so driver details stay in the logs.
func ErrorInfoFromDomain(err error) *ErrorInfo {
	de, ok := shared.AsDomainError(err)
	if !ok {
		return &ErrorInfo{Code: ErrCodeInternal, Message: SafeInternalMessage}
	}
	code, known := domainErrorCodes[de.Code]
	if !known {
		code = ErrCodeUnknown
	}
	switch de.Code {
	case shared.CodePersistenceFailure:
		return &ErrorInfo{Code: code, Message: SafeInternalMessage}
	case shared.CodeTimeout:
		return &ErrorInfo{Code: code, Message: SafeTimeoutMessage}
	}
	return &ErrorInfo{Code: code, Message: de.Message}
}
