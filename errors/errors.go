// errors/errors.go

// Package errors defines the error taxonomy shared by the Semble services.
// Errors are classified by Category rather than by Go type so callers can
// branch on "auth" vs "network" without knowing which service failed.
package errors

import (
	"errors"
	"fmt"
)

// Category groups errors by how callers should react to them.
type Category string

const (
	CategoryAPI        Category = "api"
	CategoryAuth       Category = "auth"
	CategoryValidation Category = "validation"
	CategoryNetwork    Category = "network"
	CategoryPermission Category = "permission"
	CategoryConfig     Category = "config"
	CategoryCache      Category = "cache"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeMissingCredentials    Code = "MISSING_CREDENTIALS"
	CodeInvalidCredentials    Code = "INVALID_CREDENTIALS"
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodeForbidden             Code = "FORBIDDEN"
	CodeNotFound              Code = "NOT_FOUND"
	CodeRateLimitExceeded     Code = "RATE_LIMIT_EXCEEDED"
	CodeServerError           Code = "SERVER_ERROR"
	CodeTimeout               Code = "TIMEOUT"
	CodeNetworkError          Code = "NETWORK_ERROR"
	CodeHTTPError             Code = "HTTP_ERROR"
	CodeGraphQLError          Code = "GRAPHQL_ERROR"
	CodeIntrospectionFailed   Code = "INTROSPECTION_FAILED"
	CodeTypeNotFound          Code = "TYPE_NOT_FOUND"
	CodePermissionDenied      Code = "PERMISSION_DENIED"
	CodeFieldPermissionDenied Code = "FIELD_PERMISSION_DENIED"
	CodeMissingDependency     Code = "MISSING_DEPENDENCY"
	CodeInvalidConfig         Code = "INVALID_CONFIG"
	CodeInvalidStrategy       Code = "INVALID_STRATEGY"
	CodeValidationFailed      Code = "VALIDATION_FAILED"
	CodeCacheWrite            Code = "CACHE_WRITE"
	CodeCacheRead             Code = "CACHE_READ"
	CodeCacheRefresh          Code = "CACHE_REFRESH"
)

var (
	ErrCacheClosed   = errors.New("cache service has been shut down")
	ErrNoCredentials = errors.New("no credentials configured")
)

// SembleError is the structured error returned by every service.
type SembleError struct {
	Category Category
	Code     Code
	Message  string
	Context  map[string]any
	Cause    error
}

func (e *SembleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s [%s/%s]: %v", e.Message, e.Category, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s [%s/%s]", e.Message, e.Category, e.Code)
}

func (e *SembleError) Unwrap() error {
	return e.Cause
}

// Is matches another *SembleError by category and code. An empty code on the
// target matches any code within the category.
func (e *SembleError) Is(target error) bool {
	t, ok := target.(*SembleError)
	if !ok {
		return false
	}
	if t.Category != e.Category {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// WithContext returns e with key set in its context map.
func (e *SembleError) WithContext(key string, value any) *SembleError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func newError(category Category, code Code, message string, cause error) *SembleError {
	return &SembleError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

func NewAPIError(code Code, message string, cause error) *SembleError {
	return newError(CategoryAPI, code, message, cause)
}

func NewAuthError(code Code, message string) *SembleError {
	return newError(CategoryAuth, code, message, nil)
}

func NewValidationError(code Code, message string) *SembleError {
	return newError(CategoryValidation, code, message, nil)
}

func NewNetworkError(code Code, message string, cause error) *SembleError {
	return newError(CategoryNetwork, code, message, cause)
}

func NewPermissionError(code Code, message string) *SembleError {
	return newError(CategoryPermission, code, message, nil)
}

func NewConfigError(code Code, message string) *SembleError {
	return newError(CategoryConfig, code, message, nil)
}

// WrapCacheError attaches the cache operation and key to an underlying
// failure. Sentinel errors such as ErrCacheClosed stay reachable through
// errors.Is.
func WrapCacheError(code Code, key string, cause error) *SembleError {
	return newError(CategoryCache, code, fmt.Sprintf("cache operation failed for key %q", key), cause).
		WithContext("operation", cacheOperation(code)).
		WithContext("key", key)
}

func cacheOperation(code Code) string {
	switch code {
	case CodeCacheWrite:
		return "cache_write"
	case CodeCacheRead:
		return "cache_read"
	case CodeCacheRefresh:
		return "cache_refresh"
	default:
		return string(code)
	}
}

// CategoryOf returns the category of the first SembleError in err's chain.
func CategoryOf(err error) Category {
	var se *SembleError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// CodeOf returns the code of the first SembleError in err's chain.
func CodeOf(err error) Code {
	var se *SembleError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsRetryable reports whether err may succeed on another attempt. Network
// errors always qualify; API errors qualify when their code is listed.
func IsRetryable(err error, retryableCodes []Code) bool {
	var se *SembleError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Category {
	case CategoryNetwork:
		return true
	case CategoryAPI:
		for _, c := range retryableCodes {
			if c == se.Code {
				return true
			}
		}
	}
	return false
}
