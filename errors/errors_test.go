package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSembleError_Error(t *testing.T) {
	err := NewAuthError(CodeMissingCredentials, "no credentials")
	assert.Equal(t, "no credentials [auth/MISSING_CREDENTIALS]", err.Error())

	cause := errors.New("connection refused")
	err = NewNetworkError(CodeNetworkError, "request failed", cause)
	assert.Equal(t, "request failed [network/NETWORK_ERROR]: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestSembleError_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewAPIError(CodeNotFound, "missing", nil))

	assert.ErrorIs(t, err, &SembleError{Category: CategoryAPI})
	assert.ErrorIs(t, err, &SembleError{Category: CategoryAPI, Code: CodeNotFound})
	assert.NotErrorIs(t, err, &SembleError{Category: CategoryAPI, Code: CodeServerError})
	assert.NotErrorIs(t, err, &SembleError{Category: CategoryNetwork})
}

func TestCategoryAndCodeOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewConfigError(CodeMissingDependency, "query service missing"))
	assert.Equal(t, CategoryConfig, CategoryOf(err))
	assert.Equal(t, CodeMissingDependency, CodeOf(err))

	assert.Equal(t, Category(""), CategoryOf(errors.New("plain")))
	assert.Equal(t, Code(""), CodeOf(nil))
}

func TestWithContext(t *testing.T) {
	err := NewAPIError(CodeHTTPError, "bad status", nil).
		WithContext("status", 418).
		WithContext("body", "teapot")
	assert.Equal(t, map[string]any{"status": 418, "body": "teapot"}, err.Context)
}

func TestWrapCacheError(t *testing.T) {
	err := WrapCacheError(CodeCacheWrite, "schema:abc", ErrCacheClosed)

	assert.Equal(t, CategoryCache, err.Category)
	assert.Equal(t, "cache_write", err.Context["operation"])
	assert.Equal(t, "schema:abc", err.Context["key"])
	assert.ErrorIs(t, err, ErrCacheClosed)
}

func TestIsRetryable(t *testing.T) {
	codes := []Code{CodeRateLimitExceeded, CodeServerError}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network always retries", NewNetworkError(CodeTimeout, "timeout", nil), true},
		{"listed api code", NewAPIError(CodeRateLimitExceeded, "slow down", nil), true},
		{"unlisted api code", NewAPIError(CodeNotFound, "missing", nil), false},
		{"auth never retries", NewAuthError(CodeUnauthorized, "nope"), false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err, codes))
		})
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{
		Resource:  "patient",
		Operation: "create",
		Errors: []FieldError{
			{Field: "firstName", Message: "firstName is required"},
			{Field: "email", Message: "Must be a valid email address", Value: "nope"},
		},
	}

	assert.Equal(t, []string{"firstName", "email"}, err.Fields())
	assert.Equal(t,
		"validation failed for patient create: firstName: firstName is required; email: Must be a valid email address",
		err.Error())
	assert.ErrorIs(t, err, &SembleError{Category: CategoryValidation})
	assert.NotErrorIs(t, err, &SembleError{Category: CategoryAuth})
}

func TestPermissionError(t *testing.T) {
	err := &PermissionError{
		Resource:         "patients",
		Operation:        "read",
		Reason:           "field access restricted",
		RestrictedFields: []string{"nhsNumber"},
	}
	assert.Equal(t, "permission denied for read on patients: field access restricted (fields: nhsNumber)", err.Error())
	assert.ErrorIs(t, err, &SembleError{Category: CategoryPermission})
}
