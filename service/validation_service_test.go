package service

import (
	"errors"
	"regexp"
	"testing"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	semble_errors "github.com/dev-mohitbeniwal/semble/errors"
	"github.com/dev-mohitbeniwal/semble/model"
)

func newValidationService() *ValidationService {
	return NewValidationService(nil, testclock.NewClock(testEpoch))
}

func validPatient() map[string]any {
	return map[string]any{
		"firstName":   " John ",
		"lastName":    "Doe",
		"email":       "A@B.COM",
		"phone":       "+1 234 567 890",
		"phoneType":   "mobile",
		"dateOfBirth": "1990-01-15",
	}
}

func validBooking() map[string]any {
	return map[string]any{
		"patientId":  "p-1",
		"doctorId":   "d-1",
		"locationId": "l-1",
		"startTime":  "2024-03-01T10:00:00Z",
		"endTime":    "2024-03-01T10:30:00Z",
	}
}

func TestValidateResourceData_PatientNormalization(t *testing.T) {
	svc := newValidationService()

	result := svc.ValidateResourceData(ResourcePatient, OperationCreate, validPatient())
	require.True(t, result.IsValid, "%v", result.Errors)
	assert.Equal(t, "a@b.com", result.NormalizedData["email"])
	assert.Equal(t, "John", result.NormalizedData["firstName"])
	assert.Equal(t, "+1234567890", result.NormalizedData["phone"])
	assert.Equal(t, "1990-01-15", result.NormalizedData["dateOfBirth"])
}

func TestValidateResourceData_CollectsEveryFieldError(t *testing.T) {
	svc := newValidationService()

	data := validPatient()
	delete(data, "lastName")
	data["email"] = "not-an-email"
	data["phoneType"] = "pager"

	result := svc.ValidateResourceData(ResourcePatient, OperationCreate, data)
	assert.False(t, result.IsValid)

	byField := map[string]string{}
	for _, fe := range result.Errors {
		byField[fe.Field] = fe.Message
	}
	assert.Equal(t, "lastName is required", byField["lastName"])
	assert.Equal(t, "Must be a valid email address", byField["email"])
	assert.Equal(t, "Must be one of: mobile, home, work, fax, other", byField["phoneType"])
}

func TestValidateResourceData_DateOfBirth(t *testing.T) {
	svc := newValidationService()

	data := validPatient()
	data["dateOfBirth"] = "2030-01-01T00:00:00Z"
	result := svc.ValidateResourceData(ResourcePatient, OperationCreate, data)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Date of birth cannot be in the future", result.Errors[0].Message)

	data["dateOfBirth"] = "15/01/1990"
	result = svc.ValidateResourceData(ResourcePatient, OperationCreate, data)
	require.True(t, result.IsValid)
	assert.Equal(t, "1990-01-15", result.NormalizedData["dateOfBirth"])
}

func TestValidateResourceData_PhoneTypeRequiresPhone(t *testing.T) {
	svc := newValidationService()

	data := validPatient()
	delete(data, "phone")
	result := svc.ValidateResourceData(ResourcePatient, OperationCreate, data)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "phoneType", result.Errors[0].Field)
	assert.Equal(t, "Requires phone to be set", result.Errors[0].Message)
}

func TestValidateResourceData_BookingEndAfterStart(t *testing.T) {
	svc := newValidationService()

	tests := []struct {
		name string
		data map[string]any
	}{
		{"equal times", map[string]any{"startTime": "2024-03-01T10:00:00Z", "endTime": "2024-03-01T10:00:00Z"}},
		{"end before start", map[string]any{"startTime": "2024-03-01T10:00:00Z", "endTime": "2024-03-01T09:00:00Z"}},
		{"other fields invalid", map[string]any{"startTime": "2024-03-01T10:00:00Z", "endTime": "2024-03-01T09:00:00Z", "patientId": "bad id!", "duration": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := validBooking()
			for k, v := range tt.data {
				data[k] = v
			}
			result := svc.ValidateResourceData(ResourceBooking, OperationCreate, data)
			assert.False(t, result.IsValid)
			assert.Contains(t, result.Errors, semble_errors.FieldError{
				Field:   "endTime",
				Message: "End time must be after start time",
				Value:   data["endTime"],
			})
		})
	}

	result := svc.ValidateResourceData(ResourceBooking, OperationCreate, validBooking())
	assert.True(t, result.IsValid, "%v", result.Errors)
}

func TestValidateResourceData_UpdateRelaxesRequired(t *testing.T) {
	svc := newValidationService()

	result := svc.ValidateResourceData(ResourcePatient, OperationUpdate, map[string]any{"email": "new@example.com"})
	assert.True(t, result.IsValid)

	result = svc.ValidateResourceData(ResourcePatient, OperationCreate, map[string]any{"email": "new@example.com"})
	assert.False(t, result.IsValid)
}

func TestValidateResourceData_UnknownResourcePassesThrough(t *testing.T) {
	svc := newValidationService()

	result := svc.ValidateResourceData("invoice", OperationCreate, map[string]any{"amount": 10})
	assert.True(t, result.IsValid)
	assert.Equal(t, 10, result.NormalizedData["amount"])
	assert.NotEmpty(t, result.Warnings)
}

func TestValidateAndThrow(t *testing.T) {
	svc := newValidationService()

	data, err := svc.ValidateAndThrow(ResourcePatient, OperationCreate, validPatient())
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", data["email"])

	_, err = svc.ValidateAndThrow(ResourcePatient, OperationCreate, map[string]any{})
	require.Error(t, err)

	var verr *semble_errors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.ElementsMatch(t, []string{"firstName", "lastName"}, verr.Fields())
	assert.True(t, errors.Is(err, &semble_errors.SembleError{Category: semble_errors.CategoryValidation}))
	assert.Contains(t, err.Error(), "firstName is required")
	assert.Contains(t, err.Error(), "lastName is required")
}

func TestValidateField_Rules(t *testing.T) {
	svc := newValidationService()
	five := 5

	tests := []struct {
		name  string
		value any
		rule  model.ValidationRule
		want  string
	}{
		{"type", 12, model.ValidationRule{Type: model.FieldTypeString}, "Must be a string"},
		{"integer", 1.5, model.ValidationRule{Type: model.FieldTypeInteger}, "Must be an integer"},
		{"max length", "abcdef", model.ValidationRule{MaxLength: &five}, "Must be at most 5 characters"},
		{"min", 3.0, model.ValidationRule{Type: model.FieldTypeNumber, Min: floatPtr(4)}, "Must be at least 4"},
		{"pattern", "abc", model.ValidationRule{Pattern: regexp.MustCompile(`^\d+$`), PatternMessage: "digits only"}, "digits only"},
		{"url", "nope", model.ValidationRule{Type: model.FieldTypeURL}, "Must be a valid URL"},
		{"custom", "x", model.ValidationRule{CustomValidator: func(any, map[string]any) string { return "custom says no" }}, "custom says no"},
		{"ok", "https://semble.io", model.ValidationRule{Type: model.FieldTypeURL}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, fe := svc.ValidateField("f", tt.value, tt.rule, nil)
			if tt.want == "" {
				assert.Nil(t, fe)
				return
			}
			require.NotNil(t, fe)
			assert.Equal(t, tt.want, fe.Message)
		})
	}
}

func TestRegisterValidationSchema(t *testing.T) {
	svc := newValidationService()
	svc.RegisterValidationSchema("invoice", model.ResourceSchema{
		"amount": {Required: true, Type: model.FieldTypeNumber, Min: floatPtr(0)},
	})

	result := svc.ValidateResourceData("invoice", OperationCreate, map[string]any{"amount": -1.0})
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "amount", result.Errors[0].Field)

	other := newValidationService()
	_, ok := other.GetValidationSchema("invoice")
	assert.False(t, ok)
}
