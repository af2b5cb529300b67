// model/validation.go
package model

import (
	"regexp"

	semble_errors "github.com/dev-mohitbeniwal/semble/errors"
)

// FieldType is the expected shape of a validated value.
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeNumber   FieldType = "number"
	FieldTypeInteger  FieldType = "integer"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeEmail    FieldType = "email"
	FieldTypePhone    FieldType = "phone"
	FieldTypeDate     FieldType = "date"
	FieldTypeDateTime FieldType = "datetime"
	FieldTypeURL      FieldType = "url"
	FieldTypeArray    FieldType = "array"
	FieldTypeObject   FieldType = "object"
)

// ValidationRule describes the constraints on one field. CustomValidator
// returns an error message, or "" when the value is acceptable.
type ValidationRule struct {
	Required        bool                                        `json:"required"`
	Type            FieldType                                   `json:"type,omitempty"`
	MinLength       *int                                        `json:"minLength,omitempty"`
	MaxLength       *int                                        `json:"maxLength,omitempty"`
	Min             *float64                                    `json:"min,omitempty"`
	Max             *float64                                    `json:"max,omitempty"`
	Pattern         *regexp.Regexp                              `json:"pattern,omitempty"`
	PatternMessage  string                                      `json:"patternMessage,omitempty"`
	EnumValues      []string                                    `json:"enumValues,omitempty"`
	CustomValidator func(value any, data map[string]any) string `json:"-"`
	Normalizer      func(value any) any                         `json:"-"`
	Dependencies    []string                                    `json:"dependencies,omitempty"`
}

// ResourceSchema maps field names to rules.
type ResourceSchema map[string]ValidationRule

// ValidationResult is the outcome of ValidateResourceData.
type ValidationResult struct {
	IsValid        bool                       `json:"isValid"`
	Errors         []semble_errors.FieldError `json:"errors"`
	Warnings       []string                   `json:"warnings,omitempty"`
	NormalizedData map[string]any             `json:"normalizedData"`
}
