// service/validation_service.go
package service

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/juju/clock"
	"go.uber.org/zap"

	semble_errors "github.com/dev-mohitbeniwal/semble/errors"
	logger "github.com/dev-mohitbeniwal/semble/logging"
	"github.com/dev-mohitbeniwal/semble/model"
)

const (
	ResourcePatient = "patient"
	ResourceBooking = "booking"

	OperationCreate = "create"
	OperationUpdate = "update"

	dateLayout = "2006-01-02"
)

var (
	phonePattern    = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	phoneStrip      = regexp.MustCompile(`[\s\-().]`)
	postcodePattern = regexp.MustCompile(`^[A-Za-z0-9 ]{3,10}$`)
	idPattern       = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

var dateLayouts = []string{dateLayout, time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05", "02/01/2006"}

type IValidationService interface {
	RegisterValidationSchema(resource string, schema model.ResourceSchema)
	GetValidationSchema(resource string) (model.ResourceSchema, bool)
	ValidateField(field string, value any, rule model.ValidationRule, data map[string]any) (any, *semble_errors.FieldError)
	ValidateResourceData(resource, operation string, data map[string]any) model.ValidationResult
	ValidateAndThrow(resource, operation string, data map[string]any) (map[string]any, error)
}

// ValidationService validates and normalises resource payloads before they
// are sent to Semble.
type ValidationService struct {
	validate *validator.Validate
	clock    clock.Clock

	mu      sync.RWMutex
	schemas map[string]model.ResourceSchema
}

var _ IValidationService = &ValidationService{}

// NewValidationService returns a service with the patient and booking
// schemas registered.
func NewValidationService(validate *validator.Validate, clk clock.Clock) *ValidationService {
	if validate == nil {
		validate = validator.New()
	}
	if clk == nil {
		clk = clock.WallClock
	}
	s := &ValidationService{
		validate: validate,
		clock:    clk,
		schemas:  make(map[string]model.ResourceSchema),
	}
	s.RegisterValidationSchema(ResourcePatient, s.patientSchema())
	s.RegisterValidationSchema(ResourceBooking, bookingSchema())
	return s
}

func intPtr(i int) *int { return &i }

func (s *ValidationService) patientSchema() model.ResourceSchema {
	return model.ResourceSchema{
		"title":     {Type: model.FieldTypeString, MaxLength: intPtr(20), Normalizer: TrimString},
		"firstName": {Required: true, Type: model.FieldTypeString, MinLength: intPtr(1), MaxLength: intPtr(100), Normalizer: TrimString},
		"lastName":  {Required: true, Type: model.FieldTypeString, MinLength: intPtr(1), MaxLength: intPtr(100), Normalizer: TrimString},
		"gender":    {Type: model.FieldTypeString, EnumValues: []string{"male", "female", "other", "unknown"}, Normalizer: LowerString},
		"email":     {Type: model.FieldTypeEmail, MaxLength: intPtr(254), Normalizer: NormalizeEmail},
		"phone":     {Type: model.FieldTypePhone, Normalizer: NormalizePhone},
		"phoneType": {Type: model.FieldTypeString, EnumValues: []string{"mobile", "home", "work", "fax", "other"}, Normalizer: LowerString, Dependencies: []string{"phone"}},
		"dateOfBirth": {
			Type:       model.FieldTypeDate,
			Normalizer: NormalizeDate,
			CustomValidator: func(value any, _ map[string]any) string {
				d, err := time.Parse(dateLayout, value.(string))
				if err == nil && d.After(s.clock.Now()) {
					return "Date of birth cannot be in the future"
				}
				return ""
			},
		},
		"address":  {Type: model.FieldTypeObject},
		"postcode": {Type: model.FieldTypeString, Pattern: postcodePattern, PatternMessage: "Postcode must be 3-10 letters, digits or spaces", Normalizer: TrimString},
		"comments": {Type: model.FieldTypeString, MaxLength: intPtr(2000), Normalizer: TrimString},
	}
}

func bookingSchema() model.ResourceSchema {
	id := func() model.ValidationRule {
		return model.ValidationRule{Required: true, Type: model.FieldTypeString, Pattern: idPattern, PatternMessage: "Must be a valid identifier", Normalizer: TrimString}
	}
	return model.ResourceSchema{
		"patientId":     id(),
		"doctorId":      id(),
		"locationId":    id(),
		"bookingTypeId": {Type: model.FieldTypeString, Pattern: idPattern, PatternMessage: "Must be a valid identifier", Normalizer: TrimString},
		"startTime":     {Required: true, Type: model.FieldTypeDateTime, Normalizer: TrimString},
		"endTime":       {Required: true, Type: model.FieldTypeDateTime, Normalizer: TrimString},
		"status":        {Type: model.FieldTypeString, EnumValues: []string{"scheduled", "confirmed", "arrived", "completed", "cancelled", "no_show"}, Normalizer: LowerString},
		"duration":      {Type: model.FieldTypeInteger, Min: floatPtr(5), Max: floatPtr(480)},
		"notes":         {Type: model.FieldTypeString, MaxLength: intPtr(2000), Normalizer: TrimString},
	}
}

func floatPtr(f float64) *float64 { return &f }

// RegisterValidationSchema adds or replaces the schema for resource.
func (s *ValidationService) RegisterValidationSchema(resource string, schema model.ResourceSchema) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[resource] = schema
}

func (s *ValidationService) GetValidationSchema(resource string) (model.ResourceSchema, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schema, ok := s.schemas[resource]
	return schema, ok
}

// ValidateField runs one value through rule: required check, normaliser,
// type check, length/range/pattern/enum checks and the custom validator,
// stopping at the first failure. It returns the normalised value.
func (s *ValidationService) ValidateField(field string, value any, rule model.ValidationRule, data map[string]any) (any, *semble_errors.FieldError) {
	fail := func(msg string) (any, *semble_errors.FieldError) {
		return value, &semble_errors.FieldError{Field: field, Message: msg, Value: value}
	}

	if isEmpty(value) {
		if rule.Required {
			return fail(fmt.Sprintf("%s is required", field))
		}
		return value, nil
	}

	if rule.Normalizer != nil {
		value = rule.Normalizer(value)
	}

	if msg := s.checkType(value, rule.Type); msg != "" {
		return fail(msg)
	}

	if str, ok := value.(string); ok {
		n := utf8.RuneCountInString(str)
		if rule.MinLength != nil && n < *rule.MinLength {
			return fail(fmt.Sprintf("Must be at least %d characters", *rule.MinLength))
		}
		if rule.MaxLength != nil && n > *rule.MaxLength {
			return fail(fmt.Sprintf("Must be at most %d characters", *rule.MaxLength))
		}
		if rule.Pattern != nil && !rule.Pattern.MatchString(str) {
			msg := rule.PatternMessage
			if msg == "" {
				msg = "Invalid format"
			}
			return fail(msg)
		}
		if len(rule.EnumValues) > 0 && !contains(rule.EnumValues, str) {
			return fail(fmt.Sprintf("Must be one of: %s", strings.Join(rule.EnumValues, ", ")))
		}
	} else if rv := reflect.ValueOf(value); rv.Kind() == reflect.Slice {
		if rule.MinLength != nil && rv.Len() < *rule.MinLength {
			return fail(fmt.Sprintf("Must contain at least %d items", *rule.MinLength))
		}
		if rule.MaxLength != nil && rv.Len() > *rule.MaxLength {
			return fail(fmt.Sprintf("Must contain at most %d items", *rule.MaxLength))
		}
	}

	if num, ok := toFloat(value); ok {
		if rule.Min != nil && num < *rule.Min {
			return fail(fmt.Sprintf("Must be at least %v", *rule.Min))
		}
		if rule.Max != nil && num > *rule.Max {
			return fail(fmt.Sprintf("Must be at most %v", *rule.Max))
		}
	}

	for _, dep := range rule.Dependencies {
		if isEmpty(data[dep]) {
			return fail(fmt.Sprintf("Requires %s to be set", dep))
		}
	}

	if rule.CustomValidator != nil {
		if msg := rule.CustomValidator(value, data); msg != "" {
			return fail(msg)
		}
	}

	return value, nil
}

func (s *ValidationService) checkType(value any, t model.FieldType) string {
	switch t {
	case "":
		return ""
	case model.FieldTypeString:
		if _, ok := value.(string); !ok {
			return "Must be a string"
		}
	case model.FieldTypeNumber:
		if _, ok := toFloat(value); !ok {
			return "Must be a number"
		}
	case model.FieldTypeInteger:
		f, ok := toFloat(value)
		if !ok || f != math.Trunc(f) {
			return "Must be an integer"
		}
	case model.FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			return "Must be true or false"
		}
	case model.FieldTypeEmail:
		str, ok := value.(string)
		if !ok || s.validate.Var(str, "email") != nil {
			return "Must be a valid email address"
		}
	case model.FieldTypeURL:
		str, ok := value.(string)
		if !ok || s.validate.Var(str, "url") != nil {
			return "Must be a valid URL"
		}
	case model.FieldTypePhone:
		str, ok := value.(string)
		if !ok || !phonePattern.MatchString(str) {
			return "Must be a valid phone number"
		}
	case model.FieldTypeDate:
		str, ok := value.(string)
		if !ok {
			return "Must be a date (YYYY-MM-DD)"
		}
		if _, err := time.Parse(dateLayout, str); err != nil {
			return "Must be a date (YYYY-MM-DD)"
		}
	case model.FieldTypeDateTime:
		str, ok := value.(string)
		if !ok {
			return "Must be an ISO 8601 date-time"
		}
		if _, ok := parseTime(str); !ok {
			return "Must be an ISO 8601 date-time"
		}
	case model.FieldTypeArray:
		k := reflect.ValueOf(value).Kind()
		if k != reflect.Slice && k != reflect.Array {
			return "Must be a list"
		}
	case model.FieldTypeObject:
		if reflect.ValueOf(value).Kind() != reflect.Map {
			return "Must be an object"
		}
	}
	return ""
}

// ValidateResourceData validates data against the schema of resource.
// Update operations treat every field as optional. Fields without a rule are
// passed through unchanged.
func (s *ValidationService) ValidateResourceData(resource, operation string, data map[string]any) model.ValidationResult {
	result := model.ValidationResult{
		Errors:         []semble_errors.FieldError{},
		NormalizedData: make(map[string]any, len(data)),
	}
	for k, v := range data {
		result.NormalizedData[k] = v
	}

	schema, ok := s.GetValidationSchema(resource)
	if !ok {
		result.IsValid = true
		result.Warnings = append(result.Warnings, fmt.Sprintf("No validation schema registered for %s", resource))
		return result
	}

	fields := make([]string, 0, len(schema))
	for f := range schema {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		rule := schema[field]
		if operation == OperationUpdate {
			rule.Required = false
		}

		value, present := data[field]
		normalized, fieldErr := s.ValidateField(field, value, rule, data)
		if fieldErr != nil {
			result.Errors = append(result.Errors, *fieldErr)
			continue
		}
		if present {
			result.NormalizedData[field] = normalized
		}
	}

	if resource == ResourceBooking {
		result.Errors = append(result.Errors, bookingDependencyErrors(result.NormalizedData)...)
	}

	result.IsValid = len(result.Errors) == 0
	if !result.IsValid {
		logger.Debug("Validation failed",
			zap.String("resource", resource),
			zap.String("operation", operation),
			zap.Int("errors", len(result.Errors)))
	}
	return result
}

func bookingDependencyErrors(data map[string]any) []semble_errors.FieldError {
	startRaw, _ := data["startTime"].(string)
	endRaw, _ := data["endTime"].(string)
	start, okStart := parseTime(startRaw)
	end, okEnd := parseTime(endRaw)
	if !okStart || !okEnd || end.After(start) {
		return nil
	}
	return []semble_errors.FieldError{{
		Field:   "endTime",
		Message: "End time must be after start time",
		Value:   data["endTime"],
	}}
}

// ValidateAndThrow returns the normalised data, or a *ValidationError that
// lists every rejected field.
func (s *ValidationService) ValidateAndThrow(resource, operation string, data map[string]any) (map[string]any, error) {
	result := s.ValidateResourceData(resource, operation, data)
	if !result.IsValid {
		return nil, &semble_errors.ValidationError{
			Resource:  resource,
			Operation: operation,
			Errors:    result.Errors,
		}
	}
	return result.NormalizedData, nil
}

// TrimString trims surrounding whitespace from strings.
func TrimString(v any) any {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return v
}

func LowerString(v any) any {
	if s, ok := v.(string); ok {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return v
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(v any) any {
	return LowerString(v)
}

// NormalizePhone drops spaces, dashes, dots and parentheses.
func NormalizePhone(v any) any {
	if s, ok := v.(string); ok {
		return phoneStrip.ReplaceAllString(strings.TrimSpace(s), "")
	}
	return v
}

// NormalizeDate rewrites any recognised date or date-time as YYYY-MM-DD.
// Unrecognised input is returned unchanged for the type check to reject.
func NormalizeDate(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.Format(dateLayout)
	case string:
		if t, ok := parseTime(strings.TrimSpace(val)); ok {
			return t.Format(dateLayout)
		}
	}
	return v
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
