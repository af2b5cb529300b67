// model/schema.go
package model

import (
	"strings"
	"time"
)

// GraphQL type kinds as reported by introspection.
const (
	KindScalar      = "SCALAR"
	KindObject      = "OBJECT"
	KindInterface   = "INTERFACE"
	KindUnion       = "UNION"
	KindEnum        = "ENUM"
	KindInputObject = "INPUT_OBJECT"
	KindList        = "LIST"
	KindNonNull     = "NON_NULL"
)

// TypeRef is a possibly wrapped type reference.
type TypeRef struct {
	Kind   string   `json:"kind"`
	Name   string   `json:"name,omitempty"`
	OfType *TypeRef `json:"ofType,omitempty"`
}

// String renders the reference in SDL notation, e.g. "[Patient!]!".
func (t *TypeRef) String() string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case KindNonNull:
		return t.OfType.String() + "!"
	case KindList:
		return "[" + t.OfType.String() + "]"
	default:
		return t.Name
	}
}

// NamedType unwraps LIST and NON_NULL layers.
func (t *TypeRef) NamedType() string {
	for cur := t; cur != nil; cur = cur.OfType {
		if cur.Kind != KindNonNull && cur.Kind != KindList {
			return cur.Name
		}
	}
	return ""
}

// InputValue is an argument or input-object field.
type InputValue struct {
	Name         string  `json:"name"`
	Description  string  `json:"description,omitempty"`
	Type         TypeRef `json:"type"`
	DefaultValue *string `json:"defaultValue,omitempty"`
}

// Field is an object or interface field.
type Field struct {
	Name              string       `json:"name"`
	Description       string       `json:"description,omitempty"`
	Args              []InputValue `json:"args,omitempty"`
	Type              TypeRef      `json:"type"`
	IsDeprecated      bool         `json:"isDeprecated"`
	DeprecationReason string       `json:"deprecationReason,omitempty"`
}

// EnumValue is one member of an enum type.
type EnumValue struct {
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	IsDeprecated      bool   `json:"isDeprecated"`
	DeprecationReason string `json:"deprecationReason,omitempty"`
}

// GraphQLType is a named type from __schema.types.
type GraphQLType struct {
	Kind          string       `json:"kind"`
	Name          string       `json:"name"`
	Description   string       `json:"description,omitempty"`
	Fields        []Field      `json:"fields,omitempty"`
	InputFields   []InputValue `json:"inputFields,omitempty"`
	Interfaces    []TypeRef    `json:"interfaces,omitempty"`
	EnumValues    []EnumValue  `json:"enumValues,omitempty"`
	PossibleTypes []TypeRef    `json:"possibleTypes,omitempty"`
}

// Directive is a schema directive definition.
type Directive struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Locations   []string     `json:"locations"`
	Args        []InputValue `json:"args,omitempty"`
}

// NamedTypeRef is a root operation type reference.
type NamedTypeRef struct {
	Name string `json:"name"`
}

// Schema mirrors the __schema object.
type Schema struct {
	Description      string        `json:"description,omitempty"`
	QueryType        *NamedTypeRef `json:"queryType"`
	MutationType     *NamedTypeRef `json:"mutationType,omitempty"`
	SubscriptionType *NamedTypeRef `json:"subscriptionType,omitempty"`
	Types            []GraphQLType `json:"types"`
	Directives       []Directive   `json:"directives,omitempty"`
}

// IntrospectionResult is a processed introspection response.
type IntrospectionResult struct {
	Schema        Schema                 `json:"schema"`
	Types         map[string]GraphQLType `json:"types"`
	Queries       map[string]Field       `json:"queries"`
	Mutations     map[string]Field       `json:"mutations"`
	Subscriptions map[string]Field       `json:"subscriptions"`
	DiscoveredAt  time.Time              `json:"discoveredAt"`
	SchemaVersion string                 `json:"schemaVersion,omitempty"`
}

// DiscoveryOptions controls DiscoverSchema and DiscoverFields.
// IncludeDeprecated also admits introspection (__-prefixed) types.
type DiscoveryOptions struct {
	IncludeDeprecated bool     `json:"includeDeprecated" form:"includeDeprecated"`
	TypeFilter        []string `json:"typeFilter,omitempty" form:"typeFilter"`
	FieldFilter       []string `json:"fieldFilter,omitempty" form:"fieldFilter"`
	DisableCache      bool     `json:"disableCache" form:"disableCache"`
	RefreshCache      bool     `json:"refreshCache" form:"refreshCache"`
}

// ValidationHints are constraints mined from a field description.
type ValidationHints struct {
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Format    string   `json:"format,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
}

// Empty reports whether no hint was found.
func (h ValidationHints) Empty() bool {
	return h.MinLength == nil && h.MaxLength == nil && h.Min == nil && h.Max == nil && h.Format == "" && h.Pattern == ""
}

// FieldMetadata describes one discovered field. Permissions, ValidationRules
// and Examples are advisory annotations.
type FieldMetadata struct {
	Name              string          `json:"name"`
	Type              string          `json:"type"`
	Required          bool            `json:"required"`
	Description       string          `json:"description,omitempty"`
	Deprecated        bool            `json:"deprecated"`
	DeprecationReason string          `json:"deprecationReason,omitempty"`
	Args              []InputValue    `json:"args,omitempty"`
	Permissions       []string        `json:"permissions,omitempty"`
	ValidationRules   ValidationHints `json:"validationRules"`
	Examples          []string        `json:"examples,omitempty"`
}

// IsRequired reports whether an SDL type string is non-null.
func IsRequired(typeString string) bool {
	return strings.HasSuffix(typeString, "!")
}
