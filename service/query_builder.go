// service/query_builder.go
package service

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/dev-mohitbeniwal/semble/model"
)

// BuildQuery assembles a GraphQL document from b. Fragments are prepended,
// directives are attached to the root selection and every variable becomes
// both a declared variable and an argument of the root field. The builder
// does not validate its input.
func (s *SembleQueryService) BuildQuery(b model.QueryBuilder) string {
	return BuildQuery(b)
}

func BuildQuery(b model.QueryBuilder) string {
	var sb strings.Builder

	for _, f := range b.Fragments {
		sb.WriteString(strings.TrimSpace(f))
		sb.WriteString("\n\n")
	}

	operation := b.Operation
	if operation == "" {
		operation = "query"
	}
	sb.WriteString(operation)

	names := make([]string, 0, len(b.Variables))
	for name := range b.Variables {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) > 0 {
		defs := make([]string, len(names))
		for i, name := range names {
			defs[i] = fmt.Sprintf("$%s: %s", name, InferGraphQLType(b.Variables[name]))
		}
		sb.WriteString("(" + strings.Join(defs, ", ") + ")")
	}

	sb.WriteString(" {\n  ")
	sb.WriteString(b.Resource)
	if len(names) > 0 {
		args := make([]string, len(names))
		for i, name := range names {
			args[i] = fmt.Sprintf("%s: $%s", name, name)
		}
		sb.WriteString("(" + strings.Join(args, ", ") + ")")
	}
	for _, d := range b.Directives {
		sb.WriteString(" " + strings.TrimSpace(d))
	}

	sb.WriteString(" {\n")
	for _, field := range b.Fields {
		sb.WriteString("    " + field + "\n")
	}
	sb.WriteString("  }\n}")

	return sb.String()
}

// InferGraphQLType maps a Go value to the GraphQL scalar used when declaring
// it as a variable. Unknown shapes map to JSON.
func InferGraphQLType(v any) string {
	switch val := v.(type) {
	case string:
		return "String"
	case bool:
		return "Boolean"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "Int"
	case float32:
		return floatOrInt(float64(val))
	case float64:
		return floatOrInt(val)
	case nil:
		return "JSON"
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if rv.Len() == 0 {
			return "[JSON]"
		}
		return "[" + InferGraphQLType(rv.Index(0).Interface()) + "]"
	}
	return "JSON"
}

// floatOrInt treats whole numbers as Int, as values decoded from JSON arrive
// as float64.
func floatOrInt(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return "Int"
	}
	return "Float"
}

// describeOperation returns the operation name and type of a document. A
// document that does not parse is reported as an anonymous query.
func describeOperation(query, operationName string) (name string, opType string) {
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	if err != nil || doc == nil || len(doc.Operations) == 0 {
		if operationName != "" {
			return operationName, "query"
		}
		return "anonymous", "query"
	}

	op := doc.Operations[0]
	if operationName != "" {
		if named := doc.Operations.ForName(operationName); named != nil {
			op = named
		}
	}

	name = op.Name
	if name == "" {
		for _, sel := range op.SelectionSet {
			if f, ok := sel.(*ast.Field); ok {
				name = f.Name
				break
			}
		}
	}
	if name == "" {
		name = "anonymous"
	}
	return name, string(op.Operation)
}
