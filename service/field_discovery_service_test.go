package service_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	tmock "github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dev-mohitbeniwal/semble/cache"
	semble_errors "github.com/dev-mohitbeniwal/semble/errors"
	"github.com/dev-mohitbeniwal/semble/model"
	"github.com/dev-mohitbeniwal/semble/service"
	"github.com/dev-mohitbeniwal/semble/test/mock"
)

const introspectionFixture = `{
  "__schema": {
    "description": null,
    "queryType": {"name": "Query"},
    "mutationType": {"name": "Mutation"},
    "subscriptionType": null,
    "types": [
      {"kind": "OBJECT", "name": "Query", "fields": [
        {"name": "patients", "description": "List patients. @auth", "args": [],
         "type": {"kind": "NON_NULL", "name": null, "ofType": {"kind": "LIST", "name": null, "ofType": {"kind": "NON_NULL", "name": null, "ofType": {"kind": "OBJECT", "name": "Patient", "ofType": null}}}},
         "isDeprecated": false, "deprecationReason": null},
        {"name": "patient", "description": "Fetch one patient", "args": [
          {"name": "id", "description": null, "type": {"kind": "NON_NULL", "name": null, "ofType": {"kind": "SCALAR", "name": "ID", "ofType": null}}, "defaultValue": null}],
         "type": {"kind": "OBJECT", "name": "Patient", "ofType": null},
         "isDeprecated": false, "deprecationReason": null},
        {"name": "legacyPatients", "description": null, "args": [],
         "type": {"kind": "OBJECT", "name": "Patient", "ofType": null},
         "isDeprecated": true, "deprecationReason": "use patients"}
      ]},
      {"kind": "OBJECT", "name": "Mutation", "fields": [
        {"name": "createPatient", "description": null, "args": [],
         "type": {"kind": "OBJECT", "name": "Patient", "ofType": null},
         "isDeprecated": false, "deprecationReason": null}
      ]},
      {"kind": "OBJECT", "name": "Patient", "fields": [
        {"name": "id", "description": null, "args": [],
         "type": {"kind": "NON_NULL", "name": null, "ofType": {"kind": "SCALAR", "name": "ID", "ofType": null}},
         "isDeprecated": false, "deprecationReason": null},
        {"name": "email", "description": "Contact email. Max length: 254\nExample: jane@example.com", "args": [],
         "type": {"kind": "SCALAR", "name": "String", "ofType": null},
         "isDeprecated": false, "deprecationReason": null},
        {"name": "nhsNumber", "description": "Restricted to @staff", "args": [],
         "type": {"kind": "SCALAR", "name": "String", "ofType": null},
         "isDeprecated": false, "deprecationReason": null}
      ]},
      {"kind": "INPUT_OBJECT", "name": "PatientInput", "fields": null, "inputFields": [
        {"name": "firstName", "description": "Minimum length 1", "type": {"kind": "NON_NULL", "name": null, "ofType": {"kind": "SCALAR", "name": "String", "ofType": null}}, "defaultValue": null}
      ]},
      {"kind": "OBJECT", "name": "__Schema", "fields": []},
      {"kind": "SCALAR", "name": "String"},
      {"kind": "SCALAR", "name": "ID"}
    ],
    "directives": []
  }
}`

func newDiscovery(t *testing.T, withCache bool) (*service.FieldDiscoveryService, *mock.MockQueryService) {
	t.Helper()

	q := new(mock.MockQueryService)
	var opts []service.DiscoveryOption
	if withCache {
		opts = append(opts,
			service.WithSchemaCache(cache.NewSchemaCache(model.DefaultCacheConfig())),
			service.WithFieldCache(cache.New[[]model.FieldMetadata](model.CacheConfig{
				Enabled: true, DefaultTTL: model.DefaultCacheConfig().DefaultTTL, MaxSize: 100, KeyPrefix: cache.FieldsKeyPrefix,
			})))
	}
	svc, err := service.NewFieldDiscoveryService(q, opts...)
	require.NoError(t, err)
	return svc, q
}

func expectIntrospection(q *mock.MockQueryService, data string) *tmock.Call {
	return q.On("ExecuteQuery", tmock.Anything, service.IntrospectionQuery, tmock.Anything, tmock.Anything).
		Return(mock.DataResult(data), nil)
}

func fieldNames(fields []model.FieldMetadata) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

func TestNewFieldDiscoveryService_RequiresQueryService(t *testing.T) {
	_, err := service.NewFieldDiscoveryService(nil)
	require.Error(t, err)
	assert.Equal(t, semble_errors.CategoryConfig, semble_errors.CategoryOf(err))
	assert.Equal(t, semble_errors.CodeMissingDependency, semble_errors.CodeOf(err))
}

func TestDiscoverSchema_FiltersIntrospectionTypesAndDeprecatedFields(t *testing.T) {
	svc, q := newDiscovery(t, false)
	expectIntrospection(q, introspectionFixture)
	ctx := context.Background()

	result, err := svc.DiscoverSchema(ctx, model.DiscoveryOptions{})
	require.NoError(t, err)
	assert.NotContains(t, result.Types, "__Schema")
	assert.Contains(t, result.Queries, "patients")
	assert.NotContains(t, result.Queries, "legacyPatients")
	assert.Contains(t, result.Mutations, "createPatient")
	assert.Empty(t, result.Subscriptions)

	result, err = svc.DiscoverSchema(ctx, model.DiscoveryOptions{IncludeDeprecated: true})
	require.NoError(t, err)
	assert.Contains(t, result.Types, "__Schema")
	assert.Contains(t, result.Queries, "legacyPatients")
}

func TestDiscoverSchema_TypeAndFieldFilters(t *testing.T) {
	svc, q := newDiscovery(t, false)
	expectIntrospection(q, introspectionFixture)

	result, err := svc.DiscoverSchema(context.Background(), model.DiscoveryOptions{
		TypeFilter:  []string{"Patient"},
		FieldFilter: []string{"id", "patients"},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Query", "Mutation", "Patient"}, keys(result.Types))
	assert.Len(t, result.Types["Patient"].Fields, 1)
	assert.ElementsMatch(t, []string{"patients"}, keys(result.Queries))
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestDiscoverSchema_UsesCache(t *testing.T) {
	svc, q := newDiscovery(t, true)
	expectIntrospection(q, introspectionFixture)
	ctx := context.Background()

	_, err := svc.DiscoverSchema(ctx, model.DiscoveryOptions{})
	require.NoError(t, err)
	_, err = svc.DiscoverSchema(ctx, model.DiscoveryOptions{})
	require.NoError(t, err)
	q.AssertNumberOfCalls(t, "ExecuteQuery", 1)

	_, err = svc.DiscoverSchema(ctx, model.DiscoveryOptions{RefreshCache: true})
	require.NoError(t, err)
	_, err = svc.DiscoverSchema(ctx, model.DiscoveryOptions{DisableCache: true})
	require.NoError(t, err)
	q.AssertNumberOfCalls(t, "ExecuteQuery", 3)

	svc.ClearCache()
	_, err = svc.DiscoverSchema(ctx, model.DiscoveryOptions{})
	require.NoError(t, err)
	q.AssertNumberOfCalls(t, "ExecuteQuery", 4)
}

func TestDiscoverSchema_MissingSchemaFails(t *testing.T) {
	for _, withCache := range []bool{false, true} {
		svc, q := newDiscovery(t, withCache)
		expectIntrospection(q, `{"__schema": null}`)

		_, err := svc.DiscoverSchema(context.Background(), model.DiscoveryOptions{})
		require.Error(t, err)
		assert.Equal(t, semble_errors.CategoryAPI, semble_errors.CategoryOf(err), "cache=%v", withCache)
		assert.Equal(t, semble_errors.CodeIntrospectionFailed, semble_errors.CodeOf(err), "cache=%v", withCache)
	}
}

func TestDiscoverSchema_RetriesWithoutSchemaDescription(t *testing.T) {
	svc, q := newDiscovery(t, false)
	q.On("ExecuteQuery", tmock.Anything, service.IntrospectionQuery, tmock.Anything, tmock.Anything).
		Return(&model.QueryResult{Errors: []model.GraphQLError{
			{Message: `Cannot query field "description" on type "__Schema".`},
		}}, nil).Once()
	legacy := strings.Replace(introspectionFixture, `"description": null,`, "", 1)
	q.On("ExecuteQuery", tmock.Anything, service.LegacyIntrospectionQuery, tmock.Anything, tmock.Anything).
		Return(mock.DataResult(legacy), nil).Once()

	result, err := svc.DiscoverSchema(context.Background(), model.DiscoveryOptions{})
	require.NoError(t, err)
	assert.Contains(t, result.Queries, "patients")
	assert.NotEqual(t, service.IntrospectionQuery, service.LegacyIntrospectionQuery)
	assert.NotContains(t, service.LegacyIntrospectionQuery, "__schema {\n    description")
	q.AssertExpectations(t)
}

func TestDiscoverSchema_QueryErrorPropagates(t *testing.T) {
	for _, withCache := range []bool{false, true} {
		svc, q := newDiscovery(t, withCache)
		q.On("ExecuteQuery", tmock.Anything, tmock.Anything, tmock.Anything, tmock.Anything).
			Return(nil, semble_errors.NewAuthError(semble_errors.CodeUnauthorized, "nope"))

		_, err := svc.DiscoverSchema(context.Background(), model.DiscoveryOptions{})
		assert.Equal(t, semble_errors.CategoryAuth, semble_errors.CategoryOf(err), "cache=%v", withCache)
		assert.Equal(t, semble_errors.CodeUnauthorized, semble_errors.CodeOf(err), "cache=%v", withCache)
	}
}

func TestDiscoverQueriesAndMutations(t *testing.T) {
	svc, q := newDiscovery(t, true)
	expectIntrospection(q, introspectionFixture)
	ctx := context.Background()

	queries, err := svc.DiscoverQueries(ctx, model.DiscoveryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"patients", "patient"}, fieldNames(queries))
	assert.Equal(t, "[Patient!]!", queries[0].Type)
	assert.True(t, queries[0].Required)
	assert.Equal(t, []string{"authenticated"}, queries[0].Permissions)
	require.Len(t, queries[1].Args, 1)
	assert.Equal(t, "ID!", queries[1].Args[0].Type.String())

	mutations, err := svc.DiscoverMutations(ctx, model.DiscoveryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"createPatient"}, fieldNames(mutations))
}

func TestDiscoverFields(t *testing.T) {
	svc, q := newDiscovery(t, true)
	expectIntrospection(q, introspectionFixture)
	ctx := context.Background()

	fields, err := svc.DiscoverFields(ctx, "Patient", model.DiscoveryOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"id", "email", "nhsNumber"}, fieldNames(fields))

	assert.Equal(t, "ID!", fields[0].Type)
	assert.True(t, fields[0].Required)

	email := fields[1]
	assert.False(t, email.Required)
	require.NotNil(t, email.ValidationRules.MaxLength)
	assert.Equal(t, 254, *email.ValidationRules.MaxLength)
	assert.Equal(t, "email", email.ValidationRules.Format)
	assert.Equal(t, []string{"jane@example.com"}, email.Examples)

	assert.Equal(t, []string{"staff", "restricted"}, fields[2].Permissions)

	input, err := svc.DiscoverFields(ctx, "PatientInput", model.DiscoveryOptions{})
	require.NoError(t, err)
	require.Len(t, input, 1)
	assert.Equal(t, "String!", input[0].Type)
	require.NotNil(t, input[0].ValidationRules.MinLength)
	assert.Equal(t, 1, *input[0].ValidationRules.MinLength)

	_, err = svc.DiscoverFields(ctx, "Invoice", model.DiscoveryOptions{})
	assert.Equal(t, semble_errors.CodeTypeNotFound, semble_errors.CodeOf(err))

	q.AssertNumberOfCalls(t, "ExecuteQuery", 1)
}

func TestDiscoverFields_FilterViewsCachedSeparately(t *testing.T) {
	svc, q := newDiscovery(t, true)
	expectIntrospection(q, introspectionFixture)
	ctx := context.Background()

	long := strings.Repeat("x", 80)
	byID, err := svc.DiscoverFields(ctx, "Patient", model.DiscoveryOptions{FieldFilter: []string{long, "id"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, fieldNames(byID))

	byEmail, err := svc.DiscoverFields(ctx, "Patient", model.DiscoveryOptions{FieldFilter: []string{long, "email"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"email"}, fieldNames(byEmail))
}

func TestExtractSchemaVersion(t *testing.T) {
	query := &model.NamedTypeRef{Name: "Query"}
	tests := []struct {
		name   string
		result *model.IntrospectionResult
		want   string
	}{
		{"nil", nil, ""},
		{"schema description", &model.IntrospectionResult{
			Schema: model.Schema{Description: "Semble API version: 2.3.1"},
		}, "2.3.1"},
		{"query type description", &model.IntrospectionResult{
			Schema: model.Schema{QueryType: query},
			Types:  map[string]model.GraphQLType{"Query": {Name: "Query", Description: "Root @version v1.4"}},
		}, "1.4"},
		{"version field", &model.IntrospectionResult{
			Schema: model.Schema{QueryType: query},
			Types: map[string]model.GraphQLType{"Query": {Name: "Query", Fields: []model.Field{
				{Name: "schemaVersion", Description: "Current version 3.0.0"},
			}}},
		}, "3.0.0"},
		{"subscriptions", &model.IntrospectionResult{
			Schema: model.Schema{QueryType: query, SubscriptionType: &model.NamedTypeRef{Name: "Subscription"}},
			Types:  map[string]model.GraphQLType{"Query": {Name: "Query"}},
		}, "1.1.0"},
		{"relay connections", &model.IntrospectionResult{
			Types: map[string]model.GraphQLType{"PatientConnection": {Name: "PatientConnection"}},
		}, "1.0.0"},
		{"nothing", &model.IntrospectionResult{
			Types: map[string]model.GraphQLType{"Patient": {Name: "Patient"}},
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, service.ExtractSchemaVersion(tt.result))
		})
	}
}

func TestDescriptionAnnotator(t *testing.T) {
	a := service.DescriptionAnnotator{}

	hints := a.ValidationHints("Age in years, between 0 and 130")
	require.NotNil(t, hints.Min)
	require.NotNil(t, hints.Max)
	assert.Equal(t, 0.0, *hints.Min)
	assert.Equal(t, 130.0, *hints.Max)

	hints = a.ValidationHints("Postcode, pattern: /^[A-Z0-9 ]+$/")
	assert.Equal(t, "^[A-Z0-9 ]+$", hints.Pattern)

	assert.True(t, a.ValidationHints("").Empty())
	assert.Equal(t, []string{"admin", "owner"}, a.Permissions("Visible to @admin or @owner"))

	examples := a.Examples(`Booking status, e.g., confirmed. @example "arrived"`)
	assert.Contains(t, examples, "confirmed")
	assert.Contains(t, examples, "arrived")
	assert.Empty(t, a.Examples("A very long sentence that is clearly prose and not an example value at all"))
}
