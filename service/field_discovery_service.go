// service/field_discovery_service.go
package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/juju/clock"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/dev-mohitbeniwal/semble/cache"
	semble_errors "github.com/dev-mohitbeniwal/semble/errors"
	logger "github.com/dev-mohitbeniwal/semble/logging"
	"github.com/dev-mohitbeniwal/semble/model"
	"github.com/dev-mohitbeniwal/semble/util"
)

type IFieldDiscoveryService interface {
	DiscoverSchema(ctx context.Context, opts model.DiscoveryOptions) (*model.IntrospectionResult, error)
	DiscoverFields(ctx context.Context, typeName string, opts model.DiscoveryOptions) ([]model.FieldMetadata, error)
	DiscoverQueries(ctx context.Context, opts model.DiscoveryOptions) ([]model.FieldMetadata, error)
	DiscoverMutations(ctx context.Context, opts model.DiscoveryOptions) ([]model.FieldMetadata, error)
	GetType(ctx context.Context, name string, opts model.DiscoveryOptions) (*model.GraphQLType, error)
	ClearCache()
}

// DiscoveryOption customises a FieldDiscoveryService.
type DiscoveryOption func(*FieldDiscoveryService)

func WithSchemaCache(c *cache.SchemaCache) DiscoveryOption {
	return func(s *FieldDiscoveryService) { s.schemaCache = c }
}

// WithFieldCache caches per-type field metadata under the "fields:" prefix.
func WithFieldCache(c *cache.CacheService[[]model.FieldMetadata]) DiscoveryOption {
	return func(s *FieldDiscoveryService) { s.fieldCache = c }
}

func WithAnnotator(a Annotator) DiscoveryOption {
	return func(s *FieldDiscoveryService) {
		if a != nil {
			s.annotator = a
		}
	}
}

func WithDiscoveryClock(c clock.Clock) DiscoveryOption {
	return func(s *FieldDiscoveryService) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithDiscoveryEventBus publishes schema.refreshed after each introspection.
func WithDiscoveryEventBus(bus *util.EventBus) DiscoveryOption {
	return func(s *FieldDiscoveryService) { s.eventBus = bus }
}

// FieldDiscoveryService introspects the Semble schema and describes its
// types and fields.
type FieldDiscoveryService struct {
	query       ISembleQueryService
	schemaCache *cache.SchemaCache
	fieldCache  *cache.CacheService[[]model.FieldMetadata]
	annotator   Annotator
	clock       clock.Clock
	eventBus    *util.EventBus
}

var _ IFieldDiscoveryService = &FieldDiscoveryService{}

// NewFieldDiscoveryService fails with config/MISSING_DEPENDENCY when query
// is nil. Caching is optional.
func NewFieldDiscoveryService(query ISembleQueryService, opts ...DiscoveryOption) (*FieldDiscoveryService, error) {
	if query == nil {
		return nil, semble_errors.NewConfigError(semble_errors.CodeMissingDependency,
			"field discovery requires a query service")
	}
	s := &FieldDiscoveryService{
		query:     query,
		annotator: DescriptionAnnotator{},
		clock:     clock.WallClock,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// schemaKey identifies the filtered view requested by opts. Cache control
// flags do not take part.
func schemaKey(opts model.DiscoveryOptions) string {
	view := struct {
		IncludeDeprecated bool     `json:"d"`
		TypeFilter        []string `json:"t,omitempty"`
		FieldFilter       []string `json:"f,omitempty"`
	}{opts.IncludeDeprecated, opts.TypeFilter, opts.FieldFilter}
	raw, _ := json.Marshal(view)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DiscoverSchema returns the processed schema, from cache unless
// DisableCache or RefreshCache is set. Concurrent misses share one
// introspection request.
func (s *FieldDiscoveryService) DiscoverSchema(ctx context.Context, opts model.DiscoveryOptions) (*model.IntrospectionResult, error) {
	if s.schemaCache == nil || opts.DisableCache {
		return s.introspect(ctx, opts)
	}

	key := schemaKey(opts)
	if !opts.RefreshCache {
		cached, ok, err := s.schemaCache.GetSchema(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return cached, nil
		}
	}

	return s.schemaCache.RefreshEntry(ctx, key, func(ctx context.Context) (*model.IntrospectionResult, error) {
		return s.introspect(ctx, opts)
	}, 0)
}

func (s *FieldDiscoveryService) introspect(ctx context.Context, opts model.DiscoveryOptions) (*model.IntrospectionResult, error) {
	res, err := s.query.ExecuteQuery(ctx, IntrospectionQuery, nil, &model.QueryOptions{OperationName: "IntrospectionQuery"})
	if rejectedIntrospection(res, err) {
		logger.Info("Introspection rejected, retrying without schema description")
		res, err = s.query.ExecuteQuery(ctx, LegacyIntrospectionQuery, nil, &model.QueryOptions{OperationName: "IntrospectionQuery"})
	}
	if err != nil {
		logger.Error("Schema introspection failed", zap.Error(err))
		return nil, err
	}

	raw := gjson.GetBytes(res.Data, "__schema")
	if !raw.Exists() || raw.Type == gjson.Null {
		msg := "introspection response contains no __schema"
		if len(res.Errors) > 0 {
			msg = fmt.Sprintf("%s: %s", msg, res.Errors[0].Message)
		}
		return nil, semble_errors.NewAPIError(semble_errors.CodeIntrospectionFailed, msg, nil)
	}

	var schema model.Schema
	if err := json.Unmarshal([]byte(raw.Raw), &schema); err != nil {
		return nil, semble_errors.NewAPIError(semble_errors.CodeIntrospectionFailed,
			"introspection response could not be decoded", err)
	}

	result := s.processSchema(schema, opts)
	logger.Info("Discovered Semble schema",
		zap.Int("types", len(result.Types)),
		zap.Int("queries", len(result.Queries)),
		zap.Int("mutations", len(result.Mutations)),
		zap.String("version", result.SchemaVersion))

	if s.eventBus != nil {
		s.eventBus.Publish(ctx, util.EventSchemaRefreshed, result.SchemaVersion)
	}
	return result, nil
}

// rejectedIntrospection reports whether the server refused the document
// itself, as opposed to failing auth or transport.
func rejectedIntrospection(res *model.QueryResult, err error) bool {
	if err != nil {
		code := semble_errors.CodeOf(err)
		return code == semble_errors.CodeHTTPError || code == semble_errors.CodeValidationFailed
	}
	if res == nil || len(res.Errors) == 0 {
		return false
	}
	raw := gjson.GetBytes(res.Data, "__schema")
	return !raw.Exists() || raw.Type == gjson.Null
}

// processSchema indexes types by name. Introspection (__-prefixed) types and
// deprecated fields are dropped unless IncludeDeprecated is set, and the
// type/field allow-lists are applied. Root operation types are kept even
// when TypeFilter omits them.
func (s *FieldDiscoveryService) processSchema(schema model.Schema, opts model.DiscoveryOptions) *model.IntrospectionResult {
	roots := map[string]bool{}
	for _, ref := range []*model.NamedTypeRef{schema.QueryType, schema.MutationType, schema.SubscriptionType} {
		if ref != nil {
			roots[ref.Name] = true
		}
	}

	types := make(map[string]model.GraphQLType, len(schema.Types))
	for _, t := range schema.Types {
		if strings.HasPrefix(t.Name, "__") && !opts.IncludeDeprecated {
			continue
		}
		if len(opts.TypeFilter) > 0 && !roots[t.Name] && !contains(opts.TypeFilter, t.Name) {
			continue
		}
		t.Fields = filterFields(t.Fields, opts)
		types[t.Name] = t
	}

	result := &model.IntrospectionResult{
		Schema:        schema,
		Types:         types,
		Queries:       rootFields(types, schema.QueryType),
		Mutations:     rootFields(types, schema.MutationType),
		Subscriptions: rootFields(types, schema.SubscriptionType),
		DiscoveredAt:  s.clock.Now(),
	}
	result.SchemaVersion = ExtractSchemaVersion(result)
	return result
}

func filterFields(fields []model.Field, opts model.DiscoveryOptions) []model.Field {
	if fields == nil {
		return nil
	}
	out := make([]model.Field, 0, len(fields))
	for _, f := range fields {
		if f.IsDeprecated && !opts.IncludeDeprecated {
			continue
		}
		if len(opts.FieldFilter) > 0 && !contains(opts.FieldFilter, f.Name) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// rootFields resolves a root operation type through the processed types.
func rootFields(types map[string]model.GraphQLType, ref *model.NamedTypeRef) map[string]model.Field {
	out := map[string]model.Field{}
	if ref == nil {
		return out
	}
	for _, f := range types[ref.Name].Fields {
		out[f.Name] = f
	}
	return out
}

// GetType returns the named type or an api/TYPE_NOT_FOUND error.
func (s *FieldDiscoveryService) GetType(ctx context.Context, name string, opts model.DiscoveryOptions) (*model.GraphQLType, error) {
	result, err := s.DiscoverSchema(ctx, opts)
	if err != nil {
		return nil, err
	}
	t, ok := result.Types[name]
	if !ok {
		return nil, semble_errors.NewAPIError(semble_errors.CodeTypeNotFound,
			fmt.Sprintf("type %q not found in schema", name), nil).
			WithContext("type", name)
	}
	return &t, nil
}

// DiscoverFields describes every field of typeName. Input objects report
// their input fields.
func (s *FieldDiscoveryService) DiscoverFields(ctx context.Context, typeName string, opts model.DiscoveryOptions) ([]model.FieldMetadata, error) {
	var key string
	if s.fieldCache != nil && !opts.DisableCache && !opts.RefreshCache {
		key = typeName + ":" + schemaKey(opts)
		if cached, ok, err := s.fieldCache.Get(ctx, key); err == nil && ok {
			return cached, nil
		}
	}

	t, err := s.GetType(ctx, typeName, opts)
	if err != nil {
		return nil, err
	}

	fields := t.Fields
	if t.Kind == model.KindInputObject {
		fields = make([]model.Field, 0, len(t.InputFields))
		for _, in := range t.InputFields {
			fields = append(fields, model.Field{Name: in.Name, Description: in.Description, Type: in.Type})
		}
		fields = filterFields(fields, opts)
	}

	metadata := s.describeFields(fields)
	if key != "" {
		if err := s.fieldCache.Set(ctx, key, metadata, 0); err != nil {
			logger.Warn("Failed to cache field metadata", zap.String("type", typeName), zap.Error(err))
		}
	}
	return metadata, nil
}

// DiscoverQueries describes the fields of the query root type.
func (s *FieldDiscoveryService) DiscoverQueries(ctx context.Context, opts model.DiscoveryOptions) ([]model.FieldMetadata, error) {
	result, err := s.DiscoverSchema(ctx, opts)
	if err != nil {
		return nil, err
	}
	return s.describeRoot(result, result.Schema.QueryType), nil
}

// DiscoverMutations describes the fields of the mutation root type, or
// returns nothing when the schema has none.
func (s *FieldDiscoveryService) DiscoverMutations(ctx context.Context, opts model.DiscoveryOptions) ([]model.FieldMetadata, error) {
	result, err := s.DiscoverSchema(ctx, opts)
	if err != nil {
		return nil, err
	}
	return s.describeRoot(result, result.Schema.MutationType), nil
}

func (s *FieldDiscoveryService) describeRoot(result *model.IntrospectionResult, ref *model.NamedTypeRef) []model.FieldMetadata {
	if ref == nil {
		return []model.FieldMetadata{}
	}
	t, ok := result.Types[ref.Name]
	if !ok {
		return []model.FieldMetadata{}
	}
	return s.describeFields(t.Fields)
}

func (s *FieldDiscoveryService) describeFields(fields []model.Field) []model.FieldMetadata {
	out := make([]model.FieldMetadata, 0, len(fields))
	for _, f := range fields {
		typ := f.Type.String()
		out = append(out, model.FieldMetadata{
			Name:              f.Name,
			Type:              typ,
			Required:          model.IsRequired(typ),
			Description:       f.Description,
			Deprecated:        f.IsDeprecated,
			DeprecationReason: f.DeprecationReason,
			Args:              f.Args,
			Permissions:       s.annotator.Permissions(f.Description),
			ValidationRules:   s.annotator.ValidationHints(f.Description),
			Examples:          s.annotator.Examples(f.Description),
		})
	}
	return out
}

// ClearCache drops cached schemas and field metadata.
func (s *FieldDiscoveryService) ClearCache() {
	if s.schemaCache != nil {
		s.schemaCache.Clear()
	}
	if s.fieldCache != nil {
		s.fieldCache.Clear()
	}
	logger.Debug("Cleared schema discovery cache")
}
