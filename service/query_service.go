// service/query_service.go
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	semble_errors "github.com/dev-mohitbeniwal/semble/errors"
	logger "github.com/dev-mohitbeniwal/semble/logging"
	"github.com/dev-mohitbeniwal/semble/metrics"
	"github.com/dev-mohitbeniwal/semble/model"
	"github.com/dev-mohitbeniwal/semble/ratelimit"
	"github.com/dev-mohitbeniwal/semble/util"
)

// ISembleQueryService defines the interface for GraphQL operations against
// the Semble API
type ISembleQueryService interface {
	SetCredentials(creds *model.ExtendedCredentials)
	GetCredentials() *model.ExtendedCredentials
	BuildQuery(b model.QueryBuilder) string
	ExecuteQuery(ctx context.Context, query string, variables map[string]any, opts *model.QueryOptions) (*model.QueryResult, error)
	ExecuteBuilt(ctx context.Context, b model.QueryBuilder, opts *model.QueryOptions) (*model.QueryResult, error)
	ExecutePaginated(ctx context.Context, query string, variables map[string]any, resource string, pageSize int, opts *model.QueryOptions) ([]json.RawMessage, error)
	ResetRateLimit(ctx context.Context) error
	GetRateLimitState(ctx context.Context) (model.RateLimitState, error)
	Shutdown(ctx context.Context) error
}

// HTTPDoer is the subset of *http.Client used to reach the API.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// QueryOption customises a SembleQueryService.
type QueryOption func(*SembleQueryService)

// WithHTTPClient injects the HTTP client, e.g. one pointed at httptest.
func WithHTTPClient(c HTTPDoer) QueryOption {
	return func(s *SembleQueryService) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithLimiter replaces the in-process sliding window, e.g. with a
// ratelimit.RedisWindow shared between processes.
func WithLimiter(l ratelimit.Limiter) QueryOption {
	return func(s *SembleQueryService) {
		if l != nil {
			s.limiter = l
		}
	}
}

func WithQueryClock(c clock.Clock) QueryOption {
	return func(s *SembleQueryService) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithQueryMetrics(m *metrics.Metrics) QueryOption {
	return func(s *SembleQueryService) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) QueryOption {
	return func(s *SembleQueryService) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithEventBus publishes credential changes so dependent caches can drop
// data fetched with the previous identity.
func WithEventBus(bus *util.EventBus) QueryOption {
	return func(s *SembleQueryService) {
		s.eventBus = bus
	}
}

// SembleQueryService executes GraphQL documents against the Semble API with
// rate limiting and retries.
type SembleQueryService struct {
	cfg        model.QueryConfig
	httpClient HTTPDoer
	limiter    ratelimit.Limiter
	clock      clock.Clock
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	eventBus   *util.EventBus

	mu          sync.RWMutex
	credentials *model.ExtendedCredentials
}

var _ ISembleQueryService = &SembleQueryService{}

// NewSembleQueryService creates a query service. Unset numeric settings fall
// back to model.DefaultQueryConfig.
func NewSembleQueryService(cfg model.QueryConfig, opts ...QueryOption) *SembleQueryService {
	cfg = withQueryDefaults(cfg)
	s := &SembleQueryService{
		cfg:        cfg,
		httpClient: &http.Client{},
		clock:      clock.WallClock,
		tracer:     otel.Tracer("github.com/dev-mohitbeniwal/semble/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = ratelimit.NewSlidingWindow(cfg.RateLimit, s.clock, s.metrics)
	}
	return s
}

func withQueryDefaults(cfg model.QueryConfig) model.QueryConfig {
	def := model.DefaultQueryConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	if cfg.Retries.BackoffMultiplier <= 0 {
		cfg.Retries.BackoffMultiplier = def.Retries.BackoffMultiplier
	}
	if cfg.Retries.RetryableErrors == nil {
		cfg.Retries.RetryableErrors = def.Retries.RetryableErrors
	}
	return cfg
}

// Config returns the effective configuration.
func (s *SembleQueryService) Config() model.QueryConfig {
	return s.cfg
}

func (s *SembleQueryService) SetCredentials(creds *model.ExtendedCredentials) {
	s.mu.Lock()
	s.credentials = creds
	s.mu.Unlock()

	if s.eventBus != nil {
		s.eventBus.Publish(context.Background(), util.EventCredentialsUpdated, creds)
	}
}

func (s *SembleQueryService) GetCredentials() *model.ExtendedCredentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credentials
}

func (s *SembleQueryService) requireCredentials() (*model.ExtendedCredentials, error) {
	creds := s.GetCredentials()
	if creds == nil {
		err := semble_errors.NewAuthError(semble_errors.CodeMissingCredentials,
			"no credentials configured for the Semble API")
		err.Cause = semble_errors.ErrNoCredentials
		return nil, err
	}
	if !creds.HasAuth() {
		return nil, semble_errors.NewAuthError(semble_errors.CodeInvalidCredentials,
			"credentials must include an API token or API key")
	}
	return creds, nil
}

// endpoint resolves the GraphQL URL. A base URL that already ends in
// /graphql is used as is.
func (s *SembleQueryService) endpoint(creds *model.ExtendedCredentials) string {
	base := s.cfg.BaseURL
	if creds != nil && creds.BaseURL != "" {
		base = creds.BaseURL
	}
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/graphql") {
		return base
	}
	return base + "/graphql"
}

// ExecuteQuery runs query with variables. Credentials are checked before any
// network call, the rate limiter rejects immediately when the window is full,
// and retryable failures are retried with exponential backoff.
func (s *SembleQueryService) ExecuteQuery(ctx context.Context, query string, variables map[string]any, opts *model.QueryOptions) (*model.QueryResult, error) {
	if opts == nil {
		opts = &model.QueryOptions{}
	}

	creds, err := s.requireCredentials()
	if err != nil {
		logger.Warn("Refusing to execute query without credentials", zap.Error(err))
		return nil, err
	}

	start := s.clock.Now()
	opName, opType := describeOperation(query, opts.OperationName)

	ctx, span := s.tracer.Start(ctx, "semble.ExecuteQuery", trace.WithAttributes(
		attribute.String("graphql.operation.name", opName),
		attribute.String("graphql.operation.type", opType),
	))
	defer span.End()

	if err := s.limiter.Acquire(ctx); err != nil {
		s.metrics.ObserveQuery(opName, "rate_limited", s.clock.Now().Sub(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limited")
		return nil, err
	}

	retries, timeout := s.effectiveLimits(creds, opts)

	req := graphQLRequest{Query: query, Variables: variables, OperationName: opts.OperationName}
	result, err := s.executeWithRetry(ctx, creds, req, timeout, retries)
	elapsed := s.clock.Now().Sub(start)
	if err != nil {
		s.metrics.ObserveQuery(opName, string(semble_errors.CategoryOf(err)), elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("GraphQL query failed",
			zap.String("operation", opName),
			zap.String("type", opType),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, err
	}

	result.Metadata.ExecutionTime = elapsed
	result.Metadata.OperationName = opName
	span.SetAttributes(attribute.Int("semble.retry_count", result.Metadata.RetryCount))

	status := "ok"
	if len(result.Errors) > 0 {
		status = "graphql_error"
	}
	s.metrics.ObserveQuery(opName, status, elapsed)
	logger.Debug("GraphQL query executed",
		zap.String("operation", opName),
		zap.String("requestID", result.Metadata.RequestID),
		zap.Int("retries", result.Metadata.RetryCount),
		zap.Int("graphqlErrors", len(result.Errors)),
		zap.Duration("elapsed", elapsed))
	return result, nil
}

// effectiveLimits resolves the retry policy and timeout of one call. Query
// options win, then the environment values carried by the credentials, then
// the service configuration.
func (s *SembleQueryService) effectiveLimits(creds *model.ExtendedCredentials, opts *model.QueryOptions) (model.RetryConfig, time.Duration) {
	retries := s.cfg.Retries
	if creds.MaxRetries > 0 {
		retries.MaxAttempts = creds.MaxRetries
	}
	if opts.Retries != nil {
		retries = *opts.Retries
	}

	timeout := s.cfg.Timeout
	if creds.Timeout > 0 {
		timeout = creds.Timeout
	}
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	return retries, timeout
}

// ExecuteBuilt builds a document with BuildQuery and executes it with the
// builder's variables.
func (s *SembleQueryService) ExecuteBuilt(ctx context.Context, b model.QueryBuilder, opts *model.QueryOptions) (*model.QueryResult, error) {
	return s.ExecuteQuery(ctx, s.BuildQuery(b), b.Variables, opts)
}

// ExecutePaginated follows a Semble list query page by page. The query must
// accept a $pagination variable and return {data, pageInfo {hasMore}} under
// the field named resource. Items of every page are returned in order.
func (s *SembleQueryService) ExecutePaginated(ctx context.Context, query string, variables map[string]any, resource string, pageSize int, opts *model.QueryOptions) ([]json.RawMessage, error) {
	if pageSize <= 0 {
		pageSize = 50
	}

	vars := make(map[string]any, len(variables)+1)
	for k, v := range variables {
		vars[k] = v
	}

	var items []json.RawMessage
	for page := 1; page <= s.cfg.MaxPages; page++ {
		vars["pagination"] = map[string]any{"page": page, "pageSize": pageSize}

		result, err := s.ExecuteQuery(ctx, query, vars, opts)
		if err != nil {
			return items, err
		}
		if len(result.Errors) > 0 {
			return items, semble_errors.NewAPIError(semble_errors.CodeGraphQLError,
				fmt.Sprintf("page %d of %s returned errors: %s", page, resource, result.Errors[0].Message), nil)
		}

		list := gjson.GetBytes(result.Data, resource)
		list.Get("data").ForEach(func(_, item gjson.Result) bool {
			items = append(items, json.RawMessage(item.Raw))
			return true
		})

		if !list.Get("pageInfo.hasMore").Bool() {
			return items, nil
		}
		if page == s.cfg.MaxPages {
			logger.Warn("Stopped paginating at page limit",
				zap.String("resource", resource),
				zap.Int("maxPages", s.cfg.MaxPages))
		}
	}
	return items, nil
}

func (s *SembleQueryService) ResetRateLimit(ctx context.Context) error {
	return s.limiter.Reset(ctx)
}

func (s *SembleQueryService) GetRateLimitState(ctx context.Context) (model.RateLimitState, error) {
	return s.limiter.State(ctx)
}

// Shutdown clears credentials and resets the rate limiter. In-flight
// requests are not cancelled.
func (s *SembleQueryService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.credentials = nil
	s.mu.Unlock()

	if err := s.limiter.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset rate limiter: %w", err)
	}
	logger.Info("Semble query service shut down")
	return nil
}
