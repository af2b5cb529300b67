// test/mock/query_service.go
package mock

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"github.com/dev-mohitbeniwal/semble/model"
	"github.com/dev-mohitbeniwal/semble/service"
)

// MockQueryService is a mock implementation of service.ISembleQueryService
type MockQueryService struct {
	mock.Mock
}

var _ service.ISembleQueryService = &MockQueryService{}

func (m *MockQueryService) SetCredentials(creds *model.ExtendedCredentials) {
	m.Called(creds)
}

func (m *MockQueryService) GetCredentials() *model.ExtendedCredentials {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*model.ExtendedCredentials)
}

func (m *MockQueryService) BuildQuery(b model.QueryBuilder) string {
	return service.BuildQuery(b)
}

func (m *MockQueryService) ExecuteQuery(ctx context.Context, query string, variables map[string]any, opts *model.QueryOptions) (*model.QueryResult, error) {
	args := m.Called(ctx, query, variables, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueryResult), args.Error(1)
}

func (m *MockQueryService) ExecuteBuilt(ctx context.Context, b model.QueryBuilder, opts *model.QueryOptions) (*model.QueryResult, error) {
	args := m.Called(ctx, b, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueryResult), args.Error(1)
}

func (m *MockQueryService) ExecutePaginated(ctx context.Context, query string, variables map[string]any, resource string, pageSize int, opts *model.QueryOptions) ([]json.RawMessage, error) {
	args := m.Called(ctx, query, variables, resource, pageSize, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]json.RawMessage), args.Error(1)
}

func (m *MockQueryService) ResetRateLimit(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockQueryService) GetRateLimitState(ctx context.Context) (model.RateLimitState, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.RateLimitState), args.Error(1)
}

func (m *MockQueryService) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// DataResult wraps raw JSON as a successful query result.
func DataResult(data string) *model.QueryResult {
	return &model.QueryResult{Data: json.RawMessage(data)}
}
