// test/mock/discovery_service.go
package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dev-mohitbeniwal/semble/model"
	"github.com/dev-mohitbeniwal/semble/service"
)

// MockDiscoveryService is a mock implementation of service.IFieldDiscoveryService
type MockDiscoveryService struct {
	mock.Mock
}

var _ service.IFieldDiscoveryService = &MockDiscoveryService{}

func (m *MockDiscoveryService) DiscoverSchema(ctx context.Context, opts model.DiscoveryOptions) (*model.IntrospectionResult, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.IntrospectionResult), args.Error(1)
}

func (m *MockDiscoveryService) DiscoverFields(ctx context.Context, typeName string, opts model.DiscoveryOptions) ([]model.FieldMetadata, error) {
	args := m.Called(ctx, typeName, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FieldMetadata), args.Error(1)
}

func (m *MockDiscoveryService) DiscoverQueries(ctx context.Context, opts model.DiscoveryOptions) ([]model.FieldMetadata, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FieldMetadata), args.Error(1)
}

func (m *MockDiscoveryService) DiscoverMutations(ctx context.Context, opts model.DiscoveryOptions) ([]model.FieldMetadata, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FieldMetadata), args.Error(1)
}

func (m *MockDiscoveryService) GetType(ctx context.Context, name string, opts model.DiscoveryOptions) (*model.GraphQLType, error) {
	args := m.Called(ctx, name, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.GraphQLType), args.Error(1)
}

func (m *MockDiscoveryService) ClearCache() {
	m.Called()
}
