// test/mock/permission_service.go
package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dev-mohitbeniwal/semble/model"
	"github.com/dev-mohitbeniwal/semble/service"
)

// MockPermissionService is a mock implementation of service.IPermissionCheckService
type MockPermissionService struct {
	mock.Mock
}

var _ service.IPermissionCheckService = &MockPermissionService{}

func (m *MockPermissionService) TestPermissions(ctx context.Context, req model.PermissionCheckRequest) (*model.PermissionCheckResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PermissionCheckResult), args.Error(1)
}

func (m *MockPermissionService) CheckFieldPermission(ctx context.Context, resource, field string, op model.Operation, userID string) (model.FieldPermissionResult, error) {
	args := m.Called(ctx, resource, field, op, userID)
	return args.Get(0).(model.FieldPermissionResult), args.Error(1)
}

func (m *MockPermissionService) CheckFieldsPermissions(ctx context.Context, resource string, fields []string, op model.Operation, userID string) ([]model.FieldPermissionResult, error) {
	args := m.Called(ctx, resource, fields, op, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FieldPermissionResult), args.Error(1)
}

func (m *MockPermissionService) ValidatePermissions(ctx context.Context, req model.PermissionCheckRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *MockPermissionService) HasGlobalPermission(perms *model.ResourcePermissions, op model.Operation) bool {
	return m.Called(perms, op).Bool(0)
}

func (m *MockPermissionService) GetResourcePermissions(ctx context.Context, resource, userID string) (*model.ResourcePermissions, bool, error) {
	args := m.Called(ctx, resource, userID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.ResourcePermissions), args.Bool(1), args.Error(2)
}

func (m *MockPermissionService) ClearCache(userID string) {
	m.Called(userID)
}
