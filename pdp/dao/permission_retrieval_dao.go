package dao

import (
	"context"
	"fmt"
	"strings"

	"github.com/juju/clock"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	semble_errors "github.com/dev-mohitbeniwal/semble/errors"
	logger "github.com/dev-mohitbeniwal/semble/logging"
	"github.com/dev-mohitbeniwal/semble/model"
	pdp_model "github.com/dev-mohitbeniwal/semble/pdp/model"
)

const checkPermissionsQuery = `query CheckPermissions($resource: String!, $userId: ID) {
  permissions(resource: $resource, userId: $userId) {
    resource
    globalPermission
    fieldPermissions {
      field
      read
      write
      required
      conditionalAccess
    }
    operations {
      create
      read
      update
      delete
    }
  }
}`

const checkAdminStatusQuery = `query CheckAdminStatus($userId: ID) {
  user(id: $userId) {
    id
    role
    permissions
  }
}`

// QueryExecutor runs GraphQL documents against Semble.
type QueryExecutor interface {
	ExecuteQuery(ctx context.Context, query string, variables map[string]any, opts *model.QueryOptions) (*model.QueryResult, error)
}

// PermissionRetrievalDAO reads permission data from the Semble API.
type PermissionRetrievalDAO struct {
	Query QueryExecutor
	Clock clock.Clock
}

func NewPermissionRetrievalDAO(query QueryExecutor, clk clock.Clock) *PermissionRetrievalDAO {
	if clk == nil {
		clk = clock.WallClock
	}
	return &PermissionRetrievalDAO{Query: query, Clock: clk}
}

func variables(userID string, extra map[string]any) map[string]any {
	vars := map[string]any{}
	for k, v := range extra {
		vars[k] = v
	}
	if userID != "" {
		vars["userId"] = userID
	}
	return vars
}

// RetrievePermissions fetches what userID ("" for the token's own user) may
// do with resource. A missing permissions object yields level none.
func (dao *PermissionRetrievalDAO) RetrievePermissions(ctx context.Context, resource, userID string) (*model.ResourcePermissions, error) {
	logger.Debug("Retrieving permissions",
		zap.String("resource", resource),
		zap.String("userID", userID))

	result, err := dao.Query.ExecuteQuery(ctx, checkPermissionsQuery,
		variables(userID, map[string]any{"resource": resource}),
		&model.QueryOptions{OperationName: "CheckPermissions"})
	if err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		return nil, semble_errors.NewAPIError(semble_errors.CodeGraphQLError,
			fmt.Sprintf("permission check failed: %s", result.Errors[0].Message), nil).
			WithContext("resource", resource)
	}

	perms := &model.ResourcePermissions{
		Resource:         resource,
		GlobalPermission: model.PermissionNone,
		FieldPermissions: map[string]model.FieldPermission{},
		LastUpdated:      dao.Clock.Now(),
	}

	node := gjson.GetBytes(result.Data, "permissions")
	if !node.Exists() || node.Type == gjson.Null {
		logger.Warn("Permission response empty, assuming no access",
			zap.String("resource", resource),
			zap.String("userID", userID))
		return perms, nil
	}

	if r := node.Get("resource").String(); r != "" {
		perms.Resource = r
	}
	level := model.PermissionLevel(strings.ToLower(node.Get("globalPermission").String()))
	if level.Valid() {
		perms.GlobalPermission = level
	} else if level != "" {
		logger.Warn("Unknown permission level, assuming none", zap.String("level", string(level)))
	}

	node.Get("fieldPermissions").ForEach(func(_, fp gjson.Result) bool {
		name := fp.Get("field").String()
		if name == "" {
			return true
		}
		perms.FieldPermissions[name] = model.FieldPermission{
			Read:              fp.Get("read").Bool(),
			Write:             fp.Get("write").Bool(),
			Required:          fp.Get("required").Bool(),
			ConditionalAccess: fp.Get("conditionalAccess").String(),
		}
		return true
	})

	ops := node.Get("operations")
	perms.Operations = model.OperationPermissions{
		Create: ops.Get("create").Bool(),
		Read:   ops.Get("read").Bool(),
		Update: ops.Get("update").Bool(),
		Delete: ops.Get("delete").Bool(),
	}
	return perms, nil
}

// RetrieveAdminStatus fetches the role and permission names of userID.
func (dao *PermissionRetrievalDAO) RetrieveAdminStatus(ctx context.Context, userID string) (*pdp_model.AdminStatus, error) {
	result, err := dao.Query.ExecuteQuery(ctx, checkAdminStatusQuery,
		variables(userID, nil),
		&model.QueryOptions{OperationName: "CheckAdminStatus"})
	if err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		return nil, semble_errors.NewAPIError(semble_errors.CodeGraphQLError,
			fmt.Sprintf("admin status check failed: %s", result.Errors[0].Message), nil)
	}

	user := gjson.GetBytes(result.Data, "user")
	status := &pdp_model.AdminStatus{
		UserID: user.Get("id").String(),
		Role:   user.Get("role").String(),
	}
	user.Get("permissions").ForEach(func(_, p gjson.Result) bool {
		status.Permissions = append(status.Permissions, p.String())
		return true
	})
	return status, nil
}

// IsAdmin reports whether the status names the admin role or permission.
func IsAdmin(status *pdp_model.AdminStatus) bool {
	if status == nil {
		return false
	}
	if strings.EqualFold(status.Role, "admin") {
		return true
	}
	for _, p := range status.Permissions {
		if strings.EqualFold(p, "admin") {
			return true
		}
	}
	return false
}
