// controller/permission_controller.go
package controller

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dev-mohitbeniwal/semble/audit"
	"github.com/dev-mohitbeniwal/semble/model"
	"github.com/dev-mohitbeniwal/semble/service"
	"github.com/dev-mohitbeniwal/semble/util"
	helper_util "github.com/dev-mohitbeniwal/semble/util/helper"
)

// PermissionInvalidator drops cached permissions of a user ("" for all).
type PermissionInvalidator interface {
	InvalidatePermissions(ctx context.Context, userID string)
}

type PermissionController struct {
	permissionService service.IPermissionCheckService
	invalidator       PermissionInvalidator
	auditService      audit.Service
}

// NewPermissionController creates the controller. auditService may be nil,
// in which case the audit route answers 404.
func NewPermissionController(permissionService service.IPermissionCheckService, invalidator PermissionInvalidator, auditService audit.Service) *PermissionController {
	return &PermissionController{
		permissionService: permissionService,
		invalidator:       invalidator,
		auditService:      auditService,
	}
}

// RegisterRoutes registers the API routes for permissions
func (pc *PermissionController) RegisterRoutes(r *gin.RouterGroup) {
	permissions := r.Group("/permissions")
	{
		permissions.POST("/check", pc.TestPermissions)
		permissions.POST("/validate", pc.ValidatePermissions)
		permissions.GET("/audit", pc.QueryDecisions)
		permissions.GET("/resources/:resource", pc.GetResourcePermissions)
		permissions.GET("/resources/:resource/fields", pc.CheckFieldsPermissions)
		permissions.DELETE("/cache", pc.ClearCache)
	}
}

// bindCheckRequest defaults the user to the authenticated caller.
func bindCheckRequest(c *gin.Context) (model.PermissionCheckRequest, error) {
	var req model.PermissionCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return req, err
	}
	if req.UserID == "" {
		req.UserID = util.GetUserIDFromContext(c)
	}
	return req, nil
}

// TestPermissions endpoint
func (pc *PermissionController) TestPermissions(c *gin.Context) {
	req, err := bindCheckRequest(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid permission check request", err)
		return
	}

	result, err := pc.permissionService.TestPermissions(c.Request.Context(), req)
	if err != nil {
		util.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ValidatePermissions endpoint. A denial answers 403 with the restricted
// fields.
func (pc *PermissionController) ValidatePermissions(c *gin.Context) {
	req, err := bindCheckRequest(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid permission check request", err)
		return
	}

	if err := pc.permissionService.ValidatePermissions(c.Request.Context(), req); err != nil {
		util.RespondWithServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetResourcePermissions endpoint
func (pc *PermissionController) GetResourcePermissions(c *gin.Context) {
	userID := c.DefaultQuery("userId", util.GetUserIDFromContext(c))

	perms, cacheHit, err := pc.permissionService.GetResourcePermissions(c.Request.Context(), c.Param("resource"), userID)
	if err != nil {
		util.RespondWithServiceError(c, err)
		return
	}
	c.Header("X-Cache", cacheStatus(cacheHit))
	c.JSON(http.StatusOK, perms)
}

func cacheStatus(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}

// CheckFieldsPermissions endpoint
func (pc *PermissionController) CheckFieldsPermissions(c *gin.Context) {
	fields := helper_util.GetListParam(c, "fields")
	if len(fields) == 0 {
		util.RespondWithError(c, http.StatusBadRequest, "At least one field is required", nil)
		return
	}
	op := model.Operation(c.DefaultQuery("operation", string(model.OperationRead)))
	userID := c.DefaultQuery("userId", util.GetUserIDFromContext(c))

	results, err := pc.permissionService.CheckFieldsPermissions(c.Request.Context(), c.Param("resource"), fields, op, userID)
	if err != nil {
		util.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// ClearCache endpoint
func (pc *PermissionController) ClearCache(c *gin.Context) {
	pc.invalidator.InvalidatePermissions(c.Request.Context(), c.Query("userId"))
	c.Status(http.StatusNoContent)
}

// QueryDecisions endpoint
func (pc *PermissionController) QueryDecisions(c *gin.Context) {
	if pc.auditService == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Permission audit is not enabled"})
		return
	}

	from, err := helper_util.ParseOptionalTime(c.Query("from"))
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid from timestamp", err)
		return
	}
	to, err := helper_util.ParseOptionalTime(c.Query("to"))
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid to timestamp", err)
		return
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", "100"))
	if err != nil || size <= 0 {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid size", err)
		return
	}

	logs, err := pc.auditService.QueryDecisions(c.Request.Context(), audit.DecisionQuery{
		From:     from,
		To:       to,
		UserID:   c.Query("userId"),
		Resource: c.Query("resource"),
		Size:     size,
	})
	if err != nil {
		util.RespondWithError(c, http.StatusBadGateway, "Failed to query permission audit", err)
		return
	}
	c.JSON(http.StatusOK, logs)
}
