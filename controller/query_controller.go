// controller/query_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	semble_errors "github.com/dev-mohitbeniwal/semble/errors"
	"github.com/dev-mohitbeniwal/semble/model"
	"github.com/dev-mohitbeniwal/semble/service"
	"github.com/dev-mohitbeniwal/semble/util"
	helper_util "github.com/dev-mohitbeniwal/semble/util/helper"
)

const maxPageSize = 500

type QueryController struct {
	queryService service.ISembleQueryService
}

func NewQueryController(queryService service.ISembleQueryService) *QueryController {
	return &QueryController{queryService: queryService}
}

type queryRequest struct {
	Query         string         `json:"query" binding:"required"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName"`
	Timeout       string         `json:"timeout"`
}

func (r queryRequest) options() (*model.QueryOptions, error) {
	opts := &model.QueryOptions{OperationName: r.OperationName}
	if r.Timeout != "" {
		d, err := time.ParseDuration(r.Timeout)
		if err != nil || d <= 0 {
			return nil, semble_errors.NewValidationError(semble_errors.CodeValidationFailed,
				"timeout must be a positive duration such as 10s")
		}
		opts.Timeout = d
	}
	return opts, nil
}

type paginatedRequest struct {
	queryRequest
	Resource string `json:"resource" binding:"required"`
}

// RegisterRoutes registers the API routes for GraphQL execution
func (qc *QueryController) RegisterRoutes(r *gin.RouterGroup) {
	query := r.Group("/query")
	{
		query.POST("", qc.ExecuteQuery)
		query.POST("/build", qc.BuildQuery)
		query.POST("/built", qc.ExecuteBuilt)
		query.POST("/paginated", qc.ExecutePaginated)
	}
	rateLimit := r.Group("/ratelimit")
	{
		rateLimit.GET("", qc.GetRateLimitState)
		rateLimit.DELETE("", qc.ResetRateLimit)
	}
}

// ExecuteQuery endpoint. GraphQL errors that are not auth failures are
// returned with the result and a 200.
func (qc *QueryController) ExecuteQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid query request", err)
		return
	}
	opts, err := req.options()
	if err != nil {
		util.RespondWithServiceError(c, err)
		return
	}

	result, err := qc.queryService.ExecuteQuery(c.Request.Context(), req.Query, req.Variables, opts)
	if err != nil {
		util.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// BuildQuery endpoint
func (qc *QueryController) BuildQuery(c *gin.Context) {
	var b model.QueryBuilder
	if err := c.ShouldBindJSON(&b); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid query builder", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": qc.queryService.BuildQuery(b), "variables": b.Variables})
}

// ExecuteBuilt endpoint
func (qc *QueryController) ExecuteBuilt(c *gin.Context) {
	var b model.QueryBuilder
	if err := c.ShouldBindJSON(&b); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid query builder", err)
		return
	}

	result, err := qc.queryService.ExecuteBuilt(c.Request.Context(), b, nil)
	if err != nil {
		util.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ExecutePaginated endpoint
func (qc *QueryController) ExecutePaginated(c *gin.Context) {
	pageSize, err := helper_util.GetPageSize(c, 50, maxPageSize)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid pagination parameters", err)
		return
	}
	var req paginatedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid paginated query request", err)
		return
	}
	opts, err := req.options()
	if err != nil {
		util.RespondWithServiceError(c, err)
		return
	}

	items, err := qc.queryService.ExecutePaginated(c.Request.Context(), req.Query, req.Variables, req.Resource, pageSize, opts)
	if err != nil {
		util.RespondWithServiceError(c, err)
		return
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// GetRateLimitState endpoint
func (qc *QueryController) GetRateLimitState(c *gin.Context) {
	state, err := qc.queryService.GetRateLimitState(c.Request.Context())
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to read rate limit state", err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// ResetRateLimit endpoint
func (qc *QueryController) ResetRateLimit(c *gin.Context) {
	if err := qc.queryService.ResetRateLimit(c.Request.Context()); err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to reset rate limit", err)
		return
	}
	c.Status(http.StatusNoContent)
}
