// controller/schema_controller.go
package controller

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dev-mohitbeniwal/semble/model"
	"github.com/dev-mohitbeniwal/semble/service"
	"github.com/dev-mohitbeniwal/semble/util"
	helper_util "github.com/dev-mohitbeniwal/semble/util/helper"
)

type SchemaController struct {
	discoveryService service.IFieldDiscoveryService
}

func NewSchemaController(discoveryService service.IFieldDiscoveryService) *SchemaController {
	return &SchemaController{discoveryService: discoveryService}
}

// RegisterRoutes registers the API routes for schema discovery
func (sc *SchemaController) RegisterRoutes(r *gin.RouterGroup) {
	schema := r.Group("/schema")
	{
		schema.GET("", sc.DiscoverSchema)
		schema.GET("/queries", sc.DiscoverQueries)
		schema.GET("/mutations", sc.DiscoverMutations)
		schema.GET("/types/:name", sc.GetType)
		schema.GET("/types/:name/fields", sc.DiscoverFields)
		schema.DELETE("/cache", sc.ClearCache)
	}
}

// discoveryOptions reads includeDeprecated, disableCache and refreshCache
// flags and comma separated typeFilter and fieldFilter lists.
func discoveryOptions(c *gin.Context) (model.DiscoveryOptions, error) {
	var opts model.DiscoveryOptions
	if err := c.ShouldBindQuery(&opts); err != nil {
		return opts, err
	}
	opts.TypeFilter = helper_util.GetListParam(c, "typeFilter")
	opts.FieldFilter = helper_util.GetListParam(c, "fieldFilter")
	return opts, nil
}

// DiscoverSchema endpoint
func (sc *SchemaController) DiscoverSchema(c *gin.Context) {
	opts, err := discoveryOptions(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid discovery options", err)
		return
	}

	schema, err := sc.discoveryService.DiscoverSchema(c.Request.Context(), opts)
	if err != nil {
		util.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, schema)
}

// DiscoverQueries endpoint
func (sc *SchemaController) DiscoverQueries(c *gin.Context) {
	sc.listRoot(c, sc.discoveryService.DiscoverQueries)
}

// DiscoverMutations endpoint
func (sc *SchemaController) DiscoverMutations(c *gin.Context) {
	sc.listRoot(c, sc.discoveryService.DiscoverMutations)
}

func (sc *SchemaController) listRoot(c *gin.Context, discover func(context.Context, model.DiscoveryOptions) ([]model.FieldMetadata, error)) {
	opts, err := discoveryOptions(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid discovery options", err)
		return
	}
	fields, err := discover(c.Request.Context(), opts)
	if err != nil {
		util.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, fields)
}

// GetType endpoint
func (sc *SchemaController) GetType(c *gin.Context) {
	opts, err := discoveryOptions(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid discovery options", err)
		return
	}

	t, err := sc.discoveryService.GetType(c.Request.Context(), c.Param("name"), opts)
	if err != nil {
		util.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// DiscoverFields endpoint
func (sc *SchemaController) DiscoverFields(c *gin.Context) {
	opts, err := discoveryOptions(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid discovery options", err)
		return
	}

	fields, err := sc.discoveryService.DiscoverFields(c.Request.Context(), c.Param("name"), opts)
	if err != nil {
		util.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, fields)
}

// ClearCache endpoint
func (sc *SchemaController) ClearCache(c *gin.Context) {
	sc.discoveryService.ClearCache()
	c.Status(http.StatusNoContent)
}
