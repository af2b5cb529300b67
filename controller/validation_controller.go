// controller/validation_controller.go
package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dev-mohitbeniwal/semble/service"
	"github.com/dev-mohitbeniwal/semble/util"
)

type ValidationController struct {
	validationService service.IValidationService
}

func NewValidationController(validationService service.IValidationService) *ValidationController {
	return &ValidationController{validationService: validationService}
}

// RegisterRoutes registers the API routes for payload validation
func (vc *ValidationController) RegisterRoutes(r *gin.RouterGroup) {
	validate := r.Group("/validate")
	{
		validate.POST("/:resource", vc.ValidateResourceData)
		validate.GET("/:resource/schema", vc.GetValidationSchema)
	}
}

// ValidateResourceData endpoint. The operation query parameter defaults to
// create. With strict=true an invalid payload answers 422 instead of a
// result with isValid false.
func (vc *ValidationController) ValidateResourceData(c *gin.Context) {
	var data map[string]any
	if err := c.ShouldBindJSON(&data); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid resource payload", err)
		return
	}
	resource := c.Param("resource")
	operation := c.DefaultQuery("operation", service.OperationCreate)

	if c.Query("strict") == "true" {
		normalized, err := vc.validationService.ValidateAndThrow(resource, operation, data)
		if err != nil {
			util.RespondWithServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, normalized)
		return
	}

	c.JSON(http.StatusOK, vc.validationService.ValidateResourceData(resource, operation, data))
}

// GetValidationSchema endpoint
func (vc *ValidationController) GetValidationSchema(c *gin.Context) {
	schema, ok := vc.validationService.GetValidationSchema(c.Param("resource"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No validation schema registered for " + c.Param("resource")})
		return
	}
	c.JSON(http.StatusOK, schema)
}
