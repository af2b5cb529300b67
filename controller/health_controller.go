// controller/health_controller.go
package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dev-mohitbeniwal/semble/service"
)

type HealthController struct {
	queryService service.ISembleQueryService
}

func NewHealthController(queryService service.ISembleQueryService) *HealthController {
	return &HealthController{queryService: queryService}
}

func (hc *HealthController) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", hc.Health)
}

// Health reports liveness and whether Semble credentials are loaded.
func (hc *HealthController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"credentialsLoaded": hc.queryService.GetCredentials().HasAuth(),
	})
}
