// controller/credential_controller.go
package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dev-mohitbeniwal/semble/model"
	"github.com/dev-mohitbeniwal/semble/service"
	"github.com/dev-mohitbeniwal/semble/util"
)

type CredentialController struct {
	credentialService service.ICredentialService
	queryService      service.ISembleQueryService
}

func NewCredentialController(credentialService service.ICredentialService, queryService service.ISembleQueryService) *CredentialController {
	return &CredentialController{
		credentialService: credentialService,
		queryService:      queryService,
	}
}

// RegisterRoutes registers the API routes for Semble credentials
func (cc *CredentialController) RegisterRoutes(r *gin.RouterGroup) {
	credentials := r.Group("/credentials")
	{
		credentials.GET("", cc.GetStatus)
		credentials.POST("/validate", cc.ValidateCredentials)
		credentials.POST("/test", cc.TestConnection)
		credentials.GET("/environments/:environment", cc.GetEnvironmentDefaults)
	}
}

// GetStatus endpoint. Tokens are never echoed.
func (cc *CredentialController) GetStatus(c *gin.Context) {
	creds := cc.queryService.GetCredentials()
	if creds == nil {
		c.JSON(http.StatusOK, gin.H{"configured": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"configured":  creds.HasAuth(),
		"credentials": creds,
	})
}

// ValidateCredentials endpoint
func (cc *CredentialController) ValidateCredentials(c *gin.Context) {
	var creds model.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid credentials payload", err)
		return
	}
	c.JSON(http.StatusOK, cc.credentialService.ValidateCredentials(&creds))
}

// TestConnection endpoint
func (cc *CredentialController) TestConnection(c *gin.Context) {
	result := cc.credentialService.TestConnection(c.Request.Context(), cc.queryService.GetCredentials())
	status := http.StatusOK
	if !result.Success {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, result)
}

// GetEnvironmentDefaults endpoint
func (cc *CredentialController) GetEnvironmentDefaults(c *gin.Context) {
	env := model.Environment(c.Param("environment"))
	c.JSON(http.StatusOK, cc.credentialService.EnvironmentDefaults(env))
}
