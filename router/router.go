// router/router.go

package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dev-mohitbeniwal/semble/config"
	"github.com/dev-mohitbeniwal/semble/controller"
	"github.com/dev-mohitbeniwal/semble/middleware"
)

// SetupRouter mounts the controllers under /api/v1. /health and /metrics
// stay outside rate limiting and authentication.
func SetupRouter(
	controllers *controller.Controllers,
	serverCfg config.ServerConfiguration,
	limiters middleware.LimiterFor,
	gatherer prometheus.Gatherer,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	controllers.Health.RegisterRoutes(router)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/v1")
	if serverCfg.RateLimit.MaxRequests > 0 && limiters != nil {
		api.Use(middleware.RateLimiter(limiters, serverCfg.RateLimit))
	}
	if serverCfg.AuthSecret != "" {
		api.Use(middleware.GroupAuthMiddleware([]byte(serverCfg.AuthSecret), serverCfg.AuthGroups))
	}

	controllers.Query.RegisterRoutes(api)
	controllers.Schema.RegisterRoutes(api)
	controllers.Permission.RegisterRoutes(api)
	controllers.Validation.RegisterRoutes(api)
	controllers.Credentials.RegisterRoutes(api)

	return router
}
