package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/dev-mohitbeniwal/semble/audit"
	"github.com/dev-mohitbeniwal/semble/config"
	"github.com/dev-mohitbeniwal/semble/controller"
	"github.com/dev-mohitbeniwal/semble/db"
	logger "github.com/dev-mohitbeniwal/semble/logging"
	"github.com/dev-mohitbeniwal/semble/metrics"
	"github.com/dev-mohitbeniwal/semble/middleware"
	"github.com/dev-mohitbeniwal/semble/router"
	"github.com/dev-mohitbeniwal/semble/service"
	"github.com/dev-mohitbeniwal/semble/util"
)

func main() {
	configPath := flag.String("config", "", "path to the config file (default config/config.yaml)")
	flag.Parse()

	// Initialize configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	// Initialize logger
	logger.InitLogger(cfg.Log.Dir, cfg.Log.Level)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis
	redisClient, err := db.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer db.CloseRedis(redisClient)

	// Initialize EventBus
	eventBus := util.NewEventBus()
	eventBus.Start(ctx)
	notifications := util.NewNotificationService()
	notifications.Attach(eventBus)
	defer notifications.Detach()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	deps := service.Dependencies{
		Config:   cfg,
		Metrics:  m,
		EventBus: eventBus,
	}
	if redisClient != nil {
		deps.Redis = redisClient
	}
	if cfg.Elasticsearch.Enabled {
		auditRepository, err := audit.NewElasticsearchRepository(cfg.Elasticsearch.URL, cfg.Elasticsearch.Index)
		if err != nil {
			logger.Fatal("Failed to initialize permission audit", zap.Error(err))
		}
		deps.Audit = audit.NewService(auditRepository, nil)
	}

	// Initialize services
	services, err := service.InitializeServices(deps)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}

	var provider service.CredentialProvider = service.EnvCredentialProvider{}
	if cfg.Credentials.APIToken != "" {
		provider = service.StaticCredentialProvider{Credentials: cfg.Credentials}
	}
	if creds, err := services.Connect(ctx, provider); err != nil {
		logger.Warn("Starting without Semble credentials", zap.Error(err))
	} else {
		logger.Info("Semble credentials loaded", zap.String("environment", string(creds.Environment)))
	}

	// Set up Gin
	gin.SetMode(cfg.Server.Mode)
	limiters := middleware.MemoryLimiters(cfg.Server.RateLimit)
	if redisClient != nil {
		limiters = middleware.RedisLimiters(redisClient, cfg.Server.RateLimit)
	}
	handler := router.SetupRouter(controller.InitializeControllers(services), cfg.Server, limiters, registry)

	// Set up the server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: handler,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := services.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down services", zap.Error(err))
	}
	eventBus.Wait()

	logger.Info("Server exiting")
}
