// service/services.go
package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/juju/clock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dev-mohitbeniwal/semble/audit"
	"github.com/dev-mohitbeniwal/semble/cache"
	"github.com/dev-mohitbeniwal/semble/config"
	logger "github.com/dev-mohitbeniwal/semble/logging"
	"github.com/dev-mohitbeniwal/semble/metrics"
	"github.com/dev-mohitbeniwal/semble/model"
	"github.com/dev-mohitbeniwal/semble/ratelimit"
	"github.com/dev-mohitbeniwal/semble/util"
)

// Dependencies are the process-level collaborators shared by the services.
// Only Config is required.
type Dependencies struct {
	Config     *config.Configuration
	Redis      redis.Cmdable
	Audit      audit.Service
	Metrics    *metrics.Metrics
	EventBus   *util.EventBus
	Clock      clock.Clock
	HTTPClient HTTPDoer
}

type Services struct {
	Query       ISembleQueryService
	Credentials ICredentialService
	Validation  IValidationService
	Discovery   IFieldDiscoveryService
	Permissions IPermissionCheckService
	Audit       audit.Service

	eventBus    *util.EventBus
	schemaCache *cache.SchemaCache
	fieldCache  *cache.CacheService[[]model.FieldMetadata]
	permCache   *cache.PermissionCache
	unsubscribe []func()
}

// InitializeServices wires the Semble services together. Changing the
// credentials of the query service drops every cached schema and
// permission set.
func InitializeServices(deps Dependencies) (*Services, error) {
	cfg := deps.Config
	clk := deps.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	bus := deps.EventBus
	if bus == nil {
		bus = util.NewEventBus()
	}

	cacheOpts := []cache.Option{cache.WithClock(clk), cache.WithMetrics(deps.Metrics)}
	fieldCfg := cfg.Cache
	fieldCfg.KeyPrefix = cache.FieldsKeyPrefix

	s := &Services{
		Audit:       deps.Audit,
		eventBus:    bus,
		schemaCache: cache.NewSchemaCache(cfg.Cache, cacheOpts...),
		fieldCache:  cache.New[[]model.FieldMetadata](fieldCfg, cacheOpts...),
		permCache:   cache.NewPermissionCache(cfg.Cache, cacheOpts...),
	}

	var limiter ratelimit.Limiter
	if deps.Redis != nil {
		limiter = ratelimit.NewRedisWindow(deps.Redis, "semble-api", cfg.Query.RateLimit, clk, deps.Metrics)
		logger.Info("Using shared Redis rate limit window")
	} else {
		limiter = ratelimit.NewSlidingWindow(cfg.Query.RateLimit, clk, deps.Metrics)
	}

	queryOpts := []QueryOption{
		WithLimiter(limiter),
		WithQueryClock(clk),
		WithQueryMetrics(deps.Metrics),
		WithEventBus(bus),
	}
	if deps.HTTPClient != nil {
		queryOpts = append(queryOpts, WithHTTPClient(deps.HTTPClient))
	}
	s.Query = NewSembleQueryService(cfg.Query, queryOpts...)

	validate := validator.New()
	s.Credentials = NewCredentialService(validate, clk)
	s.Validation = NewValidationService(validate, clk)

	discovery, err := NewFieldDiscoveryService(s.Query,
		WithSchemaCache(s.schemaCache),
		WithFieldCache(s.fieldCache),
		WithDiscoveryClock(clk),
		WithDiscoveryEventBus(bus),
	)
	if err != nil {
		return nil, err
	}
	s.Discovery = discovery

	permOpts := []PermissionOption{
		WithPermissionCache(s.permCache),
		WithPermissionMetrics(deps.Metrics),
		WithPermissionClock(clk),
	}
	if deps.Audit != nil {
		permOpts = append(permOpts, WithAudit(deps.Audit))
	}
	permissions, err := NewPermissionCheckService(s.Query, cfg.Permission, permOpts...)
	if err != nil {
		return nil, err
	}
	s.Permissions = permissions

	s.unsubscribe = append(s.unsubscribe,
		bus.Subscribe(util.EventCredentialsUpdated, s.onCredentialsUpdated))

	return s, nil
}

func (s *Services) onCredentialsUpdated(ctx context.Context, event util.Event) error {
	creds, _ := event.Payload.(*model.ExtendedCredentials)
	s.Discovery.ClearCache()
	s.InvalidatePermissions(ctx, "")
	if creds != nil {
		logger.Info("Semble credentials updated, caches cleared",
			zap.String("environment", string(creds.Environment)))
	} else {
		logger.Info("Semble credentials cleared, caches cleared")
	}
	return nil
}

// Connect loads credentials from provider and hands them to the query
// service.
func (s *Services) Connect(ctx context.Context, provider CredentialProvider) (*model.ExtendedCredentials, error) {
	creds, err := s.Credentials.GetCredentials(ctx, provider)
	if err != nil {
		return nil, err
	}
	s.Query.SetCredentials(creds)
	return creds, nil
}

// InvalidatePermissions drops cached permissions for userID ("" for all
// users) and announces it on the event bus.
func (s *Services) InvalidatePermissions(ctx context.Context, userID string) {
	s.Permissions.ClearCache(userID)
	s.eventBus.Publish(ctx, util.EventPermissionsInvalidated, userID)
}

// Shutdown stops background work and clears held credentials.
func (s *Services) Shutdown(ctx context.Context) error {
	for _, unsubscribe := range s.unsubscribe {
		unsubscribe()
	}
	s.unsubscribe = nil

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.schemaCache.Shutdown(gctx) })
	g.Go(func() error { return s.fieldCache.Shutdown(gctx) })
	g.Go(func() error { return s.permCache.Shutdown(gctx) })
	g.Go(func() error { return s.Query.Shutdown(gctx) })
	return g.Wait()
}

// StaticCredentialProvider serves credentials loaded from the configuration
// file.
type StaticCredentialProvider struct {
	Credentials model.Credentials
}

func (p StaticCredentialProvider) GetCredentials(ctx context.Context, name string) (*model.Credentials, error) {
	creds := p.Credentials
	return &creds, nil
}
