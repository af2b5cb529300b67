// config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	semble_errors "github.com/dev-mohitbeniwal/semble/errors"
	"github.com/dev-mohitbeniwal/semble/model"
)

// Configuration stores all the configurations
type Configuration struct {
	Server        ServerConfiguration         `mapstructure:"server"`
	Redis         RedisConfiguration          `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfiguration  `mapstructure:"elasticsearch"`
	Cache         model.CacheConfig           `mapstructure:"cache"`
	Query         model.QueryConfig           `mapstructure:"query"`
	Permission    model.PermissionCheckConfig `mapstructure:"permission"`
	Credentials   model.Credentials           `mapstructure:"credentials"`
	Log           LogConfiguration            `mapstructure:"log"`
}

// ServerConfiguration stores the port and other web server settings
type ServerConfiguration struct {
	Port            string                `mapstructure:"port" validate:"required,numeric"`
	Mode            string                `mapstructure:"mode" validate:"oneof=debug release test"`
	ShutdownTimeout time.Duration         `mapstructure:"shutdownTimeout" validate:"gte=0"`
	RateLimit       model.RateLimitConfig `mapstructure:"rateLimit"`

	// AuthSecret enables HS256 bearer authentication of API callers.
	AuthSecret string   `mapstructure:"authSecret"`
	AuthGroups []string `mapstructure:"authGroups"`
}

// RedisConfiguration stores data for Redis connection. When enabled the
// outbound rate limit window is shared through Redis.
type RedisConfiguration struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// ElasticsearchConfiguration stores data for the permission audit trail
type ElasticsearchConfiguration struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url" validate:"omitempty,url"`
	Index   string `mapstructure:"index"`
}

type LogConfiguration struct {
	Dir   string `mapstructure:"dir"`
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

func setDefaults(v *viper.Viper) {
	query := model.DefaultQueryConfig()
	cache := model.DefaultCacheConfig()
	perm := model.DefaultPermissionCheckConfig()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdownTimeout", "5s")
	v.SetDefault("server.rateLimit.maxRequests", 100)
	v.SetDefault("server.rateLimit.window", "1m")
	v.SetDefault("server.rateLimit.delay", "0s")
	v.SetDefault("server.authSecret", "")
	v.SetDefault("server.authGroups", []string{})

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("elasticsearch.enabled", false)
	v.SetDefault("elasticsearch.url", "http://localhost:9200")
	v.SetDefault("elasticsearch.index", "semble-permission-audit")

	v.SetDefault("cache.enabled", cache.Enabled)
	v.SetDefault("cache.defaultTTL", cache.DefaultTTL.String())
	v.SetDefault("cache.maxSize", cache.MaxSize)
	v.SetDefault("cache.autoRefreshInterval", "0s")
	v.SetDefault("cache.backgroundRefresh", false)
	v.SetDefault("cache.keyPrefix", "")

	v.SetDefault("query.baseURL", query.BaseURL)
	v.SetDefault("query.timeout", query.Timeout.String())
	v.SetDefault("query.retries.maxAttempts", query.Retries.MaxAttempts)
	v.SetDefault("query.retries.initialDelay", query.Retries.InitialDelay.String())
	v.SetDefault("query.retries.maxDelay", query.Retries.MaxDelay.String())
	v.SetDefault("query.retries.backoffMultiplier", query.Retries.BackoffMultiplier)
	v.SetDefault("query.retries.retryableErrors", query.Retries.RetryableErrors)
	v.SetDefault("query.rateLimit.maxRequests", query.RateLimit.MaxRequests)
	v.SetDefault("query.rateLimit.window", query.RateLimit.Window.String())
	v.SetDefault("query.rateLimit.delay", "0s")
	v.SetDefault("query.validateResponses", query.ValidateResponses)
	v.SetDefault("query.useCompression", false)
	v.SetDefault("query.userAgent", query.UserAgent)
	v.SetDefault("query.maxPages", query.MaxPages)

	v.SetDefault("permission.enabled", perm.Enabled)
	v.SetDefault("permission.cachePermissions", perm.CachePermissions)
	v.SetDefault("permission.cacheTTL", perm.CacheTTL.String())
	v.SetDefault("permission.strictMode", perm.StrictMode)
	v.SetDefault("permission.adminBypass", perm.AdminBypass)

	v.SetDefault("credentials.environment", string(model.EnvironmentProduction))
	v.SetDefault("credentials.apiToken", "")
	v.SetDefault("credentials.baseURL", "")
	v.SetDefault("credentials.productionConfirmed", false)

	v.SetDefault("log.dir", "")
	v.SetDefault("log.level", "info")
}

// Load reads path (or config/config.yaml when path is empty) and SEMBLE_*
// environment overrides, e.g. SEMBLE_QUERY_TIMEOUT for query.timeout. A
// missing default config file is not an error.
func Load(path string) (*Configuration, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("config")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SEMBLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, semble_errors.NewConfigError(semble_errors.CodeInvalidConfig,
				fmt.Sprintf("failed to read config: %v", err))
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, semble_errors.NewConfigError(semble_errors.CodeInvalidConfig,
			fmt.Sprintf("failed to decode config: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints and reports every violation.
func (c *Configuration) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return semble_errors.NewConfigError(semble_errors.CodeInvalidConfig, err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return semble_errors.NewConfigError(semble_errors.CodeInvalidConfig,
		"invalid configuration: "+strings.Join(msgs, "; ")).
		WithContext("violations", msgs)
}
