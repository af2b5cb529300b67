// cache/typed.go
package cache

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/dev-mohitbeniwal/semble/model"
)

// Key prefixes separating the logical caches of one process.
const (
	SchemaKeyPrefix     = "schema:"
	PermissionKeyPrefix = "permissions:"
	FieldsKeyPrefix     = "fields:"
)

// SchemaCache stores introspection results under the "schema:" prefix.
type SchemaCache struct {
	*CacheService[*model.IntrospectionResult]
}

func NewSchemaCache(cfg model.CacheConfig, opts ...Option) *SchemaCache {
	cfg.KeyPrefix = SchemaKeyPrefix
	return &SchemaCache{CacheService: New[*model.IntrospectionResult](cfg, opts...)}
}

func (s *SchemaCache) CacheSchema(ctx context.Context, key string, result *model.IntrospectionResult, ttl time.Duration) error {
	return s.Set(ctx, key, result, ttl)
}

func (s *SchemaCache) GetSchema(ctx context.Context, key string) (*model.IntrospectionResult, bool, error) {
	return s.Get(ctx, key)
}

// PermissionCache stores ResourcePermissions per resource and user under the
// "permissions:" prefix.
type PermissionCache struct {
	*CacheService[*model.ResourcePermissions]
}

func NewPermissionCache(cfg model.CacheConfig, opts ...Option) *PermissionCache {
	cfg.KeyPrefix = PermissionKeyPrefix
	return &PermissionCache{CacheService: New[*model.ResourcePermissions](cfg, opts...)}
}

// PermissionKey returns the key used for resource and userID. Both parts are
// query-escaped so distinct pairs never share a key and neither part can
// contain the ":" separator. An empty userID (the calling user) yields a key
// ending in ":".
func PermissionKey(resource, userID string) string {
	return url.QueryEscape(resource) + ":" + url.QueryEscape(userID)
}

func (p *PermissionCache) CachePermissions(ctx context.Context, resource, userID string, perms *model.ResourcePermissions, ttl time.Duration) error {
	return p.Set(ctx, PermissionKey(resource, userID), perms, ttl)
}

func (p *PermissionCache) GetPermissions(ctx context.Context, resource, userID string) (*model.ResourcePermissions, bool, error) {
	return p.Get(ctx, PermissionKey(resource, userID))
}

// InvalidateUser removes every resource entry of userID and returns how many
// were removed.
func (p *PermissionCache) InvalidateUser(userID string) int {
	want := url.QueryEscape(userID)
	removed := 0
	for _, key := range p.Keys() {
		_, user, ok := strings.Cut(key, ":")
		if ok && user == want && p.Delete(key) {
			removed++
		}
	}
	return removed
}
