package store

import (
	"context"
	"fmt"
	"time"

	"github.com/helixsearch/indexcoord/internal/model"
	"go.uber.org/zap"
)

// TenantCacheKey is the cache key under which a tenant's metadata record is
// stored. Services that mutate tenant state invalidate this key.
func TenantCacheKey(tenantID string) string {
	return fmt.Sprintf("tenant:config:%s", tenantID)
}

// CachedMetadataStore fronts a MetadataStore with the TTL cache for tenant
// reads. Writes go straight through and invalidate the cached record, so a
// read never observes a status older than the last write through this store.
type CachedMetadataStore struct {
	inner  MetadataStore
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedMetadataStore wraps inner so GetTenant reads are served from the
// cache for up to ttl
func NewCachedMetadataStore(inner MetadataStore, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedMetadataStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedMetadataStore{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// GetTenant returns the cached tenant record, falling back to the underlying
// store and populating the cache on a miss
func (s *CachedMetadataStore) GetTenant(ctx context.Context, tenantID string) (*model.Tenant, error) {
	key := TenantCacheKey(tenantID)
	if cached, err := s.cache.Get(ctx, key); err == nil {
		if tenant, ok := cached.(*model.Tenant); ok {
			copied := *tenant
			return &copied, nil
		}
	}

	tenant, err := s.inner.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	copied := *tenant
	if err := s.cache.Set(ctx, key, &copied, s.ttl); err != nil {
		s.logger.Warn("Failed to cache tenant record",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}
	return tenant, nil
}

// CreateTenant writes through to the underlying store
func (s *CachedMetadataStore) CreateTenant(ctx context.Context, tenant *model.Tenant) error {
	return s.inner.CreateTenant(ctx, tenant)
}

// UpdateTenantStatus writes through and invalidates the cached record
func (s *CachedMetadataStore) UpdateTenantStatus(ctx context.Context, tenantID string, status model.TenantStatus) error {
	if err := s.inner.UpdateTenantStatus(ctx, tenantID, status); err != nil {
		return err
	}
	s.invalidate(ctx, tenantID)
	return nil
}

// DeleteTenant writes through and invalidates the cached record
func (s *CachedMetadataStore) DeleteTenant(ctx context.Context, tenantID string) error {
	if err := s.inner.DeleteTenant(ctx, tenantID); err != nil {
		return err
	}
	s.invalidate(ctx, tenantID)
	return nil
}

// ListTenants is not cached; the background scheduler calls it on a slow
// interval and needs the full current set
func (s *CachedMetadataStore) ListTenants(ctx context.Context) ([]*model.Tenant, error) {
	return s.inner.ListTenants(ctx)
}

// Ping reports the health of the underlying store
func (s *CachedMetadataStore) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

// Close closes the underlying store
func (s *CachedMetadataStore) Close() {
	s.inner.Close()
}

func (s *CachedMetadataStore) invalidate(ctx context.Context, tenantID string) {
	if err := s.cache.Delete(ctx, TenantCacheKey(tenantID)); err != nil {
		s.logger.Warn("Failed to invalidate cached tenant record",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}
}
