package service

import (
	"context"
	"errors"
	"fmt"

	coorderrors "github.com/helixsearch/indexcoord/internal/errors"
	"github.com/helixsearch/indexcoord/internal/metrics"
	"github.com/helixsearch/indexcoord/internal/model"
	"github.com/helixsearch/indexcoord/internal/store"
	"go.uber.org/zap"
)

// DeleteResult reports the outcome of one tenant deletion flow
type DeleteResult struct {
	Success           bool   `json:"success"`
	Escalated         bool   `json:"escalated"`
	PartitionsDeleted int    `json:"partitions_deleted"`
	Code              string `json:"code,omitempty"`
	Message           string `json:"message,omitempty"`
}

// DeletionService removes a tenant's index workspace: every partition of
// every known version, the version records, and the tenant metadata.
// Deletion holds the highest priority class and always escalates over
// anything else running for the tenant.
type DeletionService struct {
	partitions    store.PartitionStore
	metadataStore store.MetadataStore
	cache         store.Cache
	lockManager   *LockManager
	versions      *VersionTracker
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewDeletionService creates a new deletion service
func NewDeletionService(
	partitions store.PartitionStore,
	metadataStore store.MetadataStore,
	cache store.Cache,
	lockManager *LockManager,
	versions *VersionTracker,
	m *metrics.Metrics,
	logger *zap.Logger,
) *DeletionService {
	return &DeletionService{
		partitions:    partitions,
		metadataStore: metadataStore,
		cache:         cache,
		lockManager:   lockManager,
		versions:      versions,
		metrics:       m,
		logger:        logger,
	}
}

// Delete removes the tenant and all its partitions
func (s *DeletionService) Delete(ctx context.Context, tenantID string) *DeleteResult {
	s.logger.Info("Starting tenant deletion", zap.String("tenant_id", tenantID))

	acquire := s.lockManager.Acquire(ctx, tenantID, model.PriorityDeletion, "tenant_deletion", model.AcquireOptions{})
	if !acquire.Success {
		s.metrics.DeletionsTotal.WithLabelValues("blocked").Inc()
		return &DeleteResult{Code: acquire.Code, Message: acquire.Message}
	}

	defer func() {
		release := s.lockManager.Release(tenantID, acquire.OwnerID, model.ReleaseOptions{
			CascadeRelease: true,
		})
		if !release.Success {
			s.logger.Info("Deletion lock already released",
				zap.String("tenant_id", tenantID),
				zap.String("owner_id", acquire.OwnerID))
		}
	}()

	if err := s.metadataStore.UpdateTenantStatus(ctx, tenantID, model.TenantStatusDeleting); err != nil {
		s.logger.Warn("Failed to mark tenant deleting",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}

	// Remove partitions for every version the tracker knows about.
	// Per-partition failures are logged, not fatal; a leaked partition is
	// swept later.
	deleted := 0
	for _, rec := range s.versions.Versions(tenantID) {
		for _, ptype := range model.AllPartitionTypes() {
			if err := s.partitions.DeletePartition(ctx, tenantID, ptype, rec.Version); err != nil {
				s.logger.Warn("Failed to delete partition",
					zap.String("tenant_id", tenantID),
					zap.String("type", string(ptype)),
					zap.String("version", rec.Version),
					zap.Error(err))
				continue
			}
			deleted++
		}
	}
	s.versions.Clear(tenantID)

	// A missing metadata row means a previous deletion got this far; the
	// flow stays idempotent.
	if err := s.metadataStore.DeleteTenant(ctx, tenantID); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.metrics.DeletionsTotal.WithLabelValues("failed").Inc()
		return &DeleteResult{
			Escalated:         acquire.Escalated,
			PartitionsDeleted: deleted,
			Code:              string(coorderrors.CodeInternal),
			Message:           fmt.Sprintf("failed to delete tenant metadata: %v", err),
		}
	}
	if err := s.cache.Delete(ctx, store.TenantCacheKey(tenantID)); err != nil {
		s.logger.Warn("Failed to invalidate tenant cache",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}

	s.metrics.DeletionsTotal.WithLabelValues("success").Inc()
	s.logger.Info("Tenant deletion completed",
		zap.String("tenant_id", tenantID),
		zap.Int("partitions_deleted", deleted),
		zap.Bool("escalated", acquire.Escalated))

	return &DeleteResult{
		Success:           true,
		Escalated:         acquire.Escalated,
		PartitionsDeleted: deleted,
	}
}
