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

// ReconnectResult reports the outcome of one tenant reconnection flow
type ReconnectResult struct {
	Success    bool               `json:"success"`
	Escalated  bool               `json:"escalated"`
	NewVersion string             `json:"new_version,omitempty"`
	Code       string             `json:"code,omitempty"`
	Message    string             `json:"message,omitempty"`
	Recreation *RecreationResult  `json:"recreation,omitempty"`
}

// ReconnectionService drives the tenant reconnection flow: take a
// reconnection lock (escalating over sync work if needed), rebuild the
// tenant's partition set under it, and release with cascade.
type ReconnectionService struct {
	metadataStore store.MetadataStore
	cache         store.Cache
	lockManager   *LockManager
	recreation    *RecreationService
	sampleLimit   int
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewReconnectionService creates a new reconnection service. sampleLimit
// bounds how many documents per partition the nested recreation migrates.
func NewReconnectionService(
	metadataStore store.MetadataStore,
	cache store.Cache,
	lockManager *LockManager,
	recreation *RecreationService,
	sampleLimit int,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ReconnectionService {
	return &ReconnectionService{
		metadataStore: metadataStore,
		cache:         cache,
		lockManager:   lockManager,
		recreation:    recreation,
		sampleLimit:   sampleLimit,
		metrics:       m,
		logger:        logger,
	}
}

// Reconnect re-establishes a tenant's index workspace. Sync locks in the way
// are preempted; a concurrent reconnection is rejected as a singleton
// conflict; a deletion in progress surfaces as "tenant is being removed".
func (s *ReconnectionService) Reconnect(ctx context.Context, tenantID string, preserveData bool) *ReconnectResult {
	s.logger.Info("Starting tenant reconnection",
		zap.String("tenant_id", tenantID),
		zap.Bool("preserve_data", preserveData))

	acquire := s.lockManager.Acquire(ctx, tenantID, model.PriorityReconnection, "tenant_reconnection", model.AcquireOptions{
		AllowEscalation: true,
	})
	if !acquire.Success {
		s.metrics.ReconnectionsTotal.WithLabelValues("blocked").Inc()
		msg := acquire.Message
		if blockedByDeletion(acquire.BlockedBy) {
			msg = "tenant is being removed; reconnection is not possible"
		}
		s.logger.Warn("Reconnection could not acquire its lock",
			zap.String("tenant_id", tenantID),
			zap.String("code", acquire.Code),
			zap.String("message", msg))
		return &ReconnectResult{Code: acquire.Code, Message: msg}
	}

	if acquire.Escalated {
		s.logger.Info("Reconnection escalated over lower-priority work",
			zap.String("tenant_id", tenantID),
			zap.Bool("escalated", true))
	}

	defer func() {
		release := s.lockManager.Release(tenantID, acquire.OwnerID, model.ReleaseOptions{
			CascadeRelease: true,
		})
		if !release.Success {
			// NotFound here means a deletion preempted the
			// reconnection mid-flight; already cancelled.
			s.logger.Info("Reconnection lock already released",
				zap.String("tenant_id", tenantID),
				zap.String("owner_id", acquire.OwnerID))
		}
	}()

	tenant, err := s.metadataStore.GetTenant(ctx, tenantID)
	if err != nil {
		lookupErr := tenantLookupError(tenantID, err)
		s.metrics.ReconnectionsTotal.WithLabelValues("failed").Inc()
		return &ReconnectResult{
			Escalated: acquire.Escalated,
			Code:      string(coorderrors.GetCode(lookupErr)),
			Message:   lookupErr.Error(),
		}
	}
	if tenant.Status == model.TenantStatusDeleting {
		s.metrics.ReconnectionsTotal.WithLabelValues("blocked").Inc()
		return &ReconnectResult{
			Escalated: acquire.Escalated,
			Code:      string(coorderrors.CodeConflict),
			Message:   "tenant is being removed; reconnection is not possible",
		}
	}

	recreation := s.recreation.RecreateNamespacesSafely(ctx, tenantID, acquire.OwnerID, RecreateOptions{
		PreserveData: preserveData,
		SampleLimit:  s.sampleLimit,
	})
	if !recreation.Success {
		s.metrics.ReconnectionsTotal.WithLabelValues("failed").Inc()
		return &ReconnectResult{
			Escalated:  acquire.Escalated,
			Code:       recreation.Code,
			Message:    recreation.Message,
			Recreation: recreation,
		}
	}

	if err := s.metadataStore.UpdateTenantStatus(ctx, tenantID, model.TenantStatusActive); err != nil {
		s.logger.Warn("Failed to mark tenant active after reconnection",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}
	if err := s.cache.Delete(ctx, store.TenantCacheKey(tenantID)); err != nil {
		s.logger.Warn("Failed to invalidate tenant cache",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}

	s.metrics.ReconnectionsTotal.WithLabelValues("success").Inc()
	s.logger.Info("Tenant reconnection completed",
		zap.String("tenant_id", tenantID),
		zap.String("new_version", recreation.NewVersion),
		zap.Bool("escalated", acquire.Escalated))

	return &ReconnectResult{
		Success:    true,
		Escalated:  acquire.Escalated,
		NewVersion: recreation.NewVersion,
		Recreation: recreation,
	}
}

func blockedByDeletion(blocking []model.LockInfo) bool {
	for _, l := range blocking {
		if l.Priority == model.PriorityDeletion {
			return true
		}
	}
	return false
}

// tenantLookupError classifies a metadata read failure: a missing row means
// the tenant was never registered, anything else is a store fault
func tenantLookupError(tenantID string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return coorderrors.New(coorderrors.CodeNotFound,
			fmt.Sprintf("tenant %s is not registered", tenantID), err)
	}
	return coorderrors.New(coorderrors.CodeInternal, "tenant lookup failed", err)
}
