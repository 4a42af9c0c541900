package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/helixsearch/indexcoord/internal/metrics"
	"github.com/helixsearch/indexcoord/internal/model"
	"github.com/helixsearch/indexcoord/internal/store"
	"github.com/helixsearch/indexcoord/internal/util/workerpool"
	"go.uber.org/zap"
)

// SyncResult reports the outcome of one sync run
type SyncResult struct {
	Success            bool   `json:"success"`
	Queued             bool   `json:"queued"`
	PartitionsTouched  int    `json:"partitions_touched"`
	Code               string `json:"code,omitempty"`
	Message            string `json:"message,omitempty"`
}

// SyncService refreshes tenant partitions under sync locks. Manual runs use
// the manual-sync class; the background scheduler fans runs out over a
// bounded worker pool under the background-sync class. Both queue behind a
// blocking operation instead of failing outright.
type SyncService struct {
	partitions    store.PartitionStore
	metadataStore store.MetadataStore
	lockManager   *LockManager
	versions      *VersionTracker
	pool          *workerpool.Pool
	interval      time.Duration
	metrics       *metrics.Metrics
	logger        *zap.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSyncService creates a new sync service. Call Start to begin the
// background scheduling loop.
func NewSyncService(
	partitions store.PartitionStore,
	metadataStore store.MetadataStore,
	lockManager *LockManager,
	versions *VersionTracker,
	pool *workerpool.Pool,
	interval time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *SyncService {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &SyncService{
		partitions:    partitions,
		metadataStore: metadataStore,
		lockManager:   lockManager,
		versions:      versions,
		pool:          pool,
		interval:      interval,
		metrics:       m,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the background sync scheduler
func (s *SyncService) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info("Sync scheduler started", zap.Duration("interval", s.interval))
}

// Stop cancels the scheduler and waits for it to exit
func (s *SyncService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
	s.logger.Info("Sync scheduler stopped")
}

func (s *SyncService) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.scheduleAll()
		case <-s.stopCh:
			return
		}
	}
}

// scheduleAll submits a background sync task for every active tenant
func (s *SyncService) scheduleAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	tenants, err := s.metadataStore.ListTenants(ctx)
	cancel()
	if err != nil {
		s.logger.Error("Failed to list tenants for background sync", zap.Error(err))
		return
	}

	for _, tenant := range tenants {
		if tenant.Status != model.TenantStatusActive {
			continue
		}
		tenantID := tenant.TenantID
		accepted := s.pool.TrySubmit(workerpool.Task{
			ID: fmt.Sprintf("background-sync-%s", tenantID),
			Fn: func(taskCtx context.Context) error {
				res := s.RunBackgroundSync(taskCtx, tenantID)
				if !res.Success {
					return fmt.Errorf("background sync for %s: %s", tenantID, res.Message)
				}
				return nil
			},
		})
		if !accepted {
			s.logger.Warn("Sync pool rejected task",
				zap.String("tenant_id", tenantID))
		}
	}
}

// RunManualSync refreshes a tenant on user request
func (s *SyncService) RunManualSync(ctx context.Context, tenantID string) *SyncResult {
	return s.runSync(ctx, tenantID, model.PriorityManualSync, "manual_sync")
}

// RunBackgroundSync refreshes a tenant on the scheduler's behalf
func (s *SyncService) RunBackgroundSync(ctx context.Context, tenantID string) *SyncResult {
	return s.runSync(ctx, tenantID, model.PriorityBackgroundSync, "background_sync")
}

func (s *SyncService) runSync(ctx context.Context, tenantID string, priority model.PriorityClass, kind string) *SyncResult {
	acquire := s.lockManager.Acquire(ctx, tenantID, priority, kind, model.AcquireOptions{
		QueueIfBlocked: true,
	})
	if !acquire.Success {
		s.metrics.SyncRunsTotal.WithLabelValues(kind, "blocked").Inc()
		return &SyncResult{Queued: acquire.Queued, Code: acquire.Code, Message: acquire.Message}
	}

	defer func() {
		release := s.lockManager.Release(tenantID, acquire.OwnerID, model.ReleaseOptions{})
		if !release.Success {
			// Preempted by reconnection or deletion; already
			// cancelled, not an error.
			s.logger.Info("Sync lock already released",
				zap.String("tenant_id", tenantID),
				zap.String("kind", kind))
		}
	}()

	current := s.versions.CurrentVersion(tenantID)
	if current == nil {
		s.metrics.SyncRunsTotal.WithLabelValues(kind, "skipped").Inc()
		return &SyncResult{
			Success: true,
			Message: "tenant has no live partition set; nothing to sync",
		}
	}

	touched := 0
	for _, ptype := range model.AllPartitionTypes() {
		// The live version may have been superseded while we waited in
		// queue; writes against a stale version are meaningless.
		if !s.versions.IsActive(tenantID, current.Version) {
			break
		}
		marker := &model.Document{
			ID:      fmt.Sprintf("sync-marker-%s", uuid.New().String()[:8]),
			Content: fmt.Sprintf("%s refresh at %s", kind, time.Now().UTC().Format(time.RFC3339)),
			Metadata: map[string]string{
				"kind": kind,
			},
		}
		if err := s.partitions.UpsertDocument(ctx, tenantID, ptype, current.Version, marker); err != nil {
			s.logger.Warn("Failed to refresh partition",
				zap.String("tenant_id", tenantID),
				zap.String("type", string(ptype)),
				zap.String("version", current.Version),
				zap.Error(err))
			continue
		}
		touched++
	}

	s.metrics.SyncRunsTotal.WithLabelValues(kind, "success").Inc()
	s.logger.Debug("Sync run completed",
		zap.String("tenant_id", tenantID),
		zap.String("kind", kind),
		zap.Int("partitions_touched", touched))

	return &SyncResult{Success: true, PartitionsTouched: touched}
}
