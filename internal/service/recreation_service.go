package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	coorderrors "github.com/helixsearch/indexcoord/internal/errors"
	"github.com/helixsearch/indexcoord/internal/metrics"
	"github.com/helixsearch/indexcoord/internal/model"
	"github.com/helixsearch/indexcoord/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Recreation workflow phases, executed strictly in order
const (
	PhasePrepare  = "prepare"
	PhaseCreate   = "create"
	PhaseMigrate  = "migrate"
	PhaseVerify   = "verify"
	PhaseActivate = "activate"
	PhaseCleanup  = "cleanup"
)

// RecreateOptions tunes one recreation run
type RecreateOptions struct {
	// PreserveData copies a bounded sample of documents from the old
	// version into the new one
	PreserveData bool
	// SampleLimit bounds how many documents are migrated per partition
	SampleLimit int
}

// PhaseMetric records timing and outcome for one workflow phase
type PhaseMetric struct {
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
}

// RecreationResult reports the outcome of one recreation run
type RecreationResult struct {
	Success           bool                   `json:"success"`
	NewVersion        string                 `json:"new_version,omitempty"`
	OldVersion        string                 `json:"old_version,omitempty"`
	PartitionsCreated int                    `json:"partitions_created"`
	DataPreserved     bool                   `json:"data_preserved"`
	RollbackPerformed bool                   `json:"rollback_performed"`
	FailedPhase       string                 `json:"failed_phase,omitempty"`
	Code              string                 `json:"code,omitempty"`
	Message           string                 `json:"message,omitempty"`
	Phases            map[string]PhaseMetric `json:"phases"`
}

type inflightRecreation struct {
	done   chan struct{}
	result *RecreationResult
}

// RecreationService rebuilds a tenant's partition set under a new version
// token without an observable gap in availability. The new version becomes
// visible only at the activate cutover; any failure before that point rolls
// back and leaves the previous version authoritative.
type RecreationService struct {
	partitions    store.PartitionStore
	metadataStore store.MetadataStore
	lockManager   *LockManager
	versions      *VersionTracker
	metrics       *metrics.Metrics
	logger        *zap.Logger

	// Only one recreation may run per tenant; concurrent callers attach
	// to the in-flight run instead of starting a duplicate.
	mu                sync.Mutex
	activeRecreations map[string]*inflightRecreation
}

// NewRecreationService creates a new recreation service
func NewRecreationService(
	partitions store.PartitionStore,
	metadataStore store.MetadataStore,
	lockManager *LockManager,
	versions *VersionTracker,
	m *metrics.Metrics,
	logger *zap.Logger,
) *RecreationService {
	return &RecreationService{
		partitions:        partitions,
		metadataStore:     metadataStore,
		lockManager:       lockManager,
		versions:          versions,
		metrics:           m,
		logger:            logger,
		activeRecreations: make(map[string]*inflightRecreation),
	}
}

// RecreateNamespacesSafely is the single entry point for rebuilding a
// tenant's partitions. parentOwnerID must name a lock the caller already
// holds; the workflow's own recreation lock is nested under it.
func (s *RecreationService) RecreateNamespacesSafely(ctx context.Context, tenantID, parentOwnerID string, opts RecreateOptions) *RecreationResult {
	s.mu.Lock()
	if inflight, ok := s.activeRecreations[tenantID]; ok {
		s.mu.Unlock()
		s.logger.Info("Attaching to in-flight recreation",
			zap.String("tenant_id", tenantID))
		<-inflight.done
		return inflight.result
	}
	inflight := &inflightRecreation{done: make(chan struct{})}
	s.activeRecreations[tenantID] = inflight
	s.mu.Unlock()

	result := s.recreate(ctx, tenantID, parentOwnerID, opts)

	s.mu.Lock()
	inflight.result = result
	delete(s.activeRecreations, tenantID)
	s.mu.Unlock()
	close(inflight.done)

	if result.Success {
		s.metrics.RecreationsTotal.WithLabelValues("success").Inc()
	} else {
		s.metrics.RecreationsTotal.WithLabelValues("failed").Inc()
	}
	return result
}

func (s *RecreationService) recreate(ctx context.Context, tenantID, parentOwnerID string, opts RecreateOptions) *RecreationResult {
	if opts.SampleLimit <= 0 {
		opts.SampleLimit = 100
	}
	result := &RecreationResult{Phases: make(map[string]PhaseMetric)}
	start := time.Now()

	// Phase 1: prepare. No side effects on failure.
	newVersion := newVersionToken()
	result.NewVersion = newVersion

	var oldVersion string
	if current := s.versions.CurrentVersion(tenantID); current != nil {
		oldVersion = current.Version
		result.OldVersion = oldVersion
	}

	s.logger.Info("Starting partition recreation",
		zap.String("tenant_id", tenantID),
		zap.String("new_version", newVersion),
		zap.String("old_version", oldVersion),
		zap.Bool("preserve_data", opts.PreserveData))

	ownerID, err := s.prepare(ctx, tenantID, parentOwnerID, newVersion, result)
	if err != nil {
		code := coorderrors.CodePrepareFailed
		if coorderrors.IsCode(err, coorderrors.CodeNotFound) {
			code = coorderrors.CodeNotFound
		}
		return s.fail(result, PhasePrepare, code, err, false)
	}

	// Phase 2: create all partitions in parallel. Partial creations are
	// removed by rollback.
	if err := s.createPartitions(ctx, tenantID, newVersion, result); err != nil {
		s.rollback(ctx, tenantID, ownerID, newVersion, result)
		return s.fail(result, PhaseCreate, coorderrors.CodeCreateFailed, err, true)
	}

	// Phase 3: migrate a bounded sample from the old version. Per-type
	// failures are logged and skipped; partial preservation beats
	// blocking reconnection.
	if opts.PreserveData && oldVersion != "" {
		s.migrate(ctx, tenantID, oldVersion, newVersion, opts.SampleLimit, result)
	} else {
		result.Phases[PhaseMigrate] = PhaseMetric{Success: true}
	}

	// Phase 4: verify every partition answers before the new version is
	// declared authoritative. Not lenient.
	if err := s.verify(ctx, tenantID, newVersion, result); err != nil {
		s.rollback(ctx, tenantID, ownerID, newVersion, result)
		return s.fail(result, PhaseVerify, coorderrors.CodeVerifyFailed, err, true)
	}

	// Phase 5: activate. Releasing the recreation lock with the active
	// status is the sole atomic cutover step.
	if err := s.activate(tenantID, ownerID, oldVersion, result); err != nil {
		s.rollbackPartitions(ctx, tenantID, newVersion)
		s.versions.Remove(tenantID, newVersion)
		result.RollbackPerformed = true
		return s.fail(result, PhaseActivate, coorderrors.CodeConflict, err, true)
	}

	// Phase 6: cleanup the superseded version. Best effort; a dangling
	// partition is a resource leak to sweep later, not a correctness
	// problem.
	if oldVersion != "" {
		s.cleanup(ctx, tenantID, oldVersion, result)
	} else {
		result.Phases[PhaseCleanup] = PhaseMetric{Success: true}
	}

	result.Success = true
	s.logger.Info("Partition recreation completed",
		zap.String("tenant_id", tenantID),
		zap.String("new_version", newVersion),
		zap.String("old_version", oldVersion),
		zap.Int("partitions_created", result.PartitionsCreated),
		zap.Bool("data_preserved", result.DataPreserved),
		zap.Duration("total", time.Since(start)))
	return result
}

func (s *RecreationService) prepare(ctx context.Context, tenantID, parentOwnerID, newVersion string, result *RecreationResult) (string, error) {
	done := s.phaseTimer(PhasePrepare, result)

	tenant, err := s.metadataStore.GetTenant(ctx, tenantID)
	if err != nil {
		done(false)
		return "", tenantLookupError(tenantID, err)
	}
	if !tenant.Addressable() {
		done(false)
		return "", fmt.Errorf("tenant %s is not addressable (status %s)", tenantID, tenant.Status)
	}

	// Singleton lock: a second recreation attempt for the same tenant
	// fails fast instead of double-running.
	acquire := s.lockManager.Acquire(ctx, tenantID, model.PriorityPartitionRecreation, "partition_recreation", model.AcquireOptions{
		ParentOwnerID:    parentOwnerID,
		PartitionVersion: newVersion,
	})
	if !acquire.Success {
		done(false)
		return "", fmt.Errorf("recreation lock not granted: %s", acquire.Message)
	}

	s.versions.RecordCreating(tenantID, newVersion, acquire.OwnerID)
	done(true)
	return acquire.OwnerID, nil
}

func (s *RecreationService) createPartitions(ctx context.Context, tenantID, version string, result *RecreationResult) error {
	done := s.phaseTimer(PhaseCreate, result)

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	created := 0
	for _, ptype := range model.AllPartitionTypes() {
		ptype := ptype
		g.Go(func() error {
			if err := s.partitions.CreatePartition(gctx, tenantID, ptype, version); err != nil {
				return fmt.Errorf("create %s partition: %w", ptype, err)
			}
			mu.Lock()
			created++
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	result.PartitionsCreated = created
	done(err == nil)
	return err
}

func (s *RecreationService) migrate(ctx context.Context, tenantID, oldVersion, newVersion string, limit int, result *RecreationResult) {
	done := s.phaseTimer(PhaseMigrate, result)

	migrated := 0
	for _, ptype := range model.AllPartitionTypes() {
		docs, err := s.partitions.SampleDocuments(ctx, tenantID, ptype, oldVersion, limit)
		if err != nil {
			s.logger.Warn("Skipping migration for partition type",
				zap.String("tenant_id", tenantID),
				zap.String("type", string(ptype)),
				zap.Error(err))
			continue
		}
		if len(docs) == 0 {
			continue
		}
		if err := s.partitions.MigrateDocuments(ctx, tenantID, ptype, newVersion, docs); err != nil {
			s.logger.Warn("Failed to migrate documents for partition type",
				zap.String("tenant_id", tenantID),
				zap.String("type", string(ptype)),
				zap.Int("documents", len(docs)),
				zap.Error(err))
			continue
		}
		migrated++
	}

	result.DataPreserved = migrated > 0
	done(true)

	s.logger.Info("Migration phase finished",
		zap.String("tenant_id", tenantID),
		zap.Int("types_migrated", migrated))
}

func (s *RecreationService) verify(ctx context.Context, tenantID, version string, result *RecreationResult) error {
	done := s.phaseTimer(PhaseVerify, result)

	for _, ptype := range model.AllPartitionTypes() {
		exists, err := s.partitions.PartitionExists(ctx, tenantID, ptype, version)
		if err != nil {
			done(false)
			return fmt.Errorf("verify %s partition: %w", ptype, err)
		}
		if !exists {
			done(false)
			return fmt.Errorf("verify %s partition: missing after create", ptype)
		}
		if _, err := s.partitions.PartitionStats(ctx, tenantID, ptype, version); err != nil {
			done(false)
			return fmt.Errorf("verify %s partition stats: %w", ptype, err)
		}
	}
	done(true)
	return nil
}

func (s *RecreationService) activate(tenantID, ownerID, oldVersion string, result *RecreationResult) error {
	done := s.phaseTimer(PhaseActivate, result)

	release := s.lockManager.Release(tenantID, ownerID, model.ReleaseOptions{
		VersionStatus: model.VersionStatusActive,
	})
	if !release.Success {
		// The recreation lock was preempted by a higher-priority
		// operation; the run is cancelled, not failed midway.
		done(false)
		return fmt.Errorf("recreation preempted before activation: %s", release.Message)
	}

	if oldVersion != "" {
		s.versions.Deprecate(tenantID, oldVersion)
	}
	done(true)
	return nil
}

func (s *RecreationService) cleanup(ctx context.Context, tenantID, oldVersion string, result *RecreationResult) {
	done := s.phaseTimer(PhaseCleanup, result)

	for _, ptype := range model.AllPartitionTypes() {
		if err := s.partitions.DeletePartition(ctx, tenantID, ptype, oldVersion); err != nil {
			s.logger.Warn("Failed to delete superseded partition",
				zap.String("tenant_id", tenantID),
				zap.String("type", string(ptype)),
				zap.String("version", oldVersion),
				zap.Error(err))
		}
	}
	s.versions.Remove(tenantID, oldVersion)
	done(true)
}

// rollback deletes every partition already created for the new version and
// releases the recreation lock with the version marked deprecated, leaving
// the previous version (if any) authoritative.
func (s *RecreationService) rollback(ctx context.Context, tenantID, ownerID, newVersion string, result *RecreationResult) {
	s.logger.Warn("Rolling back partition recreation",
		zap.String("tenant_id", tenantID),
		zap.String("version", newVersion))

	s.rollbackPartitions(ctx, tenantID, newVersion)

	release := s.lockManager.Release(tenantID, ownerID, model.ReleaseOptions{
		VersionStatus: model.VersionStatusDeprecated,
	})
	if !release.Success {
		// Already preempted; nothing left to release.
		s.logger.Info("Recreation lock already gone during rollback",
			zap.String("tenant_id", tenantID),
			zap.String("owner_id", ownerID))
	}
	s.versions.Remove(tenantID, newVersion)
	result.RollbackPerformed = true
	s.metrics.RollbacksTotal.Inc()
}

func (s *RecreationService) rollbackPartitions(ctx context.Context, tenantID, version string) {
	for _, ptype := range model.AllPartitionTypes() {
		if err := s.partitions.DeletePartition(ctx, tenantID, ptype, version); err != nil {
			s.logger.Warn("Failed to delete partition during rollback",
				zap.String("tenant_id", tenantID),
				zap.String("type", string(ptype)),
				zap.String("version", version),
				zap.Error(err))
		}
	}
}

func (s *RecreationService) fail(result *RecreationResult, phase string, code coorderrors.Code, err error, rolledBack bool) *RecreationResult {
	result.FailedPhase = phase
	result.Code = string(code)
	// Rollback guarantees the prior version stays authoritative, so a
	// failed run never means data loss.
	result.Message = fmt.Sprintf("%v (previous data remains available)", err)

	s.logger.Error("Partition recreation failed",
		zap.String("phase", phase),
		zap.String("code", string(code)),
		zap.Bool("rollback_performed", rolledBack),
		zap.Error(err))
	return result
}

func (s *RecreationService) phaseTimer(phase string, result *RecreationResult) func(success bool) {
	start := time.Now()
	return func(success bool) {
		d := time.Since(start)
		result.Phases[phase] = PhaseMetric{Duration: d, Success: success}
		s.metrics.RecreationPhaseSeconds.WithLabelValues(phase).Observe(d.Seconds())
	}
}

// newVersionToken generates a unique, monotonically distinguishable version
// token: millisecond timestamp plus a random suffix.
func newVersionToken() string {
	return fmt.Sprintf("v%d-%s", time.Now().UnixMilli(), uuid.New().String()[:8])
}
