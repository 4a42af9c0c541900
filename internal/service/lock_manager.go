package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	coorderrors "github.com/helixsearch/indexcoord/internal/errors"
	"github.com/helixsearch/indexcoord/internal/metrics"
	"github.com/helixsearch/indexcoord/internal/model"
	"github.com/helixsearch/indexcoord/internal/registry"
	"go.uber.org/zap"
)

// LockManager orchestrates acquire/release/escalate/queue/cleanup over the
// lock registry. It owns a background goroutine that sweeps expired locks
// and re-drives the per-tenant queues on a fixed tick, so abandoned locks
// are reclaimed even when no acquire or release calls occur.
type LockManager struct {
	registry *registry.Registry
	versions *VersionTracker
	metrics  *metrics.Metrics
	logger   *zap.Logger

	queueCapacity int
	tickInterval  time.Duration

	// now is injected for testability; defaults to time.Now
	now func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewLockManager creates a lock manager over the given registry and version
// tracker. Call Start to begin the background sweep/queue tick.
func NewLockManager(
	reg *registry.Registry,
	versions *VersionTracker,
	queueCapacity int,
	tickInterval time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *LockManager {
	if queueCapacity <= 0 {
		queueCapacity = 10
	}
	if tickInterval <= 0 {
		tickInterval = time.Second
	}

	return &LockManager{
		registry:      reg,
		versions:      versions,
		metrics:       m,
		logger:        logger,
		queueCapacity: queueCapacity,
		tickInterval:  tickInterval,
		now:           time.Now,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the background sweep and queue-processing goroutine
func (m *LockManager) Start() {
	m.wg.Add(1)
	go m.run()

	m.logger.Info("Lock manager started",
		zap.Int("queue_capacity", m.queueCapacity),
		zap.Duration("tick_interval", m.tickInterval))
}

// Stop cancels the background goroutine and waits for it to exit
func (m *LockManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
	m.logger.Info("Lock manager stopped")
}

func (m *LockManager) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.tick()
		case <-m.stopCh:
			return
		}
	}
}

// tick sweeps expired locks and re-drives queues for every tenant
func (m *LockManager) tick() {
	for _, tenantID := range m.registry.TenantIDs() {
		ts := m.registry.Peek(tenantID)
		if ts == nil {
			continue
		}
		ts.Lock()
		m.purgeExpiredLocked(tenantID, ts)
		m.drainQueueLocked(tenantID, ts)
		ts.Unlock()
		m.registry.RemoveIfEmpty(tenantID)
	}
}

// Acquire attempts to take a lock of the given priority class for a tenant.
// Conflicts, queue overflow and escalation failure are reported in the
// result, never as panics or error returns. When QueueIfBlocked is set and
// the conflict is queueable, the call suspends until a later release or the
// periodic tick grants the request, or ctx is done.
func (m *LockManager) Acquire(ctx context.Context, tenantID string, priority model.PriorityClass, operationName string, opts model.AcquireOptions) *model.AcquireResult {
	if tenantID == "" {
		return acquireFailure(coorderrors.InvalidRequest("tenant id is required"))
	}
	if !priority.Valid() {
		return acquireFailure(coorderrors.InvalidRequest("unrecognized priority class"))
	}

	ts := m.registry.Tenant(tenantID)
	ts.Lock()

	m.purgeExpiredLocked(tenantID, ts)

	analysis := registry.Analyze(ts.Locks(), priority, opts.ParentOwnerID, m.now())
	if !analysis.Conflict {
		lock := m.insertLockLocked(ts, tenantID, priority, operationName, opts)
		ts.Unlock()
		m.metrics.AcquiresTotal.WithLabelValues(priority.String(), "granted").Inc()
		return &model.AcquireResult{Success: true, OwnerID: lock.OwnerID}
	}

	// Escalation is reserved for the two highest classes: deletion always
	// attempts it, reconnection only when the caller opted in. Equal or
	// higher-priority blockers are never preempted, so a second
	// reconnection still reports a singleton conflict instead of
	// attempting a pointless escalation.
	canEscalate := priority == model.PriorityDeletion ||
		(priority == model.PriorityReconnection && opts.AllowEscalation)
	if canEscalate && analysis.Escalatable(priority) {
		if lock, ok := m.escalateLocked(ts, tenantID, priority, operationName, opts); ok {
			ts.Unlock()
			m.metrics.AcquiresTotal.WithLabelValues(priority.String(), "escalated").Inc()
			m.metrics.EscalationsTotal.WithLabelValues(priority.String()).Inc()
			m.logger.Warn("Lock granted after escalation",
				zap.String("tenant_id", tenantID),
				zap.String("priority", priority.String()),
				zap.String("owner_id", lock.OwnerID),
				zap.Bool("escalated", true))
			return &model.AcquireResult{Success: true, OwnerID: lock.OwnerID, Escalated: true}
		}
		ts.Unlock()
		m.metrics.AcquiresTotal.WithLabelValues(priority.String(), "escalation_failed").Inc()
		res := acquireFailure(coorderrors.EscalationFailed(tenantID))
		res.BlockedBy = snapshots(analysis.Blocking)
		return res
	}

	if opts.QueueIfBlocked && analysis.Queueable {
		op := &model.QueuedOperation{
			OperationID:   uuid.New().String(),
			TenantID:      tenantID,
			Priority:      priority,
			OperationName: operationName,
			EnqueuedAt:    m.now(),
			Options:       opts,
			Result:        make(chan *model.AcquireResult, 1),
		}
		if !ts.Enqueue(op, m.queueCapacity) {
			ts.Unlock()
			m.metrics.QueueRejections.Inc()
			m.metrics.AcquiresTotal.WithLabelValues(priority.String(), "queue_full").Inc()
			return acquireFailure(coorderrors.QueueFull(tenantID, m.queueCapacity))
		}
		ts.Unlock()
		m.metrics.QueueDepth.Inc()
		m.metrics.AcquiresTotal.WithLabelValues(priority.String(), "queued").Inc()

		m.logger.Debug("Lock request queued",
			zap.String("tenant_id", tenantID),
			zap.String("priority", priority.String()),
			zap.String("operation", operationName),
			zap.String("operation_id", op.OperationID))

		select {
		case res := <-op.Result:
			return res
		case <-ctx.Done():
			// The entry stays queued; if it is granted later the lock
			// is reclaimed by the expiry sweep.
			ce := coorderrors.New(coorderrors.CodeConflict, "abandoned while queued", ctx.Err())
			return &model.AcquireResult{
				Code:    string(ce.Code),
				Message: ce.Error(),
				Queued:  true,
			}
		}
	}

	blocked := snapshots(analysis.Blocking)
	ts.Unlock()

	ce := coorderrors.Conflict(tenantID, analysis.Blocking[0].Priority.String())
	if priority.IsSingleton() && !analysis.Queueable {
		ce = coorderrors.SingletonConflict(tenantID, priority.String())
	}
	m.metrics.AcquiresTotal.WithLabelValues(priority.String(), "conflict").Inc()
	res := acquireFailure(ce)
	res.BlockedBy = blocked
	return res
}

// Release removes a held lock by owner id. Releasing an unknown owner id
// reports NotFound; callers treat that as an idempotent no-op. A successful
// release re-drives the tenant's queue.
func (m *LockManager) Release(tenantID, ownerID string, opts model.ReleaseOptions) *model.ReleaseResult {
	if tenantID == "" || ownerID == "" {
		return releaseFailure(coorderrors.InvalidRequest("tenant id and owner id are required"))
	}

	ts := m.registry.Peek(tenantID)
	if ts == nil {
		m.metrics.ReleasesTotal.WithLabelValues("not_found").Inc()
		return releaseFailure(coorderrors.NotFound(tenantID, ownerID))
	}

	ts.Lock()
	lock := m.removeLockLocked(ts, ownerID)
	if lock == nil {
		ts.Unlock()
		m.metrics.ReleasesTotal.WithLabelValues("not_found").Inc()
		return releaseFailure(coorderrors.NotFound(tenantID, ownerID))
	}

	released := []string{ownerID}
	if opts.CascadeRelease {
		for _, child := range ts.Children(ownerID) {
			m.removeLockLocked(ts, child.OwnerID)
			released = append(released, child.OwnerID)
		}
	}

	// The version cutover must land before the queue is re-driven: a waiter
	// granted by this release may read the current version immediately, and
	// must observe the post-release state.
	if lock.PartitionVersion != "" {
		switch opts.VersionStatus {
		case model.VersionStatusActive:
			m.versions.Activate(tenantID, lock.PartitionVersion)
		case model.VersionStatusDeprecated:
			m.versions.Deprecate(tenantID, lock.PartitionVersion)
		}
	}

	m.drainQueueLocked(tenantID, ts)
	ts.Unlock()

	m.registry.RemoveIfEmpty(tenantID)
	m.metrics.ReleasesTotal.WithLabelValues("released").Inc()

	m.logger.Debug("Lock released",
		zap.String("tenant_id", tenantID),
		zap.String("owner_id", ownerID),
		zap.String("priority", lock.Priority.String()),
		zap.Strings("released_owner_ids", released))

	return &model.ReleaseResult{Success: true, ReleasedOwnerIDs: released}
}

// escalateLocked forcibly releases every lock with strictly lower priority
// than the requester, cascading, then retries acquisition once with
// escalation disabled. Preempted callers are not signalled; they discover
// the preemption when their own release reports NotFound. Caller holds the
// tenant mutex.
func (m *LockManager) escalateLocked(ts *registry.TenantState, tenantID string, priority model.PriorityClass, operationName string, opts model.AcquireOptions) (*model.Lock, bool) {
	for _, held := range ts.Locks() {
		if held.Priority >= priority {
			continue
		}
		m.forceReleaseLocked(ts, tenantID, held)
	}

	analysis := registry.Analyze(ts.Locks(), priority, opts.ParentOwnerID, m.now())
	if analysis.Conflict {
		return nil, false
	}
	return m.insertLockLocked(ts, tenantID, priority, operationName, opts), true
}

// forceReleaseLocked preempts a held lock and its children as if their
// owners had released them. A preempted recreation's version record is
// deprecated so it never lingers in the creating state.
func (m *LockManager) forceReleaseLocked(ts *registry.TenantState, tenantID string, lock *model.Lock) {
	children := ts.Children(lock.OwnerID)
	m.removeLockLocked(ts, lock.OwnerID)
	preempted := append([]*model.Lock{lock}, children...)
	for _, child := range children {
		m.removeLockLocked(ts, child.OwnerID)
	}

	for _, p := range preempted {
		if p.PartitionVersion != "" {
			m.versions.Deprecate(tenantID, p.PartitionVersion)
		}
		m.logger.Warn("Lock preempted by escalation",
			zap.String("tenant_id", tenantID),
			zap.String("owner_id", p.OwnerID),
			zap.String("priority", p.Priority.String()),
			zap.String("operation", p.OperationName))
	}
}

// drainQueueLocked re-runs conflict analysis for every queued entry in
// descending priority order and grants the ones that no longer conflict.
// Caller holds the tenant mutex.
func (m *LockManager) drainQueueLocked(tenantID string, ts *registry.TenantState) {
	for _, op := range ts.Queue() {
		analysis := registry.Analyze(ts.Locks(), op.Priority, op.Options.ParentOwnerID, m.now())
		if analysis.Conflict {
			continue
		}

		lock := m.insertLockLocked(ts, tenantID, op.Priority, op.OperationName, op.Options)
		ts.RemoveQueued(op.OperationID)
		m.metrics.QueueDepth.Dec()
		m.metrics.AcquiresTotal.WithLabelValues(op.Priority.String(), "granted_from_queue").Inc()

		m.logger.Debug("Queued lock granted",
			zap.String("tenant_id", tenantID),
			zap.String("operation_id", op.OperationID),
			zap.String("priority", op.Priority.String()),
			zap.Duration("waited", m.now().Sub(op.EnqueuedAt)))

		// Buffered; an abandoned waiter never blocks the drain.
		op.Result <- &model.AcquireResult{Success: true, OwnerID: lock.OwnerID}
	}
}

// purgeExpiredLocked drops every lock past its expiry. Caller holds the
// tenant mutex.
func (m *LockManager) purgeExpiredLocked(tenantID string, ts *registry.TenantState) {
	purged := ts.PurgeExpired(m.now())
	for _, l := range purged {
		m.metrics.LocksHeld.WithLabelValues(l.Priority.String()).Dec()
		m.metrics.ExpiredLocks.Inc()
		m.logger.Warn("Expired lock reclaimed",
			zap.String("tenant_id", tenantID),
			zap.String("owner_id", l.OwnerID),
			zap.String("priority", l.Priority.String()),
			zap.String("operation", l.OperationName),
			zap.Time("expired_at", l.ExpiresAt))
	}
}

func (m *LockManager) insertLockLocked(ts *registry.TenantState, tenantID string, priority model.PriorityClass, operationName string, opts model.AcquireOptions) *model.Lock {
	now := m.now()
	lock := &model.Lock{
		TenantID:         tenantID,
		Priority:         priority,
		OperationName:    operationName,
		AcquiredAt:       now,
		ExpiresAt:        now.Add(priority.Timeout()),
		OwnerID:          uuid.New().String(),
		ParentOwnerID:    opts.ParentOwnerID,
		PartitionVersion: opts.PartitionVersion,
		Attributes:       opts.Attributes,
	}
	ts.Insert(lock)
	m.metrics.LocksHeld.WithLabelValues(priority.String()).Inc()
	return lock
}

func (m *LockManager) removeLockLocked(ts *registry.TenantState, ownerID string) *model.Lock {
	lock := ts.Remove(ownerID)
	if lock != nil {
		m.metrics.LocksHeld.WithLabelValues(lock.Priority.String()).Dec()
	}
	return lock
}

// LockStatus returns snapshots of the tenant's currently held locks
func (m *LockManager) LockStatus(tenantID string) []model.LockInfo {
	ts := m.registry.Peek(tenantID)
	if ts == nil {
		return nil
	}
	ts.Lock()
	defer ts.Unlock()

	now := m.now()
	var out []model.LockInfo
	for _, l := range ts.Locks() {
		if l.Expired(now) {
			continue
		}
		out = append(out, l.Snapshot())
	}
	return out
}

// QueueStatus returns snapshots of the tenant's queued operations in grant
// order
func (m *LockManager) QueueStatus(tenantID string) []model.QueueInfo {
	ts := m.registry.Peek(tenantID)
	if ts == nil {
		return nil
	}
	ts.Lock()
	defer ts.Unlock()

	var out []model.QueueInfo
	for _, op := range ts.Queue() {
		out = append(out, model.QueueInfo{
			OperationID:   op.OperationID,
			PriorityLabel: op.Priority.String(),
			OperationName: op.OperationName,
			EnqueuedAt:    op.EnqueuedAt,
		})
	}
	return out
}

// Stats aggregates lock counts by class and queue depth across all tenants
func (m *LockManager) Stats() model.RegistryStats {
	return m.registry.Stats(m.now())
}

func acquireFailure(ce *coorderrors.CoordinationError) *model.AcquireResult {
	return &model.AcquireResult{Code: string(ce.Code), Message: ce.Error()}
}

func releaseFailure(ce *coorderrors.CoordinationError) *model.ReleaseResult {
	return &model.ReleaseResult{Code: string(ce.Code), Message: ce.Error()}
}

func snapshots(locks []*model.Lock) []model.LockInfo {
	out := make([]model.LockInfo, 0, len(locks))
	for _, l := range locks {
		out = append(out, l.Snapshot())
	}
	return out
}
