package service

import (
	"sync"
	"time"

	"github.com/helixsearch/indexcoord/internal/model"
	"go.uber.org/zap"
)

// VersionTracker tracks, per tenant, the lifecycle of named partition-set
// versions. At most one version per tenant is active at any time; the rest
// are creating (in flight) or deprecated (superseded, pending cleanup).
type VersionTracker struct {
	mu      sync.RWMutex
	tenants map[string]*tenantVersions
	logger  *zap.Logger
}

type tenantVersions struct {
	records       map[string]*model.PartitionVersion
	activeVersion string
}

// NewVersionTracker creates an empty version tracker
func NewVersionTracker(logger *zap.Logger) *VersionTracker {
	return &VersionTracker{
		tenants: make(map[string]*tenantVersions),
		logger:  logger,
	}
}

// CurrentVersion returns the tenant's active version record, or nil when the
// tenant has no live partition set
func (t *VersionTracker) CurrentVersion(tenantID string) *model.PartitionVersion {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tv, ok := t.tenants[tenantID]
	if !ok || tv.activeVersion == "" {
		return nil
	}
	rec, ok := tv.records[tv.activeVersion]
	if !ok {
		return nil
	}
	copied := *rec
	return &copied
}

// RecordCreating registers a new in-flight version owned by the given lock
func (t *VersionTracker) RecordCreating(tenantID, version, ownerLockID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tv := t.tenants[tenantID]
	if tv == nil {
		tv = &tenantVersions{records: make(map[string]*model.PartitionVersion)}
		t.tenants[tenantID] = tv
	}
	tv.records[version] = &model.PartitionVersion{
		TenantID:    tenantID,
		Version:     version,
		Status:      model.VersionStatusCreating,
		OwnerLockID: ownerLockID,
		CreatedAt:   time.Now(),
	}

	t.logger.Debug("Recorded creating version",
		zap.String("tenant_id", tenantID),
		zap.String("version", version),
		zap.String("owner_lock_id", ownerLockID))
}

// Activate marks the version active and makes it the tenant's current
// version. It does not touch other versions; the caller is responsible for
// deprecating the predecessor.
func (t *VersionTracker) Activate(tenantID, version string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tv := t.tenants[tenantID]
	if tv == nil {
		tv = &tenantVersions{records: make(map[string]*model.PartitionVersion)}
		t.tenants[tenantID] = tv
	}
	rec, ok := tv.records[version]
	if !ok {
		rec = &model.PartitionVersion{
			TenantID:  tenantID,
			Version:   version,
			CreatedAt: time.Now(),
		}
		tv.records[version] = rec
	}
	rec.Status = model.VersionStatusActive
	tv.activeVersion = version

	t.logger.Info("Activated partition version",
		zap.String("tenant_id", tenantID),
		zap.String("version", version))
}

// Deprecate marks the version superseded, pending cleanup
func (t *VersionTracker) Deprecate(tenantID, version string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tv := t.tenants[tenantID]
	if tv == nil {
		return
	}
	rec, ok := tv.records[version]
	if !ok {
		return
	}
	rec.Status = model.VersionStatusDeprecated
	if tv.activeVersion == version {
		tv.activeVersion = ""
	}

	t.logger.Info("Deprecated partition version",
		zap.String("tenant_id", tenantID),
		zap.String("version", version))
}

// IsActive reports whether the given version is the tenant's live one.
// Other subsystems use this to decide whether reads against a version are
// still meaningful.
func (t *VersionTracker) IsActive(tenantID, version string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tv, ok := t.tenants[tenantID]
	return ok && tv.activeVersion == version
}

// Remove garbage-collects a version record once its partitions are gone
func (t *VersionTracker) Remove(tenantID, version string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tv := t.tenants[tenantID]
	if tv == nil {
		return
	}
	delete(tv.records, version)
	if tv.activeVersion == version {
		tv.activeVersion = ""
	}
	if len(tv.records) == 0 {
		delete(t.tenants, tenantID)
	}
}

// Versions returns all version records for a tenant
func (t *VersionTracker) Versions(tenantID string) []*model.PartitionVersion {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tv, ok := t.tenants[tenantID]
	if !ok {
		return nil
	}
	out := make([]*model.PartitionVersion, 0, len(tv.records))
	for _, rec := range tv.records {
		copied := *rec
		out = append(out, &copied)
	}
	return out
}

// Clear drops all version records for a tenant. Used by the deletion flow.
func (t *VersionTracker) Clear(tenantID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tenants, tenantID)
}
