package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helixsearch/indexcoord/internal/metrics"
	"github.com/helixsearch/indexcoord/internal/model"
	"github.com/helixsearch/indexcoord/internal/registry"
	"github.com/helixsearch/indexcoord/internal/util/workerpool"
)

type syncFixture struct {
	partitions  *fakePartitionStore
	metadata    *MockMetadataStore
	lockManager *LockManager
	versions    *VersionTracker
	pool        *workerpool.Pool
	service     *SyncService
}

func newSyncFixture(t *testing.T) *syncFixture {
	logger := zap.NewNop()
	m := metrics.New(prometheus.NewRegistry())
	versions := NewVersionTracker(logger)
	lm := NewLockManager(registry.New(), versions, 10, time.Second, m, logger)

	partitions := newFakePartitionStore()
	metadata := new(MockMetadataStore)
	pool := workerpool.New("sync-test", 2, 16, logger)
	t.Cleanup(func() { pool.Stop(time.Second) })

	return &syncFixture{
		partitions:  partitions,
		metadata:    metadata,
		lockManager: lm,
		versions:    versions,
		pool:        pool,
		service:     NewSyncService(partitions, metadata, lm, versions, pool, time.Hour, m, logger),
	}
}

func (fx *syncFixture) seedLiveVersion(tenantID, version string) {
	for _, ptype := range model.AllPartitionTypes() {
		fx.partitions.seed(tenantID, ptype, version, 1)
	}
	fx.versions.Activate(tenantID, version)
}

func TestManualSync_RefreshesEveryPartition(t *testing.T) {
	fx := newSyncFixture(t)
	fx.seedLiveVersion("T1", "v1")

	result := fx.service.RunManualSync(context.Background(), "T1")

	require.True(t, result.Success, result.Message)
	assert.Equal(t, len(model.AllPartitionTypes()), result.PartitionsTouched)

	// Each partition received a sync marker on top of its seed document.
	stats, err := fx.partitions.PartitionStats(context.Background(), "T1", model.PartitionProfile, "v1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.DocumentCount)

	assert.Equal(t, 0, fx.lockManager.Stats().TotalLocks)
}

func TestSync_NoLiveVersionIsSkipped(t *testing.T) {
	fx := newSyncFixture(t)

	result := fx.service.RunBackgroundSync(context.Background(), "T1")

	require.True(t, result.Success)
	assert.Equal(t, 0, result.PartitionsTouched)
	assert.Contains(t, result.Message, "nothing to sync")
}

func TestSync_QueuesBehindBlockingOperationAndRunsAfterRelease(t *testing.T) {
	fx := newSyncFixture(t)
	fx.seedLiveVersion("T1", "v1")

	blocker := fx.lockManager.Acquire(context.Background(), "T1", model.PriorityPartitionRecreation, "partition_recreation", model.AcquireOptions{})
	require.True(t, blocker.Success)

	done := make(chan *SyncResult, 1)
	go func() {
		done <- fx.service.RunManualSync(context.Background(), "T1")
	}()
	require.Eventually(t, func() bool {
		return len(fx.lockManager.QueueStatus("T1")) == 1
	}, time.Second, 5*time.Millisecond)

	fx.lockManager.Release("T1", blocker.OwnerID, model.ReleaseOptions{})

	result := <-done
	require.True(t, result.Success, result.Message)
	assert.Equal(t, len(model.AllPartitionTypes()), result.PartitionsTouched)
}

func TestSync_AbandonedWhileQueued(t *testing.T) {
	fx := newSyncFixture(t)
	fx.seedLiveVersion("T1", "v1")

	blocker := fx.lockManager.Acquire(context.Background(), "T1", model.PriorityDeletion, "tenant_deletion", model.AcquireOptions{})
	require.True(t, blocker.Success)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result := fx.service.RunBackgroundSync(ctx, "T1")

	require.False(t, result.Success)
	assert.True(t, result.Queued)
}

func TestSync_StopsWhenVersionSupersededMidRun(t *testing.T) {
	fx := newSyncFixture(t)
	fx.seedLiveVersion("T1", "v1")

	// The live version is superseded before the run starts its writes;
	// the staleness check stops the loop before any partition is touched.
	fx.versions.Deprecate("T1", "v1")
	fx.versions.Activate("T1", "v2")

	// CurrentVersion now reports v2 with no backing partitions, so every
	// upsert fails and is absorbed.
	result := fx.service.RunManualSync(context.Background(), "T1")
	require.True(t, result.Success)
	assert.Equal(t, 0, result.PartitionsTouched)
}

func TestScheduleAll_FansOutOverActiveTenants(t *testing.T) {
	fx := newSyncFixture(t)
	fx.seedLiveVersion("T-active", "v1")
	fx.metadata.On("ListTenants", mock.Anything).Return([]*model.Tenant{
		{TenantID: "T-active", Status: model.TenantStatusActive},
		{TenantID: "T-suspended", Status: model.TenantStatusSuspended},
		{TenantID: "T-deleting", Status: model.TenantStatusDeleting},
	}, nil)

	fx.service.scheduleAll()

	// Only the active tenant is refreshed.
	assert.Eventually(t, func() bool {
		stats, err := fx.partitions.PartitionStats(context.Background(), "T-active", model.PartitionProfile, "v1")
		return err == nil && stats.DocumentCount == 2
	}, time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		completed, failed, _ := fx.pool.Stats()
		return completed+failed == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, fx.partitions.countForVersion("T-suspended", "v1"))
}

func TestSyncService_StartStop(t *testing.T) {
	fx := newSyncFixture(t)
	fx.metadata.On("ListTenants", mock.Anything).Return([]*model.Tenant{}, nil)

	fx.service.Start()
	fx.service.Stop()

	// Stop is safe to call twice.
	fx.service.Stop()
}
