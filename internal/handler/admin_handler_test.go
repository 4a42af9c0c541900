package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helixsearch/indexcoord/internal/metrics"
	"github.com/helixsearch/indexcoord/internal/model"
	"github.com/helixsearch/indexcoord/internal/registry"
	"github.com/helixsearch/indexcoord/internal/service"
)

type statusFixture struct {
	lockManager *service.LockManager
	versions    *service.VersionTracker
	router      *mux.Router
}

// newStatusFixture wires only the inspection endpoints; the lifecycle
// handlers are exercised through their services' own tests
func newStatusFixture() *statusFixture {
	logger := zap.NewNop()
	m := metrics.New(prometheus.NewRegistry())
	versions := service.NewVersionTracker(logger)
	lm := service.NewLockManager(registry.New(), versions, 10, time.Second, m, logger)

	h := NewHandlers(lm, versions, nil, nil, nil, logger)

	router := mux.NewRouter()
	router.HandleFunc("/v1/tenants/{tenant_id}/locks", h.LockStatus).Methods(http.MethodGet)
	router.HandleFunc("/v1/tenants/{tenant_id}/queue", h.QueueStatus).Methods(http.MethodGet)
	router.HandleFunc("/v1/tenants/{tenant_id}/version", h.CurrentVersion).Methods(http.MethodGet)
	router.HandleFunc("/v1/admin/stats", h.Stats).Methods(http.MethodGet)

	return &statusFixture{lockManager: lm, versions: versions, router: router}
}

func (fx *statusFixture) get(t *testing.T, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestLockStatus_EmptyTenant(t *testing.T) {
	fx := newStatusFixture()

	rec, body := fx.get(t, "/v1/tenants/T1/locks")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "T1", body["tenant_id"])
	assert.Empty(t, body["locks"], "an empty list, never null")
	assert.NotNil(t, body["locks"])
}

func TestLockStatus_ReportsHeldLocks(t *testing.T) {
	fx := newStatusFixture()
	res := fx.lockManager.Acquire(context.Background(), "T1", model.PriorityReconnection, "tenant_reconnection", model.AcquireOptions{})
	require.True(t, res.Success)

	rec, body := fx.get(t, "/v1/tenants/T1/locks")

	assert.Equal(t, http.StatusOK, rec.Code)
	locks, ok := body["locks"].([]interface{})
	require.True(t, ok)
	require.Len(t, locks, 1)
	lock := locks[0].(map[string]interface{})
	assert.Equal(t, "reconnection", lock["priority"])
	assert.Equal(t, res.OwnerID, lock["owner_id"])
}

func TestQueueStatus_ReportsQueuedOperations(t *testing.T) {
	fx := newStatusFixture()
	blocker := fx.lockManager.Acquire(context.Background(), "T1", model.PriorityPartitionRecreation, "partition_recreation", model.AcquireOptions{})
	require.True(t, blocker.Success)

	go fx.lockManager.Acquire(context.Background(), "T1", model.PriorityManualSync, "manual_sync", model.AcquireOptions{
		QueueIfBlocked: true,
	})
	require.Eventually(t, func() bool {
		return len(fx.lockManager.QueueStatus("T1")) == 1
	}, time.Second, 5*time.Millisecond)

	rec, body := fx.get(t, "/v1/tenants/T1/queue")

	assert.Equal(t, http.StatusOK, rec.Code)
	queue, ok := body["queue"].([]interface{})
	require.True(t, ok)
	require.Len(t, queue, 1)
	entry := queue[0].(map[string]interface{})
	assert.Equal(t, "manual_sync", entry["priority"])

	fx.lockManager.Release("T1", blocker.OwnerID, model.ReleaseOptions{})
}

func TestCurrentVersion_NotFoundWithoutLiveVersion(t *testing.T) {
	fx := newStatusFixture()

	rec, body := fx.get(t, "/v1/tenants/T1/version")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, body["message"], "no live partition set")
}

func TestCurrentVersion_ReturnsActiveRecord(t *testing.T) {
	fx := newStatusFixture()
	fx.versions.Activate("T1", "v42")

	rec, body := fx.get(t, "/v1/tenants/T1/version")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v42", body["version"])
	assert.Equal(t, "active", body["status"])
}

func TestStats_AggregatesAcrossTenants(t *testing.T) {
	fx := newStatusFixture()
	require.True(t, fx.lockManager.Acquire(context.Background(), "T1", model.PriorityBackgroundSync, "background_sync", model.AcquireOptions{}).Success)
	require.True(t, fx.lockManager.Acquire(context.Background(), "T2", model.PriorityDeletion, "tenant_deletion", model.AcquireOptions{}).Success)

	rec, body := fx.get(t, "/v1/admin/stats")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["tenants"])
	assert.EqualValues(t, 2, body["total_locks"])

	byClass, ok := body["locks_by_class"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 1, byClass["deletion"])
}

func TestStatusForCode(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusForCode("CONFLICT"))
	assert.Equal(t, http.StatusConflict, statusForCode("SINGLETON_CONFLICT"))
	assert.Equal(t, http.StatusTooManyRequests, statusForCode("QUEUE_FULL"))
	assert.Equal(t, http.StatusNotFound, statusForCode("NOT_FOUND"))
	assert.Equal(t, http.StatusBadRequest, statusForCode("INVALID_REQUEST"))
	assert.Equal(t, http.StatusLocked, statusForCode("ESCALATION_FAILED"))
	assert.Equal(t, http.StatusInternalServerError, statusForCode("VERIFY_FAILED"))
}
