// Package handler exposes the coordinator's admin and status HTTP surface.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	coorderrors "github.com/helixsearch/indexcoord/internal/errors"
	"github.com/helixsearch/indexcoord/internal/model"
	"github.com/helixsearch/indexcoord/internal/service"
	"go.uber.org/zap"
)

// Handlers bundles the HTTP handlers over the coordinator services
type Handlers struct {
	lockManager  *service.LockManager
	versions     *service.VersionTracker
	reconnection *service.ReconnectionService
	deletion     *service.DeletionService
	sync         *service.SyncService
	logger       *zap.Logger
}

// NewHandlers creates the handler set
func NewHandlers(
	lockManager *service.LockManager,
	versions *service.VersionTracker,
	reconnection *service.ReconnectionService,
	deletion *service.DeletionService,
	syncService *service.SyncService,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		lockManager:  lockManager,
		versions:     versions,
		reconnection: reconnection,
		deletion:     deletion,
		sync:         syncService,
		logger:       logger,
	}
}

// Reconnect handles POST /v1/tenants/{tenant_id}/reconnect
func (h *Handlers) Reconnect(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant_id"]
	preserve := r.URL.Query().Get("preserve_data") != "false"

	result := h.reconnection.Reconnect(r.Context(), tenantID, preserve)
	code := http.StatusOK
	if !result.Success {
		code = statusForCode(result.Code)
	}
	writeJSON(w, code, result)
}

// DeleteTenant handles DELETE /v1/tenants/{tenant_id}
func (h *Handlers) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant_id"]

	result := h.deletion.Delete(r.Context(), tenantID)
	code := http.StatusOK
	if !result.Success {
		code = statusForCode(result.Code)
	}
	writeJSON(w, code, result)
}

// TriggerSync handles POST /v1/tenants/{tenant_id}/sync
func (h *Handlers) TriggerSync(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant_id"]

	var result *service.SyncResult
	if r.URL.Query().Get("background") == "true" {
		result = h.sync.RunBackgroundSync(r.Context(), tenantID)
	} else {
		result = h.sync.RunManualSync(r.Context(), tenantID)
	}

	code := http.StatusOK
	if !result.Success {
		code = statusForCode(result.Code)
	}
	writeJSON(w, code, result)
}

// LockStatus handles GET /v1/tenants/{tenant_id}/locks
func (h *Handlers) LockStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant_id"]

	locks := h.lockManager.LockStatus(tenantID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenant_id": tenantID,
		"locks":     orEmptyLocks(locks),
	})
}

// QueueStatus handles GET /v1/tenants/{tenant_id}/queue
func (h *Handlers) QueueStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant_id"]

	queue := h.lockManager.QueueStatus(tenantID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenant_id": tenantID,
		"queue":     orEmptyQueue(queue),
	})
}

// CurrentVersion handles GET /v1/tenants/{tenant_id}/version
func (h *Handlers) CurrentVersion(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant_id"]

	current := h.versions.CurrentVersion(tenantID)
	if current == nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"tenant_id": tenantID,
			"message":   "tenant has no live partition set",
		})
		return
	}
	writeJSON(w, http.StatusOK, current)
}

// Stats handles GET /v1/admin/stats
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.lockManager.Stats())
}

func statusForCode(code string) int {
	return (&coorderrors.CoordinationError{Code: coorderrors.Code(code)}).HTTPStatus()
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func orEmptyLocks(locks []model.LockInfo) []model.LockInfo {
	if locks == nil {
		return []model.LockInfo{}
	}
	return locks
}

func orEmptyQueue(queue []model.QueueInfo) []model.QueueInfo {
	if queue == nil {
		return []model.QueueInfo{}
	}
	return queue
}
