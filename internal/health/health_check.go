package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/helixsearch/indexcoord/internal/store"
	"go.uber.org/zap"
)

// HealthChecker provides liveness and readiness endpoints
type HealthChecker struct {
	metadataStore store.MetadataStore
	partitions    store.PartitionStore
	logger        *zap.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(metadataStore store.MetadataStore, partitions store.PartitionStore, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		metadataStore: metadataStore,
		partitions:    partitions,
		logger:        logger,
	}
}

// LivenessHandler handles liveness probe requests
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "alive",
		Timestamp: time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// ReadinessHandler handles readiness probe requests
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if err := h.metadataStore.Ping(ctx); err != nil {
		h.logger.Error("Metadata store health check failed", zap.Error(err))
		checks["metadata_store"] = "unhealthy: " + err.Error()
		allHealthy = false
	} else {
		checks["metadata_store"] = "healthy"
	}

	if err := h.partitions.Ping(ctx); err != nil {
		h.logger.Error("Partition store health check failed", zap.Error(err))
		checks["partition_store"] = "unhealthy: " + err.Error()
		allHealthy = false
	} else {
		checks["partition_store"] = "healthy"
	}

	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}
	code := http.StatusOK
	if !allHealthy {
		status.Status = "not_ready"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}
