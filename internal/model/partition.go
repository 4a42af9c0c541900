package model

import "time"

// PartitionType names one category of tenant data held in its own
// independently addressable partition
type PartitionType string

const (
	PartitionProfile         PartitionType = "profile"
	PartitionCatalogItems    PartitionType = "catalog-items"
	PartitionTransactions    PartitionType = "transactions"
	PartitionParties         PartitionType = "parties"
	PartitionAggregates      PartitionType = "aggregates"
	PartitionDialogueHistory PartitionType = "dialogue-history"
)

// AllPartitionTypes lists the fixed set of partitions every tenant
// workspace is subdivided into
func AllPartitionTypes() []PartitionType {
	return []PartitionType{
		PartitionProfile,
		PartitionCatalogItems,
		PartitionTransactions,
		PartitionParties,
		PartitionAggregates,
		PartitionDialogueHistory,
	}
}

// VersionStatus tracks the lifecycle of a partition-set version
type VersionStatus string

const (
	// VersionStatusCreating marks a version whose partitions are still
	// being built
	VersionStatusCreating VersionStatus = "creating"
	// VersionStatusActive marks the single version readers should use
	VersionStatusActive VersionStatus = "active"
	// VersionStatusDeprecated marks a superseded version pending cleanup
	VersionStatusDeprecated VersionStatus = "deprecated"
)

// PartitionVersion records one generation of a tenant's partition set
type PartitionVersion struct {
	TenantID    string        `json:"tenant_id"`
	Version     string        `json:"version"`
	Status      VersionStatus `json:"status"`
	OwnerLockID string        `json:"owner_lock_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// PartitionStats is the health/stats response for a single partition
type PartitionStats struct {
	TenantID      string        `json:"tenant_id"`
	Type          PartitionType `json:"type"`
	Version       string        `json:"version"`
	DocumentCount int64         `json:"document_count"`
}

// Document is one indexable unit stored in a partition
type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
