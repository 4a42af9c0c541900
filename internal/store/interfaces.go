package store

import (
	"context"
	"errors"
	"time"

	"github.com/helixsearch/indexcoord/internal/model"
)

// ErrNotFound is returned when a key is not found
var ErrNotFound = errors.New("not found")

// PartitionStore is the client for the external index resource holding each
// tenant's typed, versioned partitions
type PartitionStore interface {
	// CreatePartition creates the partition for (tenant, type, version)
	// seeded with a placeholder entry so it is queryable even when empty
	CreatePartition(ctx context.Context, tenantID string, ptype model.PartitionType, version string) error
	// DeletePartition removes a partition and all its documents
	DeletePartition(ctx context.Context, tenantID string, ptype model.PartitionType, version string) error
	// PartitionExists reports whether the partition exists
	PartitionExists(ctx context.Context, tenantID string, ptype model.PartitionType, version string) (bool, error)
	// PartitionStats returns a stats/health response for the partition
	PartitionStats(ctx context.Context, tenantID string, ptype model.PartitionType, version string) (*model.PartitionStats, error)
	// SampleDocuments reads up to limit documents from the partition
	SampleDocuments(ctx context.Context, tenantID string, ptype model.PartitionType, version string, limit int) ([]*model.Document, error)
	// MigrateDocuments copies documents into the partition at the target
	// version
	MigrateDocuments(ctx context.Context, tenantID string, ptype model.PartitionType, version string, docs []*model.Document) error
	// UpsertDocument writes a single document into the partition
	UpsertDocument(ctx context.Context, tenantID string, ptype model.PartitionType, version string, doc *model.Document) error

	Ping(ctx context.Context) error
	Close() error
}

// MetadataStore is the relational store for tenant metadata
type MetadataStore interface {
	GetTenant(ctx context.Context, tenantID string) (*model.Tenant, error)
	CreateTenant(ctx context.Context, tenant *model.Tenant) error
	UpdateTenantStatus(ctx context.Context, tenantID string, status model.TenantStatus) error
	DeleteTenant(ctx context.Context, tenantID string) error
	ListTenants(ctx context.Context) ([]*model.Tenant, error)

	Ping(ctx context.Context) error
	Close()
}

// Cache interface for in-memory caching
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
