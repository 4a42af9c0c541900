package model

import "time"

// TenantStatus represents the lifecycle state of a tenant
type TenantStatus string

const (
	// TenantStatusActive indicates the tenant is connected and addressable
	TenantStatusActive TenantStatus = "active"
	// TenantStatusSuspended indicates the tenant is disconnected but retained
	TenantStatusSuspended TenantStatus = "suspended"
	// TenantStatusDeleting indicates removal is in progress
	TenantStatusDeleting TenantStatus = "deleting"
)

// Tenant represents tenant metadata
type Tenant struct {
	TenantID    string
	DisplayName string
	Status      TenantStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int64 // For optimistic locking
}

// Addressable reports whether lifecycle operations may target this tenant
func (t *Tenant) Addressable() bool {
	return t.Status == TenantStatusActive || t.Status == TenantStatusSuspended
}
