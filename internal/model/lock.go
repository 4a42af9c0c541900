package model

import "time"

// Lock represents one held exclusivity claim on a tenant's index workspace
type Lock struct {
	TenantID      string
	Priority      PriorityClass
	OperationName string
	AcquiredAt    time.Time
	ExpiresAt     time.Time
	OwnerID       string
	// ParentOwnerID links a nested lock to the held lock it runs under.
	// A child never conflicts with its parent.
	ParentOwnerID string
	// PartitionVersion is set when the lock protects a versioned
	// partition recreation.
	PartitionVersion string
	Attributes       map[string]string
}

// Expired reports whether the lock's expiry has passed at the given instant
func (l *Lock) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// AcquireOptions tunes a single acquire call
type AcquireOptions struct {
	// ParentOwnerID marks this acquisition as nested under a held lock
	ParentOwnerID string
	// PartitionVersion tags the lock with the version it protects
	PartitionVersion string
	// AllowEscalation permits preempting lower-priority locks. Only
	// honored for classes that can escalate; deletion escalates
	// regardless.
	AllowEscalation bool
	// QueueIfBlocked queues the request on a queueable conflict instead
	// of failing immediately
	QueueIfBlocked bool
	Attributes     map[string]string
}

// AcquireResult is the structured outcome of an acquire call. Conflicts are
// reported here, never as error returns.
type AcquireResult struct {
	Success   bool
	OwnerID   string
	Code      string
	Message   string
	BlockedBy []LockInfo
	Escalated bool
	Queued    bool
}

// ReleaseOptions tunes a single release call
type ReleaseOptions struct {
	// CascadeRelease also releases every lock whose ParentOwnerID equals
	// the released owner id
	CascadeRelease bool
	// VersionStatus, when set on a lock carrying a PartitionVersion,
	// records the final status of that version (active or deprecated)
	VersionStatus VersionStatus
}

// ReleaseResult is the structured outcome of a release call
type ReleaseResult struct {
	Success          bool
	ReleasedOwnerIDs []string
	Code             string
	Message          string
}

// LockInfo is a read-only snapshot of a held lock for status reporting
type LockInfo struct {
	OwnerID          string        `json:"owner_id"`
	Priority         PriorityClass `json:"-"`
	PriorityLabel    string        `json:"priority"`
	OperationName    string        `json:"operation"`
	AcquiredAt       time.Time     `json:"acquired_at"`
	ExpiresAt        time.Time     `json:"expires_at"`
	ParentOwnerID    string        `json:"parent_owner_id,omitempty"`
	PartitionVersion string        `json:"partition_version,omitempty"`
}

// Snapshot converts a Lock into its status representation
func (l *Lock) Snapshot() LockInfo {
	return LockInfo{
		OwnerID:          l.OwnerID,
		Priority:         l.Priority,
		PriorityLabel:    l.Priority.String(),
		OperationName:    l.OperationName,
		AcquiredAt:       l.AcquiredAt,
		ExpiresAt:        l.ExpiresAt,
		ParentOwnerID:    l.ParentOwnerID,
		PartitionVersion: l.PartitionVersion,
	}
}

// QueuedOperation is a lock request parked until a later release or queue
// tick can grant it
type QueuedOperation struct {
	OperationID   string
	TenantID      string
	Priority      PriorityClass
	OperationName string
	EnqueuedAt    time.Time
	Options       AcquireOptions
	// Result receives exactly one AcquireResult when the entry is
	// processed. Buffered so an abandoned waiter never blocks the queue.
	Result chan *AcquireResult
}

// QueueInfo is a read-only snapshot of a queued operation
type QueueInfo struct {
	OperationID   string    `json:"operation_id"`
	PriorityLabel string    `json:"priority"`
	OperationName string    `json:"operation"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// RegistryStats aggregates lock and queue state across all tenants for
// operational dashboards
type RegistryStats struct {
	Tenants      int            `json:"tenants"`
	TotalLocks   int            `json:"total_locks"`
	TotalQueued  int            `json:"total_queued"`
	LocksByClass map[string]int `json:"locks_by_class"`
}
