package model

import (
	"fmt"
	"time"
)

// PriorityClass orders lock precedence. Higher values preempt lower ones.
type PriorityClass int

const (
	// PriorityBackgroundSync covers scheduled index refresh jobs
	PriorityBackgroundSync PriorityClass = 1
	// PriorityManualSync covers user-initiated index refreshes
	PriorityManualSync PriorityClass = 2
	// PriorityPartitionRecreation covers versioned partition-set rebuilds
	PriorityPartitionRecreation PriorityClass = 3
	// PriorityReconnection covers tenant reconnection flows
	PriorityReconnection PriorityClass = 4
	// PriorityDeletion covers tenant removal
	PriorityDeletion PriorityClass = 5
)

// String returns the wire/log label for a priority class
func (p PriorityClass) String() string {
	switch p {
	case PriorityBackgroundSync:
		return "background_sync"
	case PriorityManualSync:
		return "manual_sync"
	case PriorityPartitionRecreation:
		return "partition_recreation"
	case PriorityReconnection:
		return "reconnection"
	case PriorityDeletion:
		return "deletion"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// Timeout returns the lock expiry duration for a priority class.
// Background sync is the shortest-lived operation; reconnection, which
// drives a full partition recreation, is the longest.
func (p PriorityClass) Timeout() time.Duration {
	switch p {
	case PriorityBackgroundSync:
		return 2 * time.Minute
	case PriorityManualSync:
		return 5 * time.Minute
	case PriorityPartitionRecreation:
		return 10 * time.Minute
	case PriorityReconnection:
		return 30 * time.Minute
	case PriorityDeletion:
		return 15 * time.Minute
	default:
		return 5 * time.Minute
	}
}

// IsSingleton reports whether at most one lock of this class may exist per
// tenant. Singleton conflicts are rejected outright, never queued.
func (p PriorityClass) IsSingleton() bool {
	switch p {
	case PriorityPartitionRecreation, PriorityReconnection:
		return true
	case PriorityBackgroundSync, PriorityManualSync, PriorityDeletion:
		return false
	default:
		return false
	}
}

// CanEscalate reports whether this class may preempt lower-priority locks.
// Deletion always escalates; reconnection escalates only when the caller
// opts in.
func (p PriorityClass) CanEscalate() bool {
	switch p {
	case PriorityDeletion, PriorityReconnection:
		return true
	case PriorityBackgroundSync, PriorityManualSync, PriorityPartitionRecreation:
		return false
	default:
		return false
	}
}

// Valid reports whether p is one of the five known classes
func (p PriorityClass) Valid() bool {
	switch p {
	case PriorityBackgroundSync, PriorityManualSync, PriorityPartitionRecreation,
		PriorityReconnection, PriorityDeletion:
		return true
	default:
		return false
	}
}

// ParsePriorityClass converts a wire label back to a PriorityClass
func ParsePriorityClass(label string) (PriorityClass, error) {
	switch label {
	case "background_sync":
		return PriorityBackgroundSync, nil
	case "manual_sync":
		return PriorityManualSync, nil
	case "partition_recreation":
		return PriorityPartitionRecreation, nil
	case "reconnection":
		return PriorityReconnection, nil
	case "deletion":
		return PriorityDeletion, nil
	default:
		return 0, fmt.Errorf("unknown priority class: %q", label)
	}
}

// AllPriorityClasses lists the five classes in ascending priority order
func AllPriorityClasses() []PriorityClass {
	return []PriorityClass{
		PriorityBackgroundSync,
		PriorityManualSync,
		PriorityPartitionRecreation,
		PriorityReconnection,
		PriorityDeletion,
	}
}
