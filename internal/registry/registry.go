// Package registry holds the process-wide table of active locks and queued
// operations, keyed by tenant id. The registry is an injected,
// lifecycle-scoped store so tests can instantiate isolated instances.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/helixsearch/indexcoord/internal/model"
)

// TenantState owns one tenant's locks and queued operations. All mutation
// must happen with the state's mutex held; cross-tenant operations never
// share a critical section.
type TenantState struct {
	sync.Mutex

	locks map[string]*model.Lock // ownerID -> lock
	queue []*model.QueuedOperation
}

// Locks returns a snapshot of the tenant's held locks. Caller holds the mutex.
func (ts *TenantState) Locks() []*model.Lock {
	out := make([]*model.Lock, 0, len(ts.locks))
	for _, l := range ts.locks {
		out = append(out, l)
	}
	return out
}

// Get returns the lock with the given owner id, or nil. Caller holds the mutex.
func (ts *TenantState) Get(ownerID string) *model.Lock {
	return ts.locks[ownerID]
}

// Insert stores a lock. Caller holds the mutex.
func (ts *TenantState) Insert(lock *model.Lock) {
	ts.locks[lock.OwnerID] = lock
}

// Remove deletes and returns the lock with the given owner id, or nil if it
// was not held. Caller holds the mutex.
func (ts *TenantState) Remove(ownerID string) *model.Lock {
	l, ok := ts.locks[ownerID]
	if !ok {
		return nil
	}
	delete(ts.locks, ownerID)
	return l
}

// Children returns the locks whose ParentOwnerID equals ownerID. Caller
// holds the mutex.
func (ts *TenantState) Children(ownerID string) []*model.Lock {
	var out []*model.Lock
	for _, l := range ts.locks {
		if l.ParentOwnerID == ownerID {
			out = append(out, l)
		}
	}
	return out
}

// PurgeExpired removes and returns every lock past its expiry. Caller holds
// the mutex.
func (ts *TenantState) PurgeExpired(now time.Time) []*model.Lock {
	var purged []*model.Lock
	for owner, l := range ts.locks {
		if l.Expired(now) {
			delete(ts.locks, owner)
			purged = append(purged, l)
		}
	}
	return purged
}

// Enqueue appends a queued operation, reporting false when the queue is at
// capacity. Caller holds the mutex.
func (ts *TenantState) Enqueue(op *model.QueuedOperation, capacity int) bool {
	if len(ts.queue) >= capacity {
		return false
	}
	ts.queue = append(ts.queue, op)
	return true
}

// Queue returns the queued operations ordered by descending priority,
// insertion order as tie-break. Caller holds the mutex.
func (ts *TenantState) Queue() []*model.QueuedOperation {
	out := make([]*model.QueuedOperation, len(ts.queue))
	copy(out, ts.queue)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out
}

// RemoveQueued drops the queued operation with the given id. Caller holds
// the mutex.
func (ts *TenantState) RemoveQueued(operationID string) {
	for i, op := range ts.queue {
		if op.OperationID == operationID {
			ts.queue = append(ts.queue[:i], ts.queue[i+1:]...)
			return
		}
	}
}

// Empty reports whether the tenant holds no locks and no queued work.
// Caller holds the mutex.
func (ts *TenantState) Empty() bool {
	return len(ts.locks) == 0 && len(ts.queue) == 0
}

// QueueLen returns the number of queued operations. Caller holds the mutex.
func (ts *TenantState) QueueLen() int {
	return len(ts.queue)
}

// LockCount returns the number of held locks. Caller holds the mutex.
func (ts *TenantState) LockCount() int {
	return len(ts.locks)
}

// Registry is the process-wide table of tenant lock state
type Registry struct {
	mu      sync.RWMutex
	tenants map[string]*TenantState
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		tenants: make(map[string]*TenantState),
	}
}

// Tenant returns the state for a tenant, creating it if absent
func (r *Registry) Tenant(tenantID string) *TenantState {
	r.mu.RLock()
	ts, ok := r.tenants[tenantID]
	r.mu.RUnlock()
	if ok {
		return ts
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ts, ok = r.tenants[tenantID]; ok {
		return ts
	}
	ts = &TenantState{locks: make(map[string]*model.Lock)}
	r.tenants[tenantID] = ts
	return ts
}

// Peek returns the state for a tenant without creating it
func (r *Registry) Peek(tenantID string) *TenantState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tenants[tenantID]
}

// RemoveIfEmpty drops a tenant's state when it holds no locks and no queued
// work, bounding registry memory
func (r *Registry) RemoveIfEmpty(tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.tenants[tenantID]
	if !ok {
		return
	}
	ts.Lock()
	empty := ts.Empty()
	ts.Unlock()
	if empty {
		delete(r.tenants, tenantID)
	}
}

// TenantIDs returns the ids of all tenants with registered state
func (r *Registry) TenantIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tenants))
	for id := range r.tenants {
		out = append(out, id)
	}
	return out
}

// Stats aggregates lock counts by class and queue depths across all tenants
func (r *Registry) Stats(now time.Time) model.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := model.RegistryStats{
		Tenants:      len(r.tenants),
		LocksByClass: make(map[string]int),
	}
	for _, ts := range r.tenants {
		ts.Lock()
		for _, l := range ts.locks {
			if l.Expired(now) {
				continue
			}
			stats.TotalLocks++
			stats.LocksByClass[l.Priority.String()]++
		}
		stats.TotalQueued += len(ts.queue)
		ts.Unlock()
	}
	return stats
}
