package registry

import (
	"time"

	"github.com/helixsearch/indexcoord/internal/model"
)

// Analysis is the outcome of conflict analysis for one requested lock
type Analysis struct {
	Conflict  bool
	Queueable bool
	Blocking  []*model.Lock
}

// Analyze decides whether a requested (priority, parentOwnerID) acquisition
// conflicts with the tenant's currently held locks. Pure function over a
// snapshot of the lock set; rules are evaluated in order:
//
//  1. Expired locks never block.
//  2. A nested acquisition under a held parent of equal or higher priority
//     is always allowed.
//  3. A strictly higher-priority holder blocks, but the request may queue.
//  4. An equal-priority holder blocks; for singleton classes the request is
//     rejected outright rather than queued.
//  5. Any remaining lower-priority holder blocks too (locks are exclusive
//     per tenant); the request may queue, or preempt via escalation when
//     its class permits.
func Analyze(locks []*model.Lock, priority model.PriorityClass, parentOwnerID string, now time.Time) Analysis {
	valid := make([]*model.Lock, 0, len(locks))
	for _, l := range locks {
		if !l.Expired(now) {
			valid = append(valid, l)
		}
	}

	if parentOwnerID != "" {
		for _, l := range valid {
			if l.OwnerID == parentOwnerID && l.Priority >= priority {
				return Analysis{}
			}
		}
	}

	var higher, equal, lower []*model.Lock
	for _, l := range valid {
		switch {
		case l.Priority > priority:
			higher = append(higher, l)
		case l.Priority == priority:
			equal = append(equal, l)
		default:
			lower = append(lower, l)
		}
	}

	if len(higher) > 0 {
		return Analysis{Conflict: true, Queueable: true, Blocking: higher}
	}

	if len(equal) > 0 {
		if priority.IsSingleton() {
			return Analysis{Conflict: true, Blocking: equal}
		}
		return Analysis{Conflict: true, Queueable: true, Blocking: equal}
	}

	if len(lower) > 0 {
		return Analysis{Conflict: true, Queueable: true, Blocking: lower}
	}

	return Analysis{}
}

// Escalatable reports whether every blocking lock has strictly lower
// priority than the requested class, meaning forced preemption can clear
// the way. Blockers of equal or higher priority are never preempted.
func (a Analysis) Escalatable(priority model.PriorityClass) bool {
	if len(a.Blocking) == 0 {
		return false
	}
	for _, l := range a.Blocking {
		if l.Priority >= priority {
			return false
		}
	}
	return true
}
