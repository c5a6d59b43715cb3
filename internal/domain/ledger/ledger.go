// Package ledger implements the approval ledger: a map of pending,
// single-shot-redeemable tool calls awaiting a human approver.
package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wardenhq/warden/internal/domain/policy"
)

// Ledger stores pending approvals keyed by UUID and enforces the
// state machine LIVE -> APPROVED -> EXECUTED, or LIVE -> EXPIRED.
// Garbage collection is lazy: Approve and MarkExecuted delete an entry
// they find past expiry, Get returns expired entries unchanged, and
// Prune sweeps all expired entries at once.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*policy.PendingApproval
	now     func() time.Time
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{
		entries: make(map[string]*policy.PendingApproval),
		now:     time.Now,
	}
}

// Create mints a new pending approval with a 24-hour expiry and
// returns its id. request is copied by value; params is not deep
// copied, callers must not mutate it afterward.
func (l *Ledger) Create(request policy.PendingApproval) string {
	id := uuid.NewString()
	now := l.now()
	request.ID = id
	request.CreatedAt = now
	request.ExpiresAt = now.Add(policy.DefaultApprovalTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[id] = &request
	return id
}

// Get returns a copy of the entry for id, whether or not it is
// expired; the caller decides how to treat expiry. ok is false if no
// entry with this id was ever created, or it has already been pruned.
func (l *Ledger) Get(id string) (policy.PendingApproval, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		return policy.PendingApproval{}, false
	}
	return *e, true
}

// Approve stamps approverID and the current time on the entry for id
// and returns true, provided the entry exists and has not expired. If
// the entry has expired it is pruned and false is returned. If no
// such entry exists, false is returned. A second Approve call on an
// already-approved, unexpired entry succeeds again without changing
// ApprovedAt, satisfying the idempotent-redemption contract — dispatch
// exactly-once is enforced separately by MarkExecuted.
func (l *Ledger) Approve(id string, approverID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok {
		return false
	}
	now := l.now()
	if now.After(e.ExpiresAt) {
		delete(l.entries, id)
		return false
	}
	if e.ApprovedAt == nil {
		approvedAt := now
		e.ApprovedAt = &approvedAt
		e.ApproverID = approverID
	}
	return true
}

// MarkExecuted performs a single-shot compare-and-swap: it returns
// true exactly once per entry, the first time it is
// called on an approved, not-yet-executed, unexpired entry. Every
// subsequent call for the same id returns false, so a caller using
// MarkExecuted to gate adapter dispatch will dispatch at most once.
func (l *Ledger) MarkExecuted(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok || e.ApprovedAt == nil || e.Executed {
		return false
	}
	if l.now().After(e.ExpiresAt) {
		delete(l.entries, id)
		return false
	}
	now := l.now()
	e.Executed = true
	e.ExecutedAt = &now
	return true
}

// StoreResult attaches the adapter's result to an already-executed
// entry, so a replayed approval can be answered from the ledger
// without a second dispatch. It is a no-op if id is unknown.
func (l *Ledger) StoreResult(id string, result map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[id]; ok {
		e.Result = result
	}
}

// Prune removes every entry past its expiry. Callers may run it
// periodically; Approve and MarkExecuted already prune the entry they
// touch and Get never prunes, so Prune is a convenience for bounding
// memory use between lookups.
func (l *Ledger) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, e := range l.entries {
		if now.After(e.ExpiresAt) {
			delete(l.entries, id)
			removed++
		}
	}
	return removed
}
