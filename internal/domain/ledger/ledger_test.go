package ledger

import (
	"testing"
	"time"

	"github.com/wardenhq/warden/internal/domain/policy"
)

func newTestLedger(frozen time.Time) *Ledger {
	l := New()
	l.now = func() time.Time { return frozen }
	return l
}

func TestLedger_CreateAndGet(t *testing.T) {
	t.Parallel()
	l := newTestLedger(time.Now())
	id := l.Create(policy.PendingApproval{AgentID: "billing-bot", Tool: "payments", Action: "create"})

	entry, ok := l.Get(id)
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if entry.AgentID != "billing-bot" {
		t.Errorf("entry.AgentID = %q, want billing-bot", entry.AgentID)
	}
	if entry.ExpiresAt.Sub(entry.CreatedAt) != policy.DefaultApprovalTTL {
		t.Errorf("expiry window = %v, want %v", entry.ExpiresAt.Sub(entry.CreatedAt), policy.DefaultApprovalTTL)
	}
}

func TestLedger_Get_UnknownID(t *testing.T) {
	t.Parallel()
	l := New()
	if _, ok := l.Get("nonexistent"); ok {
		t.Error("Get() on unknown id ok = true, want false")
	}
}

func TestLedger_Approve_Success(t *testing.T) {
	t.Parallel()
	now := time.Now()
	l := newTestLedger(now)
	id := l.Create(policy.PendingApproval{AgentID: "a"})

	if !l.Approve(id, "approver-1") {
		t.Fatal("Approve() = false, want true")
	}
	entry, _ := l.Get(id)
	if entry.ApproverID != "approver-1" || entry.ApprovedAt == nil {
		t.Errorf("entry after approve = %+v, want stamped approver and time", entry)
	}
}

func TestLedger_Approve_UnknownID(t *testing.T) {
	t.Parallel()
	l := New()
	if l.Approve("nonexistent", "someone") {
		t.Error("Approve() on unknown id = true, want false")
	}
}

func TestLedger_Approve_ExpiredIsPrunedAndFails(t *testing.T) {
	t.Parallel()
	created := time.Now()
	l := newTestLedger(created)
	id := l.Create(policy.PendingApproval{AgentID: "a"})

	l.now = func() time.Time { return created.Add(policy.DefaultApprovalTTL + time.Second) }
	if l.Approve(id, "approver") {
		t.Fatal("Approve() on expired entry = true, want false")
	}
	if _, ok := l.Get(id); ok {
		t.Error("Get() found expired entry after failed Approve, want pruned")
	}
}

func TestLedger_Approve_SecondCallStillTrueWithoutChangingApprovedAt(t *testing.T) {
	t.Parallel()
	l := newTestLedger(time.Now())
	id := l.Create(policy.PendingApproval{AgentID: "a"})

	if !l.Approve(id, "first-approver") {
		t.Fatal("first Approve() = false")
	}
	first, _ := l.Get(id)

	if !l.Approve(id, "second-approver") {
		t.Fatal("second Approve() = false, want idempotent true")
	}
	second, _ := l.Get(id)

	if !second.ApprovedAt.Equal(*first.ApprovedAt) {
		t.Error("ApprovedAt changed on second Approve() call, want unchanged")
	}
	if second.ApproverID != "first-approver" {
		t.Errorf("ApproverID = %q after second approve, want unchanged first-approver", second.ApproverID)
	}
}

func TestLedger_MarkExecuted_OnlyFirstCallSucceeds(t *testing.T) {
	t.Parallel()
	l := newTestLedger(time.Now())
	id := l.Create(policy.PendingApproval{AgentID: "a"})
	l.Approve(id, "approver")

	if !l.MarkExecuted(id) {
		t.Fatal("first MarkExecuted() = false, want true")
	}
	if l.MarkExecuted(id) {
		t.Error("second MarkExecuted() = true, want false (single-shot dispatch)")
	}
}

func TestLedger_MarkExecuted_RequiresApprovalFirst(t *testing.T) {
	t.Parallel()
	l := newTestLedger(time.Now())
	id := l.Create(policy.PendingApproval{AgentID: "a"})

	if l.MarkExecuted(id) {
		t.Error("MarkExecuted() on unapproved entry = true, want false")
	}
}

func TestLedger_Prune_RemovesOnlyExpired(t *testing.T) {
	t.Parallel()
	created := time.Now()
	l := newTestLedger(created)
	gone := l.Create(policy.PendingApproval{AgentID: "gone"})

	l.now = func() time.Time { return created.Add(policy.DefaultApprovalTTL + time.Second) }
	keep := l.Create(policy.PendingApproval{AgentID: "keep"})

	if removed := l.Prune(); removed != 1 {
		t.Fatalf("Prune() removed = %d, want 1", removed)
	}
	if _, ok := l.Get(gone); ok {
		t.Error("Get(gone) found after Prune, want pruned as expired")
	}
	if _, ok := l.Get(keep); !ok {
		t.Error("Get(keep) not found after Prune, want retained as not-yet-expired")
	}
}
