package evaluator

import (
	"testing"

	"github.com/wardenhq/warden/internal/domain/decisionlog"
	"github.com/wardenhq/warden/internal/domain/ledger"
	"github.com/wardenhq/warden/internal/domain/policy"
)

type fakeStore struct {
	agents  map[string]policy.AgentSpec
	version int64
}

func newFakeStore(agents ...policy.AgentSpec) *fakeStore {
	s := &fakeStore{agents: map[string]policy.AgentSpec{}, version: 1}
	for _, a := range agents {
		s.agents[a.ID] = a
	}
	return s
}

func (s *fakeStore) LookupAgent(id string) (policy.AgentSpec, bool) {
	a, ok := s.agents[id]
	return a, ok
}

func (s *fakeStore) Version() int64 { return s.version }

func newHarness(agents ...policy.AgentSpec) (*Evaluator, *decisionlog.Log, *ledger.Ledger) {
	store := newFakeStore(agents...)
	log := decisionlog.New()
	led := ledger.New()
	return New(store, led, log), log, led
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestEvaluate_AgentNotFound(t *testing.T) {
	t.Parallel()
	eval, _, _ := newHarness()

	out := eval.Evaluate(Request{AgentID: "ghost", Tool: "payments", Action: "create"})
	if out.Verdict != policy.VerdictDeny {
		t.Fatalf("Verdict = %s, want deny", out.Verdict)
	}
	if out.Reason != "agent ghost not found in policies" {
		t.Errorf("Reason = %q", out.Reason)
	}
}

func TestEvaluate_NoMatchingRule(t *testing.T) {
	t.Parallel()
	eval, _, _ := newHarness(policy.AgentSpec{
		ID:    "bot",
		Allow: []policy.AllowRule{{Tool: "files", Actions: []string{"read"}}},
	})

	out := eval.Evaluate(Request{AgentID: "bot", Tool: "payments", Action: "create"})
	if out.Verdict != policy.VerdictDeny {
		t.Fatalf("Verdict = %s, want deny", out.Verdict)
	}
	if out.Reason != "agent bot not allowed to perform payments/create" {
		t.Errorf("Reason = %q", out.Reason)
	}
}

func TestEvaluate_AllowNoConditions(t *testing.T) {
	t.Parallel()
	eval, log, _ := newHarness(policy.AgentSpec{
		ID:    "bot",
		Allow: []policy.AllowRule{{Tool: "files", Actions: []string{"read"}}},
	})

	out := eval.Evaluate(Request{AgentID: "bot", Tool: "files", Action: "read", Params: map[string]interface{}{"path": "/tmp/x"}})
	if out.Verdict != policy.VerdictAllow {
		t.Fatalf("Verdict = %s, want allow", out.Verdict)
	}
	if log.Len() != 1 {
		t.Fatalf("decision log len = %d, want 1", log.Len())
	}
}

func TestEvaluate_MaxAmountExceeded(t *testing.T) {
	t.Parallel()
	eval, _, _ := newHarness(policy.AgentSpec{
		ID: "bot",
		Allow: []policy.AllowRule{{
			Tool: "payments", Actions: []string{"create"},
			Conditions: &policy.Conditions{MaxAmount: floatPtr(500)},
		}},
	})

	out := eval.Evaluate(Request{AgentID: "bot", Tool: "payments", Action: "create", Params: map[string]interface{}{"amount": 501.0}})
	if out.Verdict != policy.VerdictDeny {
		t.Fatalf("Verdict = %s, want deny", out.Verdict)
	}
}

func TestEvaluate_MaxAmountExactlyAtBoundAllowed(t *testing.T) {
	t.Parallel()
	eval, _, _ := newHarness(policy.AgentSpec{
		ID: "bot",
		Allow: []policy.AllowRule{{
			Tool: "payments", Actions: []string{"create"},
			Conditions: &policy.Conditions{MaxAmount: floatPtr(500)},
		}},
	})

	out := eval.Evaluate(Request{AgentID: "bot", Tool: "payments", Action: "create", Params: map[string]interface{}{"amount": 500.0}})
	if out.Verdict != policy.VerdictAllow {
		t.Fatalf("Verdict = %s, want allow at exact boundary (strict > comparison)", out.Verdict)
	}
}

func TestEvaluate_AbsentParamSatisfiesConditionVacuously(t *testing.T) {
	t.Parallel()
	eval, _, _ := newHarness(policy.AgentSpec{
		ID: "bot",
		Allow: []policy.AllowRule{{
			Tool: "payments", Actions: []string{"create"},
			Conditions: &policy.Conditions{MaxAmount: floatPtr(500)},
		}},
	})

	out := eval.Evaluate(Request{AgentID: "bot", Tool: "payments", Action: "create", Params: map[string]interface{}{}})
	if out.Verdict != policy.VerdictAllow {
		t.Fatalf("Verdict = %s, want allow when amount param is absent", out.Verdict)
	}
}

func TestEvaluate_ConditionOrder_MaxAmountCheckedBeforeCurrencies(t *testing.T) {
	t.Parallel()
	eval, _, _ := newHarness(policy.AgentSpec{
		ID: "bot",
		Allow: []policy.AllowRule{{
			Tool: "payments", Actions: []string{"create"},
			Conditions: &policy.Conditions{MaxAmount: floatPtr(100), Currencies: []string{"USD"}},
		}},
	})

	out := eval.Evaluate(Request{
		AgentID: "bot", Tool: "payments", Action: "create",
		Params: map[string]interface{}{"amount": 9999.0, "currency": "EUR"},
	})
	if out.Verdict != policy.VerdictDeny {
		t.Fatalf("Verdict = %s, want deny", out.Verdict)
	}
	if out.Reason != "amount 9999 exceeds max_amount 100" {
		t.Errorf("Reason = %q, want the max_amount failure since it is checked first", out.Reason)
	}
}

func TestEvaluate_FirstMatchingRuleWins(t *testing.T) {
	t.Parallel()
	eval, _, _ := newHarness(policy.AgentSpec{
		ID: "bot",
		Allow: []policy.AllowRule{
			{Tool: "payments", Actions: []string{"create"}, Conditions: &policy.Conditions{MaxAmount: floatPtr(10)}},
			{Tool: "payments", Actions: []string{"refund"}},
		},
	})

	out := eval.Evaluate(Request{AgentID: "bot", Tool: "payments", Action: "create", Params: map[string]interface{}{"amount": 9999.0}})
	if out.Verdict != policy.VerdictDeny {
		t.Fatalf("Verdict = %s, want deny from the first matching rule's condition failure", out.Verdict)
	}
}

func TestEvaluate_ChainConditions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		cond        policy.Conditions
		parentAgent string
		wantVerdict policy.Verdict
	}{
		{
			name:        "max_chain_depth exceeded",
			cond:        policy.Conditions{MaxChainDepth: intPtr(0)},
			parentAgent: "manager-bot",
			wantVerdict: policy.VerdictDeny,
		},
		{
			name:        "forbidden ancestor present",
			cond:        policy.Conditions{ForbiddenAncestors: []string{"manager-bot"}},
			parentAgent: "manager-bot",
			wantVerdict: policy.VerdictDeny,
		},
		{
			name:        "required ancestor missing",
			cond:        policy.Conditions{RequiredAncestors: []string{"manager-bot"}},
			parentAgent: "",
			wantVerdict: policy.VerdictDeny,
		},
		{
			name:        "required ancestor present",
			cond:        policy.Conditions{RequiredAncestors: []string{"manager-bot"}},
			parentAgent: "manager-bot",
			wantVerdict: policy.VerdictAllow,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			eval, _, _ := newHarness(policy.AgentSpec{
				ID:    "bot",
				Allow: []policy.AllowRule{{Tool: "files", Actions: []string{"read"}, Conditions: &tc.cond}},
			})
			out := eval.Evaluate(Request{AgentID: "bot", Tool: "files", Action: "read", ParentAgent: tc.parentAgent})
			if out.Verdict != tc.wantVerdict {
				t.Errorf("Verdict = %s, want %s (reason: %s)", out.Verdict, tc.wantVerdict, out.Reason)
			}
		})
	}
}

func TestEvaluate_RequiresApprovalCreatesLedgerEntry(t *testing.T) {
	t.Parallel()
	eval, log, led := newHarness(policy.AgentSpec{
		ID:    "bot",
		Allow: []policy.AllowRule{{Tool: "payments", Actions: []string{"create"}, RequiresApproval: true}},
	})

	out := eval.Evaluate(Request{AgentID: "bot", Tool: "payments", Action: "create", Params: map[string]interface{}{"amount": 10.0}})
	if out.Verdict != policy.VerdictPendingApproval {
		t.Fatalf("Verdict = %s, want pending_approval", out.Verdict)
	}
	if out.ApprovalID == "" {
		t.Fatal("ApprovalID is empty")
	}
	if _, ok := led.Get(out.ApprovalID); !ok {
		t.Error("ledger has no entry for the returned approval id")
	}

	recent := log.Recent(1)
	if len(recent) != 1 || recent[0].ApprovalID != out.ApprovalID {
		t.Errorf("decision record approval id = %v, want %s", recent, out.ApprovalID)
	}
}

func TestEvaluateIdempotent_DuplicateRequestHitsCache(t *testing.T) {
	t.Parallel()
	eval, log, _ := newHarness(policy.AgentSpec{
		ID:    "bot",
		Allow: []policy.AllowRule{{Tool: "payments", Actions: []string{"create"}, RequiresApproval: true}},
	})

	req := Request{AgentID: "bot", Tool: "payments", Action: "create", Params: map[string]interface{}{"amount": 10.0}}
	first := eval.EvaluateIdempotent(req)
	second := eval.EvaluateIdempotent(req)

	if first.ApprovalID != second.ApprovalID {
		t.Errorf("approval ids differ across a duplicate request: %s vs %s", first.ApprovalID, second.ApprovalID)
	}
	if log.Len() != 1 {
		t.Errorf("decision log len = %d, want 1 (second call served from cache)", log.Len())
	}
}

func TestEvaluateIdempotent_DifferentParamsMiss(t *testing.T) {
	t.Parallel()
	eval, log, _ := newHarness(policy.AgentSpec{
		ID:    "bot",
		Allow: []policy.AllowRule{{Tool: "files", Actions: []string{"read"}}},
	})

	eval.EvaluateIdempotent(Request{AgentID: "bot", Tool: "files", Action: "read", Params: map[string]interface{}{"path": "/a"}})
	eval.EvaluateIdempotent(Request{AgentID: "bot", Tool: "files", Action: "read", Params: map[string]interface{}{"path": "/b"}})

	if log.Len() != 2 {
		t.Errorf("decision log len = %d, want 2 (distinct requests both evaluated)", log.Len())
	}
}

func TestEvaluate_ParamsHashIsDeterministicRegardlessOfKeyOrder(t *testing.T) {
	t.Parallel()
	eval, log, _ := newHarness(policy.AgentSpec{
		ID:    "bot",
		Allow: []policy.AllowRule{{Tool: "files", Actions: []string{"read"}}},
	})

	eval.Evaluate(Request{AgentID: "bot", Tool: "files", Action: "read", Params: map[string]interface{}{"b": 2, "a": 1}})
	eval.Evaluate(Request{AgentID: "bot", Tool: "files", Action: "read", Params: map[string]interface{}{"a": 1, "b": 2}})

	recent := log.Recent(2)
	if recent[0].ParamsHash != recent[1].ParamsHash {
		t.Errorf("hashes differ for equivalent params with different key order: %s vs %s", recent[0].ParamsHash, recent[1].ParamsHash)
	}
}
