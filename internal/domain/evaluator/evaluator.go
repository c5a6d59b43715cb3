// Package evaluator implements the gateway's rule-matching algorithm:
// it selects the first matching allow rule for an agent/tool/action
// triple, checks that rule's conditions in a fixed order, and records
// the outcome.
package evaluator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wardenhq/warden/internal/domain/policy"
)

// Store is the read surface the evaluator needs from the policy
// store: agent lookup and the current generation number.
type Store interface {
	LookupAgent(id string) (policy.AgentSpec, bool)
	Version() int64
}

// Ledger is the write surface the evaluator needs to defer a call
// pending human approval.
type Ledger interface {
	Create(request policy.PendingApproval) string
}

// DecisionLog is the append surface for the audit trail.
type DecisionLog interface {
	Append(record policy.DecisionRecord)
}

// Evaluator composes a policy store, approval ledger and decision log
// to answer "is this tool call allowed". Its only mutable state of its
// own is the idempotency cache used by EvaluateIdempotent.
type Evaluator struct {
	store       Store
	ledger      Ledger
	decisionLog DecisionLog
	idempotency *idempotencyCache
}

// defaultIdempotencyCacheSize bounds the number of recent (agent,
// tool, action, chain, params) shapes remembered for EvaluateIdempotent.
const defaultIdempotencyCacheSize = 1000

// New returns an Evaluator over the given collaborators.
func New(store Store, ledger Ledger, decisionLog DecisionLog) *Evaluator {
	return &Evaluator{
		store:       store,
		ledger:      ledger,
		decisionLog: decisionLog,
		idempotency: newIdempotencyCache(defaultIdempotencyCacheSize),
	}
}

// Request is the input to Evaluate: one candidate tool call.
type Request struct {
	AgentID     string
	Tool        string
	Action      string
	Params      map[string]interface{}
	ParentAgent string
	TraceID     string
	LatencyMS   float64
}

// Outcome is the result of Evaluate. PolicyVersion is the store
// generation read when evaluation began, pinned once in decide rather
// than re-read later, so every consumer of an Outcome (the decision
// log, tracing spans) attributes it to the same snapshot the decision
// was actually made against.
type Outcome struct {
	Verdict       policy.Verdict
	Reason        string
	ApprovalID    string
	PolicyVersion int64
}

// Evaluate runs the rule-matching algorithm against req and appends a
// DecisionRecord to the decision log before returning.
func (e *Evaluator) Evaluate(req Request) Outcome {
	chain := buildCallerChain(req.ParentAgent)
	outcome := e.decide(req, chain)

	e.decisionLog.Append(policy.DecisionRecord{
		Timestamp:     time.Now().UTC(),
		AgentID:       req.AgentID,
		ParentAgent:   req.ParentAgent,
		CallerChain:   chain,
		Tool:          req.Tool,
		Action:        req.Action,
		ParamsHash:    hashParams(req.Params),
		Verdict:       outcome.Verdict,
		Reason:        outcome.Reason,
		PolicyVersion: outcome.PolicyVersion,
		LatencyMS:     req.LatencyMS,
		TraceID:       req.TraceID,
		ApprovalID:    outcome.ApprovalID,
	})
	return outcome
}

// EvaluateIdempotent behaves like Evaluate, except that a request
// whose (agent, tool, action, chain, params) shape matches one seen
// recently returns the cached Outcome directly instead of appending a
// fresh decision record or minting a second pending approval. It
// exists for callers that may retry an HTTP request after a timeout
// and want the retry to be a no-op rather than a duplicate side
// effect; a genuinely new request is always evaluated in full.
func (e *Evaluator) EvaluateIdempotent(req Request) Outcome {
	chain := buildCallerChain(req.ParentAgent)
	key := computeIdempotencyKey(req.AgentID, req.Tool, req.Action, chain, req.Params)

	if outcome, ok := e.idempotency.get(key); ok {
		return outcome
	}
	outcome := e.Evaluate(req)
	e.idempotency.put(key, outcome)
	return outcome
}

// buildCallerChain reconstructs the caller chain only from the
// immediate parent header, never from storage — a single-hop
// limitation, not a multi-level lookup.
func buildCallerChain(parentAgent string) []string {
	if parentAgent == "" {
		return nil
	}
	return []string{parentAgent}
}

func (e *Evaluator) decide(req Request, chain []string) Outcome {
	// Pinned once, before the agent lookup, so every Outcome this call
	// produces is attributed to the exact snapshot evaluation read.
	version := e.store.Version()

	agent, ok := e.store.LookupAgent(req.AgentID)
	if !ok {
		return Outcome{Verdict: policy.VerdictDeny, Reason: fmt.Sprintf("agent %s not found in policies", req.AgentID), PolicyVersion: version}
	}

	rule, found := selectRule(agent, req.Tool, req.Action)
	if !found {
		return Outcome{Verdict: policy.VerdictDeny, Reason: fmt.Sprintf("agent %s not allowed to perform %s/%s", req.AgentID, req.Tool, req.Action), PolicyVersion: version}
	}

	if reason, failed := checkConditions(rule.Conditions, req.Params, chain); failed {
		return Outcome{Verdict: policy.VerdictDeny, Reason: reason, PolicyVersion: version}
	}

	if !rule.RequiresApproval {
		return Outcome{Verdict: policy.VerdictAllow, Reason: "Allowed by policy", PolicyVersion: version}
	}

	approvalID := e.ledger.Create(policy.PendingApproval{
		AgentID:     req.AgentID,
		ParentAgent: req.ParentAgent,
		CallerChain: chain,
		Tool:        req.Tool,
		Action:      req.Action,
		Params:      req.Params,
		Reason:      "Allowed by policy, pending approval",
	})
	return Outcome{
		Verdict:       policy.VerdictPendingApproval,
		Reason:        fmt.Sprintf("Action requires approval (ID: %s)", approvalID),
		ApprovalID:    approvalID,
		PolicyVersion: version,
	}
}

// selectRule scans the agent's allow rules in declaration order and
// returns the first whose tool matches and whose action set contains
// the requested action. No further rules are considered once one
// matches, even if a later rule would also match.
func selectRule(agent policy.AgentSpec, tool, action string) (policy.AllowRule, bool) {
	for _, rule := range agent.Allow {
		if rule.Tool != tool {
			continue
		}
		for _, a := range rule.Actions {
			if a == action {
				return rule, true
			}
		}
	}
	return policy.AllowRule{}, false
}

// checkConditions evaluates cond in a fixed order, returning the first
// failing condition's reason. A condition field absent from params (or
// the chain, for chain conditions) is satisfied vacuously.
func checkConditions(cond *policy.Conditions, params map[string]interface{}, chain []string) (string, bool) {
	if cond == nil {
		return "", false
	}

	if cond.MaxAmount != nil {
		if amount, ok := numericParam(params, "amount"); ok && amount > *cond.MaxAmount {
			return fmt.Sprintf("amount %v exceeds max_amount %v", amount, *cond.MaxAmount), true
		}
	}

	if len(cond.Currencies) > 0 {
		if currency, ok := params["currency"].(string); ok {
			if !containsString(cond.Currencies, currency) {
				return fmt.Sprintf("currency %q not in allowed set %v", currency, cond.Currencies), true
			}
		}
	}

	if cond.FolderPrefix != "" {
		if path, ok := params["path"].(string); ok {
			if !hasFolderPrefix(path, cond.FolderPrefix) {
				return fmt.Sprintf("path %q does not start with required prefix %q", path, cond.FolderPrefix), true
			}
		}
	}

	if cond.MaxChainDepth != nil {
		if len(chain) > *cond.MaxChainDepth {
			return fmt.Sprintf("caller chain depth %d exceeds max_chain_depth %d", len(chain), *cond.MaxChainDepth), true
		}
	}

	if len(cond.ForbiddenAncestors) > 0 {
		for _, ancestor := range chain {
			if containsString(cond.ForbiddenAncestors, ancestor) {
				return fmt.Sprintf("caller chain contains forbidden ancestor %q", ancestor), true
			}
		}
	}

	if len(cond.RequiredAncestors) > 0 {
		for _, required := range cond.RequiredAncestors {
			if !containsString(chain, required) {
				return fmt.Sprintf("caller chain missing required ancestor %q", required), true
			}
		}
	}

	return "", false
}

func numericParam(params map[string]interface{}, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func hasFolderPrefix(path, prefix string) bool {
	if len(path) < len(prefix) {
		return false
	}
	return path[:len(prefix)] == prefix
}

func containsString(set []string, want string) bool {
	for _, s := range set {
		if s == want {
			return true
		}
	}
	return false
}

// hashParams returns the hex-encoded SHA-256 of params serialized as
// compact JSON. encoding/json sorts map keys at every depth and
// produces the shortest round-trip float representation, which is all
// the canonicalization this needs — no third-party canonical-JSON
// library required.
func hashParams(params map[string]interface{}) string {
	data, err := json.Marshal(params)
	if err != nil {
		// params originate from a decoded JSON request body, so every
		// value is already JSON-representable; this path is
		// unreachable in practice.
		data = []byte("{}")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
