// Package policy contains the domain types for Warden's policy corpus:
// rule documents, agent specs, allow rules, conditions, decision
// records and pending approvals.
package policy

import "time"

// Verdict is the outcome of evaluating a tool call against policy.
type Verdict string

const (
	// VerdictAllow permits the tool call to proceed immediately.
	VerdictAllow Verdict = "allow"
	// VerdictDeny blocks the tool call.
	VerdictDeny Verdict = "deny"
	// VerdictPendingApproval defers the tool call pending human approval.
	VerdictPendingApproval Verdict = "pending_approval"
)

// Conditions constrains when an AllowRule applies. All fields are
// optional; an absent field is unconstrained.
type Conditions struct {
	// MaxAmount is the inclusive upper bound on params.amount.
	MaxAmount *float64 `yaml:"max_amount,omitempty"`
	// Currencies is the allowed set of ISO-4217-shaped currency codes.
	Currencies []string `yaml:"currencies,omitempty"`
	// FolderPrefix is the required leading substring of params.path.
	FolderPrefix string `yaml:"folder_prefix,omitempty"`
	// MaxChainDepth is the inclusive upper bound on caller-chain length.
	MaxChainDepth *int `yaml:"max_chain_depth,omitempty"`
	// ForbiddenAncestors lists agent ids that may not appear in the chain.
	ForbiddenAncestors []string `yaml:"forbidden_ancestors,omitempty"`
	// RequiredAncestors lists agent ids that must all appear in the chain.
	RequiredAncestors []string `yaml:"required_ancestors,omitempty"`
}

// HasAny reports whether any condition field is set.
func (c *Conditions) HasAny() bool {
	if c == nil {
		return false
	}
	return c.MaxAmount != nil || len(c.Currencies) > 0 || c.FolderPrefix != "" ||
		c.MaxChainDepth != nil || len(c.ForbiddenAncestors) > 0 || len(c.RequiredAncestors) > 0
}

// AllowRule is one (tool, action-set, conditions, requires_approval)
// tuple inside an agent spec.
type AllowRule struct {
	Tool             string      `yaml:"tool"`
	Actions          []string    `yaml:"actions"`
	Conditions       *Conditions `yaml:"conditions,omitempty"`
	RequiresApproval bool        `yaml:"requires_approval,omitempty"`
}

// ActionSet returns the rule's actions as a set for overlap checks.
func (r *AllowRule) ActionSet() map[string]struct{} {
	set := make(map[string]struct{}, len(r.Actions))
	for _, a := range r.Actions {
		set[a] = struct{}{}
	}
	return set
}

// AgentSpec is one agent identity and its allow rules.
type AgentSpec struct {
	ID    string      `yaml:"id"`
	Allow []AllowRule `yaml:"allow"`
}

// RuleDocument is the parsed, validated contents of one policy file.
type RuleDocument struct {
	Version int         `yaml:"version"`
	Agents  []AgentSpec `yaml:"agents"`

	// FileName records which file this document came from, for error
	// reporting and the admin summary. Not part of the YAML shape.
	FileName string `yaml:"-"`
}

// DecisionRecord is an immutable, append-only audit row describing one
// evaluation outcome.
type DecisionRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	AgentID       string    `json:"agent_id"`
	ParentAgent   string    `json:"parent_agent,omitempty"`
	CallerChain   []string  `json:"caller_chain,omitempty"`
	Tool          string    `json:"tool"`
	Action        string    `json:"action"`
	ParamsHash    string    `json:"params_hash"`
	Verdict       Verdict   `json:"verdict"`
	Reason        string    `json:"reason"`
	PolicyVersion int64     `json:"policy_version"`
	LatencyMS     float64   `json:"latency_ms"`
	TraceID       string    `json:"trace_id,omitempty"`
	ApprovalID    string    `json:"approval_id,omitempty"`
}

// PendingApproval is a deferred tool call awaiting an external
// approver. The ledger fills in ApproverID/ApprovedAt on approval,
// Executed/ExecutedAt on the single dispatch, and then Result.
type PendingApproval struct {
	ID           string                 `json:"id"`
	CreatedAt    time.Time              `json:"created_at"`
	AgentID      string                 `json:"agent_id"`
	ParentAgent  string                 `json:"parent_agent,omitempty"`
	CallerChain  []string               `json:"caller_chain,omitempty"`
	Tool         string                 `json:"tool"`
	Action       string                 `json:"action"`
	Params       map[string]interface{} `json:"params"`
	Reason       string                 `json:"reason"`
	ExpiresAt    time.Time              `json:"expires_at"`
	ApproverID   string                 `json:"approver_id,omitempty"`
	ApprovedAt   *time.Time             `json:"approved_at,omitempty"`
	Executed     bool                   `json:"executed"`
	ExecutedAt   *time.Time             `json:"executed_at,omitempty"`

	// Result caches the adapter's response from the one successful
	// dispatch, so a replayed POST /approve/{id} can return the same
	// envelope instead of invoking the adapter a second time.
	Result map[string]interface{} `json:"result,omitempty"`
}

// DefaultApprovalTTL is the fixed lifetime of a pending approval.
const DefaultApprovalTTL = 24 * time.Hour
