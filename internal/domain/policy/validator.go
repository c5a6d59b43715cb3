package policy

import (
	"fmt"
	"regexp"
	"strings"
)

// agentIDPattern matches the allowed agent id shape: alphanumeric,
// underscore, dash, 1-100 chars.
var agentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

// currencyPattern matches an ISO-4217-shaped code: three uppercase letters.
var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// paymentsLikeTools and fileLikeTools classify tool namespaces for the
// invariant-3 cross-field check (a condition field meaningful for one
// family is meaningless, and therefore rejected, for the other).
var paymentsLikeTools = map[string]bool{"payments": true}
var fileLikeTools = map[string]bool{"files": true}

const maxAmountCeiling = 1e6

// ValidateDocument runs the shape and business validation phases
// against a single parsed rule document. It returns a *ValidationError
// with every issue found, or nil if the document is acceptable. The
// validator has no side effects.
func ValidateDocument(doc *RuleDocument) *ValidationError {
	verr := &ValidationError{}

	if doc.Version < 1 {
		verr.Add(doc.FileName, "$.version", "version must be an integer >= 1")
	}
	if len(doc.Agents) == 0 {
		verr.Add(doc.FileName, "$.agents", "agents must be a non-empty sequence")
		return verr
	}

	seenAgentIDs := make(map[string]bool, len(doc.Agents))
	for ai, agent := range doc.Agents {
		agentPath := fmt.Sprintf("$.agents[%d]", ai)

		if !agentIDPattern.MatchString(agent.ID) {
			verr.Add(doc.FileName, agentPath+".id", fmt.Sprintf("id %q must match ^[A-Za-z0-9_-]{1,100}$", agent.ID))
		}
		if seenAgentIDs[agent.ID] {
			verr.Add(doc.FileName, agentPath+".id", fmt.Sprintf("duplicate agent id %q within file", agent.ID))
		}
		seenAgentIDs[agent.ID] = true

		if len(agent.Allow) == 0 {
			verr.Add(doc.FileName, agentPath+".allow", "allow must be a non-empty sequence")
			continue
		}

		validateAgentRules(doc.FileName, agentPath, agent, verr)
	}

	if verr.HasIssues() {
		return verr
	}
	return nil
}

// validateAgentRules validates one agent's allow rules: shape of each
// rule, (tool,action) disjointness within the agent, and condition/tool
// compatibility (invariant 3).
func validateAgentRules(file, agentPath string, agent AgentSpec, verr *ValidationError) {
	// tool -> action -> rule index, for overlap detection.
	claimed := make(map[string]map[string]int)

	for ri, rule := range agent.Allow {
		rulePath := fmt.Sprintf("%s.allow[%d]", agentPath, ri)

		if rule.Tool == "" {
			verr.Add(file, rulePath+".tool", "tool is required")
		}
		if len(rule.Actions) == 0 {
			verr.Add(file, rulePath+".actions", "actions must be a non-empty sequence")
		}

		if claimed[rule.Tool] == nil {
			claimed[rule.Tool] = make(map[string]int)
		}
		for _, action := range rule.Actions {
			if prior, ok := claimed[rule.Tool][action]; ok {
				verr.Add(file, rulePath+".actions", fmt.Sprintf(
					"action %q for tool %q overlaps with allow[%d]: action sets for the same tool must be disjoint within one agent",
					action, rule.Tool, prior))
				continue
			}
			claimed[rule.Tool][action] = ri
		}

		validateConditions(file, rulePath, rule, verr)
	}
}

// validateConditions checks a condition block's field types/ranges and
// its compatibility with the rule's tool (invariant 3).
func validateConditions(file, rulePath string, rule AllowRule, verr *ValidationError) {
	cond := rule.Conditions
	if cond == nil {
		return
	}
	condPath := rulePath + ".conditions"

	if cond.MaxAmount != nil {
		if *cond.MaxAmount <= 0 || *cond.MaxAmount > maxAmountCeiling {
			verr.Add(file, condPath+".max_amount", fmt.Sprintf("max_amount %v must satisfy 0 < x <= %v", *cond.MaxAmount, maxAmountCeiling))
		}
		if fileLikeTools[rule.Tool] {
			verr.Add(file, condPath+".max_amount", fmt.Sprintf("max_amount is not meaningful for file-like tool %q", rule.Tool))
		}
	}

	if len(cond.Currencies) > 0 {
		for _, c := range cond.Currencies {
			if !currencyPattern.MatchString(c) {
				verr.Add(file, condPath+".currencies", fmt.Sprintf("currency %q must be an ISO-4217-shaped code (e.g. USD)", c))
			}
		}
		if fileLikeTools[rule.Tool] {
			verr.Add(file, condPath+".currencies", fmt.Sprintf("currencies is not meaningful for file-like tool %q", rule.Tool))
		}
	}

	if cond.FolderPrefix != "" {
		if !strings.HasPrefix(cond.FolderPrefix, "/") {
			verr.Add(file, condPath+".folder_prefix", fmt.Sprintf("folder_prefix %q must start with /", cond.FolderPrefix))
		}
		if paymentsLikeTools[rule.Tool] {
			verr.Add(file, condPath+".folder_prefix", fmt.Sprintf("folder_prefix is not meaningful for payments-like tool %q", rule.Tool))
		}
	}

	if cond.MaxChainDepth != nil && *cond.MaxChainDepth < 0 {
		verr.Add(file, condPath+".max_chain_depth", "max_chain_depth must be >= 0")
	}
}

// ValidateGlobal runs the global phase: rejects an update whose
// combined documents contain the same agent id from two different
// files.
func ValidateGlobal(docs []*RuleDocument) *ValidationError {
	verr := &ValidationError{}
	owner := make(map[string]string) // agent id -> file name

	for _, doc := range docs {
		for _, agent := range doc.Agents {
			if existing, ok := owner[agent.ID]; ok && existing != doc.FileName {
				verr.Add(doc.FileName, fmt.Sprintf("$.agents[id=%s]", agent.ID),
					fmt.Sprintf("agent id %q is also defined in %q: agent ids must be globally unique", agent.ID, existing))
				continue
			}
			owner[agent.ID] = doc.FileName
		}
	}

	if verr.HasIssues() {
		return verr
	}
	return nil
}
