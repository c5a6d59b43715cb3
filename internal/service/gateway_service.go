// Package service contains the orchestration layer that sits between
// the HTTP-facing adapters and the policy-evaluation core: it wires
// the evaluator, approval ledger, decision log and tool adapter
// registry together and opens the tracing spans recorded around each
// step of a tool call.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wardenhq/warden/internal/domain/evaluator"
	"github.com/wardenhq/warden/internal/domain/policy"
	"github.com/wardenhq/warden/internal/domain/tooladapter"
)

// EvaluateRequest is the gateway-level alias for the evaluator's
// request type; kept as a named alias rather than a parallel struct
// so the two packages stay in lockstep.
type EvaluateRequest = evaluator.Request

// EvaluateOutcome aliases the evaluator's outcome type.
type EvaluateOutcome = evaluator.Outcome

// Evaluator is the policy-decision surface the gateway service calls
// into. Satisfied by *evaluator.Evaluator.
type Evaluator interface {
	Evaluate(req EvaluateRequest) EvaluateOutcome
}

// Ledger is the approval-ledger surface the gateway service needs for
// redemption.
type Ledger interface {
	Get(id string) (policy.PendingApproval, bool)
	Approve(id string, approverID string) bool
	MarkExecuted(id string) bool
	StoreResult(id string, result map[string]interface{})
}

// Store exposes the admin read surface: agent ids and a policies
// summary derived from the current snapshot.
type Store interface {
	Snapshot() []policy.RuleDocument
	Version() int64
}

// DecisionLog is the admin-facing read surface over recent decisions.
type DecisionLog interface {
	Recent(limit int) []policy.DecisionRecord
}

// ToolRegistry looks up the adapter for a (tool, action) pair.
type ToolRegistry interface {
	Lookup(tool, action string) (tooladapter.Adapter, bool)
}

// ErrUnknownTool is returned by ToolCall/Redeem when no adapter is
// registered for the requested (tool, action).
var ErrUnknownTool = fmt.Errorf("unknown tool/action")

// ErrAdapterFailed wraps any error an adapter returns; its message is
// never shown to callers — adapter detail is never leaked to the caller.
var ErrAdapterFailed = fmt.Errorf("tool invocation failed")

// ErrApprovalNotFound means no ledger entry exists for the given id.
var ErrApprovalNotFound = fmt.Errorf("approval not found")

// ErrApprovalExpired means the ledger entry existed but its TTL had
// already elapsed at redemption time.
var ErrApprovalExpired = fmt.Errorf("approval expired")

// ToolCallResult is returned by ToolCall for every verdict; Handler
// maps it to the gateway's HTTP status codes and JSON bodies.
type ToolCallResult struct {
	Verdict    policy.Verdict
	Reason     string
	ApprovalID string
	Result     map[string]interface{}
	// AdapterErr is set when the verdict was allow but the adapter
	// returned an error or no adapter was registered.
	AdapterErr error
}

// RedeemResult is returned by Redeem.
type RedeemResult struct {
	ApprovalID string
	Result     map[string]interface{}
}

// GatewayService implements the gateway's two public entry points:
// the tool-call contract and approval redemption. It never returns an
// error from the adapter directly; callers get sentinel
// errors (ErrUnknownTool, ErrApprovalExpired, ...) to map to transport
// status codes.
type GatewayService struct {
	evaluator   Evaluator
	ledger      Ledger
	store       Store
	decisionLog DecisionLog
	registry    ToolRegistry
	tracer      trace.Tracer
	logger      *slog.Logger
}

// New returns a GatewayService over the given collaborators. tracer
// may be nil, in which case spans are opened against a fresh no-op
// tracer provider.
func New(eval Evaluator, ledger Ledger, store Store, decisionLog DecisionLog, registry ToolRegistry, tracer trace.Tracer, logger *slog.Logger) *GatewayService {
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("gateway")
	}
	return &GatewayService{
		evaluator:   eval,
		ledger:      ledger,
		store:       store,
		decisionLog: decisionLog,
		registry:    registry,
		tracer:      tracer,
		logger:      logger,
	}
}

// ToolCall evaluates req against policy and, on an allow verdict,
// dispatches the matching adapter. The latency recorded on the
// decision reflects only pre-dispatch work.
func (g *GatewayService) ToolCall(ctx context.Context, req EvaluateRequest) ToolCallResult {
	start := time.Now()

	ctx, span := g.tracer.Start(ctx, "policy_decision")
	span.SetAttributes(
		attribute.String("agent.id", req.AgentID),
		attribute.String("tool.name", req.Tool),
		attribute.String("tool.action", req.Action),
	)
	if req.ParentAgent != "" {
		span.SetAttributes(attribute.String("agent.parent_id", req.ParentAgent))
	}

	req.TraceID = span.SpanContext().TraceID().String()
	req.LatencyMS = float64(time.Since(start).Microseconds()) / 1000.0

	outcome := g.evaluator.Evaluate(req)

	span.SetAttributes(
		attribute.String("decision.result", string(outcome.Verdict)),
		attribute.Int64("policy.version", outcome.PolicyVersion),
	)
	if outcome.ApprovalID != "" {
		span.SetAttributes(attribute.String("approval.id", outcome.ApprovalID))
	}
	span.End()

	result := ToolCallResult{Verdict: outcome.Verdict, Reason: outcome.Reason, ApprovalID: outcome.ApprovalID}

	if outcome.Verdict != policy.VerdictAllow {
		g.logDecision(ctx, req, outcome)
		return result
	}

	adapter, ok := g.registry.Lookup(req.Tool, req.Action)
	if !ok {
		result.AdapterErr = ErrUnknownTool
		g.logDecision(ctx, req, outcome)
		return result
	}

	_, dispatchSpan := g.tracer.Start(ctx, "tool_call")
	dispatchSpan.SetAttributes(
		attribute.String("agent.id", req.AgentID),
		attribute.String("tool.name", req.Tool),
		attribute.String("tool.action", req.Action),
		attribute.Int64("policy.version", outcome.PolicyVersion),
	)
	dispatchResult, err := adapter(req.Params)
	dispatchSpan.End()

	if err != nil {
		g.logger.Error("adapter invocation failed", "tool", req.Tool, "action", req.Action, "error", err)
		result.AdapterErr = ErrAdapterFailed
		g.logDecision(ctx, req, outcome)
		return result
	}

	result.Result = dispatchResult
	g.logDecision(ctx, req, outcome)
	return result
}

func (g *GatewayService) logDecision(_ context.Context, req EvaluateRequest, outcome EvaluateOutcome) {
	paramsHash := ""
	if data, err := json.Marshal(req.Params); err == nil {
		sum := sha256.Sum256(data)
		paramsHash = hex.EncodeToString(sum[:])
	}
	fields := []any{
		"agent.id", req.AgentID,
		"tool.name", req.Tool,
		"tool.action", req.Action,
		"params_hash", paramsHash,
		"decision.result", outcome.Verdict,
		"policy.version", outcome.PolicyVersion,
	}
	if req.ParentAgent != "" {
		fields = append(fields, "agent.parent_id", req.ParentAgent)
	}
	if outcome.ApprovalID != "" {
		fields = append(fields, "approval.id", outcome.ApprovalID)
	}
	g.logger.Info(string(outcome.Verdict), fields...)
}

// Redeem implements approval redemption: it looks up
// the ledger entry, approves it, and dispatches the adapter exactly
// once, replaying the cached result on any later call for the same
// id rather than re-invoking the adapter or re-running policy.
func (g *GatewayService) Redeem(ctx context.Context, approvalID, approverID string) (RedeemResult, error) {
	entry, ok := g.ledger.Get(approvalID)
	if !ok {
		return RedeemResult{}, ErrApprovalNotFound
	}

	if !g.ledger.Approve(approvalID, approverID) {
		return RedeemResult{}, ErrApprovalExpired
	}

	if !g.ledger.MarkExecuted(approvalID) {
		// Already executed (or expired between Get and MarkExecuted):
		// re-fetch for the cached result rather than re-dispatching.
		replay, ok := g.ledger.Get(approvalID)
		if !ok {
			return RedeemResult{}, ErrApprovalNotFound
		}
		return RedeemResult{ApprovalID: approvalID, Result: replay.Result}, nil
	}

	adapter, ok := g.registry.Lookup(entry.Tool, entry.Action)
	if !ok {
		return RedeemResult{}, ErrUnknownTool
	}

	_, span := g.tracer.Start(ctx, "tool_call")
	span.SetAttributes(
		attribute.String("agent.id", entry.AgentID),
		attribute.String("tool.name", entry.Tool),
		attribute.String("tool.action", entry.Action),
		attribute.String("approval.id", approvalID),
	)
	dispatchResult, err := adapter(entry.Params)
	span.End()

	if err != nil {
		g.logger.Error("adapter invocation failed on redemption", "approval_id", approvalID, "error", err)
		return RedeemResult{}, ErrAdapterFailed
	}

	g.ledger.StoreResult(approvalID, dispatchResult)
	g.logger.Info("approved_action", "approval.id", approvalID, "agent.id", entry.AgentID, "tool.name", entry.Tool, "tool.action", entry.Action, "approved_by", approverID)

	return RedeemResult{ApprovalID: approvalID, Result: dispatchResult}, nil
}

// AllAgentIDs returns the union of agent ids from the current
// snapshot.
func (g *GatewayService) AllAgentIDs() []string {
	docs := g.store.Snapshot()
	ids := make([]string, 0)
	for _, doc := range docs {
		for _, agent := range doc.Agents {
			ids = append(ids, agent.ID)
		}
	}
	return ids
}

// PoliciesSummary is the admin summary of the current policy set.
type PoliciesSummary struct {
	Version        int64    `json:"version"`
	FileNames      []string `json:"file_names"`
	AgentIDs       []string `json:"agent_ids"`
	TotalRuleCount int      `json:"total_rule_count"`
}

// PoliciesSummary reports {version, file_names, agent_ids, total_rule_count}.
func (g *GatewayService) PoliciesSummary() PoliciesSummary {
	docs := g.store.Snapshot()
	summary := PoliciesSummary{
		Version:   g.store.Version(),
		FileNames: make([]string, 0, len(docs)),
		AgentIDs:  make([]string, 0),
	}
	for _, doc := range docs {
		summary.FileNames = append(summary.FileNames, doc.FileName)
		for _, agent := range doc.Agents {
			summary.AgentIDs = append(summary.AgentIDs, agent.ID)
			summary.TotalRuleCount += len(agent.Allow)
		}
	}
	return summary
}

// RecentDecisions delegates to the decision log.
func (g *GatewayService) RecentDecisions(limit int) []policy.DecisionRecord {
	return g.decisionLog.Recent(limit)
}
