// Package httpapi is Warden's HTTP transport: it translates the wire
// contract of each route into calls against *service.GatewayService
// and back into the exact status codes and JSON bodies the tool-call
// and approval contracts require.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wardenhq/warden/internal/domain/evaluator"
	"github.com/wardenhq/warden/internal/domain/policy"
	"github.com/wardenhq/warden/internal/service"
)

// maxRequestBodySize bounds tool-call and approval bodies (1 MB).
const maxRequestBodySize = 1 << 20

const defaultDecisionsLimit = 20

// Handler wires the gateway service into Warden's HTTP surface.
type Handler struct {
	gateway *service.GatewayService
	auth    *Authenticator
	metrics *Metrics
	logger  *slog.Logger
}

// NewHandler returns a Handler. metrics and logger must not be nil.
func NewHandler(gateway *service.GatewayService, auth *Authenticator, metrics *Metrics, logger *slog.Logger) *Handler {
	return &Handler{gateway: gateway, auth: auth, metrics: metrics, logger: logger}
}

// Routes returns the fully wired http.Handler for Warden's surface.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /tools/{tool}/{action}", metricsMiddleware(h.metrics, "tool_call")(http.HandlerFunc(h.handleToolCall)))
	mux.Handle("POST /approve/{id}", metricsMiddleware(h.metrics, "approve")(http.HandlerFunc(h.handleApprove)))
	mux.Handle("POST /admin/login", metricsMiddleware(h.metrics, "admin_login")(http.HandlerFunc(h.handleLogin)))
	mux.Handle("GET /admin/agents", metricsMiddleware(h.metrics, "admin_agents")(requireAdminAuth(h.auth, h.handleAgents)))
	mux.Handle("GET /admin/policies", metricsMiddleware(h.metrics, "admin_policies")(requireAdminAuth(h.auth, h.handlePolicies)))
	mux.Handle("GET /admin/decisions", metricsMiddleware(h.metrics, "admin_decisions")(requireAdminAuth(h.auth, h.handleDecisions)))
	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// handleToolCall implements the tool-call contract: headers carry the
// agent identity, the body carries parameters, and the verdict maps
// onto the status codes the gateway's callers depend on.
func (h *Handler) handleToolCall(w http.ResponseWriter, r *http.Request) {
	agentID := r.Header.Get("X-Agent-ID")
	if agentID == "" {
		respondError(w, http.StatusBadRequest, "X-Agent-ID header is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer func() { _ = r.Body.Close() }()

	var params map[string]interface{}
	if err := decodeJSONBody(r, &params); err != nil {
		respondError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	req := evaluator.Request{
		AgentID:     agentID,
		Tool:        r.PathValue("tool"),
		Action:      r.PathValue("action"),
		Params:      params,
		ParentAgent: r.Header.Get("X-Parent-Agent"),
	}

	result := h.gateway.ToolCall(r.Context(), req)
	h.metrics.PolicyDecisions.WithLabelValues(string(result.Verdict)).Inc()

	switch result.Verdict {
	case policy.VerdictAllow:
		if result.AdapterErr != nil {
			if errors.Is(result.AdapterErr, service.ErrUnknownTool) {
				respondError(w, http.StatusNotFound, "no adapter registered for this tool/action")
				return
			}
			respondError(w, http.StatusBadRequest, "tool invocation failed")
			return
		}
		writeJSON(w, http.StatusOK, result.Result)
	case policy.VerdictPendingApproval:
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"status":      "pending_approval",
			"reason":      result.Reason,
			"approval_id": result.ApprovalID,
			"message":     "this action requires human approval before it can proceed",
		})
	default:
		writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"error":  "PolicyViolation",
			"reason": result.Reason,
		})
	}
}

// approveRequest is the optional body of POST /approve/{id}.
type approveRequest struct {
	ApprovedBy string `json:"approved_by"`
}

// handleApprove implements approval redemption: no policy is re-run,
// and a successful redemption dispatches the adapter at most once.
func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer func() { _ = r.Body.Close() }()

	var body approveRequest
	if r.ContentLength != 0 {
		if err := decodeJSONBody(r, &body); err != nil {
			respondError(w, http.StatusBadRequest, "request body must be a JSON object")
			return
		}
	}

	result, err := h.gateway.Redeem(r.Context(), id, body.ApprovedBy)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "approved",
			"approval_id": result.ApprovalID,
			"result":      result.Result,
		})
	case errors.Is(err, service.ErrApprovalNotFound), errors.Is(err, service.ErrUnknownTool):
		respondError(w, http.StatusNotFound, "approval not found")
	case errors.Is(err, service.ErrApprovalExpired):
		respondError(w, http.StatusGone, "approval expired")
	default:
		respondError(w, http.StatusBadRequest, "tool invocation failed")
	}
}

// loginRequest is the body of POST /admin/login.
type loginRequest struct {
	APIKey string `json:"api_key"`
}

// handleLogin exchanges the shared admin API key for a short-lived
// bearer token, so admin clients need not hold the long-lived key.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer func() { _ = r.Body.Close() }()

	var body loginRequest
	if err := decodeJSONBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	if err := h.auth.Authenticate("Bearer " + body.APIKey); err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	token, err := h.auth.IssueToken("admin")
	if err != nil {
		h.logger.Error("failed to issue admin token", "error", err)
		respondError(w, http.StatusInternalServerError, "token issuance unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// handleAgents serves the union of agent ids from the current snapshot.
func (h *Handler) handleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": h.gateway.AllAgentIDs()})
}

// handlePolicies serves the admin policies summary.
func (h *Handler) handlePolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gateway.PoliciesSummary())
}

// handleDecisions serves the most recent decisions, bounded by
// ?limit=N (defaults to defaultDecisionsLimit, capped at the
// decision log's own capacity).
func (h *Handler) handleDecisions(w http.ResponseWriter, r *http.Request) {
	limit := defaultDecisionsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"decisions": h.gateway.RecentDecisions(limit)})
}

// decodeJSONBody decodes r.Body into v. An empty body is treated as
// "nothing to decode" rather than an error, since several routes
// accept an absent body as shorthand for an empty object.
func decodeJSONBody(r *http.Request, v interface{}) error {
	if r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
