package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/wardenhq/warden/internal/domain/decisionlog"
	"github.com/wardenhq/warden/internal/domain/evaluator"
	"github.com/wardenhq/warden/internal/domain/ledger"
	"github.com/wardenhq/warden/internal/domain/policy"
	"github.com/wardenhq/warden/internal/domain/tooladapter"
	"github.com/wardenhq/warden/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore is a minimal evaluator.Store/service.Store double so
// handler tests don't need a real policy directory on disk.
type fakeStore struct {
	agents  map[string]policy.AgentSpec
	version int64
}

func (s *fakeStore) LookupAgent(id string) (policy.AgentSpec, bool) {
	a, ok := s.agents[id]
	return a, ok
}
func (s *fakeStore) Version() int64 { return s.version }
func (s *fakeStore) Snapshot() []policy.RuleDocument {
	doc := policy.RuleDocument{Version: 1, FileName: "fake.yaml"}
	for _, a := range s.agents {
		doc.Agents = append(doc.Agents, a)
	}
	return []policy.RuleDocument{doc}
}

func newTestHandler(t *testing.T, agents map[string]policy.AgentSpec, auth *Authenticator) *Handler {
	t.Helper()
	store := &fakeStore{agents: agents, version: 1}
	decisionLog := decisionlog.New()
	ledgerInstance := ledger.New()
	eval := evaluator.New(store, ledgerInstance, decisionLog)
	registry := tooladapter.NewRegistry()
	gateway := service.New(eval, ledgerInstance, store, decisionLog, registry, trace.NewNoopTracerProvider().Tracer("test"), discardLogger())
	if auth == nil {
		auth = NewAuthenticator("", "", time.Minute)
	}
	return NewHandler(gateway, auth, NewMetrics(nil), discardLogger())
}

func TestHandleToolCall_MissingAgentHeader(t *testing.T) {
	h := newTestHandler(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/tools/payments/create", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleToolCall_AllowDispatchesAdapter(t *testing.T) {
	agents := map[string]policy.AgentSpec{
		"finance": {ID: "finance", Allow: []policy.AllowRule{
			{Tool: "payments", Actions: []string{"create"}},
		}},
	}
	h := newTestHandler(t, agents, nil)

	req := httptest.NewRequest(http.MethodPost, "/tools/payments/create", strings.NewReader(`{"amount":10,"currency":"USD","vendor_id":"A"}`))
	req.Header.Set("X-Agent-ID", "finance")
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := body["payment_id"]; !ok {
		t.Errorf("expected payment_id in response, got %v", body)
	}
}

func TestHandleToolCall_UnknownAdapterReturns404(t *testing.T) {
	agents := map[string]policy.AgentSpec{
		"finance": {ID: "finance", Allow: []policy.AllowRule{
			{Tool: "widgets", Actions: []string{"create"}},
		}},
	}
	h := newTestHandler(t, agents, nil)

	req := httptest.NewRequest(http.MethodPost, "/tools/widgets/create", strings.NewReader(`{}`))
	req.Header.Set("X-Agent-ID", "finance")
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleToolCall_DeniedReturns403(t *testing.T) {
	h := newTestHandler(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/tools/payments/create", strings.NewReader(`{}`))
	req.Header.Set("X-Agent-ID", "ghost")
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestHandleToolCall_RejectsNonObjectBody(t *testing.T) {
	h := newTestHandler(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/tools/payments/create", strings.NewReader(`[1,2,3]`))
	req.Header.Set("X-Agent-ID", "finance")
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleApprove_UnknownIDReturns404(t *testing.T) {
	h := newTestHandler(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/approve/does-not-exist", strings.NewReader(`{"approved_by":"mgr"}`))
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleApprove_EmptyBodyIsAcceptedAsUnattributed(t *testing.T) {
	h := newTestHandler(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/approve/does-not-exist", nil)
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	// Still 404 (no such approval), proving the empty body itself
	// didn't trip the JSON decode error path.
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleLogin_WrongKeyReturns401(t *testing.T) {
	hash, err := HashAPIKey("the-real-key")
	if err != nil {
		t.Fatalf("HashAPIKey: %v", err)
	}
	auth := NewAuthenticator(hash, "signing-secret", time.Minute)
	h := newTestHandler(t, nil, auth)

	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"api_key":"wrong"}`))
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestHandleLogin_CorrectKeyIssuesToken(t *testing.T) {
	hash, err := HashAPIKey("the-real-key")
	if err != nil {
		t.Fatalf("HashAPIKey: %v", err)
	}
	auth := NewAuthenticator(hash, "signing-secret", time.Minute)
	h := newTestHandler(t, nil, auth)

	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"api_key":"the-real-key"}`))
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["token"] == "" {
		t.Error("expected a non-empty token")
	}
}

func TestAdminRoutes_RequireAuth(t *testing.T) {
	h := newTestHandler(t, nil, nil)

	for _, path := range []string{"/admin/agents", "/admin/policies", "/admin/decisions"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		h.Routes().ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want %d", path, rec.Code, http.StatusUnauthorized)
		}
	}
}

func TestAdminAgents_WithValidAPIKeySucceeds(t *testing.T) {
	hash, err := HashAPIKey("admin-key")
	if err != nil {
		t.Fatalf("HashAPIKey: %v", err)
	}
	auth := NewAuthenticator(hash, "", time.Minute)
	agents := map[string]policy.AgentSpec{"finance": {ID: "finance"}}
	h := newTestHandler(t, agents, auth)

	req := httptest.NewRequest(http.MethodGet, "/admin/agents", nil)
	req.Header.Set("Authorization", "Bearer admin-key")
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string][]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body["agents"]) != 1 || body["agents"][0] != "finance" {
		t.Errorf("agents = %v, want [finance]", body["agents"])
	}
}

func TestHealthHandler(t *testing.T) {
	h := newTestHandler(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}
