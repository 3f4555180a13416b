package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"c2d-service/internal/compute"
	"c2d-service/internal/health"
	"c2d-service/internal/testutil"
)

// stubProvider returns canned values so handlers can be exercised
// without a compute node.
type stubProvider struct {
	status int
}

func (p *stubProvider) EnsureReady(ctx context.Context) error { return nil }

func (p *stubProvider) Submit(ctx context.Context) (string, string, error) {
	return "job-1", "agreement-1", nil
}

func (p *stubProvider) Status(ctx context.Context, jobID, agreementID string) (int, error) {
	return p.status, nil
}

func (p *stubProvider) ResultLocator(ctx context.Context, jobID string) (string, error) {
	return "http://node.local/result?jobId=" + jobID, nil
}

func newTestHandler(t *testing.T, provider compute.Provider) (*Handler, *compute.Orchestrator) {
	t.Helper()
	orch := compute.NewOrchestrator(provider, compute.Config{
		PollInterval: 5 * time.Millisecond,
		FetchTimeout: time.Second,
	})
	t.Cleanup(orch.Close)
	return NewHandler(compute.NewService(orch), health.NewChecker(nil)), orch
}

func TestHandler_StartCompute(t *testing.T) {
	t.Parallel()
	handler, _ := newTestHandler(t, &stubProvider{status: 31})

	req := httptest.NewRequest(http.MethodPost, "/compute/start", nil)
	w := httptest.NewRecorder()

	handler.StartCompute(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response compute.StartResponse
	json.NewDecoder(w.Body).Decode(&response)

	if response.JobID != "job-1" {
		t.Errorf("Expected job ID %q, got %q", "job-1", response.JobID)
	}
	if response.Status != "running" {
		t.Errorf("Expected status %q, got %q", "running", response.Status)
	}
}

func TestHandler_StartCompute_Conflict(t *testing.T) {
	t.Parallel()
	handler, _ := newTestHandler(t, &stubProvider{status: 31})

	first := httptest.NewRecorder()
	handler.StartCompute(first, httptest.NewRequest(http.MethodPost, "/compute/start", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("Expected first start to succeed, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.StartCompute(second, httptest.NewRequest(http.MethodPost, "/compute/start", nil))

	if second.Code != http.StatusConflict {
		t.Fatalf("Expected status %d, got %d", http.StatusConflict, second.Code)
	}

	var response map[string]string
	json.NewDecoder(second.Body).Decode(&response)

	if response["error"] != "job already running" {
		t.Errorf("Expected error %q, got %q", "job already running", response["error"])
	}
	if response["jobId"] != "job-1" {
		t.Errorf("Expected conflict to carry job ID %q, got %q", "job-1", response["jobId"])
	}
}

func TestHandler_ComputeStatus(t *testing.T) {
	t.Parallel()
	handler, _ := newTestHandler(t, &stubProvider{status: 31})

	req := httptest.NewRequest(http.MethodGet, "/compute/status", nil)
	w := httptest.NewRecorder()

	handler.ComputeStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response compute.StatusResponse
	json.NewDecoder(w.Body).Decode(&response)

	if response.Status != "idle" {
		t.Errorf("Expected status %q, got %q", "idle", response.Status)
	}
}

func TestHandler_ComputeResult_NotAvailable(t *testing.T) {
	t.Parallel()
	handler, _ := newTestHandler(t, &stubProvider{status: 31})

	req := httptest.NewRequest(http.MethodGet, "/compute/result", nil)
	w := httptest.NewRecorder()

	handler.ComputeResult(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	var response map[string]string
	json.NewDecoder(w.Body).Decode(&response)

	if response["error"] != "no result available" {
		t.Errorf("Expected error %q, got %q", "no result available", response["error"])
	}
}

func TestHandler_ComputeResult_AfterCompletion(t *testing.T) {
	t.Parallel()
	resultServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	t.Cleanup(resultServer.Close)

	provider := &resultStubProvider{resultURL: resultServer.URL}
	handler, _ := newTestHandler(t, provider)

	start := httptest.NewRecorder()
	handler.StartCompute(start, httptest.NewRequest(http.MethodPost, "/compute/start", nil))
	if start.Code != http.StatusOK {
		t.Fatalf("Expected start to succeed, got %d", start.Code)
	}

	testutil.MustWaitFor(t, func() bool {
		w := httptest.NewRecorder()
		handler.ComputeResult(w, httptest.NewRequest(http.MethodGet, "/compute/result", nil))
		return w.Code == http.StatusOK
	})

	w := httptest.NewRecorder()
	handler.ComputeResult(w, httptest.NewRequest(http.MethodGet, "/compute/result", nil))

	var response compute.ResultResponse
	json.NewDecoder(w.Body).Decode(&response)

	if response.Result == nil {
		t.Fatal("Expected result payload")
	}
	if response.Result.ResultContent != "payload" {
		t.Errorf("Expected content %q, got %q", "payload", response.Result.ResultContent)
	}
}

// resultStubProvider finishes immediately and points at a real result URL.
type resultStubProvider struct {
	resultURL string
}

func (p *resultStubProvider) EnsureReady(ctx context.Context) error { return nil }

func (p *resultStubProvider) Submit(ctx context.Context) (string, string, error) {
	return "job-done", "agreement-done", nil
}

func (p *resultStubProvider) Status(ctx context.Context, jobID, agreementID string) (int, error) {
	return 70, nil
}

func (p *resultStubProvider) ResultLocator(ctx context.Context, jobID string) (string, error) {
	return p.resultURL, nil
}

func TestHandler_ResetCompute(t *testing.T) {
	t.Parallel()
	handler, _ := newTestHandler(t, &stubProvider{status: 31})

	start := httptest.NewRecorder()
	handler.StartCompute(start, httptest.NewRequest(http.MethodPost, "/compute/start", nil))

	w := httptest.NewRecorder()
	handler.ResetCompute(w, httptest.NewRequest(http.MethodPost, "/compute/reset", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response compute.ResetResponse
	json.NewDecoder(w.Body).Decode(&response)
	if response.Message != "reset" {
		t.Errorf("Expected message %q, got %q", "reset", response.Message)
	}

	status := httptest.NewRecorder()
	handler.ComputeStatus(status, httptest.NewRequest(http.MethodGet, "/compute/status", nil))

	var statusResp compute.StatusResponse
	json.NewDecoder(status.Body).Decode(&statusResp)
	if statusResp.Status != "idle" {
		t.Errorf("Expected status %q after reset, got %q", "idle", statusResp.Status)
	}
}

func TestHandler_Livez(t *testing.T) {
	t.Parallel()
	handler := &Handler{
		health: health.NewChecker(nil),
	}

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()

	handler.Livez(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response health.Response
	json.NewDecoder(w.Body).Decode(&response)

	if response.Status != health.StatusHealthy {
		t.Errorf("Expected status healthy, got %s", response.Status)
	}
}

func TestHandler_Readyz_NoProvider(t *testing.T) {
	t.Parallel()
	handler := &Handler{
		health: health.NewChecker(nil), // No provider client
	}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	handler.Readyz(w, req)

	// Should return 503 because the provider node is not reachable
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}

	var response health.Response
	json.NewDecoder(w.Body).Decode(&response)

	if response.Status != health.StatusUnhealthy {
		t.Errorf("Expected status unhealthy, got %s", response.Status)
	}
}
