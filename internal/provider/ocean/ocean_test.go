package ocean

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNode emulates the provider node's HTTP API.
type fakeNode struct {
	*httptest.Server

	envCalls    atomic.Int64
	ddoCalls    atomic.Int64
	submitCalls atomic.Int64
	statusCalls atomic.Int64

	// ddoFailures is how many DDO lookups return 404 before success.
	ddoFailures int64
	statusCode  int
	lastSubmit  atomic.Pointer[map[string]any]
}

func newFakeNode(t *testing.T) *fakeNode {
	t.Helper()
	n := &fakeNode{statusCode: 31}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc(environmentsPath, func(w http.ResponseWriter, r *http.Request) {
		n.envCalls.Add(1)
		json.NewEncoder(w).Encode([]environment{
			{ID: "env-paid", Free: false},
			{ID: "env-free", Free: true},
		})
	})
	mux.HandleFunc(ddoPath, func(w http.ResponseWriter, r *http.Request) {
		if n.ddoCalls.Add(1) <= n.ddoFailures {
			http.Error(w, "asset not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "did:op:indexed"})
	})
	mux.HandleFunc(freeComputePath, func(w http.ResponseWriter, r *http.Request) {
		n.submitCalls.Add(1)
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		n.lastSubmit.Store(&payload)
		json.NewEncoder(w).Encode([]submittedJob{
			{JobID: "job-abc", AgreementID: "agreement-xyz"},
		})
	})
	mux.HandleFunc(computePath, func(w http.ResponseWriter, r *http.Request) {
		n.statusCalls.Add(1)
		json.NewEncoder(w).Encode([]jobStatus{
			{Status: n.statusCode, StatusText: "Running algorithm"},
		})
	})

	n.Server = httptest.NewServer(mux)
	t.Cleanup(n.Close)
	return n
}

func testClientConfig(nodeURL string) Config {
	return Config{
		NodeURL:         nodeURL,
		ConsumerAddress: "0xconsumer",
		DatasetDID:      "did:op:dataset",
		AlgorithmDID:    "did:op:algorithm",
	}
}

func TestNewClient_RequiresConfig(t *testing.T) {
	t.Parallel()
	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node URL is required")
}

func TestClient_Ready(t *testing.T) {
	t.Parallel()
	node := newFakeNode(t)
	client, err := NewClient(testClientConfig(node.URL))
	require.NoError(t, err)

	assert.NoError(t, client.Ready(context.Background()))
}

func TestClient_Ready_Unhealthy(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(testClientConfig(server.URL))
	require.NoError(t, err)

	err = client.Ready(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}

func TestClient_EnsureReady_DiscoversFreeEnvironment(t *testing.T) {
	t.Parallel()
	node := newFakeNode(t)
	client, err := NewClient(testClientConfig(node.URL))
	require.NoError(t, err)

	require.NoError(t, client.EnsureReady(context.Background()))
	assert.Equal(t, "env-free", client.envID)
	// Both the dataset and the algorithm must be index-checked.
	assert.Equal(t, int64(2), node.ddoCalls.Load())
}

func TestClient_EnsureReady_Idempotent(t *testing.T) {
	t.Parallel()
	node := newFakeNode(t)
	client, err := NewClient(testClientConfig(node.URL))
	require.NoError(t, err)

	require.NoError(t, client.EnsureReady(context.Background()))
	require.NoError(t, client.EnsureReady(context.Background()))
	require.NoError(t, client.EnsureReady(context.Background()))

	assert.Equal(t, int64(1), node.envCalls.Load())
	assert.Equal(t, int64(2), node.ddoCalls.Load())
}

func TestClient_EnsureReady_SkipsDiscoveryWhenConfigured(t *testing.T) {
	t.Parallel()
	node := newFakeNode(t)
	cfg := testClientConfig(node.URL)
	cfg.EnvironmentID = "env-pinned"
	client, err := NewClient(cfg)
	require.NoError(t, err)

	require.NoError(t, client.EnsureReady(context.Background()))
	assert.Equal(t, "env-pinned", client.envID)
	assert.Equal(t, int64(0), node.envCalls.Load())
}

func TestClient_EnsureReady_RetriesIndexing(t *testing.T) {
	t.Parallel()
	node := newFakeNode(t)
	node.ddoFailures = 2 // first asset needs three lookups
	client, err := NewClient(testClientConfig(node.URL))
	require.NoError(t, err)

	require.NoError(t, client.EnsureReady(context.Background()))
	assert.Equal(t, int64(4), node.ddoCalls.Load())
}

func TestClient_Submit(t *testing.T) {
	t.Parallel()
	node := newFakeNode(t)
	client, err := NewClient(testClientConfig(node.URL))
	require.NoError(t, err)

	jobID, agreementID, err := client.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "job-abc", jobID)
	assert.Equal(t, "agreement-xyz", agreementID)

	payload := *node.lastSubmit.Load()
	assert.Equal(t, "env-free", payload["environment"])
	assert.Equal(t, "0xconsumer", payload["consumerAddress"])
	assert.NotEmpty(t, payload["nonce"])

	datasets, ok := payload["datasets"].([]any)
	require.True(t, ok)
	require.Len(t, datasets, 1)
	dataset := datasets[0].(map[string]any)
	assert.Equal(t, "did:op:dataset", dataset["documentId"])

	algorithm, ok := payload["algorithm"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "did:op:algorithm", algorithm["documentId"])
}

func TestClient_Submit_NoJobReturned(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc(environmentsPath, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]environment{{ID: "env-free", Free: true}})
	})
	mux.HandleFunc(ddoPath, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "x"})
	})
	mux.HandleFunc(freeComputePath, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]submittedJob{})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := NewClient(testClientConfig(server.URL))
	require.NoError(t, err)

	_, _, err = client.Submit(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node returned no job")
}

func TestClient_Status(t *testing.T) {
	t.Parallel()
	node := newFakeNode(t)
	node.statusCode = 70
	client, err := NewClient(testClientConfig(node.URL))
	require.NoError(t, err)

	code, err := client.Status(context.Background(), "job-abc", "agreement-xyz")
	require.NoError(t, err)
	assert.Equal(t, 70, code)
}

func TestClient_Status_UnknownJob(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc(computePath, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]jobStatus{})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := NewClient(testClientConfig(server.URL))
	require.NoError(t, err)

	_, err = client.Status(context.Background(), "job-gone", "agreement-gone")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no longer reports job")
}

func TestClient_ResultLocator(t *testing.T) {
	t.Parallel()
	client, err := NewClient(testClientConfig("http://node.local"))
	require.NoError(t, err)

	raw, err := client.ResultLocator(context.Background(), "job-abc")
	require.NoError(t, err)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, resultPath, parsed.Path)
	assert.Equal(t, "job-abc", parsed.Query().Get("jobId"))
	assert.Equal(t, "0", parsed.Query().Get("index"))
	assert.Equal(t, "0xconsumer", parsed.Query().Get("consumerAddress"))
	assert.NotEmpty(t, parsed.Query().Get("nonce"))

	// Each locator carries a fresh nonce.
	second, err := client.ResultLocator(context.Background(), "job-abc")
	require.NoError(t, err)
	assert.NotEqual(t, raw, second)
}

func TestClient_ResultLocator_EmptyJobID(t *testing.T) {
	t.Parallel()
	client, err := NewClient(testClientConfig("http://node.local"))
	require.NoError(t, err)

	_, err = client.ResultLocator(context.Background(), "")
	require.Error(t, err)
}
