// Package ocean implements the compute.Provider contract against an
// Ocean-style compute-to-data node.
//
// The node executes the computation remotely; this adapter only speaks
// its HTTP API: environment discovery, asset index checks, free-compute
// submission, status polls, and result URL construction.
package ocean

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"c2d-service/pkg/backoff"
)

const (
	environmentsPath = "/api/services/computeEnvironments"
	ddoPath          = "/api/aquarius/assets/ddo/"
	freeComputePath  = "/api/services/freeCompute"
	computePath      = "/api/services/compute"
	resultPath       = "/api/services/computeResult"

	// Asset indexing is eventually consistent; bound the wait.
	maxIndexChecks = 6
)

// Client talks to a compute-to-data provider node.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger

	mu    sync.Mutex
	ready bool
	envID string // discovered compute environment
}

// NewClient creates a provider client. The configuration must validate.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.HTTPTimeout},
		logger: slog.With("component", "provider", "node", cfg.NodeURL),
	}, nil
}

// Ready checks whether the provider node is reachable.
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.NodeURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("provider node unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("provider node unhealthy: HTTP %d", resp.StatusCode)
	}
	return nil
}

// EnsureReady completes the provider-side environment setup: the node is
// reachable, a compute environment is selected, and both assets are
// indexed. Idempotent; a no-op once the setup has succeeded.
func (c *Client) EnsureReady(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ready {
		return nil
	}

	if err := c.Ready(ctx); err != nil {
		return err
	}

	envID := c.cfg.EnvironmentID
	if envID == "" {
		discovered, err := c.discoverFreeEnvironment(ctx)
		if err != nil {
			return err
		}
		envID = discovered
	}

	for _, did := range []string{c.cfg.DatasetDID, c.cfg.AlgorithmDID} {
		if err := c.awaitIndexed(ctx, did); err != nil {
			return err
		}
	}

	c.envID = envID
	c.ready = true
	c.logger.Info("Provider environment ready", "environment", envID)
	return nil
}

// environment is one entry of the node's compute environment listing.
type environment struct {
	ID   string `json:"id"`
	Free bool   `json:"free"`
}

// discoverFreeEnvironment picks the node's free compute tier.
func (c *Client) discoverFreeEnvironment(ctx context.Context) (string, error) {
	var envs []environment
	if err := c.getJSON(ctx, c.cfg.NodeURL+environmentsPath, &envs); err != nil {
		return "", fmt.Errorf("list compute environments: %w", err)
	}
	for _, env := range envs {
		if env.Free {
			return env.ID, nil
		}
	}
	return "", fmt.Errorf("no free compute environment offered by node")
}

// awaitIndexed waits until the asset's DDO is resolvable, retrying with
// exponential backoff while the index catches up.
func (c *Client) awaitIndexed(ctx context.Context, did string) error {
	var lastErr error
	for attempt := 1; attempt <= maxIndexChecks; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff.Exponential(attempt-1, 500*time.Millisecond, 10*time.Second)):
			}
		}

		var ddo map[string]any
		lastErr = c.getJSON(ctx, c.cfg.NodeURL+ddoPath+url.PathEscape(did), &ddo)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("asset %s not indexed: %w", did, lastErr)
}

// submittedJob is one entry of the node's job submission response.
type submittedJob struct {
	JobID       string `json:"jobId"`
	AgreementID string `json:"agreementId"`
}

// Submit starts a free compute job pairing the configured dataset with
// the configured algorithm.
func (c *Client) Submit(ctx context.Context) (string, string, error) {
	if err := c.EnsureReady(ctx); err != nil {
		return "", "", err
	}

	c.mu.Lock()
	envID := c.envID
	c.mu.Unlock()

	payload := map[string]any{
		"environment":     envID,
		"consumerAddress": c.cfg.ConsumerAddress,
		"nonce":           nonce(),
		"datasets":        []map[string]string{{"documentId": c.cfg.DatasetDID}},
		"algorithm":       map[string]string{"documentId": c.cfg.AlgorithmDID},
	}

	var jobs []submittedJob
	if err := c.postJSON(ctx, c.cfg.NodeURL+freeComputePath, payload, &jobs); err != nil {
		return "", "", fmt.Errorf("submit compute job: %w", err)
	}
	if len(jobs) == 0 || jobs[0].JobID == "" {
		return "", "", fmt.Errorf("submit compute job: node returned no job")
	}
	return jobs[0].JobID, jobs[0].AgreementID, nil
}

// jobStatus is one entry of the node's status response.
type jobStatus struct {
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
}

// Status returns the node's raw numeric status code for the job.
func (c *Client) Status(ctx context.Context, jobID, agreementID string) (int, error) {
	query := url.Values{
		"jobId":           {jobID},
		"agreementId":     {agreementID},
		"consumerAddress": {c.cfg.ConsumerAddress},
	}

	var statuses []jobStatus
	if err := c.getJSON(ctx, c.cfg.NodeURL+computePath+"?"+query.Encode(), &statuses); err != nil {
		return 0, fmt.Errorf("job status: %w", err)
	}
	if len(statuses) == 0 {
		return 0, fmt.Errorf("job status: node no longer reports job %s", jobID)
	}
	return statuses[0].Status, nil
}

// ResultLocator builds the download URL for the job's first result. The
// nonce makes the URL single-use on the node side, so callers must fetch
// it exactly once.
func (c *Client) ResultLocator(ctx context.Context, jobID string) (string, error) {
	if jobID == "" {
		return "", fmt.Errorf("result locator: job ID is empty")
	}

	query := url.Values{
		"jobId":           {jobID},
		"index":           {"0"},
		"consumerAddress": {c.cfg.ConsumerAddress},
		"nonce":           {nonce()},
	}
	return c.cfg.NodeURL + resultPath + "?" + query.Encode(), nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) postJSON(ctx context.Context, rawURL string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := strings.TrimSpace(string(detail))
		if msg == "" {
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// nonce returns a one-time request token.
func nonce() string {
	return uuid.NewString()
}
