package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/promptgrid/api/internal/config"
	"github.com/promptgrid/api/internal/engine"
)

// GatewayClient talks to the model gateway: one endpoint fronting the
// text/image/video/audio providers. Text models usually answer
// synchronously; media models queue a job to be polled.
type GatewayClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// generateResponse is the gateway's wire format for a generation call.
type generateResponse struct {
	Success      bool   `json:"success"`
	Output       string `json:"output,omitempty"`
	NeedsPolling bool   `json:"needsPolling,omitempty"`
	JobID        string `json:"jobId,omitempty"`
	Error        string `json:"error,omitempty"`
}

// NewGatewayClient creates a new model gateway client
func NewGatewayClient(cfg *config.ProviderConfig) *GatewayClient {
	return &GatewayClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// Generate submits a resolved prompt for generation.
func (c *GatewayClient) Generate(ctx context.Context, req *engine.GenerateRequest) (*engine.GenerateResult, error) {
	var resp generateResponse
	if err := c.post(ctx, "/v1/generate", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%s", resp.Error)
	}
	if resp.NeedsPolling {
		return &engine.GenerateResult{Kind: engine.ResultDeferred, JobID: resp.JobID}, nil
	}
	return &engine.GenerateResult{Kind: engine.ResultImmediate, Output: resp.Output}, nil
}

// JobStatus retrieves the status of an async generation job.
func (c *GatewayClient) JobStatus(ctx context.Context, jobID string) (*engine.JobStatusResult, error) {
	endpoint := fmt.Sprintf("/v1/jobs/%s", jobID)
	var result engine.JobStatusResult
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// post sends a POST request with JSON body
func (c *GatewayClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *GatewayClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *GatewayClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Printf("[Gateway API] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Gateway API] ✗ %s %s — request failed: %v", req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[Gateway API] ✗ %s %s — failed to read response: %v", req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Gateway API] ← %d %s %s", resp.StatusCode, req.Method, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		log.Printf("[Gateway API] ✗ unmarshal error for %s %s: %v (body: %s)", req.Method, req.URL.String(), err, string(respBody))
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *GatewayClient) IsConfigured() bool {
	return c.apiKey != ""
}
