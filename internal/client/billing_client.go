package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/promptgrid/api/internal/config"
	"github.com/promptgrid/api/internal/engine"
)

// BillingClient talks to the billing collaborator. Credit checks happen
// before every provider call; an insufficient balance blocks the run.
type BillingClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

type deductRequest struct {
	UserID string `json:"userId"`
	Cost   int    `json:"cost"`
}

type deductResponse struct {
	Success   bool   `json:"success"`
	Remaining int    `json:"remaining"`
	Error     string `json:"error,omitempty"`
}

// NewBillingClient creates a new billing service client
func NewBillingClient(cfg *config.BillingConfig) *BillingClient {
	return &BillingClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// CheckAndDeductCredits charges cost credits to the user. An
// insufficient balance comes back as *engine.InsufficientCreditsError,
// recovered from the service's fixed message wording.
func (c *BillingClient) CheckAndDeductCredits(ctx context.Context, userID string, cost int) (int, error) {
	reqBody := deductRequest{UserID: userID, Cost: cost}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/credits/deduct", bytes.NewReader(bodyBytes))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}

	var result deductResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return 0, fmt.Errorf("billing API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if !result.Success {
		if parsed, ok := engine.ParseInsufficientCredits(result.Error); ok {
			return 0, parsed
		}
		return 0, fmt.Errorf("billing error: %s", result.Error)
	}

	return result.Remaining, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *BillingClient) IsConfigured() bool {
	return c.baseURL != ""
}
