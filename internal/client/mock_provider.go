package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/promptgrid/api/internal/engine"
	"github.com/promptgrid/api/internal/model"
)

// MockProvider stands in for the gateway when it is not configured, so
// development works without API keys. Text models answer synchronously;
// media models go through a short fake job.
type MockProvider struct {
	mu   sync.Mutex
	jobs map[string]time.Time // job id -> ready-at
}

func NewMockProvider() *MockProvider {
	return &MockProvider{jobs: make(map[string]time.Time)}
}

func (m *MockProvider) Generate(ctx context.Context, req *engine.GenerateRequest) (*engine.GenerateResult, error) {
	typ := model.TypeOf(req.Model)
	if typ == model.ModelTypeText {
		output := fmt.Sprintf("[mock %s] %s", req.Model, req.Prompt)
		if req.Format.CharacterLimit > 0 && len(output) > req.Format.CharacterLimit {
			output = output[:req.Format.CharacterLimit]
		}
		return &engine.GenerateResult{Kind: engine.ResultImmediate, Output: output}, nil
	}

	jobID := uuid.New().String()
	m.mu.Lock()
	m.jobs[jobID] = time.Now().Add(3 * time.Second)
	m.mu.Unlock()
	return &engine.GenerateResult{Kind: engine.ResultDeferred, JobID: jobID}, nil
}

func (m *MockProvider) JobStatus(ctx context.Context, jobID string) (*engine.JobStatusResult, error) {
	m.mu.Lock()
	readyAt, ok := m.jobs[jobID]
	m.mu.Unlock()
	if !ok {
		return &engine.JobStatusResult{Status: "error", Error: "unknown job"}, nil
	}
	if time.Now().Before(readyAt) {
		return &engine.JobStatusResult{Status: "processing"}, nil
	}
	m.mu.Lock()
	delete(m.jobs, jobID)
	m.mu.Unlock()
	return &engine.JobStatusResult{
		Status: "complete",
		Output: fmt.Sprintf("https://cdn.promptgrid.dev/mock/%s", jobID),
	}, nil
}
