package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/promptgrid/api/internal/model"
)

func deferredProvider(jobID string, status func(calls int) *JobStatusResult) *fakeProvider {
	var calls int32
	p := &fakeProvider{}
	p.generateFn = func(req *GenerateRequest) (*GenerateResult, error) {
		return &GenerateResult{Kind: ResultDeferred, JobID: jobID}, nil
	}
	p.jobStatusFn = func(id string) (*JobStatusResult, error) {
		n := int(atomic.AddInt32(&calls, 1))
		return status(n), nil
	}
	return p
}

func TestRun_DeferredPollsToCompletion(t *testing.T) {
	p := deferredProvider("job-1", func(calls int) *JobStatusResult {
		if calls < 3 {
			return &JobStatusResult{Status: "processing"}
		}
		return &JobStatusResult{Status: "complete", Output: "rendered clip"}
	})
	e, st := newTestEngine(t, p, nil, Config{})
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "A1", Prompt: "make a clip", Model: "veo-2"})

	if err := e.Run(context.Background(), "Main", "A1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	// the run returns immediately with the job pending
	cell := getCell(t, st, "Main", "A1")
	if !cell.Status.IsActive() {
		t.Errorf("status after deferred run = %q, want active", cell.Status)
	}
	if cell.JobID != "job-1" {
		t.Errorf("jobId = %q, want job-1", cell.JobID)
	}

	waitFor(t, 2*time.Second, "job to complete", func() bool {
		return getCell(t, st, "Main", "A1").Status == model.StatusCompleted
	})
	cell = getCell(t, st, "Main", "A1")
	if cell.Output != "rendered clip" {
		t.Errorf("output = %q", cell.Output)
	}
	if cell.JobID != "" {
		t.Errorf("jobId = %q, want cleared", cell.JobID)
	}
	if len(cell.Generations) != 1 {
		t.Fatalf("generations = %d, want 1", len(cell.Generations))
	}
	if cell.Generations[0].Prompt != "make a clip" || cell.Generations[0].Output != "rendered clip" {
		t.Errorf("generation = %+v", cell.Generations[0])
	}
}

func TestRun_DeferredJobError(t *testing.T) {
	p := deferredProvider("job-2", func(calls int) *JobStatusResult {
		return &JobStatusResult{Status: "error", Error: "render crashed"}
	})
	e, st := newTestEngine(t, p, nil, Config{})
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "A1", Prompt: "make a clip", Model: "veo-2"})

	if err := e.Run(context.Background(), "Main", "A1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	waitFor(t, 2*time.Second, "job to fail", func() bool {
		return getCell(t, st, "Main", "A1").Status == model.StatusError
	})
	cell := getCell(t, st, "Main", "A1")
	if cell.Output != "Error: render crashed" {
		t.Errorf("output = %q", cell.Output)
	}
	if cell.JobID != "" {
		t.Errorf("jobId = %q, want cleared", cell.JobID)
	}
}

func TestRun_DeferredIntermediateStatus(t *testing.T) {
	release := make(chan struct{})
	p := &fakeProvider{}
	p.generateFn = func(req *GenerateRequest) (*GenerateResult, error) {
		return &GenerateResult{Kind: ResultDeferred, JobID: "job-3"}, nil
	}
	p.jobStatusFn = func(id string) (*JobStatusResult, error) {
		select {
		case <-release:
			return &JobStatusResult{Status: "complete", Output: "done"}, nil
		default:
			return &JobStatusResult{Status: "in_progress"}, nil
		}
	}
	e, st := newTestEngine(t, p, nil, Config{})
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "A1", Prompt: "slow job", Model: "sora"})

	if err := e.Run(context.Background(), "Main", "A1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	// the provider's reported phase is persisted as-is
	waitFor(t, 2*time.Second, "in_progress to be recorded", func() bool {
		return getCell(t, st, "Main", "A1").Status == model.StatusInProgress
	})

	close(release)
	waitFor(t, 2*time.Second, "job to complete", func() bool {
		return getCell(t, st, "Main", "A1").Status == model.StatusCompleted
	})
}

func TestRun_DeferredDuplicateIgnoredWhilePolling(t *testing.T) {
	p := deferredProvider("job-4", func(calls int) *JobStatusResult {
		return &JobStatusResult{Status: "processing"}
	})
	e, st := newTestEngine(t, p, nil, Config{})
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "A1", Prompt: "make a clip", Model: "veo-2"})

	if err := e.Run(context.Background(), "Main", "A1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	// a second run while the job is polling must not start a new job
	if err := e.Run(context.Background(), "Main", "A1"); err != nil {
		t.Fatalf("duplicate run: %v", err)
	}
	if p.calls() != 1 {
		t.Errorf("provider called %d times, want 1", p.calls())
	}
}

func TestStop_CancelsPolling(t *testing.T) {
	p := deferredProvider("job-5", func(calls int) *JobStatusResult {
		return &JobStatusResult{Status: "processing"}
	})
	e, st := newTestEngine(t, p, nil, Config{})
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "A1", Prompt: "make a clip", Model: "veo-2"})

	if err := e.Run(context.Background(), "Main", "A1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	waitFor(t, time.Second, "polling to start", func() bool {
		return p.statusCallCount() > 0
	})

	if err := e.Stop(context.Background(), "Main", "A1"); err != nil {
		t.Fatalf("stop: %v", err)
	}

	cell := getCell(t, st, "Main", "A1")
	if cell.Status != "" || cell.JobID != "" {
		t.Errorf("after stop: status = %q, jobId = %q", cell.Status, cell.JobID)
	}

	// Stop waits for the poll loop to exit, so the call count is final
	before := p.statusCallCount()
	time.Sleep(60 * time.Millisecond)
	if after := p.statusCallCount(); after != before {
		t.Errorf("polling continued after stop: %d -> %d", before, after)
	}
}

func TestStop_CancelsNeighborsOneHop(t *testing.T) {
	p := &fakeProvider{}
	p.generateFn = func(req *GenerateRequest) (*GenerateResult, error) {
		return &GenerateResult{Kind: ResultDeferred, JobID: "job-" + req.Model}, nil
	}
	p.jobStatusFn = func(id string) (*JobStatusResult, error) {
		return &JobStatusResult{Status: "processing"}, nil
	}
	e, st := newTestEngine(t, p, nil, Config{})
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "A1", Prompt: "root", Model: "veo-a"})
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "B1", Prompt: "{{output:A1}}", Model: "veo-b"})
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "C1", Prompt: "{{output:B1}}", Model: "veo-c"})

	for _, ref := range []string{"A1", "B1", "C1"} {
		if err := e.Run(context.Background(), "Main", ref); err != nil {
			t.Fatalf("run %s: %v", ref, err)
		}
	}

	if err := e.Stop(context.Background(), "Main", "A1"); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// B1 is one hop from A1 and gets stopped with it
	if got := getCell(t, st, "Main", "B1"); got.Status != "" || got.JobID != "" {
		t.Errorf("B1 not stopped: status = %q, jobId = %q", got.Status, got.JobID)
	}
	// C1 is two hops away and keeps polling
	if got := getCell(t, st, "Main", "C1"); !got.Status.IsActive() {
		t.Errorf("C1 status = %q, want still active", got.Status)
	}
}

func TestResumePolling(t *testing.T) {
	p := &fakeProvider{}
	p.jobStatusFn = func(id string) (*JobStatusResult, error) {
		return &JobStatusResult{Status: "complete", Output: "recovered"}, nil
	}
	e, st := newTestEngine(t, p, nil, Config{})
	// a job left mid-flight by a previous process
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "A1", Prompt: "make a clip", Status: model.StatusPending, JobID: "job-9"})
	seedCell(t, st, &model.Cell{Sheet: "Main", Ref: "B1", Prompt: "idle cell", Status: model.StatusIdle})

	if err := e.ResumePolling(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}

	waitFor(t, 2*time.Second, "resumed job to complete", func() bool {
		return getCell(t, st, "Main", "A1").Status == model.StatusCompleted
	})
	cell := getCell(t, st, "Main", "A1")
	if cell.Output != "recovered" {
		t.Errorf("output = %q", cell.Output)
	}
	// no resolved prompt survives a restart; history falls back to the
	// raw prompt
	if len(cell.Generations) != 1 || cell.Generations[0].Prompt != "make a clip" {
		t.Errorf("generations = %+v", cell.Generations)
	}

	// the idle cell was not picked up
	if p.calls() != 0 {
		t.Errorf("generate called %d times, want 0", p.calls())
	}
}
