package worker_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/promptgrid/api/internal/client"
	"github.com/promptgrid/api/internal/engine"
	"github.com/promptgrid/api/internal/model"
	"github.com/promptgrid/api/internal/service"
	"github.com/promptgrid/api/internal/store"
	"github.com/promptgrid/api/internal/worker"
)

type brokeBilling struct{}

func (brokeBilling) CheckAndDeductCredits(ctx context.Context, userID string, cost int) (int, error) {
	return 0, &engine.InsufficientCreditsError{Needed: 1, Available: 0}
}

func runTask(t *testing.T, w *worker.RunWorker, sheet, ref string) error {
	t.Helper()
	payload, err := json.Marshal(service.CellRunPayload{Sheet: sheet, Ref: ref})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return w.ProcessTask(context.Background(), asynq.NewTask(service.TaskTypeCellRun, payload))
}

func TestProcessTask_RunsCell(t *testing.T) {
	cellStore := store.NewMemory()
	eng := engine.New(cellStore, client.NewMockProvider(), nil, nil, engine.Config{PollInterval: 10 * time.Millisecond})
	t.Cleanup(eng.Close)
	w := worker.NewRunWorker(eng)

	_ = cellStore.SaveCell(context.Background(), &model.Cell{Sheet: "Main", Ref: "A1", Prompt: "hello", Model: "gpt-4o"})

	if err := runTask(t, w, "Main", "A1"); err != nil {
		t.Fatalf("process task: %v", err)
	}
	cell, err := cellStore.GetCell(context.Background(), "Main", "A1")
	if err != nil {
		t.Fatalf("get cell: %v", err)
	}
	if cell.Status != model.StatusCompleted {
		t.Errorf("status = %q, want completed", cell.Status)
	}
}

func TestProcessTask_BadPayload(t *testing.T) {
	cellStore := store.NewMemory()
	eng := engine.New(cellStore, client.NewMockProvider(), nil, nil, engine.Config{})
	t.Cleanup(eng.Close)
	w := worker.NewRunWorker(eng)

	err := w.ProcessTask(context.Background(), asynq.NewTask(service.TaskTypeCellRun, []byte("not json")))
	if err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestProcessTask_InsufficientCreditsSwallowed(t *testing.T) {
	cellStore := store.NewMemory()
	eng := engine.New(cellStore, client.NewMockProvider(), brokeBilling{}, nil, engine.Config{})
	t.Cleanup(eng.Close)
	w := worker.NewRunWorker(eng)

	_ = cellStore.SaveCell(context.Background(), &model.Cell{Sheet: "Main", Ref: "A1", Prompt: "hello"})

	// zero-retry queue: a credits failure must not bubble as a task error
	if err := runTask(t, w, "Main", "A1"); err != nil {
		t.Errorf("process task: %v", err)
	}
}
