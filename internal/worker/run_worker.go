package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/promptgrid/api/internal/engine"
	"github.com/promptgrid/api/internal/service"
)

// RunWorker executes queued manual cell runs.
type RunWorker struct {
	engine *engine.Engine
}

// NewRunWorker creates a new run worker
func NewRunWorker(eng *engine.Engine) *RunWorker {
	return &RunWorker{engine: eng}
}

// ProcessTask handles a cell:run task. Failures are terminal for the
// run (the queue is configured with zero retries), so errors are
// reported and swallowed.
func (w *RunWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.CellRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal run payload: %w", err)
	}

	log.Printf("Running cell %s!%s", payload.Sheet, payload.Ref)

	if err := w.engine.Run(ctx, payload.Sheet, payload.Ref); err != nil {
		var ice *engine.InsufficientCreditsError
		if errors.As(err, &ice) {
			log.Printf("Run %s!%s blocked: %v", payload.Sheet, payload.Ref, ice)
			return nil
		}
		var pe *engine.ProviderError
		if errors.As(err, &pe) {
			log.Printf("Run %s!%s failed: %s", payload.Sheet, payload.Ref, pe.Message)
			return nil
		}
		return err
	}
	return nil
}
