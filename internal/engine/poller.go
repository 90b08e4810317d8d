package engine

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/promptgrid/api/internal/model"
)

// poller is one cancellable polling loop for a (cell, job) pair.
type poller struct {
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}
}

// startPoller begins polling the provider's status endpoint for a
// deferred job until it reaches a terminal state or is cancelled.
func (e *Engine) startPoller(sheet, ref, jobID string) {
	key := cellKey(sheet, ref)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if existing, ok := e.pollers[key]; ok {
		// idempotent per cell: an older loop for the same cell is
		// superseded
		existing.cancel()
	}
	ctx, cancel := context.WithCancel(e.baseCtx)
	p := &poller{jobID: jobID, cancel: cancel, done: make(chan struct{})}
	e.pollers[key] = p
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(p.done)
		defer e.removePoller(key, p)
		e.pollLoop(ctx, sheet, ref, key, jobID)
	}()
}

func (e *Engine) pollLoop(ctx context.Context, sheet, ref, key, jobID string) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, err := e.provider.JobStatus(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.finishPollError(ctx, sheet, ref, err.Error())
			return
		}

		switch status.Status {
		case "complete":
			e.finishPollSuccess(ctx, sheet, ref, key, status.Output)
			return
		case "error":
			e.finishPollError(ctx, sheet, ref, status.Error)
			return
		case "pending", "running", "queued", "processing", "in_progress":
			reported := model.CellStatus(status.Status)
			updated, uerr := e.updateCell(ctx, sheet, ref, func(c *model.Cell) {
				c.Status = reported
			})
			if uerr == nil {
				e.notifyUpdated(updated)
			}
		default:
			log.Printf("job %s for %s reported unknown status %q", jobID, key, status.Status)
		}
	}
}

func (e *Engine) finishPollSuccess(ctx context.Context, sheet, ref, key, output string) {
	e.mu.Lock()
	resolved := e.resolved[key]
	delete(e.resolved, key)
	e.mu.Unlock()

	updated, err := e.updateCell(ctx, sheet, ref, func(c *model.Cell) {
		if resolved == "" {
			resolved = c.Prompt
		}
		c.Output = output
		c.Status = model.StatusCompleted
		c.JobID = ""
		c.Generations = append(c.Generations, model.Generation{
			ID:          uuid.New().String(),
			Prompt:      resolved,
			Output:      output,
			Model:       c.Model,
			Temperature: c.Temperature,
			Timestamp:   time.Now(),
		})
	})
	if err != nil {
		log.Printf("failed to record job result on %s: %v", key, err)
		return
	}
	e.notifyCompleted(updated)
	// drop the poller registration first: the finished job must not
	// count as in flight while dependents are checked for readiness
	e.mu.Lock()
	delete(e.pollers, key)
	e.mu.Unlock()
	e.cascade.trigger(sheet, ref)
}

func (e *Engine) finishPollError(ctx context.Context, sheet, ref, message string) {
	key := cellKey(sheet, ref)
	e.mu.Lock()
	delete(e.resolved, key)
	e.mu.Unlock()

	updated, err := e.updateCell(ctx, sheet, ref, func(c *model.Cell) {
		c.Status = model.StatusError
		c.Output = "Error: " + message
		c.JobID = ""
	})
	if err != nil {
		log.Printf("failed to record job error on %s: %v", key, err)
		return
	}
	e.notifyFailed(updated, message)
}

// removePoller deletes the registration if it still belongs to p.
func (e *Engine) removePoller(key string, p *poller) {
	e.mu.Lock()
	if cur, ok := e.pollers[key]; ok && cur == p {
		delete(e.pollers, key)
	}
	e.mu.Unlock()
}

// cancelPoller stops the poll loop for a cell key, if any, and waits
// for it to exit. Idempotent.
func (e *Engine) cancelPoller(key string) {
	e.mu.Lock()
	p, ok := e.pollers[key]
	if ok {
		delete(e.pollers, key)
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	p.cancel()
	<-p.done
}

// pollerDone returns a channel closed when the cell's active poll loop
// exits, or nil when there is none. The cascade drain loop uses it to
// treat a deferred run as still in progress.
func (e *Engine) pollerDone(key string) <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.pollers[key]; ok {
		return p.done
	}
	return nil
}

// ResumePolling restarts poll loops for every persisted cell left in an
// active status with a job id, so reloads pick up where they left off.
func (e *Engine) ResumePolling(ctx context.Context) error {
	cells, err := e.allCells(ctx)
	if err != nil {
		return err
	}
	for _, c := range cells {
		if c.Status.IsActive() && c.JobID != "" {
			log.Printf("resuming polling for %s (job %s, status %s)", c.Key(), c.JobID, c.Status)
			e.startPoller(c.Sheet, c.Ref, c.JobID)
		}
	}
	return nil
}
