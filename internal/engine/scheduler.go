package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/promptgrid/api/internal/model"
)

// Run executes one cell: resolve the template, charge credits, call the
// provider and either finish synchronously or hand off to the poller.
//
// Duplicate runs are silently ignored: at most one run per cell id is
// in flight at any instant. Empty prompts and false conditions are
// no-ops, not errors.
func (e *Engine) Run(ctx context.Context, sheet, ref string) error {
	key := cellKey(sheet, ref)
	ok, err := e.markInFlight(key)
	if err != nil {
		return err
	}
	if !ok {
		return nil // duplicate run, silently dropped
	}
	completed, err := e.runCell(ctx, sheet, ref, key)
	// the run is settled before dependents are checked for readiness,
	// so the cell no longer counts as in flight
	e.clearInFlight(key)
	if completed {
		e.cascade.trigger(sheet, ref)
	}
	return err
}

// runCell reports whether the cell completed synchronously; deferred
// jobs trigger their dependents from the poller instead.
func (e *Engine) runCell(ctx context.Context, sheet, ref, key string) (bool, error) {
	cell, err := e.store.GetCell(ctx, sheet, ref)
	if err != nil {
		return false, fmt.Errorf("load cell %s: %w", key, err)
	}

	if cell.Prompt == "" {
		return false, nil
	}
	// a cell already waiting on a provider job belongs to its poller
	if cell.Status.IsActive() && cell.JobID != "" {
		return false, nil
	}

	if cell.Condition != "" && !EvalCondition(cell.Condition, e.conditionLookup(ctx, sheet)) {
		// intentional skip: status untouched, no credits spent
		return false, nil
	}

	resolved := e.Resolve(ctx, cell)

	if e.billing != nil {
		cost := e.cfg.cost(cell.Model)
		if _, err := e.billing.CheckAndDeductCredits(ctx, cell.UserID, cost); err != nil {
			var ice *InsufficientCreditsError
			if errors.As(err, &ice) {
				return false, ice
			}
			if parsed, ok := ParseInsufficientCredits(err.Error()); ok {
				return false, parsed
			}
			return false, fmt.Errorf("credit check for %s: %w", key, err)
		}
	}

	updated, err := e.updateCell(ctx, sheet, ref, func(c *model.Cell) {
		c.Status = model.StatusRunning
		c.JobID = ""
	})
	if err != nil {
		return false, fmt.Errorf("mark %s running: %w", key, err)
	}
	e.notifyUpdated(updated)

	result, err := e.provider.Generate(ctx, e.buildRequest(cell, resolved))
	if err != nil {
		return false, e.failCell(ctx, sheet, ref, err.Error())
	}

	switch result.Kind {
	case ResultDeferred:
		jobID := result.JobID
		updated, err := e.updateCell(ctx, sheet, ref, func(c *model.Cell) {
			c.Status = model.StatusPending
			c.JobID = jobID
		})
		if err != nil {
			return false, fmt.Errorf("mark %s pending: %w", key, err)
		}
		e.mu.Lock()
		e.resolved[key] = resolved
		e.mu.Unlock()
		e.notifyUpdated(updated)
		e.startPoller(sheet, ref, jobID)
		return false, nil

	default:
		output := result.Output
		updated, err := e.updateCell(ctx, sheet, ref, func(c *model.Cell) {
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
			return false, fmt.Errorf("complete %s: %w", key, err)
		}
		e.notifyCompleted(updated)
		return true, nil
	}
}

// failCell records a terminal provider failure on the cell and returns
// it as a ProviderError. The message is surfaced verbatim.
func (e *Engine) failCell(ctx context.Context, sheet, ref, message string) error {
	updated, err := e.updateCell(ctx, sheet, ref, func(c *model.Cell) {
		c.Status = model.StatusError
		c.Output = "Error: " + message
		c.JobID = ""
	})
	if err != nil {
		log.Printf("failed to record error on %s: %v", cellKey(sheet, ref), err)
	}
	e.notifyFailed(updated, message)
	return &ProviderError{Message: message}
}

// buildRequest maps a cell's settings onto the provider contract. Media
// parameters are forwarded only for matching model types.
func (e *Engine) buildRequest(cell *model.Cell, resolved string) *GenerateRequest {
	req := &GenerateRequest{
		Prompt:      resolved,
		Model:       cell.Model,
		Temperature: cell.Temperature,
		Format: FormatOptions{
			CharacterLimit: cell.CharacterLimit,
			OutputFormat:   cell.OutputFormat,
		},
	}
	switch model.TypeOf(cell.Model) {
	case model.ModelTypeVideo:
		req.Format.VideoSeconds = cell.VideoSeconds
		req.Format.VideoResolution = cell.VideoResolution
		req.Format.VideoAspectRatio = cell.VideoAspectRatio
	case model.ModelTypeAudio:
		req.Format.AudioVoice = cell.AudioVoice
		req.Format.AudioSpeed = cell.AudioSpeed
		req.Format.AudioFormat = cell.AudioFormat
	}
	return req
}

// Stop cancels a cell's run and polling and clears its status and job
// id. Direct parse-derived neighbors (one hop both ways) with in-flight
// polling are cancelled too. Safe to call on a cell that is not
// running.
func (e *Engine) Stop(ctx context.Context, sheet, ref string) error {
	key := cellKey(sheet, ref)
	e.cancelPoller(key)
	e.clearInFlight(key)
	e.cascade.remove(key)

	cell, err := e.store.GetCell(ctx, sheet, ref)
	if err != nil {
		return nil // deleting an unknown cell's run state is a no-op
	}

	if cell.Status != "" || cell.JobID != "" {
		updated, uerr := e.updateCell(ctx, sheet, ref, func(c *model.Cell) {
			c.Status = ""
			c.JobID = ""
		})
		if uerr == nil {
			e.notifyUpdated(updated)
		}
	}

	e.stopNeighbors(ctx, cell)
	return nil
}

// stopNeighbors cancels in-flight polling for the cell's direct
// references and dependents, one hop only.
func (e *Engine) stopNeighbors(ctx context.Context, cell *model.Cell) {
	neighbors := make(map[string][2]string)
	for _, id := range e.References(cell) {
		if sheet, ref, ok := splitKey(id); ok {
			neighbors[id] = [2]string{sheet, ref}
		}
	}
	deps, err := e.Dependents(ctx, cell.Sheet, cell.Ref)
	if err == nil {
		for _, d := range deps {
			neighbors[d.Key()] = [2]string{d.Sheet, d.Ref}
		}
	}

	for key, sr := range neighbors {
		n, err := e.store.GetCell(ctx, sr[0], sr[1])
		if err != nil {
			continue
		}
		if !e.isInFlight(key) && !n.Status.IsActive() {
			continue
		}
		e.cancelPoller(key)
		e.clearInFlight(key)
		e.cascade.remove(key)
		updated, uerr := e.updateCell(ctx, sr[0], sr[1], func(c *model.Cell) {
			c.Status = ""
			c.JobID = ""
		})
		if uerr == nil {
			e.notifyUpdated(updated)
		}
	}
}

func splitKey(key string) (sheet, ref string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == '!' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}
