package engine

import (
	"context"

	"github.com/promptgrid/api/internal/model"
	"github.com/promptgrid/api/internal/refs"
)

// Dependencies are derived live from prompt text on every call, never
// cached, so edits are reflected immediately.

// References returns the cells a cell's prompt reads, as cross-sheet
// keys ("Sheet1!A1").
func (e *Engine) References(cell *model.Cell) []string {
	deps := refs.Dependencies(cell.Prompt, cell.Sheet)
	out := make([]string, 0, len(deps))
	for _, d := range deps {
		out = append(out, cellKey(d.Sheet, d.Ref))
	}
	return out
}

// Dependents scans every sheet for cells whose prompts reference the
// given cell.
func (e *Engine) Dependents(ctx context.Context, sheet, ref string) ([]*model.Cell, error) {
	target := cellKey(sheet, ref)
	cells, err := e.allCells(ctx)
	if err != nil {
		return nil, err
	}
	var out []*model.Cell
	for _, c := range cells {
		if c.Sheet == sheet && c.Ref == ref {
			continue
		}
		for _, dep := range refs.Dependencies(c.Prompt, c.Sheet) {
			if cellKey(dep.Sheet, dep.Ref) == target {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (e *Engine) allCells(ctx context.Context) ([]*model.Cell, error) {
	sheets, err := e.store.ListSheets(ctx)
	if err != nil {
		return nil, err
	}
	var out []*model.Cell
	for _, s := range sheets {
		cells, err := e.store.ListCells(ctx, s)
		if err != nil {
			return nil, err
		}
		out = append(out, cells...)
	}
	return out, nil
}

// dependenciesSatisfied reports whether every cell referenced by c has
// settled: not in flight, and either completed or a static cell (empty
// prompt, nothing to run). Referenced cells that do not exist resolve
// to empty strings and never block.
func (e *Engine) dependenciesSatisfied(ctx context.Context, c *model.Cell) bool {
	for _, id := range refs.Dependencies(c.Prompt, c.Sheet) {
		dep, err := e.store.GetCell(ctx, id.Sheet, id.Ref)
		if err != nil {
			continue
		}
		if e.isInFlight(dep.Key()) || dep.Status.IsActive() {
			return false
		}
		if dep.Prompt == "" {
			continue
		}
		if dep.Status != model.StatusCompleted {
			return false
		}
	}
	return true
}
