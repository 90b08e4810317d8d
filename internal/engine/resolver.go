package engine

import (
	"context"
	"strings"

	"github.com/promptgrid/api/internal/model"
	"github.com/promptgrid/api/internal/refs"
)

// maxResolveDepth bounds recursive prompt substitution so that a
// reference cycle degrades to empty strings instead of recursing
// forever.
const maxResolveDepth = 16

// Resolve produces the fully substituted model input for a cell.
// Resolution is total: unknown cells, missing generation indexes and
// malformed tokens all become empty strings, because a partially
// resolved prompt is still useful to the user.
func (e *Engine) Resolve(ctx context.Context, cell *model.Cell) string {
	visiting := map[string]bool{cellKey(cell.Sheet, cell.Ref): true}
	return e.resolveString(ctx, cell.Sheet, cell.Prompt, visiting, 0)
}

// resolveString substitutes every token in text. Conditional blocks are
// handled before their contents: the branch is chosen first, then any
// nested references inside the chosen branch are resolved.
func (e *Engine) resolveString(ctx context.Context, sheet, text string, visiting map[string]bool, depth int) string {
	if depth > maxResolveDepth {
		return ""
	}
	tokens := refs.Parse(text)
	if len(tokens) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, tok := range tokens {
		b.WriteString(text[last:tok.Start])
		b.WriteString(e.tokenValue(ctx, sheet, tok, visiting, depth))
		last = tok.End
	}
	b.WriteString(text[last:])
	return b.String()
}

func (e *Engine) tokenValue(ctx context.Context, sheet string, tok refs.Token, visiting map[string]bool, depth int) string {
	switch tok.Kind {
	case refs.KindConditional:
		branch := tok.Else
		if EvalCondition(tok.Cond, e.conditionLookup(ctx, sheet)) {
			branch = tok.Then
		} else if !tok.HasElse {
			branch = ""
		}
		return e.resolveString(ctx, sheet, branch, visiting, depth+1)

	case refs.KindPrompt:
		target := e.lookupCell(ctx, sheet, tok.Sheet, tok.Cell)
		if target == nil {
			return ""
		}
		key := target.Key()
		if visiting[key] {
			return ""
		}
		visiting[key] = true
		resolved := e.resolveString(ctx, target.Sheet, target.Prompt, visiting, depth+1)
		delete(visiting, key)
		return resolved

	case refs.KindOutput:
		target := e.lookupCell(ctx, sheet, tok.Sheet, tok.Cell)
		if target == nil {
			return ""
		}
		return target.Output

	case refs.KindGeneration, refs.KindGenerationRange:
		target := e.lookupCell(ctx, sheet, tok.Sheet, tok.Cell)
		if target == nil {
			return ""
		}
		return generationSlice(target, tok.GenStart, tok.GenEnd)
	}
	// malformed spans resolve to empty, never raise
	return ""
}

// generationSlice concatenates the outputs of 1-indexed generations lo
// through hi, in order, separated by newlines. Out-of-range indexes
// contribute nothing.
func generationSlice(cell *model.Cell, lo, hi int) string {
	if lo < 1 || hi < lo {
		return ""
	}
	var parts []string
	for n := lo; n <= hi && n <= len(cell.Generations); n++ {
		parts = append(parts, cell.Generations[n-1].Output)
	}
	return strings.Join(parts, "\n")
}

// lookupCell fetches a referenced cell, defaulting the sheet to the
// referencing cell's sheet. Any failure reads as a missing cell.
func (e *Engine) lookupCell(ctx context.Context, currentSheet, refSheet, ref string) *model.Cell {
	sheet := refSheet
	if sheet == "" {
		sheet = currentSheet
	}
	cell, err := e.store.GetCell(ctx, sheet, ref)
	if err != nil {
		return nil
	}
	return cell
}

// conditionLookup resolves condition operands that look like cell
// references. Bare references read the cell's output; generation
// qualifiers read the matching history slice.
func (e *Engine) conditionLookup(ctx context.Context, currentSheet string) LookupFunc {
	return func(ref string) string {
		for _, tok := range refs.Parse("{{output:" + ref + "}}") {
			switch tok.Kind {
			case refs.KindOutput, refs.KindGeneration, refs.KindGenerationRange:
				return e.tokenValue(ctx, currentSheet, tok, map[string]bool{}, 0)
			}
		}
		return ""
	}
}
