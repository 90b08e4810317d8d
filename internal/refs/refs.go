// Package refs parses the {{...}} reference grammar embedded in cell
// prompts. Parsing is total: malformed tokens are kept as invalid spans
// that resolve to nothing, and never produce an error.
package refs

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind tags a parsed token.
type Kind int

const (
	KindPrompt          Kind = iota // {{A1}}, {{prompt:A1}}, {{Sheet1!A1}}
	KindOutput                      // {{output:A1}}, {{output:Sheet1!A1}}
	KindGeneration                  // {{A1-3}}
	KindGenerationRange             // {{A1:1-2}}
	KindConditional                 // {{if:COND}}then:...{{else:...}}
	KindInvalid                     // malformed span, resolves to ""
)

// Token is one parsed span of a prompt.
type Token struct {
	Kind  Kind
	Raw   string // full span text, including braces
	Start int    // byte offset of span start
	End   int    // byte offset one past span end

	Sheet string // "" means same sheet
	Cell  string // "A1"

	// 1-indexed generation bounds; GenEnd == GenStart for a single
	// generation reference.
	GenStart int
	GenEnd   int

	// Conditional fields.
	Cond    string
	Then    string
	Else    string
	HasElse bool
}

// CellID addresses a cell, optionally on another sheet.
type CellID struct {
	Sheet string // "" means same sheet as the referencing cell
	Ref   string
}

var (
	cellRefRe  = regexp.MustCompile(`^[A-Za-z]+[0-9]+$`)
	genRe      = regexp.MustCompile(`^([A-Za-z]+[0-9]+)-([0-9]+)$`)
	genRangeRe = regexp.MustCompile(`^([A-Za-z]+[0-9]+):([0-9]+)-([0-9]+)$`)
)

// IsCellRef reports whether s matches the bare cell reference pattern
// after stripping sheet and generation qualifiers. Used by the
// condition evaluator to decide between a lookup and a literal.
func IsCellRef(s string) bool {
	_, rest := splitSheet(s)
	if m := genRe.FindStringSubmatch(rest); m != nil {
		rest = m[1]
	} else if m := genRangeRe.FindStringSubmatch(rest); m != nil {
		rest = m[1]
	}
	return cellRefRe.MatchString(rest)
}

// splitSheet splits on the first '!'. Sheet qualifiers come off before
// generation qualifiers.
func splitSheet(s string) (sheet, rest string) {
	if i := strings.Index(s, "!"); i >= 0 {
		return s[:i], s[i+1:]
	}
	return "", s
}

// Parse tokenizes a prompt. It never fails: unbalanced braces and
// unrecognized token bodies come back as KindInvalid spans.
func Parse(prompt string) []Token {
	var tokens []Token
	i := 0
	for i < len(prompt) {
		open := strings.Index(prompt[i:], "{{")
		if open < 0 {
			break
		}
		start := i + open
		if strings.HasPrefix(prompt[start:], "{{if:") {
			tok, next := parseConditional(prompt, start)
			tokens = append(tokens, tok)
			i = next
			continue
		}
		close := strings.Index(prompt[start+2:], "}}")
		if close < 0 {
			// unbalanced opener, skip it
			i = start + 2
			continue
		}
		end := start + 2 + close + 2
		inner := prompt[start+2 : end-2]
		if j := strings.Index(inner, "{{"); j >= 0 {
			// the opener is unbalanced; rescan from the nested one so
			// a later well-formed token still parses
			i = start + 2 + j
			continue
		}
		tok := parsePlain(inner)
		tok.Raw = prompt[start:end]
		tok.Start = start
		tok.End = end
		tokens = append(tokens, tok)
		i = end
	}
	return tokens
}

// parsePlain classifies the inside of a non-conditional {{...}} token.
func parsePlain(inner string) Token {
	body := inner
	kind := KindPrompt
	if strings.HasPrefix(body, "prompt:") {
		body = strings.TrimPrefix(body, "prompt:")
	} else if strings.HasPrefix(body, "output:") {
		kind = KindOutput
		body = strings.TrimPrefix(body, "output:")
	}

	// sheet qualifier comes off before generation qualifiers
	sheet, rest := splitSheet(body)

	if m := genRangeRe.FindStringSubmatch(rest); m != nil {
		lo, _ := strconv.Atoi(m[2])
		hi, _ := strconv.Atoi(m[3])
		return Token{Kind: KindGenerationRange, Sheet: sheet, Cell: m[1], GenStart: lo, GenEnd: hi}
	}
	if m := genRe.FindStringSubmatch(rest); m != nil {
		n, _ := strconv.Atoi(m[2])
		return Token{Kind: KindGeneration, Sheet: sheet, Cell: m[1], GenStart: n, GenEnd: n}
	}
	if cellRefRe.MatchString(rest) {
		return Token{Kind: kind, Sheet: sheet, Cell: rest}
	}
	return Token{Kind: KindInvalid}
}

// parseConditional parses a {{if:COND}}then:THEN{{else:ELSE}} block
// starting at start. THEN ends at the first top-level {{else: marker;
// without one it runs to the end of the prompt. Branch text may contain
// nested {{...}} tokens, honored by brace counting.
func parseConditional(prompt string, start int) (Token, int) {
	condStart := start + len("{{if:")
	condEnd := strings.Index(prompt[condStart:], "}}")
	if condEnd < 0 {
		return Token{Kind: KindInvalid, Raw: prompt[start:], Start: start, End: len(prompt)}, len(prompt)
	}
	cond := prompt[condStart : condStart+condEnd]
	rest := condStart + condEnd + 2

	if !strings.HasPrefix(prompt[rest:], "then:") {
		raw := prompt[start:rest]
		return Token{Kind: KindInvalid, Raw: raw, Start: start, End: rest}, rest
	}
	thenStart := rest + len("then:")

	// scan for a top-level {{else: marker, counting nested braces
	depth := 0
	elseAt := -1
	j := thenStart
	for j < len(prompt)-1 {
		switch {
		case strings.HasPrefix(prompt[j:], "{{else:") && depth == 0:
			elseAt = j
		case strings.HasPrefix(prompt[j:], "{{"):
			depth++
			j += 2
			continue
		case strings.HasPrefix(prompt[j:], "}}"):
			if depth > 0 {
				depth--
			}
			j += 2
			continue
		}
		if elseAt >= 0 {
			break
		}
		j++
	}

	if elseAt < 0 {
		tok := Token{
			Kind:  KindConditional,
			Raw:   prompt[start:],
			Start: start,
			End:   len(prompt),
			Cond:  cond,
			Then:  prompt[thenStart:],
		}
		return tok, len(prompt)
	}

	elseStart := elseAt + len("{{else:")
	// find the brace-balanced closing }} of the else branch
	depth = 0
	k := elseStart
	end := -1
	for k < len(prompt)-1 {
		if strings.HasPrefix(prompt[k:], "{{") {
			depth++
			k += 2
			continue
		}
		if strings.HasPrefix(prompt[k:], "}}") {
			if depth == 0 {
				end = k
				break
			}
			depth--
			k += 2
			continue
		}
		k++
	}
	if end < 0 {
		tok := Token{
			Kind:    KindConditional,
			Raw:     prompt[start:],
			Start:   start,
			End:     len(prompt),
			Cond:    cond,
			Then:    prompt[thenStart:elseAt],
			Else:    prompt[elseStart:],
			HasElse: true,
		}
		return tok, len(prompt)
	}

	tok := Token{
		Kind:    KindConditional,
		Raw:     prompt[start : end+2],
		Start:   start,
		End:     end + 2,
		Cond:    cond,
		Then:    prompt[thenStart:elseAt],
		Else:    prompt[elseStart:end],
		HasElse: true,
	}
	return tok, end + 2
}

// Dependencies extracts every cell referenced by a prompt, including
// references nested in conditional branches and the operands of
// conditional expressions. currentSheet fills in same-sheet references.
func Dependencies(prompt, currentSheet string) []CellID {
	seen := make(map[CellID]bool)
	var out []CellID
	add := func(id CellID) {
		if id.Sheet == "" {
			id.Sheet = currentSheet
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	collect(prompt, currentSheet, add)
	return out
}

func collect(prompt, currentSheet string, add func(CellID)) {
	for _, tok := range Parse(prompt) {
		switch tok.Kind {
		case KindPrompt, KindOutput, KindGeneration, KindGenerationRange:
			add(CellID{Sheet: tok.Sheet, Ref: tok.Cell})
		case KindConditional:
			for _, side := range CondOperands(tok.Cond) {
				if IsCellRef(side) {
					sheet, rest := splitSheet(side)
					rest = stripGenQualifier(rest)
					add(CellID{Sheet: sheet, Ref: rest})
				}
			}
			collect(tok.Then, currentSheet, add)
			if tok.HasElse {
				collect(tok.Else, currentSheet, add)
			}
		}
	}
}

func stripGenQualifier(s string) string {
	if m := genRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if m := genRangeRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// condOps is the operator priority order of the condition grammar.
var condOps = []string{"!=", "==", ">=", "<=", ">", "<", " contains ", " startsWith ", " endsWith ", "="}

// CondOperands splits a condition on its first matching operator and
// returns the trimmed sides. A condition with no operator yields a
// single operand (the truthy-check subject).
func CondOperands(cond string) []string {
	for _, op := range condOps {
		if i := strings.Index(cond, op); i >= 0 {
			left := strings.TrimSpace(cond[:i])
			right := strings.TrimSpace(cond[i+len(op):])
			return []string{left, right}
		}
	}
	return []string{strings.TrimSpace(cond)}
}
