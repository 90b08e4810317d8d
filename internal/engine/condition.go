package engine

import (
	"strconv"
	"strings"

	"github.com/promptgrid/api/internal/refs"
)

// LookupFunc resolves a bare cell reference (possibly sheet- or
// generation-qualified) to its value for condition evaluation.
type LookupFunc func(ref string) string

// condOps mirrors the operator priority order of the reference grammar.
var condOps = []string{"!=", "==", ">=", "<=", ">", "<", " contains ", " startsWith ", " endsWith ", "="}

// EvalCondition parses and evaluates an if/else condition expression.
// It never fails: anything that cannot be evaluated is false. A
// condition with no operator is a truthy-check on its subject.
func EvalCondition(cond string, lookup LookupFunc) bool {
	cond = strings.TrimSpace(cond)
	if cond == "" {
		return false
	}

	for _, op := range condOps {
		i := strings.Index(cond, op)
		if i < 0 {
			continue
		}
		left := resolveOperand(strings.TrimSpace(cond[:i]), lookup)
		right := resolveOperand(strings.TrimSpace(cond[i+len(op):]), lookup)
		return applyOp(strings.TrimSpace(op), left, right)
	}

	return truthy(resolveOperand(cond, lookup))
}

// resolveOperand strips surrounding quotes from literals and resolves
// operands that look like cell references through the lookup.
func resolveOperand(s string, lookup LookupFunc) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	if lookup != nil && refs.IsCellRef(s) {
		return lookup(s)
	}
	return s
}

func applyOp(op, left, right string) bool {
	switch op {
	case "==", "=":
		return strings.EqualFold(left, right)
	case "!=":
		return !strings.EqualFold(left, right)
	case ">", "<", ">=", "<=":
		l, lerr := strconv.ParseFloat(strings.TrimSpace(left), 64)
		r, rerr := strconv.ParseFloat(strings.TrimSpace(right), 64)
		if lerr != nil || rerr != nil {
			return false
		}
		switch op {
		case ">":
			return l > r
		case "<":
			return l < r
		case ">=":
			return l >= r
		default:
			return l <= r
		}
	case "contains":
		return strings.Contains(strings.ToLower(left), strings.ToLower(right))
	case "startsWith":
		return strings.HasPrefix(strings.ToLower(left), strings.ToLower(right))
	case "endsWith":
		return strings.HasSuffix(strings.ToLower(left), strings.ToLower(right))
	}
	return false
}

// truthy: non-empty and not the literal strings "null"/"undefined".
func truthy(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	lower := strings.ToLower(v)
	return lower != "null" && lower != "undefined"
}
