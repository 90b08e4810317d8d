package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// InsufficientCreditsError is a distinguished run failure: the user can
// recover by topping up, so callers surface it with an upgrade prompt
// instead of marking the cell errored.
type InsufficientCreditsError struct {
	Needed    int
	Available int
}

// The message wording is load-bearing: clients parse it with the fixed
// regex below, so it must not change.
func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("Insufficient credits. You need %d credits but only have %d", e.Needed, e.Available)
}

var insufficientCreditsRe = regexp.MustCompile(`You need (\d+) credits but only have (\d+)`)

// ParseInsufficientCredits recovers the typed error from a billing
// collaborator's message string.
func ParseInsufficientCredits(msg string) (*InsufficientCreditsError, bool) {
	m := insufficientCreditsRe.FindStringSubmatch(msg)
	if m == nil {
		return nil, false
	}
	needed, _ := strconv.Atoi(m[1])
	available, _ := strconv.Atoi(m[2])
	return &InsufficientCreditsError{Needed: needed, Available: available}, true
}

// ProviderError is a generation failure reported by the model provider.
// It is surfaced verbatim and the cell is marked errored. No automatic
// retries anywhere: every failure is terminal for that run.
type ProviderError struct {
	Message string
}

func (e *ProviderError) Error() string {
	return e.Message
}

// ErrEngineClosed is returned by Run once Close has been called.
var ErrEngineClosed = errors.New("engine closed")
