// Package engine implements the dependency-aware cell execution engine:
// template resolution, run scheduling with duplicate suppression, async
// job polling, auto-run cascading and interval timers.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/promptgrid/api/internal/model"
)

// Store is the persistence collaborator the engine reads and writes
// cells through. Implementations live in internal/store.
type Store interface {
	GetCell(ctx context.Context, sheet, ref string) (*model.Cell, error)
	SaveCell(ctx context.Context, cell *model.Cell) error
	ListCells(ctx context.Context, sheet string) ([]*model.Cell, error)
	ListSheets(ctx context.Context) ([]string, error)
}

// Provider is the generative-model collaborator.
type Provider interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)
	JobStatus(ctx context.Context, jobID string) (*JobStatusResult, error)
}

// Billing checks and deducts credits before a provider call. A nil
// Billing disables credit accounting.
type Billing interface {
	CheckAndDeductCredits(ctx context.Context, userID string, cost int) (remaining int, err error)
}

// Notifier receives cell state changes as they happen, typically to
// push them over a websocket. A nil Notifier is a no-op.
type Notifier interface {
	CellUpdated(cell *model.Cell)
	CellCompleted(cell *model.Cell)
	CellFailed(cell *model.Cell, message string)
}

// GenerateRequest is the provider call contract.
type GenerateRequest struct {
	Prompt      string        `json:"resolvedPrompt"`
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Format      FormatOptions `json:"formatOptions"`
}

// FormatOptions carries output shaping and media parameters. Media
// fields are populated only when the model's type matches.
type FormatOptions struct {
	CharacterLimit   int     `json:"characterLimit,omitempty"`
	OutputFormat     string  `json:"outputFormat,omitempty"`
	VideoSeconds     int     `json:"videoSeconds,omitempty"`
	VideoResolution  string  `json:"videoResolution,omitempty"`
	VideoAspectRatio string  `json:"videoAspectRatio,omitempty"`
	AudioVoice       string  `json:"audioVoice,omitempty"`
	AudioSpeed       float64 `json:"audioSpeed,omitempty"`
	AudioFormat      string  `json:"audioFormat,omitempty"`
}

// ResultKind tags a provider response.
type ResultKind int

const (
	ResultImmediate ResultKind = iota // output available synchronously
	ResultDeferred                    // async job queued, poll by job id
)

// GenerateResult is the tagged provider response. Failures arrive as
// errors, not as a result kind.
type GenerateResult struct {
	Kind   ResultKind
	Output string // immediate only
	JobID  string // deferred only
}

// JobStatusResult is the provider's job status contract.
type JobStatusResult struct {
	Status string `json:"status"` // pending|running|queued|processing|in_progress|complete|error
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Config holds engine tunables.
type Config struct {
	PollInterval time.Duration
	Costs        map[model.ModelType]int // credits per provider call by modality
}

func (c Config) cost(modelName string) int {
	if c.Costs == nil {
		return 1
	}
	if v, ok := c.Costs[model.TypeOf(modelName)]; ok {
		return v
	}
	return 1
}

// Engine owns all run state for a session: the in-flight set, per-cell
// write locks, active pollers, the cascade queue and interval timers.
// Nothing is ambient; Close tears everything down.
type Engine struct {
	store    Store
	provider Provider
	billing  Billing
	notifier Notifier
	cfg      Config

	mu       sync.Mutex
	inFlight map[string]bool        // cell key -> running
	locks    map[string]*sync.Mutex // cell key -> write lock
	pollers  map[string]*poller     // cell key -> active poll loop
	resolved map[string]string      // cell key -> prompt sent for a deferred job

	cascade *cascadeQueue
	timers  *timerSet

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
}

// New builds an engine. billing and notifier may be nil.
func New(store Store, provider Provider, billing Billing, notifier Notifier, cfg Config) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:    store,
		provider: provider,
		billing:  billing,
		notifier: notifier,
		cfg:      cfg,
		inFlight: make(map[string]bool),
		locks:    make(map[string]*sync.Mutex),
		pollers:  make(map[string]*poller),
		resolved: make(map[string]string),
		baseCtx:  ctx,
		cancel:   cancel,
	}
	e.cascade = newCascadeQueue(e)
	e.timers = newTimerSet(e)
	e.wg.Add(1)
	go e.cascade.drain(ctx, &e.wg)
	return e
}

// Close cancels pollers, timers and the cascade drain loop and waits
// for them to exit.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.timers.close()
	e.cancel()
	e.cascade.wakeUp()
	e.wg.Wait()
}

func cellKey(sheet, ref string) string {
	return sheet + "!" + ref
}

// lockFor returns the write lock for a cell key, creating it on first
// use. All cell mutations go through updateCell holding this lock, so
// the scheduler, poller and cascade never interleave partial writes.
func (e *Engine) lockFor(key string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	return l
}

// updateCell applies fn to the current cell state under the cell's
// write lock and persists the result.
func (e *Engine) updateCell(ctx context.Context, sheet, ref string, fn func(*model.Cell)) (*model.Cell, error) {
	l := e.lockFor(cellKey(sheet, ref))
	l.Lock()
	defer l.Unlock()

	cell, err := e.store.GetCell(ctx, sheet, ref)
	if err != nil {
		return nil, err
	}
	fn(cell)
	cell.UpdatedAt = time.Now()
	if err := e.store.SaveCell(ctx, cell); err != nil {
		return nil, err
	}
	return cell, nil
}

func (e *Engine) markInFlight(key string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, ErrEngineClosed
	}
	if e.inFlight[key] {
		return false, nil
	}
	e.inFlight[key] = true
	return true, nil
}

func (e *Engine) clearInFlight(key string) {
	e.mu.Lock()
	delete(e.inFlight, key)
	e.mu.Unlock()
}

func (e *Engine) isInFlight(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[key] {
		return true
	}
	_, polling := e.pollers[key]
	return polling
}

func (e *Engine) notifyUpdated(cell *model.Cell) {
	if e.notifier != nil && cell != nil {
		e.notifier.CellUpdated(cell)
	}
}

func (e *Engine) notifyCompleted(cell *model.Cell) {
	if e.notifier != nil && cell != nil {
		e.notifier.CellCompleted(cell)
	}
}

func (e *Engine) notifyFailed(cell *model.Cell, msg string) {
	if e.notifier != nil && cell != nil {
		e.notifier.CellFailed(cell, msg)
	}
}
