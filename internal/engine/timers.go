package engine

import (
	"context"
	"log"
	"sync"
	"time"
)

// timerSet owns the interval timers: one ticker goroutine per cell with
// autoRun enabled, a positive interval and a non-empty prompt. Timers
// are rebuilt whenever the cell set changes and fully cancelled on
// teardown.
type timerSet struct {
	e *Engine

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func newTimerSet(e *Engine) *timerSet {
	return &timerSet{e: e, cancels: make(map[string]context.CancelFunc)}
}

// RebuildTimers cancels all interval timers and recreates them from the
// current cell set.
func (e *Engine) RebuildTimers(ctx context.Context) error {
	cells, err := e.allCells(ctx)
	if err != nil {
		return err
	}

	t := e.timers
	t.mu.Lock()
	for _, cancel := range t.cancels {
		cancel()
	}
	t.cancels = make(map[string]context.CancelFunc)

	for _, c := range cells {
		if !c.AutoRun || c.Interval <= 0 || c.Prompt == "" {
			continue
		}
		key := cellKey(c.Sheet, c.Ref)
		tctx, cancel := context.WithCancel(e.baseCtx)
		t.cancels[key] = cancel
		t.wg.Add(1)
		go t.tick(tctx, c.Sheet, c.Ref, key, time.Duration(c.Interval)*time.Second)
	}
	t.mu.Unlock()
	return nil
}

func (t *timerSet) tick(ctx context.Context, sheet, ref, key string, every time.Duration) {
	defer t.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if t.e.isInFlight(key) {
			continue
		}
		if err := t.e.Run(ctx, sheet, ref); err != nil {
			log.Printf("interval run %s: %v", key, err)
		}
	}
}

// close cancels every timer and waits for the goroutines to drain.
func (t *timerSet) close() {
	t.mu.Lock()
	for _, cancel := range t.cancels {
		cancel()
	}
	t.cancels = make(map[string]context.CancelFunc)
	t.mu.Unlock()
	t.wg.Wait()
}
