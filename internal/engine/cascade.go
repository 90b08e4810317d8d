package engine

import (
	"context"
	"log"
	"sync"
)

// cascadeQueue finds auto-run dependents of freshly completed cells and
// runs them strictly one at a time. Serializing the queue bounds
// concurrent provider calls when many cells become runnable at once
// (e.g. three cells all referencing the same completed cell).
type cascadeQueue struct {
	e *Engine

	mu      sync.Mutex
	queue   []string
	queued  map[string]bool
	visited map[string]bool // cells run during the current pass; cycles fail closed
	wake    chan struct{}
}

func newCascadeQueue(e *Engine) *cascadeQueue {
	return &cascadeQueue{
		e:       e,
		queued:  make(map[string]bool),
		visited: make(map[string]bool),
		wake:    make(chan struct{}, 1),
	}
}

// trigger is called after a cell completes. Every auto-run cell whose
// prompt references the completed cell is considered; it is enqueued
// only when all of its own dependencies have settled, not just the
// completed cell.
func (q *cascadeQueue) trigger(sheet, ref string) {
	ctx := q.e.baseCtx
	dependents, err := q.e.Dependents(ctx, sheet, ref)
	if err != nil {
		log.Printf("cascade: dependents of %s: %v", cellKey(sheet, ref), err)
		return
	}

	for _, dep := range dependents {
		if !dep.AutoRun || dep.Prompt == "" {
			continue
		}
		if !q.e.dependenciesSatisfied(ctx, dep) {
			continue
		}
		q.enqueue(dep.Key())
	}
}

func (q *cascadeQueue) enqueue(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.queued[key] || q.visited[key] {
		return
	}
	q.queued[key] = true
	q.queue = append(q.queue, key)
	q.wakeLocked()
}

func (q *cascadeQueue) wakeLocked() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *cascadeQueue) wakeUp() {
	q.mu.Lock()
	q.wakeLocked()
	q.mu.Unlock()
}

// remove drops a cell from the pending queue, used by Stop.
func (q *cascadeQueue) remove(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.queued[key] {
		return
	}
	delete(q.queued, key)
	for i, k := range q.queue {
		if k == key {
			q.queue = append(q.queue[:i], q.queue[i+1:]...)
			break
		}
	}
}

// pop takes the next queued cell, marking it visited for the rest of
// the pass. An empty queue ends the pass and clears the visited set.
func (q *cascadeQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) == 0 {
		q.visited = make(map[string]bool)
		return "", false
	}
	key := q.queue[0]
	q.queue = q.queue[1:]
	delete(q.queued, key)
	q.visited[key] = true
	return key, true
}

// drain is the single consumer: exactly one run completes, including
// any deferred polling, before the next starts. One dependent's
// failure never aborts the rest of the queue.
func (q *cascadeQueue) drain(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}

		for {
			key, ok := q.pop()
			if !ok {
				break
			}
			sheet, ref, ok := splitKey(key)
			if !ok {
				continue
			}

			// conditions may have changed while queued
			cell, err := q.e.store.GetCell(ctx, sheet, ref)
			if err != nil || !cell.AutoRun || cell.Prompt == "" {
				continue
			}
			if !q.e.dependenciesSatisfied(ctx, cell) {
				continue
			}

			if err := q.e.Run(ctx, sheet, ref); err != nil {
				log.Printf("cascade run %s: %v", key, err)
				continue
			}

			// a deferred job keeps this slot until its poller settles
			if done := q.e.pollerDone(key); done != nil {
				select {
				case <-ctx.Done():
					return
				case <-done:
				}
			}
		}
	}
}
