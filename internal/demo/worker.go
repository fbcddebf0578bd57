package demo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/namelens/ratethrottle/internal/core"
	"github.com/namelens/ratethrottle/internal/throttle"
)

type worker struct {
	id  throttle.WorkerID
	key string

	mu        sync.Mutex
	requests  int
	retries   int
	maxSleep  float64
	lastSleep float64
}

func newWorker(pid int, id throttle.WorkerID) *worker {
	return &worker{id: id, key: fmt.Sprintf("%d:%s", pid, id)}
}

func (w *worker) countRequest() {
	w.mu.Lock()
	w.requests++
	w.mu.Unlock()
}

func (w *worker) countRetry() {
	w.mu.Lock()
	w.retries++
	w.mu.Unlock()
}

// recordSleep tracks the requested sleep in simulated seconds.
func (w *worker) recordSleep(d time.Duration) {
	seconds := d.Seconds()
	w.mu.Lock()
	w.lastSleep = seconds
	if seconds > w.maxSleep {
		w.maxSleep = seconds
	}
	w.mu.Unlock()
}

func (w *worker) last() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSleep
}

func (w *worker) counters() (requests, retries int, maxSleep float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.requests, w.retries, w.maxSleep
}

func (w *worker) result() core.WorkerResult {
	requests, retries, maxSleep := w.counters()
	return core.NewWorkerResult(w.key, maxSleep, retries, requests)
}

// recordingClock attributes every throttle sleep to the worker carried in
// the context before delegating to the real clock.
type recordingClock struct {
	throttle.Clock
	workers map[throttle.WorkerID]*worker
}

func (c *recordingClock) Sleep(ctx context.Context, d time.Duration) error {
	if id, ok := throttle.WorkerFromContext(ctx); ok {
		if w := c.workers[id]; w != nil {
			w.recordSleep(d)
		}
	}
	return c.Clock.Sleep(ctx, d)
}
