package timer

import (
	"sync"
	"time"
)

// Ticker is a cancelable repeating task. Start replaces any schedule already
// running, so at most one callback loop exists at a time.
type Ticker struct {
	interval time.Duration

	mu   sync.Mutex
	done chan struct{}
}

func NewTicker(interval time.Duration) *Ticker {
	return &Ticker{interval: interval}
}

// Start cancels the current schedule and calls fn every interval until Stop
// or the next Start.
func (t *Ticker) Start(fn func(time.Time)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	done := make(chan struct{})
	t.done = done

	go func() {
		tk := time.NewTicker(t.interval)
		defer tk.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-tk.C:
				select {
				case <-done:
					return
				default:
				}
				fn(now)
			}
		}
	}()
}

// Stop cancels the schedule. It is safe to call when nothing is scheduled.
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Running reports whether a schedule is active.
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done != nil
}

func (t *Ticker) stopLocked() {
	if t.done != nil {
		close(t.done)
		t.done = nil
	}
}
