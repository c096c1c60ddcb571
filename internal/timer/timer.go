// Package timer tracks elapsed connected time of a voice session.
package timer

import (
	"fmt"
	"sync"
	"time"
)

// Timer counts whole ticks while running. It is a plain counter with no
// wall-clock correction.
type Timer struct {
	interval time.Duration

	mu      sync.Mutex
	elapsed int
	started bool
	stop    chan struct{}
}

// New creates a timer ticking once per interval; zero means one second.
func New(interval time.Duration) *Timer {
	if interval <= 0 {
		interval = time.Second
	}
	return &Timer{interval: interval}
}

// Start resets the count to zero and begins ticking. Starting a running timer
// restarts it from zero.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.haltLocked()
	t.elapsed = 0
	t.started = true
	t.runLocked()
}

// Stop halts the timer and resets the count.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.haltLocked()
	t.elapsed = 0
	t.started = false
}

// Pause suspends ticking without resetting.
func (t *Timer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.haltLocked()
}

// Resume continues a paused timer. It does nothing if the timer was never
// started or is already running.
func (t *Timer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started || t.stop != nil {
		return
	}
	t.runLocked()
}

// Elapsed returns the number of ticks counted so far.
func (t *Timer) Elapsed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsed
}

// Running reports whether the timer is currently ticking.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

func (t *Timer) runLocked() {
	stop := make(chan struct{})
	t.stop = stop

	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				t.mu.Lock()
				if t.stop == stop {
					t.elapsed++
				}
				t.mu.Unlock()
			}
		}
	}()
}

// haltLocked stops the ticking goroutine. The goroutine only takes the lock
// to count, and the identity check above keeps a late tick from landing.
func (t *Timer) haltLocked() {
	if t.stop == nil {
		return
	}
	close(t.stop)
	t.stop = nil
}

// Format renders seconds as m:ss, or h:mm:ss from one hour on.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}
