package worker

import (
	"sync"
	"time"
)

// watchdogTick is how often the watchdog wakes to check for expiry (spec
// §4.4: "wakes every 15 s").
const watchdogTick = 15 * time.Second

// watchdogTimeout is the per-unit upstream-call budget (spec §4.4: "the
// 2-minute expiry").
const watchdogTimeout = 2 * time.Minute

// watchdog defends against an upstream endpoint that accepts a request and
// never answers: begin() arms a deadline, and if it passes before stop() is
// called, the watchdog's helper goroutine invokes the interrupt function
// supplied at construction — which cancels the worker's in-flight context.
type watchdog struct {
	interrupt func()

	mu       sync.Mutex
	deadline time.Time
	armed    bool

	stopCh chan struct{}
}

func newWatchdog(interrupt func()) *watchdog {
	w := &watchdog{interrupt: interrupt, stopCh: make(chan struct{})}
	go w.loop()
	return w
}

func (w *watchdog) loop() {
	ticker := time.NewTicker(watchdogTick)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.mu.Lock()
			expired := w.armed && time.Now().After(w.deadline)
			w.mu.Unlock()
			if expired {
				w.interrupt()
			}
		}
	}
}

// begin arms the deadline for one unit of work.
func (w *watchdog) begin() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armed = true
	w.deadline = time.Now().Add(watchdogTimeout)
}

// stop disarms the deadline, for use immediately after a unit completes
// (successfully or not), before the watchdog can fire spuriously.
func (w *watchdog) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armed = false
}

// close permanently shuts down the watchdog's helper goroutine. Called once
// when runUnit finishes the unit the watchdog was created for.
func (w *watchdog) close() {
	close(w.stopCh)
}
