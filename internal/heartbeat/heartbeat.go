// Package heartbeat runs the periodic liveness signal the orchestrator
// relies on to know a worker is alive, including during a long-running
// benchmark. Grounded on the teacher's original_source counterpart,
// worker_agent.py's start_continuous_heartbeat/_heartbeat_loop: the same
// idempotent start/stop guards and the interval sliced into 100ms waits
// so stop is prompt, translated from a daemon thread polling a bool flag
// to a goroutine selecting on a stop channel.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// sleepSlice bounds how long Stop can take to take effect.
const sleepSlice = 100 * time.Millisecond

// Sender issues one heartbeat call. Implemented by
// *orchestratorclient.Client in production, stubbed in tests.
type Sender interface {
	Heartbeat(ctx context.Context, workerID string) error
}

// Ticker sends one heartbeat every period while running, tolerating
// individual failures without ever stopping on its own.
type Ticker struct {
	sender   Sender
	workerID string
	period   time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	failureCount int
}

// New returns a Ticker that heartbeats workerID via sender every period.
func New(sender Sender, workerID string, period time.Duration, logger *zap.Logger) *Ticker {
	return &Ticker{sender: sender, workerID: workerID, period: period, logger: logger}
}

// Start begins ticking. A second Start while already running is a no-op,
// logged as a warning rather than an error — restarting an already-live
// ticker is a caller bug, not a fatal condition.
func (t *Ticker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.logger.Warn("heartbeat ticker already running")
		return
	}
	t.running = true
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.loop(t.stop, t.done)
}

// Stop ends ticking and waits for the loop goroutine to exit. Calling
// Stop when not running is a no-op.
func (t *Ticker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	stop, done := t.stop, t.done
	t.running = false
	t.mu.Unlock()

	close(stop)
	<-done
}

// FailureCount reports how many heartbeat calls have failed since Start.
func (t *Ticker) FailureCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failureCount
}

func (t *Ticker) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		ctx, cancel := context.WithTimeout(context.Background(), t.period)
		err := t.sender.Heartbeat(ctx, t.workerID)
		cancel()

		if err != nil {
			t.mu.Lock()
			t.failureCount++
			t.mu.Unlock()
			t.logger.Warn("heartbeat failed", zap.Error(err), zap.String("worker_id", t.workerID))
		}

		if t.sleepInSlices(stop) {
			return
		}
	}
}

// sleepInSlices waits for one full period, checking stop at least every
// sleepSlice so Stop takes effect promptly. Returns true if stop fired.
func (t *Ticker) sleepInSlices(stop <-chan struct{}) bool {
	elapsed := time.Duration(0)
	for elapsed < t.period {
		slice := sleepSlice
		if remaining := t.period - elapsed; remaining < slice {
			slice = remaining
		}
		select {
		case <-stop:
			return true
		case <-time.After(slice):
			elapsed += slice
		}
	}
	return false
}
