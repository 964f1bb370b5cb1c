package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

// IdleTracker follows in-flight requests of a tab so callers can wait for
// the network to go quiet.
type IdleTracker struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	last     time.Time
	changed  chan struct{} // closed and replaced on every change
}

// NewIdleTracker returns a tracker with nothing in flight
func NewIdleTracker() *IdleTracker {
	return &IdleTracker{
		inflight: make(map[network.RequestID]struct{}),
		last:     time.Now(),
		changed:  make(chan struct{}),
	}
}

// HandleEvent is meant for chromedp.ListenTarget. It runs on the target's
// event loop and must not block.
func (t *IdleTracker) HandleEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.Start(ev.RequestID)
	case *network.EventLoadingFinished:
		t.Finish(ev.RequestID)
	case *network.EventLoadingFailed:
		t.Finish(ev.RequestID)
	}
}

// Start records a request. A redirect reuses the request ID and is counted once.
func (t *IdleTracker) Start(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[id] = struct{}{}
	t.touch()
}

// Finish records a request ending, successfully or not
func (t *IdleTracker) Finish(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, id)
	t.touch()
}

// Reset forgets everything in flight; used when the tab navigates away
func (t *IdleTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight = make(map[network.RequestID]struct{})
	t.touch()
}

// Inflight returns the number of requests still open
func (t *IdleTracker) Inflight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

// touch must be called with mu held
func (t *IdleTracker) touch() {
	t.last = time.Now()
	close(t.changed)
	t.changed = make(chan struct{})
}

// Wait blocks until no request has been in flight for window, or ctx ends
func (t *IdleTracker) Wait(ctx context.Context, window time.Duration) error {
	for {
		t.mu.Lock()
		n := len(t.inflight)
		quiet := time.Since(t.last)
		changed := t.changed
		t.mu.Unlock()

		if n == 0 && quiet >= window {
			return nil
		}

		var (
			timer *time.Timer
			fire  <-chan time.Time
		)
		if n == 0 {
			timer = time.NewTimer(window - quiet)
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case <-changed:
		case <-fire:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}
