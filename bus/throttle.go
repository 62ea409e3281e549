package bus

import (
	"sync"
	"time"

	"github.com/pace-labs/wodflow/core"
	"github.com/pace-labs/wodflow/runtime"
)

// ThrottleConfig controls the behavior of ThrottledHandler.
type ThrottleConfig struct {
	// CoalesceInterval is how often to flush coalesced progress notifications.
	// Default: 100ms
	CoalesceInterval time.Duration
}

// ThrottledHandler wraps a runtime.NotificationHandler and coalesces
// high-frequency timer_progress notifications. Other notifications pass
// through immediately. Progress notifications are coalesced per block: only
// the latest progress for each block is kept within each coalesce interval.
// A background ticker flushes coalesced progress at the configured interval.
type ThrottledHandler struct {
	next     runtime.NotificationHandler
	interval time.Duration

	mu      sync.Mutex
	pending map[core.BlockKey]runtime.Notification // block -> latest progress
	closed  bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewThrottledHandler creates a new ThrottledHandler that wraps the given
// handler and coalesces NotificationTimerProgress at the configured interval.
func NewThrottledHandler(next runtime.NotificationHandler, cfg ThrottleConfig) *ThrottledHandler {
	interval := cfg.CoalesceInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	th := &ThrottledHandler{
		next:     next,
		interval: interval,
		pending:  make(map[core.BlockKey]runtime.Notification),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	go th.run()

	return th
}

// Handle processes a notification. Non-progress notifications pass through
// immediately to the wrapped handler. Progress notifications
// (NotificationTimerProgress) are coalesced: only the latest progress per
// block is kept and flushed at the configured interval.
func (th *ThrottledHandler) Handle(n runtime.Notification) {
	if n.Kind != runtime.NotificationTimerProgress {
		// Non-progress notifications pass through immediately.
		th.next(n)
		return
	}

	// Progress notifications are coalesced per block.
	th.mu.Lock()
	defer th.mu.Unlock()

	if th.closed {
		return
	}

	th.pending[n.Block] = n
}

// Close flushes any pending progress notifications and stops the background
// ticker. It is safe to call Close multiple times.
func (th *ThrottledHandler) Close() {
	th.mu.Lock()
	if th.closed {
		th.mu.Unlock()
		return
	}
	th.closed = true
	th.mu.Unlock()

	// Signal the background goroutine to stop.
	close(th.stopCh)

	// Wait for the background goroutine to finish.
	<-th.doneCh
}

// run is the background goroutine that periodically flushes coalesced
// progress.
func (th *ThrottledHandler) run() {
	defer close(th.doneCh)

	ticker := time.NewTicker(th.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			th.flush()
		case <-th.stopCh:
			// Flush any remaining pending notifications before exiting.
			th.flush()
			return
		}
	}
}

// flush sends all pending coalesced progress notifications to the wrapped
// handler and clears the pending map.
func (th *ThrottledHandler) flush() {
	th.mu.Lock()
	if len(th.pending) == 0 {
		th.mu.Unlock()
		return
	}

	// Swap out the pending map so we can release the lock during delivery.
	toFlush := th.pending
	th.pending = make(map[core.BlockKey]runtime.Notification)
	th.mu.Unlock()

	for _, n := range toFlush {
		th.next(n)
	}
}
