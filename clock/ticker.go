package clock

import (
	"sync"
	"time"
)

// TickerConfig controls a Ticker.
type TickerConfig struct {
	// Interval is the time between ticks. Default: 250ms.
	Interval time.Duration

	// Clock stamps each tick's instant. Default: System().
	Clock Clock

	// OnTick receives each tick instant. Required.
	OnTick func(time.Time)
}

// Ticker is a periodic tick source. It runs on its own goroutine and hands
// each tick instant to the configured callback; the engine treats those
// ticks as ordinary dispatched events and never blocks the ticker. It is
// safe to call Stop multiple times.
type Ticker struct {
	interval time.Duration
	clock    Clock
	onTick   func(time.Time)

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewTicker creates a Ticker from cfg, applying defaults. It does not start
// ticking until Start is called.
func NewTicker(cfg TickerConfig) *Ticker {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	clk := cfg.Clock
	if clk == nil {
		clk = System()
	}
	onTick := cfg.OnTick
	if onTick == nil {
		onTick = func(time.Time) {}
	}
	return &Ticker{
		interval: interval,
		clock:    clk,
		onTick:   onTick,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins delivering ticks. Calling Start more than once is a no-op.
func (t *Ticker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started || t.stopped {
		return
	}
	t.started = true
	go t.run()
}

// Stop ends tick delivery and waits for the background goroutine to finish.
func (t *Ticker) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	started := t.started
	t.mu.Unlock()

	close(t.stopCh)
	if started {
		<-t.doneCh
	}
}

func (t *Ticker) run() {
	defer close(t.doneCh)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.onTick(t.clock.Now())
		case <-t.stopCh:
			return
		}
	}
}
