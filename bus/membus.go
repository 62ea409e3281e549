package bus

import (
	"sync"

	"github.com/pace-labs/wodflow/runtime"
)

// MemBusConfig configures an in-memory notification bus.
type MemBusConfig struct {
	// SubscriberBufferSize is the channel buffer size per subscriber (default: 256).
	SubscriberBufferSize int
}

// MemBus is an in-memory notification bus implementation.
type MemBus struct {
	mu         sync.RWMutex
	subs       map[string][]*memSub // runID -> subscribers
	globalSubs []*memSub            // subscribers for all runs
	bufSize    int
	closed     bool
}

// NewMemBus creates a new in-memory notification bus with the given
// configuration.
func NewMemBus(config MemBusConfig) *MemBus {
	bufSize := config.SubscriberBufferSize
	if bufSize <= 0 {
		bufSize = 256
	}
	return &MemBus{
		subs:    make(map[string][]*memSub),
		bufSize: bufSize,
	}
}

// Handle publishes n on the bus. It adapts the bus to the engine's
// runtime.NotificationHandler so a Runtime can feed it directly.
func (b *MemBus) Handle(n runtime.Notification) {
	b.Publish(n)
}

// Publish sends a notification to all matching subscribers.
// Run-specific subscribers receive notifications matching their run ID,
// and global subscribers receive everything. If the bus is closed, the
// notification is silently dropped.
func (b *MemBus) Publish(n runtime.Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	// Send to run-specific subscribers.
	for _, sub := range b.subs[n.RunID] {
		sub.send(n)
	}

	// Send to global subscribers.
	for _, sub := range b.globalSubs {
		sub.send(n)
	}
}

// Subscribe registers a subscriber for a specific run.
// Returns a Subscription that must be closed when done.
func (b *MemBus) Subscribe(runID string) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newMemSub(b.bufSize)
	b.subs[runID] = append(b.subs[runID], sub)
	return sub
}

// SubscribeAll registers a subscriber that receives notifications from all
// runs. Returns a Subscription that must be closed when done.
func (b *MemBus) SubscribeAll() Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newMemSub(b.bufSize)
	b.globalSubs = append(b.globalSubs, sub)
	return sub
}

// Close shuts down the bus and all active subscriptions.
func (b *MemBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true

	// Close all run-specific subscriptions.
	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.close()
		}
	}

	// Close all global subscriptions.
	for _, sub := range b.globalSubs {
		sub.close()
	}

	return nil
}

// memSub is an in-memory subscription.
type memSub struct {
	ch     chan runtime.Notification
	mu     sync.Mutex
	closed bool
}

func newMemSub(bufSize int) *memSub {
	return &memSub{
		ch: make(chan runtime.Notification, bufSize),
	}
}

// Notifications returns the subscription's delivery channel.
func (s *memSub) Notifications() <-chan runtime.Notification {
	return s.ch
}

// Close unsubscribes and releases resources.
func (s *memSub) Close() error {
	s.close()
	return nil
}

// close performs the actual channel close, guarded against double-close.
func (s *memSub) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// send delivers a notification to the subscription's channel.
// If the channel is full or the subscription is closed, the notification is
// dropped.
func (s *memSub) send(n runtime.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.ch <- n:
	default:
		// Drop if channel full.
	}
}

// Compile-time interface checks.
var _ NotificationBus = (*MemBus)(nil)
var _ Subscription = (*memSub)(nil)
