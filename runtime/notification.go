package runtime

import (
	"time"

	"github.com/pace-labs/wodflow/core"
)

// NotificationKind identifies the type of notification emitted by the
// runtime.
type NotificationKind string

const (
	// NotificationRunStarted is emitted when a run begins.
	NotificationRunStarted NotificationKind = "run_started"

	// NotificationBlockPushed is emitted when a block enters the stack.
	NotificationBlockPushed NotificationKind = "block_pushed"

	// NotificationBlockAdvanced is emitted when a block's advance hooks run.
	NotificationBlockAdvanced NotificationKind = "block_advanced"

	// NotificationBlockPopped is emitted when a block leaves the stack.
	NotificationBlockPopped NotificationKind = "block_popped"

	// NotificationOutputEmitted is emitted for every appended output
	// statement.
	NotificationOutputEmitted NotificationKind = "output_emitted"

	// NotificationEventEmitted is emitted when a named event dispatches,
	// tick excluded.
	NotificationEventEmitted NotificationKind = "event_emitted"

	// NotificationTimerProgress is emitted on ticks while the top block
	// carries a timer. It is high-frequency; downstream consumers usually
	// throttle it.
	NotificationTimerProgress NotificationKind = "timer_progress"

	// NotificationRunFinished is emitted when the stack empties or the run
	// is cancelled.
	NotificationRunFinished NotificationKind = "run_finished"
)

// String returns the string representation of the NotificationKind.
func (k NotificationKind) String() string {
	return string(k)
}

// Notification is a structured, streamable record of what the engine did.
// Notifications are for downstream consumers: UIs, persistence, metrics,
// tracing. They are not the coordination path between blocks; events are.
type Notification struct {
	// Kind identifies the notification type.
	Kind NotificationKind

	// RunID is the unique identifier for this run.
	RunID string

	// Block is the block the notification concerns (empty for run-level
	// notifications).
	Block core.BlockKey

	// Statement is the compiled statement of that block.
	Statement core.StatementID

	// Label is the block's display name.
	Label string

	// Depth is the stack depth after the change the notification reports.
	Depth int

	// Time is when it happened on the engine's effective clock.
	Time time.Time

	// Seq orders notifications within a run, 1-indexed.
	Seq uint64

	// TraceID and SpanID carry trace context when tracing is attached.
	TraceID string
	SpanID  string

	// Payload contains kind-specific data. Keep it small.
	Payload map[string]any
}

// NewNotification creates a notification of the given kind for a run.
func NewNotification(kind NotificationKind, runID string) Notification {
	return Notification{
		Kind:    kind,
		RunID:   runID,
		Payload: make(map[string]any),
	}
}

// At sets the notification's timestamp.
func (n Notification) At(t time.Time) Notification {
	n.Time = t
	return n
}

// WithBlock sets the block information on the notification.
func (n Notification) WithBlock(b *Block) Notification {
	if b != nil {
		n.Block = b.Key()
		n.Statement = b.Statement()
		n.Label = b.Label()
	}
	return n
}

// WithDepth sets the stack depth on the notification.
func (n Notification) WithDepth(depth int) Notification {
	n.Depth = depth
	return n
}

// WithPayload adds a key-value pair to the notification payload.
func (n Notification) WithPayload(key string, value any) Notification {
	if n.Payload == nil {
		n.Payload = make(map[string]any)
	}
	n.Payload[key] = value
	return n
}

// NotificationHandler consumes notifications. Handlers run synchronously on
// the engine goroutine and must not block; hand off to a channel or bus for
// anything slow.
type NotificationHandler func(Notification)

// MultiNotificationHandler combines multiple handlers into one.
func MultiNotificationHandler(handlers ...NotificationHandler) NotificationHandler {
	return func(n Notification) {
		for _, h := range handlers {
			if h != nil {
				h(n)
			}
		}
	}
}
