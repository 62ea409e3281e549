// Package bus distributes wodflow run notifications to downstream
// consumers. The engine itself hands notifications to a single synchronous
// handler; this package fans them out to decoupled observers such as UIs,
// journals, and monitoring systems without making the engine wait.
package bus

import "github.com/pace-labs/wodflow/runtime"

// NotificationBus distributes notifications to subscribers.
type NotificationBus interface {
	// Publish sends a notification to all matching subscribers.
	Publish(n runtime.Notification)

	// Subscribe registers a subscriber for a specific run.
	// Returns a Subscription that must be closed when done.
	Subscribe(runID string) Subscription

	// SubscribeAll registers a subscriber that receives notifications from
	// all runs. Returns a Subscription that must be closed when done.
	SubscribeAll() Subscription

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// Subscription receives notifications.
type Subscription interface {
	// Notifications returns the subscription's delivery channel.
	Notifications() <-chan runtime.Notification

	// Close unsubscribes and releases resources.
	Close() error
}
