package bus

import (
	"context"
	"log/slog"

	"github.com/pace-labs/wodflow/runtime"
)

// StoreSubscriber writes notifications to a NotificationStore.
// Its Handle method satisfies runtime.NotificationHandler so it can be
// attached directly to an engine or chained behind a bus subscription.
type StoreSubscriber struct {
	store  NotificationStore
	logger *slog.Logger
}

// NewStoreSubscriber creates a new StoreSubscriber.
func NewStoreSubscriber(store NotificationStore, logger *slog.Logger) *StoreSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSubscriber{
		store:  store,
		logger: logger,
	}
}

// Handle persists a single notification to the store.
func (s *StoreSubscriber) Handle(n runtime.Notification) {
	if err := s.store.Append(context.Background(), n); err != nil {
		s.logger.Error("failed to persist notification",
			"run_id", n.RunID,
			"kind", n.Kind,
			"seq", n.Seq,
			"error", err,
		)
	}
}
