package bus

import (
	"context"
	"time"

	"github.com/pace-labs/wodflow/runtime"
)

// NotificationStore persists run notifications for history and replay.
type NotificationStore interface {
	// Append stores a notification.
	Append(ctx context.Context, n runtime.Notification) error

	// List returns notifications for a run, in sequence order.
	// afterSeq: return notifications with Seq > afterSeq (0 means all)
	// limit: max notifications to return (0 means no limit)
	List(ctx context.Context, runID string, afterSeq uint64, limit int) ([]runtime.Notification, error)

	// Runs summarizes every stored run, most recent first.
	Runs(ctx context.Context) ([]RunSummary, error)

	// LatestSeq returns the highest Seq for a run (0 if none stored).
	LatestSeq(ctx context.Context, runID string) (uint64, error)
}

// RunSummary describes one stored run: when it ran and how much it
// produced.
type RunSummary struct {
	RunID string

	// Started and Finished are the timestamps of the run's first and last
	// stored notifications.
	Started  time.Time
	Finished time.Time

	// Count is the number of stored notifications.
	Count int
}
