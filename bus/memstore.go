package bus

import (
	"context"
	"sort"
	"sync"

	"github.com/pace-labs/wodflow/runtime"
)

// MemStore is a thread-safe in-memory notification store.
type MemStore struct {
	mu    sync.RWMutex
	notes map[string][]runtime.Notification // runID -> notifications
}

// NewMemStore creates a new in-memory notification store.
func NewMemStore() *MemStore {
	return &MemStore{
		notes: make(map[string][]runtime.Notification),
	}
}

func (s *MemStore) Append(_ context.Context, n runtime.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[n.RunID] = append(s.notes[n.RunID], n)
	return nil
}

func (s *MemStore) List(_ context.Context, runID string, afterSeq uint64, limit int) ([]runtime.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.notes[runID]
	var result []runtime.Notification

	for _, n := range all {
		if afterSeq > 0 && n.Seq <= afterSeq {
			continue
		}
		result = append(result, n)
		if limit > 0 && len(result) >= limit {
			break
		}
	}

	return result, nil
}

func (s *MemStore) Runs(_ context.Context) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]RunSummary, 0, len(s.notes))
	for runID, notes := range s.notes {
		if len(notes) == 0 {
			continue
		}
		sum := RunSummary{RunID: runID, Count: len(notes)}
		for _, n := range notes {
			if sum.Started.IsZero() || n.Time.Before(sum.Started) {
				sum.Started = n.Time
			}
			if n.Time.After(sum.Finished) {
				sum.Finished = n.Time
			}
		}
		summaries = append(summaries, sum)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Started.After(summaries[j].Started)
	})
	return summaries, nil
}

func (s *MemStore) LatestSeq(_ context.Context, runID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notes := s.notes[runID]
	if len(notes) == 0 {
		return 0, nil
	}

	var maxSeq uint64
	for _, n := range notes {
		if n.Seq > maxSeq {
			maxSeq = n.Seq
		}
	}
	return maxSeq, nil
}

// Compile-time interface check.
var _ NotificationStore = (*MemStore)(nil)
