package bus

import (
	"context"
	"testing"
	"time"

	"github.com/pace-labs/wodflow/runtime"
)

func TestMemStore_Append_List(t *testing.T) {
	store := NewMemStore()

	for i := 1; i <= 5; i++ {
		n := runtime.NewNotification(runtime.NotificationBlockPushed, "run-1")
		n.Seq = uint64(i)
		if err := store.Append(context.Background(), n); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	notes, err := store.List(context.Background(), "run-1", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(notes) != 5 {
		t.Errorf("got %d notifications, want 5", len(notes))
	}
}

func TestMemStore_List_AfterSeq(t *testing.T) {
	store := NewMemStore()

	for i := 1; i <= 10; i++ {
		n := runtime.NewNotification(runtime.NotificationBlockPushed, "run-1")
		n.Seq = uint64(i)
		store.Append(context.Background(), n)
	}

	notes, err := store.List(context.Background(), "run-1", 7, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(notes) != 3 {
		t.Errorf("got %d notifications, want 3 (seq 8,9,10)", len(notes))
	}
	if notes[0].Seq != 8 {
		t.Errorf("first notification Seq = %d, want 8", notes[0].Seq)
	}
}

func TestMemStore_List_WithLimit(t *testing.T) {
	store := NewMemStore()

	for i := 1; i <= 10; i++ {
		n := runtime.NewNotification(runtime.NotificationBlockPushed, "run-1")
		n.Seq = uint64(i)
		store.Append(context.Background(), n)
	}

	notes, err := store.List(context.Background(), "run-1", 0, 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(notes) != 3 {
		t.Errorf("got %d notifications, want 3", len(notes))
	}
}

func TestMemStore_LatestSeq(t *testing.T) {
	store := NewMemStore()

	seq, err := store.LatestSeq(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("LatestSeq: %v", err)
	}
	if seq != 0 {
		t.Errorf("empty store LatestSeq = %d, want 0", seq)
	}

	for i := 1; i <= 5; i++ {
		n := runtime.NewNotification(runtime.NotificationBlockPushed, "run-1")
		n.Seq = uint64(i)
		store.Append(context.Background(), n)
	}

	seq, err = store.LatestSeq(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("LatestSeq: %v", err)
	}
	if seq != 5 {
		t.Errorf("LatestSeq = %d, want 5", seq)
	}
}

func TestMemStore_RunIsolation(t *testing.T) {
	store := NewMemStore()

	n1 := runtime.NewNotification(runtime.NotificationRunStarted, "run-1")
	n1.Seq = 1
	store.Append(context.Background(), n1)

	n2 := runtime.NewNotification(runtime.NotificationRunStarted, "run-2")
	n2.Seq = 1
	store.Append(context.Background(), n2)

	notes, _ := store.List(context.Background(), "run-1", 0, 0)
	if len(notes) != 1 {
		t.Errorf("run-1 notifications = %d, want 1", len(notes))
	}
}

func TestMemStore_Runs(t *testing.T) {
	store := NewMemStore()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Older run with two notifications.
	for i := 1; i <= 2; i++ {
		n := runtime.NewNotification(runtime.NotificationBlockPushed, "run-old")
		n.Seq = uint64(i)
		n.Time = base.Add(time.Duration(i) * time.Second)
		store.Append(context.Background(), n)
	}

	// Newer run with three notifications.
	for i := 1; i <= 3; i++ {
		n := runtime.NewNotification(runtime.NotificationBlockPushed, "run-new")
		n.Seq = uint64(i)
		n.Time = base.Add(time.Hour + time.Duration(i)*time.Second)
		store.Append(context.Background(), n)
	}

	runs, err := store.Runs(context.Background())
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}

	// Most recent run first.
	if runs[0].RunID != "run-new" {
		t.Errorf("first run = %q, want %q", runs[0].RunID, "run-new")
	}
	if runs[0].Count != 3 {
		t.Errorf("run-new count = %d, want 3", runs[0].Count)
	}
	if runs[1].RunID != "run-old" {
		t.Errorf("second run = %q, want %q", runs[1].RunID, "run-old")
	}

	wantStart := base.Add(time.Hour + time.Second)
	if !runs[0].Started.Equal(wantStart) {
		t.Errorf("run-new Started = %v, want %v", runs[0].Started, wantStart)
	}
	wantEnd := base.Add(time.Hour + 3*time.Second)
	if !runs[0].Finished.Equal(wantEnd) {
		t.Errorf("run-new Finished = %v, want %v", runs[0].Finished, wantEnd)
	}
}
