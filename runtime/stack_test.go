package runtime

import (
	"errors"
	"testing"
)

func newBareBlock(label string) *Block {
	return NewBlock(BlockConfig{Label: label})
}

func TestStackPushPopOrder(t *testing.T) {
	s := NewStack()
	a, b := newBareBlock("a"), newBareBlock("b")

	if err := s.Push(a); err != nil {
		t.Fatalf("Push(a): %v", err)
	}
	if err := s.Push(b); err != nil {
		t.Fatalf("Push(b): %v", err)
	}
	if got := s.Current(); got != b {
		t.Errorf("Current() = %v, want b", got)
	}
	if got := s.Depth(); got != 2 {
		t.Errorf("Depth() = %d, want 2", got)
	}

	popped, err := s.Pop()
	if err != nil || popped != b {
		t.Fatalf("Pop() = %v, %v, want b", popped, err)
	}
	if got := s.Current(); got != a {
		t.Errorf("Current() after pop = %v, want a", got)
	}
}

func TestStackPushDuplicateRejected(t *testing.T) {
	s := NewStack()
	a := newBareBlock("a")
	s.Push(a)
	if err := s.Push(a); !errors.Is(err, ErrBlockOnStack) {
		t.Errorf("second Push = %v, want ErrBlockOnStack", err)
	}
	if err := s.Push(nil); !errors.Is(err, ErrNilBlock) {
		t.Errorf("Push(nil) = %v, want ErrNilBlock", err)
	}
}

func TestStackPopEmpty(t *testing.T) {
	s := NewStack()
	if _, err := s.Pop(); !errors.Is(err, ErrEmptyStack) {
		t.Errorf("Pop() on empty = %v, want ErrEmptyStack", err)
	}
}

func TestStackSubscribeReplaysCurrentState(t *testing.T) {
	s := NewStack()
	a := newBareBlock("a")
	s.Push(a)

	var changes []StackChange
	s.Subscribe(func(c StackChange) { changes = append(changes, c) })

	if len(changes) != 1 {
		t.Fatalf("changes after subscribe = %d, want 1 initial", len(changes))
	}
	init := changes[0]
	if init.Op != StackInitial || init.Depth != 1 || len(init.Blocks) != 1 || init.Blocks[0] != a {
		t.Errorf("initial change = %+v, want depth 1 with a", init)
	}
}

func TestStackNotificationDepthAfterChange(t *testing.T) {
	s := NewStack()
	a, b := newBareBlock("a"), newBareBlock("b")

	var changes []StackChange
	s.Subscribe(func(c StackChange) { changes = append(changes, c) })

	s.Push(a)
	s.Push(b)
	s.Pop()

	// initial, push a, push b, pop b
	if len(changes) != 4 {
		t.Fatalf("changes = %d, want 4", len(changes))
	}
	wantDepths := []int{0, 1, 2, 1}
	for i, want := range wantDepths {
		if changes[i].Depth != want {
			t.Errorf("change %d depth = %d, want %d", i, changes[i].Depth, want)
		}
	}
	if changes[1].Op != StackPush || changes[1].Block != a {
		t.Errorf("change 1 = %+v, want push a", changes[1])
	}
	if changes[3].Op != StackPop || changes[3].Block != b {
		t.Errorf("change 3 = %+v, want pop b", changes[3])
	}
}

func TestStackUnsubscribe(t *testing.T) {
	s := NewStack()
	calls := 0
	unsub := s.Subscribe(func(StackChange) { calls++ })
	unsub()
	s.Push(newBareBlock("a"))
	if calls != 1 { // the initial replay only
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestStackPositionAndContains(t *testing.T) {
	s := NewStack()
	a, b := newBareBlock("a"), newBareBlock("b")
	s.Push(a)
	s.Push(b)

	if got := s.Position(a); got != 1 {
		t.Errorf("Position(a) = %d, want 1", got)
	}
	if got := s.Position(b); got != 2 {
		t.Errorf("Position(b) = %d, want 2", got)
	}
	if got := s.Position(newBareBlock("c")); got != 0 {
		t.Errorf("Position(c) = %d, want 0", got)
	}
	if !s.Contains(a) || s.Contains(newBareBlock("d")) {
		t.Error("Contains misreports membership")
	}
}

func TestStackBlocksIsACopy(t *testing.T) {
	s := NewStack()
	a := newBareBlock("a")
	s.Push(a)
	blocks := s.Blocks()
	blocks[0] = nil
	if s.Current() != a {
		t.Error("mutating the Blocks() copy reached the stack")
	}
}
