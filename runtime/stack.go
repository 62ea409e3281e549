package runtime

// StackOp names what a stack notification describes.
type StackOp string

const (
	// StackInitial is the synthetic notification a new subscriber receives
	// immediately, carrying the current state.
	StackInitial StackOp = "initial"

	// StackPush reports a block entering the stack.
	StackPush StackOp = "push"

	// StackPop reports a block leaving the stack.
	StackPop StackOp = "pop"
)

// StackChange is one stack notification. Depth and Blocks describe the stack
// after the change took effect.
type StackChange struct {
	Op StackOp

	// Block is the pushed or popped block, nil for the initial replay.
	Block *Block

	// Depth is the stack length after the change.
	Depth int

	// Blocks is a bottom-to-top snapshot after the change.
	Blocks []*Block
}

// StackListener observes stack changes. Listeners run synchronously on the
// engine goroutine and must not block.
type StackListener func(StackChange)

type stackSub struct {
	id int
	fn StackListener
}

// Stack is the engine's execution stack. The top block is the one the
// athlete is doing right now; everything beneath is suspended context.
//
// The stack is owned by the orchestrator goroutine and performs no locking.
type Stack struct {
	blocks []*Block
	subs   []stackSub
	nextID int
}

// NewStack returns an empty stack.
func NewStack() *Stack {
	return &Stack{}
}

// Depth returns the number of blocks on the stack.
func (s *Stack) Depth() int {
	return len(s.blocks)
}

// Current returns the top block, or nil when the stack is empty.
func (s *Stack) Current() *Block {
	if len(s.blocks) == 0 {
		return nil
	}
	return s.blocks[len(s.blocks)-1]
}

// Blocks returns a bottom-to-top copy of the stack.
func (s *Stack) Blocks() []*Block {
	out := make([]*Block, len(s.blocks))
	copy(out, s.blocks)
	return out
}

// Position returns a block's 1-based position from the bottom, or 0 when
// the block is not on the stack.
func (s *Stack) Position(b *Block) int {
	for i, cur := range s.blocks {
		if cur == b {
			return i + 1
		}
	}
	return 0
}

// Contains reports whether the block is on the stack.
func (s *Stack) Contains(b *Block) bool {
	return s.Position(b) > 0
}

// Push places b on top of the stack and notifies subscribers. A block can
// be on the stack at most once.
func (s *Stack) Push(b *Block) error {
	if b == nil {
		return ErrNilBlock
	}
	if s.Contains(b) {
		return ErrBlockOnStack
	}
	s.blocks = append(s.blocks, b)
	s.notify(StackChange{Op: StackPush, Block: b, Depth: len(s.blocks), Blocks: s.Blocks()})
	return nil
}

// Pop removes and returns the top block and notifies subscribers.
func (s *Stack) Pop() (*Block, error) {
	if len(s.blocks) == 0 {
		return nil, ErrEmptyStack
	}
	b := s.blocks[len(s.blocks)-1]
	s.blocks = s.blocks[:len(s.blocks)-1]
	s.notify(StackChange{Op: StackPop, Block: b, Depth: len(s.blocks), Blocks: s.Blocks()})
	return b, nil
}

// Subscribe registers a listener and immediately replays the current state
// to it as a StackInitial change. It returns the listener's unsubscribe
// function.
func (s *Stack) Subscribe(fn StackListener) func() {
	if fn == nil {
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, stackSub{id: id, fn: fn})

	fn(StackChange{Op: StackInitial, Depth: len(s.blocks), Blocks: s.Blocks()})

	return func() {
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Stack) notify(change StackChange) {
	subs := make([]stackSub, len(s.subs))
	copy(subs, s.subs)
	for _, sub := range subs {
		sub.fn(change)
	}
}
