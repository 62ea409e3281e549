// Package memory implements the reactive state cells behind execution
// blocks.
//
// Each block owns a private Table of typed cells, one per core.MemoryKind at
// most. Behaviors create cells during mount, read and replace their values
// during execution, and the block disposes the whole table exactly once when
// it leaves the stack. Subscribers see every replacement as a (new, old)
// pair and receive one terminal (nil, last) notification at disposal.
//
// Cells are owned by the engine goroutine. All access must come from
// lifecycle hooks, event listeners, or cell listeners, which the engine
// invokes sequentially; no internal locking is performed.
package memory

import (
	"errors"

	"github.com/pace-labs/wodflow/core"
)

var (
	// ErrCellDisposed is returned by writes to a disposed cell.
	ErrCellDisposed = errors.New("memory: cell disposed")

	// ErrCellExists is returned when creating a kind the table already has.
	ErrCellExists = errors.New("memory: cell already exists")

	// ErrCellNotFound is returned by writes to a kind that was never created.
	ErrCellNotFound = errors.New("memory: cell not found")

	// ErrNilValue is returned when storing nil; nil is reserved for the
	// terminal disposal notification.
	ErrNilValue = errors.New("memory: nil value")
)

// Listener observes one cell. On every successful Set it receives the new
// and previous values; at disposal it receives (nil, last) exactly once.
// Values passed to listeners must be treated as read-only.
type Listener func(newValue, oldValue core.Value)

type cellSub struct {
	id int
	fn Listener
}

// Cell is one typed slot of block state.
type Cell struct {
	kind  core.MemoryKind
	owner core.BlockKey

	value    core.Value
	subs     []cellSub
	nextID   int
	disposed bool
}

func newCell(kind core.MemoryKind, owner core.BlockKey, initial core.Value) *Cell {
	return &Cell{kind: kind, owner: owner, value: initial.Clone()}
}

// Kind returns the cell's memory kind.
func (c *Cell) Kind() core.MemoryKind {
	return c.kind
}

// Owner returns the key of the block the cell belongs to.
func (c *Cell) Owner() core.BlockKey {
	return c.owner
}

// Disposed reports whether the cell has been disposed.
func (c *Cell) Disposed() bool {
	return c.disposed
}

// Get returns a copy of the current value. It reports false once the cell
// is disposed.
func (c *Cell) Get() (core.Value, bool) {
	if c.disposed || c.value == nil {
		return nil, false
	}
	return c.value.Clone(), true
}

// Set replaces the value and notifies subscribers with (new, old). The cell
// stores its own copy, so the caller may keep mutating v afterwards.
func (c *Cell) Set(v core.Value) error {
	if c.disposed {
		return ErrCellDisposed
	}
	if v == nil {
		return ErrNilValue
	}
	old := c.value
	c.value = v.Clone()
	c.notify(c.value.Clone(), old)
	return nil
}

// Subscribe registers a listener and returns its unsubscribe function.
// Subscribing to a disposed cell is a no-op: the terminal notification has
// already gone out.
func (c *Cell) Subscribe(fn Listener) func() {
	if c.disposed || fn == nil {
		return func() {}
	}
	id := c.nextID
	c.nextID++
	c.subs = append(c.subs, cellSub{id: id, fn: fn})
	return func() {
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// Dispose sends the terminal (nil, last) notification, drops all
// subscribers, and rejects any further writes. Calling it again is a no-op.
func (c *Cell) Dispose() {
	if c.disposed {
		return
	}
	c.disposed = true
	last := c.value
	c.value = nil
	c.notify(nil, last)
	c.subs = nil
}

func (c *Cell) notify(newValue, oldValue core.Value) {
	// Snapshot so a listener unsubscribing (or subscribing) mid-notification
	// does not disturb this round of delivery.
	subs := make([]cellSub, len(c.subs))
	copy(subs, c.subs)
	for _, s := range subs {
		s.fn(newValue, oldValue)
	}
}
