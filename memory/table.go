package memory

import "github.com/pace-labs/wodflow/core"

// Table is one block's private set of memory cells, at most one per kind.
// Behaviors populate it during mount; the owning block disposes it when it
// leaves the stack.
type Table struct {
	owner    core.BlockKey
	cells    map[core.MemoryKind]*Cell
	disposed bool
}

// NewTable returns an empty table owned by the given block.
func NewTable(owner core.BlockKey) *Table {
	return &Table{
		owner: owner,
		cells: make(map[core.MemoryKind]*Cell),
	}
}

// Owner returns the key of the block the table belongs to.
func (t *Table) Owner() core.BlockKey {
	return t.owner
}

// Create adds a cell for kind holding initial. It fails with ErrCellExists
// when the kind is already present and ErrCellDisposed when the table has
// been disposed.
func (t *Table) Create(kind core.MemoryKind, initial core.Value) (*Cell, error) {
	if t.disposed {
		return nil, ErrCellDisposed
	}
	if initial == nil {
		return nil, ErrNilValue
	}
	if _, exists := t.cells[kind]; exists {
		return nil, ErrCellExists
	}
	c := newCell(kind, t.owner, initial)
	t.cells[kind] = c
	return c, nil
}

// Cell returns the cell for kind.
func (t *Table) Cell(kind core.MemoryKind) (*Cell, bool) {
	c, ok := t.cells[kind]
	return c, ok
}

// Get returns a copy of the value stored under kind.
func (t *Table) Get(kind core.MemoryKind) (core.Value, bool) {
	c, ok := t.cells[kind]
	if !ok {
		return nil, false
	}
	return c.Get()
}

// Set replaces the value stored under kind. The cell must already exist;
// creation is a mount-time decision, not a write side effect.
func (t *Table) Set(kind core.MemoryKind, v core.Value) error {
	c, ok := t.cells[kind]
	if !ok {
		return ErrCellNotFound
	}
	return c.Set(v)
}

// Subscribe registers a listener on the cell for kind.
func (t *Table) Subscribe(kind core.MemoryKind, fn Listener) (func(), error) {
	c, ok := t.cells[kind]
	if !ok {
		return nil, ErrCellNotFound
	}
	return c.Subscribe(fn), nil
}

// Kinds lists the kinds present, in the fixed core.MemoryKinds order.
func (t *Table) Kinds() []core.MemoryKind {
	var out []core.MemoryKind
	for _, k := range core.MemoryKinds() {
		if _, ok := t.cells[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Len returns the number of cells.
func (t *Table) Len() int {
	return len(t.cells)
}

// Disposed reports whether Dispose has run.
func (t *Table) Disposed() bool {
	return t.disposed
}

// Dispose disposes every cell in the fixed kind order, so terminal
// notifications fire in the same order on every run. Calling it again is a
// no-op.
func (t *Table) Dispose() {
	if t.disposed {
		return
	}
	t.disposed = true
	for _, k := range core.MemoryKinds() {
		if c, ok := t.cells[k]; ok {
			c.Dispose()
		}
	}
}

// Read returns the value under kind in table t when it holds a T. It is the
// typed counterpart of Table.Get for callers that know the shape they
// expect.
func Read[T core.Value](t *Table, kind core.MemoryKind) (T, bool) {
	var zero T
	v, ok := t.Get(kind)
	if !ok {
		return zero, false
	}
	tv, ok := v.(T)
	if !ok {
		return zero, false
	}
	return tv, true
}
