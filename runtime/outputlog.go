package runtime

import (
	"sync"

	"github.com/pace-labs/wodflow/core"
)

// OutputLog is the append-only record of everything a run produced. It is
// the engine's only durable product: statements are never updated or
// removed, and downstream history, analytics, and replay are derived from
// it.
//
// Appends happen on the engine goroutine; reads may come from anywhere, so
// the log is the one engine structure that locks.
type OutputLog struct {
	mu      sync.RWMutex
	stmts   []core.OutputStatement
	subs    []outputSub
	nextID  int
	nextSeq uint64
}

type outputSub struct {
	id int
	fn func(core.OutputStatement)
}

// NewOutputLog returns an empty log.
func NewOutputLog() *OutputLog {
	return &OutputLog{}
}

// Append assigns the next sequence number, stores the statement, and
// notifies subscribers synchronously in registration order. It returns the
// stored statement with its sequence number filled in.
func (l *OutputLog) Append(stmt core.OutputStatement) core.OutputStatement {
	l.mu.Lock()
	l.nextSeq++
	stmt.Seq = l.nextSeq
	stored := stmt.Clone()
	l.stmts = append(l.stmts, stored)
	subs := make([]outputSub, len(l.subs))
	copy(subs, l.subs)
	l.mu.Unlock()

	for _, s := range subs {
		s.fn(stored.Clone())
	}
	return stored
}

// All returns a copy of every statement in append order.
func (l *OutputLog) All() []core.OutputStatement {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]core.OutputStatement, len(l.stmts))
	for i, s := range l.stmts {
		out[i] = s.Clone()
	}
	return out
}

// ByType returns a copy of the statements of the given type, in append
// order.
func (l *OutputLog) ByType(t core.OutputType) []core.OutputStatement {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []core.OutputStatement
	for _, s := range l.stmts {
		if s.Type == t {
			out = append(out, s.Clone())
		}
	}
	return out
}

// Len returns the number of statements.
func (l *OutputLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.stmts)
}

// Subscribe registers fn for every future append and returns its
// unsubscribe function. Existing statements are not replayed; use All to
// catch up first.
func (l *OutputLog) Subscribe(fn func(core.OutputStatement)) func() {
	if fn == nil {
		return func() {}
	}
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs = append(l.subs, outputSub{id: id, fn: fn})
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, s := range l.subs {
			if s.id == id {
				l.subs = append(l.subs[:i], l.subs[i+1:]...)
				return
			}
		}
	}
}
