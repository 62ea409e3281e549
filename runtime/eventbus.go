package runtime

// eventBus is the engine's internal subscription registry for named
// coordination events. It only keeps the bookkeeping; delivery order,
// scope filtering, and fault isolation are the drain loop's job.
//
// Subscriptions are delivered in registration order, which makes dispatch
// deterministic for a given composition.
type eventBus struct {
	subs   []*busSub
	nextID int
}

type busSub struct {
	id    int
	name  string
	block *Block
	owner BehaviorKind
	fn    EventListener
}

func newEventBus() *eventBus {
	return &eventBus{}
}

// subscribe registers fn for events named name on behalf of block and
// returns the unsubscribe function. The owner kind is kept for fault
// attribution when a listener panics.
func (b *eventBus) subscribe(block *Block, name string, owner BehaviorKind, fn EventListener) func() {
	if fn == nil || block == nil || name == "" {
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, &busSub{id: id, name: name, block: block, owner: owner, fn: fn})
	return func() {
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// matching returns a snapshot of the subscriptions for name, in
// registration order. The snapshot keeps delivery stable while listeners
// subscribe or unsubscribe mid-dispatch.
func (b *eventBus) matching(name string) []*busSub {
	var out []*busSub
	for _, s := range b.subs {
		if s.name == name {
			out = append(out, s)
		}
	}
	return out
}
