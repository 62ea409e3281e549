// Package behavior implements the built-in block behaviors: timers, round
// loops, output consolidation, display and controls state, and fragment
// inheritance. Blocks get their character by composition; a countdown
// segment is a block with Timer, Expiry, Controls, Display, and Output
// attached, in that order.
package behavior

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pace-labs/wodflow/core"
	"github.com/pace-labs/wodflow/runtime"
)

// Built-in behavior kinds.
const (
	KindTimer    runtime.BehaviorKind = "timer"
	KindExpiry   runtime.BehaviorKind = "expiry"
	KindRounds   runtime.BehaviorKind = "rounds"
	KindOutput   runtime.BehaviorKind = "output"
	KindDisplay  runtime.BehaviorKind = "display"
	KindControls runtime.BehaviorKind = "controls"
	KindInherit  runtime.BehaviorKind = "inherit"
)

// ErrUnknownKind is returned by Build for a kind no definition covers.
var ErrUnknownKind = errors.New("behavior: unknown kind")

// Config carries the union of settings the built-in constructors draw
// from. Each behavior reads only the fields that concern it.
type Config struct {
	// Direction and Target configure Timer.
	Direction core.TimerDirection
	Target    *time.Duration

	// Total and Children configure Rounds.
	Total    int
	Children []core.StatementID

	// Label and Detail configure Display; Label also names the timer.
	Label  string
	Detail string

	// Controls and Advance configure the controls cell and the advance
	// press.
	Controls core.ControlsState
	Advance  AdvanceMode
}

// Constructor builds a behavior instance from a config.
type Constructor func(Config) runtime.Behavior

// Definition describes one registered behavior kind.
type Definition struct {
	Kind        runtime.BehaviorKind
	Description string
	New         Constructor
}

var (
	global     *Registry
	globalOnce sync.Once
)

// Global returns the singleton registry instance. On first call it
// initializes the registry and registers all built-in behaviors.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
		registerBuiltins(global)
	})
	return global
}

// Registry maps behavior kinds to constructors.
type Registry struct {
	mu    sync.RWMutex
	defs  map[runtime.BehaviorKind]Definition
	order []runtime.BehaviorKind // preserves registration order
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		defs: make(map[runtime.BehaviorKind]Definition),
	}
}

// Register adds a behavior definition. If the kind is already registered
// it is overwritten.
func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Kind]; !exists {
		r.order = append(r.order, def.Kind)
	}
	r.defs[def.Kind] = def
}

// Get returns a behavior definition by kind.
func (r *Registry) Get(kind runtime.BehaviorKind) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[kind]
	return def, ok
}

// Has reports whether the kind is registered.
func (r *Registry) Has(kind runtime.BehaviorKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[kind]
	return ok
}

// Build constructs a behavior of the given kind.
func (r *Registry) Build(kind runtime.BehaviorKind, cfg Config) (runtime.Behavior, error) {
	def, ok := r.Get(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return def.New(cfg), nil
}

// All returns every registered definition in registration order.
func (r *Registry) All() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Definition, 0, len(r.order))
	for _, kind := range r.order {
		result = append(result, r.defs[kind])
	}
	return result
}

// Len returns the number of registered kinds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// Build constructs a behavior from the global registry.
func Build(kind runtime.BehaviorKind, cfg Config) (runtime.Behavior, error) {
	return Global().Build(kind, cfg)
}

func registerBuiltins(r *Registry) {
	r.Register(Definition{
		Kind:        KindTimer,
		Description: "tracks elapsed time as pausable spans",
		New: func(cfg Config) runtime.Behavior {
			return NewTimer(TimerConfig{Direction: cfg.Direction, Target: cfg.Target, Label: cfg.Label})
		},
	})
	r.Register(Definition{
		Kind:        KindExpiry,
		Description: "completes the block when its countdown target is reached",
		New: func(Config) runtime.Behavior {
			return NewExpiry()
		},
	})
	r.Register(Definition{
		Kind:        KindRounds,
		Description: "drives a round loop over child statements",
		New: func(cfg Config) runtime.Behavior {
			return NewRounds(RoundsConfig{Total: cfg.Total, Children: cfg.Children})
		},
	})
	r.Register(Definition{
		Kind:        KindOutput,
		Description: "emits the segment and completion statements",
		New: func(Config) runtime.Behavior {
			return NewOutput()
		},
	})
	r.Register(Definition{
		Kind:        KindDisplay,
		Description: "maintains the display cell a UI renders from",
		New: func(cfg Config) runtime.Behavior {
			return NewDisplay(DisplayConfig{Label: cfg.Label, Detail: cfg.Detail})
		},
	})
	r.Register(Definition{
		Kind:        KindControls,
		Description: "publishes athlete controls and handles the advance press",
		New: func(cfg Config) runtime.Behavior {
			return NewControls(ControlsConfig{State: cfg.Controls, Mode: cfg.Advance})
		},
	})
	r.Register(Definition{
		Kind:        KindInherit,
		Description: "copies the parent's fragments into the block at push",
		New: func(Config) runtime.Behavior {
			return NewInherit()
		},
	})
}
