// Package compose turns a validated program definition into executable
// blocks: one behavior list per statement kind, assembled through the
// behavior registry. A composed Program is the block factory for a run;
// every Build call produces a fresh block instance, because blocks are
// never reused after dispose.
package compose

import (
	"fmt"
	"time"

	"github.com/pace-labs/wodflow/behavior"
	"github.com/pace-labs/wodflow/core"
	"github.com/pace-labs/wodflow/program"
	"github.com/pace-labs/wodflow/runtime"
)

// Program is a composed, runnable program.
type Program struct {
	def      *program.Definition
	index    map[core.StatementID]program.Statement
	registry *behavior.Registry
}

var _ runtime.BlockFactory = (*Program)(nil)

// Compose validates def and builds a Program over the global behavior
// registry.
func Compose(def *program.Definition) (*Program, error) {
	return ComposeWith(def, behavior.Global())
}

// ComposeWith is Compose with an explicit behavior registry.
func ComposeWith(def *program.Definition, reg *behavior.Registry) (*Program, error) {
	if def == nil {
		return nil, fmt.Errorf("compose: nil definition")
	}
	diags := def.Validate()
	if program.HasErrors(diags) {
		errs := program.Errors(diags)
		return nil, fmt.Errorf("compose: program %q has %d validation errors (first: %s)",
			def.Name, len(errs), errs[0].Message)
	}

	index := make(map[core.StatementID]program.Statement, len(def.Statements))
	for _, s := range def.Statements {
		index[core.StatementID(s.ID)] = s
	}
	return &Program{def: def, index: index, registry: reg}, nil
}

// Definition returns the underlying program definition.
func (p *Program) Definition() *program.Definition {
	return p.def
}

// Root builds a fresh block for the program's root statement.
func (p *Program) Root() (*runtime.Block, error) {
	root, ok := p.def.Root()
	if !ok {
		return nil, fmt.Errorf("compose: program %q has no root", p.def.Name)
	}
	return p.build(root)
}

// Build implements runtime.BlockFactory.
func (p *Program) Build(id core.StatementID) (*runtime.Block, error) {
	stmt, ok := p.index[id]
	if !ok {
		return nil, fmt.Errorf("statement %d: %w", id, runtime.ErrStatementNotFound)
	}
	return p.build(stmt)
}

// build assembles one block from a statement: label, fragments, and the
// behavior list its kind calls for.
func (p *Program) build(stmt program.Statement) (*runtime.Block, error) {
	kinds, cfg := p.plan(stmt)

	behaviors := make([]runtime.Behavior, 0, len(kinds))
	for _, kind := range kinds {
		b, err := p.registry.Build(kind, cfg)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", stmt.ID, err)
		}
		behaviors = append(behaviors, b)
	}

	label := stmt.Label
	if label == "" {
		label = stmt.Kind
	}
	return runtime.NewBlock(runtime.BlockConfig{
		Statement: core.StatementID(stmt.ID),
		Label:     label,
		Fragments: fragmentsFromDefs(stmt.Fragments),
		Behaviors: behaviors,
	}), nil
}

// plan decides the behavior list and shared config for a statement kind:
//
//	countdown/rest  Inherit, Timer(down), Expiry, Controls, Display, Output
//	stopwatch       Inherit, Timer(up), [Expiry when capped], Controls, Display, Output
//	rounds          Inherit, [Timer+Expiry when timed], Rounds, [Controls when childless], Display, Output
//	sequence        Inherit, Rounds(1 pass), [Controls when childless], Display, Output
//	effort          Inherit, Controls, Display, Output
func (p *Program) plan(stmt program.Statement) ([]runtime.BehaviorKind, behavior.Config) {
	cfg := behavior.Config{
		Label:    stmt.Label,
		Children: childIDs(stmt.Children),
		Controls: controlsFromDef(stmt.Controls),
	}
	if stmt.DurationMS != nil {
		target := time.Duration(*stmt.DurationMS) * time.Millisecond
		cfg.Target = &target
	}

	kinds := []runtime.BehaviorKind{behavior.KindInherit}
	switch stmt.Kind {
	case program.KindCountdown, program.KindRest:
		cfg.Direction = core.CountDown
		kinds = append(kinds, behavior.KindTimer, behavior.KindExpiry, behavior.KindControls)

	case program.KindStopwatch:
		cfg.Direction = core.CountUp
		kinds = append(kinds, behavior.KindTimer)
		if cfg.Target != nil {
			// A capped stopwatch expires like a countdown.
			kinds = append(kinds, behavior.KindExpiry)
		}
		kinds = append(kinds, behavior.KindControls)

	case program.KindRounds:
		cfg.Total = roundTotal(stmt.Rounds)
		if cfg.Target != nil {
			// Timed loop: an AMRAP counts rounds until the clock ends it.
			cfg.Direction = core.CountDown
			kinds = append(kinds, behavior.KindTimer, behavior.KindExpiry)
		}
		kinds = append(kinds, behavior.KindRounds)
		if len(stmt.Children) == 0 {
			cfg.Advance = behavior.AdvanceSteps
			kinds = append(kinds, behavior.KindControls)
		}

	case program.KindSequence:
		cfg.Total = 1
		kinds = append(kinds, behavior.KindRounds)
		if len(stmt.Children) == 0 {
			cfg.Advance = behavior.AdvanceSteps
			kinds = append(kinds, behavior.KindControls)
		}

	default: // program.KindEffort
		kinds = append(kinds, behavior.KindControls)
	}

	kinds = append(kinds, behavior.KindDisplay, behavior.KindOutput)
	return kinds, cfg
}

func childIDs(children []int) []core.StatementID {
	if len(children) == 0 {
		return nil
	}
	out := make([]core.StatementID, len(children))
	for i, c := range children {
		out[i] = core.StatementID(c)
	}
	return out
}

func roundTotal(rounds *int) int {
	if rounds == nil {
		return 0
	}
	return *rounds
}

func controlsFromDef(def *program.ControlsDef) core.ControlsState {
	if def == nil {
		return core.ControlsState{}
	}
	return core.ControlsState{
		Pausable:    def.Pausable,
		Advanceable: def.Advanceable,
		Stoppable:   def.Stoppable,
	}
}

func fragmentsFromDefs(defs []program.FragmentDef) []core.Fragment {
	if len(defs) == 0 {
		return nil
	}
	out := make([]core.Fragment, len(defs))
	for i, fd := range defs {
		out[i] = core.Fragment{
			Type:   core.FragmentType(fd.Type),
			Value:  fd.Value,
			Origin: core.OriginParser,
		}
	}
	return out
}
