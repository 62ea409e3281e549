package compose

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pace-labs/wodflow/clock"
	"github.com/pace-labs/wodflow/core"
	"github.com/pace-labs/wodflow/events"
	"github.com/pace-labs/wodflow/program"
	"github.com/pace-labs/wodflow/runtime"
)

var testBase = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intPtr(v int) *int { return &v }

func TestComposeRejectsInvalidProgram(t *testing.T) {
	def := &program.Definition{Name: "broken", Statements: []program.Statement{
		{ID: 1, Kind: "tabata"},
	}}
	if _, err := Compose(def); err == nil {
		t.Fatal("Compose accepted an invalid program")
	}
	if _, err := Compose(nil); err == nil {
		t.Fatal("Compose accepted nil")
	}
}

func TestComposeBuildsRoot(t *testing.T) {
	def := &program.Definition{Name: "fran", Statements: []program.Statement{
		{
			ID:        1,
			Label:     "Thrusters",
			Kind:      program.KindEffort,
			Fragments: []program.FragmentDef{{Type: "rep", Value: "21"}, {Type: "effort", Value: "thrusters"}},
		},
	}}
	prog, err := Compose(def)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	root, err := prog.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if root.Label() != "Thrusters" {
		t.Errorf("label = %q, want Thrusters", root.Label())
	}
	if root.Statement() != 1 {
		t.Errorf("statement = %d, want 1", root.Statement())
	}
	frags := root.SourceFragments()
	if len(frags) != 2 || frags[0].Value != "21" || frags[1].Origin != core.OriginParser {
		t.Errorf("fragments = %+v, want the parser defs", frags)
	}
}

func TestBuildReturnsFreshInstances(t *testing.T) {
	def := &program.Definition{Name: "single", Statements: []program.Statement{
		{ID: 1, Kind: program.KindEffort},
	}}
	prog, err := Compose(def)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	a, err := prog.Build(1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b, err := prog.Build(1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if a == b || a.Key() == b.Key() {
		t.Error("Build returned a reused block instance")
	}

	if _, err := prog.Build(99); !errors.Is(err, runtime.ErrStatementNotFound) {
		t.Errorf("Build(99) = %v, want ErrStatementNotFound", err)
	}
}

func TestComposedRoundsProgramRunsToCompletion(t *testing.T) {
	def := &program.Definition{Name: "loop", Statements: []program.Statement{
		{ID: 1, Label: "Two rounds", Kind: program.KindRounds, Rounds: intPtr(2), Children: []int{2}},
		{ID: 2, Label: "Pullups", Kind: program.KindEffort, Fragments: []program.FragmentDef{{Type: "rep", Value: "10"}}},
	}}
	prog, err := Compose(def)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	root, err := prog.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}

	rt := runtime.New(runtime.Config{Logger: discardLogger(), Factory: prog})
	if err := rt.Start(root); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// One advance press per child instance finishes the two rounds.
	rt.Dispatch(events.New(events.ControlAdvance, events.ScopeActive))
	rt.Dispatch(events.New(events.ControlAdvance, events.ScopeActive))

	if !rt.Finished() {
		t.Fatal("composed program did not run to completion")
	}

	wantTypes := []core.OutputType{
		core.OutputSegment,    // loop
		core.OutputSegment,    // round one pullups
		core.OutputCompletion, // round one pullups
		core.OutputMilestone,  // wrap to round two
		core.OutputSegment,    // round two pullups
		core.OutputCompletion, // round two pullups
		core.OutputCompletion, // loop
	}
	outputs := rt.Outputs().All()
	if len(outputs) != len(wantTypes) {
		t.Fatalf("outputs = %d, want %d", len(outputs), len(wantTypes))
	}
	for i, want := range wantTypes {
		if outputs[i].Type != want {
			t.Errorf("output %d type = %s, want %s", i, outputs[i].Type, want)
		}
	}

	last := outputs[len(outputs)-1]
	var reason string
	for _, f := range last.Fragments {
		if f.Type == core.FragmentAction {
			reason = f.Value
		}
	}
	if reason != string(core.ReasonRoundsComplete) {
		t.Errorf("loop completion reason = %q, want rounds-complete", reason)
	}
}

func TestComposedCountdownExpires(t *testing.T) {
	def := &program.Definition{Name: "rest", Statements: []program.Statement{
		{ID: 1, Label: "Rest", Kind: program.KindRest, DurationMS: intPtr(2000)},
	}}
	prog, err := Compose(def)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	root, err := prog.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}

	manual := clock.NewManual(testBase)
	rt := runtime.New(runtime.Config{Clock: manual, Logger: discardLogger(), Factory: prog})
	rt.Start(root)

	manual.Set(testBase.Add(3 * time.Second))
	rt.Tick(testBase.Add(3 * time.Second))

	if !rt.Finished() {
		t.Fatal("countdown program did not finish")
	}
	completions := rt.Outputs().ByType(core.OutputCompletion)
	if len(completions) != 1 {
		t.Fatalf("completions = %d, want 1", len(completions))
	}
	want := testBase.Add(2 * time.Second)
	if got := completions[0].Window.Stop; !got.Equal(want) {
		t.Errorf("completion at %v, want the two second deadline %v", got, want)
	}
}

func TestComposedChildlessAmrapCountsPresses(t *testing.T) {
	def := &program.Definition{Name: "amrap", Statements: []program.Statement{
		{ID: 1, Label: "AMRAP 12", Kind: program.KindRounds, DurationMS: intPtr(12 * 60 * 1000)},
	}}
	prog, err := Compose(def)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	root, err := prog.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}

	manual := clock.NewManual(testBase)
	rt := runtime.New(runtime.Config{Clock: manual, Logger: discardLogger(), Factory: prog})
	rt.Start(root)

	// Three finished rounds, then the clock runs out.
	for i := 0; i < 3; i++ {
		rt.Dispatch(events.New(events.ControlAdvance, events.ScopeActive))
	}
	if rt.Finished() {
		t.Fatal("AMRAP ended from presses alone")
	}

	end := testBase.Add(12 * time.Minute)
	manual.Set(end.Add(200 * time.Millisecond))
	rt.Tick(end.Add(200 * time.Millisecond))

	if !rt.Finished() {
		t.Fatal("AMRAP did not end with its clock")
	}
	completions := rt.Outputs().ByType(core.OutputCompletion)
	if len(completions) != 1 {
		t.Fatalf("completions = %d, want 1", len(completions))
	}
	var rounds, reason string
	for _, f := range completions[0].Fragments {
		switch f.Type {
		case core.FragmentRounds:
			rounds = f.Value
		case core.FragmentAction:
			reason = f.Value
		}
	}
	if rounds != "4" {
		t.Errorf("rounds achieved = %q, want 4 (three complete plus the one under way)", rounds)
	}
	if reason != string(core.ReasonTimerExpired) {
		t.Errorf("reason = %q, want timer-expired", reason)
	}
	if got := completions[0].Window.Stop; !got.Equal(end) {
		t.Errorf("completion at %v, want exactly %v", got, end)
	}
}
