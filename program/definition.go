// Package program defines the serializable intermediate representation of
// a compiled workout: a flat statement table with child references. The
// composer consumes it to build executable blocks, and the loader produces
// it from JSON or YAML files.
package program

import "fmt"

// Statement kinds.
const (
	KindCountdown = "countdown"
	KindStopwatch = "stopwatch"
	KindRounds    = "rounds"
	KindSequence  = "sequence"
	KindRest      = "rest"
	KindEffort    = "effort"
)

// knownKinds is the closed set Validate checks against.
var knownKinds = map[string]bool{
	KindCountdown: true,
	KindStopwatch: true,
	KindRounds:    true,
	KindSequence:  true,
	KindRest:      true,
	KindEffort:    true,
}

// Definition is a complete program. The first statement is the root.
type Definition struct {
	Version    string      `json:"version"`
	Name       string      `json:"name"`
	Statements []Statement `json:"statements"`
}

// Statement is one executable unit of a program.
type Statement struct {
	ID         int           `json:"id"`
	Label      string        `json:"label,omitempty"`
	Kind       string        `json:"kind"`
	DurationMS *int          `json:"duration_ms,omitempty"`
	Rounds     *int          `json:"rounds,omitempty"`
	Children   []int         `json:"children,omitempty"`
	Fragments  []FragmentDef `json:"fragments,omitempty"`
	Controls   *ControlsDef  `json:"controls,omitempty"`
}

// FragmentDef is a serializable display fragment.
type FragmentDef struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ControlsDef overrides the default athlete controls for a statement.
type ControlsDef struct {
	Pausable    bool `json:"pausable"`
	Advanceable bool `json:"advanceable"`
	Stoppable   bool `json:"stoppable"`
}

// Root returns the root statement. It reports false for an empty program.
func (d *Definition) Root() (Statement, bool) {
	if len(d.Statements) == 0 {
		return Statement{}, false
	}
	return d.Statements[0], true
}

// Lookup finds a statement by id.
func (d *Definition) Lookup(id int) (Statement, bool) {
	for _, s := range d.Statements {
		if s.ID == id {
			return s, true
		}
	}
	return Statement{}, false
}

// Diagnostic represents a validation error or warning for a program
// definition.
type Diagnostic struct {
	Code     string `json:"code"`           // e.g. "PG-001"
	Severity string `json:"severity"`       // "error" or "warning"
	Message  string `json:"message"`        // human-readable description
	Path     string `json:"path,omitempty"` // JSON path to offending field
	Line     int    `json:"line,omitempty"` // source line number (0 if unavailable)
}

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// HasErrors returns true if any diagnostic has error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only the error-severity diagnostics.
func Errors(diags []Diagnostic) []Diagnostic {
	var errs []Diagnostic
	for _, d := range diags {
		if d.Severity == SeverityError {
			errs = append(errs, d)
		}
	}
	return errs
}

// Warnings returns only the warning-severity diagnostics.
func Warnings(diags []Diagnostic) []Diagnostic {
	var warns []Diagnostic
	for _, d := range diags {
		if d.Severity == SeverityWarning {
			warns = append(warns, d)
		}
	}
	return warns
}

// Validate checks structural integrity of the definition:
//   - PG-001: the program has at least one statement
//   - PG-002: statement ids are unique
//   - PG-003: child references resolve
//   - PG-004: the child graph is acyclic
//   - PG-005: statement kinds are known
//   - PG-006: durations are present where required and never negative
//   - PG-007: round counts are never negative
//   - PG-008: statements are reachable from the root (warning)
//   - PG-009: children on leaf kinds are ignored (warning)
func (d *Definition) Validate() []Diagnostic {
	var diags []Diagnostic

	if len(d.Statements) == 0 {
		return append(diags, Diagnostic{
			Code:     "PG-001",
			Severity: SeverityError,
			Message:  "Program has no statements",
			Path:     "statements",
		})
	}

	ids := make(map[int]bool, len(d.Statements))
	for i, s := range d.Statements {
		if ids[s.ID] {
			diags = append(diags, Diagnostic{
				Code:     "PG-002",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Duplicate statement id %d", s.ID),
				Path:     fmt.Sprintf("statements[%d].id", i),
			})
		}
		ids[s.ID] = true
	}

	danglingRefs := false
	for i, s := range d.Statements {
		for j, child := range s.Children {
			if !ids[child] {
				danglingRefs = true
				diags = append(diags, Diagnostic{
					Code:     "PG-003",
					Severity: SeverityError,
					Message:  fmt.Sprintf("Statement %d references unknown child %d", s.ID, child),
					Path:     fmt.Sprintf("statements[%d].children[%d]", i, j),
				})
			}
		}
	}

	for i, s := range d.Statements {
		if !knownKinds[s.Kind] {
			diags = append(diags, Diagnostic{
				Code:     "PG-005",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Statement %d has unknown kind %q", s.ID, s.Kind),
				Path:     fmt.Sprintf("statements[%d].kind", i),
			})
		}
		if s.DurationMS != nil && *s.DurationMS < 0 {
			diags = append(diags, Diagnostic{
				Code:     "PG-006",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Statement %d has negative duration %dms", s.ID, *s.DurationMS),
				Path:     fmt.Sprintf("statements[%d].duration_ms", i),
			})
		}
		if (s.Kind == KindCountdown || s.Kind == KindRest) && s.DurationMS == nil {
			diags = append(diags, Diagnostic{
				Code:     "PG-006",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Statement %d (%s) requires duration_ms", s.ID, s.Kind),
				Path:     fmt.Sprintf("statements[%d].duration_ms", i),
			})
		}
		if s.Rounds != nil && *s.Rounds < 0 {
			diags = append(diags, Diagnostic{
				Code:     "PG-007",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Statement %d has negative round count %d", s.ID, *s.Rounds),
				Path:     fmt.Sprintf("statements[%d].rounds", i),
			})
		}
		if len(s.Children) > 0 && isLeafKind(s.Kind) {
			diags = append(diags, Diagnostic{
				Code:     "PG-009",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Statement %d (%s) has children, which %s blocks ignore", s.ID, s.Kind, s.Kind),
				Path:     fmt.Sprintf("statements[%d].children", i),
			})
		}
	}

	// Cycle detection only makes sense once every reference resolves.
	if !danglingRefs {
		if cycle, ok := d.detectCycle(); ok {
			diags = append(diags, Diagnostic{
				Code:     "PG-004",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Child graph contains a cycle involving statement %d", cycle),
			})
		}

		reachable := d.reachableFromRoot()
		for i, s := range d.Statements {
			if !reachable[s.ID] {
				diags = append(diags, Diagnostic{
					Code:     "PG-008",
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("Statement %d is unreachable from the root", s.ID),
					Path:     fmt.Sprintf("statements[%d]", i),
				})
			}
		}
	}

	return diags
}

func isLeafKind(kind string) bool {
	switch kind {
	case KindCountdown, KindStopwatch, KindRest, KindEffort:
		return true
	}
	return false
}

// detectCycle runs Kahn's algorithm over the child graph and returns a
// statement id sitting on a cycle.
func (d *Definition) detectCycle() (int, bool) {
	indegree := make(map[int]int, len(d.Statements))
	for _, s := range d.Statements {
		if _, ok := indegree[s.ID]; !ok {
			indegree[s.ID] = 0
		}
		for _, child := range s.Children {
			indegree[child]++
		}
	}

	var queue []int
	for _, s := range d.Statements {
		if indegree[s.ID] == 0 {
			queue = append(queue, s.ID)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		s, ok := d.Lookup(id)
		if !ok {
			continue
		}
		for _, child := range s.Children {
			indegree[child]--
			if indegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	if visited == len(indegree) {
		return 0, false
	}
	// Anything left with positive indegree sits on or behind a cycle.
	for _, s := range d.Statements {
		if indegree[s.ID] > 0 {
			return s.ID, true
		}
	}
	return 0, false
}

// reachableFromRoot walks the child graph from the first statement.
func (d *Definition) reachableFromRoot() map[int]bool {
	reachable := make(map[int]bool, len(d.Statements))
	root, ok := d.Root()
	if !ok {
		return reachable
	}
	stack := []int{root.ID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reachable[id] {
			continue
		}
		reachable[id] = true
		if s, ok := d.Lookup(id); ok {
			stack = append(stack, s.Children...)
		}
	}
	return reachable
}
