package loader

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/pace-labs/wodflow/program"
)

func testdataPath(name string) string {
	return filepath.Join("testdata", name)
}

func TestLoad_JSON(t *testing.T) {
	def, err := Load(testdataPath("amrap.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if def.Name != "Twelve Minute AMRAP" {
		t.Errorf("Name = %q, want %q", def.Name, "Twelve Minute AMRAP")
	}
	if len(def.Statements) != 4 {
		t.Errorf("Statements count = %d, want 4", len(def.Statements))
	}

	root, ok := def.Root()
	if !ok {
		t.Fatal("expected a root statement")
	}
	if root.Kind != program.KindRounds {
		t.Errorf("root kind = %q, want %q", root.Kind, program.KindRounds)
	}
	if root.DurationMS == nil || *root.DurationMS != 720000 {
		t.Errorf("root DurationMS = %v, want 720000", root.DurationMS)
	}
	if len(root.Children) != 3 {
		t.Errorf("root children = %d, want 3", len(root.Children))
	}
}

func TestLoad_YAML(t *testing.T) {
	def, err := Load(testdataPath("intervals.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if def.Name != "Five Round Intervals" {
		t.Errorf("Name = %q, want %q", def.Name, "Five Round Intervals")
	}
	if len(def.Statements) != 3 {
		t.Errorf("Statements count = %d, want 3", len(def.Statements))
	}

	root, _ := def.Root()
	if root.Rounds == nil || *root.Rounds != 5 {
		t.Errorf("root Rounds = %v, want 5", root.Rounds)
	}

	work, ok := def.Lookup(2)
	if !ok {
		t.Fatal("statement 2 not found")
	}
	if len(work.Fragments) != 1 || work.Fragments[0].Value != "Max Calories" {
		t.Errorf("work fragments = %v", work.Fragments)
	}
}

func TestLoad_YAMLProducesSameAsJSON(t *testing.T) {
	jsonDef, err := Load(testdataPath("amrap.json"))
	if err != nil {
		t.Fatalf("Load(JSON) error = %v", err)
	}
	yamlDef, err := Load(testdataPath("amrap.yaml"))
	if err != nil {
		t.Fatalf("Load(YAML) error = %v", err)
	}

	if jsonDef.Name != yamlDef.Name {
		t.Errorf("JSON name = %q, YAML name = %q", jsonDef.Name, yamlDef.Name)
	}
	if len(jsonDef.Statements) != len(yamlDef.Statements) {
		t.Errorf("JSON statements = %d, YAML statements = %d",
			len(jsonDef.Statements), len(yamlDef.Statements))
	}
	for i := range jsonDef.Statements {
		js, ys := jsonDef.Statements[i], yamlDef.Statements[i]
		if js.ID != ys.ID || js.Kind != ys.Kind || js.Label != ys.Label {
			t.Errorf("statement %d differs: JSON %+v, YAML %+v", i, js, ys)
		}
	}
}

func TestLoad_InvalidContent(t *testing.T) {
	_, err := Load(testdataPath("invalid.json"))
	if err == nil {
		t.Fatal("expected error for invalid content")
	}

	var diagErr *DiagnosticError
	if !errors.As(err, &diagErr) {
		t.Fatalf("error is %T, want *DiagnosticError", err)
	}
	if len(program.Errors(diagErr.Diagnostics)) < 2 {
		t.Errorf("expected multiple validation errors, got %v", diagErr.Diagnostics)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("nonexistent.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadBytes_JSON(t *testing.T) {
	data := []byte(`{"version": "1", "name": "Quick", "statements": [
		{"id": 1, "label": "Sprint", "kind": "effort"}
	]}`)
	def, err := LoadBytes(data, FormatJSON)
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	if def.Name != "Quick" {
		t.Errorf("Name = %q, want %q", def.Name, "Quick")
	}
}

func TestLoadBytes_YAML(t *testing.T) {
	data := []byte("version: \"1\"\nname: Quick\nstatements:\n  - id: 1\n    kind: stopwatch\n")
	def, err := LoadBytes(data, FormatYAML)
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	if len(def.Statements) != 1 || def.Statements[0].Kind != program.KindStopwatch {
		t.Errorf("Statements = %+v", def.Statements)
	}
}

func TestLoadBytes_MalformedJSON(t *testing.T) {
	if _, err := LoadBytes([]byte(`{invalid`), FormatJSON); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestLoadBytes_WarningsDoNotFail(t *testing.T) {
	// Statement 2 is unreachable: a warning, not an error.
	data := []byte(`{"version": "1", "name": "Orphaned", "statements": [
		{"id": 1, "label": "Sprint", "kind": "effort"},
		{"id": 2, "label": "Unused", "kind": "effort"}
	]}`)
	def, err := LoadBytes(data, FormatJSON)
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	if len(def.Statements) != 2 {
		t.Errorf("Statements count = %d, want 2", len(def.Statements))
	}
}

func TestDiagnosticError_SingleError(t *testing.T) {
	err := &DiagnosticError{
		Diagnostics: []program.Diagnostic{
			{Code: "PG-001", Severity: "error", Message: "test error"},
		},
	}
	if err.Error() != "validation error: test error" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestDiagnosticError_MultipleErrors(t *testing.T) {
	err := &DiagnosticError{
		Diagnostics: []program.Diagnostic{
			{Code: "PG-002", Severity: "error", Message: "first error"},
			{Code: "PG-003", Severity: "error", Message: "second error"},
		},
	}
	got := err.Error()
	if got != "2 validation errors (first: first error)" {
		t.Errorf("Error() = %q", got)
	}
}

func TestDiagnosticError_Unwrap(t *testing.T) {
	loadErr := &DiagnosticError{
		Diagnostics: []program.Diagnostic{
			{Code: "PG-001", Severity: "error", Message: "test"},
		},
	}
	var diagErr *DiagnosticError
	if !errors.As(loadErr, &diagErr) {
		t.Error("should be unwrappable as *DiagnosticError")
	}
}
