package loader

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pace-labs/wodflow/program"
)

// Load reads a program definition file, parses it (JSON or YAML by
// extension), validates it, and returns the definition. Validation
// failures come back as a *DiagnosticError.
func Load(path string) (*program.Definition, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	if isYAML(path) {
		return LoadBytes(data, FormatYAML)
	}
	return LoadBytes(data, FormatJSON)
}

// Format identifies the on-disk encoding of a program file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// LoadBytes parses a program definition from raw bytes in the given format,
// validates it, and returns it. Warnings do not fail the load; errors do.
func LoadBytes(data []byte, format Format) (*program.Definition, error) {
	jsonData := data
	if format == FormatYAML {
		var err error
		jsonData, err = yamlToJSON(data)
		if err != nil {
			return nil, err
		}
	}

	var def program.Definition
	if err := json.Unmarshal(jsonData, &def); err != nil {
		return nil, fmt.Errorf("parsing program definition: %w", err)
	}

	diags := def.Validate()
	if program.HasErrors(diags) {
		return nil, &DiagnosticError{Diagnostics: diags}
	}

	return &def, nil
}

// DiagnosticError wraps validation diagnostics as an error.
type DiagnosticError struct {
	Diagnostics []program.Diagnostic
}

func (e *DiagnosticError) Error() string {
	errs := program.Errors(e.Diagnostics)
	if len(errs) == 1 {
		return fmt.Sprintf("validation error: %s", errs[0].Message)
	}
	return fmt.Sprintf("%d validation errors (first: %s)", len(errs), errs[0].Message)
}
