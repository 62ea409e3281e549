package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pace-labs/wodflow/loader"
	"github.com/pace-labs/wodflow/program"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <program>",
		Short: "Validate a program file without executing",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}

	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().Bool("strict", false, "Treat warnings as errors")

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	format, _ := cmd.Flags().GetString("format")
	strict, _ := cmd.Flags().GetBool("strict")
	out := cmd.OutOrStdout()

	diags, err := collectDiagnostics(filePath)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		printDiagnosticsJSON(out, diags)
	case "text":
		printDiagnosticsText(out, diags)
	default:
		return exitError(exitUsage, "unknown format %q (want text or json)", format)
	}

	hasErrs := program.HasErrors(diags)
	hasWarns := len(program.Warnings(diags)) > 0

	if hasErrs || (strict && hasWarns) {
		return exitError(exitValidation, "validation failed")
	}

	return nil
}

// collectDiagnostics loads a program file and returns every diagnostic it
// produces. Load alone is not enough: it only fails on errors, so a clean
// load still needs a validation pass to surface warnings.
func collectDiagnostics(path string) ([]program.Diagnostic, error) {
	def, err := loader.Load(path)

	var diagErr *loader.DiagnosticError
	switch {
	case errors.As(err, &diagErr):
		return diagErr.Diagnostics, nil
	case errors.Is(err, os.ErrNotExist):
		return nil, exitError(exitRuntime, "file not found: %s", path)
	case err != nil:
		// Parse failures become a synthetic diagnostic so they render the
		// same way validation errors do.
		return []program.Diagnostic{{
			Code:     "PG-000",
			Severity: program.SeverityError,
			Message:  fmt.Sprintf("failed to parse file: %v", err),
		}}, nil
	}

	return def.Validate(), nil
}

// printDiagnosticsText writes diagnostics as formatted text lines followed
// by a summary. Used by both the validate and run commands.
func printDiagnosticsText(w io.Writer, diags []program.Diagnostic) {
	for _, d := range diags {
		sev := strings.ToUpper(d.Severity)
		loc := d.Path
		if d.Line > 0 {
			loc = fmt.Sprintf("%s, line %d", d.Path, d.Line)
		}
		if loc != "" {
			fmt.Fprintf(w, "%s [%s]: %s (at %s)\n", sev, d.Code, d.Message, loc)
		} else {
			fmt.Fprintf(w, "%s [%s]: %s\n", sev, d.Code, d.Message)
		}
	}

	errs := program.Errors(diags)
	warns := program.Warnings(diags)

	switch {
	case len(errs) == 0 && len(warns) == 0:
		fmt.Fprintln(w, "Valid!")
	case len(errs) == 0 && len(warns) > 0:
		fmt.Fprintf(w, "\nValid! (%d %s)\n", len(warns), pluralize("warning", len(warns)))
	default:
		fmt.Fprintf(w, "\n%d %s, %d %s\n",
			len(errs), pluralize("error", len(errs)),
			len(warns), pluralize("warning", len(warns)))
	}
}

func printDiagnosticsJSON(w io.Writer, diags []program.Diagnostic) {
	// Output an empty array rather than null when there are no diagnostics.
	if diags == nil {
		diags = []program.Diagnostic{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(diags)
}

// pluralize returns the singular or plural form of a word based on count.
func pluralize(word string, count int) string {
	if count == 1 {
		return word
	}
	return word + "s"
}
