package cli

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/ast"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"github.com/spf13/cobra"

	"github.com/roach88/lockstep/internal/harness"
)

//go:embed schema.cue
var scenarioSchema string

// ValidationIssue is one problem found in a scenario file.
type ValidationIssue struct {
	Position string `json:"position,omitempty"`
	Message  string `json:"message"`
}

// FileValidation holds the validation outcome for one file.
type FileValidation struct {
	Path   string            `json:"path"`
	Valid  bool              `json:"valid"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// ValidationResult holds validation results for all files.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario-file-or-dir>",
		Short: "Validate scenario files without running them",
		Long: `Validate scenario YAML files without executing them.

Each file is checked two ways: a strict YAML decode into the scenario
structure (unknown fields are typos and rejected), and a unification
against the scenario schema, which constrains directive shapes, poll
op names, and assertion types.

Exit codes:
  0 - All files valid
  1 - Validation failures
  2 - Command error (path not found, etc.)

Examples:
  lockstep validate scenarios/bounded_backpressure.yaml
  lockstep validate scenarios/ --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	paths, err := harness.DiscoverScenarios(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to discover scenarios", err)
	}
	formatter.VerboseLog("Found %d scenario file(s)", len(paths))

	schema, err := compileSchema()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile scenario schema", err)
	}

	result := ValidationResult{Valid: true}
	for _, scenarioPath := range paths {
		fv := validateFile(scenarioPath, schema)
		if !fv.Valid {
			result.Valid = false
		}
		result.Files = append(result.Files, fv)
	}

	return outputValidation(formatter, result)
}

// compileSchema compiles the embedded scenario schema and returns the
// #Scenario definition.
func compileSchema() (cue.Value, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(scenarioSchema, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return cue.Value{}, err
	}
	schema := v.LookupPath(cue.ParsePath("#Scenario"))
	if err := schema.Err(); err != nil {
		return cue.Value{}, err
	}
	return schema, nil
}

// validateFile runs both validation layers on one scenario file.
func validateFile(path string, schema cue.Value) FileValidation {
	fv := FileValidation{Path: path, Valid: true}
	addIssue := func(position, message string) {
		fv.Valid = false
		fv.Issues = append(fv.Issues, ValidationIssue{Position: position, Message: message})
	}

	data, err := os.ReadFile(path)
	if err != nil {
		addIssue("", fmt.Sprintf("failed to read file: %v", err))
		return fv
	}

	// Layer 1: strict structural decode.
	if _, err := harness.ParseScenario(data); err != nil {
		addIssue("", err.Error())
	}

	// Layer 2: schema unification.
	for _, issue := range validateAgainstSchema(path, data, schema) {
		fv.Valid = false
		fv.Issues = append(fv.Issues, issue)
	}

	return fv
}

// validateAgainstSchema unifies the YAML document with the scenario
// schema and collects every constraint violation.
func validateAgainstSchema(path string, data []byte, schema cue.Value) []ValidationIssue {
	file, err := extractYAML(path, data)
	if err != nil {
		return []ValidationIssue{{Message: fmt.Sprintf("failed to parse YAML: %v", err)}}
	}

	value := schema.Context().BuildFile(file)
	if err := value.Err(); err != nil {
		return cueIssues(err)
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return cueIssues(err)
	}
	return nil
}

// extractYAML converts a YAML document to a CUE ast.File.
func extractYAML(path string, data []byte) (*ast.File, error) {
	return cueyaml.Extract(path, data)
}

// cueIssues expands a CUE error into individual positioned issues.
func cueIssues(err error) []ValidationIssue {
	var issues []ValidationIssue
	for _, e := range cueerrors.Errors(err) {
		issue := ValidationIssue{Message: e.Error()}
		if pos := e.Position(); pos.IsValid() {
			issue.Position = pos.String()
		}
		issues = append(issues, issue)
	}
	if len(issues) == 0 {
		issues = append(issues, ValidationIssue{Message: err.Error()})
	}
	return issues
}

// outputValidation renders the result and maps failure to exit code 1.
func outputValidation(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		for _, fv := range result.Files {
			if fv.Valid {
				fmt.Fprintf(formatter.Writer, "ok    %s\n", fv.Path)
				continue
			}
			fmt.Fprintf(formatter.Writer, "FAIL  %s\n", fv.Path)
			for _, issue := range fv.Issues {
				if issue.Position != "" {
					fmt.Fprintf(formatter.Writer, "    %s: %s\n", issue.Position, issue.Message)
				} else {
					fmt.Fprintf(formatter.Writer, "    %s\n", issue.Message)
				}
			}
		}
	}

	if !result.Valid {
		failed := 0
		for _, fv := range result.Files {
			if !fv.Valid {
				failed++
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed for %d file(s)", failed))
	}
	return nil
}
