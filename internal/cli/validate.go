package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/timebox/internal/decl"
)

// ErrCodeCompile is reported when a file does not parse at all.
const ErrCodeCompile = "E001"

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Strict bool // shadow warnings fail validation
}

// ValidationResult holds validation results for one file.
type ValidationResult struct {
	File      string                 `json:"file"`
	Valid     bool                   `json:"valid"`
	Reactions []decl.Declaration     `json:"reactions,omitempty"`
	Errors    []decl.ValidationError `json:"errors,omitempty"`
	Warnings  []decl.ShadowWarning   `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <reactions.cue>...",
		Short: "Validate reaction declarations",
		Long: `Validate CUE reaction declarations without running them.

Checks the declaration schema, reports every duplicate priority,
duplicate name, blank slot type and guard that does not compile, and
warns about reactions a higher-priority reaction always shadows.

Examples:
  timebox validate reactions.cue
  timebox validate --strict reactions/*.cue --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "treat shadow warnings as errors")

	return cmd
}

func runValidate(opts *ValidateOptions, files []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	results := make([]ValidationResult, 0, len(files))
	failed := 0
	for _, file := range files {
		res, err := validateFile(file, opts.Strict)
		if err != nil {
			return outputCompileError(formatter, file, err)
		}
		if !res.Valid {
			failed++
		}
		results = append(results, res)
		formatter.VerboseLog("validated %s: %d reaction(s)", file, len(res.Reactions))
	}

	if formatter.Format == "json" {
		var cliErr *CLIError
		if failed > 0 {
			cliErr = &CLIError{Code: firstCode(results), Message: fmt.Sprintf("%d file(s) failed validation", failed)}
		}
		if err := formatter.JSON(results, cliErr); err != nil {
			return err
		}
	} else {
		for _, res := range results {
			printValidationText(formatter, res)
		}
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d file(s) failed validation", failed))
	}
	return nil
}

// validateFile returns an error only when the file cannot be read or
// does not parse.
func validateFile(path string, strict bool) (ValidationResult, error) {
	res := ValidationResult{File: path}

	src, err := os.ReadFile(path)
	if err != nil {
		return res, WrapExitError(ExitCommandError, "failed to read reactions", err)
	}
	f, err := decl.Parse(src, path)
	if err != nil {
		return res, err
	}

	res.Reactions = f.Declarations
	res.Errors = decl.Validate(f)
	res.Warnings = decl.Shadowed(f)
	res.Valid = len(res.Errors) == 0 && (!strict || len(res.Warnings) == 0)
	return res, nil
}

func outputCompileError(f *OutputFormatter, file string, err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}

	details := map[string]string{"file": file}
	var ce *decl.CompileError
	if errors.As(err, &ce) {
		details["field"] = ce.Field
	}
	if outErr := f.Error(ErrCodeCompile, err.Error(), details); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitFailure, "compilation failed", err)
}

func firstCode(results []ValidationResult) string {
	for _, r := range results {
		if len(r.Errors) > 0 {
			return r.Errors[0].Code
		}
	}
	return "W001"
}

func printValidationText(f *OutputFormatter, res ValidationResult) {
	if len(res.Errors) == 0 {
		f.Textf("✓ %s: %d reaction(s) valid", res.File, len(res.Reactions))
	} else {
		f.Textf("✗ %s: validation failed", res.File)
	}
	for _, e := range res.Errors {
		if e.Line > 0 {
			f.Textf("  line %d", e.Line)
		}
		f.Textf("    %s: %s: %s", e.Code, e.Field, e.Message)
	}
	for _, w := range res.Warnings {
		f.Textf("  warning: %s", w)
	}
}
