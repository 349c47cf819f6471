package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cvdsim/internal/model"
	"github.com/roach88/cvdsim/internal/rates"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled diseases and rates.
type CompilationResult struct {
	ModelHash string             `json:"model_hash"`
	Diseases  []model.Definition `json:"diseases"`
	Rates     []rates.Spec       `json:"rates"`
}

// DiseaseSummary describes one compiled disease for text output.
type DiseaseSummary struct {
	Name        string
	States      int
	Transitions int
	Events      []string
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <models-dir>",
		Short: "Compile disease models and print the catalogue",
		Long: `Compile CUE disease models and rates into a catalogue.

Prints each disease with its states and reportable transitions, and the
model hash stored with every run. With --output, writes the compiled
definitions as JSON.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, modelsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loadResult, loadErrors := LoadModels(modelsDir, LoadModeCollectAll)
	if loadResult == nil {
		code, message := errorCode(loadErrors[0])
		return formatter.Fail(ExitCommandError, code, message)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, modelsDir)

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	result := &CompilationResult{
		ModelHash: loadResult.Hash,
		Diseases:  loadResult.Result.Diseases,
		Rates:     loadResult.Result.Rates,
	}

	if opts.Output != "" {
		if err := writeCompiledToFile(result, opts.Output); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d disease(s), %d rate(s)\n\n", len(result.Diseases), len(result.Rates))
	fmt.Fprintln(formatter.Writer, "Diseases:")
	for _, s := range summarize(loadResult.Catalogue) {
		fmt.Fprintf(formatter.Writer, "  %s: %d state(s), %d transition(s)\n", s.Name, s.States, s.Transitions)
		for _, id := range s.Events {
			fmt.Fprintf(formatter.Writer, "    %s\n", id)
		}
	}
	fmt.Fprintln(formatter.Writer)
	fmt.Fprintf(formatter.Writer, "Model hash: %s\n", result.ModelHash)

	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "Wrote compiled models to %s\n", opts.Output)
	}

	return nil
}

// summarize lists each model's size and state-changing transitions in
// catalogue order.
func summarize(cat *model.Catalogue) []DiseaseSummary {
	var out []DiseaseSummary
	for _, m := range cat.Models() {
		s := DiseaseSummary{
			Name:        m.Name(),
			States:      len(m.States()),
			Transitions: len(m.Transitions()),
		}
		for _, t := range m.EventTransitions() {
			s.Events = append(s.Events, t.ID)
		}
		out = append(out, s)
	}
	return out
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := errorCode(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}

		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}
		if err := formatter.encode(response); err != nil {
			return err
		}

		// Compilation errors are command-level errors (exit code 2)
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := errorCode(err)
		if le, ok := err.(*LoadError); ok && le.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", le.Pos.Filename(), le.Pos.Line(), le.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	// Compilation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// writeCompiledToFile writes the compilation result as indented JSON.
func writeCompiledToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling models: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
