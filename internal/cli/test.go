package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/escrow/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string
}

// TestResult is the output of the test command.
type TestResult struct {
	harness.SuiteResult
}

func (r TestResult) Text() string {
	var b strings.Builder
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "✗ %s (%s)\n", f.Scenario, f.Path)
		for _, e := range f.Errors {
			fmt.Fprintf(&b, "    %s\n", e)
		}
	}
	fmt.Fprintf(&b, "%d scenarios: %d passed, %d failed", r.Total, r.Passed, r.Failed)
	return b.String()
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run every YAML scenario under a directory against a fresh engine.

Each scenario seeds its own genesis, replays its steps and checks the
declared expectations and assertions. Exits 1 when any scenario fails.

Example:
  escrow test ./testdata/scenarios
  escrow test ./testdata/scenarios --filter rollback`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenarios whose name contains this string")

	return cmd
}

func runTests(opts *TestOptions, cmd *cobra.Command, dir string) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	info, err := os.Stat(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "scenarios directory not found", err)
	}
	if !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("%s is not a directory", dir))
	}

	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	suite, err := harness.RunSuite(dir, opts.Filter, harness.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenarios", err)
	}
	if suite.Total == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no scenarios found in %s", dir))
	}

	if err := formatter.Success(TestResult{SuiteResult: *suite}); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}
	if suite.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", suite.Failed, suite.Total))
	}
	return nil
}
